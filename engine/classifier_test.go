package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamtv/cachepool/commons"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	classifier := NewClassifier(commons.NewDefaultClassifyRules())

	tests := []struct {
		name        string
		resourceRef string
		kind        ResourceKind
		class       ResourceClass
		strategy    StrategyName
	}{
		{"api rule", "/api/user/profile", ResourceKindUnknown, ResourceClassAPI, StrategyNetworkFirst},
		{"static rule", "/static/app.js", ResourceKindUnknown, ResourceClassStatic, StrategyStaleWhileRevalidate},
		{"images rule", "/images/cover.png", ResourceKindUnknown, ResourceClassImages, StrategyCacheFirst},
		{"thumbnails rule", "/thumbnails/t1.jpg", ResourceKindUnknown, ResourceClassImages, StrategyCacheFirst},
		{"media rule", "/media/track1.mp3", ResourceKindUnknown, ResourceClassMedia, StrategyNetworkFirst},
		{"pages rule", "/pages/home", ResourceKindUnknown, ResourceClassDynamic, StrategyNetworkFirst},
		{"full url", "https://cdn.example.com/static/app.js", ResourceKindUnknown, ResourceClassStatic, StrategyStaleWhileRevalidate},
		{"kind image default", "/covers/a.png", ResourceKindImage, ResourceClassImages, StrategyCacheFirst},
		{"kind script default", "/bundles/vendor.js", ResourceKindScript, ResourceClassStatic, StrategyStaleWhileRevalidate},
		{"kind style default", "/bundles/app.css", ResourceKindStyle, ResourceClassStatic, StrategyStaleWhileRevalidate},
		{"kind media default", "/tracks/t1.mp3", ResourceKindMedia, ResourceClassMedia, StrategyNetworkFirst},
		{"api path default", "/api-v2/feed", ResourceKindUnknown, ResourceClassAPI, StrategyNetworkFirst},
		{"fallthrough default", "/something/else", ResourceKindUnknown, ResourceClassDynamic, StrategyNetworkFirst},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			classification := classifier.Classify(test.resourceRef, test.kind)
			assert.Equal(t, test.class, classification.Class)
			assert.Equal(t, test.strategy, classification.Strategy)
		})
	}
}

func TestClassifyRuleOrder(t *testing.T) {
	t.Parallel()

	// the first matching rule wins
	classifier := NewClassifier([]commons.ClassifyRule{
		{PathPrefix: "/static/fonts/", Partition: "images", Strategy: "cache-first"},
		{PathPrefix: "/static/", Partition: "static", Strategy: "stale-while-revalidate"},
	})

	classification := classifier.Classify("/static/fonts/sans.woff2", ResourceKindUnknown)
	assert.Equal(t, ResourceClassImages, classification.Class)

	classification = classifier.Classify("/static/app.js", ResourceKindUnknown)
	assert.Equal(t, ResourceClassStatic, classification.Class)
}

func TestClassifyInvalidPartition(t *testing.T) {
	t.Parallel()

	// a rule with an unknown partition name lands in dynamic
	classifier := NewClassifier([]commons.ClassifyRule{
		{PathPrefix: "/weird/", Partition: "nonsense", Strategy: "cache-first"},
	})

	classification := classifier.Classify("/weird/thing", ResourceKindUnknown)
	assert.Equal(t, ResourceClassDynamic, classification.Class)
	assert.Equal(t, StrategyCacheFirst, classification.Strategy)
}
