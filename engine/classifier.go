package engine

import (
	"net/url"
	"strings"

	"github.com/streamtv/cachepool/commons"
)

// Classification is the outcome of classifying a resource request
type Classification struct {
	Class    ResourceClass
	Strategy StrategyName
}

// Classifier maps an outbound resource reference to a resource class and
// a named caching strategy. Deterministic, no side effects; an unmatched
// request falls through to a kind-based default, then to network-first.
type Classifier struct {
	rules []commons.ClassifyRule
}

// NewClassifier creates a new Classifier with an ordered rule table
func NewClassifier(rules []commons.ClassifyRule) *Classifier {
	return &Classifier{
		rules: rules,
	}
}

// Classify returns the partition class and the strategy for the resource
func (classifier *Classifier) Classify(resourceRef string, kind ResourceKind) Classification {
	path := pathOf(resourceRef)

	for _, rule := range classifier.rules {
		if strings.HasPrefix(path, rule.PathPrefix) {
			classification := Classification{
				Class:    ResourceClass(rule.Partition),
				Strategy: StrategyName(rule.Strategy),
			}

			if !IsValidResourceClass(rule.Partition) {
				classification.Class = ResourceClassDynamic
			}

			return classification
		}
	}

	// no rule matched, fall back to kind-based defaults
	switch kind {
	case ResourceKindImage:
		return Classification{
			Class:    ResourceClassImages,
			Strategy: StrategyCacheFirst,
		}
	case ResourceKindScript, ResourceKindStyle:
		return Classification{
			Class:    ResourceClassStatic,
			Strategy: StrategyStaleWhileRevalidate,
		}
	case ResourceKindMedia:
		return Classification{
			Class:    ResourceClassMedia,
			Strategy: StrategyNetworkFirst,
		}
	}

	if strings.HasPrefix(path, "/api") {
		return Classification{
			Class:    ResourceClassAPI,
			Strategy: StrategyNetworkFirst,
		}
	}

	return Classification{
		Class:    ResourceClassDynamic,
		Strategy: StrategyNetworkFirst,
	}
}

// pathOf extracts the path from a resource reference that may be a full URL
func pathOf(resourceRef string) string {
	if strings.HasPrefix(resourceRef, "http://") || strings.HasPrefix(resourceRef, "https://") {
		parsed, err := url.Parse(resourceRef)
		if err == nil {
			return parsed.Path
		}
	}
	return resourceRef
}
