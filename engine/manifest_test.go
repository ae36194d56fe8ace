package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamtv/cachepool/commons"
)

func TestParseManifestObjectForm(t *testing.T) {
	t.Parallel()

	manifest, err := ParseManifest([]byte(`{
		"version": "2024.10.1",
		"chunks": ["/static/app.js", "/static/vendor.js", "/static/app.css"]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "2024.10.1", manifest.Version)
	assert.Equal(t, []string{"/static/app.js", "/static/vendor.js", "/static/app.css"}, manifest.Chunks)
}

func TestParseManifestArrayForm(t *testing.T) {
	t.Parallel()

	manifest, err := ParseManifest([]byte(`["/static/app.js", "https://cdn.example.com/vendor.js"]`))
	require.NoError(t, err)

	assert.Equal(t, []string{"/static/app.js", "https://cdn.example.com/vendor.js"}, manifest.Chunks)
}

func TestParseManifestSkipsMalformedEntries(t *testing.T) {
	t.Parallel()

	manifest, err := ParseManifest([]byte(`{
		"chunks": ["/static/app.js", "", "   ", "not-a-path", "/static/ok.css"]
	}`))
	require.NoError(t, err)

	// malformed entries are skipped, not fatal
	assert.Equal(t, []string{"/static/app.js", "/static/ok.css"}, manifest.Chunks)
}

func TestParseManifestInvalid(t *testing.T) {
	t.Parallel()

	_, err := ParseManifest([]byte(`{broken`))
	assert.True(t, commons.IsParseError(err))

	_, err = ParseManifest([]byte(`42`))
	assert.True(t, commons.IsParseError(err))
}
