package engine

import (
	"encoding/json"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/streamtv/cachepool/commons"
)

// Manifest lists the application shell resources to warm at startup
type Manifest struct {
	Version string   `json:"version"`
	Chunks  []string `json:"chunks"`
}

// ParseManifest parses a build manifest. Both the object form
// {"version": ..., "chunks": [...]} and the bare array form [...] are
// accepted. Malformed entries are skipped, not fatal.
func ParseManifest(data []byte) (*Manifest, error) {
	manifest := Manifest{}
	err := json.Unmarshal(data, &manifest)
	if err == nil {
		manifest.Chunks = filterManifestEntries(manifest.Chunks)
		return &manifest, nil
	}

	chunks := []string{}
	err = json.Unmarshal(data, &chunks)
	if err != nil {
		return nil, commons.NewParseError("manifest", err)
	}

	return &Manifest{
		Chunks: filterManifestEntries(chunks),
	}, nil
}

// filterManifestEntries drops entries that cannot name a resource
func filterManifestEntries(entries []string) []string {
	logger := log.WithFields(log.Fields{
		"package":  "engine",
		"function": "filterManifestEntries",
	})

	chunks := []string{}
	for _, entry := range entries {
		trimmed := strings.TrimSpace(entry)
		if len(trimmed) == 0 {
			continue
		}

		if !strings.HasPrefix(trimmed, "/") && !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
			logger.WithError(commons.NewParseError(trimmed, nil)).Warnf("Skipping malformed manifest entry %q", entry)
			continue
		}

		chunks = append(chunks, trimmed)
	}
	return chunks
}

// LoadManifestFile reads and parses a manifest file
func LoadManifestFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, commons.NewParseError(path, err)
	}

	return ParseManifest(data)
}
