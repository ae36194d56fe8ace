package utils

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v2"
)

func TestDurationJSON(t *testing.T) {
	t.Parallel()

	type holder struct {
		Timeout Duration `json:"timeout"`
	}

	parsed := holder{}
	err := json.Unmarshal([]byte(`{"timeout":"30s"}`), &parsed)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, parsed.Timeout.Get())

	// numeric form, nanoseconds
	parsed = holder{}
	err = json.Unmarshal([]byte(`{"timeout":5000000000}`), &parsed)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, parsed.Timeout.Get())

	marshaled, err := json.Marshal(holder{Timeout: Duration(90 * time.Second)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout":"1m30s"}`, string(marshaled))
}

func TestDurationYAML(t *testing.T) {
	t.Parallel()

	type holder struct {
		TTL Duration `yaml:"ttl"`
	}

	parsed := holder{}
	err := yaml.Unmarshal([]byte("ttl: 5m\n"), &parsed)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, parsed.TTL.Get())

	parsed = holder{}
	err = yaml.Unmarshal([]byte("ttl: bad\n"), &parsed)
	assert.Error(t, err)
}
