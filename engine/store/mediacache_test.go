package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaCacheCreateGet(t *testing.T) {
	t.Parallel()

	mediaCache, err := NewMediaCache(10, t.TempDir())
	require.NoError(t, err)

	data := []byte("leading media bytes")
	entry, err := mediaCache.CreateEntry("/media/track1", "high", data, 1024*1024)
	require.NoError(t, err)

	assert.Equal(t, "/media/track1", entry.GetResourceRef())
	assert.Equal(t, "high", entry.GetQuality())
	assert.Equal(t, len(data), entry.GetSize())
	assert.Equal(t, int64(1024*1024), entry.GetTotalSize())

	assert.True(t, mediaCache.HasEntry("/media/track1", "high"))
	assert.False(t, mediaCache.HasEntry("/media/track1", "low"))

	read, err := mediaCache.GetEntry("/media/track1", "high").GetData()
	require.NoError(t, err)
	assert.Equal(t, data, read)
}

func TestMediaCacheQualityIsolation(t *testing.T) {
	t.Parallel()

	mediaCache, err := NewMediaCache(10, t.TempDir())
	require.NoError(t, err)

	_, err = mediaCache.CreateEntry("/media/track1", "low", []byte("low bytes"), -1)
	require.NoError(t, err)
	_, err = mediaCache.CreateEntry("/media/track1", "high", []byte("high bytes"), -1)
	require.NoError(t, err)

	// same resource at two quality levels are distinct entries
	assert.Equal(t, 2, mediaCache.GetTotalEntries())

	low, err := mediaCache.GetEntry("/media/track1", "low").GetData()
	require.NoError(t, err)
	assert.Equal(t, []byte("low bytes"), low)
}

func TestMediaCacheEviction(t *testing.T) {
	t.Parallel()

	mediaCache, err := NewMediaCache(3, t.TempDir())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		ref := fmt.Sprintf("/media/track%d", i)
		_, err = mediaCache.CreateEntry(ref, "high", []byte{byte(i)}, -1)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, mediaCache.GetTotalEntries())
	assert.False(t, mediaCache.HasEntry("/media/track0", "high"))
	assert.True(t, mediaCache.HasEntry("/media/track4", "high"))
}

func TestMediaCacheDelete(t *testing.T) {
	t.Parallel()

	mediaCache, err := NewMediaCache(10, t.TempDir())
	require.NoError(t, err)

	_, err = mediaCache.CreateEntry("/media/track1", "high", []byte("a"), -1)
	require.NoError(t, err)

	mediaCache.DeleteEntry("/media/track1", "high")
	assert.False(t, mediaCache.HasEntry("/media/track1", "high"))
	assert.Nil(t, mediaCache.GetEntry("/media/track1", "high"))

	_, err = mediaCache.CreateEntry("/media/track2", "high", []byte("b"), -1)
	require.NoError(t, err)

	mediaCache.DeleteAllEntries()
	assert.Equal(t, 0, mediaCache.GetTotalEntries())
}
