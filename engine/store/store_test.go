package store

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamtv/cachepool/commons"
	"github.com/streamtv/cachepool/utils"
)

func makeTestStore(t *testing.T, settings []commons.PartitionSetting) *TieredStore {
	t.Helper()

	tieredStore, err := NewTieredStore(t.TempDir(), settings)
	require.NoError(t, err)

	t.Cleanup(func() {
		tieredStore.Close()
	})

	return tieredStore
}

func TestPutGet(t *testing.T) {
	t.Parallel()

	tieredStore := makeTestStore(t, []commons.PartitionSetting{
		{Name: "static", MaxItems: 10, TTL: utils.Duration(time.Hour)},
	})

	err := tieredStore.Put("static", "/static/app.js", "application/javascript", []byte("console.log(1)"))
	require.NoError(t, err)

	entry, err := tieredStore.Get("static", "/static/app.js")
	require.NoError(t, err)

	assert.Equal(t, "/static/app.js", entry.Key)
	assert.Equal(t, "static", entry.Partition)
	assert.Equal(t, "application/javascript", entry.ContentType)
	assert.Equal(t, []byte("console.log(1)"), entry.Payload)
	assert.Equal(t, int64(len("console.log(1)")), entry.Size)
	assert.False(t, entry.StoredAt.IsZero())
}

func TestGetMissing(t *testing.T) {
	t.Parallel()

	tieredStore := makeTestStore(t, []commons.PartitionSetting{
		{Name: "static", MaxItems: 10, TTL: utils.Duration(time.Hour)},
	})

	_, err := tieredStore.Get("static", "/static/missing.js")
	assert.True(t, commons.IsNoCacheEntryError(err))

	// unknown partition reads also report a miss
	_, err = tieredStore.Get("unknown", "/a")
	assert.True(t, commons.IsNoCacheEntryError(err))
}

func TestPutOverwrite(t *testing.T) {
	t.Parallel()

	tieredStore := makeTestStore(t, []commons.PartitionSetting{
		{Name: "api", MaxItems: 10, TTL: utils.Duration(time.Hour)},
	})

	err := tieredStore.Put("api", "/api/user", "application/json", []byte(`{"v":1}`))
	require.NoError(t, err)

	err = tieredStore.Put("api", "/api/user", "application/json", []byte(`{"v":2}`))
	require.NoError(t, err)

	entry, err := tieredStore.Get("api", "/api/user")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":2}`), entry.Payload)

	count, err := tieredStore.Count("api")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCapacityTrim(t *testing.T) {
	t.Parallel()

	tieredStore := makeTestStore(t, []commons.PartitionSetting{
		{Name: "images", MaxItems: 3, TTL: utils.Duration(time.Hour)},
	})

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("/images/%d.png", i)
		err := tieredStore.Put("images", key, "image/png", []byte{byte(i)})
		require.NoError(t, err)

		// distinct stored-at timestamps for deterministic eviction order
		time.Sleep(5 * time.Millisecond)
	}

	count, err := tieredStore.Count("images")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// the oldest entries are gone
	_, err = tieredStore.Get("images", "/images/0.png")
	assert.True(t, commons.IsNoCacheEntryError(err))
	_, err = tieredStore.Get("images", "/images/1.png")
	assert.True(t, commons.IsNoCacheEntryError(err))

	// the newest entries survive
	_, err = tieredStore.Get("images", "/images/4.png")
	assert.NoError(t, err)
}

func TestTTLLazyExpiration(t *testing.T) {
	t.Parallel()

	tieredStore := makeTestStore(t, []commons.PartitionSetting{
		{Name: "api", MaxItems: 10, TTL: utils.Duration(50 * time.Millisecond)},
	})

	err := tieredStore.Put("api", "/api/feed", "application/json", []byte(`{}`))
	require.NoError(t, err)

	_, err = tieredStore.Get("api", "/api/feed")
	assert.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	// an expired entry is treated as absent
	_, err = tieredStore.Get("api", "/api/feed")
	assert.True(t, commons.IsNoCacheEntryError(err))

	// but remains readable with its staleness flagged
	entry, stale, err := tieredStore.GetAny("api", "/api/feed")
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, []byte(`{}`), entry.Payload)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	t.Parallel()

	tieredStore := makeTestStore(t, []commons.PartitionSetting{
		{Name: "static", MaxItems: 10, TTL: 0},
	})

	err := tieredStore.Put("static", "/static/app.js", "application/javascript", []byte("a"))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, stale, err := tieredStore.GetAny("static", "/static/app.js")
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestClearIsolation(t *testing.T) {
	t.Parallel()

	tieredStore := makeTestStore(t, []commons.PartitionSetting{
		{Name: "static", MaxItems: 10, TTL: utils.Duration(time.Hour)},
		{Name: "images", MaxItems: 10, TTL: utils.Duration(time.Hour)},
	})

	require.NoError(t, tieredStore.Put("static", "/static/app.js", "application/javascript", []byte("a")))
	require.NoError(t, tieredStore.Put("images", "/images/a.png", "image/png", []byte("b")))

	err := tieredStore.Clear("static")
	require.NoError(t, err)

	_, err = tieredStore.Get("static", "/static/app.js")
	assert.True(t, commons.IsNoCacheEntryError(err))

	// clearing one partition never touches another
	_, err = tieredStore.Get("images", "/images/a.png")
	assert.NoError(t, err)
}

func TestVersionMismatchWipes(t *testing.T) {
	t.Parallel()

	dirPath := t.TempDir()
	settings := []commons.PartitionSetting{
		{Name: "static", MaxItems: 10, TTL: utils.Duration(time.Hour)},
	}

	tieredStore, err := NewTieredStore(dirPath, settings)
	require.NoError(t, err)

	require.NoError(t, tieredStore.CheckVersion("v1"))
	require.NoError(t, tieredStore.Put("static", "/static/app.js", "application/javascript", []byte("a")))
	require.NoError(t, tieredStore.Close())

	// reopen with the same version, entries survive
	tieredStore, err = NewTieredStore(dirPath, settings)
	require.NoError(t, err)
	require.NoError(t, tieredStore.CheckVersion("v1"))

	_, err = tieredStore.Get("static", "/static/app.js")
	assert.NoError(t, err)
	require.NoError(t, tieredStore.Close())

	// reopen with a new version, partition is wiped
	tieredStore, err = NewTieredStore(dirPath, settings)
	require.NoError(t, err)
	defer tieredStore.Close()

	require.NoError(t, tieredStore.CheckVersion("v2"))

	_, err = tieredStore.Get("static", "/static/app.js")
	assert.True(t, commons.IsNoCacheEntryError(err))
}

func TestDelete(t *testing.T) {
	t.Parallel()

	tieredStore := makeTestStore(t, []commons.PartitionSetting{
		{Name: "dynamic", MaxItems: 10, TTL: utils.Duration(time.Hour)},
	})

	require.NoError(t, tieredStore.Put("dynamic", "/pages/home", "text/html", []byte("<html>")))
	require.NoError(t, tieredStore.Delete("dynamic", "/pages/home"))

	_, err := tieredStore.Get("dynamic", "/pages/home")
	assert.True(t, commons.IsNoCacheEntryError(err))
}

func TestQuotaErrorMapping(t *testing.T) {
	t.Parallel()

	// storage exhaustion maps to a quota error so callers can sweep and
	// retry; other write failures stay generic storage errors
	assert.True(t, isQuotaError(syscall.ENOSPC))
	assert.True(t, isQuotaError(fmt.Errorf("write log: %w", syscall.ENOSPC)))
	assert.True(t, isQuotaError(syscall.EDQUOT))
	assert.True(t, isQuotaError(badger.ErrTxnTooBig))
	assert.False(t, isQuotaError(errors.New("connection reset")))
}
