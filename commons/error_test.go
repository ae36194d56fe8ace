package commons

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTypeChecks(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNetworkError(NewNetworkError("/api/a", errors.New("refused"))))
	assert.True(t, IsNetworkError(NewNetworkTimeoutError("/api/a", errors.New("deadline"))))
	assert.True(t, IsStorageError(NewStorageError("static", "/a", errors.New("io"))))
	assert.True(t, IsNoCacheEntryError(NewNoCacheEntryError("static", "/a")))
	assert.True(t, IsQuotaExceededError(NewQuotaExceededError("images")))
	assert.True(t, IsParseError(NewParseError("manifest", errors.New("bad json"))))
	assert.True(t, IsCanceledError(NewCanceledError("preload-1")))

	assert.False(t, IsNetworkError(NewStorageError("static", "/a", errors.New("io"))))
	assert.False(t, IsNoCacheEntryError(errors.New("plain")))
}

func TestErrorCodeRoundTrip(t *testing.T) {
	t.Parallel()

	err := CodeToError(ErrorToCode(NewNoCacheEntryError("media", "/media/track1")))
	assert.True(t, IsNoCacheEntryError(err))

	var noEntryErr *NoCacheEntryError
	assert.True(t, errors.As(err, &noEntryErr))
	assert.Equal(t, "media", noEntryErr.Partition)
	assert.Equal(t, "/media/track1", noEntryErr.Key)

	err = CodeToError(ErrorToCode(NewNetworkError("/api/x", errors.New("refused"))))
	assert.True(t, IsNetworkError(err))

	err = CodeToError(ErrorToCode(NewCanceledError("preload-9")))
	assert.True(t, IsCanceledError(err))

	assert.Nil(t, CodeToError(""))
}
