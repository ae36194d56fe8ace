package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockIDForOffset(t *testing.T) {
	t.Parallel()

	helper := NewBlockHelper(1024)

	assert.Equal(t, int64(0), helper.GetBlockIDForOffset(0))
	assert.Equal(t, int64(0), helper.GetBlockIDForOffset(1023))
	assert.Equal(t, int64(1), helper.GetBlockIDForOffset(1024))
	assert.Equal(t, int64(2), helper.GetBlockIDForOffset(2048))
}

func TestBlockLength(t *testing.T) {
	t.Parallel()

	helper := NewBlockHelper(1024)

	// full blocks
	assert.Equal(t, 1024, helper.GetBlockLength(0, 4096))
	assert.Equal(t, 1024, helper.GetBlockLength(3, 4096))

	// short tail
	assert.Equal(t, 500, helper.GetBlockLength(2, 2548))

	// beyond the range
	assert.Equal(t, 0, helper.GetBlockLength(4, 4096))
}

func TestFirstAndLastBlockID(t *testing.T) {
	t.Parallel()

	helper := NewBlockHelper(1024)

	first, last := helper.GetFirstAndLastBlockID(0, 4096)
	assert.Equal(t, int64(0), first)
	assert.Equal(t, int64(3), last)

	first, last = helper.GetFirstAndLastBlockID(0, 100)
	assert.Equal(t, int64(0), first)
	assert.Equal(t, int64(0), last)

	first, last = helper.GetFirstAndLastBlockID(1500, 1000)
	assert.Equal(t, int64(1), first)
	assert.Equal(t, int64(2), last)
}
