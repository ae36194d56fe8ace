package utils

// BlockHelper splits a byte range into fixed size blocks.
// Progressive downloads fetch one block at a time so that cancellation
// can be observed between blocks.
type BlockHelper struct {
	BlockSize int
}

// NewBlockHelper creates a new BlockHelper
func NewBlockHelper(blockSize int) *BlockHelper {
	return &BlockHelper{
		BlockSize: blockSize,
	}
}

// GetBlockIDForOffset returns block index for the offset
func (helper *BlockHelper) GetBlockIDForOffset(offset int64) int64 {
	return offset / int64(helper.BlockSize)
}

// GetBlockStartOffsetForBlockID returns block start offset
func (helper *BlockHelper) GetBlockStartOffsetForBlockID(blockID int64) int64 {
	return blockID * int64(helper.BlockSize)
}

// GetBlockLength returns the length of the given block when the range
// is limited to totalLength bytes
func (helper *BlockHelper) GetBlockLength(blockID int64, totalLength int64) int {
	start := helper.GetBlockStartOffsetForBlockID(blockID)
	if start >= totalLength {
		return 0
	}

	remaining := totalLength - start
	if remaining > int64(helper.BlockSize) {
		return helper.BlockSize
	}
	return int(remaining)
}

// GetFirstAndLastBlockID returns first and last block id covering the range
func (helper *BlockHelper) GetFirstAndLastBlockID(offset int64, length int64) (int64, int64) {
	first := helper.GetBlockIDForOffset(offset)
	last := helper.GetBlockIDForOffset(offset + length - 1)
	if last < first {
		last = first
	}
	return first, last
}
