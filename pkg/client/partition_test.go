package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionEmptyFileYieldsZeroBlocks(t *testing.T) {
	blocks := partition(nil, DefaultBlockSize)
	assert.Empty(t, blocks)

	blocks = partition([]byte{}, DefaultBlockSize)
	assert.Empty(t, blocks)
}

func TestPartitionSplitsOnBlockSize(t *testing.T) {
	data := make([]byte, 10)
	blocks := partition(data, 4)
	assert.Len(t, blocks, 3)
	assert.Len(t, blocks[0], 4)
	assert.Len(t, blocks[1], 4)
	assert.Len(t, blocks[2], 2)
}
