// Package minfstesting provides fixtures shared by the rest of this module's
// test suites: random and compressed golden disk images, and block caches
// wired over them.
package minfstesting

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/blockcache"
)

// CreateRandomImage builds an image of totalBlocks blocks, each
// bytesPerBlock bytes, filled with random data. It either succeeds or fails
// t and aborts.
func CreateRandomImage(bytesPerBlock, totalBlocks uint, t *testing.T) []byte {
	backingData := make([]byte, bytesPerBlock*totalBlocks)
	_, err := rand.Read(backingData)
	require.NoErrorf(
		t, err, "failed to initialize %d blocks of size %d with random bytes",
		totalBlocks, bytesPerBlock)
	return backingData
}

// CreateDefaultCache builds a blockcache.Cache over backingData (or over a
// fresh random image if backingData is nil), failing the test immediately if
// an access strays outside [0, totalBlocks) or attempts a write when
// writable is false.
func CreateDefaultCache(
	bytesPerBlock,
	totalBlocks uint,
	writable bool,
	backingData []byte,
	t *testing.T,
) *blockcache.Cache {
	if backingData == nil {
		backingData = CreateRandomImage(bytesPerBlock, totalBlocks, t)
	}

	fetch := func(block minfs.BlockNumber, buffer []byte) error {
		if uint(block) >= totalBlocks {
			message := fmt.Sprintf(
				"attempted to read outside bounds: block %d not in [0, %d)",
				block, totalBlocks)
			t.Error(message)
			return fmt.Errorf("%s", message)
		}
		start := uint(block) * bytesPerBlock
		copy(buffer, backingData[start:start+bytesPerBlock])
		return nil
	}

	var flush blockcache.FlushBlockCallback
	if writable {
		flush = func(block minfs.BlockNumber, buffer []byte) error {
			if uint(block) >= totalBlocks {
				message := fmt.Sprintf(
					"attempted to write outside bounds: block %d not in [0, %d)",
					block, totalBlocks)
				t.Error(message)
				return fmt.Errorf("%s", message)
			}
			start := uint(block) * bytesPerBlock
			copy(backingData[start:start+bytesPerBlock], buffer)
			return nil
		}
	} else {
		flush = func(block minfs.BlockNumber, buffer []byte) error {
			message := fmt.Sprintf(
				"attempted to write %d bytes to block %d of a read-only image",
				len(buffer), block)
			t.Error(message)
			return fmt.Errorf("%s", message)
		}
	}

	cache := blockcache.New(bytesPerBlock, totalBlocks, fetch, flush)
	assert.EqualValues(t, totalBlocks, uint(cache.MaxBlock()), "wrong total blocks")
	return cache
}
