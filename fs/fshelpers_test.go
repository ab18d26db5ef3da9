package fs_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/blockcache"
	"github.com/block-fs/minfs/fs"
)

const testBlockSize = 8192

// newBackedCache builds a blockcache.Cache over an in-memory byte slice
// standing in for the device, sized to totalBlocks blocks.
func newBackedCache(totalBlocks uint) *blockcache.Cache {
	backing := make([]byte, testBlockSize*totalBlocks)
	fetch := func(block minfs.BlockNumber, buffer []byte) error {
		start := uint(block) * testBlockSize
		copy(buffer, backing[start:start+testBlockSize])
		return nil
	}
	flush := func(block minfs.BlockNumber, buffer []byte) error {
		start := uint(block) * testBlockSize
		copy(backing[start:start+testBlockSize], buffer)
		return nil
	}
	return blockcache.New(testBlockSize, totalBlocks, fetch, flush)
}

// newFormattedFS formats and mounts a fresh filesystem over totalBlocks
// blocks, with full read/write/insert/delete permission.
func newFormattedFS(t *testing.T, totalBlocks uint) *fs.FileSystem {
	t.Helper()
	cache := newBackedCache(totalBlocks)
	require.NoError(t, fs.Mkfs(cache))
	fsys, err := fs.Mount(cache, minfs.MountFlagsAllowAll)
	require.Nil(t, err)
	return fsys
}
