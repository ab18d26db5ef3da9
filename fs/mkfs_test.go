package fs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/dirent"
	"github.com/block-fs/minfs/fs"
)

// TestMkfs_LayoutMatchesScenarioS1 formats a 1024-block device and checks
// the root inode fields called out for that device size (size, block count,
// link count, directory type). The region offsets are not inspected here.
func TestMkfs_LayoutMatchesScenarioS1(t *testing.T) {
	cache := newBackedCache(1024)
	require.NoError(t, fs.Mkfs(cache))

	fsys, err := fs.Mount(cache, minfs.MountFlagsAllowRead)
	require.Nil(t, err)

	root, err := fsys.RootVnode()
	require.Nil(t, err)

	attr, err := fsys.GetAttr(root)
	require.Nil(t, err)
	assert.Equal(t, int64(testBlockSize), attr.Size)
	assert.Equal(t, uint32(1), attr.BlockCount)
	assert.Equal(t, uint32(2), attr.LinkCount)
	assert.True(t, attr.IsDir())
}

// TestMkfs_RootHasDotAndDotDot exercises invariant 1: mkfs followed by
// mount yields a root directory with exactly two entries, both pointing to
// inode 1.
func TestMkfs_RootHasDotAndDotDot(t *testing.T) {
	fsys := newFormattedFS(t, 1024)
	root, err := fsys.RootVnode()
	require.Nil(t, err)

	var names []string
	var seen []minfs.InodeNumber
	err = fsys.ReadDir(root, new(dirent.Cursor), func(e fs.DirEntry) bool {
		names = append(names, e.Name)
		seen = append(seen, e.Ino)
		return true
	})
	require.Nil(t, err)

	assert.ElementsMatch(t, []string{".", ".."}, names)
	for _, ino := range seen {
		assert.Equal(t, fs.RootInodeNumber, ino)
	}
}

func TestMkfs_FormattingTwiceProducesAFreshRoot(t *testing.T) {
	cache := newBackedCache(512)
	require.NoError(t, fs.Mkfs(cache))
	require.NoError(t, fs.Mkfs(cache))

	fsys, err := fs.Mount(cache, minfs.MountFlagsAllowRead)
	require.Nil(t, err)
	require.NoError(t, fsys.Check())
}
