package fs_test

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/dirent"
	"github.com/block-fs/minfs/errors"
	"github.com/block-fs/minfs/fs"
)

// TestCreateThenLookup exercises invariant 5: after create(name) followed
// by lookup(name), the returned vnode's inode number matches the directory
// record.
func TestCreateThenLookup(t *testing.T) {
	fsys := newFormattedFS(t, 1024)
	root, err := fsys.RootVnode()
	require.Nil(t, err)

	created, err := fsys.Create(root, "foo", minfs.TypeFile)
	require.Nil(t, err)

	found, err := fsys.Lookup(root, "foo")
	require.Nil(t, err)
	assert.Equal(t, created.Ino(), found.Ino())
}

// TestWriteRoundTrip exercises invariant 7: write followed by a read of the
// same length and offset returns the same bytes.
func TestWriteRoundTrip(t *testing.T) {
	fsys := newFormattedFS(t, 1024)
	root, err := fsys.RootVnode()
	require.Nil(t, err)

	file, err := fsys.Create(root, "foo", minfs.TypeFile)
	require.Nil(t, err)

	n, err := fsys.Write(file, []byte("hello"), 0)
	require.Nil(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = fsys.Read(file, buf, 0)
	require.Nil(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	attr, err := fsys.GetAttr(file)
	require.Nil(t, err)
	assert.Equal(t, int64(5), attr.Size)
}

// TestRemountPreservesData mirrors scenario S2: create, write, unmount (by
// dropping the FileSystem and remounting over the same cache), then the
// data is still there.
func TestRemountPreservesData(t *testing.T) {
	cache := newBackedCache(1024)
	require.NoError(t, fs.Mkfs(cache))
	fsys, err := fs.Mount(cache, minfs.MountFlagsAllowAll)
	require.Nil(t, err)

	root, err := fsys.RootVnode()
	require.Nil(t, err)
	file, err := fsys.Create(root, "foo", minfs.TypeFile)
	require.Nil(t, err)
	_, err = fsys.Write(file, []byte("hello"), 0)
	require.Nil(t, err)
	require.NoError(t, fsys.FlushAll())

	remounted, err := fs.Mount(cache, minfs.MountFlagsAllowAll)
	require.Nil(t, err)
	remountedRoot, err := remounted.RootVnode()
	require.Nil(t, err)
	refound, err := remounted.Lookup(remountedRoot, "foo")
	require.Nil(t, err)

	buf := make([]byte, 5)
	n, err := remounted.Read(refound, buf, 0)
	require.Nil(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))

	attr, err := remounted.GetAttr(refound)
	require.Nil(t, err)
	assert.Equal(t, int64(5), attr.Size)
}

// TestCreateDuplicateNameFails mirrors scenario S3: creating a file then a
// directory (or vice versa) under the same name fails and consumes no new
// inode.
func TestCreateDuplicateNameFails(t *testing.T) {
	fsys := newFormattedFS(t, 1024)
	root, err := fsys.RootVnode()
	require.Nil(t, err)

	statBefore := fsys.FSStat()

	_, err = fsys.Create(root, "a", minfs.TypeDirectory)
	require.Nil(t, err)

	_, err = fsys.Create(root, "a", minfs.TypeFile)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, errors.ErrExists)

	statAfter := fsys.FSStat()
	assert.Equal(t, statBefore.FilesFree-1, statAfter.FilesFree)
}

// TestCreateFailsWhenDirectoryIsFull mirrors scenario S4: once append can no
// longer find a slot in the root directory's single block, create fails,
// but lookups for both missing and existing names are unaffected.
func TestCreateFailsWhenDirectoryIsFull(t *testing.T) {
	fsys := newFormattedFS(t, 1024)
	root, err := fsys.RootVnode()
	require.Nil(t, err)

	created := 0
	for i := 0; i < 4096; i++ {
		name := randomName(i)
		_, err := fsys.Create(root, name, minfs.TypeFile)
		if err != nil {
			break
		}
		created++
	}
	require.Greater(t, created, 0)

	_, err = fsys.Lookup(root, "does-not-exist")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	firstName := randomName(0)
	_, err = fsys.Lookup(root, firstName)
	assert.Nil(t, err)
}

// TestUnlinkThenLookupFails mirrors scenario S5: unlink removes the entry
// and decrements dirent_count; a subsequent lookup reports not-found.
func TestUnlinkThenLookupFails(t *testing.T) {
	fsys := newFormattedFS(t, 1024)
	root, err := fsys.RootVnode()
	require.Nil(t, err)

	_, err = fsys.Create(root, "x", minfs.TypeFile)
	require.Nil(t, err)

	require.Nil(t, fsys.Unlink(root, "x"))

	_, err = fsys.Lookup(root, "x")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	var gotDirentCount uint32
	require.Nil(t, fsys.ReadDir(root, new(dirent.Cursor), func(e fs.DirEntry) bool {
		gotDirentCount++
		return true
	}))
	assert.Equal(t, uint32(2), gotDirentCount)
}

// TestWriteAcrossBlocksSpansDirectAndFillsPointers mirrors scenario S6: a
// 100 KiB file at an 8 KiB block size occupies 13 direct blocks and reads
// back byte for byte.
func TestWriteAcrossBlocksSpansDirectAndFillsPointers(t *testing.T) {
	fsys := newFormattedFS(t, 4096)
	root, err := fsys.RootVnode()
	require.Nil(t, err)
	file, err := fsys.Create(root, "big", minfs.TypeFile)
	require.Nil(t, err)

	prng := rand.New(rand.NewSource(42))
	payload := make([]byte, 100*1024)
	_, _ = prng.Read(payload)

	half := len(payload) / 2
	n, err := fsys.Write(file, payload[:half], 0)
	require.Nil(t, err)
	assert.Equal(t, half, n)
	n, err = fsys.Write(file, payload[half:], int64(half))
	require.Nil(t, err)
	assert.Equal(t, len(payload)-half, n)

	attr, err := fsys.GetAttr(file)
	require.Nil(t, err)
	assert.Equal(t, int64(len(payload)), attr.Size)
	assert.Equal(t, uint32(13), attr.BlockCount)

	readback := make([]byte, len(payload))
	n, err = fsys.Read(file, readback, 0)
	require.Nil(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, readback)
}

// TestUnlinkNonEmptyDirectoryFails verifies that removing a directory still
// holding entries beyond "." and ".." reports bad state rather than
// silently orphaning its contents.
func TestUnlinkNonEmptyDirectoryFails(t *testing.T) {
	fsys := newFormattedFS(t, 1024)
	root, err := fsys.RootVnode()
	require.Nil(t, err)

	sub, err := fsys.Create(root, "sub", minfs.TypeDirectory)
	require.Nil(t, err)
	_, err = fsys.Create(sub, "leaf", minfs.TypeFile)
	require.Nil(t, err)

	err = fsys.Unlink(root, "sub")
	assert.ErrorIs(t, err, errors.ErrBadState)
}

// TestLookupOnFileFails verifies the directory-only enforcement on lookup.
func TestLookupOnFileFails(t *testing.T) {
	fsys := newFormattedFS(t, 1024)
	root, err := fsys.RootVnode()
	require.Nil(t, err)
	file, err := fsys.Create(root, "foo", minfs.TypeFile)
	require.Nil(t, err)

	_, err = fsys.Lookup(file, "anything")
	assert.ErrorIs(t, err, errors.ErrNotADirectory)
}

// TestIoctlIsNotSupported verifies ioctl always fails, per the source's
// fixed behavior.
func TestIoctlIsNotSupported(t *testing.T) {
	fsys := newFormattedFS(t, 1024)
	root, err := fsys.RootVnode()
	require.Nil(t, err)

	err = fsys.Ioctl(root, 0, nil)
	assert.ErrorIs(t, err, errors.ErrNotSupported)
}

func randomName(i int) string {
	return "file-" + strconv.Itoa(i)
}
