package bmap_test

import (
	"testing"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/blockcache"
	"github.com/block-fs/minfs/bmap"
	"github.com/block-fs/minfs/errors"
	"github.com/block-fs/minfs/inode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockSize = 8192
const testTotalBlocks = 64

// sequentialAllocator hands out blocks in increasing order starting from
// next, backed by a real blockcache.Cache so Resolve's Get/GetZero calls
// behave exactly as they would against the fs package's allocator.
type sequentialAllocator struct {
	cache *blockcache.Cache
	next  minfs.BlockNumber
}

func (a *sequentialAllocator) NewBlock(hint minfs.BlockNumber) (minfs.BlockNumber, *blockcache.Handle, []byte, errors.DriverError) {
	bno := a.next
	a.next++
	handle, data, err := a.cache.GetZero(bno)
	return bno, handle, data, err
}

func newTestCache(t *testing.T) *blockcache.Cache {
	storage := make([]byte, testBlockSize*testTotalBlocks)
	return blockcache.New(
		testBlockSize,
		testTotalBlocks,
		func(block minfs.BlockNumber, buffer []byte) error {
			copy(buffer, storage[int(block)*testBlockSize:(int(block)+1)*testBlockSize])
			return nil
		},
		func(block minfs.BlockNumber, buffer []byte) error {
			copy(storage[int(block)*testBlockSize:(int(block)+1)*testBlockSize], buffer)
			return nil
		},
	)
}

func TestResolve_DirectBlockNoAllocReturnsNilOnHole(t *testing.T) {
	cache := newTestCache(t)
	ino := inode.New(minfs.TypeFile)

	handle, data, dirty, err := bmap.Resolve(cache, nil, &ino, 0)
	require.Nil(t, err)
	assert.Nil(t, handle)
	assert.Nil(t, data)
	assert.False(t, dirty)
}

func TestResolve_DirectBlockAllocatesAndUpdatesInode(t *testing.T) {
	cache := newTestCache(t)
	alloc := &sequentialAllocator{cache: cache, next: 10}
	ino := inode.New(minfs.TypeFile)

	handle, data, dirty, err := bmap.Resolve(cache, alloc, &ino, 2)
	require.Nil(t, err)
	require.NotNil(t, handle)
	require.NotNil(t, data)
	assert.True(t, dirty)
	assert.EqualValues(t, 10, ino.Dnum[2])
	assert.EqualValues(t, 1, ino.BlockCount)
	handle.Put(blockcache.PutFlags{Dirty: true})
}

func TestResolve_DirectBlockReturnsExisting(t *testing.T) {
	cache := newTestCache(t)
	ino := inode.New(minfs.TypeFile)
	ino.Dnum[5] = 20

	handle, data, dirty, err := bmap.Resolve(cache, nil, &ino, 5)
	require.Nil(t, err)
	require.NotNil(t, handle)
	require.NotNil(t, data)
	assert.False(t, dirty)
	handle.Put(blockcache.PutFlags{})
}

func TestResolve_IndirectBlockAllocatesIndirectAndData(t *testing.T) {
	cache := newTestCache(t)
	alloc := &sequentialAllocator{cache: cache, next: 30}
	ino := inode.New(minfs.TypeFile)

	n := uint32(inode.DirectBlocks) // first indirect-addressed block
	handle, data, dirty, err := bmap.Resolve(cache, alloc, &ino, n)
	require.Nil(t, err)
	require.NotNil(t, handle)
	require.NotNil(t, data)
	assert.True(t, dirty)
	assert.NotZero(t, ino.Inum[0])
	assert.EqualValues(t, 2, ino.BlockCount) // one indirect block + one data block
	handle.Put(blockcache.PutFlags{Dirty: true})
}

func TestResolve_IndirectBlockReusesExistingIndirect(t *testing.T) {
	cache := newTestCache(t)
	alloc := &sequentialAllocator{cache: cache, next: 30}
	ino := inode.New(minfs.TypeFile)

	n := uint32(inode.DirectBlocks)
	handle1, _, _, err := bmap.Resolve(cache, alloc, &ino, n)
	require.Nil(t, err)
	handle1.Put(blockcache.PutFlags{Dirty: true})

	firstIndirect := ino.Inum[0]

	handle2, _, dirty2, err := bmap.Resolve(cache, alloc, &ino, n+1)
	require.Nil(t, err)
	require.NotNil(t, handle2)
	assert.True(t, dirty2) // a new data block is still allocated, inode still dirty
	assert.Equal(t, firstIndirect, ino.Inum[0])
	handle2.Put(blockcache.PutFlags{Dirty: true})
}

func TestResolve_OutOfRangeBlockIndex(t *testing.T) {
	cache := newTestCache(t)
	ino := inode.New(minfs.TypeFile)

	_, _, _, err := bmap.Resolve(cache, nil, &ino, bmap.MaxFileBlocks)
	assert.NotNil(t, err)
}

func TestResolve_IndirectNoAllocReturnsNilOnHole(t *testing.T) {
	cache := newTestCache(t)
	ino := inode.New(minfs.TypeFile)

	handle, data, dirty, err := bmap.Resolve(cache, nil, &ino, uint32(inode.DirectBlocks)+5)
	require.Nil(t, err)
	assert.Nil(t, handle)
	assert.Nil(t, data)
	assert.False(t, dirty)
}
