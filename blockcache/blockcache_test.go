package blockcache_test

import (
	"bytes"
	"math/rand"
	"testing"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/blockcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(bytesPerBlock, totalBlocks uint, backing []byte, t *testing.T) *blockcache.Cache {
	if backing == nil {
		backing = make([]byte, bytesPerBlock*totalBlocks)
		_, err := rand.Read(backing)
		require.NoError(t, err)
	}

	fetch := func(block minfs.BlockNumber, buffer []byte) error {
		start := uint(block) * bytesPerBlock
		copy(buffer, backing[start:start+bytesPerBlock])
		return nil
	}
	flush := func(block minfs.BlockNumber, buffer []byte) error {
		start := uint(block) * bytesPerBlock
		copy(backing[start:start+bytesPerBlock], buffer)
		return nil
	}

	return blockcache.New(bytesPerBlock, totalBlocks, fetch, flush)
}

func TestCache_GetReturnsExistingContents(t *testing.T) {
	backing := bytes.Repeat([]byte{0xAB}, 8192*4)
	cache := newTestCache(8192, 4, backing, t)

	handle, buf, err := cache.Get(2)
	require.Nil(t, err)
	assert.Equal(t, byte(0xAB), buf[0])
	handle.Put(blockcache.PutFlags{})
}

func TestCache_GetZeroDoesNotReadStorage(t *testing.T) {
	backing := bytes.Repeat([]byte{0xFF}, 8192*4)
	cache := newTestCache(8192, 4, backing, t)

	handle, buf, err := cache.GetZero(1)
	require.Nil(t, err)
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
	handle.Put(blockcache.PutFlags{Dirty: true})
}

func TestCache_DoubleGetWithoutPutFails(t *testing.T) {
	cache := newTestCache(512, 4, nil, t)

	handle, _, err := cache.Get(0)
	require.Nil(t, err)

	_, _, err2 := cache.Get(0)
	assert.NotNil(t, err2)

	handle.Put(blockcache.PutFlags{})

	_, _, err3 := cache.Get(0)
	assert.Nil(t, err3)
}

func TestCache_GetOutOfRangeFails(t *testing.T) {
	cache := newTestCache(512, 4, nil, t)
	_, _, err := cache.Get(4)
	assert.NotNil(t, err)
}

func TestCache_DirtyPutPersistsOnFlush(t *testing.T) {
	backing := make([]byte, 512*2)
	cache := newTestCache(512, 2, backing, t)

	handle, buf, err := cache.Get(1)
	require.Nil(t, err)
	buf[0] = 0x42
	handle.Put(blockcache.PutFlags{Dirty: true})

	require.Nil(t, cache.FlushAll())
	assert.Equal(t, byte(0x42), backing[512])
}

func TestCache_CleanPutDoesNotPersist(t *testing.T) {
	backing := make([]byte, 512*2)
	cache := newTestCache(512, 2, backing, t)

	handle, buf, err := cache.Get(1)
	require.Nil(t, err)
	buf[0] = 0x42
	handle.Put(blockcache.PutFlags{Dirty: false})

	require.Nil(t, cache.FlushAll())
	assert.Equal(t, byte(0), backing[512])
}

func TestCache_Read(t *testing.T) {
	backing := bytes.Repeat([]byte{0x7}, 512*2)
	cache := newTestCache(512, 2, backing, t)

	dst := make([]byte, 10)
	require.Nil(t, cache.Read(0, dst, 5))
	assert.Equal(t, bytes.Repeat([]byte{0x7}, 10), dst)
}

func TestCache_MaxBlock(t *testing.T) {
	cache := newTestCache(512, 7, nil, t)
	assert.EqualValues(t, 7, cache.MaxBlock())
}
