// Package blockcache provides a pinned-page cache over an underlying block
// device. It is the only component that touches the device directly; every
// other package in minfs-go goes through a *Cache handle.
package blockcache

import (
	"fmt"

	"github.com/boljen/go-bitmap"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/errors"
)

// FetchBlockCallback writes the contents of a single block from the
// underlying storage into buffer. buffer is guaranteed to be exactly one
// block long.
type FetchBlockCallback func(block minfs.BlockNumber, buffer []byte) error

// FlushBlockCallback writes buffer, which is exactly one block long, to the
// underlying storage at the given block.
type FlushBlockCallback func(block minfs.BlockNumber, buffer []byte) error

// PutFlags controls what happens when a handle is released back to the
// cache.
type PutFlags struct {
	// Dirty schedules the block for write-back. Until Flush or FlushAll is
	// called, the modified contents live only in the cache's arena.
	Dirty bool
}

// Handle is a pinned reference to one cached block. A block may have at most
// one outstanding Handle at a time; Get blocks the caller (by returning an
// error) rather than handing out a second concurrent view, since the driver
// above is single-threaded and an unreleased handle almost always indicates
// a bug in the caller.
type Handle struct {
	block minfs.BlockNumber
	cache *Cache
}

// Block returns the physical block number this handle refers to.
func (h *Handle) Block() minfs.BlockNumber {
	return h.block
}

// Put releases the pin on the handle's block. If flags.Dirty is set, the
// block is scheduled for write-back on the next Flush/FlushAll. Put is a
// no-op if called more than once on the same handle; the caller is still
// responsible for never holding stale *Handle values after calling Put.
func (h *Handle) Put(flags PutFlags) {
	if h.cache == nil {
		return
	}
	h.cache.release(h.block, flags.Dirty)
	h.cache = nil
}

// Cache is a pinned-page cache over bytesPerBlock-sized blocks of an
// underlying device, reached only through fetch/flush callbacks -- the cache
// itself never opens a file or deals with an io.ReadWriteSeeker, so it can sit
// equally well over a real file, an in-memory buffer, or a test double.
type Cache struct {
	loaded        bitmap.Bitmap
	dirty         bitmap.Bitmap
	pinned        map[minfs.BlockNumber]bool
	data          []byte
	fetch         FetchBlockCallback
	flush         FlushBlockCallback
	bytesPerBlock uint
	totalBlocks   uint
}

// New creates a Cache of totalBlocks blocks, each bytesPerBlock bytes.
func New(
	bytesPerBlock uint,
	totalBlocks uint,
	fetchCb FetchBlockCallback,
	flushCb FlushBlockCallback,
) *Cache {
	return &Cache{
		loaded:        bitmap.New(int(totalBlocks)),
		dirty:         bitmap.New(int(totalBlocks)),
		pinned:        make(map[minfs.BlockNumber]bool),
		data:          make([]byte, bytesPerBlock*totalBlocks),
		fetch:         fetchCb,
		flush:         flushCb,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}
}

// BytesPerBlock returns the size of a single block, in bytes.
func (cache *Cache) BytesPerBlock() uint {
	return cache.bytesPerBlock
}

// MaxBlock returns the device capacity, in blocks.
func (cache *Cache) MaxBlock() minfs.BlockNumber {
	return minfs.BlockNumber(cache.totalBlocks)
}

func (cache *Cache) checkBlock(block minfs.BlockNumber) error {
	if uint(block) >= cache.totalBlocks {
		return fmt.Errorf(
			"block %d not in range [0, %d)", block, cache.totalBlocks)
	}
	return nil
}

func (cache *Cache) slice(block minfs.BlockNumber) []byte {
	start := uint(block) * cache.bytesPerBlock
	return cache.data[start : start+cache.bytesPerBlock]
}

// Get returns a handle to block, loading it from storage first if it isn't
// already cached. The returned buffer reflects the block's existing
// contents.
func (cache *Cache) Get(block minfs.BlockNumber) (*Handle, []byte, errors.DriverError) {
	if err := cache.checkBlock(block); err != nil {
		return nil, nil, errors.ErrOutOfRange.WithMessage(err.Error())
	}
	if cache.pinned[block] {
		return nil, nil, errors.ErrBadState.WithMessage(
			fmt.Sprintf("block %d already has an outstanding handle", block))
	}

	buffer := cache.slice(block)
	if !cache.loaded.Get(int(block)) {
		if err := cache.fetch(block, buffer); err != nil {
			return nil, nil, errors.ErrIO.WithMessage(
				fmt.Sprintf("failed to load block %d: %s", block, err.Error()))
		}
		cache.loaded.Set(int(block), true)
	}

	cache.pinned[block] = true
	return &Handle{block: block, cache: cache}, buffer, nil
}

// GetZero returns a handle to block with its contents zeroed out, without
// reading the existing data from storage. Used when formatting or
// allocating a fresh data/indirect block.
func (cache *Cache) GetZero(block minfs.BlockNumber) (*Handle, []byte, errors.DriverError) {
	if err := cache.checkBlock(block); err != nil {
		return nil, nil, errors.ErrOutOfRange.WithMessage(err.Error())
	}
	if cache.pinned[block] {
		return nil, nil, errors.ErrBadState.WithMessage(
			fmt.Sprintf("block %d already has an outstanding handle", block))
	}

	buffer := cache.slice(block)
	for i := range buffer {
		buffer[i] = 0
	}
	cache.loaded.Set(int(block), true)
	cache.pinned[block] = true
	return &Handle{block: block, cache: cache}, buffer, nil
}

// Read performs a synchronous slice copy of len(dst) bytes, starting off
// bytes into block, without pinning the block beyond the call.
func (cache *Cache) Read(block minfs.BlockNumber, dst []byte, off int) errors.DriverError {
	handle, buffer, err := cache.Get(block)
	if err != nil {
		return err
	}
	defer handle.Put(PutFlags{})

	if off < 0 || off+len(dst) > len(buffer) {
		return errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("read of %d bytes at offset %d overruns block", len(dst), off))
	}
	copy(dst, buffer[off:off+len(dst)])
	return nil
}

func (cache *Cache) release(block minfs.BlockNumber, dirty bool) {
	if !cache.pinned[block] {
		return
	}
	delete(cache.pinned, block)
	if dirty {
		cache.dirty.Set(int(block), true)
	}
}

// Flush writes block out to storage if it is dirty, and marks it clean.
func (cache *Cache) Flush(block minfs.BlockNumber) errors.DriverError {
	if err := cache.checkBlock(block); err != nil {
		return errors.ErrOutOfRange.WithMessage(err.Error())
	}
	if !cache.dirty.Get(int(block)) {
		return nil
	}

	if err := cache.flush(block, cache.slice(block)); err != nil {
		return errors.ErrIO.WithMessage(
			fmt.Sprintf("failed to flush block %d: %s", block, err.Error()))
	}
	cache.dirty.Set(int(block), false)
	return nil
}

// FlushAll writes out every dirty block and marks them all clean.
func (cache *Cache) FlushAll() errors.DriverError {
	for i := 0; i < int(cache.totalBlocks); i++ {
		if err := cache.Flush(minfs.BlockNumber(i)); err != nil {
			return err
		}
	}
	return nil
}
