// Package bmap maps a logical block index within a file to the physical
// block that backs it, walking an inode's direct pointers and, past those,
// a single level of indirection. This is the Go analog of the reference
// implementation's vn_get_block: direct lookups are a plain array index,
// indirect lookups split the logical index into a pointer-block slot and an
// offset within that block.
package bmap

import (
	"encoding/binary"
	"fmt"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/blockcache"
	"github.com/block-fs/minfs/errors"
	"github.com/block-fs/minfs/inode"
)

// PointersPerIndirect is the number of uint32 block pointers that fit in one
// indirect block at the fixed block size.
const PointersPerIndirect = superblockBlockSize / 4

// superblockBlockSize mirrors superblock.BlockSize without importing that
// package, since bmap only needs the constant and importing superblock here
// would be a layering inversion (superblock describes on-disk layout, bmap
// describes file layout; neither depends on the other in the reference
// design).
const superblockBlockSize = 8192

// MaxFileBlocks is the largest logical block index (exclusive) a file can
// address with D direct and I indirect pointers.
const MaxFileBlocks = inode.DirectBlocks + inode.IndirectBlocks*PointersPerIndirect

// Allocator hands out a fresh, zeroed data block, committing the block
// bitmap in the same step. It is implemented by the fs package, which is
// the only component that holds both the block cache and the block bitmap.
type Allocator interface {
	NewBlock(hint minfs.BlockNumber) (minfs.BlockNumber, *blockcache.Handle, []byte, errors.DriverError)
}

func readEntry(data []byte, j uint32) minfs.BlockNumber {
	return minfs.BlockNumber(binary.LittleEndian.Uint32(data[j*4 : j*4+4]))
}

func writeEntry(data []byte, j uint32, bno minfs.BlockNumber) {
	binary.LittleEndian.PutUint32(data[j*4:j*4+4], uint32(bno))
}

// Resolve finds the physical block backing logical block n of ino. If that
// block doesn't exist yet and alloc is non-nil, it is allocated (along with
// any indirect block needed to address it) and ino is updated in place --
// the caller is responsible for writing ino back to the inode table
// afterwards when dirty is true. If the block doesn't exist and alloc is
// nil, Resolve returns a nil handle and no error, signaling a hole/EOF.
func Resolve(
	cache *blockcache.Cache,
	alloc Allocator,
	ino *inode.Inode,
	n uint32,
) (handle *blockcache.Handle, data []byte, dirty bool, err errors.DriverError) {
	if n >= MaxFileBlocks {
		return nil, nil, false, errors.ErrOutOfRange.WithMessage(
			fmt.Sprintf("block index %d exceeds max file size of %d blocks", n, MaxFileBlocks))
	}

	if n < inode.DirectBlocks {
		return resolveDirect(cache, alloc, ino, n)
	}
	return resolveIndirect(cache, alloc, ino, n-inode.DirectBlocks)
}

func resolveDirect(
	cache *blockcache.Cache,
	alloc Allocator,
	ino *inode.Inode,
	n uint32,
) (*blockcache.Handle, []byte, bool, errors.DriverError) {
	bno := ino.Dnum[n]
	if bno != 0 {
		handle, data, err := cache.Get(bno)
		return handle, data, false, err
	}
	if alloc == nil {
		return nil, nil, false, nil
	}

	newBno, handle, data, err := alloc.NewBlock(0)
	if err != nil {
		return nil, nil, false, err
	}
	ino.Dnum[n] = newBno
	ino.BlockCount++
	return handle, data, true, nil
}

func resolveIndirect(
	cache *blockcache.Cache,
	alloc Allocator,
	ino *inode.Inode,
	n uint32,
) (*blockcache.Handle, []byte, bool, errors.DriverError) {
	i := n / PointersPerIndirect
	j := n % PointersPerIndirect

	if i >= inode.IndirectBlocks {
		return nil, nil, false, errors.ErrOutOfRange.WithMessage(
			fmt.Sprintf("indirect block index %d out of range", i))
	}

	ibno := ino.Inum[i]
	var iHandle *blockcache.Handle
	var iData []byte
	inodeDirty := false

	if ibno == 0 {
		if alloc == nil {
			return nil, nil, false, nil
		}
		newIbno, handle, data, err := alloc.NewBlock(0)
		if err != nil {
			return nil, nil, false, err
		}
		ino.Inum[i] = newIbno
		ino.BlockCount++
		inodeDirty = true
		iHandle, iData = handle, data
	} else {
		handle, data, err := cache.Get(ibno)
		if err != nil {
			return nil, nil, false, err
		}
		iHandle, iData = handle, data
	}

	bno := readEntry(iData, j)
	var handle *blockcache.Handle
	var data []byte
	iDirty := inodeDirty
	var resolveErr errors.DriverError

	if bno != 0 {
		handle, data, resolveErr = cache.Get(bno)
	} else if alloc != nil {
		var newBno minfs.BlockNumber
		newBno, handle, data, resolveErr = alloc.NewBlock(0)
		if resolveErr == nil {
			writeEntry(iData, j, newBno)
			ino.BlockCount++
			iDirty = true
		}
	}

	iHandle.Put(blockcache.PutFlags{Dirty: iDirty})
	if resolveErr != nil {
		return nil, nil, false, resolveErr
	}
	return handle, data, iDirty, nil
}
