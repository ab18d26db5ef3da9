package fs

import (
	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/bitmap"
	"github.com/block-fs/minfs/blockcache"
	"github.com/block-fs/minfs/dirent"
	"github.com/block-fs/minfs/errors"
	"github.com/block-fs/minfs/inode"
	"github.com/block-fs/minfs/superblock"
)

// InodeCount is the fixed number of inode slots a freshly formatted
// filesystem carries, independent of device size.
const InodeCount = 32768

// Mkfs formats cache as a fresh filesystem: it lays out the inode bitmap,
// block bitmap, and inode table regions, reserves the blocks and inodes
// they and the root directory occupy, writes the root directory's first
// data block, and writes the superblock last so a crash partway through
// formatting leaves no valid superblock behind to be mistaken for a
// complete filesystem.
func Mkfs(cache *blockcache.Cache) errors.DriverError {
	blocks := uint32(cache.MaxBlock())
	const inodes = InodeCount

	inoblks := (inodes + inode.PerBlock(superblock.BlockSize) - 1) / inode.PerBlock(superblock.BlockSize)
	abmblks := (blocks + superblock.BlockSize*8 - 1) / (superblock.BlockSize * 8)

	sb := superblock.Superblock{
		Magic0:           superblock.Magic0,
		Magic1:           superblock.Magic1,
		Version:          superblock.Version,
		Flags:            superblock.FlagClean,
		BlockSize:        superblock.BlockSize,
		InodeSize:        superblock.InodeSize,
		BlockCount:       blocks,
		InodeCount:       inodes,
		InodeBitmapBlock: 8,
		BlockBitmapBlock: 16,
	}
	sb.InodeTableBlock = sb.BlockBitmapBlock + ((abmblks + 8) &^ 7)
	sb.DataBlock = sb.InodeTableBlock + inoblks

	blockMap := bitmap.Init(uint(sb.BlockCount))
	inodeMap := bitmap.Init(uint(sb.InodeCount))

	// Root directory's first data block. A failure here is the
	// specification's second reserved panic: mkfs has just computed a
	// layout that claims this block is free, so GetZero failing means the
	// device is smaller than blocks claimed, an invariant violation rather
	// than a recoverable error.
	rootBlockHandle, rootBlockData, err := cache.GetZero(minfs.BlockNumber(sb.DataBlock))
	if err != nil {
		panic("minfs: failed to allocate root directory's first data block: " + err.Error())
	}
	dirent.InitBlock(rootBlockData, RootInodeNumber, RootInodeNumber)
	rootBlockHandle.Put(blockcache.PutFlags{Dirty: true})

	inodeMap.Set(0)
	inodeMap.Set(uint(RootInodeNumber))

	for n := uint32(0); n <= sb.DataBlock; n++ {
		blockMap.Set(uint(n))
	}

	if err := writeBitmapBlocks(cache, blockMap, sb.BlockBitmapBlock, abmblks, sb.BlockSize); err != nil {
		return err
	}
	var ibmblks uint32 = (inodes + superblock.BlockSize*8 - 1) / (superblock.BlockSize * 8)
	if err := writeBitmapBlocks(cache, inodeMap, sb.InodeBitmapBlock, ibmblks, sb.BlockSize); err != nil {
		return err
	}

	for n := uint32(0); n < inoblks; n++ {
		handle, _, err := cache.GetZero(minfs.BlockNumber(sb.InodeTableBlock + n))
		if err != nil {
			return err
		}
		handle.Put(blockcache.PutFlags{Dirty: true})
	}

	root := inode.New(minfs.TypeDirectory)
	root.Size = sb.BlockSize
	root.BlockCount = 1
	root.LinkCount = 2
	root.DirentCount = 2
	root.Dnum[0] = minfs.BlockNumber(sb.DataBlock)

	perBlock := inode.PerBlock(sb.BlockSize)
	tableBlock, tableOffset := inode.Locate(minfs.BlockNumber(sb.InodeTableBlock), RootInodeNumber, perBlock)
	handle, data, err := cache.Get(tableBlock)
	if err != nil {
		return err
	}
	copy(data[tableOffset:tableOffset+inode.Size], inode.Encode(root))
	handle.Put(blockcache.PutFlags{Dirty: true})

	// FlushAll writes blocks in index order, which would put block 0 on
	// storage first; flush everything else before the superblock exists.
	if err := cache.FlushAll(); err != nil {
		return err
	}

	sbHandle, sbData, err := cache.GetZero(0)
	if err != nil {
		return err
	}
	copy(sbData, superblock.Encode(sb))
	sbHandle.Put(blockcache.PutFlags{Dirty: true})

	return cache.Flush(0)
}

// writeBitmapBlocks copies bm's packed bytes out across nblocks starting at
// startBlock, one block at a time.
func writeBitmapBlocks(cache *blockcache.Cache, bm *bitmap.Bitmap, startBlock uint32, nblocks uint32, blockSize uint32) errors.DriverError {
	bytes := bm.Bytes()
	for n := uint32(0); n < nblocks; n++ {
		handle, data, err := cache.GetZero(minfs.BlockNumber(startBlock + n))
		if err != nil {
			return err
		}
		start := uint(n) * uint(blockSize)
		if start < uint(len(bytes)) {
			end := start + uint(blockSize)
			if end > uint(len(bytes)) {
				end = uint(len(bytes))
			}
			copy(data, bytes[start:end])
		}
		handle.Put(blockcache.PutFlags{Dirty: true})
	}
	return nil
}
