package fs

import (
	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/blockcache"
	"github.com/block-fs/minfs/errors"
	"github.com/block-fs/minfs/inode"
)

// blockAllocator implements bmap.Allocator over the filesystem's block
// bitmap and cache, matching minfs_new_block: allocate a bit (retrying from
// 0 on a hinted miss), commit the owning bitmap block, then hand back a
// freshly zeroed data block.
type blockAllocator struct {
	fs *FileSystem
}

func (a *blockAllocator) NewBlock(hint minfs.BlockNumber) (minfs.BlockNumber, *blockcache.Handle, []byte, errors.DriverError) {
	return a.fs.newBlock(hint)
}

// newBlock allocates one free block from the block bitmap, committing the
// owning bitmap block to the cache before returning a zeroed handle onto
// the newly claimed block.
func (fs *FileSystem) newBlock(hint minfs.BlockNumber) (minfs.BlockNumber, *blockcache.Handle, []byte, errors.DriverError) {
	bno := fs.blockMap.Alloc(uint(hint))
	if bno == ^uint(0) && hint != 0 {
		bno = fs.blockMap.Alloc(0)
	}
	if bno == ^uint(0) {
		return 0, nil, nil, errors.ErrNoSpace.WithMessage("no free data blocks remain")
	}
	blockNum := minfs.BlockNumber(bno)

	bitmapBlock, bitmapData, err := fs.getBlockBitmapBlock(blockNum)
	if err != nil {
		fs.blockMap.Clr(bno)
		return 0, nil, nil, err
	}

	handle, data, err := fs.cache.GetZero(blockNum)
	if err != nil {
		fs.blockMap.Clr(bno)
		bitmapBlock.Put(blockcache.PutFlags{})
		return 0, nil, nil, err
	}

	fs.copyBlockBitmapWords(bitmapData, blockNum)
	bitmapBlock.Put(blockcache.PutFlags{Dirty: true})

	return blockNum, handle, data, nil
}

// allocInode allocates a free inode number from the inode bitmap, commits
// the inode bitmap block and writes template into the inode table at its
// new slot, bitmap first and inode-table second.
func (fs *FileSystem) allocInode(template inode.Inode) (minfs.InodeNumber, errors.DriverError) {
	bit := fs.inodeMap.Alloc(0)
	if bit == ^uint(0) {
		return 0, errors.ErrNoSpace.WithMessage("no free inodes remain")
	}
	ino := minfs.InodeNumber(bit)

	bitmapBlock, bitmapData, err := fs.getInodeBitmapBlock(ino)
	if err != nil {
		fs.inodeMap.Clr(bit)
		return 0, err
	}

	tableBlockNum, offset := inode.Locate(fs.super.InodeTableBlock, ino, inode.PerBlock(fs.super.BlockSize))
	tableBlock, tableData, err := fs.cache.Get(tableBlockNum)
	if err != nil {
		fs.inodeMap.Clr(bit)
		bitmapBlock.Put(blockcache.PutFlags{})
		return 0, err
	}

	copy(tableData[offset:offset+inode.Size], inode.Encode(template))

	fs.copyInodeBitmapWords(bitmapData, ino)
	bitmapBlock.Put(blockcache.PutFlags{Dirty: true})
	tableBlock.Put(blockcache.PutFlags{Dirty: true})

	return ino, nil
}

// getBlockBitmapBlock returns the cached bitmap block covering bno.
func (fs *FileSystem) getBlockBitmapBlock(bno minfs.BlockNumber) (*blockcache.Handle, []byte, errors.DriverError) {
	bitsPerBlock := fs.super.BlockSize * 8
	blockNum := fs.super.BlockBitmapBlock + uint32(bno)/bitsPerBlock
	return fs.cache.Get(minfs.BlockNumber(blockNum))
}

// getInodeBitmapBlock returns the cached bitmap block covering ino.
func (fs *FileSystem) getInodeBitmapBlock(ino minfs.InodeNumber) (*blockcache.Handle, []byte, errors.DriverError) {
	bitsPerBlock := fs.super.BlockSize * 8
	blockNum := fs.super.InodeBitmapBlock + uint32(ino)/bitsPerBlock
	return fs.cache.Get(minfs.BlockNumber(blockNum))
}

// copyBlockBitmapWords copies the word range of the in-memory block bitmap
// that covers bno's containing bitmap block into dst.
func (fs *FileSystem) copyBlockBitmapWords(dst []byte, bno minfs.BlockNumber) {
	bitsPerBlock := uint(fs.super.BlockSize * 8)
	which := uint(bno) / bitsPerBlock
	copyBitmapRegion(dst, fs.blockMap.Bytes(), which, uint(fs.super.BlockSize))
}

// copyInodeBitmapWords copies the word range of the in-memory inode bitmap
// that covers ino's containing bitmap block into dst.
func (fs *FileSystem) copyInodeBitmapWords(dst []byte, ino minfs.InodeNumber) {
	bitsPerBlock := uint(fs.super.BlockSize * 8)
	which := uint(ino) / bitsPerBlock
	copyBitmapRegion(dst, fs.inodeMap.Bytes(), which, uint(fs.super.BlockSize))
}

// copyBitmapRegion copies the which'th blockSize-byte chunk of src into
// dst, or as much of it as exists -- a bitmap for a small, just-formatted
// device may be shorter than a full block.
func copyBitmapRegion(dst, src []byte, which, blockSize uint) {
	start := which * blockSize
	if start >= uint(len(src)) {
		return
	}
	end := start + blockSize
	if end > uint(len(src)) {
		end = uint(len(src))
	}
	copy(dst, src[start:end])
}
