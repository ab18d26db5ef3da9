// Package fs ties the block cache, bitmap allocators, inode table, vnode
// cache, block map, and directory layer together into the mountable
// filesystem driver: mount, format, consistency check, and the vnode-level
// operations exposed to a VFS caller.
//
// FileSystem is not safe for concurrent use. Per the single-threaded
// cooperative model, callers must serialize all operations against one
// mount themselves; the core takes no internal locks.
package fs

import (
	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/bitmap"
	"github.com/block-fs/minfs/blockcache"
	"github.com/block-fs/minfs/errors"
	"github.com/block-fs/minfs/inode"
	"github.com/block-fs/minfs/superblock"
	"github.com/block-fs/minfs/vcache"
)

// RootInodeNumber is the inode number of the filesystem root directory,
// fixed at format time.
const RootInodeNumber minfs.InodeNumber = 1

// FileSystem is a mounted minfs-go filesystem: the superblock, the two
// bitmap allocators, and the vnode cache layered over a block cache.
type FileSystem struct {
	cache    *blockcache.Cache
	super    superblock.Superblock
	blockMap *bitmap.Bitmap
	inodeMap *bitmap.Bitmap
	vnodes   *vcache.Cache
	flags    minfs.MountFlags
}

// Vnode is the VFS-facing handle onto one open file or directory. Multiple
// Vnode values may reference the same underlying vcache.Vnode; Release
// drops one reference.
type Vnode struct {
	fs *FileSystem
	vn *vcache.Vnode

	// SparseReads resolves the source's read-allocates-holes quirk (spec
	// Open Question): false preserves the original behavior of allocating
	// a zero block when a read crosses a hole; true returns zeros without
	// allocating. Defaults to false for fidelity with the reference
	// implementation.
	SparseReads bool
}

// Ino returns the inode number this vnode wraps.
func (v *Vnode) Ino() minfs.InodeNumber { return v.vn.Ino }

// Mount reads the superblock from block 0 of cache and loads both bitmaps
// into memory, returning a FileSystem ready to serve vnode operations.
func Mount(cache *blockcache.Cache, flags minfs.MountFlags) (*FileSystem, errors.DriverError) {
	handle, data, err := cache.Get(0)
	if err != nil {
		return nil, err
	}
	sbCopy := make([]byte, len(data))
	copy(sbCopy, data)
	handle.Put(blockcache.PutFlags{})

	sb, err := superblock.Decode(sbCopy)
	if err != nil {
		return nil, err
	}

	fsys := &FileSystem{
		cache: cache,
		super: sb,
		flags: flags,
	}
	fsys.vnodes = vcache.New(fsys.loadInode)

	if err := fsys.loadBitmap(&fsys.blockMap, sb.BlockBitmapBlock, uint(sb.BlockCount)); err != nil {
		return nil, err
	}
	if err := fsys.loadBitmap(&fsys.inodeMap, sb.InodeBitmapBlock, uint(sb.InodeCount)); err != nil {
		return nil, err
	}

	return fsys, nil
}

// loadBitmap reads ceil(nbits/8) bytes starting at startBlock into a fresh
// in-memory Bitmap.
func (fs *FileSystem) loadBitmap(dst **bitmap.Bitmap, startBlock uint32, nbits uint) errors.DriverError {
	byteLen := (nbits + 7) / 8
	buf := make([]byte, byteLen)
	read := uint(0)
	block := startBlock
	for read < byteLen {
		chunk := uint(fs.super.BlockSize)
		if byteLen-read < chunk {
			chunk = byteLen - read
		}
		if err := fs.cache.Read(minfs.BlockNumber(block), buf[read:read+chunk], 0); err != nil {
			return err
		}
		read += chunk
		block++
	}
	*dst = bitmap.FromBytes(buf, nbits)
	return nil
}

// loadInode reads one inode record off disk -- the vcache.LoadFunc used on
// a cache miss.
func (fs *FileSystem) loadInode(ino minfs.InodeNumber) (inode.Inode, errors.DriverError) {
	if ino < 1 || uint32(ino) >= fs.super.InodeCount {
		return inode.Inode{}, errors.ErrOutOfRange.WithMessage("inode number out of range")
	}
	perBlock := inode.PerBlock(fs.super.BlockSize)
	blockNum, offset := inode.Locate(fs.super.InodeTableBlock, ino, perBlock)

	raw := make([]byte, inode.Size)
	if err := fs.cache.Read(blockNum, raw, int(offset)); err != nil {
		return inode.Inode{}, err
	}
	return inode.Decode(raw)
}

// syncVnode writes vn's in-memory inode back to the inode table. Failing
// to read back the inode table block here is a reserved invariant
// violation: on a filesystem that mounted successfully, the inode table
// block backing an already-resident vnode cannot become unreadable.
func (fs *FileSystem) syncVnode(vn *vcache.Vnode) {
	perBlock := inode.PerBlock(fs.super.BlockSize)
	blockNum, offset := inode.Locate(fs.super.InodeTableBlock, vn.Ino, perBlock)

	handle, data, err := fs.cache.Get(blockNum)
	if err != nil {
		panic("minfs: cannot sync vnode, inode table block unreadable: " + err.Error())
	}
	copy(data[offset:offset+inode.Size], inode.Encode(vn.Inode))
	handle.Put(blockcache.PutFlags{Dirty: true})
}

// GetVnode returns a reference-counted handle onto ino, loading it from
// disk on first access.
func (fs *FileSystem) GetVnode(ino minfs.InodeNumber) (*Vnode, errors.DriverError) {
	vn, err := fs.vnodes.Get(ino)
	if err != nil {
		return nil, err
	}
	return &Vnode{fs: fs, vn: vn}, nil
}

// newVnode wraps a just-allocated inode record into a vnode and inserts it
// into the cache directly, so the record allocInode already wrote to disk
// doesn't get immediately re-read back through a cache-miss Get.
func (fs *FileSystem) newVnode(ino minfs.InodeNumber, record inode.Inode) *Vnode {
	vn := &vcache.Vnode{Ino: ino, Inode: record}
	fs.vnodes.Insert(vn)
	return &Vnode{fs: fs, vn: vn}
}

// RootVnode returns a handle onto the root directory.
func (fs *FileSystem) RootVnode() (*Vnode, errors.DriverError) {
	return fs.GetVnode(RootInodeNumber)
}

// FSStat reports aggregate filesystem usage.
func (fs *FileSystem) FSStat() minfs.FSStat {
	freeBlocks := uint64(0)
	for i := uint(0); i < fs.blockMap.Len(); i++ {
		if !fs.blockMap.Get(i) {
			freeBlocks++
		}
	}
	freeInodes := uint64(0)
	for i := uint(0); i < fs.inodeMap.Len(); i++ {
		if !fs.inodeMap.Get(i) {
			freeInodes++
		}
	}
	return minfs.FSStat{
		BlockSize:     int64(fs.super.BlockSize),
		TotalBlocks:   uint64(fs.super.BlockCount),
		BlocksFree:    freeBlocks,
		Files:         uint64(fs.super.InodeCount),
		FilesFree:     freeInodes,
		MaxNameLength: 255,
	}
}

// FlushAll writes every dirty cached block to storage.
func (fs *FileSystem) FlushAll() errors.DriverError {
	return fs.cache.FlushAll()
}
