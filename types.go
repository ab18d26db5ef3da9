// Package minfs implements a small, block-based, on-disk filesystem modeled
// on classic Unix/ext2-style designs: direct and single-indirect inode block
// pointers, a bitmap-allocated free space map, and fixed-size directory
// records of variable name length.
//
// The package is organized leaf-first, mirroring the component breakdown in
// the design documentation: blockcache (pinned block cache), bitmap (packed
// bit array allocator), superblock (on-disk layout header), inode (fixed-size
// inode records), vcache (in-memory vnode cache), bmap (logical-to-physical
// block mapping), dirent (directory record traversal), and fs (the driver
// that ties everything together and exposes the VFS-facing capability set).
package minfs

import "os"

// InodeNumber identifies an inode slot in the inode table. Inode 0 is
// reserved; inode 1 is always the root directory.
type InodeNumber uint32

// BlockNumber identifies a physical block in the data region, or any other
// block on the device (bitmap block, inode table block, superblock).
type BlockNumber uint32

// ObjectType distinguishes the two kinds of inode this filesystem supports.
type ObjectType uint32

const (
	// TypeFile marks an inode as a regular file.
	TypeFile ObjectType = 1
	// TypeDirectory marks an inode as a directory.
	TypeDirectory ObjectType = 2
)

// FileStat is a platform-independent summary of an inode's metadata, handed
// back from getattr and directory listing operations.
type FileStat struct {
	InodeNumber InodeNumber
	Type        ObjectType
	Size        int64
	BlockCount  uint32
	LinkCount   uint32
	ModeFlags   os.FileMode
}

func (stat *FileStat) IsDir() bool {
	return stat.Type == TypeDirectory
}

func (stat *FileStat) IsFile() bool {
	return stat.Type == TypeFile
}

// FSStat is a platform-independent form of syscall.Statfs_t, returned by the
// driver's FSStat operation.
type FSStat struct {
	BlockSize     int64
	TotalBlocks   uint64
	BlocksFree    uint64
	Files         uint64
	FilesFree     uint64
	MaxNameLength int64
}

// MountFlags controls what a mounted filesystem is permitted to do: read,
// write, insert, and delete are tracked as separate permission bits.
type MountFlags int

const (
	MountFlagsAllowRead = MountFlags(1 << iota)
	MountFlagsAllowWrite
	MountFlagsAllowInsert
	MountFlagsAllowDelete
)

const MountFlagsAllowAll = MountFlagsAllowRead | MountFlagsAllowWrite |
	MountFlagsAllowInsert | MountFlagsAllowDelete

func (flags MountFlags) CanRead() bool  { return flags&MountFlagsAllowRead != 0 }
func (flags MountFlags) CanWrite() bool { return flags&MountFlagsAllowWrite != 0 }
