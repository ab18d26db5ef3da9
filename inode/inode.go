// Package inode defines the fixed-size on-disk inode record and the flat,
// N-per-block inode table layout built on top of it.
package inode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/errors"
)

// DirectBlocks is the number of direct block pointers an inode carries.
const DirectBlocks = 16

// IndirectBlocks is the number of single-indirect block pointers an inode
// carries.
const IndirectBlocks = 8

// Size is the fixed on-disk size of one inode record, in bytes.
const Size = 128

// MagicFile and MagicDir distinguish the two object types an inode can
// describe. A record whose Magic is 0 is an unallocated slot.
const MagicFile uint32 = 0x46494c45 // "FILE"
const MagicDir uint32 = 0x44495231  // "DIR1"

// PerBlock gives the number of packed inode records per block (K in the
// specification -- (ino % K) * InodeSize locates an inode within its block).
func PerBlock(blockSize uint32) uint32 {
	return blockSize / Size
}

// Inode is the fixed-size metadata record for one file or directory.
//
// DirentCount is meaningful only for directories: the number of in-use
// records (ino != 0) across the directory's data blocks. The wire format
// has no dedicated field for this in the original design; it is stored in
// the word right after Flags, ahead of Dnum, and the record's last 4 bytes
// remain reserved padding.
type Inode struct {
	Magic       uint32
	Size        uint32
	BlockCount  uint32
	LinkCount   uint32
	SeqNum      uint32
	Flags       uint32
	DirentCount uint32
	Dnum        [DirectBlocks]minfs.BlockNumber
	Inum        [IndirectBlocks]minfs.BlockNumber
}

// wireInode is the exact on-disk layout; Reserved pads the record to Size
// bytes.
type wireInode struct {
	Magic       uint32
	Size        uint32
	BlockCount  uint32
	LinkCount   uint32
	SeqNum      uint32
	Flags       uint32
	DirentCount uint32
	Dnum        [DirectBlocks]uint32
	Inum        [IndirectBlocks]uint32
	Reserved    [Size - 7*4 - DirectBlocks*4 - IndirectBlocks*4]byte
}

// IsAllocated reports whether this inode slot holds a live file or
// directory.
func (ino *Inode) IsAllocated() bool {
	return ino.Magic == MagicFile || ino.Magic == MagicDir
}

// IsDir reports whether this inode describes a directory.
func (ino *Inode) IsDir() bool {
	return ino.Magic == MagicDir
}

// IsFile reports whether this inode describes a regular file.
func (ino *Inode) IsFile() bool {
	return ino.Magic == MagicFile
}

// Type returns the ObjectType corresponding to this inode's magic, or 0 if
// the slot is unallocated.
func (ino *Inode) Type() minfs.ObjectType {
	switch ino.Magic {
	case MagicFile:
		return minfs.TypeFile
	case MagicDir:
		return minfs.TypeDirectory
	default:
		return 0
	}
}

// New returns a zeroed inode of the given type with LinkCount 1, ready to be
// handed to the inode allocator as the template for a freshly allocated
// slot.
func New(objType minfs.ObjectType) Inode {
	magic := MagicFile
	if objType == minfs.TypeDirectory {
		magic = MagicDir
	}
	return Inode{Magic: magic, LinkCount: 1}
}

// Encode serializes ino into exactly Size bytes.
func Encode(ino Inode) []byte {
	wire := wireInode{
		Magic:       ino.Magic,
		Size:        ino.Size,
		BlockCount:  ino.BlockCount,
		LinkCount:   ino.LinkCount,
		SeqNum:      ino.SeqNum,
		Flags:       ino.Flags,
		DirentCount: ino.DirentCount,
	}
	for i := range ino.Dnum {
		wire.Dnum[i] = uint32(ino.Dnum[i])
	}
	for i := range ino.Inum {
		wire.Inum[i] = uint32(ino.Inum[i])
	}

	out := make([]byte, Size)
	writer := bytewriter.New(out)
	_ = binary.Write(writer, binary.LittleEndian, &wire)
	return out
}

// Decode parses a Size-byte record into an Inode.
func Decode(data []byte) (Inode, errors.DriverError) {
	if len(data) != Size {
		return Inode{}, errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("inode record must be exactly %d bytes, got %d", Size, len(data)))
	}

	var wire wireInode
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &wire); err != nil {
		return Inode{}, errors.ErrIO.WrapError(err)
	}

	ino := Inode{
		Magic:       wire.Magic,
		Size:        wire.Size,
		BlockCount:  wire.BlockCount,
		LinkCount:   wire.LinkCount,
		SeqNum:      wire.SeqNum,
		Flags:       wire.Flags,
		DirentCount: wire.DirentCount,
	}
	for i := range wire.Dnum {
		ino.Dnum[i] = minfs.BlockNumber(wire.Dnum[i])
	}
	for i := range wire.Inum {
		ino.Inum[i] = minfs.BlockNumber(wire.Inum[i])
	}
	return ino, nil
}

// Locate computes the (tableBlock, byteOffset) of inode number ino within
// the inode table, given the table's starting block and the number of
// records packed per block.
func Locate(tableStartBlock minfs.BlockNumber, ino minfs.InodeNumber, perBlock uint32) (minfs.BlockNumber, uint32) {
	block := tableStartBlock + minfs.BlockNumber(uint32(ino)/perBlock)
	offset := (uint32(ino) % perBlock) * Size
	return block, offset
}
