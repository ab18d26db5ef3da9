// Package superblock decodes and encodes the fixed structure at block 0 that
// describes block size, inode size, counts, and the layout offsets of the
// three metadata regions (inode bitmap, block bitmap, inode table).
package superblock

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"

	"github.com/block-fs/minfs/errors"
)

const Magic0 uint32 = 0x6d696e66 // "minf"
const Magic1 uint32 = 0x73763100 // "sv1\0"
const Version uint32 = 1

// FlagClean is the clean bit in Superblock.Flags. mkfs always writes it set;
// nothing else in this module changes it (Check reports damage without
// touching the superblock).
const FlagClean uint32 = 1

// BlockSize is the fixed logical block size used throughout minfs-go.
const BlockSize = 8192

// InodeSize is the fixed on-disk size of one inode record.
const InodeSize = 128

// Superblock is the persisted structure at block 0.
type Superblock struct {
	Magic0      uint32
	Magic1      uint32
	Version     uint32
	Flags       uint32
	BlockSize   uint32
	InodeSize   uint32
	BlockCount  uint32
	InodeCount  uint32
	InodeBitmapBlock uint32 // ibm_block
	BlockBitmapBlock uint32 // abm_block
	InodeTableBlock  uint32 // ino_block
	DataBlock        uint32 // dat_block
}

// wireSuperblock is the exact byte-for-byte layout written to disk; the
// trailing Reserved array pads the record out to a full block.
type wireSuperblock struct {
	Magic0           uint32
	Magic1           uint32
	Version         uint32
	Flags           uint32
	BlockSize       uint32
	InodeSize       uint32
	BlockCount      uint32
	InodeCount      uint32
	InodeBitmapBlock uint32
	BlockBitmapBlock uint32
	InodeTableBlock  uint32
	DataBlock        uint32
	Reserved        [BlockSize - 12*4]byte
}

// Encode serializes sb into exactly BlockSize bytes.
func Encode(sb Superblock) []byte {
	wire := wireSuperblock{
		Magic0:           sb.Magic0,
		Magic1:           sb.Magic1,
		Version:          sb.Version,
		Flags:            sb.Flags,
		BlockSize:        sb.BlockSize,
		InodeSize:        sb.InodeSize,
		BlockCount:       sb.BlockCount,
		InodeCount:       sb.InodeCount,
		InodeBitmapBlock: sb.InodeBitmapBlock,
		BlockBitmapBlock: sb.BlockBitmapBlock,
		InodeTableBlock:  sb.InodeTableBlock,
		DataBlock:        sb.DataBlock,
	}

	out := make([]byte, BlockSize)
	writer := bytewriter.New(out)
	// out is exactly BlockSize bytes and wireSuperblock encodes to exactly
	// BlockSize bytes, so this write cannot fail.
	_ = binary.Write(writer, binary.LittleEndian, &wire)
	return out
}

// Decode parses a BlockSize-byte block into a Superblock, validating the
// magic numbers and the ordering invariant
// ibm_block < abm_block < ino_block < dat_block.
func Decode(block []byte) (Superblock, errors.DriverError) {
	if len(block) != BlockSize {
		return Superblock{}, errors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("superblock must be exactly %d bytes, got %d", BlockSize, len(block)))
	}

	var wire wireSuperblock
	if err := binary.Read(bytes.NewReader(block), binary.LittleEndian, &wire); err != nil {
		return Superblock{}, errors.ErrIO.WrapError(err)
	}

	sb := Superblock{
		Magic0:           wire.Magic0,
		Magic1:           wire.Magic1,
		Version:          wire.Version,
		Flags:            wire.Flags,
		BlockSize:        wire.BlockSize,
		InodeSize:        wire.InodeSize,
		BlockCount:       wire.BlockCount,
		InodeCount:       wire.InodeCount,
		InodeBitmapBlock: wire.InodeBitmapBlock,
		BlockBitmapBlock: wire.BlockBitmapBlock,
		InodeTableBlock:  wire.InodeTableBlock,
		DataBlock:        wire.DataBlock,
	}

	if sb.Magic0 != Magic0 || sb.Magic1 != Magic1 {
		return Superblock{}, errors.ErrFileSystemCorrupted.WithMessage(
			"superblock magic mismatch")
	}

	if err := sb.Validate(); err != nil {
		return Superblock{}, err
	}
	return sb, nil
}

// Validate checks the layout-ordering invariant:
// ibm_block < abm_block < ino_block < dat_block, and that the block/inode
// counts are nonzero.
func (sb *Superblock) Validate() errors.DriverError {
	if !(sb.InodeBitmapBlock < sb.BlockBitmapBlock &&
		sb.BlockBitmapBlock < sb.InodeTableBlock &&
		sb.InodeTableBlock < sb.DataBlock) {
		return errors.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf(
				"layout regions out of order: ibm=%d abm=%d ino=%d dat=%d",
				sb.InodeBitmapBlock, sb.BlockBitmapBlock, sb.InodeTableBlock, sb.DataBlock))
	}
	if sb.BlockCount == 0 || sb.InodeCount == 0 {
		return errors.ErrFileSystemCorrupted.WithMessage(
			"block count and inode count must be nonzero")
	}
	if sb.DataBlock >= sb.BlockCount {
		return errors.ErrFileSystemCorrupted.WithMessage(
			"data region starts beyond the end of the device")
	}
	return nil
}

// IsClean reports whether the FlagClean bit is set.
func (sb *Superblock) IsClean() bool {
	return sb.Flags&FlagClean != 0
}
