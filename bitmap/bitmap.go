// Package bitmap implements the packed bit array allocator used for both the
// block free map and the inode free map: alloc/free/resize with a
// first-fit-from-hint scan, plus raw word access for copying a bitmap's
// contents to and from a cached disk block.
package bitmap

import (
	"github.com/boljen/go-bitmap"

	"github.com/block-fs/minfs/errors"
)

// FailedAllocation is the sentinel return value from Alloc when no bit is
// free in the scanned range.
const FailedAllocation = ^uint(0)

// Bitmap is a densely packed bit array sized to cover some region -- the
// block map covers all blocks, the inode map covers all inodes. It never
// commits itself to disk; the owner (the fs package's allocators) copies the
// modified word range into a cached block and marks that block dirty.
type Bitmap struct {
	bits  bitmap.Bitmap
	nbits uint
}

// Init creates a Bitmap with room for nbits bits, all initially clear.
func Init(nbits uint) *Bitmap {
	return &Bitmap{
		bits:  bitmap.New(int(nbits)),
		nbits: nbits,
	}
}

// FromBytes wraps an existing packed byte slice (e.g. just read from a
// bitmap block) as a Bitmap of nbits bits.
func FromBytes(data []byte, nbits uint) *Bitmap {
	return &Bitmap{
		bits:  bitmap.Bitmap(data),
		nbits: nbits,
	}
}

// Destroy releases the bitmap's backing storage. Provided for symmetry with
// Init; the garbage collector does the real work.
func (b *Bitmap) Destroy() {
	b.bits = nil
	b.nbits = 0
}

// Len returns the logical number of addressable bits.
func (b *Bitmap) Len() uint {
	return b.nbits
}

// Resize changes the logical bit count. Growing preserves all existing bits
// and clears the new ones; shrinking preserves the bits that remain
// addressable. The backing storage remains a multiple of the bitmap
// library's word size, but Len() bounds which bits this type will address.
func (b *Bitmap) Resize(nbits uint) {
	newBits := bitmap.New(int(nbits))
	copyCount := nbits
	if b.nbits < copyCount {
		copyCount = b.nbits
	}
	for i := uint(0); i < copyCount; i++ {
		newBits.Set(int(i), b.bits.Get(int(i)))
	}
	b.bits = newBits
	b.nbits = nbits
}

// Get returns whether bit i is set. It does not check i against Len(); an
// index past the backing storage panics. Every caller in this module first
// validates bit indices it derives from on-disk structures.
func (b *Bitmap) Get(i uint) bool {
	return b.bits.Get(int(i))
}

// Set marks bit i as allocated.
func (b *Bitmap) Set(i uint) {
	b.bits.Set(int(i), true)
}

// Clr marks bit i as free.
func (b *Bitmap) Clr(i uint) {
	b.bits.Set(int(i), false)
}

// Alloc performs a first-fit scan for a clear bit, starting at hint and
// continuing to the end of the bitmap. It does not wrap around to 0; callers
// that want the two-pass "retry from 0 on failure" behavior implement that
// themselves (see fs.newBlock), since whether a second pass is
// desirable is a policy decision that belongs to the caller, not the
// bitmap.
func (b *Bitmap) Alloc(hint uint) uint {
	for i := hint; i < b.nbits; i++ {
		if !b.bits.Get(int(i)) {
			b.bits.Set(int(i), true)
			return i
		}
	}
	return FailedAllocation
}

// Bytes returns the raw packed bytes backing this bitmap, suitable for
// copying verbatim into a cached disk block.
func (b *Bitmap) Bytes() []byte {
	return b.bits.Data(false)
}

// SetBytes bulk-overwrites the bitmap's backing bytes, used when loading a
// bitmap region back in from disk at mount time.
func (b *Bitmap) SetBytes(data []byte) errors.DriverError {
	if len(data) != len(b.bits.Data(false)) {
		return errors.ErrInvalidArgument.WithMessage(
			"SetBytes: byte slice length does not match bitmap storage size")
	}
	copy(b.bits, data)
	return nil
}
