// Package vcache implements the in-memory vnode cache: a hash-bucketed table
// keyed by inode number, so repeated lookups of the same file or directory
// reuse one in-memory Vnode instead of re-reading the inode table on every
// operation. Bucket placement uses an FNV-1a mix of the inode number folded
// down to a small number of buckets, the same technique the reference
// implementation uses for its vnode hash.
package vcache

import (
	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/errors"
	"github.com/block-fs/minfs/inode"
)

// HashBits controls the number of buckets (1 << HashBits).
const HashBits = 8

// NumBuckets is the number of hash buckets in the vnode cache.
const NumBuckets = 1 << HashBits

// LoadFunc reads an inode record off disk, called on a cache miss.
type LoadFunc func(ino minfs.InodeNumber) (inode.Inode, errors.DriverError)

// Vnode is one cached, reference-counted in-memory handle onto an inode.
type Vnode struct {
	Ino      minfs.InodeNumber
	Inode    inode.Inode
	RefCount int
	Dirty    bool
}

// Cache is the hash-bucketed vnode table. It does not own block I/O; it
// calls back into LoadFunc on a miss and leaves writing modified inodes back
// to disk to the caller (the fs package's syncVnode).
type Cache struct {
	buckets [NumBuckets][]*Vnode
	load    LoadFunc
}

// New creates an empty vnode cache that loads missing inodes via load.
func New(load LoadFunc) *Cache {
	return &Cache{load: load}
}

// inoHash mixes an inode number with the FNV-1a prime and folds the result
// down to HashBits bits by repeatedly XORing the upper half into the lower
// half.
func inoHash(ino minfs.InodeNumber) uint32 {
	const fnvOffsetBasis uint32 = 2166136261
	const fnvPrime uint32 = 16777619

	h := fnvOffsetBasis
	v := uint32(ino)
	for i := 0; i < 4; i++ {
		h ^= v & 0xFF
		h *= fnvPrime
		v >>= 8
	}
	for bits := uint32(32); bits > HashBits; bits /= 2 {
		h = (h >> (bits / 2)) ^ (h & ((1 << (bits / 2)) - 1))
	}
	return h & (NumBuckets - 1)
}

// find scans a bucket for ino, returning nil if absent.
func find(bucket []*Vnode, ino minfs.InodeNumber) *Vnode {
	for _, vn := range bucket {
		if vn.Ino == ino {
			return vn
		}
	}
	return nil
}

// Get returns the cached vnode for ino, loading it from disk on a miss, and
// increments its reference count. Callers must call Put when done.
func (c *Cache) Get(ino minfs.InodeNumber) (*Vnode, errors.DriverError) {
	bucket := inoHash(ino)
	if vn := find(c.buckets[bucket], ino); vn != nil {
		vn.RefCount++
		return vn, nil
	}

	raw, err := c.load(ino)
	if err != nil {
		return nil, err
	}
	vn := &Vnode{Ino: ino, Inode: raw, RefCount: 1}
	c.buckets[bucket] = append(c.buckets[bucket], vn)
	return vn, nil
}

// Insert adds an already-constructed vnode to the cache -- used right after
// a fresh inode is allocated, so the newly minted vnode is visible to later
// Get calls without a round trip through disk.
func (c *Cache) Insert(vn *Vnode) {
	bucket := inoHash(vn.Ino)
	vn.RefCount = 1
	c.buckets[bucket] = append(c.buckets[bucket], vn)
}

// Put releases one reference to vn. When the reference count drops to zero
// the vnode is evicted from the cache; it is the caller's responsibility to
// have already flushed a Dirty vnode to disk before the last Put.
func (c *Cache) Put(vn *Vnode) {
	vn.RefCount--
	if vn.RefCount > 0 {
		return
	}
	bucket := inoHash(vn.Ino)
	entries := c.buckets[bucket]
	for i, entry := range entries {
		if entry == vn {
			c.buckets[bucket] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// Resident reports whether ino currently has a live vnode in the cache,
// without affecting its reference count. Used by tests.
func (c *Cache) Resident(ino minfs.InodeNumber) bool {
	return find(c.buckets[inoHash(ino)], ino) != nil
}
