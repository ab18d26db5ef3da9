package dirent

import (
	"encoding/binary"
	"fmt"

	"github.com/block-fs/minfs/blockcache"
	"github.com/block-fs/minfs/bmap"
	"github.com/block-fs/minfs/errors"
	"github.com/block-fs/minfs/inode"
)

// Cursor is the opaque resumption token a readdir caller holds across
// calls. Index -1 means the cursor has been poisoned, either by a
// directory modification detected via SeqNum mismatch or by a malformed
// record encountered mid-walk.
type Cursor struct {
	Used          bool
	Index         int32
	SizeRemaining uint32
	SeqNum        uint32
}

// poisoned reports whether this cursor has already been invalidated.
func (c *Cursor) poisoned() bool {
	return c.Used && c.Index < 0
}

// ReadDir resumes a directory listing from cur, calling emit once per
// live record. emit returns false to stop early (e.g. the caller's output
// buffer is full); ReadDir then saves the cursor mid-block so the next call
// picks up where this one left off. A cursor whose SeqNum no longer matches
// ino.SeqNum is poisoned and yields zero further entries without an error,
// since that is how a concurrent modification of the directory is
// detected. A malformed record mid-walk also poisons the cursor, but is
// reported as an error.
func ReadDir(cache *blockcache.Cache, ino *inode.Inode, cur *Cursor, emit func(Record) bool) errors.DriverError {
	if cur.poisoned() {
		return nil
	}
	if cur.Used && cur.SeqNum != ino.SeqNum {
		cur.Index = -1
		return nil
	}

	blockSize := cache.BytesPerBlock()
	var blockIdx uint32
	var byteOffset uint32
	if cur.Used {
		blockIdx = uint32(cur.Index)
		byteOffset = uint32(blockSize) - cur.SizeRemaining
	}

	for blockIdx < ino.BlockCount {
		handle, data, _, err := bmap.Resolve(cache, nil, ino, blockIdx)
		if err != nil {
			cur.Index = -1
			return err
		}
		if handle == nil {
			blockIdx++
			byteOffset = 0
			continue
		}

		offset := int(byteOffset)
		for offset+HeaderSize <= len(data) {
			remaining := len(data) - offset
			reclen := binary.LittleEndian.Uint16(data[offset+4 : offset+6])
			if int(reclen) > remaining || reclen%4 != 0 || int(reclen) < HeaderSize {
				handle.Put(blockcache.PutFlags{})
				cur.Index = -1
				return errors.ErrFileSystemCorrupted.WithMessage(
					fmt.Sprintf("malformed directory record at offset %d while reading", offset))
			}

			slot := data[offset : offset+int(reclen)]
			rec, decodeErr := Decode(slot)
			if decodeErr != nil {
				handle.Put(blockcache.PutFlags{})
				cur.Index = -1
				return decodeErr
			}

			if rec.Ino != 0 {
				if !emit(rec) {
					handle.Put(blockcache.PutFlags{})
					cur.Used = true
					cur.Index = int32(blockIdx)
					cur.SizeRemaining = uint32(len(data) - offset)
					cur.SeqNum = ino.SeqNum
					return nil
				}
			}
			offset += int(reclen)
		}

		handle.Put(blockcache.PutFlags{})
		blockIdx++
		byteOffset = 0
	}

	cur.Used = true
	cur.Index = int32(blockIdx)
	cur.SizeRemaining = 0
	cur.SeqNum = ino.SeqNum
	return nil
}
