// Package dirent implements the directory record format and the
// callback-driven traversal engine that walks a directory's blocks one
// record at a time. Every directory mutation -- lookup, insertion, removal
// -- is expressed as a Callback handed to ForEach, mirroring the reference
// implementation's vn_dir_for_each/cb_dir_* split.
package dirent

import (
	"encoding/binary"
	"fmt"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/blockcache"
	"github.com/block-fs/minfs/bmap"
	"github.com/block-fs/minfs/errors"
	"github.com/block-fs/minfs/inode"
)

// HeaderSize is the fixed portion of a directory record: ino, reclen,
// namelen, type. The name follows immediately and the whole record is
// padded out to a 4-byte boundary.
const HeaderSize = 4 + 2 + 1 + 1

// Record is a decoded directory entry.
type Record struct {
	Ino     minfs.InodeNumber
	Reclen  uint16
	Namelen uint8
	Type    uint8
	Name    string
}

// AlignedRecLen returns the 4-byte-aligned record length needed to hold a
// name of the given length.
func AlignedRecLen(nameLen int) uint16 {
	raw := HeaderSize + nameLen
	return uint16((raw + 3) &^ 3)
}

// Decode parses exactly one record from data, which must be Reclen bytes
// long (the full on-disk slot, name included).
func Decode(data []byte) (Record, errors.DriverError) {
	if len(data) < HeaderSize {
		return Record{}, errors.ErrFileSystemCorrupted.WithMessage(
			"directory record shorter than header")
	}
	reclen := binary.LittleEndian.Uint16(data[4:6])
	if int(reclen) != len(data) {
		return Record{}, errors.ErrFileSystemCorrupted.WithMessage(
			fmt.Sprintf("directory record reclen %d does not match slot size %d", reclen, len(data)))
	}

	rec := Record{
		Ino:     minfs.InodeNumber(binary.LittleEndian.Uint32(data[0:4])),
		Reclen:  reclen,
		Namelen: data[6],
		Type:    data[7],
	}
	if rec.Namelen > 0 {
		end := HeaderSize + int(rec.Namelen)
		if end > len(data) {
			return Record{}, errors.ErrFileSystemCorrupted.WithMessage(
				"directory record namelen overruns its slot")
		}
		rec.Name = string(data[HeaderSize:end])
	}
	return rec, nil
}

// writeRecordInPlace overwrites raw (exactly one slot) with a record of
// reclen == len(raw).
func writeRecordInPlace(raw []byte, ino minfs.InodeNumber, objType uint8, name string) {
	binary.LittleEndian.PutUint32(raw[0:4], uint32(ino))
	binary.LittleEndian.PutUint16(raw[4:6], uint16(len(raw)))
	raw[6] = uint8(len(name))
	raw[7] = objType
	n := copy(raw[HeaderSize:], name)
	for i := HeaderSize + n; i < len(raw); i++ {
		raw[i] = 0
	}
}

// InitBlock writes a freshly zeroed directory block's initial contents: a
// "." record pointing to self, a ".." record pointing to parent, and a
// trailing empty record covering the rest of the block.
func InitBlock(block []byte, self, parent minfs.InodeNumber) {
	dotLen := AlignedRecLen(1)
	dotdotLen := AlignedRecLen(2)

	writeRecordInPlace(block[:dotLen], self, uint8(minfs.TypeDirectory), ".")
	writeRecordInPlace(block[dotLen:dotLen+dotdotLen], parent, uint8(minfs.TypeDirectory), "..")
	writeRecordInPlace(block[dotLen+dotdotLen:], 0, 0, "")
}

// Action is a callback's verdict on how ForEach should proceed.
type Action int

const (
	// ActionNext continues the scan at the following record.
	ActionNext Action = iota
	// ActionDone stops the scan and returns the callback's status; the
	// current block is released without being marked dirty.
	ActionDone
	// ActionSave stops the scan, releases the current block dirty, and
	// reports success.
	ActionSave
	// ActionSaveSync is like ActionSave but additionally asks the caller to
	// persist the owning inode (ForEach reports this back via its syncInode
	// return value; actually writing the inode table is the fs package's
	// job).
	ActionSaveSync
)

// Callback is invoked once per directory record. raw is the exact byte
// range (within the cached block) backing rec; callbacks that mutate a
// record write through raw.
type Callback func(rec Record, raw []byte) (Action, errors.DriverError)

// ForEach walks every record of ino's directory blocks in order, invoking
// cb for each one, following the sanity rules from the record format: a
// record must fit in what remains of its block and must be 4-byte aligned;
// an in-use record's namelen must leave room for its name inside reclen.
// Violating either terminates the scan with a corruption error without
// mutating anything.
//
// ForEach returns whether the owning inode should be synced to disk
// (requested by a SAVE_SYNC verdict), and any error from storage, a
// malformed record, or the callback itself.
func ForEach(cache *blockcache.Cache, ino *inode.Inode, cb Callback) (syncInode bool, err errors.DriverError) {
	for blockIdx := uint32(0); blockIdx < ino.BlockCount; blockIdx++ {
		handle, data, _, resolveErr := bmap.Resolve(cache, nil, ino, blockIdx)
		if resolveErr != nil {
			return false, resolveErr
		}
		if handle == nil {
			continue
		}

		action, cbErr := scanBlock(data, cb)
		switch action {
		case ActionNext:
			handle.Put(blockcache.PutFlags{})
		case ActionDone:
			handle.Put(blockcache.PutFlags{})
			return false, cbErr
		case ActionSave:
			handle.Put(blockcache.PutFlags{Dirty: true})
			return false, nil
		case ActionSaveSync:
			handle.Put(blockcache.PutFlags{Dirty: true})
			return true, nil
		}
	}
	return false, errors.ErrNotFound.WithMessage("directory traversal reached the end without a match")
}

func scanBlock(data []byte, cb Callback) (Action, errors.DriverError) {
	offset := 0
	for offset+HeaderSize <= len(data) {
		remaining := len(data) - offset
		reclen := binary.LittleEndian.Uint16(data[offset+4 : offset+6])
		if int(reclen) > remaining || reclen%4 != 0 || int(reclen) < HeaderSize {
			return ActionDone, errors.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf("malformed directory record at offset %d: reclen=%d remaining=%d", offset, reclen, remaining))
		}

		slot := data[offset : offset+int(reclen)]
		rec, decodeErr := Decode(slot)
		if decodeErr != nil {
			return ActionDone, decodeErr
		}
		if rec.Ino != 0 && (rec.Namelen == 0 || int(rec.Namelen) > int(reclen)-HeaderSize) {
			return ActionDone, errors.ErrFileSystemCorrupted.WithMessage(
				fmt.Sprintf("malformed directory record at offset %d: bad namelen %d for reclen %d", offset, rec.Namelen, reclen))
		}

		action, cbErr := cb(rec, slot)
		if action != ActionNext {
			return action, cbErr
		}
		offset += int(reclen)
	}
	return ActionNext, nil
}

// FindResult receives the match from FindCallback.
type FindResult struct {
	Found bool
	Ino   minfs.InodeNumber
	Type  uint8
}

// FindCallback matches a record by exact name and reports it via out.
func FindCallback(name string, out *FindResult) Callback {
	return func(rec Record, _ []byte) (Action, errors.DriverError) {
		if rec.Ino != 0 && int(rec.Namelen) == len(name) && rec.Name == name {
			out.Found = true
			out.Ino = rec.Ino
			out.Type = rec.Type
			return ActionDone, nil
		}
		return ActionNext, nil
	}
}

// UnlinkResult receives the ino that was removed.
type UnlinkResult struct {
	Removed   bool
	RemovedIno minfs.InodeNumber
}

// UnlinkCallback matches a record by name, zeroes its ino (leaving the slot
// free for reuse by a later Append), and decrements *direntCount. Callers
// must already have validated any child-vnode preconditions (directories
// must be empty) and must reject "." and ".." before invoking this.
func UnlinkCallback(name string, direntCount *uint32, out *UnlinkResult) Callback {
	return func(rec Record, raw []byte) (Action, errors.DriverError) {
		if rec.Ino == 0 || int(rec.Namelen) != len(name) || rec.Name != name {
			return ActionNext, nil
		}
		out.Removed = true
		out.RemovedIno = rec.Ino
		binary.LittleEndian.PutUint32(raw[0:4], 0)
		*direntCount--
		return ActionSaveSync, nil
	}
}

// AppendResult reports whether Append found room.
type AppendResult struct {
	Inserted bool
}

// AppendCallback inserts a new record for (ino, objType, name) into the
// first slot with room: an empty slot at least as large as the new record,
// or an in-use slot whose trailing padding can be split off. direntCount is
// incremented when an insertion succeeds.
func AppendCallback(ino minfs.InodeNumber, objType uint8, name string, direntCount *uint32, out *AppendResult) Callback {
	needed := AlignedRecLen(len(name))
	return func(rec Record, raw []byte) (Action, errors.DriverError) {
		if rec.Ino == 0 {
			if needed > rec.Reclen {
				return ActionNext, nil
			}
			writeRecordInPlace(raw, ino, objType, name)
			*direntCount++
			out.Inserted = true
			return ActionSaveSync, nil
		}

		used := AlignedRecLen(int(rec.Namelen))
		if rec.Reclen-used < needed {
			return ActionNext, nil
		}

		binary.LittleEndian.PutUint16(raw[4:6], used)
		tail := raw[used:]
		writeRecordInPlace(tail, ino, objType, name)
		*direntCount++
		out.Inserted = true
		return ActionSaveSync, nil
	}
}
