package fs

import (
	stderrors "errors"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/blockcache"
	"github.com/block-fs/minfs/bmap"
	"github.com/block-fs/minfs/dirent"
	"github.com/block-fs/minfs/errors"
	"github.com/block-fs/minfs/inode"
)

// DirEntry is one entry yielded by ReadDir: enough to satisfy a VFS
// getdents-style call without loading the child's full inode.
type DirEntry struct {
	Ino  minfs.InodeNumber
	Type minfs.ObjectType
	Name string
}

// VnodeOps is the capability set a VFS caller drives a mounted filesystem
// through. FileSystem implements it directly.
type VnodeOps interface {
	Release(v *Vnode) errors.DriverError
	Open(v *Vnode, flags minfs.MountFlags) errors.DriverError
	Close(v *Vnode) errors.DriverError
	Read(v *Vnode, buf []byte, offset int64) (int, errors.DriverError)
	Write(v *Vnode, buf []byte, offset int64) (int, errors.DriverError)
	Lookup(dir *Vnode, name string) (*Vnode, errors.DriverError)
	GetAttr(v *Vnode) (minfs.FileStat, errors.DriverError)
	ReadDir(dir *Vnode, cur *dirent.Cursor, emit func(DirEntry) bool) errors.DriverError
	Create(dir *Vnode, name string, objType minfs.ObjectType) (*Vnode, errors.DriverError)
	Ioctl(v *Vnode, request uint32, arg []byte) errors.DriverError
	Unlink(dir *Vnode, name string) errors.DriverError
}

var _ VnodeOps = (*FileSystem)(nil)

// Release drops one reference to v, evicting it from the vnode cache once
// the last reference is gone.
func (fs *FileSystem) Release(v *Vnode) errors.DriverError {
	fs.vnodes.Put(v.vn)
	return nil
}

// Open validates the requested access against the mount's flags.
func (fs *FileSystem) Open(v *Vnode, flags minfs.MountFlags) errors.DriverError {
	if flags.CanWrite() && !fs.flags.CanWrite() {
		return errors.ErrReadOnly.WithMessage("filesystem mounted without write permission")
	}
	return nil
}

// Close is a no-op; there is no per-open state beyond the vnode reference
// Release manages.
func (fs *FileSystem) Close(v *Vnode) errors.DriverError {
	return nil
}

// Ioctl always fails: the core defines no ioctl requests.
func (fs *FileSystem) Ioctl(v *Vnode, request uint32, arg []byte) errors.DriverError {
	return errors.ErrNotSupported.WithMessage("ioctl is not supported")
}

func requireDirectory(v *Vnode) errors.DriverError {
	if !v.vn.Inode.IsDir() {
		return errors.ErrNotADirectory.WithMessage("operation requires a directory")
	}
	return nil
}

// GetAttr summarizes v's inode.
func (fs *FileSystem) GetAttr(v *Vnode) (minfs.FileStat, errors.DriverError) {
	ino := &v.vn.Inode
	return minfs.FileStat{
		InodeNumber: v.vn.Ino,
		Type:        ino.Type(),
		Size:        int64(ino.Size),
		BlockCount:  ino.BlockCount,
		LinkCount:   ino.LinkCount,
	}, nil
}

// Lookup resolves name inside the directory dir.
func (fs *FileSystem) Lookup(dir *Vnode, name string) (*Vnode, errors.DriverError) {
	if err := requireDirectory(dir); err != nil {
		return nil, err
	}

	var found dirent.FindResult
	_, err := dirent.ForEach(fs.cache, &dir.vn.Inode, dirent.FindCallback(name, &found))
	if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	if !found.Found {
		return nil, errors.ErrNotFound.WithMessage("no such file or directory: " + name)
	}
	return fs.GetVnode(found.Ino)
}

// Create adds a new file or directory named name inside dir.
func (fs *FileSystem) Create(dir *Vnode, name string, objType minfs.ObjectType) (*Vnode, errors.DriverError) {
	if err := requireDirectory(dir); err != nil {
		return nil, err
	}

	var found dirent.FindResult
	_, err := dirent.ForEach(fs.cache, &dir.vn.Inode, dirent.FindCallback(name, &found))
	if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
		return nil, err
	}
	if found.Found {
		return nil, errors.ErrExists.WithMessage("already exists: " + name)
	}

	template := inode.New(objType)
	newIno, allocErr := fs.allocInode(template)
	if allocErr != nil {
		return nil, allocErr
	}
	child := fs.newVnode(newIno, template)

	var appendResult dirent.AppendResult
	_, appendErr := dirent.ForEach(fs.cache, &dir.vn.Inode, dirent.AppendCallback(
		newIno, uint8(objType), name, &dir.vn.Inode.DirentCount, &appendResult))
	if appendErr != nil {
		fs.vnodes.Put(child.vn)
		return nil, errors.ErrNoSpace.WithMessage("directory has no room for a new entry")
	}
	dir.vn.Inode.SeqNum++
	fs.syncVnode(dir.vn)

	if objType == minfs.TypeDirectory {
		alloc := &blockAllocator{fs: fs}
		bno, handle, data, blockErr := alloc.NewBlock(0)
		if blockErr != nil {
			panic("minfs: failed to allocate root data block for new directory: " + blockErr.Error())
		}
		dirent.InitBlock(data, newIno, dir.vn.Ino)
		handle.Put(blockcache.PutFlags{Dirty: true})

		child.vn.Inode.Dnum[0] = bno
		child.vn.Inode.BlockCount = 1
		child.vn.Inode.DirentCount = 2
		child.vn.Inode.Size = fs.super.BlockSize
		fs.syncVnode(child.vn)
	}

	return child, nil
}

// Unlink removes name from dir. Callers must not ask to remove "." or
// "..".
func (fs *FileSystem) Unlink(dir *Vnode, name string) errors.DriverError {
	if err := requireDirectory(dir); err != nil {
		return err
	}
	if name == "." || name == ".." {
		return errors.ErrInvalidArgument.WithMessage("cannot unlink . or ..")
	}

	var found dirent.FindResult
	_, err := dirent.ForEach(fs.cache, &dir.vn.Inode, dirent.FindCallback(name, &found))
	if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
		return err
	}
	if !found.Found {
		return errors.ErrNotFound.WithMessage("no such file or directory: " + name)
	}

	child, err := fs.GetVnode(found.Ino)
	if err != nil {
		return err
	}

	if child.vn.Inode.IsDir() {
		if child.vn.Inode.DirentCount != 2 {
			fs.vnodes.Put(child.vn)
			return errors.ErrBadState.WithMessage("directory is not empty")
		}
		child.vn.Inode.LinkCount = 0
	} else {
		child.vn.Inode.LinkCount--
	}
	fs.syncVnode(child.vn)
	fs.vnodes.Put(child.vn)

	var unlinkResult dirent.UnlinkResult
	_, err = dirent.ForEach(fs.cache, &dir.vn.Inode, dirent.UnlinkCallback(name, &dir.vn.Inode.DirentCount, &unlinkResult))
	if err != nil {
		return err
	}
	dir.vn.Inode.SeqNum++
	fs.syncVnode(dir.vn)
	return nil
}

// ReadDir lists dir's entries starting from cur, emitting one DirEntry per
// live record.
func (fs *FileSystem) ReadDir(dir *Vnode, cur *dirent.Cursor, emit func(DirEntry) bool) errors.DriverError {
	if err := requireDirectory(dir); err != nil {
		return err
	}
	return dirent.ReadDir(fs.cache, &dir.vn.Inode, cur, func(rec dirent.Record) bool {
		return emit(DirEntry{Ino: rec.Ino, Type: minfs.ObjectType(rec.Type), Name: rec.Name})
	})
}

// Read copies up to len(buf) bytes starting at offset into buf, truncating
// at the current file size, and returns the number of bytes copied.
func (fs *FileSystem) Read(v *Vnode, buf []byte, offset int64) (int, errors.DriverError) {
	ino := &v.vn.Inode
	if offset < 0 {
		return 0, errors.ErrInvalidArgument.WithMessage("negative read offset")
	}
	if offset >= int64(ino.Size) {
		return 0, nil
	}

	want := len(buf)
	if max := int64(ino.Size) - offset; int64(want) > max {
		want = int(max)
	}

	blockSize := int(fs.super.BlockSize)
	var alloc bmap.Allocator
	if !v.SparseReads {
		alloc = &blockAllocator{fs: fs}
	}

	total := 0
	anyDirty := false
	n := uint32(offset / int64(blockSize))
	offInBlock := int(offset % int64(blockSize))

	for total < want && n < bmap.MaxFileBlocks {
		handle, data, dirty, err := bmap.Resolve(fs.cache, alloc, ino, n)
		if err != nil {
			return total, err
		}
		anyDirty = anyDirty || dirty

		xfer := want - total
		if room := blockSize - offInBlock; xfer > room {
			xfer = room
		}

		if handle == nil {
			for i := 0; i < xfer; i++ {
				buf[total+i] = 0
			}
		} else {
			copy(buf[total:total+xfer], data[offInBlock:offInBlock+xfer])
			handle.Put(blockcache.PutFlags{})
		}

		total += xfer
		n++
		offInBlock = 0
	}

	if anyDirty {
		fs.syncVnode(v.vn)
	}
	return total, nil
}

// Write copies buf into the file starting at offset, allocating blocks on
// demand, and extends the file's recorded size if the write reaches past
// it.
func (fs *FileSystem) Write(v *Vnode, buf []byte, offset int64) (int, errors.DriverError) {
	if offset < 0 {
		return 0, errors.ErrInvalidArgument.WithMessage("negative write offset")
	}

	ino := &v.vn.Inode
	alloc := &blockAllocator{fs: fs}
	blockSize := int(fs.super.BlockSize)

	total := 0
	n := uint32(offset / int64(blockSize))
	offInBlock := int(offset % int64(blockSize))

	for total < len(buf) && n < bmap.MaxFileBlocks {
		handle, data, _, err := bmap.Resolve(fs.cache, alloc, ino, n)
		if err != nil {
			return total, err
		}

		xfer := len(buf) - total
		if room := blockSize - offInBlock; xfer > room {
			xfer = room
		}
		copy(data[offInBlock:offInBlock+xfer], buf[total:total+xfer])
		handle.Put(blockcache.PutFlags{Dirty: true})

		total += xfer
		n++
		offInBlock = 0
	}

	if newSize := uint32(offset) + uint32(total); newSize > ino.Size {
		ino.Size = newSize
	}
	fs.syncVnode(v.vn)
	return total, nil
}
