// The error kinds below cover invalid-arg, not-supported, not-found,
// no-memory, no-resources, bad-state, out-of-range, and io. A handful of
// finer-grained constants are kept alongside them, mirroring a POSIX errno
// shim, since several call sites need to distinguish, say, "file exists"
// from a generic invalid argument.

package errors

import (
	"fmt"
)

// MinfsError is a sentinel error kind. Constructing one with WithMessage or
// WrapError produces a DriverError that still satisfies errors.Is against the
// sentinel.
type MinfsError string

// ErrInvalidArgument covers out-of-range inode numbers, wrong vnode types, and
// malformed on-disk records caught during validation.
const ErrInvalidArgument = MinfsError("invalid argument")

// ErrNotSupported is returned by ioctl (always). Directory-only operations
// given a file return ErrNotADirectory, not ErrNotSupported.
const ErrNotSupported = MinfsError("operation not supported")

// ErrNotFound covers a missing directory entry, including a directory scan
// that ends without a match. A hole under alloc=false is not reported with
// it: bmap.Resolve returns a nil handle and no error for a hole.
const ErrNotFound = MinfsError("no such file or directory")

// ErrExists is returned when create() targets a name that already resolves
// to an object.
const ErrExists = MinfsError("file exists")

// ErrNoMemory covers in-memory allocation failure (vnode cache, bitmap
// growth).
const ErrNoMemory = MinfsError("cannot allocate memory")

// ErrNoSpace covers bitmap exhaustion: no free block or inode remains.
const ErrNoSpace = MinfsError("no space left on device")

// ErrBadState covers directory non-emptiness on unlink, and a second Get of
// a cached block that still has an outstanding handle. Impossible
// reclen/namelen combinations are reported as ErrFileSystemCorrupted.
const ErrBadState = MinfsError("file descriptor in bad state")

// ErrOutOfRange covers an inode number beyond the inode table, or a logical
// block index beyond MaxFileBlocks.
const ErrOutOfRange = MinfsError("numerical argument out of domain")

// ErrIO covers block cache failures and malformed on-disk metadata detected
// outside of directory validation.
const ErrIO = MinfsError("input/output error")

// ErrFileSystemCorrupted is returned when on-disk metadata fails validation:
// a superblock with bad magic or an impossible layout, or a malformed
// directory record. Check reports its own invariant violations as plain
// aggregated errors rather than with this sentinel.
const ErrFileSystemCorrupted = MinfsError("structure needs cleaning")

// ErrNotADirectory / ErrIsADirectory guard the directory-only operations
// (lookup, create, unlink, readdir) named in the external interface.
const ErrNotADirectory = MinfsError("not a directory")
const ErrIsADirectory = MinfsError("is a directory")

// ErrAlreadyMounted names a mount attempt on an already-mounted filesystem.
// Mount keeps no record of earlier mounts and does not return it.
const ErrAlreadyMounted = MinfsError("operation already in progress")

// ErrReadOnly is returned by Open when write access is requested on a
// filesystem mounted without write permission. Write, Create, and Unlink
// do not consult the mount flags.
const ErrReadOnly = MinfsError("read-only file system")

func (e MinfsError) Error() string {
	return string(e)
}

func (e MinfsError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), message),
		originalError: e,
	}
}

func (e MinfsError) WrapError(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: err,
	}
}
