package main

import (
	"os"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/blockcache"
	"github.com/block-fs/minfs/superblock"
)

// openCache wraps an on-disk image file in a blockcache.Cache. blocks is
// only used to size a brand new image; for an existing image it is ignored
// in favor of the file's current length.
func openCache(path string, blocks uint, create bool) (*blockcache.Cache, *os.File, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, nil, err
	}

	size := int64(blocks) * superblock.BlockSize
	if create {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, nil, err
		}
	} else {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		size = info.Size()
	}
	totalBlocks := uint(size / superblock.BlockSize)

	fetch := func(block minfs.BlockNumber, buffer []byte) error {
		_, err := f.ReadAt(buffer, int64(block)*superblock.BlockSize)
		return err
	}
	flush := func(block minfs.BlockNumber, buffer []byte) error {
		_, err := f.WriteAt(buffer, int64(block)*superblock.BlockSize)
		return err
	}

	return blockcache.New(superblock.BlockSize, totalBlocks, fetch, flush), f, nil
}
