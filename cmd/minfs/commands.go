package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/dirent"
	"github.com/block-fs/minfs/disks"
	"github.com/block-fs/minfs/fs"
)

func runMkfs(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("mkfs requires an image path", 1)
	}

	blocks := c.Uint("blocks")
	if preset := c.String("preset"); preset != "" {
		p, err := disks.Lookup(preset)
		if err != nil {
			return err
		}
		blocks = p.TotalBlocks
	}

	cache, f, err := openCache(path, blocks, true)
	if err != nil {
		return err
	}
	defer f.Close()

	if mkErr := fs.Mkfs(cache); mkErr != nil {
		return mkErr
	}
	fmt.Printf("formatted %s: %d blocks\n", path, blocks)
	return nil
}

func runCheck(c *cli.Context) error {
	fsys, f, err := mountFromArgs(c)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := fsys.Check(); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Println("clean")
	return nil
}

func runLs(c *cli.Context) error {
	fsys, f, err := mountFromArgs(c)
	if err != nil {
		return err
	}
	defer f.Close()

	target, err := resolvePath(fsys, c.Args().Get(1))
	if err != nil {
		return err
	}
	defer fsys.Release(target)

	return fsys.ReadDir(target, new(dirent.Cursor), func(e fs.DirEntry) bool {
		kind := "f"
		if e.Type == minfs.TypeDirectory {
			kind = "d"
		}
		fmt.Printf("%s %8d %s\n", kind, e.Ino, e.Name)
		return true
	})
}

func runCat(c *cli.Context) error {
	fsys, f, err := mountFromArgs(c)
	if err != nil {
		return err
	}
	defer f.Close()

	p := c.Args().Get(1)
	if p == "" {
		return cli.Exit("cat requires a path inside the image", 1)
	}
	target, err := resolvePath(fsys, p)
	if err != nil {
		return err
	}
	defer fsys.Release(target)

	attr, statErr := fsys.GetAttr(target)
	if statErr != nil {
		return statErr
	}

	buf := make([]byte, attr.Size)
	if _, readErr := fsys.Read(target, buf, 0); readErr != nil {
		return readErr
	}
	_, writeErr := os.Stdout.Write(buf)
	return writeErr
}

// mountFromArgs opens the image named by the command's first argument and
// mounts it read/write.
func mountFromArgs(c *cli.Context) (*fs.FileSystem, *os.File, error) {
	path := c.Args().First()
	if path == "" {
		return nil, nil, cli.Exit("requires an image path", 1)
	}
	cache, f, err := openCache(path, 0, false)
	if err != nil {
		return nil, nil, err
	}
	fsys, mountErr := fs.Mount(cache, minfs.MountFlagsAllowAll)
	if mountErr != nil {
		f.Close()
		return nil, nil, mountErr
	}
	return fsys, f, nil
}

// resolvePath walks p, a slash-separated path relative to the root
// directory, returning the vnode it names. An empty path resolves to root.
func resolvePath(fsys *fs.FileSystem, p string) (*fs.Vnode, error) {
	root, err := fsys.RootVnode()
	if err != nil {
		return nil, err
	}
	if p == "" || p == "/" || p == "." {
		return root, nil
	}

	current := root
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if part == "" {
			continue
		}
		next, lookupErr := fsys.Lookup(current, part)
		if current != root {
			fsys.Release(current)
		}
		if lookupErr != nil {
			return nil, lookupErr
		}
		current = next
	}
	return current, nil
}
