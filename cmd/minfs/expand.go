package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/block-fs/minfs/compression"
)

// expandCommand decompresses a gzipped, RLE8-encoded golden image -- the
// format minfstesting's golden test fixtures are stored in -- back to a raw
// image file.
var expandCommand = &cli.Command{
	Name:      "expand",
	Usage:     "Decompress a golden RLE8+gzip disk image to a raw image file",
	ArgsUsage: "COMPRESSED_PATH RAW_OUTPUT_PATH",
	Action:    runExpand,
}

func runExpand(c *cli.Context) error {
	src := c.Args().Get(0)
	dst := c.Args().Get(1)
	if src == "" || dst == "" {
		return cli.Exit("expand requires a source and destination path", 1)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := compression.DecompressImage(in, out)
	if err != nil {
		return fmt.Errorf("expanding image: %w", err)
	}
	fmt.Printf("wrote %d bytes to %s\n", n, dst)
	return nil
}
