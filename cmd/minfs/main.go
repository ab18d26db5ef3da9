package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/block-fs/minfs/disks"
)

func main() {
	app := &cli.App{
		Name:  "minfs",
		Usage: "Format, inspect, and browse minfs disk images",
		Commands: []*cli.Command{
			mkfsCommand,
			checkCommand,
			lsCommand,
			catCommand,
			expandCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("minfs: %s", err.Error())
	}
}

var mkfsCommand = &cli.Command{
	Name:      "mkfs",
	Usage:     "Format a new minfs image",
	ArgsUsage: "IMAGE_PATH",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "preset",
			Usage: fmt.Sprintf("named device preset (%v)", disks.Names()),
		},
		&cli.UintFlag{
			Name:  "blocks",
			Usage: "total block count for a new image (ignored with --preset)",
			Value: 4096,
		},
	},
	Action: runMkfs,
}

var checkCommand = &cli.Command{
	Name:      "check",
	Usage:     "Run the consistency checker against an existing image",
	ArgsUsage: "IMAGE_PATH",
	Action:    runCheck,
}

var lsCommand = &cli.Command{
	Name:      "ls",
	Usage:     "List the contents of a directory inside an image",
	ArgsUsage: "IMAGE_PATH [PATH]",
	Action:    runLs,
}

var catCommand = &cli.Command{
	Name:      "cat",
	Usage:     "Print the contents of a file inside an image",
	ArgsUsage: "IMAGE_PATH PATH",
	Action:    runCat,
}
