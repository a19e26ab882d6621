// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package mkfs implements "strata mkfs": formatting an image file
// with an empty filesystem.
package mkfs

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/stratafs/strata/cmd/strata/cli"
	"github.com/stratafs/strata/lib/config"
	"github.com/stratafs/strata/lib/device"
	"github.com/stratafs/strata/lib/fs"
	"github.com/stratafs/strata/lib/layout"
)

type mkfsParams struct {
	cli.JSONOutput
	Blocks uint32 `flag:"blocks,b" desc:"total image size in blocks (0 uses the config default)"`
	Inodes uint32 `flag:"inodes" desc:"inode table capacity (0 uses the config default)"`
	Force  bool   `flag:"force,f" desc:"overwrite an existing image"`
}

// Command returns the "mkfs" command.
func Command() *cli.Command {
	var params mkfsParams

	return &cli.Command{
		Name:    "mkfs",
		Summary: "Format an image file with an empty filesystem",
		Description: `Create an image file and write an empty filesystem to it: superblock,
journal region, inode table, block bitmap, and a root directory.

The image is laid out in 1024-byte blocks. Refuses to overwrite an
existing file unless --force is given.`,
		Usage: "strata mkfs <image> [flags]",
		Examples: []cli.Example{
			{Description: "Format a default-sized image", Command: "strata mkfs fs.img"},
			{Description: "Format a 16 MiB image", Command: "strata mkfs --blocks 16384 fs.img"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("mkfs", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one image path, got %d arguments", len(args))
			}
			return run(args[0], &params)
		},
	}
}

func run(image string, params *mkfsParams) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if params.Blocks == 0 {
		params.Blocks = cfg.Mkfs.Blocks
	}
	if params.Inodes == 0 {
		params.Inodes = cfg.Mkfs.Inodes
	}

	logger := cli.NewCommandLogger().With("command", "mkfs", "image", image)

	if !params.Force {
		if _, err := os.Stat(image); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", image)
		}
	}

	dev, err := device.CreateFile(image, params.Blocks)
	if err != nil {
		return err
	}
	defer dev.Close()

	geometry, err := fs.Mkfs(dev, fs.MkfsOptions{
		Blocks: params.Blocks,
		Inodes: params.Inodes,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("formatting %s: %w", image, err)
	}

	if done, err := params.EmitJSON(geometry); done {
		return err
	}
	fmt.Printf("%s: %d blocks (%d data), %d inodes, log %d blocks\n",
		image, geometry.Blocks, geometry.DataBlocks, geometry.Inodes, layout.LogBlocks)
	return nil
}
