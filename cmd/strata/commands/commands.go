// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete strata CLI command tree.
package commands

import (
	"fmt"

	"github.com/stratafs/strata/cmd/strata/cli"
	inspectcmd "github.com/stratafs/strata/cmd/strata/inspect"
	mkfscmd "github.com/stratafs/strata/cmd/strata/mkfs"
	mountcmd "github.com/stratafs/strata/cmd/strata/mount"
	umountcmd "github.com/stratafs/strata/cmd/strata/umount"
	"github.com/stratafs/strata/lib/version"
)

// Root builds and returns the strata CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "strata",
		Description: `Strata: a journaled block filesystem in a file.

Format image files, mount them over FUSE, and inspect them. All
writes go through a write-ahead journal, so a crash at any point
leaves the filesystem consistent after the next mount.`,
		Subcommands: []*cli.Command{
			mkfscmd.Command(),
			mountcmd.Command(),
			umountcmd.Command(),
			inspectcmd.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("strata %s\n", version.Full())
					return nil
				},
			},
		},
	}
}
