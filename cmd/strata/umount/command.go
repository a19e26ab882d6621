// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package umount implements "strata umount": detaching a FUSE mount
// served by "strata mount".
package umount

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/stratafs/strata/cmd/strata/cli"
	"github.com/stratafs/strata/lib/config"
	"github.com/stratafs/strata/lib/mountstate"
)

type umountParams struct {
	StateDir string `flag:"state-dir" desc:"mount record directory (empty uses the config default)"`
	Force    bool   `flag:"force,f" desc:"detach even without a mount record"`
}

// Command returns the "umount" command.
func Command() *cli.Command {
	var params umountParams

	return &cli.Command{
		Name:    "umount",
		Summary: "Unmount a mounted image",
		Description: `Detach the FUSE mount at a mountpoint. The serving "strata mount"
process notices the detach, flushes, and exits, removing its mount
record.

Without --force, refuses mountpoints that have no mount record, to
avoid unmounting filesystems strata does not own.`,
		Usage: "strata umount <mountpoint> [flags]",
		Examples: []cli.Example{
			{Description: "Unmount", Command: "strata umount /mnt/strata"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("umount", &params)
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one mountpoint, got %d arguments", len(args))
			}
			return run(args[0], &params)
		},
	}
}

func run(mountpoint string, params *umountParams) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if params.StateDir == "" {
		params.StateDir = cfg.Mount.StateDir
	}

	mountPath, err := filepath.Abs(mountpoint)
	if err != nil {
		return err
	}

	logger := cli.NewCommandLogger().With("command", "umount", "mountpoint", mountPath)

	store, err := mountstate.NewStore(params.StateDir)
	if err != nil {
		return err
	}
	record, err := store.FindByMountpoint(mountPath)
	switch {
	case err == nil:
		logger.Info("unmounting", "session", record.Session, "pid", record.PID)
	case errors.Is(err, fs.ErrNotExist):
		if !params.Force {
			return fmt.Errorf("no mount record for %s (use --force to detach anyway)", mountPath)
		}
		logger.Warn("no mount record, detaching anyway")
	default:
		return err
	}

	if err := fuseUnmount(mountPath); err != nil {
		return err
	}
	fmt.Printf("unmounted %s\n", mountPath)
	return nil
}

// fuseUnmount detaches a FUSE mountpoint via fusermount, the setuid
// helper that allows unprivileged unmounts. fusermount3 is the name
// on current distributions; fall back to the old name.
func fuseUnmount(mountpoint string) error {
	var lastErr error
	for _, helper := range []string{"fusermount3", "fusermount"} {
		path, err := exec.LookPath(helper)
		if err != nil {
			lastErr = err
			continue
		}
		output, err := exec.Command(path, "-u", mountpoint).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s -u %s: %w: %s", helper, mountpoint, err, output)
		}
		return nil
	}
	return fmt.Errorf("no fusermount helper found: %w", lastErr)
}
