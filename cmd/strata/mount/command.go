// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package mount implements "strata mount": serving an image over FUSE
// until unmounted or signaled.
package mount

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/stratafs/strata/cmd/strata/cli"
	"github.com/stratafs/strata/lib/config"
	"github.com/stratafs/strata/lib/device"
	"github.com/stratafs/strata/lib/fs"
	"github.com/stratafs/strata/lib/fusefs"
	"github.com/stratafs/strata/lib/mountstate"
)

type mountParams struct {
	ReadOnly   bool   `flag:"read-only,r" desc:"mount read-only"`
	AllowOther bool   `flag:"allow-other" desc:"permit other users to access the mount"`
	CacheSlots int    `flag:"cache-slots" desc:"block cache size (0 uses the config default)"`
	StateDir   string `flag:"state-dir" desc:"mount record directory (empty uses the config default)"`
	Config     string `flag:"config" desc:"config file path (overrides STRATA_CONFIG)"`
}

// Command returns the "mount" command.
func Command() *cli.Command {
	var params mountParams

	return &cli.Command{
		Name:    "mount",
		Summary: "Mount an image over FUSE",
		Description: `Mount a formatted image at a directory and serve it over FUSE until
the mount is unmounted or the process receives SIGINT or SIGTERM.

On startup any transaction that committed before a crash is replayed
from the journal, so the tree is always consistent. A mount record is
written to the state directory so "strata umount" and diagnostics can
find this daemon; it is removed on clean shutdown.`,
		Usage: "strata mount <image> <mountpoint> [flags]",
		Examples: []cli.Example{
			{Description: "Mount an image", Command: "strata mount fs.img /mnt/strata"},
			{Description: "Read-only mount", Command: "strata mount --read-only fs.img /mnt/strata"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("mount", &params)
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected <image> <mountpoint>, got %d arguments", len(args))
			}
			return run(args[0], args[1], &params)
		},
	}
}

func run(image, mountpoint string, params *mountParams) error {
	cfg, err := loadConfig(params.Config)
	if err != nil {
		return err
	}
	if params.CacheSlots == 0 {
		params.CacheSlots = cfg.Cache.Slots
	}
	if params.StateDir == "" {
		params.StateDir = cfg.Mount.StateDir
	}
	readOnly := params.ReadOnly || cfg.Mount.ReadOnly

	imagePath, err := filepath.Abs(image)
	if err != nil {
		return err
	}
	mountPath, err := filepath.Abs(mountpoint)
	if err != nil {
		return err
	}

	logger := cli.NewCommandLogger().With("command", "mount", "image", imagePath, "mountpoint", mountPath)

	dev, err := device.OpenFile(imagePath)
	if err != nil {
		return err
	}
	defer dev.Close()

	fsys, err := fs.Mount(dev, fs.Options{
		ReadOnly:   readOnly,
		CacheSlots: params.CacheSlots,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := fsys.Unmount(); err != nil {
			logger.Error("unmount failed", "error", err)
		}
	}()

	server, err := fusefs.Mount(fusefs.Options{
		Mountpoint: mountPath,
		FS:         fsys,
		FSName:     cfg.Mount.FSName,
		AllowOther: params.AllowOther || cfg.Mount.AllowOther,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	store, err := mountstate.NewStore(params.StateDir)
	if err != nil {
		server.Unmount()
		return err
	}
	record := mountstate.Record{
		Session:    uuid.New(),
		Image:      imagePath,
		Mountpoint: mountPath,
		PID:        os.Getpid(),
		ReadOnly:   readOnly,
		MountedAt:  time.Now().UTC(),
	}
	if err := store.Write(record); err != nil {
		server.Unmount()
		return err
	}
	defer func() {
		if err := store.Remove(record.Session); err != nil {
			logger.Error("removing mount record failed", "error", err)
		}
	}()

	logger.Info("serving", "session", record.Session, "read_only", readOnly)

	// Serve until the kernel unmounts us or a signal arrives. The
	// signal handler triggers a FUSE unmount, which makes Wait
	// return; both goroutines then finish.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	done := make(chan struct{})
	var group errgroup.Group
	group.Go(func() error {
		server.Wait()
		close(done)
		return nil
	})
	group.Go(func() error {
		select {
		case sig := <-signals:
			logger.Info("signal received, unmounting", "signal", sig.String())
			if err := server.Unmount(); err != nil {
				return fmt.Errorf("unmounting after %s: %w", sig, err)
			}
		case <-done:
		}
		return nil
	})

	return group.Wait()
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
