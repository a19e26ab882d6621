// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fusefs

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/stratafs/strata/lib/fs"
	"github.com/stratafs/strata/lib/layout"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// FS is the mounted filesystem the adaptor serves.
	FS *fs.FS

	// FSName is the source name shown in /proc/mounts. Empty uses
	// "strata".
	FSName string

	// AllowOther permits other users (including root) to access
	// the mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Mount serves the filesystem over FUSE at the configured mountpoint.
// The caller must call Unmount on the returned Server when done. The
// mountpoint directory is created if it does not exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.FS == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if options.FSName == "" {
		options.FSName = "strata"
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := &node{fsys: options.FS, inum: layout.RootIno}

	// Attribute caching is kept short: size and link counts change
	// under concurrent writers and the kernel must not serve stale
	// metadata for long.
	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout: &entryTimeout,
		AttrTimeout:  &attrTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     options.FSName,
			Name:       "strata",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("filesystem mounted", "mountpoint", options.Mountpoint, "fsname", options.FSName)
	return server, nil
}

// stableAttr builds the kernel-visible identity for an inode. The
// on-disk inode number doubles as the FUSE inode number, so hard
// links to the same inode collapse to one kernel inode.
func stableAttr(info fs.Info) gofuse.StableAttr {
	return gofuse.StableAttr{
		Mode: fileMode(info.Type),
		Ino:  uint64(info.Inum),
	}
}

func fileMode(fileType int16) uint32 {
	switch fileType {
	case layout.TypeDir:
		return syscall.S_IFDIR
	case layout.TypeDev:
		return syscall.S_IFCHR
	default:
		return syscall.S_IFREG
	}
}

// fillAttr populates a FUSE attribute block from inode metadata. The
// on-disk format records no ownership or timestamps, so those fall
// back to the mounting process and the zero time.
func fillAttr(info fs.Info, out *fuse.Attr) {
	out.Ino = uint64(info.Inum)
	out.Size = uint64(info.Size)
	out.Blocks = (uint64(info.Size) + layout.BlockSize - 1) / layout.BlockSize
	out.Blksize = layout.BlockSize
	out.Nlink = uint32(info.NLink)
	switch info.Type {
	case layout.TypeDir:
		out.Mode = syscall.S_IFDIR | 0o755
	case layout.TypeDev:
		out.Mode = syscall.S_IFCHR | 0o644
	default:
		out.Mode = syscall.S_IFREG | 0o644
	}
}
