// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fusefs

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/stratafs/strata/lib/fs"
	"github.com/stratafs/strata/lib/layout"
)

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		err  error
		want syscall.Errno
	}{
		{nil, 0},
		{fs.ErrNotFound, syscall.ENOENT},
		{fs.ErrExists, syscall.EEXIST},
		{fs.ErrNotDir, syscall.ENOTDIR},
		{fs.ErrIsDir, syscall.EISDIR},
		{fs.ErrNotEmpty, syscall.ENOTEMPTY},
		{fs.ErrNoSpace, syscall.ENOSPC},
		{fs.ErrNoInodes, syscall.ENOSPC},
		{fs.ErrNameTooLong, syscall.ENAMETOOLONG},
		{fs.ErrFileTooLarge, syscall.EFBIG},
		{fs.ErrReadOnly, syscall.EROFS},
		{fs.ErrBusy, syscall.EBUSY},
		{fmt.Errorf("resolve: %w", fs.ErrNotFound), syscall.ENOENT},
		{fmt.Errorf("device fault"), syscall.EIO},
	}
	for _, tc := range cases {
		if got := errno(tc.err); got != tc.want {
			t.Errorf("errno(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestFillAttrFile(t *testing.T) {
	info := fs.Info{Inum: 7, Type: layout.TypeFile, Size: 2500, NLink: 2}
	var attr fuse.Attr
	fillAttr(info, &attr)

	if attr.Ino != 7 {
		t.Errorf("Ino = %d, want 7", attr.Ino)
	}
	if attr.Size != 2500 {
		t.Errorf("Size = %d, want 2500", attr.Size)
	}
	// 2500 bytes spans three 1024-byte blocks.
	if attr.Blocks != 3 {
		t.Errorf("Blocks = %d, want 3", attr.Blocks)
	}
	if attr.Blksize != layout.BlockSize {
		t.Errorf("Blksize = %d, want %d", attr.Blksize, layout.BlockSize)
	}
	if attr.Nlink != 2 {
		t.Errorf("Nlink = %d, want 2", attr.Nlink)
	}
	if attr.Mode != syscall.S_IFREG|0o644 {
		t.Errorf("Mode = %o, want regular file", attr.Mode)
	}
}

func TestFillAttrDir(t *testing.T) {
	info := fs.Info{Inum: layout.RootIno, Type: layout.TypeDir, Size: 2 * layout.DirentSize, NLink: 2}
	var attr fuse.Attr
	fillAttr(info, &attr)

	if attr.Mode != syscall.S_IFDIR|0o755 {
		t.Errorf("Mode = %o, want directory", attr.Mode)
	}
	if attr.Ino != layout.RootIno {
		t.Errorf("Ino = %d, want %d", attr.Ino, layout.RootIno)
	}
}

func TestStableAttrCollapsesHardLinks(t *testing.T) {
	a := stableAttr(fs.Info{Inum: 12, Type: layout.TypeFile, Size: 10, NLink: 2})
	b := stableAttr(fs.Info{Inum: 12, Type: layout.TypeFile, Size: 10, NLink: 2})
	if a != b {
		t.Errorf("stable attrs differ for the same inode: %+v vs %+v", a, b)
	}
	if a.Ino != 12 {
		t.Errorf("Ino = %d, want 12", a.Ino)
	}
	if a.Mode != syscall.S_IFREG {
		t.Errorf("Mode = %o, want S_IFREG", a.Mode)
	}
}

func TestSliceDirStream(t *testing.T) {
	stream := &sliceDirStream{entries: []fuse.DirEntry{
		{Name: ".", Ino: 1, Mode: syscall.S_IFDIR},
		{Name: "a", Ino: 2, Mode: syscall.S_IFREG},
	}}
	var names []string
	for stream.HasNext() {
		entry, errno := stream.Next()
		if errno != 0 {
			t.Fatalf("Next: %v", errno)
		}
		names = append(names, entry.Name)
	}
	if len(names) != 2 || names[0] != "." || names[1] != "a" {
		t.Errorf("entries = %v, want [. a]", names)
	}
	if _, errno := stream.Next(); errno == 0 {
		t.Error("Next past the end should fail")
	}
	stream.Close()
}
