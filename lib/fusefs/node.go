// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fusefs

import (
	"context"
	"math"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/stratafs/strata/lib/fs"
)

// node is a file or directory in the mounted tree. It holds only the
// inode number; all state lives in the fs layer.
type node struct {
	gofuse.Inode
	fsys *fs.FS
	inum uint32
}

var _ gofuse.InodeEmbedder = (*node)(nil)
var _ gofuse.NodeLookuper = (*node)(nil)
var _ gofuse.NodeGetattrer = (*node)(nil)
var _ gofuse.NodeSetattrer = (*node)(nil)
var _ gofuse.NodeReaddirer = (*node)(nil)
var _ gofuse.NodeOpener = (*node)(nil)
var _ gofuse.NodeReader = (*node)(nil)
var _ gofuse.NodeWriter = (*node)(nil)
var _ gofuse.NodeCreater = (*node)(nil)
var _ gofuse.NodeMkdirer = (*node)(nil)
var _ gofuse.NodeUnlinker = (*node)(nil)
var _ gofuse.NodeRmdirer = (*node)(nil)
var _ gofuse.NodeRenamer = (*node)(nil)
var _ gofuse.NodeLinker = (*node)(nil)
var _ gofuse.NodeFsyncer = (*node)(nil)

// child wraps an fs.Info into a kernel-visible inode under this node.
// NewInode deduplicates on StableAttr, so repeated lookups of the
// same on-disk inode return the same kernel inode.
func (n *node) child(ctx context.Context, info fs.Info, out *fuse.EntryOut) *gofuse.Inode {
	fillAttr(info, &out.Attr)
	return n.NewInode(ctx, &node{fsys: n.fsys, inum: info.Inum}, stableAttr(info))
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	info, err := n.fsys.Lookup(n.inum, name)
	if err != nil {
		return nil, errno(err)
	}
	return n.child(ctx, info, out), 0
}

func (n *node) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	info, err := n.fsys.Stat(n.inum)
	if err != nil {
		return errno(err)
	}
	fillAttr(info, &out.Attr)
	return 0
}

// Setattr honors size changes (truncate and O_TRUNC opens). The
// on-disk format stores no ownership, permissions, or timestamps, so
// those requests succeed without effect; refusing them would break
// tools like cp and tar that set metadata after writing.
func (n *node) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		if size > math.MaxUint32 {
			return syscall.EFBIG
		}
		if err := n.fsys.Truncate(n.inum, uint32(size)); err != nil {
			return errno(err)
		}
	}
	info, err := n.fsys.Stat(n.inum)
	if err != nil {
		return errno(err)
	}
	fillAttr(info, &out.Attr)
	return 0
}

func (n *node) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, err := n.fsys.ReadDir(n.inum)
	if err != nil {
		return nil, errno(err)
	}
	stream := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := n.fsys.Stat(e.Inum)
		if err != nil {
			return nil, errno(err)
		}
		stream = append(stream, fuse.DirEntry{
			Name: e.Name,
			Ino:  uint64(e.Inum),
			Mode: fileMode(info.Type),
		})
	}
	return &sliceDirStream{entries: stream}, 0
}

func (n *node) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	// All state is in the fs layer; no per-open handle is needed.
	// Caching stays enabled so the kernel page cache absorbs
	// repeated reads of hot blocks.
	return nil, 0, 0
}

func (n *node) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	read, err := n.fsys.ReadAt(n.inum, dest, off)
	if err != nil {
		return nil, errno(err)
	}
	return fuse.ReadResultData(dest[:read]), 0
}

func (n *node) Write(ctx context.Context, f gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, err := n.fsys.WriteAt(n.inum, data, off)
	if err != nil {
		return uint32(written), errno(err)
	}
	return uint32(written), 0
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	info, err := n.fsys.Create(n.inum, name)
	if err != nil {
		return nil, nil, 0, errno(err)
	}
	return n.child(ctx, info, out), nil, 0, 0
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	info, err := n.fsys.Mkdir(n.inum, name)
	if err != nil {
		return nil, errno(err)
	}
	return n.child(ctx, info, out), 0
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	return errno(n.fsys.Unlink(n.inum, name))
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errno(n.fsys.Rmdir(n.inum, name))
}

func (n *node) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	target, ok := newParent.(*node)
	if !ok {
		return syscall.EXDEV
	}
	if flags&gofuse.RENAME_EXCHANGE != 0 {
		return syscall.EINVAL
	}
	return errno(n.fsys.Rename(n.inum, name, target.inum, newName))
}

func (n *node) Link(ctx context.Context, target gofuse.InodeEmbedder, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	other, ok := target.(*node)
	if !ok {
		return nil, syscall.EXDEV
	}
	if err := n.fsys.Link(other.inum, n.inum, name); err != nil {
		return nil, errno(err)
	}
	info, err := n.fsys.Stat(other.inum)
	if err != nil {
		return nil, errno(err)
	}
	return n.child(ctx, info, out), 0
}

// Fsync flushes the backing device. Journaled writes are already
// ordered; this pushes them through the device's volatile cache.
func (n *node) Fsync(ctx context.Context, f gofuse.FileHandle, flags uint32) syscall.Errno {
	return errno(n.fsys.Sync())
}

// sliceDirStream implements gofuse.DirStream from a slice of entries.
type sliceDirStream struct {
	entries []fuse.DirEntry
	next    int
}

func (s *sliceDirStream) HasNext() bool {
	return s.next < len(s.entries)
}

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.next >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EIO
	}
	entry := s.entries[s.next]
	s.next++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
