// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/stratafs/strata/lib/blockcache"
	"github.com/stratafs/strata/lib/layout"
)

// opWriter records a mutated block in the current transaction. It is
// satisfied by *journal.Op; the indirection keeps the allocator and
// inode layers testable without a full journal.
type opWriter interface {
	Write(b *blockcache.Buf)
}

// Inode is one in-core inode. The table lock guards ref; mu guards
// the on-disk copy (loaded and the embedded Dinode). Lock order is
// table lock before inode lock, and an inode lock is never held while
// taking another inode's lock except parent-before-child during path
// operations.
type Inode struct {
	fs   *FS
	inum uint32
	ref  int

	mu     sync.Mutex
	loaded bool
	dinode layout.Dinode
}

// inodeTable is the fixed pool of in-core inodes, shaped like the
// block cache: lookup and refcounting under one lock, per-entry state
// under the entry's own lock.
type inodeTable struct {
	mu      sync.Mutex
	entries [layout.MaxActiveInodes]*Inode
}

// getInode returns the in-core inode for inum, creating a table entry
// if needed. The entry's disk copy is not loaded; lock does that.
// Fails with ErrBusy when the table is full of referenced entries.
func (fs *FS) getInode(inum uint32) (*Inode, error) {
	t := &fs.itable
	t.mu.Lock()
	defer t.mu.Unlock()

	var empty = -1
	for i, ino := range t.entries {
		if ino != nil && ino.ref > 0 && ino.inum == inum {
			ino.ref++
			return ino, nil
		}
		if empty == -1 && (ino == nil || ino.ref == 0) {
			empty = i
		}
	}
	if empty == -1 {
		return nil, fmt.Errorf("inode %d: %w", inum, ErrBusy)
	}
	ino := &Inode{fs: fs, inum: inum, ref: 1}
	t.entries[empty] = ino
	return ino, nil
}

// lock acquires the inode's lock and loads the on-disk copy if this is
// the first lock since the entry was created.
func (ino *Inode) lock() error {
	ino.mu.Lock()
	if ino.loaded {
		return nil
	}
	fs := ino.fs
	b, err := fs.cache.Acquire(fs.devnum, fs.sb.InodeBlock(ino.inum))
	if err != nil {
		ino.mu.Unlock()
		return fmt.Errorf("loading inode %d: %w", ino.inum, err)
	}
	b.Lock()
	offset := (ino.inum % layout.InodesPerBlock) * layout.DinodeSize
	ino.dinode = layout.DecodeDinode(b.Data()[offset:])
	b.Unlock()
	fs.cache.Release(b)
	ino.loaded = true
	return nil
}

func (ino *Inode) unlock() {
	ino.mu.Unlock()
}

// update writes the in-core dinode back to its inode block through the
// operation. Caller holds the inode lock.
func (ino *Inode) update(op opWriter) error {
	fs := ino.fs
	b, err := fs.cache.Acquire(fs.devnum, fs.sb.InodeBlock(ino.inum))
	if err != nil {
		return fmt.Errorf("updating inode %d: %w", ino.inum, err)
	}
	defer fs.cache.Release(b)

	b.Lock()
	offset := (ino.inum % layout.InodesPerBlock) * layout.DinodeSize
	layout.EncodeDinode(b.Data()[offset:], &ino.dinode)
	b.Unlock()
	op.Write(b)
	return nil
}

// putInode drops one reference. When the last reference goes and the
// inode has no links, its contents and the inode itself are freed
// inside op; op may be nil only when the caller knows nlink > 0.
func (fs *FS) putInode(op opWriter, ino *Inode) error {
	fs.itable.mu.Lock()
	last := ino.ref == 1
	fs.itable.mu.Unlock()

	if last && op != nil {
		if err := ino.lock(); err != nil {
			fs.dropRef(ino)
			return err
		}
		if ino.dinode.Type != layout.TypeFree && ino.dinode.NLink == 0 {
			err := ino.truncate(op)
			if err == nil {
				ino.dinode.Type = layout.TypeFree
				err = ino.update(op)
			}
			if err != nil {
				ino.unlock()
				fs.dropRef(ino)
				return fmt.Errorf("freeing inode %d: %w", ino.inum, err)
			}
		}
		ino.unlock()
	}
	fs.dropRef(ino)
	return nil
}

func (fs *FS) dropRef(ino *Inode) {
	fs.itable.mu.Lock()
	ino.ref--
	fs.itable.mu.Unlock()
}

// allocInode finds a free on-disk inode, claims it with the given
// type, and returns it referenced but unlocked.
func (fs *FS) allocInode(op opWriter, fileType int16) (*Inode, error) {
	for inum := uint32(1); inum < fs.sb.Inodes; inum++ {
		b, err := fs.cache.Acquire(fs.devnum, fs.sb.InodeBlock(inum))
		if err != nil {
			return nil, err
		}
		offset := (inum % layout.InodesPerBlock) * layout.DinodeSize
		b.Lock()
		free := layout.DecodeDinode(b.Data()[offset:]).Type == layout.TypeFree
		if free {
			di := layout.Dinode{Type: fileType}
			layout.EncodeDinode(b.Data()[offset:], &di)
		}
		b.Unlock()
		if !free {
			fs.cache.Release(b)
			continue
		}
		op.Write(b)
		fs.cache.Release(b)
		return fs.getInode(inum)
	}
	return nil, ErrNoInodes
}

// blockForOffset maps file block index n to a disk block number,
// allocating the data block (and the indirect block) when op is
// non-nil. Returns 0 for an unallocated block when op is nil: readers
// treat that as a hole of zeroes. Caller holds the inode lock.
func (ino *Inode) blockForOffset(op opWriter, n uint32) (uint32, error) {
	fs := ino.fs
	if n < layout.NDirect {
		bno := ino.dinode.Addrs[n]
		if bno == 0 && op != nil {
			allocated, err := fs.allocBlock(op)
			if err != nil {
				return 0, err
			}
			ino.dinode.Addrs[n] = allocated
			bno = allocated
		}
		return bno, nil
	}

	n -= layout.NDirect
	if n >= layout.NIndirect {
		return 0, ErrFileTooLarge
	}

	indirect := ino.dinode.Addrs[layout.NDirect]
	if indirect == 0 {
		if op == nil {
			return 0, nil
		}
		allocated, err := fs.allocBlock(op)
		if err != nil {
			return 0, err
		}
		ino.dinode.Addrs[layout.NDirect] = allocated
		indirect = allocated
	}

	b, err := fs.cache.Acquire(fs.devnum, indirect)
	if err != nil {
		return 0, err
	}
	defer fs.cache.Release(b)

	b.Lock()
	bno := decodeAddr(b.Data(), n)
	b.Unlock()
	if bno == 0 && op != nil {
		allocated, err := fs.allocBlock(op)
		if err != nil {
			return 0, err
		}
		b.Lock()
		encodeAddr(b.Data(), n, allocated)
		b.Unlock()
		op.Write(b)
		bno = allocated
	}
	return bno, nil
}

// truncate frees every data block and the indirect block, and zeroes
// the size. Caller holds the inode lock.
func (ino *Inode) truncate(op opWriter) error {
	fs := ino.fs
	for i := range uint32(layout.NDirect) {
		if ino.dinode.Addrs[i] != 0 {
			if err := fs.freeBlock(op, ino.dinode.Addrs[i]); err != nil {
				return err
			}
			ino.dinode.Addrs[i] = 0
		}
	}

	if indirect := ino.dinode.Addrs[layout.NDirect]; indirect != 0 {
		b, err := fs.cache.Acquire(fs.devnum, indirect)
		if err != nil {
			return err
		}
		b.Lock()
		var addrs [layout.NIndirect]uint32
		for i := range addrs {
			addrs[i] = decodeAddr(b.Data(), uint32(i))
		}
		b.Unlock()
		fs.cache.Release(b)

		for _, bno := range addrs {
			if bno != 0 {
				if err := fs.freeBlock(op, bno); err != nil {
					return err
				}
			}
		}
		if err := fs.freeBlock(op, indirect); err != nil {
			return err
		}
		ino.dinode.Addrs[layout.NDirect] = 0
	}

	ino.dinode.Size = 0
	return ino.update(op)
}

// readAt copies up to len(p) bytes starting at off into p. Caller
// holds the inode lock. Unallocated blocks read as zeroes.
func (ino *Inode) readAt(p []byte, off uint32) (int, error) {
	fs := ino.fs
	if off >= ino.dinode.Size {
		return 0, nil
	}
	if off+uint32(len(p)) > ino.dinode.Size {
		p = p[:ino.dinode.Size-off]
	}

	read := 0
	for read < len(p) {
		n := (off + uint32(read)) / layout.BlockSize
		blockOff := (off + uint32(read)) % layout.BlockSize
		chunk := min(len(p)-read, int(layout.BlockSize-blockOff))

		bno, err := ino.blockForOffset(nil, n)
		if err != nil {
			return read, err
		}
		if bno == 0 {
			clear(p[read : read+chunk])
			read += chunk
			continue
		}
		b, err := fs.cache.Acquire(fs.devnum, bno)
		if err != nil {
			return read, err
		}
		b.Lock()
		copy(p[read:read+chunk], b.Data()[blockOff:])
		b.Unlock()
		fs.cache.Release(b)
		read += chunk
	}
	return read, nil
}

// writeAt copies p into the file starting at off, growing it as
// needed, recording every touched block in op. Caller holds the inode
// lock and must size p to stay inside op's block budget.
func (ino *Inode) writeAt(op opWriter, p []byte, off uint32) (int, error) {
	fs := ino.fs
	if off > ino.dinode.Size {
		return 0, fmt.Errorf("write at %d past end %d", off, ino.dinode.Size)
	}
	if uint64(off)+uint64(len(p)) > layout.MaxFileBlocks*layout.BlockSize {
		return 0, ErrFileTooLarge
	}

	written := 0
	for written < len(p) {
		n := (off + uint32(written)) / layout.BlockSize
		blockOff := (off + uint32(written)) % layout.BlockSize
		chunk := min(len(p)-written, int(layout.BlockSize-blockOff))

		bno, err := ino.blockForOffset(op, n)
		if err != nil {
			return written, err
		}
		b, err := fs.cache.Acquire(fs.devnum, bno)
		if err != nil {
			return written, err
		}
		b.Lock()
		copy(b.Data()[blockOff:], p[written:written+chunk])
		b.Unlock()
		op.Write(b)
		fs.cache.Release(b)
		written += chunk
	}

	if off+uint32(written) > ino.dinode.Size {
		ino.dinode.Size = off + uint32(written)
	}
	return written, ino.update(op)
}

// decodeAddr and encodeAddr access the little-endian u32 address array
// inside an indirect block.
func decodeAddr(p []byte, i uint32) uint32 {
	return binary.LittleEndian.Uint32(p[4*i:])
}

func encodeAddr(p []byte, i, bno uint32) {
	binary.LittleEndian.PutUint32(p[4*i:], bno)
}
