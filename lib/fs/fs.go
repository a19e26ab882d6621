// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stratafs/strata/lib/blockcache"
	"github.com/stratafs/strata/lib/device"
	"github.com/stratafs/strata/lib/journal"
	"github.com/stratafs/strata/lib/layout"
)

// The mount attaches its device to the cache under this number. The
// cache's device space allows several, but one FS instance manages
// exactly one device.
const mountDev = 0

// maxChunkBlocks is how many data blocks one journal operation may
// write on behalf of ReadAt/WriteAt chunking: each data block can cost
// a bitmap block and itself, plus one indirect block and one inode
// block per chunk, so this keeps the worst case inside MaxOpBlocks.
const maxChunkBlocks = (layout.MaxOpBlocks - 1 - 1 - 2) / 2

// Options configures Mount.
type Options struct {
	// ReadOnly refuses every mutating operation. A read-only mount of
	// an image with a committed-but-uninstalled log fails rather than
	// repairing it.
	ReadOnly bool

	// CacheSlots overrides the block cache pool size. Zero uses
	// layout.BufferCount.
	CacheSlots int

	// Logger receives mount, recovery, and unmount events. If nil,
	// logging is discarded.
	Logger *slog.Logger
}

// FS is one mounted filesystem: the block cache, the journal, and the
// in-core inode table over a single device. Constructed by Mount,
// destroyed by Unmount, and passed explicitly to every caller.
type FS struct {
	cache    *blockcache.Cache
	log      *journal.Log
	dev      device.Device
	devnum   uint32
	sb       layout.SuperBlock
	readOnly bool
	logger   *slog.Logger
	itable   inodeTable

	// renameMu serializes multi-directory operations (Rename), whose
	// lock footprint spans inodes in no fixed order.
	renameMu sync.Mutex
}

// Info describes one inode to callers.
type Info struct {
	Inum  uint32 `json:"inum"`
	Type  int16  `json:"type"`
	Size  uint32 `json:"size"`
	NLink int16  `json:"nlink"`
}

// Mount validates the superblock, builds the block cache, and replays
// the journal. The returned FS is ready for concurrent use.
func Mount(dev device.Device, options Options) (*FS, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if options.CacheSlots != 0 && options.CacheSlots < layout.LogBlocks {
		// A commit pins every recorded block; a smaller pool can wedge
		// the journal on ErrCacheExhausted.
		return nil, fmt.Errorf("mount: %d cache slots, need at least %d", options.CacheSlots, layout.LogBlocks)
	}

	cache := blockcache.New(blockcache.Options{Slots: options.CacheSlots, Logger: logger})
	if err := cache.AttachDevice(mountDev, dev); err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}

	fs := &FS{
		cache:    cache,
		dev:      dev,
		devnum:   mountDev,
		readOnly: options.ReadOnly,
		logger:   logger,
	}

	super, err := cache.Acquire(mountDev, 1)
	if err != nil {
		return nil, fmt.Errorf("mount: reading superblock: %w", err)
	}
	super.Lock()
	fs.sb = layout.DecodeSuperBlock(super.Data())
	super.Unlock()
	cache.Release(super)

	if err := fs.sb.Validate(); err != nil {
		return nil, fmt.Errorf("mount: invalid superblock: %w", err)
	}
	if fs.sb.Size > dev.BlockCount() {
		return nil, fmt.Errorf("mount: superblock claims %d blocks but device has %d",
			fs.sb.Size, dev.BlockCount())
	}

	if options.ReadOnly {
		committed, err := journal.Committed(cache, mountDev, &fs.sb)
		if err != nil {
			return nil, fmt.Errorf("mount: %w", err)
		}
		if committed > 0 {
			return nil, fmt.Errorf("mount: image has an unreplayed transaction of %d blocks; a read-only mount cannot repair it", committed)
		}
	} else {
		fs.log, err = journal.Open(cache, mountDev, &fs.sb, logger)
		if err != nil {
			return nil, fmt.Errorf("mount: %w", err)
		}
	}

	logger.Info("filesystem mounted",
		"blocks", fs.sb.Size, "inodes", fs.sb.Inodes, "read_only", options.ReadOnly)
	return fs, nil
}

// Unmount flushes the device and detaches it from the cache. Callers
// must have finished every operation; open journal brackets or pinned
// blocks make Unmount fail.
func (fs *FS) Unmount() error {
	if err := fs.cache.SyncDevice(fs.devnum); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}
	if err := fs.cache.DetachDevice(fs.devnum); err != nil {
		return fmt.Errorf("unmount: %w", err)
	}
	fs.logger.Info("filesystem unmounted", "cache", fs.cache.Stats())
	return nil
}

// SuperBlock returns a copy of the mounted superblock.
func (fs *FS) SuperBlock() layout.SuperBlock { return fs.sb }

// CacheStats returns the block cache counters for this mount.
func (fs *FS) CacheStats() blockcache.Stats { return fs.cache.Stats() }

// Sync issues a write barrier on the backing device.
func (fs *FS) Sync() error { return fs.cache.SyncDevice(fs.devnum) }

func (ino *Inode) info() Info {
	return Info{Inum: ino.inum, Type: ino.dinode.Type, Size: ino.dinode.Size, NLink: ino.dinode.NLink}
}

// Stat returns metadata for an inode.
func (fs *FS) Stat(inum uint32) (Info, error) {
	ino, err := fs.getInode(inum)
	if err != nil {
		return Info{}, err
	}
	defer fs.putInode(nil, ino)
	if err := ino.lock(); err != nil {
		return Info{}, err
	}
	defer ino.unlock()
	if ino.dinode.Type == layout.TypeFree {
		return Info{}, fmt.Errorf("inode %d: %w", inum, ErrNotFound)
	}
	return ino.info(), nil
}

// Lookup resolves name within directory dir.
func (fs *FS) Lookup(dir uint32, name string) (Info, error) {
	dp, err := fs.getInode(dir)
	if err != nil {
		return Info{}, err
	}
	defer fs.putInode(nil, dp)
	if err := dp.lock(); err != nil {
		return Info{}, err
	}
	inum, _, err := dp.dirLookup(name)
	dp.unlock()
	if err != nil {
		return Info{}, err
	}
	return fs.Stat(inum)
}

// Resolve walks a slash-separated path from the root.
func (fs *FS) Resolve(path string) (Info, error) {
	ino, _, err := fs.resolve(path, false)
	if err != nil {
		return Info{}, err
	}
	defer fs.putInode(nil, ino)
	if err := ino.lock(); err != nil {
		return Info{}, err
	}
	defer ino.unlock()
	return ino.info(), nil
}

// ReadDir lists directory dir.
func (fs *FS) ReadDir(dir uint32) ([]DirEntry, error) {
	dp, err := fs.getInode(dir)
	if err != nil {
		return nil, err
	}
	defer fs.putInode(nil, dp)
	if err := dp.lock(); err != nil {
		return nil, err
	}
	defer dp.unlock()
	return dp.readDir()
}

// Create makes a regular file named name in directory dir. The name
// must not already exist.
func (fs *FS) Create(dir uint32, name string) (Info, error) {
	return fs.makeInode(dir, name, layout.TypeFile)
}

// Mkdir makes a directory named name in directory dir, initialized
// with "." and "..".
func (fs *FS) Mkdir(dir uint32, name string) (Info, error) {
	return fs.makeInode(dir, name, layout.TypeDir)
}

func (fs *FS) makeInode(dir uint32, name string, fileType int16) (info Info, err error) {
	if fs.readOnly {
		return Info{}, ErrReadOnly
	}
	if len(name) == 0 || len(name) > layout.DirNameLen {
		return Info{}, fmt.Errorf("create %q: %w", name, ErrNameTooLong)
	}
	dp, err := fs.getInode(dir)
	if err != nil {
		return Info{}, err
	}
	defer fs.putInode(nil, dp)

	op, err := fs.log.Begin()
	if err != nil {
		return Info{}, err
	}
	defer func() {
		if endErr := op.End(); endErr != nil && err == nil {
			err = endErr
		}
	}()

	if err := dp.lock(); err != nil {
		return Info{}, err
	}
	defer dp.unlock()

	if _, _, err := dp.dirLookup(name); err == nil {
		return Info{}, fmt.Errorf("create %q: %w", name, ErrExists)
	} else if err != ErrNotFound {
		return Info{}, err
	}

	ino, err := fs.allocInode(op, fileType)
	if err != nil {
		return Info{}, fmt.Errorf("create %q: %w", name, err)
	}
	defer fs.putInode(op, ino)

	if err := ino.lock(); err != nil {
		return Info{}, err
	}
	defer ino.unlock()
	// On failure, unwind the allocation before the lock drops so the
	// deferred putInode frees the inode instead of leaving it on disk
	// with a link count and no directory entry.
	defer func() {
		if err != nil {
			ino.dinode.NLink = 0
			if uerr := ino.update(op); uerr != nil {
				err = errors.Join(err, uerr)
			}
		}
	}()

	ino.dinode.NLink = 1
	if fileType == layout.TypeDir {
		// "." and ".." exist before the parent can see the directory.
		if err := ino.dirLink(op, ".", ino.inum); err != nil {
			return Info{}, err
		}
		if err := ino.dirLink(op, "..", dp.inum); err != nil {
			return Info{}, err
		}
	}
	if err := ino.update(op); err != nil {
		return Info{}, err
	}

	if err := dp.dirLink(op, name, ino.inum); err != nil {
		return Info{}, err
	}
	if fileType == layout.TypeDir {
		dp.dinode.NLink++ // for ".."
		if err := dp.update(op); err != nil {
			return Info{}, err
		}
	}
	return ino.info(), nil
}

// ReadAt reads up to len(p) bytes from the file at offset off.
func (fs *FS) ReadAt(inum uint32, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= layout.MaxFileBlocks*layout.BlockSize {
		// Past the largest representable file, so past EOF.
		return 0, nil
	}
	ino, err := fs.getInode(inum)
	if err != nil {
		return 0, err
	}
	defer fs.putInode(nil, ino)
	if err := ino.lock(); err != nil {
		return 0, err
	}
	defer ino.unlock()
	if ino.dinode.Type == layout.TypeDir {
		return 0, ErrIsDir
	}
	return ino.readAt(p, uint32(off))
}

// WriteAt writes p at offset off, growing the file as needed. The
// write is split into chunks so each journal operation stays inside
// the bounded-operation budget; a crash can leave a prefix of the
// chunks applied, each chunk atomically.
func (fs *FS) WriteAt(inum uint32, p []byte, off int64) (int, error) {
	if fs.readOnly {
		return 0, ErrReadOnly
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= layout.MaxFileBlocks*layout.BlockSize {
		// Guard before the uint32 conversions below: a wrapped offset
		// would land the write inside existing data.
		return 0, ErrFileTooLarge
	}
	ino, err := fs.getInode(inum)
	if err != nil {
		return 0, err
	}
	defer fs.putInode(nil, ino)

	written := 0
	for written < len(p) {
		chunk := min(len(p)-written, maxChunkBlocks*layout.BlockSize)

		op, err := fs.log.Begin()
		if err != nil {
			return written, err
		}
		if err := ino.lock(); err != nil {
			op.End()
			return written, err
		}
		if ino.dinode.Type == layout.TypeDir {
			ino.unlock()
			op.End()
			return written, ErrIsDir
		}
		n, err := ino.writeAt(op, p[written:written+chunk], uint32(off)+uint32(written))
		ino.unlock()
		if endErr := op.End(); endErr != nil && err == nil {
			err = endErr
		}
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Truncate sets the file size. Shrinking frees whole blocks past the
// new end and zeroes the tail of a partial block; growing exposes a
// hole that reads as zeroes.
func (fs *FS) Truncate(inum uint32, size uint32) (err error) {
	if fs.readOnly {
		return ErrReadOnly
	}
	ino, err := fs.getInode(inum)
	if err != nil {
		return err
	}
	defer fs.putInode(nil, ino)

	op, err := fs.log.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if endErr := op.End(); endErr != nil && err == nil {
			err = endErr
		}
	}()

	if err := ino.lock(); err != nil {
		return err
	}
	defer ino.unlock()
	if ino.dinode.Type == layout.TypeDir {
		return ErrIsDir
	}

	switch {
	case size == 0:
		return ino.truncate(op)
	case size >= ino.dinode.Size:
		ino.dinode.Size = size
		return ino.update(op)
	default:
		return ino.shrink(op, size)
	}
}

// shrink implements Truncate to a smaller non-zero size. Caller holds
// the inode lock.
func (ino *Inode) shrink(op opWriter, size uint32) error {
	fs := ino.fs
	keep := (size + layout.BlockSize - 1) / layout.BlockSize

	for n := keep; n < layout.NDirect; n++ {
		if ino.dinode.Addrs[n] != 0 {
			if err := fs.freeBlock(op, ino.dinode.Addrs[n]); err != nil {
				return err
			}
			ino.dinode.Addrs[n] = 0
		}
	}
	if indirect := ino.dinode.Addrs[layout.NDirect]; indirect != 0 {
		b, err := fs.cache.Acquire(fs.devnum, indirect)
		if err != nil {
			return err
		}
		start := uint32(0)
		if keep > layout.NDirect {
			start = keep - layout.NDirect
		}
		changed := false
		var freed []uint32
		b.Lock()
		for i := start; i < layout.NIndirect; i++ {
			if bno := decodeAddr(b.Data(), i); bno != 0 {
				freed = append(freed, bno)
				encodeAddr(b.Data(), i, 0)
				changed = true
			}
		}
		b.Unlock()
		if changed {
			op.Write(b)
		}
		fs.cache.Release(b)
		for _, bno := range freed {
			if err := fs.freeBlock(op, bno); err != nil {
				return err
			}
		}
		if start == 0 {
			if err := fs.freeBlock(op, indirect); err != nil {
				return err
			}
			ino.dinode.Addrs[layout.NDirect] = 0
		}
	}

	// Zero the tail of the last kept block so a later grow does not
	// resurrect stale bytes.
	if tail := size % layout.BlockSize; tail != 0 {
		bno, err := ino.blockForOffset(nil, size/layout.BlockSize)
		if err != nil {
			return err
		}
		if bno != 0 {
			b, err := fs.cache.Acquire(fs.devnum, bno)
			if err != nil {
				return err
			}
			b.Lock()
			clear(b.Data()[tail:])
			b.Unlock()
			op.Write(b)
			fs.cache.Release(b)
		}
	}

	ino.dinode.Size = size
	return ino.update(op)
}

// Link adds a new directory entry name in dir referring to the
// existing file inum.
func (fs *FS) Link(inum uint32, dir uint32, name string) (err error) {
	if fs.readOnly {
		return ErrReadOnly
	}
	ino, err := fs.getInode(inum)
	if err != nil {
		return err
	}
	defer fs.putInode(nil, ino)
	dp, err := fs.getInode(dir)
	if err != nil {
		return err
	}
	defer fs.putInode(nil, dp)

	op, err := fs.log.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if endErr := op.End(); endErr != nil && err == nil {
			err = endErr
		}
	}()

	if err := ino.lock(); err != nil {
		return err
	}
	if ino.dinode.Type == layout.TypeDir {
		ino.unlock()
		return fmt.Errorf("link %q: %w", name, ErrIsDir)
	}
	ino.dinode.NLink++
	err = ino.update(op)
	ino.unlock()
	if err != nil {
		return err
	}

	if err := dp.lock(); err != nil {
		return err
	}
	err = dp.dirLink(op, name, inum)
	dp.unlock()
	if err != nil {
		// Undo the link count bump so the inode is not leaked.
		if lockErr := ino.lock(); lockErr == nil {
			ino.dinode.NLink--
			ino.update(op)
			ino.unlock()
		}
		return err
	}
	return nil
}

// Unlink removes the entry name from directory dir. The file's
// contents are freed when the link count and the in-core reference
// count both reach zero.
func (fs *FS) Unlink(dir uint32, name string) error {
	return fs.removeEntry(dir, name, false)
}

// Rmdir removes the empty directory name from directory dir.
func (fs *FS) Rmdir(dir uint32, name string) error {
	return fs.removeEntry(dir, name, true)
}

func (fs *FS) removeEntry(dir uint32, name string, wantDir bool) (err error) {
	if fs.readOnly {
		return ErrReadOnly
	}
	if name == "." || name == ".." {
		return fmt.Errorf("cannot remove %q", name)
	}
	dp, err := fs.getInode(dir)
	if err != nil {
		return err
	}
	defer fs.putInode(nil, dp)

	op, err := fs.log.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if endErr := op.End(); endErr != nil && err == nil {
			err = endErr
		}
	}()

	if err := dp.lock(); err != nil {
		return err
	}
	defer dp.unlock()

	inum, offset, err := dp.dirLookup(name)
	if err != nil {
		return fmt.Errorf("remove %q: %w", name, err)
	}
	ino, err := fs.getInode(inum)
	if err != nil {
		return err
	}
	defer fs.putInode(op, ino)

	if err := ino.lock(); err != nil {
		return err
	}
	defer ino.unlock()

	isDir := ino.dinode.Type == layout.TypeDir
	if wantDir && !isDir {
		return fmt.Errorf("remove %q: %w", name, ErrNotDir)
	}
	if !wantDir && isDir {
		return fmt.Errorf("remove %q: %w", name, ErrIsDir)
	}
	if isDir {
		empty, err := ino.isDirEmpty()
		if err != nil {
			return err
		}
		if !empty {
			return fmt.Errorf("remove %q: %w", name, ErrNotEmpty)
		}
	}

	if err := dp.dirUnlink(op, offset); err != nil {
		return err
	}
	if isDir {
		dp.dinode.NLink-- // the removed directory's ".."
		if err := dp.update(op); err != nil {
			return err
		}
	}
	ino.dinode.NLink--
	return ino.update(op)
}

// Rename moves olddir/oldname to newdir/newname, replacing an existing
// target file (or empty directory) at the destination.
func (fs *FS) Rename(olddir uint32, oldname string, newdir uint32, newname string) (err error) {
	if fs.readOnly {
		return ErrReadOnly
	}
	if oldname == "." || oldname == ".." || newname == "." || newname == ".." {
		return fmt.Errorf("cannot rename %q to %q", oldname, newname)
	}

	// Rename's lock footprint spans up to four inodes with no natural
	// order; a single mutex serializes renames against each other and
	// sequential locking handles the rest.
	fs.renameMu.Lock()
	defer fs.renameMu.Unlock()

	op, err := fs.log.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if endErr := op.End(); endErr != nil && err == nil {
			err = endErr
		}
	}()

	src, err := fs.getInode(olddir)
	if err != nil {
		return err
	}
	defer fs.putInode(nil, src)

	if err := src.lock(); err != nil {
		return err
	}
	inum, offset, err := src.dirLookup(oldname)
	src.unlock()
	if err != nil {
		return fmt.Errorf("rename %q: %w", oldname, err)
	}
	ino, err := fs.getInode(inum)
	if err != nil {
		return err
	}
	defer fs.putInode(op, ino)
	if err := ino.lock(); err != nil {
		return err
	}
	movingDir := ino.dinode.Type == layout.TypeDir
	ino.unlock()

	// Drop any existing target first.
	if err := fs.removeTarget(op, newdir, newname, movingDir); err != nil {
		return err
	}

	dst := src
	if newdir != olddir {
		dst, err = fs.getInode(newdir)
		if err != nil {
			return err
		}
		defer fs.putInode(nil, dst)
	}

	if err := dst.lock(); err != nil {
		return err
	}
	err = dst.dirLink(op, newname, inum)
	dst.unlock()
	if err != nil {
		return fmt.Errorf("rename to %q: %w", newname, err)
	}

	if err := src.lock(); err != nil {
		return err
	}
	err = src.dirUnlink(op, offset)
	src.unlock()
	if err != nil {
		return err
	}

	if movingDir && newdir != olddir {
		// Rewrite ".." and move the parent link count.
		if err := ino.lock(); err != nil {
			return err
		}
		_, dotdot, lookupErr := ino.dirLookup("..")
		if lookupErr == nil {
			var raw [layout.DirentSize]byte
			layout.EncodeDirent(raw[:], &layout.Dirent{Inum: uint16(newdir), Name: ".."})
			_, lookupErr = ino.writeAt(op, raw[:], dotdot)
		}
		ino.unlock()
		if lookupErr != nil {
			return fmt.Errorf("rewriting ..: %w", lookupErr)
		}

		if err := src.lock(); err != nil {
			return err
		}
		src.dinode.NLink--
		err = src.update(op)
		src.unlock()
		if err != nil {
			return err
		}
		if err := dst.lock(); err != nil {
			return err
		}
		dst.dinode.NLink++
		err = dst.update(op)
		dst.unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// removeTarget unlinks newdir/newname if it exists, enforcing the
// usual replace rules: a directory may only replace an empty
// directory, a file only a file.
func (fs *FS) removeTarget(op opWriter, newdir uint32, newname string, movingDir bool) error {
	dp, err := fs.getInode(newdir)
	if err != nil {
		return err
	}
	defer fs.putInode(nil, dp)

	if err := dp.lock(); err != nil {
		return err
	}
	defer dp.unlock()

	inum, offset, err := dp.dirLookup(newname)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	target, err := fs.getInode(inum)
	if err != nil {
		return err
	}
	defer fs.putInode(op, target)
	if err := target.lock(); err != nil {
		return err
	}
	defer target.unlock()

	targetDir := target.dinode.Type == layout.TypeDir
	if movingDir != targetDir {
		if targetDir {
			return fmt.Errorf("rename target %q: %w", newname, ErrIsDir)
		}
		return fmt.Errorf("rename target %q: %w", newname, ErrNotDir)
	}
	if targetDir {
		empty, err := target.isDirEmpty()
		if err != nil {
			return err
		}
		if !empty {
			return fmt.Errorf("rename target %q: %w", newname, ErrNotEmpty)
		}
	}

	if err := dp.dirUnlink(op, offset); err != nil {
		return err
	}
	if targetDir {
		dp.dinode.NLink--
		if err := dp.update(op); err != nil {
			return err
		}
	}
	target.dinode.NLink--
	return target.update(op)
}
