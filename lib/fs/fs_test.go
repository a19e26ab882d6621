// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stratafs/strata/lib/device"
	"github.com/stratafs/strata/lib/layout"
)

// newTestFS formats and mounts a fresh in-memory image.
func newTestFS(t *testing.T) (*FS, *device.MemDevice) {
	t.Helper()
	dev := device.NewMem(layout.DefaultImageBlocks)
	if _, err := Mkfs(dev, MkfsOptions{}); err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	fs, err := Mount(dev, Options{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(func() { fs.Unmount() })
	return fs, dev
}

func TestMountRejectsUnformattedDevice(t *testing.T) {
	dev := device.NewMem(64)
	if _, err := Mount(dev, Options{}); err == nil {
		t.Fatal("Mount accepted an unformatted device")
	}
}

func TestMountRejectsUndersizedCache(t *testing.T) {
	dev := device.NewMem(layout.DefaultImageBlocks)
	if _, err := Mkfs(dev, MkfsOptions{}); err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	if _, err := Mount(dev, Options{CacheSlots: layout.LogBlocks - 1}); err == nil {
		t.Fatal("Mount accepted a cache smaller than the log can pin")
	}
}

func TestRootDirectory(t *testing.T) {
	fs, _ := newTestFS(t)

	info, err := fs.Stat(layout.RootIno)
	if err != nil {
		t.Fatalf("Stat(root): %v", err)
	}
	if info.Type != layout.TypeDir {
		t.Errorf("root type = %d, want dir", info.Type)
	}

	entries, err := fs.ReadDir(layout.RootIno)
	if err != nil {
		t.Fatalf("ReadDir(root): %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "." || entries[1].Name != ".." {
		t.Errorf("root entries = %+v, want . and ..", entries)
	}
}

func TestCreateWriteReadRoundtrip(t *testing.T) {
	fs, _ := newTestFS(t)

	info, err := fs.Create(layout.RootIno, "hello.txt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	payload := []byte("hello, strata")
	n, err := fs.WriteAt(info.Inum, payload, 0)
	if err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("WriteAt wrote %d bytes, want %d", n, len(payload))
	}

	read := make([]byte, len(payload))
	n, err = fs.ReadAt(info.Inum, read, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if n != len(payload) || !bytes.Equal(read, payload) {
		t.Errorf("ReadAt = %q (%d bytes), want %q", read[:n], n, payload)
	}

	// Lookup finds it; a second create of the same name fails.
	found, err := fs.Lookup(layout.RootIno, "hello.txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found.Inum != info.Inum || found.Size != uint32(len(payload)) {
		t.Errorf("Lookup = %+v, want inum %d size %d", found, info.Inum, len(payload))
	}
	if _, err := fs.Create(layout.RootIno, "hello.txt"); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate Create: got %v, want ErrExists", err)
	}
}

func TestPersistenceAcrossRemount(t *testing.T) {
	dev := device.NewMem(layout.DefaultImageBlocks)
	if _, err := Mkfs(dev, MkfsOptions{}); err != nil {
		t.Fatalf("Mkfs: %v", err)
	}

	fs, err := Mount(dev, Options{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	info, err := fs.Create(layout.RootIno, "persist")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.WriteAt(info.Inum, []byte("still here"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := fs.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	remounted, err := Mount(dev, Options{})
	if err != nil {
		t.Fatalf("remount: %v", err)
	}
	defer remounted.Unmount()

	found, err := remounted.Lookup(layout.RootIno, "persist")
	if err != nil {
		t.Fatalf("Lookup after remount: %v", err)
	}
	read := make([]byte, 10)
	if _, err := remounted.ReadAt(found.Inum, read, 0); err != nil {
		t.Fatalf("ReadAt after remount: %v", err)
	}
	if string(read) != "still here" {
		t.Errorf("content after remount = %q", read)
	}
}

func TestLargeFileCrossesIndirectBoundary(t *testing.T) {
	fs, _ := newTestFS(t)

	info, err := fs.Create(layout.RootIno, "big")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Write past the direct blocks into the indirect region.
	size := (layout.NDirect + 5) * layout.BlockSize
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	if _, err := fs.WriteAt(info.Inum, payload, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	read := make([]byte, size)
	if _, err := fs.ReadAt(info.Inum, read, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(read, payload) {
		t.Fatal("large file content mismatch across the indirect boundary")
	}

	// Partial read straddling the boundary.
	offset := int64((layout.NDirect - 1) * layout.BlockSize)
	window := make([]byte, 3*layout.BlockSize)
	if _, err := fs.ReadAt(info.Inum, window, offset); err != nil {
		t.Fatalf("ReadAt at boundary: %v", err)
	}
	if !bytes.Equal(window, payload[offset:offset+int64(len(window))]) {
		t.Error("boundary window mismatch")
	}
}

func TestFileTooLarge(t *testing.T) {
	fs, _ := newTestFS(t)
	info, err := fs.Create(layout.RootIno, "huge")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	limit := int64(layout.MaxFileBlocks) * layout.BlockSize
	if _, err := fs.WriteAt(info.Inum, []byte("x"), limit); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("write past max size: got %v, want ErrFileTooLarge", err)
	}
}

func TestHugeOffsetDoesNotWrap(t *testing.T) {
	fs, _ := newTestFS(t)

	info, err := fs.Create(layout.RootIno, "small")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload := []byte("hello")
	if _, err := fs.WriteAt(info.Inum, payload, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	// An offset past the maximum file size must not truncate into the
	// existing data.
	if _, err := fs.WriteAt(info.Inum, []byte("XX"), 1<<32); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("WriteAt at 1<<32: got %v, want ErrFileTooLarge", err)
	}
	n, err := fs.ReadAt(info.Inum, make([]byte, 2), 1<<32)
	if n != 0 || err != nil {
		t.Errorf("ReadAt at 1<<32 = (%d, %v), want EOF", n, err)
	}

	read := make([]byte, len(payload))
	if _, err := fs.ReadAt(info.Inum, read, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(read, payload) {
		t.Errorf("data at offset 0 = %q, want %q", read, payload)
	}
	stat, err := fs.Stat(info.Inum)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat.Size != uint32(len(payload)) {
		t.Errorf("size = %d after rejected writes, want %d", stat.Size, len(payload))
	}
}

func TestWriteFillsFileToLimit(t *testing.T) {
	fs, _ := newTestFS(t)

	info, err := fs.Create(layout.RootIno, "full")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A file may grow to exactly MaxFileBlocks blocks; one byte more
	// must be refused.
	const limit = layout.MaxFileBlocks * layout.BlockSize
	n, err := fs.WriteAt(info.Inum, make([]byte, limit), 0)
	if err != nil {
		t.Fatalf("WriteAt to the size limit: %v", err)
	}
	if n != limit {
		t.Fatalf("wrote %d bytes, want %d", n, limit)
	}
	stat, err := fs.Stat(info.Inum)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat.Size != limit {
		t.Errorf("size = %d, want %d", stat.Size, limit)
	}
	if _, err := fs.WriteAt(info.Inum, []byte("x"), limit); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("write past the limit: got %v, want ErrFileTooLarge", err)
	}
}

func TestFailedCreateLeavesNoOrphanInode(t *testing.T) {
	dev := device.NewMem(64)
	g, err := Mkfs(dev, MkfsOptions{Blocks: 48, Inodes: 80})
	if err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	fs, err := Mount(dev, Options{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	// Exhaust the data region so directory growth fails.
	fill, err := fs.Create(layout.RootIno, "fill")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	block := make([]byte, layout.BlockSize)
	var off int64
	for {
		if _, err := fs.WriteAt(fill.Inum, block, off); err != nil {
			if !errors.Is(err, ErrNoSpace) {
				t.Fatalf("WriteAt: %v", err)
			}
			break
		}
		off += layout.BlockSize
	}

	// Creates succeed while the root directory block has entry slots,
	// then fail once dirLink would need a fresh block.
	created := 0
	for {
		if created > 2*layout.BlockSize/layout.DirentSize {
			t.Fatal("root directory never filled")
		}
		_, err := fs.Create(layout.RootIno, fmt.Sprintf("f%02d", created))
		if err != nil {
			if !errors.Is(err, ErrNoSpace) {
				t.Fatalf("Create: got %v, want ErrNoSpace", err)
			}
			break
		}
		created++
	}
	if err := fs.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	// The failed create must not leave an allocated inode behind:
	// only the root, the filler, and the linked files are on disk.
	used := 0
	for b := uint32(0); b < g.InodeBlocks; b++ {
		blk := dev.Peek(g.InodeStart + b)
		for i := uint32(0); i < layout.InodesPerBlock; i++ {
			if b*layout.InodesPerBlock+i >= g.Inodes {
				break
			}
			if layout.DecodeDinode(blk[i*layout.DinodeSize:]).Type != layout.TypeFree {
				used++
			}
		}
	}
	if want := created + 2; used != want {
		t.Errorf("%d allocated inodes on disk, want %d", used, want)
	}
}

func TestUnlinkFreesBlocks(t *testing.T) {
	fs, _ := newTestFS(t)

	countFree := func() int {
		t.Helper()
		free := 0
		sb := fs.SuperBlock()
		for bno := sb.DataStart(); bno < sb.Size; bno++ {
			bitmap, err := fs.cache.Acquire(fs.devnum, sb.BitmapBlock(bno))
			if err != nil {
				t.Fatalf("Acquire bitmap: %v", err)
			}
			bit := bno % layout.BitsPerBlock
			bitmap.Lock()
			if bitmap.Data()[bit/8]&(1<<(bit%8)) == 0 {
				free++
			}
			bitmap.Unlock()
			fs.cache.Release(bitmap)
		}
		return free
	}

	before := countFree()

	info, err := fs.Create(layout.RootIno, "victim")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.WriteAt(info.Inum, make([]byte, 20*layout.BlockSize), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if countFree() >= before {
		t.Fatal("write did not consume data blocks")
	}

	if err := fs.Unlink(layout.RootIno, "victim"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if got := countFree(); got != before {
		t.Errorf("free blocks after unlink = %d, want %d", got, before)
	}
	if _, err := fs.Lookup(layout.RootIno, "victim"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup after unlink: got %v, want ErrNotFound", err)
	}
}

func TestLinkCounts(t *testing.T) {
	fs, _ := newTestFS(t)

	info, err := fs.Create(layout.RootIno, "a")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.WriteAt(info.Inum, []byte("shared"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	if err := fs.Link(info.Inum, layout.RootIno, "b"); err != nil {
		t.Fatalf("Link: %v", err)
	}
	linked, err := fs.Stat(info.Inum)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if linked.NLink != 2 {
		t.Errorf("NLink after link = %d, want 2", linked.NLink)
	}

	// Removing one name keeps the content reachable via the other.
	if err := fs.Unlink(layout.RootIno, "a"); err != nil {
		t.Fatalf("Unlink(a): %v", err)
	}
	read := make([]byte, 6)
	viaB, err := fs.Lookup(layout.RootIno, "b")
	if err != nil {
		t.Fatalf("Lookup(b): %v", err)
	}
	if _, err := fs.ReadAt(viaB.Inum, read, 0); err != nil {
		t.Fatalf("ReadAt via b: %v", err)
	}
	if string(read) != "shared" {
		t.Errorf("content via b = %q", read)
	}
	if viaB.NLink != 1 {
		t.Errorf("NLink after unlink = %d, want 1", viaB.NLink)
	}
}

func TestMkdirRmdir(t *testing.T) {
	fs, _ := newTestFS(t)

	sub, err := fs.Mkdir(layout.RootIno, "sub")
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	entries, err := fs.ReadDir(sub.Inum)
	if err != nil {
		t.Fatalf("ReadDir(sub): %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("new directory has %d entries, want . and ..", len(entries))
	}

	// A populated directory refuses Rmdir.
	if _, err := fs.Create(sub.Inum, "file"); err != nil {
		t.Fatalf("Create in sub: %v", err)
	}
	if err := fs.Rmdir(layout.RootIno, "sub"); !errors.Is(err, ErrNotEmpty) {
		t.Errorf("Rmdir of populated dir: got %v, want ErrNotEmpty", err)
	}

	if err := fs.Unlink(sub.Inum, "file"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if err := fs.Rmdir(layout.RootIno, "sub"); err != nil {
		t.Fatalf("Rmdir of empty dir: %v", err)
	}
	if _, err := fs.Lookup(layout.RootIno, "sub"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup after rmdir: got %v, want ErrNotFound", err)
	}

	// Rmdir on a file and Unlink on a directory are both type errors.
	if _, err := fs.Create(layout.RootIno, "plain"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := fs.Rmdir(layout.RootIno, "plain"); !errors.Is(err, ErrNotDir) {
		t.Errorf("Rmdir on file: got %v, want ErrNotDir", err)
	}
	if _, err := fs.Mkdir(layout.RootIno, "d"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Unlink(layout.RootIno, "d"); !errors.Is(err, ErrIsDir) {
		t.Errorf("Unlink on dir: got %v, want ErrIsDir", err)
	}
}

func TestRename(t *testing.T) {
	fs, _ := newTestFS(t)

	info, err := fs.Create(layout.RootIno, "old")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fs.WriteAt(info.Inum, []byte("moved"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	// Same-directory rename.
	if err := fs.Rename(layout.RootIno, "old", layout.RootIno, "new"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := fs.Lookup(layout.RootIno, "old"); !errors.Is(err, ErrNotFound) {
		t.Error("old name still present after rename")
	}
	moved, err := fs.Lookup(layout.RootIno, "new")
	if err != nil {
		t.Fatalf("Lookup(new): %v", err)
	}
	if moved.Inum != info.Inum {
		t.Error("rename changed the inode")
	}

	// Cross-directory rename of a directory fixes ".." and parent
	// link counts.
	sub, err := fs.Mkdir(layout.RootIno, "sub")
	if err != nil {
		t.Fatalf("Mkdir(sub): %v", err)
	}
	child, err := fs.Mkdir(layout.RootIno, "child")
	if err != nil {
		t.Fatalf("Mkdir(child): %v", err)
	}
	if err := fs.Rename(layout.RootIno, "child", sub.Inum, "child"); err != nil {
		t.Fatalf("cross-directory Rename: %v", err)
	}
	dotdot, err := fs.Lookup(child.Inum, "..")
	if err != nil {
		t.Fatalf("Lookup(..): %v", err)
	}
	if dotdot.Inum != sub.Inum {
		t.Errorf(".. = inode %d after move, want %d", dotdot.Inum, sub.Inum)
	}

	// Rename over an existing file replaces it.
	replacement, err := fs.Create(layout.RootIno, "src")
	if err != nil {
		t.Fatalf("Create(src): %v", err)
	}
	if err := fs.Rename(layout.RootIno, "src", layout.RootIno, "new"); err != nil {
		t.Fatalf("replacing Rename: %v", err)
	}
	now, err := fs.Lookup(layout.RootIno, "new")
	if err != nil {
		t.Fatalf("Lookup after replace: %v", err)
	}
	if now.Inum != replacement.Inum {
		t.Error("rename did not replace the target")
	}
}

func TestTruncate(t *testing.T) {
	fs, _ := newTestFS(t)

	info, err := fs.Create(layout.RootIno, "t")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	payload := make([]byte, 3*layout.BlockSize)
	for i := range payload {
		payload[i] = 0xee
	}
	if _, err := fs.WriteAt(info.Inum, payload, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	// Shrink into the middle of a block.
	newSize := uint32(layout.BlockSize + 100)
	if err := fs.Truncate(info.Inum, newSize); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	stat, err := fs.Stat(info.Inum)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat.Size != newSize {
		t.Errorf("size after shrink = %d, want %d", stat.Size, newSize)
	}

	// Grow back: the former tail must read as zeroes, not 0xee.
	if err := fs.Truncate(info.Inum, 2*layout.BlockSize); err != nil {
		t.Fatalf("grow Truncate: %v", err)
	}
	read := make([]byte, 2*layout.BlockSize)
	if _, err := fs.ReadAt(info.Inum, read, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	for i := uint32(0); i < newSize; i++ {
		if read[i] != 0xee {
			t.Fatalf("byte %d = %#x, want 0xee", i, read[i])
		}
	}
	for i := newSize; i < 2*layout.BlockSize; i++ {
		if read[i] != 0 {
			t.Fatalf("byte %d = %#x after grow, want 0", i, read[i])
		}
	}

	// Truncate to zero frees everything.
	if err := fs.Truncate(info.Inum, 0); err != nil {
		t.Fatalf("Truncate(0): %v", err)
	}
	stat, err = fs.Stat(info.Inum)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if stat.Size != 0 {
		t.Errorf("size after Truncate(0) = %d", stat.Size)
	}
}

func TestResolvePaths(t *testing.T) {
	fs, _ := newTestFS(t)

	sub, err := fs.Mkdir(layout.RootIno, "a")
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := fs.Mkdir(sub.Inum, "b"); err != nil {
		t.Fatalf("Mkdir(b): %v", err)
	}
	deep, err := fs.Resolve("/a/b")
	if err != nil {
		t.Fatalf("Resolve(/a/b): %v", err)
	}
	if deep.Type != layout.TypeDir {
		t.Error("resolved inode is not a directory")
	}
	if _, err := fs.Resolve("/a/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve of missing path: got %v, want ErrNotFound", err)
	}
	root, err := fs.Resolve("/")
	if err != nil {
		t.Fatalf("Resolve(/): %v", err)
	}
	if root.Inum != layout.RootIno {
		t.Errorf("Resolve(/) = inode %d, want root", root.Inum)
	}
}

func TestReadOnlyMount(t *testing.T) {
	dev := device.NewMem(layout.DefaultImageBlocks)
	if _, err := Mkfs(dev, MkfsOptions{}); err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	fs, err := Mount(dev, Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("read-only Mount: %v", err)
	}
	defer fs.Unmount()

	if _, err := fs.Create(layout.RootIno, "x"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Create on read-only mount: got %v, want ErrReadOnly", err)
	}
	if _, err := fs.WriteAt(layout.RootIno, []byte("x"), 0); !errors.Is(err, ErrReadOnly) {
		t.Errorf("WriteAt on read-only mount: got %v, want ErrReadOnly", err)
	}
	if _, err := fs.ReadDir(layout.RootIno); err != nil {
		t.Errorf("ReadDir on read-only mount: %v", err)
	}
}

func TestMountReplaysCommittedTransaction(t *testing.T) {
	// Format an image, then fake a crash between commit point and
	// install: a log data block with new contents plus a count-bearing
	// header, written directly to the device. Mount must install it.
	dev := device.NewMem(layout.DefaultImageBlocks)
	if _, err := Mkfs(dev, MkfsOptions{}); err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	sb := layout.DecodeSuperBlock(dev.Peek(1))

	target := sb.DataStart() + 5
	logBlock := make([]byte, layout.BlockSize)
	logBlock[0] = 0xaa
	dev.Poke(sb.LogStart+1, logBlock)

	header := make([]byte, layout.BlockSize)
	header[0] = 1 // count, little-endian
	header[4] = byte(target)
	header[5] = byte(target >> 8)
	dev.Poke(sb.LogStart, header)

	fs, err := Mount(dev, Options{})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	defer fs.Unmount()

	if got := dev.Peek(target); got[0] != 0xaa {
		t.Errorf("block %d = %#x after mount, want 0xaa (replayed)", target, got[0])
	}

	// A read-only mount of the same dirty image must refuse instead.
	dirty := device.NewMem(layout.DefaultImageBlocks)
	if _, err := Mkfs(dirty, MkfsOptions{}); err != nil {
		t.Fatalf("Mkfs: %v", err)
	}
	dirty.Poke(sb.LogStart+1, logBlock)
	dirty.Poke(sb.LogStart, header)
	if _, err := Mount(dirty, Options{ReadOnly: true}); err == nil {
		t.Error("read-only Mount accepted an image with an unreplayed transaction")
	}
}

func TestNameValidation(t *testing.T) {
	fs, _ := newTestFS(t)

	long := make([]byte, layout.DirNameLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := fs.Create(layout.RootIno, string(long)); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("overlong name: got %v, want ErrNameTooLong", err)
	}
}
