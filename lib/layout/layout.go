// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package layout

import (
	"encoding/binary"
	"fmt"
)

// Structural constants. These are shared by every layer from the block
// cache up to the FUSE adaptor, and by any external tool that reads a
// strata image.
const (
	// BlockSize is the size of one disk block in bytes. Every slot in
	// the block cache, every device transfer, and every on-disk region
	// is measured in these units.
	BlockSize = 1024

	// FSMagic identifies a strata superblock.
	FSMagic = 0x10203040

	// RootIno is the inode number of the root directory.
	RootIno = 1

	// NDirect is the number of direct block addresses in an inode.
	NDirect = 12

	// NIndirect is the number of block addresses held by the single
	// indirect block.
	NIndirect = BlockSize / 4

	// MaxFileBlocks is the largest file, in blocks.
	MaxFileBlocks = NDirect + NIndirect

	// InodesPerBlock is how many on-disk inodes fit in one block.
	InodesPerBlock = BlockSize / DinodeSize

	// BitsPerBlock is how many allocation bits one bitmap block covers.
	BitsPerBlock = BlockSize * 8

	// DirNameLen is the maximum length of one directory entry name.
	DirNameLen = 14

	// MaxPath is the maximum length of a path handed to the path
	// walker.
	MaxPath = 128

	// MaxOpBlocks is the most blocks any single filesystem operation
	// may write. The journal sizes its admission control around it and
	// the cache pool is a multiple of it, so one worst-case operation
	// can always pin every block it needs.
	MaxOpBlocks = 10

	// LogBlocks is the number of data blocks in the on-disk log
	// (excluding the log header block).
	LogBlocks = 3 * MaxOpBlocks

	// BufferCount is the block cache pool capacity: MaxOpBlocks times
	// a safety factor of three, so the pool is never exhausted by a
	// single bounded operation's own demand.
	BufferCount = 3 * MaxOpBlocks

	// MaxDevices bounds the device identifier space of one cache.
	MaxDevices = 10

	// MaxActiveInodes is the capacity of the in-core inode table.
	MaxActiveInodes = 50

	// DefaultImageBlocks is the default size of a formatted image.
	DefaultImageBlocks = 1000

	// MinImageBlocks is the smallest image that still has room for
	// the boot block, superblock, full log region, one inode block,
	// one bitmap block, and at least one data block.
	MinImageBlocks = 2 + 1 + LogBlocks + 1 + 1 + 1
)

// Encoded sizes of the on-disk structures.
const (
	// SuperBlockSize is the encoded size of the superblock (it
	// occupies the front of block 1; the rest of the block is zero).
	SuperBlockSize = 8 * 4

	// DinodeSize is the encoded size of one on-disk inode.
	DinodeSize = 2 + 2 + 2 + 2 + 4 + 4*(NDirect+1)

	// DirentSize is the encoded size of one directory entry.
	DirentSize = 2 + DirNameLen
)

// File types stored in Dinode.Type.
const (
	TypeFree = 0 // unallocated inode slot
	TypeDir  = 1
	TypeFile = 2
	TypeDev  = 3
)

// SuperBlock describes the layout of a formatted image. It lives in
// block 1 (block 0 is reserved for a boot block and never touched).
type SuperBlock struct {
	// Magic must equal FSMagic.
	Magic uint32 `json:"magic"`
	// Size is the total image size in blocks.
	Size uint32 `json:"size"`
	// DataBlocks is the number of data blocks.
	DataBlocks uint32 `json:"data_blocks"`
	// Inodes is the number of inodes.
	Inodes uint32 `json:"inodes"`
	// LogBlocks is the number of log data blocks (excluding the
	// header).
	LogBlocks uint32 `json:"log_blocks"`
	// LogStart is the block number of the log header.
	LogStart uint32 `json:"log_start"`
	// InodeStart is the block number of the first inode block.
	InodeStart uint32 `json:"inode_start"`
	// BitmapStart is the block number of the first bitmap block.
	BitmapStart uint32 `json:"bitmap_start"`
}

// EncodeSuperBlock writes sb into p, which must be at least
// SuperBlockSize bytes.
func EncodeSuperBlock(p []byte, sb *SuperBlock) {
	le := binary.LittleEndian
	le.PutUint32(p[0:], sb.Magic)
	le.PutUint32(p[4:], sb.Size)
	le.PutUint32(p[8:], sb.DataBlocks)
	le.PutUint32(p[12:], sb.Inodes)
	le.PutUint32(p[16:], sb.LogBlocks)
	le.PutUint32(p[20:], sb.LogStart)
	le.PutUint32(p[24:], sb.InodeStart)
	le.PutUint32(p[28:], sb.BitmapStart)
}

// DecodeSuperBlock reads a superblock from p, which must be at least
// SuperBlockSize bytes.
func DecodeSuperBlock(p []byte) SuperBlock {
	le := binary.LittleEndian
	return SuperBlock{
		Magic:       le.Uint32(p[0:]),
		Size:        le.Uint32(p[4:]),
		DataBlocks:  le.Uint32(p[8:]),
		Inodes:      le.Uint32(p[12:]),
		LogBlocks:   le.Uint32(p[16:]),
		LogStart:    le.Uint32(p[20:]),
		InodeStart:  le.Uint32(p[24:]),
		BitmapStart: le.Uint32(p[28:]),
	}
}

// Validate checks that the superblock describes a plausible strata
// image: correct magic, non-zero regions, and region boundaries inside
// the image.
func (sb *SuperBlock) Validate() error {
	if sb.Magic != FSMagic {
		return fmt.Errorf("bad magic 0x%08x (want 0x%08x)", sb.Magic, uint32(FSMagic))
	}
	if sb.Size == 0 {
		return fmt.Errorf("zero-size image")
	}
	if sb.Inodes == 0 {
		return fmt.Errorf("zero inodes")
	}
	if sb.LogBlocks == 0 || sb.LogBlocks > LogBlocks {
		return fmt.Errorf("log size %d out of range [1, %d]", sb.LogBlocks, LogBlocks)
	}
	if sb.LogStart >= sb.Size || sb.InodeStart >= sb.Size || sb.BitmapStart >= sb.Size {
		return fmt.Errorf("region start beyond image end (size %d)", sb.Size)
	}
	if !(sb.LogStart < sb.InodeStart && sb.InodeStart < sb.BitmapStart) {
		return fmt.Errorf("regions out of order: log %d, inodes %d, bitmap %d",
			sb.LogStart, sb.InodeStart, sb.BitmapStart)
	}
	return nil
}

// InodeBlock returns the block number holding inode inum.
func (sb *SuperBlock) InodeBlock(inum uint32) uint32 {
	return sb.InodeStart + inum/InodesPerBlock
}

// BitmapBlock returns the bitmap block covering data block bno.
func (sb *SuperBlock) BitmapBlock(bno uint32) uint32 {
	return sb.BitmapStart + bno/BitsPerBlock
}

// DataStart returns the block number of the first data block.
func (sb *SuperBlock) DataStart() uint32 {
	bitmapBlocks := (sb.Size + BitsPerBlock - 1) / BitsPerBlock
	return sb.BitmapStart + bitmapBlocks
}

// Dinode is the on-disk inode.
type Dinode struct {
	// Type is one of TypeFree, TypeDir, TypeFile, TypeDev.
	Type int16
	// Major and Minor are the device numbers (TypeDev only).
	Major int16
	Minor int16
	// NLink is the number of directory entries referring to this
	// inode.
	NLink int16
	// Size is the file size in bytes.
	Size uint32
	// Addrs holds NDirect direct block addresses followed by one
	// single-indirect block address. Zero means unallocated.
	Addrs [NDirect + 1]uint32
}

// EncodeDinode writes di into p, which must be at least DinodeSize
// bytes.
func EncodeDinode(p []byte, di *Dinode) {
	le := binary.LittleEndian
	le.PutUint16(p[0:], uint16(di.Type))
	le.PutUint16(p[2:], uint16(di.Major))
	le.PutUint16(p[4:], uint16(di.Minor))
	le.PutUint16(p[6:], uint16(di.NLink))
	le.PutUint32(p[8:], di.Size)
	for i, addr := range di.Addrs {
		le.PutUint32(p[12+4*i:], addr)
	}
}

// DecodeDinode reads an on-disk inode from p, which must be at least
// DinodeSize bytes.
func DecodeDinode(p []byte) Dinode {
	le := binary.LittleEndian
	di := Dinode{
		Type:  int16(le.Uint16(p[0:])),
		Major: int16(le.Uint16(p[2:])),
		Minor: int16(le.Uint16(p[4:])),
		NLink: int16(le.Uint16(p[6:])),
		Size:  le.Uint32(p[8:]),
	}
	for i := range di.Addrs {
		di.Addrs[i] = le.Uint32(p[12+4*i:])
	}
	return di
}

// Dirent is one directory entry: a fixed 16-byte record. Inum zero
// marks a free entry.
type Dirent struct {
	Inum uint16
	Name string
}

// EncodeDirent writes de into p, which must be at least DirentSize
// bytes. Names longer than DirNameLen are truncated; callers validate
// length before storing.
func EncodeDirent(p []byte, de *Dirent) {
	binary.LittleEndian.PutUint16(p[0:], de.Inum)
	name := de.Name
	if len(name) > DirNameLen {
		name = name[:DirNameLen]
	}
	copy(p[2:2+DirNameLen], name)
	for i := 2 + len(name); i < 2+DirNameLen; i++ {
		p[i] = 0
	}
}

// DecodeDirent reads a directory entry from p, which must be at least
// DirentSize bytes.
func DecodeDirent(p []byte) Dirent {
	de := Dirent{Inum: binary.LittleEndian.Uint16(p[0:])}
	name := p[2 : 2+DirNameLen]
	end := 0
	for end < len(name) && name[end] != 0 {
		end++
	}
	de.Name = string(name[:end])
	return de
}

// Geometry describes a complete image layout derived from a block
// count and inode count. Mkfs and inspect both build one so the two
// agree on every boundary.
type Geometry struct {
	Blocks       uint32 `json:"blocks"` // total image blocks
	Inodes       uint32 `json:"inodes"`
	LogStart     uint32 `json:"log_start"` // log header block
	InodeStart   uint32 `json:"inode_start"`
	BitmapStart  uint32 `json:"bitmap_start"`
	DataStart    uint32 `json:"data_start"`
	DataBlocks   uint32 `json:"data_blocks"`
	InodeBlocks  uint32 `json:"inode_blocks"`
	BitmapBlocks uint32 `json:"bitmap_blocks"`
}

// NewGeometry computes the region layout for an image of the given
// size. Block 0 is the boot block, block 1 the superblock; the log
// (header + LogBlocks) follows, then inodes, then the bitmap, then
// data.
func NewGeometry(blocks, inodes uint32) (Geometry, error) {
	g := Geometry{Blocks: blocks, Inodes: inodes}
	g.InodeBlocks = (inodes + InodesPerBlock - 1) / InodesPerBlock
	g.BitmapBlocks = (blocks + BitsPerBlock - 1) / BitsPerBlock
	g.LogStart = 2
	g.InodeStart = g.LogStart + 1 + LogBlocks
	g.BitmapStart = g.InodeStart + g.InodeBlocks
	g.DataStart = g.BitmapStart + g.BitmapBlocks
	if g.DataStart >= blocks {
		return Geometry{}, fmt.Errorf("image too small: %d blocks leaves no data region (metadata needs %d)",
			blocks, g.DataStart)
	}
	g.DataBlocks = blocks - g.DataStart
	return g, nil
}

// SuperBlock returns the superblock describing this geometry.
func (g Geometry) SuperBlock() SuperBlock {
	return SuperBlock{
		Magic:       FSMagic,
		Size:        g.Blocks,
		DataBlocks:  g.DataBlocks,
		Inodes:      g.Inodes,
		LogBlocks:   LogBlocks,
		LogStart:    g.LogStart,
		InodeStart:  g.InodeStart,
		BitmapStart: g.BitmapStart,
	}
}
