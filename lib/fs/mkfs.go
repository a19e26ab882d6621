// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"fmt"
	"log/slog"

	"github.com/stratafs/strata/lib/device"
	"github.com/stratafs/strata/lib/layout"
)

// MkfsOptions configures Mkfs.
type MkfsOptions struct {
	// Blocks is the image size. Zero uses layout.DefaultImageBlocks.
	Blocks uint32
	// Inodes is the inode count. Zero derives one inode per four data
	// blocks, capped to what the geometry can hold.
	Inodes uint32
	// Logger receives a summary of the created layout. If nil, logging
	// is discarded.
	Logger *slog.Logger
}

// Mkfs formats dev as an empty strata filesystem: superblock, empty
// log, inode region with the root directory, and a bitmap with every
// metadata block marked in use. It writes the device directly; the
// image is not mounted and no cache or journal is involved.
func Mkfs(dev device.Device, options MkfsOptions) (layout.Geometry, error) {
	blocks := options.Blocks
	if blocks == 0 {
		blocks = layout.DefaultImageBlocks
	}
	if blocks > dev.BlockCount() {
		return layout.Geometry{}, fmt.Errorf("mkfs: %d blocks requested but device has %d", blocks, dev.BlockCount())
	}
	inodes := options.Inodes
	if inodes == 0 {
		inodes = blocks / 4
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	g, err := layout.NewGeometry(blocks, inodes)
	if err != nil {
		return layout.Geometry{}, fmt.Errorf("mkfs: %w", err)
	}
	sb := g.SuperBlock()

	zero := make([]byte, layout.BlockSize)
	for bno := uint32(0); bno < blocks; bno++ {
		if err := dev.WriteBlock(bno, zero); err != nil {
			return layout.Geometry{}, fmt.Errorf("mkfs: zeroing: %w", err)
		}
	}

	block := make([]byte, layout.BlockSize)
	layout.EncodeSuperBlock(block, &sb)
	if err := dev.WriteBlock(1, block); err != nil {
		return layout.Geometry{}, fmt.Errorf("mkfs: writing superblock: %w", err)
	}

	// Root directory: inode RootIno of type dir holding "." and "..",
	// both pointing at itself, stored in the first data block.
	rootData := g.DataStart
	clear(block)
	layout.EncodeDirent(block[0:], &layout.Dirent{Inum: layout.RootIno, Name: "."})
	layout.EncodeDirent(block[layout.DirentSize:], &layout.Dirent{Inum: layout.RootIno, Name: ".."})
	if err := dev.WriteBlock(rootData, block); err != nil {
		return layout.Geometry{}, fmt.Errorf("mkfs: writing root directory: %w", err)
	}

	clear(block)
	root := layout.Dinode{
		Type:  layout.TypeDir,
		NLink: 2, // its own ".." plus the convention that the root is its own parent
		Size:  2 * layout.DirentSize,
	}
	root.Addrs[0] = rootData
	offset := (layout.RootIno % layout.InodesPerBlock) * layout.DinodeSize
	layout.EncodeDinode(block[offset:], &root)
	if err := dev.WriteBlock(sb.InodeBlock(layout.RootIno), block); err != nil {
		return layout.Geometry{}, fmt.Errorf("mkfs: writing root inode: %w", err)
	}

	// Mark every block up to and including the root's data block as
	// allocated. The metadata region is contiguous from block 0, so
	// this is a prefix of set bits.
	used := rootData + 1
	for bitmapIndex := uint32(0); bitmapIndex < g.BitmapBlocks; bitmapIndex++ {
		clear(block)
		base := bitmapIndex * layout.BitsPerBlock
		for bit := uint32(0); bit < layout.BitsPerBlock; bit++ {
			if base+bit >= used {
				break
			}
			block[bit/8] |= 1 << (bit % 8)
		}
		if err := dev.WriteBlock(sb.BitmapStart+bitmapIndex, block); err != nil {
			return layout.Geometry{}, fmt.Errorf("mkfs: writing bitmap: %w", err)
		}
	}

	if err := dev.Sync(); err != nil {
		return layout.Geometry{}, fmt.Errorf("mkfs: %w", err)
	}
	logger.Info("filesystem created",
		"blocks", blocks, "inodes", inodes,
		"log_start", g.LogStart, "inode_start", g.InodeStart,
		"bitmap_start", g.BitmapStart, "data_start", g.DataStart)
	return g, nil
}
