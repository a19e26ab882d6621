// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/stratafs/strata/lib/layout"
)

// FileDevice serves blocks from a regular file or raw block device.
// Reads and writes use positional I/O, so concurrent transfers for
// different blocks do not serialize on a file offset.
type FileDevice struct {
	path   string
	file   *os.File
	blocks uint32

	mu     sync.Mutex
	closed bool
}

var _ Device = (*FileDevice)(nil)

// OpenFile opens an existing image file as a device. The file size
// must be a whole number of blocks.
func OpenFile(path string) (*FileDevice, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening device %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat device %s: %w", path, err)
	}
	size := info.Size()
	if size%layout.BlockSize != 0 {
		file.Close()
		return nil, fmt.Errorf("device %s: size %d is not a multiple of the block size %d",
			path, size, layout.BlockSize)
	}

	return &FileDevice{
		path:   path,
		file:   file,
		blocks: uint32(size / layout.BlockSize),
	}, nil
}

// CreateFile creates (or truncates) an image file of the given size in
// blocks and opens it as a device. The file is sparse until written.
func CreateFile(path string, blocks uint32) (*FileDevice, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating device %s: %w", path, err)
	}
	if err := file.Truncate(int64(blocks) * layout.BlockSize); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("sizing device %s to %d blocks: %w", path, blocks, err)
	}
	return &FileDevice{path: path, file: file, blocks: blocks}, nil
}

// Path returns the filesystem path backing this device.
func (d *FileDevice) Path() string { return d.path }

func (d *FileDevice) ReadBlock(blockno uint32, p []byte) error {
	if err := checkTransfer(blockno, d.blocks, p); err != nil {
		return fmt.Errorf("device %s: read block %d: %w", d.path, blockno, err)
	}
	if _, err := d.file.ReadAt(p, int64(blockno)*layout.BlockSize); err != nil {
		return fmt.Errorf("device %s: read block %d: %w", d.path, blockno, err)
	}
	return nil
}

func (d *FileDevice) WriteBlock(blockno uint32, p []byte) error {
	if err := checkTransfer(blockno, d.blocks, p); err != nil {
		return fmt.Errorf("device %s: write block %d: %w", d.path, blockno, err)
	}
	if _, err := d.file.WriteAt(p, int64(blockno)*layout.BlockSize); err != nil {
		return fmt.Errorf("device %s: write block %d: %w", d.path, blockno, err)
	}
	return nil
}

// Sync issues fdatasync. Data and block mapping reach stable storage;
// file timestamps need not, which is all the journal's barriers
// require.
func (d *FileDevice) Sync() error {
	if err := unix.Fdatasync(int(d.file.Fd())); err != nil {
		return fmt.Errorf("device %s: fdatasync: %w", d.path, err)
	}
	return nil
}

func (d *FileDevice) BlockCount() uint32 { return d.blocks }

func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.file.Close(); err != nil {
		return fmt.Errorf("closing device %s: %w", d.path, err)
	}
	return nil
}
