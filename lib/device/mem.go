// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stratafs/strata/lib/layout"
)

// MemDevice is an in-memory block device for tests and benchmarks.
// Beyond plain storage it offers the fault and observation hooks the
// cache and journal tests need: per-block read errors, failure after
// N writes (crash simulation), and transfer counters.
type MemDevice struct {
	mu     sync.Mutex
	blocks [][]byte
	closed bool

	reads  uint64
	writes uint64
	syncs  uint64

	// failReads maps block numbers to the error returned on read.
	failReads map[uint32]error

	// writesRemaining, when >= 0, counts down on each write; when it
	// hits zero further writes fail. Simulates a crash mid-commit.
	writesRemaining int
}

var _ Device = (*MemDevice)(nil)

// NewMem returns a zero-filled in-memory device of the given size in
// blocks.
func NewMem(blocks uint32) *MemDevice {
	d := &MemDevice{
		blocks:          make([][]byte, blocks),
		failReads:       make(map[uint32]error),
		writesRemaining: -1,
	}
	for i := range d.blocks {
		d.blocks[i] = make([]byte, layout.BlockSize)
	}
	return d
}

func (d *MemDevice) ReadBlock(blockno uint32, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("memdevice: read on closed device")
	}
	if err := checkTransfer(blockno, uint32(len(d.blocks)), p); err != nil {
		return fmt.Errorf("memdevice: read block %d: %w", blockno, err)
	}
	if err, ok := d.failReads[blockno]; ok {
		return fmt.Errorf("memdevice: read block %d: %w", blockno, err)
	}
	d.reads++
	copy(p, d.blocks[blockno])
	return nil
}

func (d *MemDevice) WriteBlock(blockno uint32, p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("memdevice: write on closed device")
	}
	if err := checkTransfer(blockno, uint32(len(d.blocks)), p); err != nil {
		return fmt.Errorf("memdevice: write block %d: %w", blockno, err)
	}
	if d.writesRemaining == 0 {
		return fmt.Errorf("memdevice: write block %d: device failed", blockno)
	}
	if d.writesRemaining > 0 {
		d.writesRemaining--
	}
	d.writes++
	copy(d.blocks[blockno], p)
	return nil
}

func (d *MemDevice) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("memdevice: sync on closed device")
	}
	d.syncs++
	return nil
}

func (d *MemDevice) BlockCount() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(len(d.blocks))
}

func (d *MemDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// FailRead makes subsequent reads of blockno return err. Pass a nil
// error to clear the fault.
func (d *MemDevice) FailRead(blockno uint32, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failReads, blockno)
		return
	}
	d.failReads[blockno] = err
}

// FailAfterWrites makes the device fail every write after the next n
// succeed. Pass a negative n to restore normal operation.
func (d *MemDevice) FailAfterWrites(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writesRemaining = n
}

// Counters returns the number of reads, writes, and syncs served.
func (d *MemDevice) Counters() (reads, writes, syncs uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads, d.writes, d.syncs
}

// Peek copies block blockno into a fresh slice, bypassing the fault
// hooks. Tests use it to assert on-disk state directly.
func (d *MemDevice) Peek(blockno uint32) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := make([]byte, layout.BlockSize)
	copy(p, d.blocks[blockno])
	return p
}

// Poke overwrites block blockno directly, bypassing the fault hooks.
// Tests use it to construct on-disk state (for example a committed log
// that was never installed).
func (d *MemDevice) Poke(blockno uint32, p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.blocks[blockno], p)
}
