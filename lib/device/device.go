// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"

	"github.com/stratafs/strata/lib/layout"
)

// ErrOutOfRange reports a block number at or past the device end.
var ErrOutOfRange = errors.New("block number out of range")

// Device is one block-addressed backing store. Implementations are
// safe for concurrent use; the block cache issues reads for distinct
// blocks in parallel.
type Device interface {
	// ReadBlock fills p with the contents of block blockno. p must be
	// exactly layout.BlockSize bytes.
	ReadBlock(blockno uint32, p []byte) error

	// WriteBlock writes p to block blockno. p must be exactly
	// layout.BlockSize bytes.
	WriteBlock(blockno uint32, p []byte) error

	// Sync blocks until every preceding WriteBlock is durable. The
	// journal uses this as its write barrier between the log, the
	// commit record, and the install phase.
	Sync() error

	// BlockCount returns the device size in blocks.
	BlockCount() uint32

	// Close releases the device. Reads and writes after Close fail.
	Close() error
}

// checkTransfer validates a read or write request against the device
// size. Devices are an external boundary, so a malformed request is an
// error rather than a panic.
func checkTransfer(blockno, count uint32, p []byte) error {
	if blockno >= count {
		return ErrOutOfRange
	}
	if len(p) != layout.BlockSize {
		return errors.New("buffer is not one block")
	}
	return nil
}
