// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package layout defines the on-disk format of a strata filesystem
// image: the structural constants every layer depends on, the binary
// codecs for the superblock, on-disk inodes, and directory entries,
// and the region arithmetic that maps inode and bitmap indices to
// block numbers.
//
// A formatted image is laid out as:
//
//	[ boot | super | log header + log blocks | inode blocks | bitmap blocks | data blocks ]
//
// All multi-byte fields are little-endian and the struct layouts are
// fixed (no self-describing framing), so images are byte-compatible
// across hosts. Encoding is done with encoding/binary against
// hand-written codecs rather than reflection: the format pre-dates
// this implementation and field order is load-bearing.
package layout
