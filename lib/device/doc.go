// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package device provides raw block I/O against a backing image.
//
// A Device moves exactly one layout.BlockSize block per call, addressed
// by block number. There is no caching, retry, or request coalescing at
// this layer; the block cache above decides what to read and when, and
// the journal decides ordering. Sync is a real write barrier
// (fdatasync for file-backed devices), which the journal's commit
// protocol depends on for crash consistency.
//
// Two implementations exist: FileDevice over a regular file or block
// device, and MemDevice over an in-memory image for tests.
package device
