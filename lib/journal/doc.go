// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal implements the write-ahead log that makes a bounded
// group of block mutations atomic across crashes.
//
// Callers bracket their mutations in an operation:
//
//	op, _ := log.Begin()
//	b, _ := cache.Acquire(dev, blockno)
//	b.Lock()
//	// modify b.Data()
//	b.Unlock()
//	op.Write(b)
//	cache.Release(b)
//	op.End()
//
// Write records the block in the operation without touching the disk;
// recording the same block twice coalesces (log absorption), which
// works because the block cache guarantees one in-memory copy per
// block. Each recorded block is pinned in the cache until install, so
// cache pressure cannot evict a dirty block out from under an open
// transaction.
//
// When the last outstanding operation ends, the journal commits: it
// copies every recorded block into the on-disk log area, barriers,
// writes the count-bearing log header (the commit point), barriers
// again, installs the blocks to their home locations, and clears the
// header. Open replays any committed-but-uninstalled log it finds,
// so a crash at any point either fully applies a transaction or
// leaves no trace of it.
//
// Begin blocks while a commit is in flight or while the log lacks
// room for another worst-case operation (layout.MaxOpBlocks); this is
// admission control at the transaction boundary, distinct from the
// cache's never-blocking exhaustion policy.
package journal
