// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package blockcache

import (
	"sync"

	"github.com/stratafs/strata/lib/layout"
)

// BlockID names one block: a device number and a block number within
// that device.
type BlockID struct {
	Dev     uint32
	Blockno uint32
}

// Buf is one cache slot. A slot's identity is its index in the pool
// arena, never its address relative to other slots; reassignment
// changes which block the slot represents, not which slot it is.
//
// Field ownership is split between the two lock domains. The pool
// metadata lock (Cache.mu) owns refcnt, the recency links, and — while
// the slot is unpinned — the identity fields and valid flag. The
// payload lock (Buf.mu) owns data, and owns the valid transition from
// false to true during a load. A caller holding a pin may read the
// identity fields without any lock: identity only changes through
// eviction, and eviction never selects a pinned slot.
type Buf struct {
	// mu is the payload lock. It is held across device transfers and
	// by any caller reading or mutating data, and is always acquired
	// without the pool metadata lock held.
	mu sync.Mutex

	dev     uint32
	blockno uint32
	valid   bool
	refcnt  uint32

	// index is the slot's permanent position in the pool arena.
	index int

	// prev and next are arena indices forming the recency order, least
	// recently released first. Guarded by the pool metadata lock.
	prev, next int

	data [layout.BlockSize]byte
}

// ID returns the block identity this slot currently represents. Valid
// only while the caller holds a pin.
func (b *Buf) ID() BlockID {
	return BlockID{Dev: b.dev, Blockno: b.blockno}
}

// Lock acquires the payload lock. Callers must hold it while reading
// or mutating Data, and must never acquire it while holding the
// cache's metadata lock (the cache itself never does).
func (b *Buf) Lock() { b.mu.Lock() }

// Unlock releases the payload lock.
func (b *Buf) Unlock() { b.mu.Unlock() }

// Data returns the slot's payload. The caller must hold a pin and the
// payload lock; the slice aliases the slot's storage and is
// invalidated by eviction once the pin is dropped.
func (b *Buf) Data() []byte { return b.data[:] }
