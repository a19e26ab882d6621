// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package blockcache

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/stratafs/strata/lib/device"
	"github.com/stratafs/strata/lib/layout"
)

// Options configures a Cache.
type Options struct {
	// Slots is the pool capacity. Zero uses layout.BufferCount, which
	// is sized so one worst-case journal operation can pin every block
	// it needs with room to spare.
	Slots int

	// Logger receives mount-time diagnostics. The cache logs nothing
	// on hot paths. If nil, logging is discarded.
	Logger *slog.Logger
}

// Stats is a snapshot of the cache's counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	// Exhaustions counts misses that failed with ErrCacheExhausted.
	Exhaustions uint64 `json:"exhaustions"`
	Slots       int    `json:"slots"`
}

// Cache is a fixed-capacity pool of block slots shared by every
// operation on a mount. It is constructed once at mount time and
// passed explicitly to every layer that needs block access; there is
// no ambient singleton.
type Cache struct {
	// mu is the pool metadata lock: slot assignment, pin counts,
	// recency order, the identity index, and the device table. It is
	// never held across device I/O or while acquiring a payload lock.
	mu    sync.Mutex
	slots []Buf

	// index maps a block identity to its slot's arena index. A slot
	// appears here from assignment until eviction, including while a
	// failed load has left it invalid: keeping the entry lets a retry
	// coalesce onto the same slot.
	index map[BlockID]int

	// lruHead and lruTail bound the recency order, least recently
	// released at the head. Every slot is always on the list; pinned
	// slots keep their stale position and are skipped during the
	// eviction scan.
	lruHead, lruTail int

	devices [layout.MaxDevices]device.Device

	stats Stats
}

// New allocates the full pool up front. No slot is ever individually
// freed; eviction reassigns identity in place.
func New(options Options) *Cache {
	n := options.Slots
	if n == 0 {
		n = layout.BufferCount
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Cache{
		slots: make([]Buf, n),
		index: make(map[BlockID]int, n),
	}
	for i := range c.slots {
		b := &c.slots[i]
		b.index = i
		b.prev = i - 1
		b.next = i + 1
	}
	c.slots[n-1].next = -1
	c.lruHead = 0
	c.lruTail = n - 1
	c.stats.Slots = n

	logger.Debug("block cache allocated", "slots", n, "block_size", layout.BlockSize)
	return c
}

// AttachDevice registers dev under devnum. Block identities are
// (devnum, blockno) pairs; devnum must be below layout.MaxDevices.
func (c *Cache) AttachDevice(devnum uint32, dev device.Device) error {
	if devnum >= layout.MaxDevices {
		return fmt.Errorf("device number %d out of range [0, %d)", devnum, layout.MaxDevices)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.devices[devnum] != nil {
		return fmt.Errorf("device number %d already attached", devnum)
	}
	c.devices[devnum] = dev
	return nil
}

// DetachDevice removes the device registered under devnum and
// invalidates its cached blocks. It fails with ErrDeviceBusy if any
// slot on the device is still pinned.
func (c *Cache) DetachDevice(devnum uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if devnum >= layout.MaxDevices || c.devices[devnum] == nil {
		return fmt.Errorf("detach device %d: %w", devnum, ErrDeviceNotAttached)
	}
	for i := range c.slots {
		b := &c.slots[i]
		if c.owns(i, devnum) && b.refcnt > 0 {
			return fmt.Errorf("detach device %d: block %d: %w", devnum, b.blockno, ErrDeviceBusy)
		}
	}
	for i := range c.slots {
		if c.owns(i, devnum) {
			b := &c.slots[i]
			delete(c.index, b.ID())
			b.valid = false
		}
	}
	c.devices[devnum] = nil
	return nil
}

// owns reports whether slot i holds an indexed identity on devnum.
// Caller holds the metadata lock.
func (c *Cache) owns(i int, devnum uint32) bool {
	b := &c.slots[i]
	if b.dev != devnum {
		return false
	}
	j, held := c.index[b.ID()]
	return held && j == i
}

// Acquire returns a pinned slot representing (devnum, blockno),
// loading the block from the device on a miss. While any pin is
// outstanding, every acquirer of the same identity receives the same
// slot, so concurrent mutations coalesce onto one in-memory copy.
//
// On a miss with every slot pinned, Acquire fails immediately with
// ErrCacheExhausted. On a device read failure the pin is undone, the
// slot is left invalid, and the error is returned wrapped; a later
// Acquire of the same identity retries the load.
func (c *Cache) Acquire(devnum, blockno uint32) (*Buf, error) {
	id := BlockID{Dev: devnum, Blockno: blockno}

	c.mu.Lock()
	if devnum >= layout.MaxDevices || c.devices[devnum] == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("acquire (%d, %d): %w", devnum, blockno, ErrDeviceNotAttached)
	}
	dev := c.devices[devnum]

	if i, ok := c.index[id]; ok {
		b := &c.slots[i]
		b.refcnt++
		c.stats.Hits++
		c.mu.Unlock()
		return c.load(b, dev)
	}

	c.stats.Misses++
	b := c.evict()
	if b == nil {
		c.stats.Exhaustions++
		c.mu.Unlock()
		return nil, fmt.Errorf("acquire (%d, %d): %w", devnum, blockno, ErrCacheExhausted)
	}
	b.dev = devnum
	b.blockno = blockno
	b.valid = false
	b.refcnt = 1
	c.index[id] = b.index
	c.mu.Unlock()
	return c.load(b, dev)
}

// evict scans the recency order from the least recently released end
// and returns the first unpinned slot, with its old identity (if any)
// discarded. Returns nil when every slot is pinned. Caller holds the
// metadata lock.
func (c *Cache) evict() *Buf {
	for i := c.lruHead; i != -1; i = c.slots[i].next {
		b := &c.slots[i]
		if b.refcnt > 0 {
			continue
		}
		if j, held := c.index[b.ID()]; held && j == i {
			delete(c.index, b.ID())
			c.stats.Evictions++
		}
		b.valid = false
		return b
	}
	return nil
}

// load brings the slot's payload up to date under the payload lock.
// The metadata lock is not held: unrelated lookups proceed while the
// transfer is in flight, and a second acquirer of the same block
// parks on the payload lock until the first finishes loading, then
// observes valid and returns without touching the device.
func (c *Cache) load(b *Buf, dev device.Device) (*Buf, error) {
	b.mu.Lock()
	if b.valid {
		b.mu.Unlock()
		return b, nil
	}
	if err := dev.ReadBlock(b.blockno, b.data[:]); err != nil {
		b.mu.Unlock()
		c.mu.Lock()
		b.refcnt--
		if b.refcnt == 0 {
			c.moveToTail(b.index)
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("loading block (%d, %d): %w", b.dev, b.blockno, err)
	}
	b.valid = true
	b.mu.Unlock()
	return b, nil
}

// Release drops one pin. When the count reaches zero the slot moves to
// the most recently released end of the recency order and becomes
// eligible for reuse; its payload and identity stay intact, so a
// re-acquire before reuse is a hit with no device I/O. Releasing an
// unpinned slot panics with *InvariantError.
func (c *Cache) Release(b *Buf) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.refcnt == 0 {
		panic(&InvariantError{Op: "release", Detail: fmt.Sprintf("slot %d (%d, %d) has no outstanding pin", b.index, b.dev, b.blockno)})
	}
	b.refcnt--
	if b.refcnt == 0 {
		c.moveToTail(b.index)
	}
}

// Pin adds a pin without touching the recency order. The journal pins
// every block recorded in an open transaction so cache pressure cannot
// evict it between log write and install.
func (c *Cache) Pin(b *Buf) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b.refcnt++
}

// Unpin drops a pin added by Pin. Like Release it panics with
// *InvariantError at zero.
func (c *Cache) Unpin(b *Buf) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b.refcnt == 0 {
		panic(&InvariantError{Op: "unpin", Detail: fmt.Sprintf("slot %d (%d, %d) has no outstanding pin", b.index, b.dev, b.blockno)})
	}
	b.refcnt--
	if b.refcnt == 0 {
		c.moveToTail(b.index)
	}
}

// Persist synchronously writes the slot's payload to its device. The
// caller must hold a pin and must not hold the payload lock; Persist
// takes it for the duration of the transfer. The write either reaches
// the device or the device's error is returned wrapped; the cache
// never defers or retries.
func (c *Cache) Persist(b *Buf) error {
	c.mu.Lock()
	if b.refcnt == 0 {
		c.mu.Unlock()
		panic(&InvariantError{Op: "persist", Detail: fmt.Sprintf("slot %d (%d, %d) has no outstanding pin", b.index, b.dev, b.blockno)})
	}
	dev := c.devices[b.dev]
	c.mu.Unlock()
	if dev == nil {
		return fmt.Errorf("persist (%d, %d): %w", b.dev, b.blockno, ErrDeviceNotAttached)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := dev.WriteBlock(b.blockno, b.data[:]); err != nil {
		return fmt.Errorf("persisting block (%d, %d): %w", b.dev, b.blockno, err)
	}
	return nil
}

// SyncDevice issues a write barrier on the device registered under
// devnum. The cache holds no deferred writes of its own; this exists
// so the journal and unmount path reach the device through the same
// registration that Acquire and Persist use.
func (c *Cache) SyncDevice(devnum uint32) error {
	c.mu.Lock()
	if devnum >= layout.MaxDevices || c.devices[devnum] == nil {
		c.mu.Unlock()
		return fmt.Errorf("sync device %d: %w", devnum, ErrDeviceNotAttached)
	}
	dev := c.devices[devnum]
	c.mu.Unlock()
	return dev.Sync()
}

// Stats returns a snapshot of the hit, miss, and eviction counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// moveToTail moves the slot to the most recently released end of the
// recency order. Caller holds the metadata lock.
func (c *Cache) moveToTail(i int) {
	if c.lruTail == i {
		return
	}
	b := &c.slots[i]

	// Unlink.
	if b.prev != -1 {
		c.slots[b.prev].next = b.next
	} else {
		c.lruHead = b.next
	}
	c.slots[b.next].prev = b.prev

	// Relink at the tail.
	b.prev = c.lruTail
	b.next = -1
	c.slots[c.lruTail].next = i
	c.lruTail = i
}
