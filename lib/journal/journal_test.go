// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stratafs/strata/lib/blockcache"
	"github.com/stratafs/strata/lib/device"
	"github.com/stratafs/strata/lib/layout"
	"github.com/stratafs/strata/lib/testutil"
)

const testDev = 1

// testSuperBlock places the log region at the front of a small image.
func testSuperBlock() *layout.SuperBlock {
	return &layout.SuperBlock{
		Magic:       layout.FSMagic,
		Size:        128,
		Inodes:      16,
		LogBlocks:   layout.LogBlocks,
		LogStart:    2,
		InodeStart:  2 + 1 + layout.LogBlocks,
		BitmapStart: 2 + 1 + layout.LogBlocks + 2,
	}
}

func newTestLog(t *testing.T) (*Log, *blockcache.Cache, *device.MemDevice) {
	t.Helper()
	cache := blockcache.New(blockcache.Options{})
	dev := device.NewMem(128)
	if err := cache.AttachDevice(testDev, dev); err != nil {
		t.Fatalf("AttachDevice: %v", err)
	}
	log, err := Open(cache, testDev, testSuperBlock(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return log, cache, dev
}

// begin opens an operation, failing the test if the log refuses.
func begin(t *testing.T, log *Log) *Op {
	t.Helper()
	op, err := log.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return op
}

// writeBlock acquires blockno, stamps its first byte, and records it
// in the operation.
func writeBlock(t *testing.T, cache *blockcache.Cache, op *Op, blockno uint32, stamp byte) {
	t.Helper()
	b, err := cache.Acquire(testDev, blockno)
	if err != nil {
		t.Fatalf("Acquire(%d): %v", blockno, err)
	}
	b.Lock()
	b.Data()[0] = stamp
	b.Unlock()
	op.Write(b)
	cache.Release(b)
}

func TestCommitInstallsHomeBlocks(t *testing.T) {
	log, cache, dev := newTestLog(t)
	sb := testSuperBlock()

	op := begin(t, log)
	writeBlock(t, cache, op, 100, 0x11)
	writeBlock(t, cache, op, 101, 0x22)
	if err := op.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	if got := dev.Peek(100); got[0] != 0x11 {
		t.Errorf("block 100 = %#x, want 0x11", got[0])
	}
	if got := dev.Peek(101); got[0] != 0x22 {
		t.Errorf("block 101 = %#x, want 0x22", got[0])
	}

	// The header must be clear after install.
	header := dev.Peek(sb.LogStart)
	if n := binary.LittleEndian.Uint32(header); n != 0 {
		t.Errorf("log header count = %d after commit, want 0", n)
	}
}

func TestNothingReachesHomeBeforeEnd(t *testing.T) {
	log, cache, dev := newTestLog(t)

	op := begin(t, log)
	writeBlock(t, cache, op, 100, 0x33)

	if got := dev.Peek(100); got[0] != 0 {
		t.Error("home block written before the operation ended")
	}

	if err := op.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	if got := dev.Peek(100); got[0] != 0x33 {
		t.Error("home block not written after the operation ended")
	}
}

func TestAbsorptionCoalescesRepeatedWrites(t *testing.T) {
	log, cache, _ := newTestLog(t)

	op := begin(t, log)
	// MaxOpBlocks+5 writes of one block must occupy one log slot, not
	// blow the per-operation budget.
	for i := range layout.MaxOpBlocks + 5 {
		writeBlock(t, cache, op, 100, byte(i+1))
	}

	log.mu.Lock()
	recorded := len(log.blocks)
	log.mu.Unlock()
	if recorded != 1 {
		t.Errorf("log records %d blocks, want 1 (absorption)", recorded)
	}

	if err := op.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestRecordedBlocksSurviveCachePressure(t *testing.T) {
	log, cache, _ := newTestLog(t)

	op := begin(t, log)
	b, err := cache.Acquire(testDev, 100)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	b.Lock()
	b.Data()[0] = 0x44
	b.Unlock()
	op.Write(b)
	cache.Release(b)

	// Churn far more blocks than the pool holds. The recorded block
	// is pinned by the open transaction and must keep its identity.
	for blockno := uint32(3); blockno < 3+2*layout.BufferCount; blockno++ {
		churn, err := cache.Acquire(testDev, blockno)
		if err != nil {
			t.Fatalf("Acquire(%d): %v", blockno, err)
		}
		cache.Release(churn)
	}

	if b.ID() != (blockcache.BlockID{Dev: testDev, Blockno: 100}) {
		t.Fatalf("recorded block was evicted: identity now %+v", b.ID())
	}
	b.Lock()
	if b.Data()[0] != 0x44 {
		t.Error("recorded block lost its dirty payload")
	}
	b.Unlock()

	if err := op.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestConcurrentOperationsCommitTogether(t *testing.T) {
	log, cache, dev := newTestLog(t)

	var wg sync.WaitGroup
	for w := range 3 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			op, err := log.Begin()
			if err != nil {
				t.Errorf("Begin: %v", err)
				return
			}
			writeBlock(t, cache, op, uint32(100+w), byte(0x50+w))
			if err := op.End(); err != nil {
				t.Errorf("End: %v", err)
			}
		}(w)
	}
	wg.Wait()

	for w := range 3 {
		if got := dev.Peek(uint32(100 + w)); got[0] != byte(0x50+w) {
			t.Errorf("block %d = %#x, want %#x", 100+w, got[0], 0x50+w)
		}
	}
}

func TestBeginWaitsForLogSpace(t *testing.T) {
	log, _, _ := newTestLog(t)

	// Hold LogBlocks/MaxOpBlocks operations open: the next Begin must
	// block until one ends.
	full := layout.LogBlocks / layout.MaxOpBlocks
	open := make([]*Op, full)
	for i := range open {
		open[i] = begin(t, log)
	}

	admitted := make(chan *Op)
	go func() {
		op, err := log.Begin()
		if err != nil {
			t.Errorf("Begin: %v", err)
			return
		}
		admitted <- op
	}()

	select {
	case <-admitted:
		t.Fatal("Begin admitted an operation with no log space")
	case <-time.After(50 * time.Millisecond):
	}

	if err := open[0].End(); err != nil {
		t.Fatalf("End: %v", err)
	}
	waiter := testutil.RequireReceive(t, admitted, 5*time.Second, "Begin after space freed")

	for _, op := range open[1:] {
		if err := op.End(); err != nil {
			t.Fatalf("End: %v", err)
		}
	}
	if err := waiter.End(); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestRecoveryReplaysCommittedLog(t *testing.T) {
	// Build a committed-but-uninstalled transaction on the raw device:
	// log data blocks with new contents, and a count-bearing header.
	// This is the on-disk state after a crash between commit point and
	// install.
	sb := testSuperBlock()
	dev := device.NewMem(128)

	logBlock := make([]byte, layout.BlockSize)
	logBlock[0] = 0x66
	dev.Poke(sb.LogStart+1, logBlock)
	logBlock[0] = 0x77
	dev.Poke(sb.LogStart+2, logBlock)

	header := make([]byte, layout.BlockSize)
	binary.LittleEndian.PutUint32(header[0:], 2)
	binary.LittleEndian.PutUint32(header[4:], 100)
	binary.LittleEndian.PutUint32(header[8:], 101)
	dev.Poke(sb.LogStart, header)

	cache := blockcache.New(blockcache.Options{})
	if err := cache.AttachDevice(testDev, dev); err != nil {
		t.Fatalf("AttachDevice: %v", err)
	}
	if _, err := Open(cache, testDev, sb, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got := dev.Peek(100); got[0] != 0x66 {
		t.Errorf("block 100 = %#x after replay, want 0x66", got[0])
	}
	if got := dev.Peek(101); got[0] != 0x77 {
		t.Errorf("block 101 = %#x after replay, want 0x77", got[0])
	}
	if got := dev.Peek(sb.LogStart); binary.LittleEndian.Uint32(got) != 0 {
		t.Error("log header not cleared after replay")
	}
}

func TestRecoveryIgnoresEmptyHeader(t *testing.T) {
	sb := testSuperBlock()
	dev := device.NewMem(128)

	marker := make([]byte, layout.BlockSize)
	marker[0] = 0x99
	dev.Poke(100, marker)

	cache := blockcache.New(blockcache.Options{})
	if err := cache.AttachDevice(testDev, dev); err != nil {
		t.Fatalf("AttachDevice: %v", err)
	}
	if _, err := Open(cache, testDev, sb, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got := dev.Peek(100); got[0] != 0x99 {
		t.Error("recovery with empty header disturbed a data block")
	}
}

func TestOversizeOperationPanics(t *testing.T) {
	log, cache, _ := newTestLog(t)

	op := begin(t, log)
	defer func() {
		recovered := recover()
		if recovered == nil {
			t.Fatal("oversize operation did not panic")
		}
		var invariant *blockcache.InvariantError
		err, ok := recovered.(error)
		if !ok || !errors.As(err, &invariant) {
			t.Fatalf("panic value %v is not an *InvariantError", recovered)
		}
	}()
	for blockno := uint32(100); ; blockno++ {
		writeBlock(t, cache, op, blockno, 1)
	}
}

func TestCommitFailurePropagates(t *testing.T) {
	log, cache, dev := newTestLog(t)

	op := begin(t, log)
	writeBlock(t, cache, op, 100, 0x11)

	dev.FailAfterWrites(0)
	if err := op.End(); err == nil {
		t.Fatal("End over a failing device succeeded")
	}
}

func TestFailedCommitLatchesLog(t *testing.T) {
	log, cache, dev := newTestLog(t)

	op := begin(t, log)
	writeBlock(t, cache, op, 100, 0x11)

	dev.FailAfterWrites(0)
	if err := op.End(); err == nil {
		t.Fatal("End over a failing device succeeded")
	}

	// The half-committed log must refuse new operations until a
	// remount replays or discards it.
	if _, err := log.Begin(); err == nil {
		t.Fatal("Begin admitted an operation after a failed commit")
	}
}
