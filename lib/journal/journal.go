// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/stratafs/strata/lib/blockcache"
	"github.com/stratafs/strata/lib/layout"
)

// Log is the transaction manager for one device. All block access goes
// through the block cache; the journal holds no payload storage of its
// own, only the set of home block numbers recorded by open operations
// and a pin on each recorded block.
type Log struct {
	cache  *blockcache.Cache
	devnum uint32
	start  uint32 // block number of the on-disk log header
	size   uint32 // log data blocks following the header
	logger *slog.Logger

	mu   sync.Mutex
	cond *sync.Cond
	// outstanding is how many operations are between Begin and End.
	outstanding int
	// committing is true while a commit is writing the log; Begin
	// waits it out.
	committing bool
	// blocks are the recorded home block numbers, in first-write
	// order. Index i maps to log data block start+1+i.
	blocks []uint32
	// pinned holds the cache slot for each recorded block. The pin is
	// taken at Write and dropped after install.
	pinned map[uint32]*blockcache.Buf
	// failed latches the first commit error. A half-committed log
	// cannot accept new operations; Begin reports this error until the
	// caller remounts and replays.
	failed error
}

// Open creates the transaction manager for a device and replays any
// committed transaction left behind by a crash. The superblock names
// the log region; the header block it points at is read through the
// cache.
func Open(cache *blockcache.Cache, devnum uint32, sb *layout.SuperBlock, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &Log{
		cache:  cache,
		devnum: devnum,
		start:  sb.LogStart,
		size:   sb.LogBlocks,
		logger: logger,
		pinned: make(map[uint32]*blockcache.Buf),
	}
	l.cond = sync.NewCond(&l.mu)

	if err := l.recover(); err != nil {
		return nil, fmt.Errorf("journal recovery: %w", err)
	}
	return l, nil
}

// Committed returns how many blocks the on-disk log header names,
// without replaying or clearing anything. Read-only mounts use it to
// detect an unclean log they are not allowed to repair.
func Committed(cache *blockcache.Cache, devnum uint32, sb *layout.SuperBlock) (int, error) {
	header, err := cache.Acquire(devnum, sb.LogStart)
	if err != nil {
		return 0, fmt.Errorf("reading log header: %w", err)
	}
	defer cache.Release(header)
	header.Lock()
	defer header.Unlock()
	return len(decodeHeader(header.Data(), sb.LogBlocks)), nil
}

// Begin opens an operation. It blocks while a commit is in flight or
// while the log lacks room for another worst-case operation, and
// returns once the operation's space is reserved. After a commit
// failure Begin returns the latched error instead of admitting work
// against a half-committed log.
func (l *Log) Begin() (*Op, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.committing || uint32(len(l.blocks))+uint32(l.outstanding+1)*layout.MaxOpBlocks > l.size {
		l.cond.Wait()
	}
	if l.failed != nil {
		return nil, fmt.Errorf("log disabled by failed commit: %w", l.failed)
	}
	l.outstanding++
	return &Op{log: l}, nil
}

// Op is one open operation: a bounded set of block mutations that
// commit together.
type Op struct {
	log *Log
	// recorded counts the distinct blocks this operation added to the
	// log, bounded by layout.MaxOpBlocks.
	recorded int
	ended    bool
}

// Write records b's block in the open transaction. The block is not
// written to disk here; commit copies it into the log when the last
// outstanding operation ends. Recording a block already in the
// transaction coalesces with the earlier record (log absorption). The
// caller must still hold its own pin on b; Write takes an additional
// pin that lives until install.
//
// An operation recording more than layout.MaxOpBlocks distinct blocks
// has broken the bounded-operation contract and panics with the
// cache's *InvariantError.
func (o *Op) Write(b *blockcache.Buf) {
	l := o.log
	l.mu.Lock()
	defer l.mu.Unlock()

	if o.ended {
		panic(&blockcache.InvariantError{Op: "journal write", Detail: "operation already ended"})
	}
	blockno := b.ID().Blockno
	for _, recorded := range l.blocks {
		if recorded == blockno {
			// Absorption: the earlier record's pin and log slot cover
			// this write too.
			return
		}
	}
	if o.recorded >= layout.MaxOpBlocks {
		panic(&blockcache.InvariantError{Op: "journal write", Detail: fmt.Sprintf("operation exceeds %d blocks", layout.MaxOpBlocks)})
	}
	if uint32(len(l.blocks)) >= l.size {
		panic(&blockcache.InvariantError{Op: "journal write", Detail: "log capacity exceeded despite admission control"})
	}

	l.cache.Pin(b)
	l.blocks = append(l.blocks, blockno)
	l.pinned[blockno] = b
	o.recorded++
}

// End closes the operation. The last outstanding operation triggers
// the commit; its caller absorbs the commit's device errors. A commit
// error latches the log shut and every later Begin fails with it.
// Recovery policy (remount, replay) belongs to the caller.
func (o *Op) End() error {
	l := o.log
	l.mu.Lock()
	if o.ended {
		l.mu.Unlock()
		panic(&blockcache.InvariantError{Op: "journal end", Detail: "operation already ended"})
	}
	o.ended = true
	l.outstanding--
	if l.outstanding > 0 {
		// Not the last: someone else will commit. Space may have
		// freed up for a waiting Begin (this op reserved MaxOpBlocks
		// but recorded fewer).
		l.cond.Broadcast()
		l.mu.Unlock()
		return nil
	}

	l.committing = true
	blocks := l.blocks
	l.mu.Unlock()

	err := l.commit(blocks)

	l.mu.Lock()
	l.committing = false
	l.blocks = l.blocks[:0]
	if err != nil {
		l.failed = err
	}
	l.cond.Broadcast()
	l.mu.Unlock()
	return err
}

// commit runs the full protocol: log write, barrier, commit record,
// barrier, install, barrier, clear. Called without l.mu held; no new
// operation can start because committing is set.
func (l *Log) commit(blocks []uint32) error {
	if len(blocks) == 0 {
		return nil
	}

	// Copy each recorded home block into its log data block.
	var staging [layout.BlockSize]byte
	for i, blockno := range blocks {
		home := l.pinned[blockno]
		home.Lock()
		copy(staging[:], home.Data())
		home.Unlock()

		logBuf, err := l.cache.Acquire(l.devnum, l.start+1+uint32(i))
		if err != nil {
			return fmt.Errorf("acquiring log block %d: %w", i, err)
		}
		logBuf.Lock()
		copy(logBuf.Data(), staging[:])
		logBuf.Unlock()
		err = l.cache.Persist(logBuf)
		l.cache.Release(logBuf)
		if err != nil {
			return fmt.Errorf("writing log block %d: %w", i, err)
		}
	}
	if err := l.cache.SyncDevice(l.devnum); err != nil {
		return fmt.Errorf("log write barrier: %w", err)
	}

	// The count-bearing header is the commit point: once it is
	// durable, recovery will replay this transaction.
	if err := l.writeHeader(blocks); err != nil {
		return fmt.Errorf("writing commit record: %w", err)
	}
	if err := l.cache.SyncDevice(l.devnum); err != nil {
		return fmt.Errorf("commit barrier: %w", err)
	}

	// Install home blocks and drop the transaction pins.
	for _, blockno := range blocks {
		home := l.pinned[blockno]
		if err := l.cache.Persist(home); err != nil {
			return fmt.Errorf("installing block %d: %w", blockno, err)
		}
		l.cache.Unpin(home)
		delete(l.pinned, blockno)
	}
	if err := l.cache.SyncDevice(l.devnum); err != nil {
		return fmt.Errorf("install barrier: %w", err)
	}

	// Clear the header so recovery does not replay again.
	if err := l.writeHeader(nil); err != nil {
		return fmt.Errorf("clearing commit record: %w", err)
	}
	if err := l.cache.SyncDevice(l.devnum); err != nil {
		return fmt.Errorf("clear barrier: %w", err)
	}
	return nil
}

// writeHeader persists the log header naming the given home blocks.
// A nil or empty slice clears the header.
func (l *Log) writeHeader(blocks []uint32) error {
	b, err := l.cache.Acquire(l.devnum, l.start)
	if err != nil {
		return fmt.Errorf("acquiring log header: %w", err)
	}
	defer l.cache.Release(b)

	b.Lock()
	encodeHeader(b.Data(), blocks)
	b.Unlock()
	if err := l.cache.Persist(b); err != nil {
		return fmt.Errorf("persisting log header: %w", err)
	}
	return nil
}

// recover replays a committed-but-uninstalled transaction found in the
// on-disk log header, then clears the header. A zero count means the
// last shutdown was clean (or the crash predated the commit point) and
// there is nothing to do.
func (l *Log) recover() error {
	header, err := l.cache.Acquire(l.devnum, l.start)
	if err != nil {
		return fmt.Errorf("reading log header: %w", err)
	}
	header.Lock()
	blocks := decodeHeader(header.Data(), l.size)
	header.Unlock()
	l.cache.Release(header)

	if len(blocks) == 0 {
		return nil
	}
	l.logger.Info("replaying committed transaction", "device", l.devnum, "blocks", len(blocks))

	for i, blockno := range blocks {
		logBuf, err := l.cache.Acquire(l.devnum, l.start+1+uint32(i))
		if err != nil {
			return fmt.Errorf("reading log block %d: %w", i, err)
		}
		var staging [layout.BlockSize]byte
		logBuf.Lock()
		copy(staging[:], logBuf.Data())
		logBuf.Unlock()
		l.cache.Release(logBuf)

		home, err := l.cache.Acquire(l.devnum, blockno)
		if err != nil {
			return fmt.Errorf("acquiring home block %d: %w", blockno, err)
		}
		home.Lock()
		copy(home.Data(), staging[:])
		home.Unlock()
		err = l.cache.Persist(home)
		l.cache.Release(home)
		if err != nil {
			return fmt.Errorf("installing home block %d: %w", blockno, err)
		}
	}
	if err := l.cache.SyncDevice(l.devnum); err != nil {
		return fmt.Errorf("replay barrier: %w", err)
	}
	if err := l.writeHeader(nil); err != nil {
		return err
	}
	if err := l.cache.SyncDevice(l.devnum); err != nil {
		return fmt.Errorf("replay clear barrier: %w", err)
	}
	return nil
}

// encodeHeader writes the log header into a block-sized buffer: a
// count followed by that many home block numbers, little-endian.
func encodeHeader(p []byte, blocks []uint32) {
	le := binary.LittleEndian
	le.PutUint32(p[0:], uint32(len(blocks)))
	for i, blockno := range blocks {
		le.PutUint32(p[4+4*i:], blockno)
	}
}

// decodeHeader reads the log header, clamping the count to the log
// capacity so a corrupt header cannot walk past the region.
func decodeHeader(p []byte, capacity uint32) []uint32 {
	le := binary.LittleEndian
	n := le.Uint32(p[0:])
	if n > capacity {
		n = capacity
	}
	blocks := make([]uint32, n)
	for i := range blocks {
		blocks[i] = le.Uint32(p[4+4*i:])
	}
	return blocks
}
