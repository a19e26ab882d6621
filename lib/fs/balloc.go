// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"fmt"

	"github.com/stratafs/strata/lib/layout"
)

// allocBlock finds a free data block in the on-disk bitmap, marks it
// in use, zeroes it, and records both mutations in the operation.
// Returns ErrNoSpace when the bitmap is full.
func (fs *FS) allocBlock(op opWriter) (uint32, error) {
	for base := uint32(0); base < fs.sb.Size; base += layout.BitsPerBlock {
		bitmap, err := fs.cache.Acquire(fs.devnum, fs.sb.BitmapBlock(base))
		if err != nil {
			return 0, err
		}
		bitmap.Lock()
		bno, found := uint32(0), false
		for bit := uint32(0); bit < layout.BitsPerBlock && base+bit < fs.sb.Size; bit++ {
			byteIndex, mask := bit/8, byte(1)<<(bit%8)
			if bitmap.Data()[byteIndex]&mask == 0 {
				bitmap.Data()[byteIndex] |= mask
				bno, found = base+bit, true
				break
			}
		}
		bitmap.Unlock()
		if found {
			op.Write(bitmap)
			fs.cache.Release(bitmap)
			if err := fs.zeroBlock(op, bno); err != nil {
				return 0, err
			}
			return bno, nil
		}
		fs.cache.Release(bitmap)
	}
	return 0, ErrNoSpace
}

// freeBlock clears bno's bit in the bitmap. Freeing an already-free
// block means the allocator and the inode block lists disagree, which
// is metadata corruption; it surfaces as an error rather than being
// papered over.
func (fs *FS) freeBlock(op opWriter, bno uint32) error {
	bitmap, err := fs.cache.Acquire(fs.devnum, fs.sb.BitmapBlock(bno))
	if err != nil {
		return err
	}
	defer fs.cache.Release(bitmap)

	bit := bno % layout.BitsPerBlock
	byteIndex, mask := bit/8, byte(1)<<(bit%8)

	bitmap.Lock()
	free := bitmap.Data()[byteIndex]&mask == 0
	if !free {
		bitmap.Data()[byteIndex] &^= mask
	}
	bitmap.Unlock()
	if free {
		return fmt.Errorf("freeing block %d: already free", bno)
	}
	op.Write(bitmap)
	return nil
}

// zeroBlock clears bno's payload through the cache and records it in
// the operation. Freshly allocated blocks must not leak prior
// contents.
func (fs *FS) zeroBlock(op opWriter, bno uint32) error {
	b, err := fs.cache.Acquire(fs.devnum, bno)
	if err != nil {
		return err
	}
	defer fs.cache.Release(b)

	b.Lock()
	clear(b.Data())
	b.Unlock()
	op.Write(b)
	return nil
}
