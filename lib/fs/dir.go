// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import (
	"fmt"

	"github.com/stratafs/strata/lib/layout"
)

// DirEntry is one directory entry as reported to callers.
type DirEntry struct {
	Name string `json:"name"`
	Inum uint32 `json:"inum"`
}

// dirLookup searches directory dp for name. Returns the entry's inode
// number and byte offset, or ErrNotFound. Caller holds dp's lock.
func (dp *Inode) dirLookup(name string) (inum uint32, offset uint32, err error) {
	if dp.dinode.Type != layout.TypeDir {
		return 0, 0, ErrNotDir
	}
	var raw [layout.DirentSize]byte
	for off := uint32(0); off < dp.dinode.Size; off += layout.DirentSize {
		if _, err := dp.readAt(raw[:], off); err != nil {
			return 0, 0, err
		}
		de := layout.DecodeDirent(raw[:])
		if de.Inum != 0 && de.Name == name {
			return uint32(de.Inum), off, nil
		}
	}
	return 0, 0, ErrNotFound
}

// dirLink adds an entry name → inum to directory dp, reusing a free
// slot or growing the directory. Fails with ErrExists if the name is
// already present. Caller holds dp's lock.
func (dp *Inode) dirLink(op opWriter, name string, inum uint32) error {
	if len(name) == 0 {
		return fmt.Errorf("empty name: %w", ErrNotFound)
	}
	if len(name) > layout.DirNameLen {
		return fmt.Errorf("%q: %w", name, ErrNameTooLong)
	}
	if _, _, err := dp.dirLookup(name); err == nil {
		return fmt.Errorf("%q: %w", name, ErrExists)
	} else if err != ErrNotFound {
		return err
	}

	// Find a free slot, or append at the end.
	off := dp.dinode.Size
	var raw [layout.DirentSize]byte
	for scan := uint32(0); scan < dp.dinode.Size; scan += layout.DirentSize {
		if _, err := dp.readAt(raw[:], scan); err != nil {
			return err
		}
		if layout.DecodeDirent(raw[:]).Inum == 0 {
			off = scan
			break
		}
	}

	layout.EncodeDirent(raw[:], &layout.Dirent{Inum: uint16(inum), Name: name})
	if _, err := dp.writeAt(op, raw[:], off); err != nil {
		return fmt.Errorf("linking %q into directory %d: %w", name, dp.inum, err)
	}
	return nil
}

// dirUnlink clears the entry at the given offset. Caller holds dp's
// lock and has already located the entry with dirLookup.
func (dp *Inode) dirUnlink(op opWriter, offset uint32) error {
	var raw [layout.DirentSize]byte
	if _, err := dp.writeAt(op, raw[:], offset); err != nil {
		return fmt.Errorf("clearing directory entry at %d: %w", offset, err)
	}
	return nil
}

// isDirEmpty reports whether dp holds no entries besides "." and
// "..". Caller holds dp's lock.
func (dp *Inode) isDirEmpty() (bool, error) {
	var raw [layout.DirentSize]byte
	for off := uint32(2 * layout.DirentSize); off < dp.dinode.Size; off += layout.DirentSize {
		if _, err := dp.readAt(raw[:], off); err != nil {
			return false, err
		}
		if layout.DecodeDirent(raw[:]).Inum != 0 {
			return false, nil
		}
	}
	return true, nil
}

// readDir returns every live entry. Caller holds dp's lock.
func (dp *Inode) readDir() ([]DirEntry, error) {
	if dp.dinode.Type != layout.TypeDir {
		return nil, ErrNotDir
	}
	var entries []DirEntry
	var raw [layout.DirentSize]byte
	for off := uint32(0); off < dp.dinode.Size; off += layout.DirentSize {
		if _, err := dp.readAt(raw[:], off); err != nil {
			return nil, err
		}
		de := layout.DecodeDirent(raw[:])
		if de.Inum != 0 {
			entries = append(entries, DirEntry{Name: de.Name, Inum: uint32(de.Inum)})
		}
	}
	return entries, nil
}
