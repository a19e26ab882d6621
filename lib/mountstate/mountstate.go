// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package mountstate records active mount sessions on disk so that
// "strata umount" and diagnostics can find the daemon serving a
// mountpoint. The mount daemon writes a record at startup and removes
// it on clean shutdown; a record left behind after a crash still names
// the image and PID, so a stale mount can be identified and cleaned up.
//
// Records are CBOR files named by session ID in a state directory.
// Each file is written atomically (write to temporary file, fsync,
// rename into place, fsync parent directory) so readers never see a
// partial record.
package mountstate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/stratafs/strata/lib/codec"
)

// Record describes one active mount session.
type Record struct {
	// Session uniquely identifies this mount daemon instance.
	Session uuid.UUID `cbor:"session"`

	// Image is the absolute path of the backing image file.
	Image string `cbor:"image"`

	// Mountpoint is the absolute path the filesystem is served at.
	Mountpoint string `cbor:"mountpoint"`

	// PID is the mount daemon's process ID.
	PID int `cbor:"pid"`

	// ReadOnly reports whether the mount refuses writes.
	ReadOnly bool `cbor:"read_only"`

	// MountedAt is when the daemon finished mounting.
	MountedAt time.Time `cbor:"mounted_at"`
}

// Store reads and writes mount records in a state directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(session uuid.UUID) string {
	return filepath.Join(s.dir, session.String()+".mount")
}

// Write atomically writes record to the store. The file is written to
// a temporary location in the same directory, fsynced, and renamed
// into place, so readers never see a partial record.
func (s *Store) Write(record Record) error {
	if record.Session == uuid.Nil {
		return fmt.Errorf("record has no session ID")
	}

	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding mount record: %w", err)
	}

	path := s.path(record.Session)
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary record file: %w", err)
	}

	// Write, sync, close, in that order. If any step fails, remove
	// the temporary file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary record file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary record file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary record file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming record file into place: %w", err)
	}

	// Sync the parent directory so the rename survives power loss.
	if dir, err := os.Open(s.dir); err == nil {
		dir.Sync()
		dir.Close()
	}

	return nil
}

// Read returns the record for session. When the file does not exist,
// the returned error wraps fs.ErrNotExist (testable with errors.Is).
func (s *Store) Read(session uuid.UUID) (Record, error) {
	data, err := os.ReadFile(s.path(session))
	if err != nil {
		return Record{}, err
	}

	var record Record
	if err := codec.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("parsing mount record %s: %w", s.path(session), err)
	}
	return record, nil
}

// Remove deletes the record for session. Removing a record that does
// not exist is not an error.
func (s *Store) Remove(session uuid.UUID) error {
	err := os.Remove(s.path(session))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing mount record: %w", err)
	}
	return nil
}

// List returns every record in the store, skipping files that fail to
// parse (a half-written temporary or foreign file must not hide the
// valid records next to it).
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading state directory: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".mount" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var record Record
		if err := codec.Unmarshal(data, &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// FindByMountpoint returns the record whose mountpoint matches, or an
// error wrapping fs.ErrNotExist when no record does.
func (s *Store) FindByMountpoint(mountpoint string) (Record, error) {
	records, err := s.List()
	if err != nil {
		return Record{}, err
	}
	for _, record := range records {
		if record.Mountpoint == mountpoint {
			return record, nil
		}
	}
	return Record{}, fmt.Errorf("no mount record for %s: %w", mountpoint, fs.ErrNotExist)
}
