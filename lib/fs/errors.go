// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fs

import "errors"

// Sentinel errors callers branch on. The FUSE adaptor maps each to an
// errno; everything else surfaces as EIO.
var (
	ErrNotFound     = errors.New("no such file or directory")
	ErrExists       = errors.New("file exists")
	ErrNotDir       = errors.New("not a directory")
	ErrIsDir        = errors.New("is a directory")
	ErrNotEmpty     = errors.New("directory not empty")
	ErrNoSpace      = errors.New("no space left on device")
	ErrNoInodes     = errors.New("no free inodes")
	ErrNameTooLong  = errors.New("name too long")
	ErrFileTooLarge = errors.New("file too large")
	ErrReadOnly     = errors.New("read-only filesystem")
	ErrBusy         = errors.New("inode table full")
)
