// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package fusefs

import (
	"errors"
	"syscall"

	"github.com/stratafs/strata/lib/fs"
)

// errno translates fs-layer errors into the errno the kernel expects.
// Anything unrecognized (cache exhaustion, device faults) surfaces as
// EIO so the caller sees a hard I/O error rather than a lie.
func errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, fs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, fs.ErrExists):
		return syscall.EEXIST
	case errors.Is(err, fs.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, fs.ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, fs.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, fs.ErrNoSpace), errors.Is(err, fs.ErrNoInodes):
		return syscall.ENOSPC
	case errors.Is(err, fs.ErrNameTooLong):
		return syscall.ENAMETOOLONG
	case errors.Is(err, fs.ErrFileTooLarge):
		return syscall.EFBIG
	case errors.Is(err, fs.ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, fs.ErrBusy):
		return syscall.EBUSY
	default:
		return syscall.EIO
	}
}
