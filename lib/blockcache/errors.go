// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package blockcache

import (
	"errors"
	"fmt"
)

// ErrCacheExhausted reports a miss when every slot in the pool is
// pinned. The in-flight operation cannot make progress; the cache
// never blocks waiting for a slot because the holder of the last pin
// may itself be waiting on the failing caller.
var ErrCacheExhausted = errors.New("block cache exhausted: every slot is pinned")

// ErrDeviceNotAttached reports an operation against a device number
// with no attached device.
var ErrDeviceNotAttached = errors.New("device not attached")

// ErrDeviceBusy reports a detach while slots on the device are still
// pinned.
var ErrDeviceBusy = errors.New("device has pinned blocks")

// InvariantError reports a breach of the cache's usage contract:
// releasing or unpinning a slot whose pin count is already zero, or
// persisting a slot without an outstanding pin. These are programming
// errors in the caller, so the cache panics with an *InvariantError
// rather than returning it.
type InvariantError struct {
	// Op is the operation that detected the breach.
	Op string
	// Detail describes the broken invariant.
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("blockcache: %s: %s", e.Op, e.Detail)
}
