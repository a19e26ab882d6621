// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package blockcache implements the in-memory block cache that
// mediates all access to disk blocks. It guarantees that each
// (device, block number) pair has at most one in-memory copy, that no
// caller ever observes a half-loaded or half-written block, and that a
// fixed-size pool never deadlocks a bounded atomic operation.
//
// The cache is a fixed arena of slots allocated once at mount time.
// [Cache.Acquire] returns a pinned slot for a block, loading it from
// the device on a miss; [Cache.Release] drops the pin and makes the
// slot eligible for reuse. Eviction is pin-aware LRU: recency is
// updated when a pin count reaches zero, never on acquire, so a block
// held by an open journal transaction can never surface as an eviction
// candidate.
//
// Two exclusive lock domains keep the pool responsive. The pool
// metadata lock guards slot assignment, pin counts, and the recency
// order; it is bounded work and is never held across device I/O. Each
// slot's payload lock guards the block contents; it is held across the
// (potentially slow) device transfer, so unrelated lookups proceed
// while one load is in flight and concurrent acquirers of the loading
// block wait on the slot lock rather than spinning.
//
// A miss with every slot pinned fails immediately with
// [ErrCacheExhausted] rather than blocking: waiting could deadlock
// against another operation that holds the last pin while waiting on
// this one. Contract breaches (double release, unpin at zero) panic
// with [*InvariantError]; they are programming errors, not runtime
// conditions.
package blockcache
