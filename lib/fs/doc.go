// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package fs implements the filesystem proper over the block cache
// and journal: the data-block allocator, the in-core inode table,
// directories, path resolution, and the mount facade the FUSE adaptor
// consumes.
//
// Every piece of on-disk state moves through the block cache, and
// every mutation happens inside a journal operation, so a crash at any
// point leaves the image either before or after a whole operation,
// never in between. Large reads and writes are split into chunks small
// enough that each chunk's journal operation stays inside the
// bounded-operation budget.
//
// The in-core inode table mirrors the block cache's shape: a fixed
// number of entries, a reference count per entry, a table lock for
// lookup and refcounting, and a per-inode lock held while the on-disk
// copy is loaded or mutated.
package fs
