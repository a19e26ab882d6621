// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package fusefs exposes a mounted strata filesystem through FUSE.
//
// Each FUSE node carries only an inode number; every operation
// resolves through the fs layer, which in turn goes through the block
// cache and journal. The adaptor holds no file state of its own, so
// the kernel's dentry cache and the filesystem's inode table are the
// only two places an inode is remembered.
package fusefs
