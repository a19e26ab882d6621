// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command framework for the strata binary:
// a command tree with pflag-based flag parsing, struct-tag flag
// binding, help output, typo suggestions, and JSON output support.
package cli
