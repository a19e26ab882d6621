// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides strata's standard CBOR encoding configuration.
//
// Strata uses two serialization formats with a clear boundary: JSON
// for CLI --json output, and CBOR for on-disk state files (the mount
// registry written by the mount daemon). This package provides the
// shared CBOR modes so every package encodes identically. The encoder
// uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items. Same logical
// data always produces identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(w)
//	decoder := codec.NewDecoder(r)
package codec
