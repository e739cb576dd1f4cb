// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec wraps the CBOR encoder and decoder used for the vigil
// daemon protocol. All serialization in this module goes through this
// package so that the encoding configuration (deterministic output,
// string-keyed maps for any-typed targets) is defined once.
package codec
