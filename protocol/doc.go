// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire format for the vigil daemon
// socket: the PDU frame header, the CBOR request and response shapes,
// query expression terms, and the typed field lists callers use to
// select query result columns.
//
// The package is organized by concern:
//
//   - frame.go: PDU frame header (magic + length), header sniffing
//   - types.go: request/response payload shapes, ClockSpec, SyncTimeout
//   - expr.go: composable query expression terms
//   - fields.go: typed file-field selections for query results
//
// The client in the module root builds on this package; tools that
// speak the protocol directly can import it on its own.
package protocol
