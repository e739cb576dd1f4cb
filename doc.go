// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// Package vigil is a client for the vigil file-watching daemon. It
// connects over the daemon's Unix socket, asks it to watch directory
// trees, runs point-in-time queries over watched files, and streams
// change notifications through long-lived subscriptions.
//
// Start with a [Connector] to obtain a [Client], resolve a path to a
// watch root with [Client.ResolveRoot], then query with [Query] or
// subscribe with [Subscribe]:
//
//	client, err := (&vigil.Connector{}).Connect(ctx)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	path, err := vigil.Canonicalize(".")
//	if err != nil {
//		return err
//	}
//	root, err := client.ResolveRoot(ctx, path)
//	if err != nil {
//		return err
//	}
//
//	files, err := client.Glob(ctx, root, "**/*.go")
//
// The daemon protocol carries no request identifiers: responses
// correlate to requests purely by order. The client therefore keeps at
// most one request in flight and queues the rest, matching each
// response to the oldest pending request. Unsolicited subscription
// messages are recognized by shape and fanned out to their handles
// without disturbing that queue. All of this is internal; callers just
// see that concurrent requests are answered in submission order.
//
// Errors are classified: daemon-reported failures are *[ServerError]
// (they fail one call, not the connection), undecodable responses are
// *[DecodeError], and a dead connection fails every outstanding and
// future call with [ErrConnectionTerminated].
package vigil
