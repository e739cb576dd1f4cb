// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package vigil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/vigilwatch/vigil-go/lib/codec"
	"github.com/vigilwatch/vigil-go/protocol"
)

// CanonicalPath is a filesystem path in canonical form: absolute, with
// symlinks resolved. The daemon performs strict name resolution on
// watch roots to detect time-of-check races, so it rejects paths that
// are not canonical.
type CanonicalPath struct {
	path string
}

// Canonicalize resolves path to its canonical form.
func Canonicalize(path string) (CanonicalPath, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return CanonicalPath{}, fmt.Errorf("vigil: canonicalizing %q: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		return CanonicalPath{}, fmt.Errorf("vigil: canonicalizing %q: %w", path, err)
	}
	return CanonicalPath{path: resolved}, nil
}

// CanonicalizedPath wraps a path the caller has already canonicalized,
// skipping filesystem access. It errors on relative input; it does not
// verify symlink resolution.
func CanonicalizedPath(path string) (CanonicalPath, error) {
	if !filepath.IsAbs(path) {
		return CanonicalPath{}, fmt.Errorf("vigil: %q is not an absolute path; use Canonicalize instead", path)
	}
	return CanonicalPath{path: filepath.Clean(path)}, nil
}

// String returns the canonical path.
func (p CanonicalPath) String() string { return p.path }

// ResolvedRoot describes a watched filesystem location. The daemon
// aggregates watches to project boundaries: a request to watch a
// subdirectory resolves to the enclosing project root plus a relative
// offset below it. Immutable once constructed.
type ResolvedRoot struct {
	root     string
	relative string
	watcher  string
}

// Watcher names the filesystem watcher the daemon uses for this root
// (system dependent, e.g. "inotify"). Most callers can ignore it; a
// virtualized-filesystem watcher may warrant different query shapes.
func (r *ResolvedRoot) Watcher() string { return r.watcher }

// ProjectRoot returns the absolute path of the watched project root.
func (r *ResolvedRoot) ProjectRoot() string { return r.root }

// Path returns the absolute path that was originally resolved: the
// project root joined with the relative offset.
func (r *ResolvedRoot) Path() string {
	if r.relative != "" {
		return filepath.Join(r.root, r.relative)
	}
	return r.root
}

// ProjectRelativePath returns the resolved path relative to the
// project root, empty when the resolved path is the root itself.
func (r *ResolvedRoot) ProjectRelativePath() string { return r.relative }

// Client is a live connection to a vigil daemon. Create one with
// Connector.Connect. All methods are safe for concurrent use; requests
// from concurrent callers are answered in submission order.
type Client struct {
	coord  *coordinator
	conn   io.Closer
	namer  SubscriptionNamer
	logger *slog.Logger

	// submitLock serializes the enqueue step of concurrent requests.
	// It makes "request A returned before request B was issued" imply
	// "A was answered before B". It does not cover the round trip;
	// FIFO correlation itself lives in the coordinator.
	submitLock sync.Mutex
}

// newClient wires a client over an established stream: the frame
// reader goroutine owns reads, the coordinator goroutine owns writes
// and all request/subscription state.
func newClient(stream io.ReadWriteCloser, namer SubscriptionNamer, logger *slog.Logger) *Client {
	coord := newCoordinator(stream, logger)
	go newFrameReader(stream, coord).run()
	go coord.run()
	return &Client{coord: coord, conn: stream, namer: namer, logger: logger}
}

// Close tears down the connection. Requests still queued or in flight
// fail with ErrConnectionTerminated; open subscriptions observe
// ErrSubscriptionClosed.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Request issues a raw command and decodes the response into result.
// The command is the args encoded as a CBOR array, e.g.
//
//	client.Request(ctx, &response, protocol.CommandClock, root, params)
//
// This is the primitive beneath ResolveRoot, Query, Subscribe, Glob,
// and Clock; it is exported for daemon commands that have no typed
// wrapper yet. result may be nil to discard the response payload.
//
// A ctx cancellation abandons the wait but cannot retract a request
// already written to the daemon; the eventual response is discarded by
// the coordinator's ordering machinery.
func (c *Client) Request(ctx context.Context, result any, args ...any) error {
	payload, err := codec.Marshal(args)
	if err != nil {
		return fmt.Errorf("vigil: encoding request: %w", err)
	}
	request := newPendingRequest(protocol.EncodeFrame(payload))

	c.submitLock.Lock()
	err = c.coord.submit(enqueueRequest{request: request})
	c.submitLock.Unlock()
	if err != nil {
		return err
	}

	var response taskResult
	select {
	case response = <-request.done:
	case <-c.coord.done:
		// The loop exited with this request still buffered in its
		// inbox, so the completion slot will never be fulfilled.
		return ErrConnectionTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
	if response.err != nil {
		return response.err
	}

	// Stage one: shallow decode, looking only for the error field. Its
	// presence means the command failed no matter what shape the
	// caller expected.
	var envelope protocol.Envelope
	if err := codec.Unmarshal(response.pdu, &envelope); err != nil {
		return &DecodeError{Cause: err, Data: response.pdu}
	}
	if envelope.Error != "" {
		return &ServerError{Message: envelope.Error, Command: describeCommand(payload)}
	}
	if envelope.Warning != "" {
		c.logger.Warn("vigil server warning", "warning", envelope.Warning)
	}

	// Stage two: the full typed decode.
	if result != nil {
		if err := codec.Unmarshal(response.pdu, result); err != nil {
			return &DecodeError{Cause: err, Data: response.pdu}
		}
	}
	return nil
}

// describeCommand renders an encoded request for error messages.
func describeCommand(payload []byte) string {
	if notation, err := codec.Diagnose(payload); err == nil {
		return notation
	}
	return fmt.Sprintf("(%d raw bytes)", len(payload))
}

// ResolveRoot ensures the daemon is watching the given path and
// resolves it to the enclosing project root. This is typically the
// first call on a new client.
//
// For a path not yet watched, the daemon answers only after its
// initial recursive crawl of that part of the filesystem completes.
// On large trees that takes real time; bound the wait with ctx if
// needed, but the delay is expected behavior, not a fault.
func (c *Client) ResolveRoot(ctx context.Context, path CanonicalPath) (*ResolvedRoot, error) {
	var response protocol.WatchProjectResponse
	if err := c.Request(ctx, &response, protocol.CommandWatchProject, path.String()); err != nil {
		return nil, err
	}
	if response.Watch == "" {
		return nil, &MissingFieldError{
			Field:    "watch",
			Command:  protocol.CommandWatchProject,
			Response: fmt.Sprintf("%+v", response),
		}
	}
	return &ResolvedRoot{
		root:     response.Watch,
		relative: response.RelativePath,
		watcher:  response.Watcher,
	}, nil
}

// Clock returns the current position in the root's change stream.
//
// With the default SyncTimeout the daemon first creates a sync barrier
// and waits for the filesystem to deliver it, so the returned clock is
// guaranteed to cover every change that happened before this call.
// With NoSyncBarrier the instantaneous clock is returned without that
// guarantee. The barrier wait is bounded by the daemon, not by a
// client-side timer; exceeding it yields a server error.
func (c *Client) Clock(ctx context.Context, root *ResolvedRoot, timeout protocol.SyncTimeout) (protocol.ClockSpec, error) {
	var response protocol.ClockResponse
	err := c.Request(ctx, &response, protocol.CommandClock, root.ProjectRoot(),
		protocol.ClockParams{SyncTimeout: timeout})
	if err != nil {
		return protocol.ClockSpec{}, err
	}
	if response.Clock.IsZero() {
		return protocol.ClockSpec{}, &MissingFieldError{
			Field:    "clock",
			Command:  protocol.CommandClock,
			Response: fmt.Sprintf("%+v", response),
		}
	}
	return response.Clock, nil
}

// Glob expands glob patterns against the current state of the root and
// returns the matching paths, relative to the root, in the order the
// daemon reports them.
func (c *Client) Glob(ctx context.Context, root *ResolvedRoot, patterns ...string) ([]string, error) {
	result, err := Query[protocol.NameOnly](ctx, c, root, protocol.QueryParams{
		Glob: patterns,
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, len(result.Files))
	for i, file := range result.Files {
		names[i] = file.Name
	}
	return names, nil
}

// Query runs a one-shot query against a resolved root. F selects the
// file attributes populated in each result element; use
// protocol.NameOnly, protocol.FileStatus, or a caller-defined
// FieldList type.
//
// The query is automatically scoped to the root's project-relative
// offset, so a root resolved from a subdirectory only sees files under
// that subdirectory.
func Query[F protocol.FieldList](ctx context.Context, c *Client, root *ResolvedRoot, params protocol.QueryParams) (*protocol.QueryResult[F], error) {
	var selector F
	params.Fields = selector.FieldList()
	params.RelativeRoot = root.ProjectRelativePath()

	var result protocol.QueryResult[F]
	if err := c.Request(ctx, &result, protocol.CommandQuery, root.ProjectRoot(), params); err != nil {
		return nil, err
	}
	return &result, nil
}

// Subscribe opens a long-lived subscription on a resolved root. Change
// sets stream to the returned handle as the daemon observes them; the
// SubscribeResponse describes the watch state at subscription time.
//
// The delivery mailbox is registered before the subscribe command is
// sent, so no push can be lost in the window between the server
// activating the subscription and the response arriving.
func Subscribe[F protocol.FieldList](ctx context.Context, c *Client, root *ResolvedRoot, params protocol.SubscribeParams) (*Subscription[F], *protocol.SubscribeResponse, error) {
	var selector F
	params.Fields = selector.FieldList()
	params.RelativeRoot = root.ProjectRelativePath()

	name := c.namer()
	box := newMailbox()
	if err := c.coord.submit(registerSubscription{name: name, mailbox: box}); err != nil {
		return nil, nil, err
	}

	var response protocol.SubscribeResponse
	if err := c.Request(ctx, &response, protocol.CommandSubscribe, root.ProjectRoot(), name, params); err != nil {
		box.close()
		return nil, nil, err
	}

	subscription := &Subscription[F]{
		name:    name,
		client:  c,
		root:    root,
		mailbox: box,
	}
	return subscription, &response, nil
}
