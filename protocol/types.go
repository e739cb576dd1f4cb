// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vigilwatch/vigil-go/lib/codec"
)

// Command tags. Every request PDU is a CBOR array whose first element
// is one of these strings.
const (
	CommandWatchProject = "watch-project"
	CommandQuery        = "query"
	CommandSubscribe    = "subscribe"
	CommandUnsubscribe  = "unsubscribe"
	CommandClock        = "clock"
	CommandGetSockname  = "get-sockname"
)

// Envelope is the shallow decode of any PDU arriving from the daemon.
// It carries only the fields needed to route and classify the PDU; the
// full payload is decoded later against the caller's expected type.
//
// A PDU is a unilateral push iff Unilateral is true and Subscription
// is non-empty. A non-empty Error always means the command failed,
// regardless of which command was issued.
type Envelope struct {
	Version      string `cbor:"version,omitempty"`
	Error        string `cbor:"error,omitempty"`
	Warning      string `cbor:"warning,omitempty"`
	Unilateral   bool   `cbor:"unilateral,omitempty"`
	Subscription string `cbor:"subscription,omitempty"`
}

// IsUnilateral reports whether the PDU is a push message rather than a
// response to a request.
func (e *Envelope) IsUnilateral() bool {
	return e.Unilateral && e.Subscription != ""
}

// ClockSpec is a position in a watched root's change stream. The
// daemon emits opaque clock tokens ("c:1700000000:2:3:42"); callers
// may also supply a Unix timestamp as a coarse starting point for
// "since" queries. On the wire a token is a CBOR text string and a
// timestamp is an integer.
type ClockSpec struct {
	// Token is the daemon-issued clock token. When set, Timestamp is
	// ignored.
	Token string

	// Timestamp is seconds since the epoch. Only consulted when Token
	// is empty.
	Timestamp int64
}

// NamedClock constructs a ClockSpec from a daemon-issued token.
func NamedClock(token string) ClockSpec {
	return ClockSpec{Token: token}
}

// UnixTimestampClock constructs a ClockSpec from a Unix timestamp.
// Timestamp-based clocks are subject to clock skew between the caller
// and the filesystem; prefer daemon-issued tokens wherever possible.
func UnixTimestampClock(seconds int64) ClockSpec {
	return ClockSpec{Timestamp: seconds}
}

// IsZero reports whether the ClockSpec carries no position at all.
func (c ClockSpec) IsZero() bool {
	return c.Token == "" && c.Timestamp == 0
}

// String renders the clock for diagnostics.
func (c ClockSpec) String() string {
	if c.Token != "" {
		return c.Token
	}
	return strconv.FormatInt(c.Timestamp, 10)
}

// MarshalCBOR encodes the clock as a text string token or an integer
// timestamp.
func (c ClockSpec) MarshalCBOR() ([]byte, error) {
	if c.Token != "" {
		return codec.Marshal(c.Token)
	}
	return codec.Marshal(c.Timestamp)
}

// UnmarshalCBOR decodes either wire form.
func (c *ClockSpec) UnmarshalCBOR(data []byte) error {
	var token string
	if err := codec.Unmarshal(data, &token); err == nil {
		*c = ClockSpec{Token: token}
		return nil
	}
	var seconds int64
	if err := codec.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("clock is neither a token nor a timestamp: %w", err)
	}
	*c = ClockSpec{Timestamp: seconds}
	return nil
}

// defaultSyncTimeout is the barrier wait the daemon applies when the
// caller does not choose one.
const defaultSyncTimeout = 60 * time.Second

// SyncTimeout controls whether a command synchronizes with the
// filesystem before observing the clock, and how long the daemon may
// wait for that barrier. The wait is enforced server-side; the client
// sets no timer of its own.
//
// The zero value requests the daemon's default barrier wait.
type SyncTimeout struct {
	duration time.Duration
	disabled bool
}

// SyncTimeoutAfter requests a synchronization barrier with an explicit
// server-side wait bound.
func SyncTimeoutAfter(d time.Duration) SyncTimeout {
	return SyncTimeout{duration: d}
}

// NoSyncBarrier skips the synchronization barrier entirely: the
// command observes the instantaneous clock without waiting for
// pending filesystem notifications to settle.
func NoSyncBarrier() SyncTimeout {
	return SyncTimeout{disabled: true}
}

// MarshalCBOR encodes the timeout as milliseconds, with 0 meaning "no
// barrier".
func (s SyncTimeout) MarshalCBOR() ([]byte, error) {
	switch {
	case s.disabled:
		return codec.Marshal(0)
	case s.duration == 0:
		return codec.Marshal(defaultSyncTimeout.Milliseconds())
	default:
		return codec.Marshal(s.duration.Milliseconds())
	}
}

// ClockParams is the parameter object of the "clock" command.
type ClockParams struct {
	SyncTimeout SyncTimeout `cbor:"sync_timeout"`
}

// QueryParams is the parameter object of the "query" command, and the
// common core of "subscribe". All fields are optional; the zero value
// matches every file under the root.
type QueryParams struct {
	// Glob restricts results to paths matching any of these patterns,
	// relative to the (possibly relative-root adjusted) root.
	Glob []string `cbor:"glob,omitempty"`

	// GlobIncludeDotfiles makes `*` match dotfiles in glob terms.
	GlobIncludeDotfiles bool `cbor:"glob_includedotfiles,omitempty"`

	// Path restricts results to files under any of these directory
	// prefixes.
	Path []string `cbor:"path,omitempty"`

	// Suffix restricts results to files with any of these suffixes.
	Suffix []string `cbor:"suffix,omitempty"`

	// Expression filters results with a composed expression term.
	Expression *Expr `cbor:"expression,omitempty"`

	// Fields selects which file attributes appear in each result
	// element. The client fills this from the caller's FieldList type;
	// callers do not set it directly.
	Fields []string `cbor:"fields,omitempty"`

	// Since scopes the query to changes after the given clock. Leaving
	// it unset asks for all matching files.
	Since *ClockSpec `cbor:"since,omitempty"`

	// RelativeRoot re-roots the query at a subdirectory of the watched
	// project. The client fills this from the resolved root.
	RelativeRoot string `cbor:"relative_root,omitempty"`

	// SyncTimeout bounds the pre-query synchronization barrier.
	SyncTimeout *SyncTimeout `cbor:"sync_timeout,omitempty"`

	// CaseSensitive forces case-sensitive matching on systems where
	// the default follows the filesystem.
	CaseSensitive bool `cbor:"case_sensitive,omitempty"`

	// DedupResults removes duplicate entries when a file changes more
	// than once between observations.
	DedupResults bool `cbor:"dedup_results,omitempty"`
}

// SubscribeParams is the parameter object of the "subscribe" command.
type SubscribeParams struct {
	// Expression filters which file changes are delivered.
	Expression *Expr `cbor:"expression,omitempty"`

	// Fields selects the file attributes carried by each change set.
	// Filled in by the client from the caller's FieldList type.
	Fields []string `cbor:"fields,omitempty"`

	// Since positions the subscription in the change stream. When set,
	// the initial delivery contains changes after this clock instead
	// of a full fresh-instance result.
	Since *ClockSpec `cbor:"since,omitempty"`

	// DeferVCS holds change delivery while the daemon observes a
	// version-control operation in progress under the root.
	DeferVCS bool `cbor:"defer_vcs,omitempty"`

	// Defer holds change delivery while any of these named states are
	// asserted on the root.
	Defer []string `cbor:"defer,omitempty"`

	// Drop discards changes that occur while any of these named
	// states are asserted on the root.
	Drop []string `cbor:"drop,omitempty"`

	// RelativeRoot re-roots the subscription at a subdirectory of the
	// watched project. Filled in by the client from the resolved root.
	RelativeRoot string `cbor:"relative_root,omitempty"`
}

// WatchProjectResponse is the response payload of "watch-project".
type WatchProjectResponse struct {
	Version string `cbor:"version,omitempty"`

	// Watch is the absolute project root the daemon chose to watch.
	// This may be an ancestor of the requested path: the daemon
	// aggregates watches to project boundaries.
	Watch string `cbor:"watch"`

	// RelativePath is the requested path relative to Watch, empty when
	// the requested path is the project root itself.
	RelativePath string `cbor:"relative_path,omitempty"`

	// Watcher names the filesystem watcher backing this root (e.g.
	// "inotify", "fsevents", "kqueue").
	Watcher string `cbor:"watcher"`
}

// ClockResponse is the response payload of "clock".
type ClockResponse struct {
	Version string    `cbor:"version,omitempty"`
	Clock   ClockSpec `cbor:"clock"`
}

// SubscribeResponse is the response payload of "subscribe", describing
// the state of the watch at the moment the subscription was
// established.
type SubscribeResponse struct {
	Version string `cbor:"version,omitempty"`

	// Subscribe echoes the subscription name.
	Subscribe string `cbor:"subscribe"`

	// Clock is the change-stream position at subscription time.
	Clock ClockSpec `cbor:"clock,omitempty"`

	// AssertedStates lists named states currently asserted on the
	// root, so a subscriber using Defer/Drop knows the starting state.
	AssertedStates []string `cbor:"asserted-states,omitempty"`
}

// UnsubscribeResponse is the response payload of "unsubscribe".
type UnsubscribeResponse struct {
	Version string `cbor:"version,omitempty"`

	// Unsubscribe echoes the subscription name.
	Unsubscribe string `cbor:"unsubscribe,omitempty"`

	// Deleted is false when the subscription was already gone, which
	// callers treat as a no-op rather than an error.
	Deleted bool `cbor:"deleted,omitempty"`
}

// SocknameResponse is the response payload of "get-sockname", used by
// endpoint discovery when invoking the vigil CLI.
type SocknameResponse struct {
	Version  string `cbor:"version,omitempty"`
	Error    string `cbor:"error,omitempty"`
	Sockname string `cbor:"sockname,omitempty"`
}

// QueryResult is the result payload of "query", and the payload of
// every subscription push. F is the caller's field selection type; the
// daemon populates each element of Files with exactly the attributes
// named by the query's field list.
type QueryResult[F any] struct {
	Version string `cbor:"version,omitempty"`

	// Clock is the change-stream position the result corresponds to.
	// Pass it as Since in a later query to observe exactly the changes
	// after this result.
	Clock ClockSpec `cbor:"clock,omitempty"`

	// IsFreshInstance is true when the result is a full enumeration
	// rather than a delta: the first result for a new watch, or a
	// re-sync after the daemon discarded state. Subscribers must treat
	// a fresh instance as a reset, not an incremental change.
	IsFreshInstance bool `cbor:"is_fresh_instance,omitempty"`

	// Files holds one element per matching file.
	Files []F `cbor:"files,omitempty"`

	// Root is the watched project root the result belongs to. Present
	// on subscription pushes.
	Root string `cbor:"root,omitempty"`

	// Subscription is the subscription name on push payloads.
	Subscription string `cbor:"subscription,omitempty"`

	// Unilateral marks push payloads.
	Unilateral bool `cbor:"unilateral,omitempty"`

	// Canceled is true on the final push of a subscription: the watch
	// was deleted, became inaccessible, or the daemon is shutting
	// down. No further pushes follow.
	Canceled bool `cbor:"canceled,omitempty"`

	// StateEnter names an external coordination state that was just
	// asserted on the root.
	StateEnter string `cbor:"state-enter,omitempty"`

	// StateLeave names a state that was just released. Metadata is
	// absent when the asserting client disconnected instead of
	// releasing the state cleanly.
	StateLeave string `cbor:"state-leave,omitempty"`

	// Metadata is the payload attached to a state assertion. Decoding
	// is deferred to the caller, who knows the shape the asserting
	// tool uses.
	Metadata codec.RawMessage `cbor:"metadata,omitempty"`
}
