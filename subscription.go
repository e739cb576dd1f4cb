// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package vigil

import (
	"context"
	"sync"

	"github.com/vigilwatch/vigil-go/lib/codec"
	"github.com/vigilwatch/vigil-go/protocol"
)

// mailbox is an unbounded FIFO of raw PDU payloads, the delivery
// channel between the coordinator and one subscription. It must be
// unbounded: the coordinator may never block on a slow subscriber, or
// one stalled consumer would freeze request processing for the whole
// connection.
type mailbox struct {
	mu     sync.Mutex
	queue  [][]byte
	closed bool

	// notify wakes a blocked receive. Capacity 1: a pending wakeup for
	// "something changed" never needs to stack.
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

// push appends a payload and reports whether the mailbox is still
// open. The coordinator deregisters the subscription when push
// returns false.
func (m *mailbox) push(payload []byte) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, payload)
	m.mu.Unlock()
	m.wake()
	return true
}

// close marks the mailbox terminal. Queued payloads stay readable;
// receive returns ErrSubscriptionClosed once they are drained.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
}

func (m *mailbox) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// receive blocks until a payload is available, the mailbox closes, or
// ctx is done.
func (m *mailbox) receive(ctx context.Context) ([]byte, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			payload := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return payload, nil
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil, ErrSubscriptionClosed
		}

		select {
		case <-m.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// SubscriptionEvent is one delivery from a subscription. The concrete
// type is one of Canceled, StateEnter, StateLeave, or FilesChanged[F].
type SubscriptionEvent interface {
	isSubscriptionEvent()
}

// Canceled is the terminal event of a subscription: the watch was
// deleted, became inaccessible, or the daemon shut down. No further
// events follow; subsequent Next calls return ErrSubscriptionClosed.
type Canceled struct{}

// StateEnter reports that some client asserted a named coordination
// state on the watched root (for example a source-control tool
// announcing an update in progress).
type StateEnter struct {
	// Name is the asserted state name.
	Name string

	// Metadata is the payload attached by the asserting client, still
	// encoded; decode it with codec.Unmarshal once the shape is known.
	Metadata codec.RawMessage
}

// StateLeave reports that a named coordination state was released.
// Metadata is nil when the asserting client disconnected instead of
// releasing the state cleanly.
type StateLeave struct {
	Name     string
	Metadata codec.RawMessage
}

// FilesChanged carries a set of observed file changes, populated with
// the fields the subscriber selected. Check Result.IsFreshInstance:
// a fresh instance is a full re-enumeration, not a delta.
type FilesChanged[F any] struct {
	Result protocol.QueryResult[F]
}

func (Canceled) isSubscriptionEvent()        {}
func (StateEnter) isSubscriptionEvent()      {}
func (StateLeave) isSubscriptionEvent()      {}
func (FilesChanged[F]) isSubscriptionEvent() {}

// Subscription is a handle to a live subscription created with
// Subscribe. Call Next repeatedly to observe events; call Cancel to
// stop the server from producing more.
//
// A Subscription is not safe for concurrent use by multiple
// goroutines.
type Subscription[F protocol.FieldList] struct {
	name     string
	client   *Client
	root     *ResolvedRoot
	mailbox  *mailbox
	canceled bool
}

// Name returns the client-assigned subscription name.
func (s *Subscription[F]) Name() string {
	return s.name
}

// Next blocks until the next event for this subscription arrives and
// classifies it. After a Canceled event (or a local Cancel), every
// subsequent call returns ErrSubscriptionClosed.
func (s *Subscription[F]) Next(ctx context.Context) (SubscriptionEvent, error) {
	payload, err := s.mailbox.receive(ctx)
	if err != nil {
		return nil, err
	}

	var result protocol.QueryResult[F]
	if err := codec.Unmarshal(payload, &result); err != nil {
		return nil, &DecodeError{Cause: err, Data: payload}
	}

	switch {
	case result.Canceled:
		s.mailbox.close()
		return Canceled{}, nil
	case result.StateEnter != "":
		return StateEnter{Name: result.StateEnter, Metadata: result.Metadata}, nil
	case result.StateLeave != "":
		return StateLeave{Name: result.StateLeave, Metadata: result.Metadata}, nil
	default:
		return FilesChanged[F]{Result: result}, nil
	}
}

// Cancel gracefully ends the subscription: it tells the daemon to stop
// producing events and closes the local delivery mailbox. Cancel is
// idempotent from the caller's point of view; only the first call
// reaches the server. If the client is about to be closed anyway,
// calling Cancel first is unnecessary.
func (s *Subscription[F]) Cancel(ctx context.Context) error {
	if s.canceled {
		return nil
	}
	s.canceled = true
	s.mailbox.close()

	var response protocol.UnsubscribeResponse
	if err := s.client.Request(ctx, &response,
		protocol.CommandUnsubscribe, s.root.ProjectRoot(), s.name); err != nil {
		return err
	}
	return nil
}
