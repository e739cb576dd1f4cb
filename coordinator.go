// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package vigil

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/vigilwatch/vigil-go/lib/codec"
	"github.com/vigilwatch/vigil-go/protocol"
)

// inboxCapacity sizes the coordinator's inbox channel. It only bounds
// burst submission; correctness does not depend on it because every
// producer blocks until the coordinator accepts the item.
const inboxCapacity = 128

// taskResult is what a pending request's completion slot eventually
// receives: the raw response PDU payload, or a terminal error.
type taskResult struct {
	pdu []byte
	err error
}

// pendingRequest pairs a fully framed request with its single-use
// completion slot. The slot channel has capacity 1 so fulfillment
// never blocks the coordinator, even when the caller has stopped
// waiting.
type pendingRequest struct {
	frame []byte
	done  chan taskResult
}

func newPendingRequest(frame []byte) *pendingRequest {
	return &pendingRequest{frame: frame, done: make(chan taskResult, 1)}
}

// fulfill completes the request. Called at most once, by the
// coordinator goroutine only.
func (r *pendingRequest) fulfill(result taskResult) {
	r.done <- result
}

// taskItem is one event on the coordinator's inbox. Exactly three
// things can happen to the coordinator: a caller submits a request,
// the frame reader delivers a PDU or dies, and a subscription
// registers its mailbox.
type taskItem interface {
	taskItem()
}

// enqueueRequest asks the coordinator to queue a framed request.
type enqueueRequest struct {
	request *pendingRequest
}

// receivedPDU delivers one complete PDU payload from the frame reader.
type receivedPDU struct {
	payload []byte
}

// registerSubscription installs a delivery mailbox for a subscription
// name before the subscribe command is sent, so no early push can be
// missed.
type registerSubscription struct {
	name    string
	mailbox *mailbox
}

// connectionFailed reports that the frame reader hit a fatal transport
// or framing error. The coordinator drains and exits.
type connectionFailed struct {
	err error
}

func (enqueueRequest) taskItem()       {}
func (receivedPDU) taskItem()          {}
func (registerSubscription) taskItem() {}
func (connectionFailed) taskItem()     {}

// coordinator owns the write half of the transport, the FIFO queue of
// pending requests, and the subscription registry. It is the only
// goroutine that touches any of them, so the whole request/response
// state machine is race-free by construction.
//
// The protocol carries no request identifiers: correlation is purely
// positional. At most one request may be awaiting a response at any
// instant, and responses complete queued requests strictly in the
// order the requests were written to the transport.
type coordinator struct {
	writer        io.Writer
	inbox         chan taskItem
	done          chan struct{}
	queue         []*pendingRequest
	awaitingReply bool
	subscriptions map[string]*mailbox
	logger        *slog.Logger
}

func newCoordinator(writer io.Writer, logger *slog.Logger) *coordinator {
	return &coordinator{
		writer:        writer,
		inbox:         make(chan taskItem, inboxCapacity),
		done:          make(chan struct{}),
		subscriptions: make(map[string]*mailbox),
		logger:        logger,
	}
}

// submit hands an item to the coordinator, or reports that the
// coordinator has already shut down. Callers that also hold a
// completion slot must additionally watch c.done while awaiting it:
// an item can land in the inbox buffer in the same instant the loop
// exits, in which case its slot is never fulfilled.
func (c *coordinator) submit(item taskItem) error {
	select {
	case c.inbox <- item:
		return nil
	case <-c.done:
		return ErrConnectionTerminated
	}
}

// run processes inbox items until a fatal error, then fails every
// queued request so that no caller blocks forever on a dead
// connection. Subscription mailboxes are closed for the same reason.
func (c *coordinator) run() {
	err := c.loop()
	if err != nil {
		c.logger.Debug("vigil connection loop exited", "error", err)
	}
	c.failAll(err)
	for name, box := range c.subscriptions {
		box.close()
		delete(c.subscriptions, name)
	}
	close(c.done)
}

func (c *coordinator) loop() error {
	for item := range c.inbox {
		var err error
		switch item := item.(type) {
		case enqueueRequest:
			err = c.enqueue(item.request)
		case receivedPDU:
			err = c.dispatch(item.payload)
		case registerSubscription:
			c.subscriptions[item.name] = item.mailbox
		case connectionFailed:
			err = item.err
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// enqueue pushes a request to the back of the queue, then writes the
// front of the queue if nothing is awaiting a reply.
func (c *coordinator) enqueue(request *pendingRequest) error {
	c.queue = append(c.queue, request)
	return c.sendNext()
}

// sendNext writes the front queued request to the transport unless one
// is already awaiting its reply. A write error is fatal for the whole
// connection: a partially written frame cannot be recovered.
func (c *coordinator) sendNext() error {
	if c.awaitingReply || len(c.queue) == 0 {
		return nil
	}
	if _, err := c.writer.Write(c.queue[0].frame); err != nil {
		return fmt.Errorf("writing request: %w", err)
	}
	c.awaitingReply = true
	return nil
}

// dispatch routes one received PDU. A shallow decode classifies it:
// unilateral pushes go to their subscription's mailbox, everything
// else completes the oldest pending request. The push check runs
// first, before response matching, even while a request is in flight;
// the daemon never emits a payload that is legitimately both.
func (c *coordinator) dispatch(payload []byte) error {
	var envelope protocol.Envelope
	if err := codec.Unmarshal(payload, &envelope); err != nil {
		// Not decodable as an envelope. Fall through to response
		// matching: the caller awaiting the front request reports the
		// decode failure with full context, which beats killing the
		// connection from here.
		envelope = protocol.Envelope{}
	}

	switch {
	case envelope.IsUnilateral() && c.subscriptions[envelope.Subscription] != nil:
		box := c.subscriptions[envelope.Subscription]
		if !box.push(payload) {
			// The receiving side is gone. Local teardown of one
			// subscription is not a connection problem.
			delete(c.subscriptions, envelope.Subscription)
		}
	case c.awaitingReply:
		request := c.queue[0]
		c.queue = c.queue[1:]
		c.awaitingReply = false
		request.fulfill(taskResult{pdu: payload})
	default:
		if envelope.Subscription != "" {
			return fmt.Errorf("received a PDU for unknown subscription %q with no request in flight", envelope.Subscription)
		}
		return fmt.Errorf("received an unsolicited PDU with no request in flight")
	}

	return c.sendNext()
}

// failAll fulfills every queued request with a connection-terminated
// error. cause is nil on clean shutdown.
func (c *coordinator) failAll(cause error) {
	err := ErrConnectionTerminated
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrConnectionTerminated, cause)
	}
	for _, request := range c.queue {
		request.fulfill(taskResult{err: err})
	}
	c.queue = nil
	c.awaitingReply = false
}
