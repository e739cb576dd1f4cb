// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package vigil

import (
	"errors"
	"fmt"

	"github.com/vigilwatch/vigil-go/lib/codec"
)

// ErrConnectionTerminated is wrapped into the failure delivered to
// every request that was queued or in flight when the connection died.
// Check for it with errors.Is.
var ErrConnectionTerminated = errors.New("vigil: connection terminated")

// ErrSubscriptionClosed is returned by Subscription.Next once the
// subscription has delivered its cancellation event, been canceled
// locally, or lost its connection.
var ErrSubscriptionClosed = errors.New("vigil: subscription closed")

// ServerError is an error reported by the daemon in a response's
// top-level "error" field. It fails only the command that provoked
// it; the connection stays healthy.
//
//	var serverErr *ServerError
//	if errors.As(err, &serverErr) { ... }
type ServerError struct {
	// Message is the daemon's error text.
	Message string

	// Command describes the request that failed, in CBOR diagnostic
	// notation.
	Command string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("vigil: server error: %q, while executing command: %s", e.Message, e.Command)
}

// DecodeError reports a PDU that could not be decoded into the
// expected shape. It carries the raw bytes for diagnosis.
type DecodeError struct {
	// Cause is the codec's decode error.
	Cause error

	// Data is the raw PDU payload.
	Data []byte
}

func (e *DecodeError) Error() string {
	if notation, err := codec.Diagnose(e.Data); err == nil {
		return fmt.Sprintf("vigil: decoding response: %v (payload: %s)", e.Cause, notation)
	}
	return fmt.Sprintf("vigil: decoding response: %v (payload: %d undecodable bytes)", e.Cause, len(e.Data))
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// MissingFieldError reports a well-formed response that lacked a field
// the caller's contract requires.
type MissingFieldError struct {
	// Field is the missing response field name.
	Field string

	// Command is the command tag whose response was incomplete.
	Command string

	// Response is the decoded response, rendered for diagnosis.
	Response string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("vigil: the server did not return a value for field %q in response to a %q command: %s",
		e.Field, e.Command, e.Response)
}

// ConnectError reports a failure to open the transport endpoint.
// Returned synchronously from Connector.Connect; failures after the
// connection is established surface through request and subscription
// errors instead.
type ConnectError struct {
	// Endpoint is the socket path that could not be opened.
	Endpoint string

	// Cause is the dial error.
	Cause error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("vigil: connecting to %s: %v", e.Endpoint, e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

// DiscoveryError reports a failure to learn the socket path from the
// vigil CLI.
type DiscoveryError struct {
	// CLIPath is the vigil binary that was invoked.
	CLIPath string

	// Cause is what went wrong: the exec failure or the decode failure
	// on the CLI's output.
	Cause error

	// Stderr is the CLI's captured standard error, when available.
	Stderr string
}

func (e *DiscoveryError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("vigil: discovering socket via %s: %v, stderr=%q", e.CLIPath, e.Cause, e.Stderr)
	}
	return fmt.Sprintf("vigil: discovering socket via %s: %v", e.CLIPath, e.Cause)
}

func (e *DiscoveryError) Unwrap() error { return e.Cause }
