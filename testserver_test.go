// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package vigil

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/vigilwatch/vigil-go/lib/codec"
	"github.com/vigilwatch/vigil-go/lib/testutil"
	"github.com/vigilwatch/vigil-go/protocol"
)

// receiveTimeout is the hang guard for every blocking test step.
const receiveTimeout = 5 * time.Second

// testServer plays the daemon's side of the protocol over an in-memory
// pipe. Requests are decoded off the wire onto a channel so tests can
// assert on them with testutil.RequireReceive; responses and pushes
// are written back with the send helpers.
type testServer struct {
	t        *testing.T
	conn     net.Conn
	requests chan []any
}

// newTestClient wires a Client to an in-process testServer over
// net.Pipe. The server reads requests in the background immediately,
// since pipe writes block until the peer reads.
func newTestClient(t *testing.T) (*Client, *testServer) {
	t.Helper()
	clientSide, serverSide := net.Pipe()

	server := &testServer{
		t:        t,
		conn:     serverSide,
		requests: make(chan []any, 16),
	}
	go server.readLoop()

	client := newClient(clientSide, NewSubscriptionNamer("test"), slog.Default())
	t.Cleanup(func() {
		_ = client.Close()
		_ = serverSide.Close()
	})
	return client, server
}

// readLoop decodes request frames onto the requests channel until the
// connection closes.
func (s *testServer) readLoop() {
	var pending []byte
	buffer := make([]byte, 4096)
	for {
		start, length, err := protocol.SniffHeader(pending)
		if err == nil && len(pending) >= start+length {
			var request []any
			if err := codec.Unmarshal(pending[start:start+length], &request); err != nil {
				s.t.Errorf("test server: undecodable request: %v", err)
				return
			}
			pending = append(pending[:0], pending[start+length:]...)
			s.requests <- request
			continue
		}
		if err != nil && !errors.Is(err, protocol.ErrShortHeader) {
			s.t.Errorf("test server: bad frame: %v", err)
			return
		}

		n, err := s.conn.Read(buffer)
		if n > 0 {
			pending = append(pending, buffer[:n]...)
			continue
		}
		if err != nil {
			return
		}
	}
}

// expectCommand receives the next request and asserts its command tag,
// returning the remaining arguments.
func (s *testServer) expectCommand(command string) []any {
	s.t.Helper()
	request := testutil.RequireReceive(s.t, s.requests, receiveTimeout, "waiting for %q request", command)
	if len(request) == 0 {
		s.t.Fatalf("empty request, want %q", command)
	}
	if request[0] != command {
		s.t.Fatalf("command: got %v, want %q", request[0], command)
	}
	return request[1:]
}

// send writes one framed PDU carrying the encoded payload.
func (s *testServer) send(payload any) {
	s.t.Helper()
	data, err := codec.Marshal(payload)
	if err != nil {
		s.t.Errorf("test server: encoding payload: %v", err)
		return
	}
	s.sendRaw(protocol.EncodeFrame(data))
}

// sendRaw writes pre-framed bytes verbatim.
func (s *testServer) sendRaw(frame []byte) {
	s.t.Helper()
	if _, err := s.conn.Write(frame); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		s.t.Errorf("test server: writing frame: %v", err)
	}
}

// push sends a unilateral PDU for the named subscription, merging the
// given extra fields into the payload.
func (s *testServer) push(subscription string, extra map[string]any) {
	s.t.Helper()
	payload := map[string]any{
		"unilateral":   true,
		"subscription": subscription,
	}
	for key, value := range extra {
		payload[key] = value
	}
	s.send(payload)
}

// sever closes the server side of the transport.
func (s *testServer) sever() {
	_ = s.conn.Close()
}
