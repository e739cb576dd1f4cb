// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package vigil

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"

	"github.com/vigilwatch/vigil-go/lib/codec"
	"github.com/vigilwatch/vigil-go/protocol"
)

// SockEnvVariable is the environment variable consulted for the daemon
// socket path when the Connector has no explicit override.
const SockEnvVariable = "VIGIL_SOCK"

// defaultCLIPath is the vigil binary used for socket discovery when no
// override is configured; resolved through PATH.
const defaultCLIPath = "vigil"

// SubscriptionNamer generates client-unique subscription names. The
// daemon identifies subscriptions by name alone, so every Subscribe
// call on a connection must produce a fresh one.
type SubscriptionNamer func() string

// NewSubscriptionNamer returns a namer producing "sub-[prefix]-N" with
// an owned monotonic counter. Each namer counts independently; two
// clients sharing one namer still never collide because the counter is
// atomic.
func NewSubscriptionNamer(prefix string) SubscriptionNamer {
	var counter atomic.Uint64
	return func() string {
		return fmt.Sprintf("sub-[%s]-%d", prefix, counter.Add(1))
	}
}

// processNamer derives the default naming prefix from the running
// binary, mirroring how other daemon clients identify themselves in
// the daemon's debug output.
func processNamer() SubscriptionNamer {
	name := "<unknown>"
	if len(os.Args) > 0 && os.Args[0] != "" {
		name = filepath.Base(os.Args[0])
	}
	return NewSubscriptionNamer(name)
}

// Connector configures how to reach the vigil daemon. The zero value
// uses environmental defaults: the VIGIL_SOCK environment variable if
// set, otherwise socket discovery through the vigil CLI.
//
//	client, err := (&vigil.Connector{}).Connect(ctx)
type Connector struct {
	// SocketPath is an explicit daemon socket path. When set, no
	// environment lookup or CLI discovery happens. Integration tests
	// and latency-sensitive callers that already know the endpoint set
	// this to skip the discovery subprocess.
	SocketPath string

	// CLIPath locates the vigil binary for discovery when it is not on
	// PATH. Empty means "vigil".
	CLIPath string

	// Namer generates subscription names. Nil means a process-derived
	// default. Tests inject deterministic namers here.
	Namer SubscriptionNamer

	// Logger receives connection lifecycle and server warning logs.
	// Nil means slog.Default().
	Logger *slog.Logger
}

// Connect resolves the daemon endpoint, opens the socket, and starts
// the connection's background goroutines. Endpoint and dial failures
// are reported here synchronously; anything that goes wrong later
// surfaces through request errors and subscription closure.
func (c *Connector) Connect(ctx context.Context) (*Client, error) {
	socketPath, err := c.resolveSocketPath(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := (&net.Dialer{}).DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, &ConnectError{Endpoint: socketPath, Cause: err}
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	namer := c.Namer
	if namer == nil {
		namer = processNamer()
	}
	logger.Debug("vigil client connected", "socket", socketPath)
	return newClient(conn, namer, logger), nil
}

// resolveSocketPath applies the override, environment, discovery
// precedence.
func (c *Connector) resolveSocketPath(ctx context.Context) (string, error) {
	if c.SocketPath != "" {
		return c.SocketPath, nil
	}
	if path := os.Getenv(SockEnvVariable); path != "" {
		return path, nil
	}
	return c.discoverSocketPath(ctx)
}

// discoverSocketPath asks the vigil CLI where the daemon is listening.
// The CLI starts the daemon if it is not already running, so discovery
// doubles as daemon bootstrap.
func (c *Connector) discoverSocketPath(ctx context.Context) (string, error) {
	cliPath := c.CLIPath
	if cliPath == "" {
		cliPath = defaultCLIPath
	}

	command := exec.CommandContext(ctx, cliPath, "--output-encoding", "cbor", "get-sockname")
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return "", &DiscoveryError{CLIPath: cliPath, Cause: err, Stderr: stderr.String()}
	}

	// The CLI emits one framed PDU on stdout, same encoding as the
	// socket protocol.
	output := stdout.Bytes()
	start, length, err := protocol.SniffHeader(output)
	if err != nil || len(output) < start+length {
		if err == nil {
			err = fmt.Errorf("truncated PDU: have %d of %d bytes", len(output), start+length)
		}
		return "", &DiscoveryError{CLIPath: cliPath, Cause: err, Stderr: stderr.String()}
	}

	var response protocol.SocknameResponse
	if err := codec.Unmarshal(output[start:start+length], &response); err != nil {
		return "", &DiscoveryError{CLIPath: cliPath, Cause: err, Stderr: stderr.String()}
	}
	if response.Error != "" {
		return "", &DiscoveryError{
			CLIPath: cliPath,
			Cause:   &ServerError{Message: response.Error, Command: protocol.CommandGetSockname},
			Stderr:  stderr.String(),
		}
	}
	if response.Sockname == "" {
		return "", &DiscoveryError{
			CLIPath: cliPath,
			Cause: &MissingFieldError{
				Field:    "sockname",
				Command:  protocol.CommandGetSockname,
				Response: fmt.Sprintf("%+v", response),
			},
			Stderr: stderr.String(),
		}
	}
	return response.Sockname, nil
}
