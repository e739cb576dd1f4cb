// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package vigil

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/vigilwatch/vigil-go/lib/testutil"
	"github.com/vigilwatch/vigil-go/protocol"
)

func TestResolveRoot(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(t)
	ctx := t.Context()

	go func() {
		args := server.expectCommand(protocol.CommandWatchProject)
		if args[0] != "/repo/deep/dir" {
			t.Errorf("watched path: got %v", args[0])
		}
		server.send(map[string]any{
			"version":       "1.0",
			"watch":         "/repo",
			"relative_path": "deep/dir",
			"watcher":       "inotify",
		})
	}()

	root, err := client.ResolveRoot(ctx, CanonicalPath{path: "/repo/deep/dir"})
	if err != nil {
		t.Fatalf("ResolveRoot: %v", err)
	}
	if root.ProjectRoot() != "/repo" {
		t.Errorf("project root: got %q", root.ProjectRoot())
	}
	if root.ProjectRelativePath() != "deep/dir" {
		t.Errorf("relative path: got %q", root.ProjectRelativePath())
	}
	if root.Path() != "/repo/deep/dir" {
		t.Errorf("path: got %q", root.Path())
	}
	if root.Watcher() != "inotify" {
		t.Errorf("watcher: got %q", root.Watcher())
	}
}

func TestResolveRootWithoutRelativePath(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(t)

	go func() {
		server.expectCommand(protocol.CommandWatchProject)
		server.send(map[string]any{"version": "1.0", "watch": "/repo"})
	}()

	root, err := client.ResolveRoot(t.Context(), CanonicalPath{path: "/repo"})
	if err != nil {
		t.Fatalf("ResolveRoot: %v", err)
	}
	if root.Path() != "/repo" {
		t.Errorf("path: got %q", root.Path())
	}
}

func TestResolveRootMissingWatchField(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(t)

	go func() {
		server.expectCommand(protocol.CommandWatchProject)
		server.send(map[string]any{"version": "1.0"})
	}()

	_, err := client.ResolveRoot(t.Context(), CanonicalPath{path: "/repo"})
	var missing *MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("got %v, want MissingFieldError", err)
	}
	if missing.Field != "watch" {
		t.Errorf("field: got %q", missing.Field)
	}
}

func TestServerErrorField(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(t)

	go func() {
		server.expectCommand(protocol.CommandWatchProject)
		server.send(map[string]any{
			"version": "1.0",
			"error":   "unable to resolve root /nope: directory not present",
		})
	}()

	_, err := client.ResolveRoot(t.Context(), CanonicalPath{path: "/nope"})
	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("got %v, want ServerError", err)
	}
	if !strings.Contains(serverErr.Message, "unable to resolve root") {
		t.Errorf("message: got %q", serverErr.Message)
	}
	if !strings.Contains(serverErr.Command, protocol.CommandWatchProject) {
		t.Errorf("command context: got %q", serverErr.Command)
	}
}

func TestClock(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(t)

	go func() {
		args := server.expectCommand(protocol.CommandClock)
		if args[0] != "/repo" {
			t.Errorf("root: got %v", args[0])
		}
		params, ok := args[1].(map[string]any)
		if !ok {
			t.Errorf("params: got %T", args[1])
		} else if params["sync_timeout"] != uint64(60000) {
			t.Errorf("sync_timeout: got %v", params["sync_timeout"])
		}
		server.send(map[string]any{"version": "1.0", "clock": "c:42:7"})
	}()

	clock, err := client.Clock(t.Context(), &ResolvedRoot{root: "/repo"}, protocol.SyncTimeout{})
	if err != nil {
		t.Fatalf("Clock: %v", err)
	}
	if clock.Token != "c:42:7" {
		t.Errorf("clock: got %+v", clock)
	}
}

func TestClockMissingClockField(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(t)

	go func() {
		server.expectCommand(protocol.CommandClock)
		server.send(map[string]any{"version": "1.0"})
	}()

	_, err := client.Clock(t.Context(), &ResolvedRoot{root: "/repo"}, protocol.NoSyncBarrier())
	var missing *MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("got %v, want MissingFieldError", err)
	}
}

func TestGlob(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(t)

	go func() {
		args := server.expectCommand(protocol.CommandQuery)
		if args[0] != "/repo" {
			t.Errorf("root: got %v", args[0])
		}
		params, ok := args[1].(map[string]any)
		if !ok {
			t.Errorf("params: got %T", args[1])
			return
		}
		if !reflect.DeepEqual(params["glob"], []any{"**/*.txt"}) {
			t.Errorf("glob patterns: got %v", params["glob"])
		}
		if !reflect.DeepEqual(params["fields"], []any{"name"}) {
			t.Errorf("fields: got %v", params["fields"])
		}
		server.send(map[string]any{
			"version":           "1.0",
			"clock":             "c:1:1",
			"is_fresh_instance": true,
			"files": []map[string]any{
				{"name": "a.txt"},
				{"name": "sub/b.txt"},
			},
		})
	}()

	names, err := client.Glob(t.Context(), &ResolvedRoot{root: "/repo"}, "**/*.txt")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"a.txt", "sub/b.txt"}) {
		t.Errorf("names: got %v", names)
	}
}

func TestQueryCarriesRelativeRootAndFields(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(t)

	go func() {
		args := server.expectCommand(protocol.CommandQuery)
		params, ok := args[1].(map[string]any)
		if !ok {
			t.Errorf("params: got %T", args[1])
			return
		}
		if params["relative_root"] != "deep/dir" {
			t.Errorf("relative_root: got %v", params["relative_root"])
		}
		wantFields := []any{"name", "exists", "new", "size", "mtime", "type"}
		if !reflect.DeepEqual(params["fields"], wantFields) {
			t.Errorf("fields: got %v", params["fields"])
		}
		server.send(map[string]any{
			"version": "1.0",
			"clock":   "c:5:5",
			"files": []map[string]any{
				{"name": "main.go", "exists": true, "new": false, "size": 1234, "mtime": 1756600000, "type": "f"},
			},
		})
	}()

	root := &ResolvedRoot{root: "/repo", relative: "deep/dir"}
	result, err := Query[protocol.FileStatus](t.Context(), client, root, protocol.QueryParams{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(result.Files) != 1 {
		t.Fatalf("files: got %d", len(result.Files))
	}
	file := result.Files[0]
	if file.Name != "main.go" || !file.Exists || file.New || file.Size != 1234 || file.Type != "f" {
		t.Errorf("file: got %+v", file)
	}
	if result.Clock.Token != "c:5:5" {
		t.Errorf("clock: got %+v", result.Clock)
	}
}

func TestQuerySinceClock(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(t)

	go func() {
		args := server.expectCommand(protocol.CommandQuery)
		params, ok := args[1].(map[string]any)
		if !ok {
			t.Errorf("params: got %T", args[1])
			return
		}
		if params["since"] != "c:1:1" {
			t.Errorf("since: got %v", params["since"])
		}
		server.send(map[string]any{
			"version":           "1.0",
			"clock":             "c:1:9",
			"is_fresh_instance": false,
			"files":             []map[string]any{{"name": "changed.txt"}},
		})
	}()

	since := protocol.NamedClock("c:1:1")
	result, err := Query[protocol.NameOnly](t.Context(), client, &ResolvedRoot{root: "/repo"}, protocol.QueryParams{
		Since: &since,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.IsFreshInstance {
		t.Error("incremental result reported as fresh instance")
	}
	if len(result.Files) != 1 || result.Files[0].Name != "changed.txt" {
		t.Errorf("files: got %+v", result.Files)
	}
}

func TestRequestContextCancellation(t *testing.T) {
	t.Parallel()
	client, server := newTestClient(t)
	ctx, cancel := context.WithCancel(t.Context())

	// The server receives the request but never answers; canceling the
	// context must release the caller.
	done := make(chan error, 1)
	go func() {
		done <- client.Request(ctx, nil, protocol.CommandClock, "/repo", protocol.ClockParams{})
	}()
	server.expectCommand(protocol.CommandClock)
	cancel()

	err := testutil.RequireReceive(t, done, receiveTimeout, "canceled request return")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
