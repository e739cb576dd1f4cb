// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// vigil-tail follows a watched tree and prints each change set as the
// daemon reports it. It is the subscription analogue of vigil-find:
// where find queries once, tail stays attached until interrupted or
// until the daemon cancels the watch (for example when the watched
// root is deleted).
//
// Usage:
//
//	vigil-tail [flags]
//
// With --json every event is one JSON object per line, suitable for
// piping. Without it, output is a human-oriented summary; when stdout
// is not a terminal the summary drops to one line per file so that
// pipelines still get parseable output.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/vigilwatch/vigil-go"
	"github.com/vigilwatch/vigil-go/cmd/internal/cliconfig"
	"github.com/vigilwatch/vigil-go/protocol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vigil-tail: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socketPath string
		rootPath   string
		suffixes   []string
		configPath string
		jsonOutput bool
	)

	flagSet := pflag.NewFlagSet("vigil-tail", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "sockname", "", "daemon socket path (default: $VIGIL_SOCK or CLI discovery)")
	flagSet.StringVar(&rootPath, "root", ".", "directory to follow")
	flagSet.StringSliceVar(&suffixes, "expr-suffix", nil, "only report files with these suffixes (repeatable)")
	flagSet.StringVar(&configPath, "config", "", "YAML config file with flag defaults")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit one JSON object per event")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	config, err := cliconfig.Load(configPath)
	if err != nil {
		return err
	}
	if socketPath == "" {
		socketPath = config.Sockname
	}
	if !flagSet.Changed("root") && config.Root != "" {
		rootPath = config.Root
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	connector := &vigil.Connector{SocketPath: socketPath, Logger: logger}
	client, err := connector.Connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	canonical, err := vigil.Canonicalize(rootPath)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", rootPath, err)
	}
	root, err := client.ResolveRoot(ctx, canonical)
	if err != nil {
		return err
	}

	params := protocol.SubscribeParams{}
	if len(suffixes) > 0 {
		params.Expression = protocol.Suffix(suffixes...)
	}
	subscription, response, err := vigil.Subscribe[protocol.FileStatus](ctx, client, root, params)
	if err != nil {
		return err
	}
	logger.Debug("subscribed", "name", subscription.Name(), "clock", response.Clock)

	printer := newPrinter(jsonOutput)
	for {
		event, err := subscription.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, vigil.ErrSubscriptionClosed) {
				return nil
			}
			return err
		}
		if done, err := printer.print(event); err != nil {
			return err
		} else if done {
			return nil
		}
	}
}

// printer renders subscription events in one of three shapes: JSON
// lines, a terminal summary, or a plain name-per-line stream for
// pipes.
type printer struct {
	json     bool
	terminal bool
	encoder  *json.Encoder
}

func newPrinter(jsonOutput bool) *printer {
	return &printer{
		json:     jsonOutput,
		terminal: term.IsTerminal(int(os.Stdout.Fd())),
		encoder:  json.NewEncoder(os.Stdout),
	}
}

// print renders one event. The returned bool reports whether the
// stream has ended and the program should exit.
func (p *printer) print(event vigil.SubscriptionEvent) (bool, error) {
	switch event := event.(type) {
	case vigil.FilesChanged[protocol.FileStatus]:
		return false, p.printChanges(event.Result)
	case vigil.StateEnter:
		if p.json {
			return false, p.encoder.Encode(map[string]any{"state-enter": event.Name})
		}
		fmt.Printf("== state enter: %s\n", event.Name)
		return false, nil
	case vigil.StateLeave:
		if p.json {
			return false, p.encoder.Encode(map[string]any{"state-leave": event.Name})
		}
		fmt.Printf("== state leave: %s\n", event.Name)
		return false, nil
	case vigil.Canceled:
		if !p.json {
			fmt.Println("== watch canceled by daemon")
		}
		return true, nil
	default:
		return false, nil
	}
}

func (p *printer) printChanges(result protocol.QueryResult[protocol.FileStatus]) error {
	if p.json {
		type jsonFile struct {
			Name   string `json:"name"`
			Exists bool   `json:"exists"`
			New    bool   `json:"new,omitempty"`
			Size   int64  `json:"size"`
			MTime  int64  `json:"mtime"`
			Type   string `json:"type"`
		}
		files := make([]jsonFile, len(result.Files))
		for i, file := range result.Files {
			files[i] = jsonFile(file)
		}
		return p.encoder.Encode(map[string]any{
			"clock": result.Clock.String(),
			"fresh": result.IsFreshInstance,
			"files": files,
		})
	}

	if p.terminal {
		fmt.Printf("-- %d file(s) at %s", len(result.Files), result.Clock)
		if result.IsFreshInstance {
			fmt.Print(" (fresh instance)")
		}
		fmt.Println()
	}
	for _, file := range result.Files {
		marker := " "
		switch {
		case !file.Exists:
			marker = "D"
		case file.New:
			marker = "A"
		default:
			marker = "M"
		}
		if p.terminal {
			fmt.Printf("  %s %s\n", marker, file.Name)
		} else {
			fmt.Printf("%s %s\n", marker, file.Name)
		}
	}
	return nil
}
