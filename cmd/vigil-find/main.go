// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

// vigil-find expands glob patterns against the daemon's view of a
// watched tree and prints the matches. Because the daemon answers from
// its in-memory state, this is typically much faster than walking the
// filesystem, and the results are crawl-consistent: a query issued
// after a change settles always reflects that change.
//
// Usage:
//
//	vigil-find [flags] <pattern> [pattern...]
//
// The root defaults to the current directory and is resolved to the
// enclosing watched project the same way all vigil clients do it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/vigilwatch/vigil-go"
	"github.com/vigilwatch/vigil-go/cmd/internal/cliconfig"
	"github.com/vigilwatch/vigil-go/protocol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "vigil-find: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		socketPath string
		rootPath   string
		fields     bool
		configPath string
		timeout    time.Duration
	)

	flagSet := pflag.NewFlagSet("vigil-find", pflag.ContinueOnError)
	flagSet.StringVar(&socketPath, "sockname", "", "daemon socket path (default: $VIGIL_SOCK or CLI discovery)")
	flagSet.StringVar(&rootPath, "root", ".", "directory to search under")
	flagSet.BoolVar(&fields, "fields", false, "print size and mtime columns alongside names")
	flagSet.StringVar(&configPath, "config", "", "YAML config file with flag defaults")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for the query")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	patterns := flagSet.Args()
	if len(patterns) == 0 {
		return fmt.Errorf("usage: vigil-find [flags] <pattern> [pattern...]")
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

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
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

	if !fields {
		names, err := client.Glob(ctx, root, patterns...)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	result, err := vigil.Query[protocol.NameAndMTime](ctx, client, root, protocol.QueryParams{
		Glob: patterns,
	})
	if err != nil {
		return err
	}
	for _, file := range result.Files {
		modified := time.Unix(file.MTime, 0).Format(time.RFC3339)
		fmt.Printf("%s\t%s\n", modified, file.Name)
	}
	return nil
}
