// Toolserver hosts the built-in tool set over framed JSON-RPC on its own
// stdin/stdout, the shape the bridge expects from a spawned server. Logs go
// to stderr so they never corrupt the protocol stream.
//
// Example:
//
//	go run ./cmd/toolserver -root /tmp/work -root /tmp/scratch
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Protocol-Lattice/go-toolbridge/pkg/mcp"
	"github.com/Protocol-Lattice/go-toolbridge/pkg/tools"
)

type rootList []string

func (r *rootList) String() string { return strings.Join(*r, ",") }

func (r *rootList) Set(value string) error {
	*r = append(*r, value)
	return nil
}

func main() {
	var roots rootList
	flag.Var(&roots, "root", "Directory the filesystem tools may touch (repeatable)")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger, roots); err != nil {
		logger.Error("toolserver failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, roots []string) error {
	registry := mcp.NewRegistry()
	if err := tools.Register(registry, roots); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := mcp.NewServer(mcp.ServerInfo{Name: "toolserver", Version: "0.1.0"}, registry)

	logger.Info("serving", "tools", len(registry.List()), "roots", strings.Join(roots, ","))
	return server.Serve(ctx, os.Stdin, os.Stdout)
}
