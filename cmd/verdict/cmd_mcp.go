package main

import (
	"flag"
	"log/slog"
	"os"

	mcpserver "github.com/felixgeelhaar/verdict/internal/mcp"
)

// cmdMCP starts the MCP server. Stdio carries the protocol, so logs go to
// stderr.
func cmdMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	httpAddr := fs.String("http", "", "serve over HTTP on this address instead of stdio")
	record := fs.Bool("record", false, "record runs and progress in the configured storage")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	e, err := newEngine(ctx, engineOptions{storage: *record, logger: logger})
	if err != nil {
		return err
	}
	defer e.Close()

	srv := mcpserver.NewServer(mcpserver.Config{
		Registry: e.registry,
		Runner:   e.runner,
		Version:  Version,
	})

	if *httpAddr != "" {
		logger.Warn("serving MCP over HTTP", "addr", *httpAddr)
		return srv.ServeHTTP(ctx, *httpAddr)
	}
	return srv.ServeStdio(ctx)
}
