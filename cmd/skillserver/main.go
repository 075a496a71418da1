// ABOUTME: Entry point for skillserver
// ABOUTME: cobra command tree (serve/admin token/version) over the wired MCP + admin stack

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(exitCodeFor(err))
	}
}
