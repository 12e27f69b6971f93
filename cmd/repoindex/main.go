// Package main provides the entry point for the repoindex CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/victorgambert/repoindex/cmd/repoindex/cmd"
)

func main() {
	// Interrupts cancel the command context so long-running operations
	// can finalize their state before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
