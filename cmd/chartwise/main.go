// File: cmd/chartwise/main.go
/*
Copyright © 2025 Kyle McAllister (xkilldash9x@proton.me)
*/

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/chartwise/cmd"
)

// osExit allows tests to observe the exit code.
var osExit = os.Exit

func main() {
	// Cancel the command context on SIGINT/SIGTERM so servers and browser
	// sessions shut down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(run(ctx))
}

func run(ctx context.Context) int {
	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		return 1
	}
	return 0
}
