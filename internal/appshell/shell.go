// Package appshell owns process-level concerns: signal wiring and the
// exit code. Everything below it works with a context and io.Writers so
// tests never touch os.Exit.
package appshell

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Main runs the pipeline entry point under SIGINT/SIGTERM cancellation.
// An interrupted run exits 130; since every stage is resumable, the
// operator just re-invokes with the same runid.
func Main(run func(context.Context, []string, io.Writer, io.Writer) int) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	argv := os.Args[1:]
	if len(argv) == 0 {
		argv = []string{"-h"}
	}

	code := run(ctx, argv, os.Stdout, os.Stderr)
	if ctx.Err() != nil && code == 0 {
		code = 130
	}

	stop()
	os.Exit(code)
}
