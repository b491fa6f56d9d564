// Command fabrica introspects a PostgreSQL database and generates a
// typed HTTP API server plus a matching client SDK.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/syssam/fabrica"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fabrica:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto stable exit codes so wrapper
// scripts can tell a bad config from a failed introspection.
func exitCode(err error) int {
	switch {
	case fabrica.IsConfigError(err):
		return 2
	case fabrica.IsIntrospectionError(err):
		return 4
	case fabrica.IsClassificationError(err):
		return 5
	case fabrica.IsEmissionError(err):
		return 6
	default:
		return 1
	}
}
