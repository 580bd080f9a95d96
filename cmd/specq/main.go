// Command specq is the CLI entrypoint for the change-proposal orchestrator:
// it scans a project's changes directory, validates the dependency DAG, and
// drives each change through compile/execute/verify/decide.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/specq-run/specq/internal/graph"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "specq:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a top-level command error to a process exit code: 1 for
// a DAG validation failure, 2 for a setup failure (config load, store
// open), 1 otherwise.
func exitCodeFor(err error) int {
	var dagErr *graph.Error
	if errors.As(err, &dagErr) {
		return 1
	}
	var setupErr *setupError
	if errors.As(err, &setupErr) {
		return 2
	}
	return 1
}

// setupError marks a failure in loading config or opening the store —
// distinct from a DAG or per-change failure for exit-code purposes.
type setupError struct{ err error }

func (e *setupError) Error() string { return e.err.Error() }
func (e *setupError) Unwrap() error { return e.err }
