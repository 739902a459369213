// Package runner executes external commands on behalf of the provisioning
// pipeline and the service engine. Output is forwarded line-by-line to the
// log bus; completion resolves to an exit status.
//
// Two implementations exist: Exec spawns real OS processes, Fake is an
// in-memory scripted runner for tests. Callers receive whichever was
// injected at startup and never detect the backend themselves.
package runner

import (
	"context"
	"errors"
)

// ErrToolMissing reports that a command's executable could not be resolved
// on the host. Nothing was spawned.
var ErrToolMissing = errors.New("required tool not found")

// Spec describes one command invocation.
type Spec struct {
	// Source tags every emitted log line (a pipeline step id, or "service").
	Source  string
	Command string
	Args    []string
	// Dir is the working directory. Empty means the caller's.
	Dir string
	// Env entries are appended to the parent environment.
	Env map[string]string
}

// Result is the outcome of a completed command.
type Result struct {
	ExitCode int
	Success  bool
	// LastStderr is the final stderr line, kept as the failure message.
	LastStderr string
	// Stdout holds the captured stdout lines for callers that parse output.
	Stdout []string
}

// Exit is the terminal state of a long-running command.
type Exit struct {
	Code int
	// Err is set for failures other than a non-zero exit status.
	Err error
}

// Handle controls a long-running command started with Start.
type Handle interface {
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Exit reports the terminal state. Valid only after Done is closed.
	Exit() Exit
	// Terminate asks the process to stop, escalating to a forced kill
	// when ctx expires before it exits.
	Terminate(ctx context.Context) error
}

// Runner runs external commands.
type Runner interface {
	// Run executes a command to completion. A non-zero exit is reported
	// through Result, not through the error.
	Run(ctx context.Context, spec Spec) (Result, error)
	// Start launches a long-running command and returns its handle.
	Start(ctx context.Context, spec Spec) (Handle, error)
}
