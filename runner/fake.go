package runner

import (
	"context"
	"fmt"
	"sync"

	"voxup/logbus"
)

var _ Runner = (*Fake)(nil)

// Fake is an in-memory Runner for tests. Results are scripted per command
// name; every invocation is recorded.
type Fake struct {
	mu    sync.Mutex
	calls []Spec

	// Results maps a command name to its canned result. Commands without
	// an entry succeed with exit 0.
	Results map[string]Result
	// Missing marks commands that resolve to ErrToolMissing.
	Missing map[string]bool
	// Lines are published to Bus (when set) before a command resolves,
	// keyed by command name.
	Lines map[string][]string
	Bus   *logbus.Bus

	// RunErr and StartErr, when set, override everything else.
	RunErr   func(spec Spec) error
	StartErr error
}

// NewFake creates a Fake where every command succeeds.
func NewFake() *Fake {
	return &Fake{
		Results: make(map[string]Result),
		Missing: make(map[string]bool),
		Lines:   make(map[string][]string),
	}
}

func (f *Fake) Run(ctx context.Context, spec Spec) (Result, error) {
	f.record(spec)

	if f.RunErr != nil {
		if err := f.RunErr(spec); err != nil {
			return Result{}, err
		}
	}
	if f.Missing[spec.Command] {
		return Result{}, fmt.Errorf("%w: %q", ErrToolMissing, spec.Command)
	}

	if f.Bus != nil {
		for _, line := range f.Lines[spec.Command] {
			f.Bus.Publish(logbus.Line{Source: spec.Source, Stream: logbus.StreamStdout, Text: line})
		}
	}

	if res, ok := f.Results[spec.Command]; ok {
		return res, nil
	}
	return Result{ExitCode: 0, Success: true}, nil
}

func (f *Fake) Start(ctx context.Context, spec Spec) (Handle, error) {
	f.record(spec)

	if f.StartErr != nil {
		return nil, f.StartErr
	}
	if f.Missing[spec.Command] {
		return nil, fmt.Errorf("%w: %q", ErrToolMissing, spec.Command)
	}
	return NewFakeHandle(), nil
}

// Calls returns the recorded invocations in order.
func (f *Fake) Calls() []Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Spec, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount reports how many commands were invoked.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *Fake) record(spec Spec) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()
}

var _ Handle = (*FakeHandle)(nil)

// FakeHandle is a Handle whose exit is triggered by the test.
type FakeHandle struct {
	mu         sync.Mutex
	exit       Exit
	done       chan struct{}
	terminated bool

	// TerminateErr is returned by Terminate when set.
	TerminateErr error
}

func NewFakeHandle() *FakeHandle {
	return &FakeHandle{done: make(chan struct{})}
}

func (h *FakeHandle) Done() <-chan struct{} { return h.done }

func (h *FakeHandle) Exit() Exit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exit
}

func (h *FakeHandle) Terminate(ctx context.Context) error {
	h.mu.Lock()
	h.terminated = true
	err := h.TerminateErr
	h.mu.Unlock()
	if err != nil {
		return err
	}
	h.Finish(Exit{Code: 0})
	return nil
}

// Finish marks the process exited. Safe to call more than once.
func (h *FakeHandle) Finish(exit Exit) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return
	default:
	}
	h.exit = exit
	close(h.done)
}

// Terminated reports whether Terminate was called.
func (h *FakeHandle) Terminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}
