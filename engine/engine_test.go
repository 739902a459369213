package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voxup/logbus"
	"voxup/runner"
)

// makeCheckout creates a directory that passes target validation.
func makeCheckout(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "webui.py"), []byte("# webui"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

type fakeRuntime struct {
	mu        sync.Mutex
	launchErr error
	handles   []*runner.FakeHandle
}

func (f *fakeRuntime) Launch(ctx context.Context, cfg Config) (runner.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	h := runner.NewFakeHandle()
	f.handles = append(f.handles, h)
	return h, nil
}

func (f *fakeRuntime) launched() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

func (f *fakeRuntime) handle(i int) *runner.FakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[i]
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) ServiceChanged(state State, msg string) {
	r.mu.Lock()
	r.states = append(r.states, state)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.states)
}

func probeSucceedingOn(n int64) (ProbeFunc, *atomic.Int64) {
	var attempts atomic.Int64
	return func(ctx context.Context, endpoint string) error {
		if attempts.Add(1) >= n {
			return nil
		}
		return errors.New("connection refused")
	}, &attempts
}

func waitState(t *testing.T, e *Engine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", e.State(), want)
}

func TestStartBecomesRunningWhenProbeSucceeds(t *testing.T) {
	rt := &fakeRuntime{}
	probe, attempts := probeSucceedingOn(3)
	rec := &stateRecorder{}
	e := New(rt, logbus.New(),
		WithProbe(probe),
		WithProbeBudget(time.Millisecond, 30),
		WithStateSink(rec),
	)

	cfg := Config{Dir: makeCheckout(t), Host: "127.0.0.1", Port: 7860}
	if err := e.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if e.State() != StateRunning {
		t.Fatalf("state = %s", e.State())
	}
	if got := e.Endpoint(); got != "http://127.0.0.1:7860" {
		t.Fatalf("endpoint = %q", got)
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("probe attempts = %d, want 3", got)
	}
	if want := []State{StateStarting, StateRunning}; !slices.Equal(rec.snapshot(), want) {
		t.Fatalf("transitions = %v, want %v", rec.snapshot(), want)
	}
}

func TestProbeExhaustionStopsWorkerAndErrors(t *testing.T) {
	rt := &fakeRuntime{}
	e := New(rt, logbus.New(),
		WithProbe(func(ctx context.Context, endpoint string) error {
			return errors.New("connection refused")
		}),
		WithProbeBudget(time.Millisecond, 5),
	)

	start := time.Now()
	err := e.Start(context.Background(), Config{Dir: makeCheckout(t), Host: "127.0.0.1", Port: 7860})
	if !errors.Is(err, ErrReadinessTimeout) {
		t.Fatalf("err = %v, want ErrReadinessTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("probe budget not bounded: took %s", elapsed)
	}

	if e.State() != StateError {
		t.Fatalf("state = %s", e.State())
	}
	if !rt.handle(0).Terminated() {
		t.Fatal("half-started worker was not stopped")
	}
}

func TestStartRejectedWhileRunning(t *testing.T) {
	rt := &fakeRuntime{}
	probe, _ := probeSucceedingOn(1)
	e := New(rt, logbus.New(), WithProbe(probe), WithProbeBudget(time.Millisecond, 5))

	cfg := Config{Dir: makeCheckout(t), Host: "127.0.0.1", Port: 7860}
	if err := e.Start(context.Background(), cfg); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	err := e.Start(context.Background(), cfg)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start err = %v, want ErrAlreadyRunning", err)
	}
	if rt.launched() != 1 {
		t.Fatalf("launched %d workers", rt.launched())
	}
}

func TestStartRejectsUnprovisionedTarget(t *testing.T) {
	e := New(&fakeRuntime{}, logbus.New())

	err := e.Start(context.Background(), Config{Dir: t.TempDir(), Host: "127.0.0.1", Port: 7860})
	if !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("err = %v, want ErrInvalidTarget", err)
	}
	if e.State() != StateStopped {
		t.Fatalf("state = %s, want stopped", e.State())
	}
}

func TestStopFromRunning(t *testing.T) {
	rt := &fakeRuntime{}
	probe, _ := probeSucceedingOn(1)
	rec := &stateRecorder{}
	e := New(rt, logbus.New(), WithProbe(probe), WithProbeBudget(time.Millisecond, 5), WithStateSink(rec))

	cfg := Config{Dir: makeCheckout(t), Host: "127.0.0.1", Port: 7860}
	if err := e.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if e.State() != StateStopped {
		t.Fatalf("state = %s", e.State())
	}
	if !rt.handle(0).Terminated() {
		t.Fatal("worker not terminated")
	}
	if e.Endpoint() != "" {
		t.Fatalf("endpoint still exposed: %q", e.Endpoint())
	}
	want := []State{StateStarting, StateRunning, StateStopped}
	if !slices.Equal(rec.snapshot(), want) {
		t.Fatalf("transitions = %v, want %v", rec.snapshot(), want)
	}
}

func TestStopIsAuthoritativeOverInflightProbe(t *testing.T) {
	rt := &fakeRuntime{}
	e := New(rt, logbus.New(),
		WithProbe(func(ctx context.Context, endpoint string) error {
			<-ctx.Done()
			return ctx.Err()
		}),
		WithProbeBudget(time.Millisecond, 1000),
	)

	cfg := Config{Dir: makeCheckout(t), Host: "127.0.0.1", Port: 7860}
	startErr := make(chan error, 1)
	go func() { startErr <- e.Start(context.Background(), cfg) }()

	// Wait until the worker is launched and probing is underway.
	deadline := time.Now().Add(2 * time.Second)
	for rt.launched() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if rt.launched() == 0 {
		t.Fatal("worker never launched")
	}

	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := <-startErr; err != nil {
		t.Fatalf("Start after racing stop: %v", err)
	}
	if e.State() != StateStopped {
		t.Fatalf("state = %s, want stopped (stop is authoritative)", e.State())
	}
}

func TestUnexpectedWorkerExitBecomesError(t *testing.T) {
	rt := &fakeRuntime{}
	probe, _ := probeSucceedingOn(1)
	bus := logbus.New()
	e := New(rt, bus, WithProbe(probe), WithProbeBudget(time.Millisecond, 5))

	cfg := Config{Dir: makeCheckout(t), Host: "127.0.0.1", Port: 7860}
	if err := e.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}

	bus.Publish(logbus.Line{Source: "worker", Stream: logbus.StreamStderr, Text: "CUDA out of memory"})
	rt.handle(0).Finish(runner.Exit{Code: 1})

	waitState(t, e, StateError)
	diag := e.Diagnostic()
	if !strings.Contains(diag, "code 1") || !strings.Contains(diag, "CUDA out of memory") {
		t.Fatalf("diagnostic = %q", diag)
	}
}

func TestStopWhenStoppedIsNoop(t *testing.T) {
	rec := &stateRecorder{}
	e := New(&fakeRuntime{}, logbus.New(), WithStateSink(rec))

	if err := e.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(rec.snapshot()) != 0 {
		t.Fatalf("transitions recorded for a no-op stop: %v", rec.snapshot())
	}
}

func TestServiceTransitionsEmitBusLines(t *testing.T) {
	rt := &fakeRuntime{}
	probe, _ := probeSucceedingOn(1)
	bus := logbus.New()
	e := New(rt, bus, WithProbe(probe), WithProbeBudget(time.Millisecond, 5))

	cfg := Config{Dir: makeCheckout(t), Host: "127.0.0.1", Port: 7860}
	if err := e.Start(context.Background(), cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var tagged int
	for _, line := range bus.History() {
		if line.Source == logbus.SourceService {
			tagged++
		}
	}
	if tagged < 2 {
		t.Fatalf("service lines = %d, want starting and running", tagged)
	}
}
