// Package engine owns the lifecycle of the inference worker: it launches
// the process (or container), probes its HTTP endpoint until ready, and
// stops it on demand. One Engine manages at most one worker at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"voxup/logbus"
	"voxup/runner"
)

// State is the worker lifecycle state. Exactly one State exists per
// Engine; transitions happen under the engine lock.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateError    State = "error"
)

var (
	// ErrAlreadyRunning rejects a start while a worker is starting or running.
	ErrAlreadyRunning = errors.New("service already running")
	// ErrReadinessTimeout reports that the worker never became reachable
	// within the probe budget.
	ErrReadinessTimeout = errors.New("service did not become ready")
	// ErrInvalidTarget reports that the configured directory is not a
	// provisioned checkout; the operator should re-provision, not retry.
	ErrInvalidTarget = errors.New("install directory is not a provisioned checkout")
)

// Device selects the compute target of the worker.
type Device string

const (
	DeviceCPU Device = "cpu"
	DeviceGPU Device = "gpu"
)

// Precision selects the model precision.
type Precision string

const (
	PrecisionFP32 Precision = "fp32"
	PrecisionFP16 Precision = "fp16"
)

// Config is immutable for the lifetime of one running worker. A new Start
// takes a fresh Config.
type Config struct {
	// Dir is the provisioned index-tts checkout.
	Dir  string
	Host string
	Port int
	// Device and Precision shape the worker command line; fp16 adds the
	// webui --half flag.
	Device    Device
	Precision Precision
	// HFEndpoint, when set, is exported as HF_ENDPOINT for the worker.
	HFEndpoint string
	ExtraArgs  []string
}

// Endpoint returns the worker's HTTP address.
func (c Config) Endpoint() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// WorkerRuntime launches the inference worker. Exec-backed and
// container-backed implementations exist; tests inject fakes.
type WorkerRuntime interface {
	Launch(ctx context.Context, cfg Config) (runner.Handle, error)
}

// StateSink observes state transitions, e.g. to persist them.
type StateSink interface {
	ServiceChanged(state State, message string)
}

const (
	defaultProbeInterval = time.Second
	defaultProbeAttempts = 30
	defaultStopGrace     = 10 * time.Second
)

// Engine is the service lifecycle controller.
type Engine struct {
	runtime WorkerRuntime
	bus     *logbus.Bus
	sink    StateSink

	probe         ProbeFunc
	probeInterval time.Duration
	probeAttempts uint
	stopGrace     time.Duration

	mu     sync.Mutex
	state  State
	diag   string
	cfg    Config
	handle runner.Handle
	// gen distinguishes start/stop generations so a stop is authoritative
	// over an in-flight probe or a late worker exit.
	gen         int
	probeCancel context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithProbe replaces the readiness probe.
func WithProbe(p ProbeFunc) Option {
	return func(e *Engine) { e.probe = p }
}

// WithProbeBudget sets the probe interval and attempt count. The budget
// is never fewer than one attempt.
func WithProbeBudget(interval time.Duration, attempts uint) Option {
	return func(e *Engine) {
		if attempts < 1 {
			attempts = 1
		}
		e.probeInterval = interval
		e.probeAttempts = attempts
	}
}

// WithStopGrace sets how long a stop waits before force-killing the worker.
func WithStopGrace(d time.Duration) Option {
	return func(e *Engine) { e.stopGrace = d }
}

// WithStateSink registers a transition observer.
func WithStateSink(s StateSink) Option {
	return func(e *Engine) { e.sink = s }
}

// New creates an Engine in the Stopped state.
func New(rt WorkerRuntime, bus *logbus.Bus, opts ...Option) *Engine {
	e := &Engine{
		runtime:       rt,
		bus:           bus,
		probe:         HTTPProbe,
		probeInterval: defaultProbeInterval,
		probeAttempts: defaultProbeAttempts,
		stopGrace:     defaultStopGrace,
		state:         StateStopped,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Diagnostic returns the message attached to the last transition.
func (e *Engine) Diagnostic() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.diag
}

// Endpoint returns the running worker's HTTP address, or "" when no
// worker is running.
func (e *Engine) Endpoint() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return ""
	}
	return e.cfg.Endpoint()
}

// Start launches the worker and blocks until it is ready or the probe
// budget is exhausted. Only one worker may be starting or running at a
// time.
func (e *Engine) Start(ctx context.Context, cfg Config) error {
	if err := validateTarget(cfg.Dir); err != nil {
		return err
	}

	e.mu.Lock()
	if e.state == StateStarting || e.state == StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyRunning, e.state)
	}
	e.gen++
	gen := e.gen
	e.cfg = cfg
	e.setStateLocked(StateStarting, "")
	e.mu.Unlock()

	handle, err := e.runtime.Launch(ctx, cfg)
	if err != nil {
		e.transition(gen, StateError, fmt.Sprintf("launch worker: %v", err))
		return fmt.Errorf("launch worker: %w", err)
	}

	probeCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if e.gen != gen {
		// Stopped before the worker was even registered; don't orphan it.
		e.mu.Unlock()
		cancel()
		e.terminate(handle)
		return nil
	}
	e.handle = handle
	e.probeCancel = cancel
	e.mu.Unlock()

	go e.watch(handle, gen)

	err = e.waitReady(probeCtx, cfg.Endpoint())
	cancel()

	e.mu.Lock()
	if e.gen != gen {
		// A concurrent stop won the race; it already owns the state.
		e.mu.Unlock()
		return nil
	}
	if e.state != StateStarting {
		// The watcher saw the worker die while we were probing.
		diag := e.diag
		e.mu.Unlock()
		return fmt.Errorf("worker exited during startup: %s", diag)
	}
	if err != nil {
		e.mu.Unlock()
		e.terminate(handle)
		e.transition(gen, StateError, err.Error())
		return err
	}
	e.setStateLocked(StateRunning, cfg.Endpoint())
	e.mu.Unlock()
	return nil
}

// Stop terminates the worker and transitions to Stopped once it has
// exited. Stopping an already stopped engine is a no-op. A stop racing an
// in-flight readiness probe is authoritative.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateRunning && e.state != StateStarting {
		e.mu.Unlock()
		return nil
	}
	e.gen++
	gen := e.gen
	handle := e.handle
	e.handle = nil
	if e.probeCancel != nil {
		e.probeCancel()
		e.probeCancel = nil
	}
	e.mu.Unlock()

	if handle != nil {
		graceCtx, cancel := context.WithTimeout(ctx, e.stopGrace)
		defer cancel()
		if err := handle.Terminate(graceCtx); err != nil {
			e.transition(gen, StateError, fmt.Sprintf("stop worker: %v", err))
			return fmt.Errorf("stop worker: %w", err)
		}
	}

	e.transition(gen, StateStopped, "")
	return nil
}

// watch turns an unexpected worker exit into an Error transition carrying
// the last log line as diagnostic.
func (e *Engine) watch(handle runner.Handle, gen int) {
	<-handle.Done()

	e.mu.Lock()
	if e.gen != gen {
		// Intentional stop or a newer start; nothing to report.
		e.mu.Unlock()
		return
	}
	exit := handle.Exit()
	diag := fmt.Sprintf("worker exited unexpectedly (code %d)", exit.Code)
	if exit.Err != nil {
		diag = fmt.Sprintf("worker failed: %v", exit.Err)
	}
	if last, ok := e.bus.Last(); ok && last.Source != logbus.SourceService {
		diag += ": " + last.Text
	}
	e.handle = nil
	e.setStateLocked(StateError, diag)
	e.mu.Unlock()
}

// terminate force-stops a half-started worker so no orphan survives a
// failed readiness probe.
func (e *Engine) terminate(handle runner.Handle) {
	graceCtx, cancel := context.WithTimeout(context.Background(), e.stopGrace)
	defer cancel()
	if err := handle.Terminate(graceCtx); err != nil {
		slog.Error("Failed to stop unready worker.", "err", err)
	}
}

// transition applies a state change unless a newer generation took over.
func (e *Engine) transition(gen int, state State, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return
	}
	e.setStateLocked(state, msg)
}

// setStateLocked is the single place state changes. Callers hold e.mu.
func (e *Engine) setStateLocked(state State, msg string) {
	if e.state == state && e.diag == msg {
		return
	}
	e.state = state
	e.diag = msg

	text := "state: " + string(state)
	if msg != "" {
		text += " (" + msg + ")"
	}
	e.bus.Publishf(logbus.SourceService, logbus.StreamStdout, "%s", text)
	slog.Info("Service state changed.", "state", state, "msg", msg)
	if e.sink != nil {
		e.sink.ServiceChanged(state, msg)
	}
}

// validateTarget checks that dir is a provisioned index-tts checkout.
func validateTarget(dir string) error {
	if dir == "" {
		return fmt.Errorf("%w: no install directory configured", ErrInvalidTarget)
	}
	if info, err := os.Stat(filepath.Join(dir, ".git")); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %q has no git checkout", ErrInvalidTarget, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "webui.py")); err != nil {
		return fmt.Errorf("%w: %q has no webui.py", ErrInvalidTarget, dir)
	}
	return nil
}
