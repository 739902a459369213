package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"voxup/logbus"
)

const maxLineBytes = 1024 * 1024

// Exec runs commands as real OS processes and streams their output to the
// log bus.
type Exec struct {
	bus *logbus.Bus
}

// NewExec creates a process-backed runner publishing to bus.
func NewExec(bus *logbus.Bus) *Exec {
	return &Exec{bus: bus}
}

func (e *Exec) Run(ctx context.Context, spec Spec) (Result, error) {
	cmd, err := e.command(ctx, spec)
	if err != nil {
		return Result{}, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	var (
		mu         sync.Mutex
		outLines   []string
		lastStderr string
	)
	var g errgroup.Group
	g.Go(func() error {
		return e.pump(stdout, spec.Source, logbus.StreamStdout, func(line string) {
			mu.Lock()
			outLines = append(outLines, line)
			mu.Unlock()
		})
	})
	g.Go(func() error {
		return e.pump(stderr, spec.Source, logbus.StreamStderr, func(line string) {
			mu.Lock()
			lastStderr = line
			mu.Unlock()
		})
	})

	pumpErr := g.Wait()
	waitErr := cmd.Wait()
	if pumpErr != nil {
		slog.Debug("Output pump ended early.", "command", spec.Command, "err", pumpErr)
	}

	code, err := exitCode(waitErr)
	if err != nil {
		return Result{}, fmt.Errorf("wait for %s: %w", spec.Command, err)
	}
	return Result{
		ExitCode:   code,
		Success:    code == 0,
		LastStderr: lastStderr,
		Stdout:     outLines,
	}, nil
}

func (e *Exec) Start(ctx context.Context, spec Spec) (Handle, error) {
	cmd, err := e.command(ctx, spec)
	if err != nil {
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}
	slog.Info("Process started.", "command", spec.Command, "pid", cmd.Process.Pid)

	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		_ = e.pump(stdout, spec.Source, logbus.StreamStdout, nil)
	}()
	go func() {
		defer pumps.Done()
		_ = e.pump(stderr, spec.Source, logbus.StreamStderr, nil)
	}()
	go func() {
		// Drain both pipes before Wait, so every line the process wrote
		// is on the bus by the time the done channel closes.
		pumps.Wait()
		waitErr := cmd.Wait()
		code, err := exitCode(waitErr)
		h.mu.Lock()
		h.exit = Exit{Code: code, Err: err}
		h.mu.Unlock()
		close(h.done)
	}()
	return h, nil
}

// command resolves the executable and builds the exec.Cmd. An unresolvable
// command fails with ErrToolMissing before anything is spawned.
func (e *Exec) command(ctx context.Context, spec Spec) (*exec.Cmd, error) {
	path, err := exec.LookPath(spec.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrToolMissing, spec.Command)
	}

	cmd := exec.CommandContext(ctx, path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		keys := make([]string, 0, len(spec.Env))
		for k := range spec.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		cmd.Env = os.Environ()
		for _, k := range keys {
			cmd.Env = append(cmd.Env, k+"="+spec.Env[k])
		}
	}
	return cmd, nil
}

// pump forwards one pipe to the bus line-by-line, in receipt order.
func (e *Exec) pump(r io.Reader, source string, stream logbus.Stream, observe func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := sc.Text()
		if observe != nil {
			observe(line)
		}
		e.bus.Publish(logbus.Line{Source: source, Stream: stream, Text: line})
	}
	return sc.Err()
}

func exitCode(waitErr error) (int, error) {
	if waitErr == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		return ee.ExitCode(), nil
	}
	return -1, waitErr
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu   sync.Mutex
	exit Exit
}

func (h *execHandle) Done() <-chan struct{} { return h.done }

func (h *execHandle) Exit() Exit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exit
}

// Terminate interrupts the process, then force-kills it if it has not
// exited by the time ctx expires.
func (h *execHandle) Terminate(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	if err := h.cmd.Process.Signal(os.Interrupt); err != nil {
		// Process may have already exited.
		return nil
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		slog.Warn("Process did not exit on interrupt, killing.", "pid", h.cmd.Process.Pid)
		_ = h.cmd.Process.Kill()
		<-h.done
		return nil
	}
}
