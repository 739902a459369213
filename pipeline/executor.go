package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"voxup/logbus"
	"voxup/runner"
)

// RunStatus is the terminal state of one pipeline run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
)

// Report summarizes a finished run. Outcomes are in step order.
type Report struct {
	RunID    string    `json:"run_id"`
	Status   RunStatus `json:"status"`
	Outcomes []Outcome `json:"outcomes"`
	// FailedStep is set when Status is RunAborted.
	FailedStep string `json:"failed_step,omitempty"`
}

// Sink observes outcome changes as they happen. The executor calls it
// synchronously; implementations persist or render progress.
type Sink interface {
	StepChanged(o Outcome)
	RunFinished(rep Report)
}

// NopSink discards all notifications.
type NopSink struct{}

func (NopSink) StepChanged(Outcome) {}
func (NopSink) RunFinished(Report)  {}

// Executor runs the provisioning steps strictly in order, skipping steps
// already verified complete and aborting the remainder on the first
// unrecoverable failure. Steps are never retried automatically; a failed
// run must be re-invoked by the operator.
type Executor struct {
	runner runner.Runner
	bus    *logbus.Bus
	steps  []Step
	sink   Sink

	// Prior holds outcomes persisted from earlier runs; steps recorded
	// successful there are skipped without invoking the runner.
	Prior map[string]Outcome
}

// NewExecutor creates an Executor over the given step set.
func NewExecutor(r runner.Runner, bus *logbus.Bus, steps []Step, sink Sink) *Executor {
	if sink == nil {
		sink = NopSink{}
	}
	return &Executor{runner: r, bus: bus, steps: steps, sink: sink}
}

// Run executes the pipeline. The context is checked between steps only; an
// in-flight command is left to finish or fail naturally unless the context
// is cancelled hard by the caller's process shutdown.
func (e *Executor) Run(ctx context.Context, cfg Config) (Report, error) {
	rep := Report{RunID: uuid.NewString(), Status: RunCompleted}

	outcomes := make([]Outcome, len(e.steps))
	for i, st := range e.steps {
		outcomes[i] = Outcome{StepID: st.ID, Status: StatusPending}
	}
	rep.Outcomes = outcomes

	for i, st := range e.steps {
		if err := ctx.Err(); err != nil {
			// Aborted between steps: no step is blamed, the rest stay pending.
			rep.Status = RunAborted
			e.bus.Publishf(st.ID, logbus.StreamStderr, "run cancelled before %s", st.Label)
			e.sink.RunFinished(rep)
			return rep, fmt.Errorf("%w: %v", ErrAborted, err)
		}

		if prior, ok := e.Prior[st.ID]; ok && prior.Status == StatusSuccess {
			e.skip(&rep, i, "already completed in an earlier run")
			continue
		}
		if st.Done != nil && st.Done(cfg) {
			e.skip(&rep, i, "already satisfied")
			continue
		}

		e.set(&rep, i, StatusRunning, "")
		e.bus.Publishf(st.ID, logbus.StreamStdout, "%s...", st.Label)

		spec, err := st.Spec(cfg)
		if err != nil {
			e.fail(&rep, i, err.Error())
			return rep, fmt.Errorf("%w: step %s: %v", ErrAborted, st.ID, err)
		}
		spec.Source = st.ID

		res, err := e.runner.Run(ctx, spec)
		if err != nil {
			e.fail(&rep, i, err.Error())
			return rep, fmt.Errorf("%w: step %s: %v", ErrAborted, st.ID, err)
		}
		if !res.Success {
			msg := fmt.Sprintf("%s exited with code %d", spec.Command, res.ExitCode)
			if res.LastStderr != "" {
				msg += ": " + res.LastStderr
			}
			e.fail(&rep, i, msg)
			return rep, fmt.Errorf("%w: step %s: %s", ErrAborted, st.ID, msg)
		}

		e.set(&rep, i, StatusSuccess, "")
		e.bus.Publishf(st.ID, logbus.StreamStdout, "%s done", st.Label)
	}

	slog.Info("Provisioning completed.", "run", rep.RunID)
	e.sink.RunFinished(rep)
	return rep, nil
}

func (e *Executor) skip(rep *Report, i int, msg string) {
	e.set(rep, i, StatusSuccess, msg)
	e.bus.Publishf(rep.Outcomes[i].StepID, logbus.StreamStdout, "skipped: %s", msg)
}

func (e *Executor) fail(rep *Report, i int, msg string) {
	e.set(rep, i, StatusFailed, msg)
	rep.Status = RunAborted
	rep.FailedStep = rep.Outcomes[i].StepID
	e.bus.Publishf(rep.Outcomes[i].StepID, logbus.StreamStderr, "failed: %s", msg)
	slog.Error("Provisioning step failed.", "step", rep.Outcomes[i].StepID, "err", msg)
	e.sink.RunFinished(*rep)
}

func (e *Executor) set(rep *Report, i int, status Status, msg string) {
	rep.Outcomes[i].Status = status
	rep.Outcomes[i].Message = msg
	e.sink.StepChanged(rep.Outcomes[i])
}
