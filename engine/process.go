package engine

import (
	"context"

	"voxup/logbus"
	"voxup/runner"
)

// ProcessRuntime runs the worker as a child process via `uv run webui.py`
// inside the provisioned checkout.
type ProcessRuntime struct {
	runner runner.Runner
}

// NewProcessRuntime creates a child-process-based worker runtime.
func NewProcessRuntime(r runner.Runner) *ProcessRuntime {
	return &ProcessRuntime{runner: r}
}

func (p *ProcessRuntime) Launch(ctx context.Context, cfg Config) (runner.Handle, error) {
	args := []string{"run", "webui.py"}
	if cfg.Precision == PrecisionFP16 {
		args = append(args, "--half")
	}
	args = append(args, cfg.ExtraArgs...)

	env := make(map[string]string)
	if cfg.HFEndpoint != "" {
		env["HF_ENDPOINT"] = cfg.HFEndpoint
	}
	if cfg.Device == DeviceCPU {
		// Hide CUDA devices so torch falls back to CPU.
		env["CUDA_VISIBLE_DEVICES"] = ""
	}

	return p.runner.Start(ctx, runner.Spec{
		Source:  logbus.SourceService,
		Command: "uv",
		Args:    args,
		Dir:     cfg.Dir,
		Env:     env,
	})
}
