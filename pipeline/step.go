// Package pipeline runs the ordered provisioning steps that turn an empty
// directory into a working IndexTTS-2 checkout with a synced environment
// and downloaded model assets.
package pipeline

import (
	"errors"
	"path/filepath"

	"voxup/runner"
)

// Step statuses. One Outcome exists per step and is overwritten on re-run.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Outcome records how a step ended.
type Outcome struct {
	StepID  string `json:"step_id"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrAborted is returned by Executor.Run when a step failed and the
// remaining steps were skipped.
var ErrAborted = errors.New("provisioning aborted")

// ErrInvalidTarget reports that the configured install directory is not a
// usable provisioning target.
var ErrInvalidTarget = errors.New("invalid provisioning target")

// Step is one immutable provisioning action. Steps execute strictly in
// slice order; the set is fixed at build time (see Steps).
type Step struct {
	ID    string
	Label string

	// Spec resolves the command for this step from the run configuration.
	// Returning an error fails the step without spawning anything.
	Spec func(cfg Config) (runner.Spec, error)

	// Done is the idempotency predicate: when it reports true the step is
	// recorded successful without invoking the runner. Nil means the step
	// is only skipped via a previously persisted success.
	Done func(cfg Config) bool
}

// Network regions. Mainland China switches package and model downloads to
// mirrors that are reachable and fast from there.
const (
	RegionGlobal        = "global"
	RegionMainlandChina = "mainland-china"
)

// HFMirrorURL is the Hugging Face mirror used when Region is
// RegionMainlandChina. The service runtime exports it too, so the worker
// resolves model assets from the same place the pipeline fetched them.
const HFMirrorURL = "https://hf-mirror.com"

// Mirror endpoints used when Region is RegionMainlandChina.
const (
	pypiMirrorURL  = "https://pypi.tuna.tsinghua.edu.cn/simple"
	repoURL        = "https://github.com/index-tts/index-tts.git"
	modelRepo      = "IndexTeam/IndexTTS-2"
	defaultModelTD = "checkpoints"
)

// Config parameterizes a pipeline run.
type Config struct {
	// InstallDir is where the index-tts repository lives (or will live).
	InstallDir string
	// ModelDir is where model assets are downloaded. Empty means the
	// "checkpoints" directory inside InstallDir.
	ModelDir string
	// Region selects download mirrors; see RegionGlobal and
	// RegionMainlandChina.
	Region string
}

// EffectiveModelDir resolves the model asset location.
func (c Config) EffectiveModelDir() string {
	if c.ModelDir != "" {
		return c.ModelDir
	}
	return filepath.Join(c.InstallDir, defaultModelTD)
}

func (c Config) mainlandChina() bool {
	return c.Region == RegionMainlandChina
}
