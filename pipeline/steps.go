package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"voxup/runner"
)

// Steps returns the fixed, ordered provisioning step set. The closed set
// of descriptors replaces any by-name dispatch: each step carries its own
// typed command resolution.
func Steps() []Step {
	return []Step{
		{
			ID:    "install-git",
			Label: "Install git and git-lfs",
			Done:  func(Config) bool { return toolPresent("git") && toolPresent("git-lfs") },
			Spec:  installGitSpec,
		},
		{
			ID:    "install-uv",
			Label: "Install uv",
			Done:  func(Config) bool { return toolPresent("uv") },
			Spec:  installUVSpec,
		},
		{
			ID:    "clone-repo",
			Label: "Clone index-tts repository",
			Done:  func(cfg Config) bool { return isGitCheckout(cfg.InstallDir) },
			Spec:  cloneRepoSpec,
		},
		{
			ID:    "setup-lfs",
			Label: "Set up git-lfs hooks",
			Done:  func(cfg Config) bool { return lfsHooksPresent(cfg.InstallDir) },
			Spec: func(cfg Config) (runner.Spec, error) {
				return gitIn(cfg.InstallDir, "lfs", "install"), nil
			},
		},
		{
			ID:    "fetch-lfs",
			Label: "Fetch large files",
			Spec: func(cfg Config) (runner.Spec, error) {
				return gitIn(cfg.InstallDir, "lfs", "pull"), nil
			},
		},
		{
			ID:    "sync-env",
			Label: "Sync Python environment",
			Done:  func(cfg Config) bool { return dirExists(filepath.Join(cfg.InstallDir, ".venv")) },
			Spec:  syncEnvSpec,
		},
		{
			ID:    "install-downloader",
			Label: "Install model downloader",
			Spec:  installDownloaderSpec,
		},
		{
			ID:    "download-model",
			Label: "Download IndexTTS-2 model",
			Done:  func(cfg Config) bool { return modelPresent(cfg.EffectiveModelDir()) },
			Spec:  downloadModelSpec,
		},
	}
}

// installGitSpec picks the platform package manager. Hosts without one
// fail with manual-install guidance rather than guessing.
func installGitSpec(cfg Config) (runner.Spec, error) {
	switch runtime.GOOS {
	case "darwin":
		return runner.Spec{Command: "brew", Args: []string{"install", "git", "git-lfs"}}, nil
	case "windows":
		return runner.Spec{Command: "winget", Args: []string{"install", "--id", "Git.Git", "-e", "--source", "winget"}}, nil
	default:
		return runner.Spec{}, fmt.Errorf("automatic git installation is not supported on %s, install git and git-lfs manually", runtime.GOOS)
	}
}

func installUVSpec(cfg Config) (runner.Spec, error) {
	switch runtime.GOOS {
	case "darwin":
		if toolPresent("brew") {
			return runner.Spec{Command: "brew", Args: []string{"install", "uv"}}, nil
		}
		return uvInstallScript(), nil
	case "windows":
		return runner.Spec{Command: "winget", Args: []string{"install", "--id", "astral-sh.uv", "-e"}}, nil
	default:
		return uvInstallScript(), nil
	}
}

func uvInstallScript() runner.Spec {
	return runner.Spec{Command: "sh", Args: []string{"-c", "curl -LsSf https://astral.sh/uv/install.sh | sh"}}
}

func cloneRepoSpec(cfg Config) (runner.Spec, error) {
	if dirExists(cfg.InstallDir) && !isGitCheckout(cfg.InstallDir) {
		return runner.Spec{}, fmt.Errorf("%w: %q exists but is not a git repository", ErrInvalidTarget, cfg.InstallDir)
	}
	return runner.Spec{Command: "git", Args: []string{"clone", repoURL, cfg.InstallDir}}, nil
}

func syncEnvSpec(cfg Config) (runner.Spec, error) {
	args := []string{"sync", "--all-extras"}
	if cfg.mainlandChina() {
		args = append(args, "--index-url", pypiMirrorURL)
	}
	return runner.Spec{Command: "uv", Args: args, Dir: cfg.InstallDir}, nil
}

func installDownloaderSpec(cfg Config) (runner.Spec, error) {
	tool := "hf"
	if cfg.mainlandChina() {
		tool = "modelscope"
	}
	return runner.Spec{Command: "uv", Args: []string{"tool", "install", tool}, Dir: cfg.InstallDir}, nil
}

// downloadModelSpec selects the model source by region: ModelScope for
// mainland China (with the HF mirror endpoint exported for any indirect
// HuggingFace fetches), HuggingFace otherwise.
func downloadModelSpec(cfg Config) (runner.Spec, error) {
	dir := cfg.EffectiveModelDir()
	if cfg.mainlandChina() {
		return runner.Spec{
			Command: "uv",
			Args:    []string{"run", "modelscope", "download", "--model", modelRepo, "--local_dir", dir},
			Dir:     cfg.InstallDir,
			Env:     map[string]string{"HF_ENDPOINT": HFMirrorURL},
		}, nil
	}
	return runner.Spec{
		Command: "uv",
		Args:    []string{"run", "hf", "download", modelRepo, "--local-dir", dir},
		Dir:     cfg.InstallDir,
	}, nil
}

func gitIn(dir string, args ...string) runner.Spec {
	return runner.Spec{Command: "git", Args: append([]string{"-C", dir}, args...)}
}

func toolPresent(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// isGitCheckout reports whether dir holds a git work tree.
func isGitCheckout(dir string) bool {
	return dir != "" && dirExists(filepath.Join(dir, ".git"))
}

func lfsHooksPresent(dir string) bool {
	if !isGitCheckout(dir) {
		return false
	}
	_, err := os.Stat(filepath.Join(dir, ".git", "hooks", "post-checkout"))
	return err == nil
}

// modelPresent treats a non-empty model directory as downloaded.
func modelPresent(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}
