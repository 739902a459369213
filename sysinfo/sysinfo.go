// Package sysinfo inspects the host for the tools and hardware the
// provisioning pipeline and inference worker depend on.
package sysinfo

import (
	"context"
	"strconv"
	"strings"

	"voxup/runner"
)

const doctorSource = "doctor"

// Tool reports one external dependency.
type Tool struct {
	Name    string
	Present bool
	Version string
}

// Tools is the host tool inventory surfaced by doctor.
type Tools struct {
	Git         Tool
	GitLFS      Tool
	Python      Tool
	UV          Tool
	CUDAToolkit Tool
}

// Missing lists the names of required tools that are absent. CUDA is
// optional: the worker falls back to CPU without it.
func (t Tools) Missing() []string {
	var out []string
	for _, tool := range []Tool{t.Git, t.GitLFS, t.Python, t.UV} {
		if !tool.Present {
			out = append(out, tool.Name)
		}
	}
	return out
}

// CheckTools probes each tool with its version command. Probe failures
// mean "absent", never an error; doctor reports what it sees.
func CheckTools(ctx context.Context, run runner.Runner) Tools {
	return Tools{
		Git:         checkTool(ctx, run, "git", "git", "--version"),
		GitLFS:      checkTool(ctx, run, "git-lfs", "git-lfs", "version"),
		Python:      checkPython(ctx, run),
		UV:          checkTool(ctx, run, "uv", "uv", "--version"),
		CUDAToolkit: checkTool(ctx, run, "cuda", "nvcc", "--version"),
	}
}

func checkTool(ctx context.Context, run runner.Runner, name, command string, args ...string) Tool {
	res, err := run.Run(ctx, runner.Spec{Source: doctorSource, Command: command, Args: args})
	if err != nil || !res.Success {
		return Tool{Name: name}
	}
	return Tool{Name: name, Present: true, Version: versionLine(res.Stdout)}
}

// checkPython accepts either python or python3 on PATH.
func checkPython(ctx context.Context, run runner.Runner) Tool {
	for _, command := range []string{"python", "python3"} {
		if t := checkTool(ctx, run, "python", command, "--version"); t.Present {
			return t
		}
	}
	return Tool{Name: "python"}
}

// versionLine picks the most informative output line. nvcc puts the
// release on a later line; most tools print it first.
func versionLine(lines []string) string {
	for _, line := range lines {
		if strings.Contains(line, "release") {
			return strings.TrimSpace(line)
		}
	}
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// GPU describes the first CUDA device, when one is visible.
type GPU struct {
	HasCUDA bool
	Name    string
	VRAMGB  int
	Driver  string

	// RecommendFP16 is set when the card has enough memory that half
	// precision is the better default.
	RecommendFP16 bool
}

const fp16VRAMThresholdGB = 8

// DetectGPU queries nvidia-smi. Any failure means no usable CUDA device.
func DetectGPU(ctx context.Context, run runner.Runner) GPU {
	res, err := run.Run(ctx, runner.Spec{
		Source:  doctorSource,
		Command: "nvidia-smi",
		Args:    []string{"--query-gpu=name,memory.total,driver_version", "--format=csv,noheader"},
	})
	if err != nil || !res.Success || len(res.Stdout) == 0 {
		return GPU{}
	}
	return parseGPULine(res.Stdout[0])
}

// parseGPULine parses one nvidia-smi CSV row, e.g.
// "NVIDIA GeForce RTX 4090, 24564 MiB, 550.54.14".
func parseGPULine(line string) GPU {
	fields := strings.Split(line, ",")
	if len(fields) < 3 {
		return GPU{}
	}

	gpu := GPU{
		HasCUDA: true,
		Name:    strings.TrimSpace(fields[0]),
		Driver:  strings.TrimSpace(fields[2]),
	}

	mem := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(fields[1]), "MiB"))
	if mib, err := strconv.Atoi(mem); err == nil {
		gpu.VRAMGB = mib / 1024
	}
	gpu.RecommendFP16 = gpu.VRAMGB > fp16VRAMThresholdGB
	return gpu
}
