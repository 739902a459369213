package sysinfo

import (
	"context"
	"slices"
	"testing"

	"voxup/runner"
)

func TestCheckToolsReportsVersions(t *testing.T) {
	fake := runner.NewFake()
	fake.Results["git"] = runner.Result{Success: true, Stdout: []string{"git version 2.44.0"}}
	fake.Results["git-lfs"] = runner.Result{Success: true, Stdout: []string{"git-lfs/3.4.1 (GitHub; linux amd64)"}}
	fake.Results["python"] = runner.Result{Success: true, Stdout: []string{"Python 3.11.8"}}
	fake.Results["uv"] = runner.Result{Success: true, Stdout: []string{"uv 0.4.18"}}
	fake.Results["nvcc"] = runner.Result{Success: true, Stdout: []string{
		"nvcc: NVIDIA (R) Cuda compiler driver",
		"Cuda compilation tools, release 12.4, V12.4.99",
	}}

	tools := CheckTools(context.Background(), fake)

	if !tools.Git.Present || tools.Git.Version != "git version 2.44.0" {
		t.Fatalf("git = %+v", tools.Git)
	}
	if !tools.UV.Present {
		t.Fatalf("uv = %+v", tools.UV)
	}
	if got := tools.CUDAToolkit.Version; got != "Cuda compilation tools, release 12.4, V12.4.99" {
		t.Fatalf("cuda version = %q", got)
	}
	if missing := tools.Missing(); len(missing) != 0 {
		t.Fatalf("missing = %v", missing)
	}
}

func TestCheckToolsMarksAbsentTools(t *testing.T) {
	fake := runner.NewFake()
	fake.Missing["git-lfs"] = true
	fake.Missing["uv"] = true
	fake.Missing["nvcc"] = true

	tools := CheckTools(context.Background(), fake)

	want := []string{"git-lfs", "uv"}
	if got := tools.Missing(); !slices.Equal(got, want) {
		t.Fatalf("missing = %v, want %v", got, want)
	}
	if tools.CUDAToolkit.Present {
		t.Fatal("cuda reported present")
	}
}

func TestCheckPythonFallsBackToPython3(t *testing.T) {
	fake := runner.NewFake()
	fake.Missing["python"] = true
	fake.Results["python3"] = runner.Result{Success: true, Stdout: []string{"Python 3.12.2"}}

	tools := CheckTools(context.Background(), fake)

	if !tools.Python.Present || tools.Python.Version != "Python 3.12.2" {
		t.Fatalf("python = %+v", tools.Python)
	}
}

func TestDetectGPUParsesSMIOutput(t *testing.T) {
	fake := runner.NewFake()
	fake.Results["nvidia-smi"] = runner.Result{Success: true, Stdout: []string{
		"NVIDIA GeForce RTX 4090, 24564 MiB, 550.54.14",
	}}

	gpu := DetectGPU(context.Background(), fake)

	if !gpu.HasCUDA {
		t.Fatal("HasCUDA = false")
	}
	if gpu.Name != "NVIDIA GeForce RTX 4090" || gpu.Driver != "550.54.14" {
		t.Fatalf("gpu = %+v", gpu)
	}
	if gpu.VRAMGB != 23 {
		t.Fatalf("VRAMGB = %d", gpu.VRAMGB)
	}
	if !gpu.RecommendFP16 {
		t.Fatal("24GB card should recommend fp16")
	}
}

func TestDetectGPUSmallCardKeepsFP32(t *testing.T) {
	fake := runner.NewFake()
	fake.Results["nvidia-smi"] = runner.Result{Success: true, Stdout: []string{
		"NVIDIA GeForce GTX 1650, 4096 MiB, 535.86.05",
	}}

	gpu := DetectGPU(context.Background(), fake)

	if gpu.VRAMGB != 4 || gpu.RecommendFP16 {
		t.Fatalf("gpu = %+v", gpu)
	}
}

func TestDetectGPUWithoutDriver(t *testing.T) {
	fake := runner.NewFake()
	fake.Missing["nvidia-smi"] = true

	if gpu := DetectGPU(context.Background(), fake); gpu.HasCUDA {
		t.Fatalf("gpu = %+v", gpu)
	}
}
