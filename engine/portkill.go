package engine

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"voxup/logbus"
	"voxup/runner"
)

// KillPort force-stops every process listening on the port and reports
// how many were killed. It is the out-of-band stop for a worker that
// outlived the controller that launched it.
func KillPort(ctx context.Context, run runner.Runner, port int) (int, error) {
	if runtime.GOOS == "windows" {
		return killPortWindows(ctx, run, port)
	}
	return killPortUnix(ctx, run, port)
}

func killPortUnix(ctx context.Context, run runner.Runner, port int) (int, error) {
	res, err := run.Run(ctx, runner.Spec{
		Source:  logbus.SourceService,
		Command: "lsof",
		Args:    []string{"-ti", fmt.Sprintf(":%d", port)},
	})
	if err != nil {
		return 0, fmt.Errorf("inspect port %d: %w", port, err)
	}
	// lsof exits non-zero when nothing matches.
	if !res.Success {
		return 0, nil
	}
	return killEach(ctx, run, port, res.Stdout, "kill", func(pid string) []string {
		return []string{"-9", pid}
	})
}

func killPortWindows(ctx context.Context, run runner.Runner, port int) (int, error) {
	script := fmt.Sprintf(
		"Get-NetTCPConnection -LocalPort %d -ErrorAction SilentlyContinue | Select-Object -ExpandProperty OwningProcess",
		port,
	)
	res, err := run.Run(ctx, runner.Spec{
		Source:  logbus.SourceService,
		Command: "powershell",
		Args:    []string{"-NoProfile", "-Command", script},
	})
	if err != nil {
		return 0, fmt.Errorf("inspect port %d: %w", port, err)
	}
	if !res.Success {
		return 0, nil
	}
	return killEach(ctx, run, port, res.Stdout, "taskkill", func(pid string) []string {
		return []string{"/PID", pid, "/F"}
	})
}

func killEach(ctx context.Context, run runner.Runner, port int, pids []string, command string, args func(pid string) []string) (int, error) {
	killed := 0
	for _, line := range pids {
		pid := strings.TrimSpace(line)
		if pid == "" {
			continue
		}
		res, err := run.Run(ctx, runner.Spec{
			Source:  logbus.SourceService,
			Command: command,
			Args:    args(pid),
		})
		if err != nil {
			return killed, fmt.Errorf("kill pid %s on port %d: %w", pid, port, err)
		}
		if !res.Success {
			return killed, fmt.Errorf("kill pid %s on port %d: exit %d: %s", pid, port, res.ExitCode, res.LastStderr)
		}
		killed++
	}
	return killed, nil
}
