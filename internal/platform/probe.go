// Package platform implements the host-level primitives the agent
// runs on top of: a CPU/memory/disk probe and the process/file
// primitives the control-plane dispatch table drives. Sampling is
// backed by gopsutil so one implementation covers every platform the
// agent targets.
package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/vitaliisemenov/hostagent/internal/agenterr"
)

// Usage is one CPU/memory/disk sample, each expressed as a percentage
// in [0, 100].
type Usage struct {
	CPUPercent  float64
	MemPercent  float64
	DiskPercent float64
}

// DiskPath is the filesystem root sampled for disk usage. It is a
// package variable rather than a parameter threaded through every
// caller because the system collector and the DiskUsage health check
// both sample the same root by default; tests override it directly.
var DiskPath = "/"

// Probe samples CPU, memory, and disk usage for the current host.
// CPU sampling blocks for a short interval (gopsutil's instantaneous
// reading otherwise returns 0 on the first call); it honors ctx
// cancellation.
func Probe(ctx context.Context) (Usage, error) {
	cpuPercents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return Usage{}, agenterr.Wrap(agenterr.KindPlatform, "cpu probe failed", err)
	}
	var cpuPct float64
	if len(cpuPercents) > 0 {
		cpuPct = cpuPercents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Usage{}, agenterr.Wrap(agenterr.KindPlatform, "memory probe failed", err)
	}

	du, err := disk.UsageWithContext(ctx, DiskPath)
	if err != nil {
		return Usage{}, agenterr.Wrap(agenterr.KindPlatform, "disk probe failed", err)
	}

	return Usage{
		CPUPercent:  cpuPct,
		MemPercent:  vm.UsedPercent,
		DiskPercent: du.UsedPercent,
	}, nil
}

// RunResult is the outcome of Run.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Run executes cmd with args, honoring timeout if it is positive, and
// captures stdout/stderr separately. A non-zero exit code is reported
// via ExitCode, not returned as an error; Run's error return is
// reserved for failures to start the process at all.
func Run(ctx context.Context, timeout time.Duration, cmdName string, args []string) (RunResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdName, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return RunResult{ExitCode: exitErr.ExitCode(), Stdout: stdout.String(), Stderr: stderr.String()}, nil
		}
		return RunResult{}, agenterr.Wrap(agenterr.KindPlatform, fmt.Sprintf("failed to run %s", cmdName), err)
	}

	return RunResult{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// Copy streams src to dst, preserving src's file mode.
func Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return agenterr.Wrap(agenterr.KindPlatform, "copy: open source failed", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return agenterr.Wrap(agenterr.KindPlatform, "copy: stat source failed", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return agenterr.Wrap(agenterr.KindPlatform, "copy: open destination failed", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return agenterr.Wrap(agenterr.KindPlatform, "copy: stream failed", err)
	}
	return nil
}

// WriteFile writes bytes to path, creating or truncating it.
func WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return agenterr.Wrap(agenterr.KindPlatform, "write file failed", err)
	}
	return nil
}

// StopProcess terminates every process named name, using the
// platform-appropriate tool: pkill on POSIX, taskkill on Windows.
// timeout honors the command's configured timeout; a non-positive
// value falls back to a 10 second default.
func StopProcess(ctx context.Context, timeout time.Duration, name string) (RunResult, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if runtime.GOOS == "windows" {
		return Run(ctx, timeout, "taskkill", []string{"/IM", name, "/F"})
	}
	return Run(ctx, timeout, "pkill", []string{name})
}
