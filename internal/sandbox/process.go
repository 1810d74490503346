package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/programme-lv/sandbox/internal"
)

// waitDelay bounds how long Wait keeps copying output after the process
// was killed, in case a stray descendant still holds the pipes.
const waitDelay = 500 * time.Millisecond

// Executor runs one process per call.
type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger}
}

// Run starts args[0] in dir, writes stdin to it and closes it, and waits
// for it to exit or for c.WallTime to pass. On timeout the whole process
// group is killed with SIGKILL and the result has TimedOut set. A program
// that exits on its own is never reported as timed out, even when the
// limit passes while its output is still being collected.
//
// Cancelling ctx does not stop the process; only the wall-clock limit
// does. An error is returned only when the process could not be started
// or waited for.
func (e *Executor) Run(ctx context.Context, dir string, args []string, stdin []byte, c Constraints) (*internal.RunData, error) {
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	if c.OutputLimit <= 0 {
		c.OutputLimit = DefaultOutputLimit
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.WallTime)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = c.Env
	if cmd.Env == nil {
		cmd.Env = defaultEnv(dir)
	}
	cmd.Stdin = bytes.NewReader(stdin)
	stdout := newCappedBuffer(c.OutputLimit)
	stderr := newCappedBuffer(c.OutputLimit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcessGroup(cmd)
	var killed atomic.Bool
	cmd.Cancel = func() error {
		err := killProcessGroup(cmd)
		if err == nil {
			killed.Store(true)
		}
		return err
	}
	cmd.WaitDelay = waitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %q: %w", args[0], err)
	}
	waitErr := cmd.Wait()
	wall := time.Since(start)

	// reap anything the program left running in its group
	_ = killProcessGroup(cmd)

	data := &internal.RunData{
		Stdout:          stdout.Bytes(),
		Stderr:          stderr.Bytes(),
		WallMs:          wall.Milliseconds(),
		TimedOut:        killed.Load() && !exitedNormally(cmd.ProcessState),
		OutputTruncated: stdout.truncated || stderr.truncated,
	}

	if waitErr != nil && !data.TimedOut {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
			return nil, fmt.Errorf("failed to wait for %q: %w", args[0], waitErr)
		}
	}

	if ps := cmd.ProcessState; ps != nil {
		data.ExitCode = ps.ExitCode()
		data.ExitSignal = exitSignal(ps)
		data.CpuMs = (ps.UserTime() + ps.SystemTime()).Milliseconds()
		data.MemKiB = maxRSSKiB(ps)
	}

	e.logger.Debug("process finished",
		"cmd", args[0],
		"exit", data.ExitCode,
		"wall_ms", data.WallMs,
		"mem_kib", data.MemKiB,
		"timed_out", data.TimedOut)

	return data, nil
}

func defaultEnv(dir string) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/local/bin:/usr/bin:/bin"
	}
	return []string{
		"PATH=" + path,
		"HOME=" + dir,
		"LANG=C.UTF-8",
	}
}
