package deploy

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/mattjoyce/pushdeploy/internal/deploy Runner

const (
	// maxOutputBytes caps the amount of stdout and stderr captured per run.
	maxOutputBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 5 * time.Second

	defaultShell = "/bin/sh"
)

// Runner executes a shell command string.
type Runner interface {
	Run(ctx context.Context, command string) Result
}

// Result is the outcome of one command run.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	TimedOut bool
	// OutputIncomplete is set when the shell exited but a background child
	// still held stdout or stderr after the grace period.
	OutputIncomplete bool
	// Err is set when the process could not be started or waited on.
	// A non-zero exit alone leaves Err nil.
	Err error
}

// Succeeded reports whether the command ran to completion with exit code 0.
func (r Result) Succeeded() bool {
	return r.Err == nil && !r.TimedOut && r.ExitCode == 0
}

// ShellRunner runs commands through a system shell with a timeout.
type ShellRunner struct {
	Shell       string
	Timeout     time.Duration
	GracePeriod time.Duration
}

// NewShellRunner returns a runner using /bin/sh and the given timeout.
func NewShellRunner(timeout time.Duration) *ShellRunner {
	return &ShellRunner{
		Shell:       defaultShell,
		Timeout:     timeout,
		GracePeriod: terminationGracePeriod,
	}
}

// Run executes command via "<shell> -c". It blocks until the process exits,
// the timeout expires or ctx is cancelled; in the last two cases the whole
// process group is terminated.
func (r *ShellRunner) Run(ctx context.Context, command string) Result {
	shell := r.Shell
	if shell == "" {
		shell = defaultShell
	}
	grace := r.GracePeriod
	if grace <= 0 {
		grace = terminationGracePeriod
	}

	// Don't use CommandContext - we manage termination ourselves.
	cmd := exec.Command(shell, "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Bounds Wait if a grandchild keeps the output pipes open after the kill.
	cmd.WaitDelay = grace

	stdout := &cappedBuffer{limit: maxOutputBytes}
	stderr := &cappedBuffer{limit: maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{
			ExitCode: -1,
			Duration: time.Since(start),
			Err:      fmt.Errorf("start process: %w", err),
		}
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
	}()

	var timeout <-chan time.Time
	if r.Timeout > 0 {
		timer := time.NewTimer(r.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var err error
	timedOut, cancelled := false, false
	select {
	case err = <-waitErr:
	case <-timeout:
		timedOut = true
		err = terminate(cmd, waitErr, grace)
	case <-ctx.Done():
		cancelled = true
		err = terminate(cmd, waitErr, grace)
	}

	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
		TimedOut: timedOut,
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case errors.Is(err, exec.ErrWaitDelay):
		// The shell itself exited; something it started (`svc &`) kept the pipes.
		res.ExitCode = cmd.ProcessState.ExitCode()
		res.OutputIncomplete = true
	default:
		res.ExitCode = -1
		res.Err = fmt.Errorf("wait for process: %w", err)
	}

	if cancelled && res.Err == nil {
		res.Err = fmt.Errorf("run cancelled: %w", ctx.Err())
	}
	return res
}

// terminate sends SIGTERM to the process group, then SIGKILL once grace has
// elapsed, and returns the Wait error.
func terminate(cmd *exec.Cmd, waitErr <-chan error, grace time.Duration) error {
	pgid := -cmd.Process.Pid
	_ = syscall.Kill(pgid, syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-waitErr:
		return err
	case <-timer.C:
		_ = syscall.Kill(pgid, syscall.SIGKILL)
		return <-waitErr
	}
}

// cappedBuffer keeps the first limit bytes written and discards the rest.
// Writes always report success so the child never sees EPIPE.
type cappedBuffer struct {
	buf   []byte
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - len(b.buf)
	if room > 0 {
		b.buf = append(b.buf, p[:min(len(p), room)]...)
	}
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	return b.buf
}
