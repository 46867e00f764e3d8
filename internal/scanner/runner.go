// Package scanner implements the four-stage network discovery pipeline and
// the adapters around the external scan tools it drives.
package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// CommandRunner launches external tools and captures their output. A
// timeout is not an error: it is reported as exit code -1 with a
// descriptive stderr, matching how callers inspect tool results. The error
// return is reserved for spawn failures and context cancellation.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, timeout time.Duration) (stdout, stderr string, exitCode int, err error)
	RunEnv(ctx context.Context, argv, extraEnv []string, timeout time.Duration) (stdout, stderr string, exitCode int, err error)
}

// ExecRunner runs commands in a new process group so that sudo and its
// children are all killed together on timeout.
type ExecRunner struct {
	log *slog.Logger
}

// NewExecRunner creates a process runner.
func NewExecRunner(log *slog.Logger) *ExecRunner {
	return &ExecRunner{log: log}
}

// Run executes argv with the inherited environment.
func (r *ExecRunner) Run(ctx context.Context, argv []string, timeout time.Duration) (string, string, int, error) {
	return r.run(ctx, argv, nil, timeout)
}

// RunEnv executes argv with extraEnv appended to the inherited environment.
func (r *ExecRunner) RunEnv(ctx context.Context, argv, extraEnv []string, timeout time.Duration) (string, string, int, error) {
	return r.run(ctx, argv, extraEnv, timeout)
}

func (r *ExecRunner) run(ctx context.Context, argv, extraEnv []string, timeout time.Duration) (string, string, int, error) {
	if len(argv) == 0 {
		return "", "", -1, errors.New("empty argument vector")
	}

	r.log.Debug("exec", slog.String("cmd", strings.Join(argv, " ")))

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", -1, fmt.Errorf("start %s: %w", argv[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return decode(stdout.Bytes()), decode(stderr.Bytes()), exitCode(err), nil

	case <-timer.C:
		r.killGroup(cmd)
		// Give the group a moment to die before collecting the wait status.
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
		r.log.Warn("command timed out",
			slog.String("cmd", argv[0]),
			slog.Duration("timeout", timeout),
		)
		return "", fmt.Sprintf("Command timed out after %ds", int(timeout.Seconds())), -1, nil

	case <-ctx.Done():
		r.killGroup(cmd)
		<-done
		return "", "", -1, ctx.Err()
	}
}

// killGroup terminates the whole process group; if that is not permitted,
// only the immediate child is killed.
func (r *ExecRunner) killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}

// decode converts raw tool output, replacing invalid byte sequences.
func decode(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
