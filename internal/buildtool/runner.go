package buildtool

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// CommandRunner abstracts running external commands so tests can inject fakes.
type CommandRunner interface {
	Run(ctx context.Context, dir string, argv []string, env []string, out io.Writer, grace time.Duration) (exitCode int, err error)
}

// ProcessRunner runs commands in their own process group so cancellation reaches descendants.
type ProcessRunner struct{}

// Run executes argv in dir with combined output written to out. When ctx ends the
// whole group receives SIGTERM, then SIGKILL once grace has elapsed.
func (ProcessRunner) Run(ctx context.Context, dir string, argv []string, env []string, out io.Writer, grace time.Duration) (int, error) {
	if len(argv) == 0 {
		return -1, errors.New("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = groupAttr()
	cmd.Cancel = func() error {
		terminateGroup(cmd.Process)
		time.AfterFunc(grace, func() { killGroup(cmd.Process) })
		return nil
	}
	// Bounds Wait when descendants keep the output pipe open.
	cmd.WaitDelay = grace + 100*time.Millisecond

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), err
	}
	return -1, err
}
