package buildtool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// Output is the outcome of one build tool invocation.
type Output struct {
	Kind      project.ToolKind
	ExitCode  int
	OutputDir string
	// Tail holds the last TailSize bytes of combined output.
	Tail     string
	Duration time.Duration
}

// Succeeded reports a zero exit code.
func (o Output) Succeeded() bool { return o.ExitCode == 0 }

// Adapter runs detected build tools with a bounded timeout.
type Adapter struct {
	runner CommandRunner
	env    []string

	mu      sync.RWMutex
	timeout time.Duration
	grace   time.Duration
}

// NewAdapter creates an adapter. A nil runner uses ProcessRunner.
func NewAdapter(runner CommandRunner, timeout, grace time.Duration) *Adapter {
	if runner == nil {
		runner = ProcessRunner{}
	}
	return &Adapter{runner: runner, timeout: timeout, grace: grace, env: []string{"CI=true"}}
}

// Reconfigure changes limits for builds started afterwards.
func (a *Adapter) Reconfigure(timeout, grace time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timeout = timeout
	a.grace = grace
}

// Limits returns the current timeout and grace period.
func (a *Adapter) Limits() (timeout, grace time.Duration) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.timeout, a.grace
}

// Build detects the tool for workingCopy, clears its output directory and
// runs it, streaming output to log.
//
// A non-zero exit code is reported through Output with a nil error. Errors
// are reserved for an unsupported layout (project.ErrUnsupportedProjectLayout)
// and process faults (project.ErrBuildProcessFault) such as a failed start or
// an expired timeout; the latter wraps the context error.
func (a *Adapter) Build(ctx context.Context, workingCopy string, declared project.ToolKind, log io.Writer) (Output, error) {
	tool, err := Detect(workingCopy, declared)
	if err != nil {
		return Output{}, err
	}
	timeout, grace := a.Limits()

	out := Output{Kind: tool.Kind, OutputDir: OutputDir(workingCopy, tool.Kind), ExitCode: -1}
	argv := tool.Command(workingCopy)

	// output of an earlier, possibly cancelled, run must not mix with this one
	if err := os.RemoveAll(out.OutputDir); err != nil {
		return out, project.ErrBuildProcessFault.WithCause(err).
			WithContext("tool", string(tool.Kind)).
			WithContext("output_dir", out.OutputDir)
	}

	tail := newTailBuffer(TailSize)
	w := io.MultiWriter(log, tail)
	_, _ = fmt.Fprintf(w, "$ %s\n", strings.Join(argv, " "))

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	slog.Info("Running build tool", logfields.Tool(string(tool.Kind)), logfields.Path(workingCopy),
		slog.Duration("timeout", timeout))
	start := time.Now()
	code, runErr := a.runner.Run(runCtx, workingCopy, argv, a.env, w, grace)
	out.Duration = time.Since(start)
	out.Tail = tail.String()

	if ctxErr := runCtx.Err(); ctxErr != nil {
		_, _ = fmt.Fprintf(log, "\nbuild terminated: %v\n", ctxErr)
		return out, project.ErrBuildProcessFault.WithCause(ctxErr).
			WithContext("tool", string(tool.Kind)).
			WithContext("timeout", timeout.String())
	}
	if runErr != nil && code < 0 {
		_, _ = fmt.Fprintf(log, "\nbuild tool failed to run: %v\n", runErr)
		return out, project.ErrBuildProcessFault.WithCause(runErr).
			WithContext("tool", string(tool.Kind)).
			WithContext("command", argv[0])
	}

	out.ExitCode = code
	slog.Info("Build tool finished", logfields.Tool(string(tool.Kind)), logfields.ExitCode(code),
		logfields.DurationMS(float64(out.Duration.Milliseconds())))
	return out, nil
}

// Cancelled reports whether a build error came from cancellation or timeout.
func Cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
