package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/projectbuilder/internal/daemon"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/orchestrator"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// BuildCmd implements the 'build' command. Ctrl-C cancels the build.
type BuildCmd struct {
	ID string `arg:"" help:"Project id"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return root.withServices(ctx, func(svc *daemon.Services) error {
		run, err := svc.Orchestrator.Build(orchestrator.WithTrigger(ctx, orchestrator.TriggerCLI), b.ID)
		if run.Seq > 0 {
			printRun(g.Out, run)
		}
		if err != nil {
			return err
		}
		if run.Status != project.StatusSuccess {
			return ferrors.BuildError("build did not succeed").
				WithContext("status", string(run.Status)).
				WithContext("exit_code", run.ExitCode).
				WithContext("log", run.LogRef).Build()
		}
		return nil
	})
}

func printRun(w io.Writer, run project.BuildRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "run\t%s\n", run.ID())
	_, _ = fmt.Fprintf(tw, "status\t%s\n", run.Status)
	_, _ = fmt.Fprintf(tw, "exit code\t%d\n", run.ExitCode)
	if run.Commit != "" {
		_, _ = fmt.Fprintf(tw, "commit\t%s\n", run.Commit)
	}
	if run.Tool != "" {
		_, _ = fmt.Fprintf(tw, "tool\t%s\n", run.Tool)
	}
	_, _ = fmt.Fprintf(tw, "duration\t%s\n", run.Duration().Round(time.Millisecond))
	if run.Error != "" {
		_, _ = fmt.Fprintf(tw, "error\t%s\n", run.Error)
	}
	_ = tw.Flush()
}
