package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/projectbuilder/internal/daemon"
)

// FilesCmd implements the 'files' command.
type FilesCmd struct {
	ID string `arg:"" help:"Project id"`
}

func (f *FilesCmd) Run(g *Global, root *CLI) error {
	return root.withServices(context.Background(), func(svc *daemon.Services) error {
		files, err := svc.Orchestrator.Filelist(context.Background(), f.ID)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			_, _ = fmt.Fprintln(g.Out, "no artifacts")
			return nil
		}
		tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "PATH\tSIZE\tMODIFIED")
		for _, e := range files {
			path := e.Path
			if e.IsDir {
				path += "/"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", path, e.Size, formatTime(e.ModTime))
		}
		return tw.Flush()
	})
}

// RunsCmd implements the 'runs' command.
type RunsCmd struct {
	ID    string `arg:"" help:"Project id"`
	Limit int    `help:"Maximum number of runs; defaults to the history size"`
}

func (r *RunsCmd) Run(g *Global, root *CLI) error {
	return root.withServices(context.Background(), func(svc *daemon.Services) error {
		runs, err := svc.Orchestrator.Runs(context.Background(), r.ID, r.Limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "SEQ\tSTATUS\tEXIT\tCOMMIT\tSTARTED\tDURATION")
		for _, run := range runs {
			commit := run.Commit
			if len(commit) > 12 {
				commit = commit[:12]
			}
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
				run.Seq, run.Status, run.ExitCode, commit, formatTime(run.StartedAt), run.Duration().Round(time.Millisecond))
		}
		return tw.Flush()
	})
}

// LogCmd implements the 'log' command.
type LogCmd struct {
	ID  string `arg:"" help:"Project id"`
	Seq int64  `arg:"" help:"Build sequence number"`
}

func (l *LogCmd) Run(g *Global, root *CLI) error {
	return root.withServices(context.Background(), func(svc *daemon.Services) error {
		rc, err := svc.Orchestrator.Log(context.Background(), l.ID, l.Seq)
		if err != nil {
			return err
		}
		defer rc.Close()
		_, err = io.Copy(g.Out, rc)
		return err
	})
}
