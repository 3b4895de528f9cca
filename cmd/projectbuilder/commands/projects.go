package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/projectbuilder/internal/daemon"
	ferrors "git.home.luguber.info/inful/projectbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/projectbuilder/internal/project"
)

// CreateCmd implements the 'create' command.
type CreateCmd struct {
	Name        string `required:"" help:"Unique project name"`
	URL         string `required:"" name:"url" help:"Git repository URL"`
	Ref         string `help:"Branch, tag or commit to build" default:"main"`
	Tool        string `help:"Build tool; detected from the working copy when empty"`
	Description string `help:"Free text description"`
}

func (c *CreateCmd) Run(g *Global, root *CLI) error {
	return root.withServices(context.Background(), func(svc *daemon.Services) error {
		p, err := svc.Orchestrator.Create(context.Background(), project.Spec{
			Name:        c.Name,
			URL:         c.URL,
			Ref:         c.Ref,
			Tool:        c.Tool,
			Description: c.Description,
		})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(g.Out, p.ID)
		return nil
	})
}

// ListCmd implements the 'list' command.
type ListCmd struct {
	Name   string `help:"Only projects whose name contains this text"`
	Status string `help:"Only projects with this build status"`
	Page   int    `help:"Page number" default:"1"`
	Size   int    `help:"Page size" default:"20"`
}

func (l *ListCmd) Run(g *Global, root *CLI) error {
	filter := project.Filter{Name: l.Name}
	if l.Status != "" {
		if filter.Status = project.ParseStatus(l.Status); filter.Status == "" {
			return ferrors.ValidationError("unknown build status").WithContext("status", l.Status).Build()
		}
	}
	return root.withServices(context.Background(), func(svc *daemon.Services) error {
		res, err := svc.Orchestrator.List(context.Background(), filter, project.Page{Number: l.Page, Size: l.Size})
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tREF\tSTATUS\tLAST BUILD")
		for _, p := range res.Items {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Ref, p.BuildStatus, formatTime(p.LastBuildAt))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.Out, "page %d, %d of %d projects\n", res.Number, len(res.Items), res.Total)
		return nil
	})
}

// DeleteCmd implements the 'delete' command.
type DeleteCmd struct {
	ID string `arg:"" help:"Project id"`
}

func (d *DeleteCmd) Run(g *Global, root *CLI) error {
	return root.withServices(context.Background(), func(svc *daemon.Services) error {
		if err := svc.Orchestrator.Delete(context.Background(), d.ID); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.Out, "Deleted %s\n", d.ID)
		return nil
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
