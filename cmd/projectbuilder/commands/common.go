// Package commands implements the projectbuilder subcommands.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/projectbuilder/internal/config"
	"git.home.luguber.info/inful/projectbuilder/internal/daemon"
	"git.home.luguber.info/inful/projectbuilder/internal/logfields"
)

// Global carries state shared by all subcommands.
type Global struct {
	Out io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Configuration file path" default:"projectbuilder.yaml" env:"PROJECTBUILDER_CONFIG"`
	Verbose   bool             `short:"v" help:"Enable verbose logging"`
	LogFormat string           `name:"log-format" help:"Log format (text or json); defaults to logging.format"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve  ServeCmd  `cmd:"" help:"Run the REST API with periodic rebuilds"`
	Init   InitCmd   `cmd:"" help:"Write an example configuration file"`
	Create CreateCmd `cmd:"" help:"Register a project"`
	List   ListCmd   `cmd:"" help:"List projects"`
	Build  BuildCmd  `cmd:"" help:"Build a project and wait for the result"`
	Files  FilesCmd  `cmd:"" help:"List the artifacts of a project's latest successful build"`
	Runs   RunsCmd   `cmd:"" help:"Show build history of a project"`
	Log    LogCmd    `cmd:"" help:"Print the log of a build run"`
	Delete DeleteCmd `cmd:"" help:"Delete a project with its working copy and logs"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	configureLogging(c.Verbose, "", c.LogFormat)
	return nil
}

// configureLogging installs the default slog handler. The verbose flag wins
// over the configured level and an explicit format flag over the configured format.
func configureLogging(verbose bool, level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// loadConfig reads the configuration and re-applies logging from it.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	format := c.LogFormat
	if format == "" {
		format = cfg.Logging.Format
	}
	configureLogging(c.Verbose, cfg.Logging.Level, format)
	return cfg, nil
}

// withServices runs fn against a locally assembled build stack.
func (c *CLI) withServices(ctx context.Context, fn func(*daemon.Services) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	svc, err := daemon.Assemble(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			slog.Warn("Failed to close services", logfields.Error(cerr))
		}
	}()
	return fn(svc)
}
