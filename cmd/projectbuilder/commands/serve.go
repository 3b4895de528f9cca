package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/projectbuilder/internal/daemon"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr     string `help:"Listen address, overrides server.addr"`
	NoReload bool   `name:"no-reload" help:"Do not watch the configuration file for build setting changes"`
}

func (s *ServeCmd) Run(_ *Global, root *CLI) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if s.Addr != "" {
		cfg.Server.Addr = s.Addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	watchPath := root.Config
	if s.NoReload {
		watchPath = ""
	}
	d, err := daemon.New(ctx, cfg, watchPath)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	return d.Run(ctx)
}
