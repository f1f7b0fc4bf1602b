package cmd

import "log/slog"

// Install registers the server as a systemd service.
type Install struct {
	Args []string `arg:"" optional:"" help:"Extra arguments passed to the server command"`
}

func (c *Install) Run(logger *slog.Logger) error { return install(logger, c.Args) }

// Uninstall removes the systemd service.
type Uninstall struct{}

func (c *Uninstall) Run(logger *slog.Logger) error { return uninstall(logger) }
