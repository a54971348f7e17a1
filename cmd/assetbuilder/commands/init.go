package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
)

// InitCmd writes the example configuration.
type InitCmd struct {
	Force bool `help:"Overwrite existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	if err := config.Init(root.Config, i.Force); err != nil {
		return err
	}
	slog.Info("Configuration written", slog.String("path", root.Config))
	_, _ = fmt.Fprintf(out(g), "Wrote %s\n", root.Config)
	return nil
}
