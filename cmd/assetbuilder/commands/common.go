package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
)

// Global carries state shared by every subcommand.
type Global struct {
	Logger *slog.Logger
	// Out receives user-facing command output.
	Out io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path (YAML or HCL)" default:"assetbuilder.yaml"`
	Mode    string           `short:"m" help:"Build mode (development|production|none). Overrides ASSETBUILDER_MODE and the config file."`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Run one build generation and write the artifacts"`
	Serve   ServeCmd   `cmd:"" help:"Start the development server with watch, rebuild and live push"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`
	Rules   RulesCmd   `cmd:"" help:"Show configured rules or the transformer chain of modules"`
	History HistoryCmd `cmd:"" help:"List recorded builds"`
}

// AfterApply runs after flag parsing; sets up a bootstrap logger until the
// configuration selects the final one.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// Load reads the configuration, resolves the build mode and installs the
// configured logger as the default. fallback is the mode used when neither
// flag, environment nor file name one.
func (c *CLI) Load(fallback config.BuildMode) (*config.Config, config.BuildMode, *slog.Logger, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, "", nil, err
	}
	file := cfg.Mode
	if file == "" {
		file = fallback
	}
	mode, err := config.ResolveMode(c.Mode, os.Getenv(config.ModeEnvVar), file)
	if err != nil {
		return nil, "", nil, err
	}
	logger := cfg.Logging.NewLogger(os.Stderr, c.Verbose)
	slog.SetDefault(logger)
	return cfg, mode, logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func out(g *Global) io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}
