package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
)

// BuildCmd runs a single build generation.
type BuildCmd struct {
	Output string `short:"o" help:"Override output.path"`
	Clean  bool   `help:"Empty the output directory before emitting"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, mode, logger, err := root.Load(config.ModeProduction)
	if err != nil {
		return err
	}
	if b.Output != "" {
		cfg.Output.Path = b.Output
	}
	if b.Clean {
		cfg.Output.Clean = true
	}
	return RunBuild(ctx, cfg, pipeline.Options{Mode: mode, Logger: logger}, out(g))
}

// RunBuild opens the configured services, runs one generation and prints
// its summary to w.
func RunBuild(ctx context.Context, cfg *config.Config, opts pipeline.Options, w io.Writer) error {
	services, err := pipeline.OpenServices(cfg, opts.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = services.Close() }()
	opts.Services = services

	svc, err := pipeline.NewService(cfg, opts)
	if err != nil {
		return err
	}
	res, err := svc.Run(ctx, pipeline.BuildRequest{})
	if err != nil {
		return err
	}
	printResult(w, res)
	return nil
}

func printResult(w io.Writer, res *pipeline.BuildResult) {
	sizes := make(map[string]int)
	for _, a := range res.Artifacts() {
		sizes[a.FileName] = len(a.Content)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range res.Written {
		_, _ = fmt.Fprintf(tw, "  %s\t%d B\n", name, sizes[name])
	}
	_ = tw.Flush()
	for _, d := range res.Diagnostics {
		_, _ = fmt.Fprintf(w, "warning: %s\n", d)
	}
	_, _ = fmt.Fprintf(w, "Built %d file(s), %d bytes in %s (%s, generation %d)\n",
		len(res.Written), res.Bytes, res.Duration.Round(time.Millisecond), res.Mode, res.Generation)
}
