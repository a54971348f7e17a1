package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/history"
)

// HistoryCmd lists recorded builds, or shows one build in detail.
type HistoryCmd struct {
	ID    string `arg:"" optional:"" help:"Build ID to show"`
	Limit int    `short:"n" default:"20" help:"Number of builds to list"`
}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	cfg, _, _, err := root.Load(config.ModeProduction)
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return ferrors.ConfigError("history.path is not configured").Build()
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	w := out(g)
	if h.ID != "" {
		b, err := store.Get(ctx, h.ID)
		if err != nil {
			return err
		}
		showBuild(w, b)
		return nil
	}
	builds, err := store.Recent(ctx, h.Limit)
	if err != nil {
		return err
	}
	listBuilds(w, builds)
	return nil
}

func listBuilds(w io.Writer, builds []history.Build) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTARTED\tMODE\tGEN\tSTATUS\tFILES\tDURATION")
	for _, b := range builds {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			b.ID, b.Started.Local().Format(time.DateTime), b.Mode, b.Generation,
			b.Status, len(b.Artifacts), b.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
}

func showBuild(w io.Writer, b history.Build) {
	_, _ = fmt.Fprintf(w, "Build %s\n", b.ID)
	_, _ = fmt.Fprintf(w, "  started:     %s\n", b.Started.Local().Format(time.DateTime))
	_, _ = fmt.Fprintf(w, "  mode:        %s\n", b.Mode)
	_, _ = fmt.Fprintf(w, "  generation:  %d\n", b.Generation)
	_, _ = fmt.Fprintf(w, "  status:      %s\n", b.Status)
	_, _ = fmt.Fprintf(w, "  duration:    %s\n", b.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  diagnostics: %d\n", b.Diagnostics)
	if b.Error != "" {
		_, _ = fmt.Fprintf(w, "  error:       %s\n", b.Error)
	}
	for _, a := range b.Artifacts {
		_, _ = fmt.Fprintf(w, "  %-10s %s (%d B)\n", a.Kind, a.FileName, a.Size)
	}
}
