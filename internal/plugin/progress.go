package plugin

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
)

// progress logs one line per lifecycle point.
type progress struct {
	logger *slog.Logger
}

func newProgress(_ map[string]any, deps Deps) (Plugin, error) {
	return &progress{logger: deps.logger()}, nil
}

func (p *progress) Name() string { return "progress" }

func (p *progress) Register(o *Orchestrator) {
	o.Register(HookPipelineStart, p.Name(), p.start)
	o.Register(HookProcessAssets, p.Name(), p.assets)
	o.Register(HookPreEmit, p.Name(), p.emitting)
	o.Register(HookPostEmit, p.Name(), p.done)
	o.Register(HookBuildFailed, p.Name(), p.failed)
}

func (p *progress) attrs(hc *HookContext, extra ...any) []any {
	return append([]any{
		logfields.Generation(hc.Generation),
		logfields.BuildID(hc.BuildID),
		logfields.Since(hc.Started),
	}, extra...)
}

func (p *progress) start(_ context.Context, hc *HookContext) error {
	p.logger.Info("Build started", p.attrs(hc, logfields.Mode(hc.Mode.String()))...)
	return nil
}

func (p *progress) assets(_ context.Context, hc *HookContext) error {
	p.logger.Info("Modules bundled", p.attrs(hc,
		slog.Int("modules", hc.Graph.Len()),
		logfields.Count(hc.Manifest.Len()))...)
	return nil
}

func (p *progress) emitting(_ context.Context, hc *HookContext) error {
	p.logger.Info("Emitting artifacts", p.attrs(hc, logfields.Count(hc.Manifest.Len()))...)
	return nil
}

func (p *progress) done(_ context.Context, hc *HookContext) error {
	p.logger.Info("Build finished", p.attrs(hc,
		logfields.Count(len(hc.Emitted)),
		slog.Int("diagnostics", len(hc.Diagnostics())))...)
	return nil
}

func (p *progress) failed(_ context.Context, hc *HookContext) error {
	p.logger.Error("Build failed", p.attrs(hc, logfields.Error(hc.Err))...)
	return nil
}
