package transform

import (
	"context"
	"log/slog"
	"slices"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
)

// Result is the outcome of a successful chain run.
type Result struct {
	Content     []byte
	Kind        Kind
	Extract     bool
	References  []string
	Diagnostics []Diagnostic
}

// Executor runs transformer chains. It is safe for concurrent use.
type Executor struct {
	registry *Registry
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewExecutor creates an executor. Nil recorder and logger fall back to no-op and slog.Default.
func NewExecutor(registry *Registry, recorder metrics.Recorder, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: registry, recorder: metrics.OrNoop(recorder), logger: logger}
}

// Run applies chain to content in order. An empty chain returns the content
// unchanged. The first failing transformer aborts the run with a *TransformError;
// warnings are collected and never abort. Cancellation is checked between steps.
// The references of the result are those of the last step that reported a
// non-nil list.
func (e *Executor) Run(ctx context.Context, id string, content []byte, chain []config.TransformerSpec) (*Result, error) {
	res := &Result{Content: content, Kind: KindFor(id)}
	if len(chain) == 0 {
		return res, nil
	}

	steps, err := e.registry.Instantiate(chain)
	if err != nil {
		return nil, err
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := step.Transform(ctx, &Input{
			ModuleID: id,
			Content:  res.Content,
			Kind:     res.Kind,
			Options:  chain[i].Options,
		})
		if err != nil {
			e.recorder.IncModuleTransform(metrics.ResultFatal)
			te := newTransformError(id, step.Name(), err)
			e.logger.Debug("Transformer failed",
				logfields.Module(id), logfields.Transformer(step.Name()), logfields.Error(err))
			return nil, te
		}
		if out == nil {
			continue
		}
		res.Content = out.Content
		if out.Kind != "" {
			res.Kind = out.Kind
		}
		res.Extract = res.Extract || out.Extract
		if out.References != nil {
			res.References = res.References[:0:0]
			for _, ref := range out.References {
				if !slices.Contains(res.References, ref) {
					res.References = append(res.References, ref)
				}
			}
		}
		for _, d := range out.Diagnostics {
			d.Module = id
			if d.Transformer == "" {
				d.Transformer = step.Name()
			}
			if d.Severity == "" {
				d.Severity = SeverityWarning
			}
			res.Diagnostics = append(res.Diagnostics, d)
		}
	}

	result := metrics.ResultSuccess
	if len(res.Diagnostics) > 0 {
		result = metrics.ResultWarning
	}
	e.recorder.IncModuleTransform(result)
	return res, nil
}
