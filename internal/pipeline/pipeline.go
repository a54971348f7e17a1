package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/assetbuilder/internal/bundle"
	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/emit"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/graph"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/observability"
	"git.home.luguber.info/inful/assetbuilder/internal/optimize"
	"git.home.luguber.info/inful/assetbuilder/internal/plugin"
	"git.home.luguber.info/inful/assetbuilder/internal/resolve"
	"git.home.luguber.info/inful/assetbuilder/internal/retry"
	"git.home.luguber.info/inful/assetbuilder/internal/rules"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

// Options inject the collaborators of a Service. Zero values are derived
// from the configuration.
type Options struct {
	// Mode is the resolved build mode; empty uses the configuration's.
	Mode config.BuildMode

	// Resolver overrides the resolver selected by the configuration.
	Resolver resolve.Resolver

	// Target is the default output target. Nil writes to output.path.
	Target emit.Target

	// OutputDir is the directory the clean plugin empties. It defaults to
	// output.path when Target is nil and is empty otherwise.
	OutputDir string

	Registry *transform.Registry
	Minifier optimize.Minifier
	Services *Services

	// Plugins run after the configured ones.
	Plugins []plugin.Plugin

	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// Service runs generations of one pipeline definition. Generations are
// serialized; the graph of the last successful generation is the basis of
// the next incremental one.
type Service struct {
	cfg       *config.Config
	mode      config.BuildMode
	resolver  resolve.Resolver
	builder   *graph.Builder
	bundler   *bundle.Bundler
	optimizer *optimize.Stage
	hooks     *plugin.Orchestrator
	target    emit.Target
	outputDir string
	retry     retry.Policy
	recorder  metrics.Recorder
	logger    *slog.Logger

	mu      sync.Mutex
	last    *graph.Graph
	pending map[string]bool
}

// NewService validates the pipeline definition and wires every stage.
func NewService(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("config required").Build()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := metrics.OrNoop(opts.Recorder)
	mode := opts.Mode
	if mode == "" {
		mode = cfg.Mode
	}
	if mode == "" {
		mode = config.ModeProduction
	}

	if err := emit.ValidateTemplate(cfg.Output.Filename); err != nil {
		return nil, err
	}
	set, err := rules.Compile(cfg.Rules)
	if err != nil {
		return nil, err
	}
	registry := opts.Registry
	if registry == nil {
		registry = transform.DefaultRegistry()
	}
	chains := make([][]config.TransformerSpec, len(cfg.Rules))
	for i, r := range cfg.Rules {
		chains[i] = r.Use
	}
	if err := registry.Check(chains...); err != nil {
		return nil, err
	}

	resolver := opts.Resolver
	if resolver == nil {
		if resolver, err = NewResolver(cfg); err != nil {
			return nil, err
		}
	}
	builder, err := graph.NewBuilder(resolver, set, registry, graph.Options{
		Mode:     mode,
		Workers:  cfg.Workers,
		Recorder: recorder,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	minifier := opts.Minifier
	if minifier == nil {
		minifier = optimize.NewDefaultMinifier(cfg.Optimization.KeepNames)
	}
	optimizer, err := optimize.NewStage(cfg.Optimization, minifier, recorder, logger)
	if err != nil {
		return nil, err
	}

	pluginCfgs := cfg.Plugins
	if cfg.Output.Clean {
		if _, ok := cfg.Plugin("clean"); !ok {
			pluginCfgs = append([]config.PluginConfig{{Name: "clean"}}, pluginCfgs...)
		}
	}
	deps := plugin.Deps{Config: cfg, Logger: logger}
	if opts.Services != nil {
		deps.History = opts.Services.History
		deps.Notifier = opts.Services.Notifier
	}
	plugins, err := plugin.FromConfig(pluginCfgs, deps)
	if err != nil {
		return nil, err
	}
	hooks := plugin.NewOrchestrator(logger)
	hooks.Use(plugins...)
	hooks.Use(opts.Plugins...)

	_, extract := cfg.Plugin("css-extract")

	target, outputDir := opts.Target, opts.OutputDir
	if target == nil {
		target = emit.NewDirTarget(cfg.Output.Path)
		if outputDir == "" {
			outputDir = cfg.Output.Path
		}
	}

	return &Service{
		cfg:       cfg,
		mode:      mode,
		resolver:  resolver,
		builder:   builder,
		bundler:   bundle.New(bundle.Options{Output: cfg.Output, Extract: extract, Logger: logger}),
		optimizer: optimizer,
		hooks:     hooks,
		target:    target,
		outputDir: outputDir,
		retry:     retry.FromConfig(cfg.Output.Retry),
		recorder:  recorder,
		logger:    logger,
		pending:   make(map[string]bool),
	}, nil
}

// Mode returns the build mode of the service.
func (s *Service) Mode() config.BuildMode { return s.mode }

// Resolver returns the content resolver of the service.
func (s *Service) Resolver() resolve.Resolver { return s.resolver }

// Hooks returns the plugin orchestrator of the service.
func (s *Service) Hooks() *plugin.Orchestrator { return s.hooks }

// LastGraph returns the graph of the last successful generation.
func (s *Service) LastGraph() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run executes one generation. Changes of failed generations are carried
// into the next one, so an incremental generation always covers every change
// since the last successful graph.
func (s *Service) Run(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	res := &BuildResult{
		BuildID:   uuid.NewString(),
		Mode:      s.mode,
		StartTime: start,
	}
	ctx = observability.WithMode(observability.WithBuildID(ctx, res.BuildID), s.mode.String())

	target := req.Target
	if target == nil {
		target = s.target
	}
	hc := &plugin.HookContext{
		Mode:      s.mode,
		BuildID:   res.BuildID,
		Started:   start,
		OutputDir: s.outputDir,
		Output:    s.cfg.Output,
	}

	for _, id := range req.Changed {
		s.pending[id] = true
	}
	incremental := s.last != nil && !req.Full

	if err := s.fire(ctx, plugin.HookPipelineStart, hc); err != nil {
		return s.fail(ctx, res, hc, err)
	}

	var (
		g   *graph.Graph
		err error
	)
	if incremental {
		res.Incremental = true
		res.Changed = slices.Sorted(maps.Keys(s.pending))
		g, err = s.builder.Rebuild(ctx, s.last, res.Changed)
	} else {
		g, err = s.builder.Build(ctx, s.cfg.Entries)
	}
	res.Generation = s.builder.Generation()
	hc.Generation = res.Generation
	if err != nil {
		return s.fail(ctx, res, hc, err)
	}
	ctx = observability.WithGeneration(ctx, g.Generation)
	res.Graph, res.Stats, res.Diagnostics = g, g.Stats, g.Diagnostics
	s.last = g
	clear(s.pending)

	stageStart := time.Now()
	bundled := s.bundler.Bundle(g)
	s.recorder.ObserveStageDuration("bundle", time.Since(stageStart))
	hc.Graph, hc.Bundle, hc.Manifest = g, bundled, bundled.Manifest
	res.Manifest = bundled.Manifest

	if err := s.fire(ctx, plugin.HookProcessAssets, hc); err != nil {
		return s.fail(ctx, res, hc, err)
	}

	optimized, err := s.optimizer.Apply(ctx, s.mode, s.cfg.Optimization.Minimize, bundled.Manifest.Artifacts())
	if err != nil {
		return s.fail(ctx, res, hc, err)
	}
	bundled.Manifest.Replace(optimized)
	if err := bundled.Manifest.Resolve(); err != nil {
		return s.fail(ctx, res, hc, err)
	}

	if err := s.fire(ctx, plugin.HookPreEmit, hc); err != nil {
		return s.fail(ctx, res, hc, err)
	}

	emitter := emit.New(target, emit.Options{Retry: s.retry, Recorder: s.recorder, Logger: s.logger})
	emitted, err := emitter.Emit(ctx, bundled.Manifest.Artifacts())
	if emitted != nil {
		res.Written, res.Bytes = emitted.Written, emitted.Bytes
	}
	if err != nil {
		return s.fail(ctx, res, hc, err)
	}
	hc.Emitted = res.Written

	if err := s.fire(ctx, plugin.HookPostEmit, hc); err != nil {
		return s.fail(ctx, res, hc, err)
	}

	s.finish(res, BuildStatusSuccess)
	outcome := metrics.ResultSuccess
	if len(res.Diagnostics) > 0 {
		outcome = metrics.ResultWarning
	}
	s.recorder.IncBuildOutcome(outcome)
	observability.InfoContext(ctx, s.logger, "Build complete",
		logfields.Count(len(res.Written)),
		slog.Int64("bytes", res.Bytes),
		slog.Int("diagnostics", len(res.Diagnostics)),
		slog.Bool("incremental", res.Incremental),
		logfields.DurationMS(float64(res.Duration.Microseconds())/1000))
	return res, nil
}

func (s *Service) fire(ctx context.Context, hook plugin.Hook, hc *plugin.HookContext) error {
	start := time.Now()
	err := s.hooks.Fire(ctx, hook, hc)
	s.recorder.ObserveStageDuration(string(hook), time.Since(start))
	return err
}

func (s *Service) fail(ctx context.Context, res *BuildResult, hc *plugin.HookContext, err error) (*BuildResult, error) {
	status, outcome := BuildStatusFailed, metrics.ResultFatal
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status, outcome = BuildStatusCancelled, metrics.ResultCanceled
	}
	s.finish(res, status)
	s.recorder.IncBuildOutcome(outcome)

	if status == BuildStatusFailed {
		s.hooks.FireFailed(context.WithoutCancel(ctx), hc, err)
	}
	observability.ErrorContext(ctx, s.logger, "Build failed",
		logfields.State(string(status)),
		slog.String("category", string(ferrors.GetCategory(err))),
		logfields.Error(err))
	return res, err
}

func (s *Service) finish(res *BuildResult, status BuildStatus) {
	res.Status = status
	res.EndTime = time.Now()
	res.Duration = res.EndTime.Sub(res.StartTime)
	s.recorder.ObserveBuildDuration(s.mode.String(), res.Duration)
}

