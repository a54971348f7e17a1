package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inful/mdfp"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/resolve"
	"git.home.luguber.info/inful/assetbuilder/internal/rules"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

// FailurePolicy decides what a module failure does to its generation.
type FailurePolicy string

// FailFatal aborts the generation on the first module failure. It is the only
// policy implemented.
const FailFatal FailurePolicy = "fatal"

// Options configures a Builder.
type Options struct {
	Mode          config.BuildMode
	Workers       int
	FailurePolicy FailurePolicy
	Recorder      metrics.Recorder
	Logger        *slog.Logger
}

// Builder resolves entries into module graphs. Each Build or Rebuild call is
// one generation; calls may not overlap on the same resolver state.
type Builder struct {
	resolver   resolve.Resolver
	rules      *rules.Set
	executor   *transform.Executor
	opts       Options
	recorder   metrics.Recorder
	logger     *slog.Logger
	generation atomic.Uint64
}

// NewBuilder creates a builder. Zero Workers means GOMAXPROCS.
func NewBuilder(resolver resolve.Resolver, set *rules.Set, registry *transform.Registry, opts Options) (*Builder, error) {
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = FailFatal
	}
	if opts.FailurePolicy != FailFatal {
		return nil, ferrors.ConfigError(fmt.Sprintf("unsupported failure policy %q", opts.FailurePolicy)).Build()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := metrics.OrNoop(opts.Recorder)
	return &Builder{
		resolver: resolver,
		rules:    set,
		executor: transform.NewExecutor(registry, recorder, logger),
		opts:     opts,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Generation returns the number of the most recent generation started.
func (b *Builder) Generation() uint64 { return b.generation.Load() }

// Build runs a full generation for entries.
func (b *Builder) Build(ctx context.Context, entries []config.Entry) (*Graph, error) {
	return b.run(ctx, entries, nil)
}

// Rebuild runs a generation that reuses every module of prev except the
// changed identifiers and their transitive dependents. prev must not be nil.
func (b *Builder) Rebuild(ctx context.Context, prev *Graph, changed []string) (*Graph, error) {
	if prev == nil {
		return nil, ferrors.InternalError("rebuild without a previous graph").Build()
	}
	invalid := make(map[string]bool)
	for _, id := range prev.Affected(changed) {
		invalid[id] = true
	}
	return b.run(ctx, prev.entries, &basis{prev: prev, invalid: invalid})
}

// basis is the previous generation a rebuild starts from.
type basis struct {
	prev    *Graph
	invalid map[string]bool
}

type task struct {
	entry string
	ref   string // set for entry modules, resolved on the worker
	id    string
}

type counters struct {
	transformed, refreshed, reused, memoHits atomic.Int64
}

func (b *Builder) run(ctx context.Context, entries []config.Entry, base *basis) (*Graph, error) {
	start := time.Now()
	gen := b.generation.Add(1)
	g := newGraph(gen, b.opts.Mode, entries)
	log := b.logger.With(logfields.Generation(gen), logfields.Mode(b.opts.Mode.String()))

	var stats counters
	m := &memo{entries: make(map[string]*memoEntry), hits: &stats.memoHits, recorder: b.recorder}

	var tasks []task
	for _, e := range entries {
		for _, ref := range e.Modules {
			tasks = append(tasks, task{entry: e.Name, ref: ref})
		}
	}

	scheduled := make(map[string]bool)
	for level := 0; len(tasks) > 0; level++ {
		results := make([]*Module, len(tasks))
		eg, egctx := errgroup.WithContext(ctx)
		eg.SetLimit(b.opts.Workers)
		for i, t := range tasks {
			eg.Go(func() error {
				id := t.id
				if id == "" {
					resolved, err := b.resolver.Resolve(egctx, t.ref, "")
					if err != nil {
						return resolutionError(err, "", t.entry, t.ref)
					}
					id = resolved
				}
				mod, err := m.do(egctx, id, func() (*Module, error) {
					return b.process(egctx, id, gen, base, &stats)
				})
				if err != nil {
					return err
				}
				results[i] = mod
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			b.recorder.ObserveStageDuration("graph", time.Since(start))
			log.Debug("Module graph failed", logfields.Error(err))
			return nil, err
		}

		var next []task
		for i, t := range tasks {
			mod := results[i]
			if level == 0 && !slices.Contains(g.entryRoots[t.entry], mod.ID) {
				g.entryRoots[t.entry] = append(g.entryRoots[t.entry], mod.ID)
			}
			if _, ok := g.modules[mod.ID]; !ok {
				g.add(mod)
			}
			scheduled[mod.ID] = true
		}
		for i := range tasks {
			for _, dep := range results[i].References {
				if !scheduled[dep] {
					scheduled[dep] = true
					next = append(next, task{entry: tasks[i].entry, id: dep})
				}
			}
		}
		tasks = next
	}

	g.link()
	if path := g.findCycle(); path != nil {
		return nil, &CycleError{Path: path}
	}

	g.Stats = Stats{
		Transformed: int(stats.transformed.Load()),
		Refreshed:   int(stats.refreshed.Load()),
		Reused:      int(stats.reused.Load()),
		MemoHits:    int(stats.memoHits.Load()),
	}
	b.recorder.ObserveStageDuration("graph", time.Since(start))
	log.Info("Module graph built",
		logfields.Count(g.Len()),
		slog.Int("transformed", g.Stats.Transformed),
		slog.Int("reused", g.Stats.Reused),
		slog.Int("diagnostics", len(g.Diagnostics)),
		logfields.Since(start))
	return g, nil
}

// process produces the module for a resolved identifier.
func (b *Builder) process(ctx context.Context, id string, gen uint64, base *basis, stats *counters) (*Module, error) {
	var prior *Module
	if base != nil {
		prior = base.prev.modules[id]
		if prior != nil && !base.invalid[id] {
			stats.reused.Add(1)
			return prior, nil
		}
	}

	src, err := b.resolver.Read(ctx, id)
	if err != nil {
		if errors.Is(err, resolve.ErrNotFound) {
			return nil, ferrors.WrapError(err, ferrors.CategoryNotFound, "module vanished: "+id).
				WithContext("module", id).Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "read module "+id).
			WithContext("module", id).Build()
	}

	chain := b.rules.Match(id)
	mod := &Module{
		ID:          id,
		Source:      src,
		Fingerprint: fingerprint(chain, src),
		Rules:       b.rules.MatchedRules(id),
		Chain:       chain.Names(),
		Generation:  gen,
	}

	if prior != nil && prior.Fingerprint == mod.Fingerprint {
		stats.refreshed.Add(1)
		mod.Content = prior.Content
		mod.Kind = prior.Kind
		mod.Extract = prior.Extract
		mod.RawReferences = prior.RawReferences
		mod.Diagnostics = prior.Diagnostics
		mod.Generation = prior.Generation
	} else {
		res, err := b.executor.Run(ctx, id, src, chain)
		if err != nil {
			return nil, err
		}
		stats.transformed.Add(1)
		mod.Content = res.Content
		mod.Kind = res.Kind
		mod.Extract = res.Extract
		mod.RawReferences = res.References
		mod.Diagnostics = res.Diagnostics
		b.logger.Debug("Module transformed",
			logfields.Module(id),
			slog.Any("chain", mod.Chain),
			logfields.Count(len(res.References)))
	}

	for _, ref := range mod.RawReferences {
		dep, err := b.resolver.Resolve(ctx, ref, id)
		if err != nil {
			return nil, resolutionError(err, id, "", ref)
		}
		if !slices.Contains(mod.References, dep) {
			mod.References = append(mod.References, dep)
		}
	}
	return mod, nil
}

func resolutionError(err error, from, entry, ref string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ResolutionError{From: from, Entry: entry, Reference: ref, Err: err}
}

// fingerprint identifies a module source together with the chain applied to it.
func fingerprint(chain rules.Chain, src []byte) string {
	return mdfp.CalculateFingerprintFromParts(fmt.Sprint(chain), string(src))
}

// memo holds one entry per identifier for a generation. The first requester
// runs the work; later requesters wait for the same result.
type memo struct {
	mu       sync.Mutex
	entries  map[string]*memoEntry
	hits     *atomic.Int64
	recorder metrics.Recorder
}

type memoEntry struct {
	done chan struct{}
	mod  *Module
	err  error
}

func (m *memo) do(ctx context.Context, id string, fn func() (*Module, error)) (*Module, error) {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		m.mu.Unlock()
		m.hits.Add(1)
		m.recorder.IncMemoHit()
		select {
		case <-e.done:
			return e.mod, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e := &memoEntry{done: make(chan struct{})}
	m.entries[id] = e
	m.mu.Unlock()

	e.mod, e.err = fn()
	close(e.done)
	return e.mod, e.err
}
