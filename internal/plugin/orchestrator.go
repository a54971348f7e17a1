// Package plugin runs lifecycle callbacks at fixed points of a build.
//
// Plugins register callbacks per hook when the pipeline is constructed.
// Callbacks of a hook run synchronously in registration order; the first
// failure aborts the hook and is returned as a *PluginError.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
)

// Hook is a named lifecycle point.
type Hook string

const (
	// HookPipelineStart fires once per generation before any module is resolved.
	HookPipelineStart Hook = "pipeline-start"
	// HookProcessAssets fires after bundling, before optimization and naming.
	HookProcessAssets Hook = "process-assets"
	// HookPreEmit fires when every artifact is final and named, before writing.
	HookPreEmit Hook = "pre-emit"
	// HookPostEmit fires after every artifact is written.
	HookPostEmit Hook = "post-emit"
	// HookBuildFailed fires when a generation fails. Callback errors are logged.
	HookBuildFailed Hook = "build-failed"
)

// Hooks lists the hooks in firing order.
var Hooks = []Hook{HookPipelineStart, HookProcessAssets, HookPreEmit, HookPostEmit, HookBuildFailed}

// HookFunc is a lifecycle callback.
type HookFunc func(ctx context.Context, hc *HookContext) error

// Handle identifies a registration. Seq is global registration order.
type Handle struct {
	Hook   Hook
	Plugin string
	Seq    int
}

func (h Handle) String() string {
	return fmt.Sprintf("%s/%s#%d", h.Hook, h.Plugin, h.Seq)
}

// Plugin registers its callbacks with an orchestrator.
type Plugin interface {
	Name() string
	Register(o *Orchestrator)
}

// PluginError reports a failed callback.
type PluginError struct {
	Plugin string
	Hook   Hook
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s failed at %s: %v", e.Plugin, e.Hook, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

func (e *PluginError) Classify() *ferrors.ClassifiedError {
	return ferrors.WrapError(e.Err, ferrors.CategoryPlugin, e.Error()).
		Fatal().
		WithContext("plugin", e.Plugin).
		WithContext("hook", string(e.Hook)).
		Build()
}

type registration struct {
	handle Handle
	fn     HookFunc
}

// Orchestrator holds the registrations of a pipeline.
type Orchestrator struct {
	mu     sync.RWMutex
	hooks  map[Hook][]registration
	seq    int
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator with no registrations.
func NewOrchestrator(logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{hooks: make(map[Hook][]registration), logger: logger}
}

// Use lets each plugin register its callbacks, in argument order.
func (o *Orchestrator) Use(plugins ...Plugin) {
	for _, p := range plugins {
		p.Register(o)
	}
}

// Register adds fn to hook on behalf of plugin. Registration order is call order.
func (o *Orchestrator) Register(hook Hook, plugin string, fn HookFunc) Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	h := Handle{Hook: hook, Plugin: plugin, Seq: o.seq}
	o.hooks[hook] = append(o.hooks[hook], registration{handle: h, fn: fn})
	return h
}

// Handles returns the registrations of hook in call order.
func (o *Orchestrator) Handles(hook Hook) []Handle {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Handle, len(o.hooks[hook]))
	for i, r := range o.hooks[hook] {
		out[i] = r.handle
	}
	return out
}

// Plugins returns the names of registered plugins in first-registration order.
func (o *Orchestrator) Plugins() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var all []Handle
	for _, regs := range o.hooks {
		for _, r := range regs {
			all = append(all, r.handle)
		}
	}
	slices.SortFunc(all, func(a, b Handle) int { return a.Seq - b.Seq })
	var names []string
	for _, h := range all {
		if !slices.Contains(names, h.Plugin) {
			names = append(names, h.Plugin)
		}
	}
	return names
}

// Fire runs the callbacks of hook in order and stops at the first failure.
func (o *Orchestrator) Fire(ctx context.Context, hook Hook, hc *HookContext) error {
	o.mu.RLock()
	regs := slices.Clone(o.hooks[hook])
	o.mu.RUnlock()

	hc.Hook = hook
	for _, r := range regs {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		if err := r.fn(ctx, hc); err != nil {
			o.logger.Debug("Plugin callback failed",
				logfields.Hook(string(hook)), logfields.Plugin(r.handle.Plugin), logfields.Error(err))
			return &PluginError{Plugin: r.handle.Plugin, Hook: hook, Err: err}
		}
		o.logger.Debug("Plugin callback done",
			logfields.Hook(string(hook)), logfields.Plugin(r.handle.Plugin), logfields.Since(start))
	}
	return nil
}

// FireFailed runs the build-failed callbacks for cause. Callback errors are
// logged and do not stop the remaining callbacks.
func (o *Orchestrator) FireFailed(ctx context.Context, hc *HookContext, cause error) {
	o.mu.RLock()
	regs := slices.Clone(o.hooks[HookBuildFailed])
	o.mu.RUnlock()

	hc.Hook = HookBuildFailed
	hc.Err = cause
	for _, r := range regs {
		if err := r.fn(ctx, hc); err != nil {
			o.logger.Warn("Plugin failed while reporting a build failure",
				logfields.Plugin(r.handle.Plugin), logfields.Error(err))
		}
	}
}
