package transform

import (
	"fmt"
	"slices"
	"sync"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Factory builds a transformer from its options.
type Factory func(options map[string]any) (Transformer, error)

// Registry maps transformer identifiers to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in transformers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("raw", newRaw)
	r.Register("markdown", newMarkdown)
	r.Register("html", newHTML)
	r.Register("script", newScript)
	r.Register("css", newCSS)
	r.Register("sass", newSass)
	r.Register("extract", newExtract)
	r.Register("lint", newLint)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names lists the registered transformers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Instantiate builds the transformers of a chain. Unknown identifiers and
// rejected options are configuration errors.
func (r *Registry) Instantiate(chain []config.TransformerSpec) ([]Transformer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Transformer, 0, len(chain))
	for _, spec := range chain {
		f, ok := r.factories[spec.Name]
		if !ok {
			return nil, ferrors.ConfigError(fmt.Sprintf("unknown transformer %q", spec.Name)).
				WithContext("transformer", spec.Name).Build()
		}
		t, err := f(spec.Options)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, fmt.Sprintf("invalid options for transformer %q", spec.Name)).
				Fatal().WithContext("transformer", spec.Name).Build()
		}
		out = append(out, t)
	}
	return out, nil
}

// Check instantiates every chain once so configuration errors surface before a build starts.
func (r *Registry) Check(chains ...[]config.TransformerSpec) error {
	for _, c := range chains {
		if _, err := r.Instantiate(c); err != nil {
			return err
		}
	}
	return nil
}
