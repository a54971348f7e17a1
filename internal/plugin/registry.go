package plugin

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/history"
	"git.home.luguber.info/inful/assetbuilder/internal/notify"
)

// Deps are the services built-in plugins may need.
type Deps struct {
	Config   *config.Config
	History  *history.Store
	Notifier notify.Publisher
	Logger   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d Deps) output() config.OutputConfig {
	out := config.OutputConfig{
		CSSFilename:      config.DefaultCSSFilename,
		CSSChunkFilename: config.DefaultCSSChunkFilename,
	}
	if d.Config != nil {
		if d.Config.Output.CSSFilename != "" {
			out.CSSFilename = d.Config.Output.CSSFilename
		}
		if d.Config.Output.CSSChunkFilename != "" {
			out.CSSChunkFilename = d.Config.Output.CSSChunkFilename
		}
	}
	return out
}

// Factory builds a plugin from its options.
type Factory func(options map[string]any, deps Deps) (Plugin, error)

var factories = map[string]Factory{
	"clean":       newClean,
	"progress":    newProgress,
	"css-extract": newCSSExtract,
	"html":        newHTML,
	"manifest":    newManifest,
	"history":     newHistory,
	"notify":      newNotify,
}

// Names lists the built-in plugin names, sorted.
func Names() []string {
	return slices.Sorted(maps.Keys(factories))
}

// FromConfig instantiates the configured plugins in order. The history and
// notify plugins are appended when their services are available but the
// configuration does not list them.
func FromConfig(cfgs []config.PluginConfig, deps Deps) ([]Plugin, error) {
	var (
		out   []Plugin
		names []string
	)
	for _, pc := range cfgs {
		f, ok := factories[pc.Name]
		if !ok {
			return nil, ferrors.ConfigError(fmt.Sprintf("unknown plugin %q", pc.Name)).
				WithContext("plugin", pc.Name).
				WithContext("known", Names()).Build()
		}
		p, err := f(pc.Options, deps)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, fmt.Sprintf("plugin %s", pc.Name)).
				WithContext("plugin", pc.Name).Build()
		}
		out = append(out, p)
		names = append(names, pc.Name)
	}
	if deps.History != nil && !slices.Contains(names, "history") {
		p, _ := newHistory(nil, deps)
		out = append(out, p)
	}
	if deps.Notifier != nil && !slices.Contains(names, "notify") {
		p, _ := newNotify(nil, deps)
		out = append(out, p)
	}
	return out, nil
}

func optString(opts map[string]any, key, def string) (string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %s: expected string, got %T", key, v)
	}
	return s, nil
}

func optBool(opts map[string]any, key string, def bool) (bool, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("option %s: expected bool, got %T", key, v)
	}
	return b, nil
}

func optStrings(opts map[string]any, key string) ([]string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		out := make([]string, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("option %s: expected list of strings", key)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("option %s: expected list of strings, got %T", key, v)
	}
}
