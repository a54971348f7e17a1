package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// hclFile mirrors Config using HCL blocks:
//
//	mode = "production"
//	entry "main" { modules = ["./src/index.ts"] }
//	rule {
//	  test = "\\.css$"
//	  use "css" {}
//	  use "sass" { options = { indented = false } }
//	}
//	plugin "html" { options = { template = "./src/index.html" } }
type hclFile struct {
	Mode         string           `hcl:"mode,optional"`
	Context      string           `hcl:"context,optional"`
	Devtool      string           `hcl:"devtool,optional"`
	Workers      int              `hcl:"workers,optional"`
	Entries      []hclEntry       `hcl:"entry,block"`
	Resolve      *hclResolve      `hcl:"resolve,block"`
	Output       *hclOutput       `hcl:"output,block"`
	Rules        []hclRule        `hcl:"rule,block"`
	Plugins      []hclNamed       `hcl:"plugin,block"`
	Optimization *hclOptimization `hcl:"optimization,block"`
	DevServer    *hclDevServer    `hcl:"dev_server,block"`
	Metrics      *hclMetrics      `hcl:"metrics,block"`
	History      *hclHistory      `hcl:"history,block"`
	Notify       *hclNotify       `hcl:"notify,block"`
	Logging      *hclLogging      `hcl:"logging,block"`
}

type hclEntry struct {
	Name    string   `hcl:"name,label"`
	Modules []string `hcl:"modules"`
}

type hclResolve struct {
	Extensions []string `hcl:"extensions,optional"`
	Modules    []string `hcl:"modules,optional"`
	Source     string   `hcl:"source,optional"`
	Repository string   `hcl:"git_repository,optional"`
	Revision   string   `hcl:"git_revision,optional"`
}

type hclOutput struct {
	Path             string    `hcl:"path,optional"`
	Filename         string    `hcl:"filename,optional"`
	CSSFilename      string    `hcl:"css_filename,optional"`
	CSSChunkFilename string    `hcl:"css_chunk_filename,optional"`
	Clean            bool      `hcl:"clean,optional"`
	Retry            *hclRetry `hcl:"retry,block"`
}

type hclRetry struct {
	MaxRetries   int    `hcl:"max_retries,optional"`
	Backoff      string `hcl:"backoff,optional"`
	InitialDelay string `hcl:"initial_delay,optional"`
	MaxDelay     string `hcl:"max_delay,optional"`
}

type hclRule struct {
	Test    string     `hcl:"test"`
	Exclude string     `hcl:"exclude,optional"`
	Enforce string     `hcl:"enforce,optional"`
	Use     []hclNamed `hcl:"use,block"`
}

// hclNamed is a labelled block with an opaque options object.
type hclNamed struct {
	Name    string    `hcl:"name,label"`
	Options cty.Value `hcl:"options,optional"`
}

type hclOptimization struct {
	Minimize  *bool  `hcl:"minimize,optional"`
	Test      string `hcl:"test,optional"`
	KeepNames bool   `hcl:"keep_names,optional"`
}

type hclDevServer struct {
	Host           string   `hcl:"host,optional"`
	Port           int      `hcl:"port,optional"`
	LiveReload     *bool    `hcl:"live_reload,optional"`
	Hot            bool     `hcl:"hot,optional"`
	WriteToDisk    bool     `hcl:"write_to_disk,optional"`
	Compress       bool     `hcl:"compress,optional"`
	ScriptUpdate   string   `hcl:"script_update,optional"`
	Debounce       string   `hcl:"debounce,optional"`
	ResyncInterval string   `hcl:"resync_interval,optional"`
	Watch          []string `hcl:"watch,optional"`
}

type hclMetrics struct {
	Enabled bool `hcl:"enabled,optional"`
}

type hclHistory struct {
	Path string `hcl:"path,optional"`
}

type hclNotify struct {
	URL     string `hcl:"url,optional"`
	Subject string `hcl:"subject,optional"`
}

type hclLogging struct {
	Level  string `hcl:"level,optional"`
	Format string `hcl:"format,optional"`
}

// decodeHCL parses src (named filename for diagnostics) into a Config.
func decodeHCL(filename string, src []byte) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}
	return raw.toConfig()
}

func (f *hclFile) toConfig() (*Config, error) {
	cfg := &Config{
		Mode:    BuildMode(f.Mode),
		Context: f.Context,
		Devtool: f.Devtool,
		Workers: f.Workers,
	}
	for _, e := range f.Entries {
		cfg.Entries = append(cfg.Entries, Entry(e))
	}
	if r := f.Resolve; r != nil {
		cfg.Resolve = ResolveConfig{
			Extensions: r.Extensions,
			Modules:    r.Modules,
			Source:     r.Source,
			Git:        GitSource{Repository: r.Repository, Revision: r.Revision},
		}
	}
	if o := f.Output; o != nil {
		cfg.Output = OutputConfig{
			Path:             o.Path,
			Filename:         o.Filename,
			CSSFilename:      o.CSSFilename,
			CSSChunkFilename: o.CSSChunkFilename,
			Clean:            o.Clean,
		}
		if o.Retry != nil {
			cfg.Output.Retry = RetryConfig{
				MaxRetries:   o.Retry.MaxRetries,
				Backoff:      RetryBackoffMode(o.Retry.Backoff),
				InitialDelay: o.Retry.InitialDelay,
				MaxDelay:     o.Retry.MaxDelay,
			}
		}
	}
	for i, r := range f.Rules {
		rule := RuleConfig{Test: r.Test, Exclude: r.Exclude, Enforce: r.Enforce}
		for _, u := range r.Use {
			opts, err := optionsMap(u.Options)
			if err != nil {
				return nil, fmt.Errorf("rule %d transformer %q: %w", i, u.Name, err)
			}
			rule.Use = append(rule.Use, TransformerSpec{Name: u.Name, Options: opts})
		}
		cfg.Rules = append(cfg.Rules, rule)
	}
	for _, p := range f.Plugins {
		opts, err := optionsMap(p.Options)
		if err != nil {
			return nil, fmt.Errorf("plugin %q: %w", p.Name, err)
		}
		cfg.Plugins = append(cfg.Plugins, PluginConfig{Name: p.Name, Options: opts})
	}
	if o := f.Optimization; o != nil {
		cfg.Optimization = OptimizationConfig(*o)
	}
	if d := f.DevServer; d != nil {
		cfg.DevServer = DevServerConfig(*d)
	}
	if m := f.Metrics; m != nil {
		cfg.Metrics.Enabled = m.Enabled
	}
	if h := f.History; h != nil {
		cfg.History.Path = h.Path
	}
	if n := f.Notify; n != nil {
		cfg.Notify = NotifyConfig(*n)
	}
	if l := f.Logging; l != nil {
		cfg.Logging = LoggingConfig{Level: LogLevel(l.Level), Format: LogFormat(l.Format)}
	}
	return cfg, nil
}

// optionsMap converts an options object into a plain Go map.
func optionsMap(v cty.Value) (map[string]any, error) {
	native, err := ctyToNative(v)
	if err != nil || native == nil {
		return nil, err
	}
	m, ok := native.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("options must be an object, got %s", v.Type().FriendlyName())
	}
	return m, nil
}

// ctyToNative recursively converts a cty.Value into string, float64, bool,
// []any or map[string]any.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("could not convert number: %w", err)
		}
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
