// Package config defines the pipeline definition: entries, rules, plugins, output
// naming, optimization and dev server settings. It loads YAML or HCL files, applies
// defaults and validates the result.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the complete pipeline definition.
type Config struct {
	Mode         BuildMode          `yaml:"mode,omitempty"`
	Context      string             `yaml:"context,omitempty"`
	Entries      Entries            `yaml:"entries"`
	Resolve      ResolveConfig      `yaml:"resolve,omitempty"`
	Output       OutputConfig       `yaml:"output"`
	Rules        []RuleConfig       `yaml:"rules,omitempty"`
	Plugins      []PluginConfig     `yaml:"plugins,omitempty"`
	Optimization OptimizationConfig `yaml:"optimization,omitempty"`
	Devtool      string             `yaml:"devtool,omitempty"`
	Workers      int                `yaml:"workers,omitempty"`
	DevServer    DevServerConfig    `yaml:"dev_server,omitempty"`
	Metrics      MetricsConfig      `yaml:"metrics,omitempty"`
	History      HistoryConfig      `yaml:"history,omitempty"`
	Notify       NotifyConfig       `yaml:"notify,omitempty"`
	Logging      LoggingConfig      `yaml:"logging,omitempty"`
}

// Entry is a named build root. Modules are resolved in order.
type Entry struct {
	Name    string   `yaml:"name"`
	Modules []string `yaml:"modules"`
}

// Entries keeps entries in declaration order. In YAML it is written as a mapping
// from entry name to a module or list of modules.
type Entries []Entry

// Names returns entry names in declaration order.
func (e Entries) Names() []string {
	names := make([]string, len(e))
	for i, entry := range e {
		names[i] = entry.Name
	}
	return names
}

// Lookup finds an entry by name.
func (e Entries) Lookup(name string) (Entry, bool) {
	for _, entry := range e {
		if entry.Name == name {
			return entry, true
		}
	}
	return Entry{}, false
}

func (e *Entries) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: entries must be a mapping of name to modules", node.Line)
	}
	out := make(Entries, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		modules, err := stringOrList(value)
		if err != nil {
			return fmt.Errorf("entry %q: %w", key.Value, err)
		}
		out = append(out, Entry{Name: key.Value, Modules: modules})
	}
	*e = out
	return nil
}

func (e Entries) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, entry := range e {
		value := &yaml.Node{Kind: yaml.SequenceNode}
		for _, m := range entry.Modules {
			value.Content = append(value.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: m})
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: entry.Name}, value)
	}
	return node, nil
}

func stringOrList(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return nil, err
		}
		return list, nil
	default:
		return nil, fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

// ResolveConfig controls how module references become module identifiers.
type ResolveConfig struct {
	Extensions []string  `yaml:"extensions,omitempty"`
	Modules    []string  `yaml:"modules,omitempty"`
	Source     string    `yaml:"source,omitempty"`
	Git        GitSource `yaml:"git,omitempty"`
}

// Source kinds for ResolveConfig.Source.
const (
	SourceFS  = "fs"
	SourceGit = "git"
)

// GitSource reads sources from a commit of a local repository instead of the work tree.
type GitSource struct {
	Repository string `yaml:"repository,omitempty"`
	Revision   string `yaml:"revision,omitempty"`
}

// OutputConfig controls where and how artifacts are written.
type OutputConfig struct {
	Path             string      `yaml:"path"`
	Filename         string      `yaml:"filename,omitempty"`
	CSSFilename      string      `yaml:"css_filename,omitempty"`
	CSSChunkFilename string      `yaml:"css_chunk_filename,omitempty"`
	Clean            bool        `yaml:"clean,omitempty"`
	Retry            RetryConfig `yaml:"retry,omitempty"`
}

// Enforce tiers for rules.
const (
	EnforcePre    = "pre"
	EnforceNormal = "normal"
	EnforcePost   = "post"
)

// RuleConfig is a rule as written in the configuration file.
type RuleConfig struct {
	Test    string            `yaml:"test"`
	Exclude string            `yaml:"exclude,omitempty"`
	Use     []TransformerSpec `yaml:"use"`
	Enforce string            `yaml:"enforce,omitempty"`
}

// TransformerSpec names a transformer and its opaque options.
type TransformerSpec struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options,omitempty"`
}

func (s *TransformerSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Name = node.Value
		return nil
	}
	type plain TransformerSpec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = TransformerSpec(p)
	return nil
}

func (s TransformerSpec) String() string { return s.Name }

// PluginConfig enables a built-in lifecycle plugin.
type PluginConfig struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options,omitempty"`
}

func (p *PluginConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Name = node.Value
		return nil
	}
	type plain PluginConfig
	var v plain
	if err := node.Decode(&v); err != nil {
		return err
	}
	*p = PluginConfig(v)
	return nil
}

// OptimizationConfig controls the minification stage.
type OptimizationConfig struct {
	// Minimize overrides the mode default when set.
	Minimize  *bool  `yaml:"minimize,omitempty"`
	Test      string `yaml:"test,omitempty"`
	KeepNames bool   `yaml:"keep_names,omitempty"`
}

// Script update policies for the dev server.
const (
	ScriptUpdateHot    = "hot"
	ScriptUpdateReload = "reload"
)

// DevServerConfig configures the development server.
type DevServerConfig struct {
	Host           string   `yaml:"host,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	LiveReload     *bool    `yaml:"live_reload,omitempty"`
	Hot            bool     `yaml:"hot,omitempty"`
	WriteToDisk    bool     `yaml:"write_to_disk,omitempty"`
	Compress       bool     `yaml:"compress,omitempty"`
	ScriptUpdate   string   `yaml:"script_update,omitempty"`
	Debounce       string   `yaml:"debounce,omitempty"`
	ResyncInterval string   `yaml:"resync_interval,omitempty"`
	Watch          []string `yaml:"watch,omitempty"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// HistoryConfig points at the SQLite build history database.
type HistoryConfig struct {
	Path string `yaml:"path,omitempty"`
}

// NotifyConfig configures NATS build notifications.
type NotifyConfig struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// MinimizeEnabled resolves the tri-state minimize flag against mode.
func (c *Config) MinimizeEnabled(mode BuildMode) bool {
	if c.Optimization.Minimize != nil {
		return *c.Optimization.Minimize
	}
	return mode.Minify()
}

// LiveReloadEnabled resolves the tri-state live reload flag against mode.
func (c *Config) LiveReloadEnabled(mode BuildMode) bool {
	if c.DevServer.LiveReload != nil {
		return *c.DevServer.LiveReload
	}
	return mode.LiveReload()
}

// Plugin returns the configuration of the named plugin.
func (c *Config) Plugin(name string) (PluginConfig, bool) {
	for _, p := range c.Plugins {
		if p.Name == name {
			return p, true
		}
	}
	return PluginConfig{}, false
}
