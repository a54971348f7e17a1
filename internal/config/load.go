package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "assetbuilder.yaml"

// Format identifies the configuration syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatHCL  Format = "hcl"
)

// FormatFor picks the syntax by file extension; anything but .hcl is YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		return FormatHCL
	}
	return FormatYAML
}

// Load reads the configuration file at path. .env files next to it are loaded
// first, ${VAR} references are expanded, relative paths are anchored at the
// file's directory, and defaults and validation are applied.
func Load(path string) (*Config, error) {
	dir := filepath.Dir(path)
	if _, err := LoadEnvFiles(dir); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to load env file").
			WithContext("dir", dir).Build()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ferrors.ConfigError("configuration file not found").WithContext("path", path).Build()
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
			WithContext("path", path).Build()
	}

	cfg, err := Parse(data, FormatFor(path), path)
	if err != nil {
		return nil, err
	}
	cfg.anchorPaths(dir)
	return cfg, nil
}

// Parse decodes data in the given format and prepares the result. name is used
// in diagnostics only.
func Parse(data []byte, format Format, name string) (*Config, error) {
	expanded := expandEnv(data)

	var (
		cfg *Config
		err error
	)
	switch format {
	case FormatHCL:
		cfg, err = decodeHCL(name, expanded)
	default:
		cfg = &Config{}
		err = yaml.Unmarshal(expanded, cfg)
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to decode configuration").
			WithContext("path", name).Fatal().Build()
	}

	if err := Prepare(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Prepare normalizes enumerations, applies defaults and validates cfg.
func Prepare(cfg *Config) error {
	if err := normalize(cfg); err != nil {
		return err
	}
	applyDefaults(cfg)
	return Validate(cfg)
}

func normalize(cfg *Config) error {
	if cfg.Mode != "" {
		mode, err := ParseBuildMode(string(cfg.Mode))
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid mode").Fatal().Build()
		}
		cfg.Mode = mode
	}
	if cfg.Logging.Level != "" {
		cfg.Logging.Level = NormalizeLogLevel(string(cfg.Logging.Level))
	}
	if cfg.Logging.Format != "" {
		cfg.Logging.Format = NormalizeLogFormat(string(cfg.Logging.Format))
	}
	if cfg.Output.Retry.Backoff != "" {
		cfg.Output.Retry.Backoff = NormalizeRetryBackoff(string(cfg.Output.Retry.Backoff))
	}
	for i := range cfg.Rules {
		cfg.Rules[i].Enforce = strings.ToLower(strings.TrimSpace(cfg.Rules[i].Enforce))
	}
	cfg.DevServer.ScriptUpdate = strings.ToLower(strings.TrimSpace(cfg.DevServer.ScriptUpdate))
	cfg.Resolve.Source = strings.ToLower(strings.TrimSpace(cfg.Resolve.Source))
	return nil
}

// anchorPaths makes relative filesystem paths relative to dir.
func (c *Config) anchorPaths(dir string) {
	anchor := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Context = anchor(c.Context)
	c.Output.Path = anchor(c.Output.Path)
	c.Resolve.Git.Repository = anchor(c.Resolve.Git.Repository)
	if c.History.Path != "" && c.History.Path != ":memory:" {
		c.History.Path = anchor(c.History.Path)
	}
	for i, w := range c.DevServer.Watch {
		c.DevServer.Watch[i] = anchor(w)
	}
	for i, p := range c.Plugins {
		if tpl, ok := p.Options["template"].(string); ok {
			c.Plugins[i].Options["template"] = anchor(tpl)
		}
	}
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
