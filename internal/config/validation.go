package config

import (
	"fmt"
	"regexp"
	"slices"
	"time"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Validate checks cfg after defaults were applied. Problems are reported as
// fatal configuration errors.
func Validate(cfg *Config) error {
	v := &validator{cfg: cfg}
	for _, check := range []func() error{
		v.entries,
		v.rules,
		v.plugins,
		v.output,
		v.resolve,
		v.optimization,
		v.devServer,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type validator struct {
	cfg *Config
}

func invalid(format string, args ...any) *ferrors.ErrorBuilder {
	return ferrors.ConfigError(fmt.Sprintf(format, args...))
}

func (v *validator) entries() error {
	if len(v.cfg.Entries) == 0 {
		return invalid("at least one entry must be configured").Build()
	}
	seen := make(map[string]struct{}, len(v.cfg.Entries))
	for i, e := range v.cfg.Entries {
		if e.Name == "" {
			return invalid("entry %d has no name", i).Build()
		}
		if _, dup := seen[e.Name]; dup {
			return invalid("duplicate entry %q", e.Name).WithContext("entry", e.Name).Build()
		}
		seen[e.Name] = struct{}{}
		if len(e.Modules) == 0 {
			return invalid("entry %q lists no modules", e.Name).WithContext("entry", e.Name).Build()
		}
	}
	return nil
}

func (v *validator) rules() error {
	tiers := []string{EnforcePre, EnforceNormal, EnforcePost}
	for i, r := range v.cfg.Rules {
		if r.Test == "" {
			return invalid("rule %d has no test pattern", i).WithContext("rule", i).Build()
		}
		if _, err := regexp.Compile(r.Test); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, fmt.Sprintf("rule %d: invalid test pattern", i)).
				Fatal().WithContext("rule", i).Build()
		}
		if r.Exclude != "" {
			if _, err := regexp.Compile(r.Exclude); err != nil {
				return ferrors.WrapError(err, ferrors.CategoryConfig, fmt.Sprintf("rule %d: invalid exclude pattern", i)).
					Fatal().WithContext("rule", i).Build()
			}
		}
		if !slices.Contains(tiers, r.Enforce) {
			return invalid("rule %d: enforce must be one of %v, got %q", i, tiers, r.Enforce).WithContext("rule", i).Build()
		}
		for j, u := range r.Use {
			if u.Name == "" {
				return invalid("rule %d: transformer %d has no name", i, j).WithContext("rule", i).Build()
			}
		}
	}
	return nil
}

func (v *validator) plugins() error {
	seen := make(map[string]struct{}, len(v.cfg.Plugins))
	for i, p := range v.cfg.Plugins {
		if p.Name == "" {
			return invalid("plugin %d has no name", i).Build()
		}
		if _, dup := seen[p.Name]; dup {
			return invalid("plugin %q configured twice", p.Name).WithContext("plugin", p.Name).Build()
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

func (v *validator) output() error {
	o := v.cfg.Output
	if o.Path == "" {
		return invalid("output.path must be set").Build()
	}
	if o.Retry.Backoff == "" {
		return invalid("output.retry.backoff must be fixed, linear or exponential").Build()
	}
	for name, value := range map[string]string{
		"output.retry.initial_delay": o.Retry.InitialDelay,
		"output.retry.max_delay":     o.Retry.MaxDelay,
	} {
		if _, err := parsePositiveDuration(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) resolve() error {
	switch v.cfg.Resolve.Source {
	case SourceFS, SourceGit:
	default:
		return invalid("resolve.source must be %q or %q, got %q", SourceFS, SourceGit, v.cfg.Resolve.Source).Build()
	}
	for _, ext := range v.cfg.Resolve.Extensions {
		if len(ext) < 2 || ext[0] != '.' {
			return invalid("resolve.extensions: %q must start with a dot", ext).Build()
		}
	}
	return nil
}

func (v *validator) optimization() error {
	if _, err := regexp.Compile(v.cfg.Optimization.Test); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "optimization.test: invalid pattern").Fatal().Build()
	}
	return nil
}

func (v *validator) devServer() error {
	d := v.cfg.DevServer
	if d.Port < 0 || d.Port > 65535 {
		return invalid("dev_server.port out of range: %d", d.Port).Build()
	}
	if d.ScriptUpdate != ScriptUpdateHot && d.ScriptUpdate != ScriptUpdateReload {
		return invalid("dev_server.script_update must be %q or %q, got %q", ScriptUpdateHot, ScriptUpdateReload, d.ScriptUpdate).Build()
	}
	if _, err := parsePositiveDuration("dev_server.debounce", d.Debounce); err != nil {
		return err
	}
	if d.ResyncInterval != "" {
		if _, err := parsePositiveDuration("dev_server.resync_interval", d.ResyncInterval); err != nil {
			return err
		}
	}
	return nil
}

func parsePositiveDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryConfig, name+": invalid duration").Fatal().
			WithContext("value", value).Build()
	}
	if d <= 0 {
		return 0, invalid("%s must be positive, got %s", name, value).Build()
	}
	return d, nil
}

// DebounceDuration returns the parsed debounce window.
func (d DevServerConfig) DebounceDuration() time.Duration {
	v, err := time.ParseDuration(d.Debounce)
	if err != nil || v <= 0 {
		return 100 * time.Millisecond
	}
	return v
}

// ResyncDuration returns the parsed resync interval, or 0 when disabled.
func (d DevServerConfig) ResyncDuration() time.Duration {
	if d.ResyncInterval == "" {
		return 0
	}
	v, err := time.ParseDuration(d.ResyncInterval)
	if err != nil {
		return 0
	}
	return v
}

// Durations returns the parsed retry delays.
func (r RetryConfig) Durations() (initial, maxDelay time.Duration) {
	initial, _ = time.ParseDuration(r.InitialDelay)
	maxDelay, _ = time.ParseDuration(r.MaxDelay)
	return initial, maxDelay
}
