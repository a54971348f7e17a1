package config

import "runtime"

// Default values applied when the configuration leaves a field empty.
const (
	DefaultOutputPath       = "dist"
	DefaultFilename         = "[name].[hash].js"
	DefaultCSSFilename      = "[name].css"
	DefaultCSSChunkFilename = "[id].css"
	DefaultOptimizationTest = `(?i)\.js$`
	DefaultDevHost          = "localhost"
	DefaultDevPort          = 8080
	DefaultDebounce         = "100ms"
	DefaultNotifySubject    = "assetbuilder.builds"
	DefaultGitRevision      = "HEAD"
)

// DefaultExtensions are tried in order for references without an extension.
var DefaultExtensions = []string{".ts", ".tsx", ".js", ".jsx"}

func applyDefaults(cfg *Config) {
	if cfg.Context == "" {
		cfg.Context = "."
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	applyResolveDefaults(&cfg.Resolve, cfg.Context)
	applyOutputDefaults(&cfg.Output)

	for i := range cfg.Rules {
		if cfg.Rules[i].Enforce == "" {
			cfg.Rules[i].Enforce = EnforceNormal
		}
	}
	if cfg.Optimization.Test == "" {
		cfg.Optimization.Test = DefaultOptimizationTest
	}

	applyDevServerDefaults(&cfg.DevServer, cfg.Context)

	if cfg.Notify.URL != "" && cfg.Notify.Subject == "" {
		cfg.Notify.Subject = DefaultNotifySubject
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	}
}

func applyResolveDefaults(r *ResolveConfig, context string) {
	if len(r.Extensions) == 0 {
		r.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if len(r.Modules) == 0 {
		r.Modules = []string{"node_modules"}
	}
	if r.Source == "" {
		r.Source = SourceFS
	}
	if r.Source == SourceGit {
		if r.Git.Repository == "" {
			r.Git.Repository = context
		}
		if r.Git.Revision == "" {
			r.Git.Revision = DefaultGitRevision
		}
	}
}

func applyOutputDefaults(o *OutputConfig) {
	if o.Path == "" {
		o.Path = DefaultOutputPath
	}
	if o.Filename == "" {
		o.Filename = DefaultFilename
	}
	if o.CSSFilename == "" {
		o.CSSFilename = DefaultCSSFilename
	}
	if o.CSSChunkFilename == "" {
		o.CSSChunkFilename = DefaultCSSChunkFilename
	}
	if o.Retry.MaxRetries < 0 {
		o.Retry.MaxRetries = 0
	}
	if o.Retry.Backoff == "" {
		o.Retry.Backoff = RetryBackoffLinear
	}
	if o.Retry.InitialDelay == "" {
		o.Retry.InitialDelay = "50ms"
	}
	if o.Retry.MaxDelay == "" {
		o.Retry.MaxDelay = "1s"
	}
}

func applyDevServerDefaults(d *DevServerConfig, context string) {
	if d.Host == "" {
		d.Host = DefaultDevHost
	}
	if d.Port == 0 {
		d.Port = DefaultDevPort
	}
	if d.ScriptUpdate == "" {
		if d.Hot {
			d.ScriptUpdate = ScriptUpdateHot
		} else {
			d.ScriptUpdate = ScriptUpdateReload
		}
	}
	if d.Debounce == "" {
		d.Debounce = DefaultDebounce
	}
	if len(d.Watch) == 0 {
		d.Watch = []string{context}
	}
}
