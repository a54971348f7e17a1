package config

import (
	"errors"
	"io/fs"
	"os"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Example returns the starter pipeline written by Init. Chains run in listed
// order, so preprocessors come first.
func Example() *Config {
	exclude := "node_modules"
	return &Config{
		Context: ".",
		Entries: Entries{{Name: "main", Modules: []string{"./src/index.ts"}}},
		Resolve: ResolveConfig{Extensions: append([]string(nil), DefaultExtensions...)},
		Output: OutputConfig{
			Path:             DefaultOutputPath,
			Filename:         DefaultFilename,
			CSSFilename:      DefaultCSSFilename,
			CSSChunkFilename: DefaultCSSChunkFilename,
			Clean:            true,
		},
		Rules: []RuleConfig{
			{
				Test:    `\.(htm|html)$`,
				Exclude: exclude,
				Use:     []TransformerSpec{{Name: "raw"}},
			},
			{
				Test:    `\.(m?js|ts|jsx)$`,
				Exclude: exclude,
				Use: []TransformerSpec{
					{Name: "lint", Options: map[string]any{"max_line_length": 120}},
					{Name: "script"},
				},
			},
			{
				Test:    `(?i)\.(sass|scss|css)$`,
				Exclude: exclude,
				Use: []TransformerSpec{
					{Name: "sass"},
					{Name: "css"},
					{Name: "extract"},
				},
			},
		},
		Plugins: []PluginConfig{
			{Name: "progress"},
			{Name: "clean"},
			{Name: "html", Options: map[string]any{"template": "./src/index.html"}},
			{Name: "css-extract"},
		},
		Optimization: OptimizationConfig{Test: `(?i)\.js$`},
		Devtool:      "source-map",
		DevServer: DevServerConfig{
			Host:        DefaultDevHost,
			Port:        DefaultDevPort,
			Hot:         true,
			Compress:    true,
			WriteToDisk: true,
		},
	}
}

// Init writes the example configuration to path. An existing file is only
// replaced when force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).Build()
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to stat config file").Build()
	}

	data, err := Marshal(Example())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write config file").
			WithContext("path", path).Build()
	}
	return nil
}
