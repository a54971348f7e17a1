package config

import (
	"git.home.luguber.info/inful/assetbuilder/internal/foundation/normalization"
)

// BuildMode selects the build flavour. It is resolved once at startup and passed
// explicitly to every component that branches on it.
type BuildMode string

const (
	ModeDevelopment BuildMode = "development"
	ModeProduction  BuildMode = "production"
	ModeNone        BuildMode = "none"
)

// ModeEnvVar is consulted by the CLI only; components never read the environment.
const ModeEnvVar = "ASSETBUILDER_MODE"

var buildModes = normalization.NewEnum("mode", map[string]BuildMode{
	"development": ModeDevelopment,
	"dev":         ModeDevelopment,
	"production":  ModeProduction,
	"prod":        ModeProduction,
	"none":        ModeNone,
}, ModeProduction)

// ParseBuildMode converts user input into a BuildMode. Empty input yields production.
func ParseBuildMode(raw string) (BuildMode, error) {
	return buildModes.Parse(raw)
}

// ResolveMode applies the precedence flag > env > config file > production.
func ResolveMode(flag, env string, file BuildMode) (BuildMode, error) {
	for _, candidate := range []string{flag, env, string(file)} {
		if normalization.Clean(candidate) == "" {
			continue
		}
		return ParseBuildMode(candidate)
	}
	return ModeProduction, nil
}

// Minify reports whether the mode minifies by default.
func (m BuildMode) Minify() bool { return m == ModeProduction }

// SourceMaps reports whether the mode records source maps by default.
func (m BuildMode) SourceMaps() bool { return m == ModeDevelopment }

// LiveReload reports whether the mode pushes updates to browsers by default.
func (m BuildMode) LiveReload() bool { return m == ModeDevelopment }

func (m BuildMode) String() string { return string(m) }
