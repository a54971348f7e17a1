// Package optimize minifies artifacts of production builds.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/js"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/emit"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
)

const (
	mediaJS  = "application/javascript"
	mediaCSS = "text/css"
)

// Minifier compresses artifact content. Implementations must be
// deterministic: equal input yields byte-identical output.
type Minifier interface {
	Minify(kind emit.Kind, content []byte) ([]byte, error)
}

// DefaultMinifier minifies scripts and styles with tdewolff/minify.
type DefaultMinifier struct {
	m *minify.M
}

// NewDefaultMinifier returns the default minifier. keepNames preserves
// local identifier names.
func NewDefaultMinifier(keepNames bool) *DefaultMinifier {
	m := minify.New()
	m.Add(mediaJS, &js.Minifier{KeepVarNames: keepNames})
	m.Add(mediaCSS, &css.Minifier{})
	return &DefaultMinifier{m: m}
}

func (d *DefaultMinifier) Minify(kind emit.Kind, content []byte) ([]byte, error) {
	switch kind {
	case emit.KindScript:
		return d.m.Bytes(mediaJS, content)
	case emit.KindStyle:
		return d.m.Bytes(mediaCSS, content)
	default:
		return content, nil
	}
}

// Stage applies the minifier to the artifacts of a build.
type Stage struct {
	minifier Minifier
	test     *regexp.Regexp
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewStage creates a stage for cfg. A nil minifier selects the default one.
func NewStage(cfg config.OptimizationConfig, minifier Minifier, recorder metrics.Recorder, logger *slog.Logger) (*Stage, error) {
	pattern := cfg.Test
	if pattern == "" {
		pattern = config.DefaultOptimizationTest
	}
	test, err := regexp.Compile(pattern)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "optimization: invalid test pattern").
			WithContext("pattern", pattern).Build()
	}
	if minifier == nil {
		minifier = NewDefaultMinifier(cfg.KeepNames)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{minifier: minifier, test: test, recorder: metrics.OrNoop(recorder), logger: logger}, nil
}

// Enabled reports whether the stage runs for mode. force overrides the mode
// default when set.
func Enabled(mode config.BuildMode, force *bool) bool {
	if force != nil {
		return *force
	}
	return mode.Minify()
}

// Selects reports whether a is subject to minification: style artifacts and
// script artifacts whose file name matches the test pattern.
func (s *Stage) Selects(a *emit.Artifact) bool {
	switch a.Kind {
	case emit.KindStyle:
		return true
	case emit.KindScript:
		return s.test.MatchString(fileName(a))
	default:
		return false
	}
}

// fileName is the name a is written under. Names are resolved after
// minification, so an unresolved artifact renders its template; only the
// [hash] part can differ from the final name.
func fileName(a *emit.Artifact) string {
	if a.FileName != "" {
		return a.FileName
	}
	if name, err := emit.Render(a.Template, a); err == nil {
		return name
	}
	return a.Template
}

// Apply minifies the selected artifacts when the stage is enabled for mode.
// A disabled stage returns artifacts untouched. Otherwise the result holds
// new artifacts for every minified entry; the inputs are not modified. A
// minifier error fails the build.
func (s *Stage) Apply(ctx context.Context, mode config.BuildMode, force *bool, artifacts []*emit.Artifact) ([]*emit.Artifact, error) {
	if !Enabled(mode, force) {
		return artifacts, nil
	}
	start := time.Now()
	out := make([]*emit.Artifact, len(artifacts))
	var before, after int
	for i, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = a
		if !s.Selects(a) {
			continue
		}
		minified, err := s.minifier.Minify(a.Kind, a.Content)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryBuild, fmt.Sprintf("minify %s", a.Name)).
				Fatal().WithContext("artifact", a.Name).Build()
		}
		c := *a
		c.Content = minified
		c.FileName = ""
		out[i] = &c
		before += len(a.Content)
		after += len(minified)
	}
	s.recorder.ObserveStageDuration("optimize", time.Since(start))
	s.logger.Debug("Artifacts minified",
		logfields.Mode(mode.String()),
		slog.Int("bytes_before", before),
		slog.Int("bytes_after", after),
		logfields.Since(start))
	return out, nil
}
