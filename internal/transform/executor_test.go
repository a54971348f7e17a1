package transform

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

func appendStep(name, suffix string) Factory {
	return func(map[string]any) (Transformer, error) {
		return Func{ID: name, Fn: func(_ context.Context, in *Input) (*Output, error) {
			return &Output{Content: append(append([]byte(nil), in.Content...), suffix...)}, nil
		}}, nil
	}
}

func specs(names ...string) []config.TransformerSpec {
	out := make([]config.TransformerSpec, len(names))
	for i, n := range names {
		out[i] = config.TransformerSpec{Name: n}
	}
	return out
}

func TestRunEmptyChainPassesThrough(t *testing.T) {
	exec := NewExecutor(NewRegistry(), nil, nil)
	content := []byte("body { color: red }")

	res, err := exec.Run(t.Context(), "a.css", content, nil)
	require.NoError(t, err)
	assert.Equal(t, content, res.Content)
	assert.Equal(t, KindStyle, res.Kind)
	assert.Empty(t, res.References)
	assert.Empty(t, res.Diagnostics)
}

func TestRunThreadsOutputInOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", appendStep("a", "A"))
	reg.Register("b", appendStep("b", "B"))
	reg.Register("c", appendStep("c", "C"))

	res, err := NewExecutor(reg, nil, nil).Run(t.Context(), "x.js", []byte(">"), specs("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, ">ABC", string(res.Content))
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	var thirdCalls atomic.Int32
	reg := NewRegistry()
	reg.Register("ok", appendStep("ok", "!"))
	reg.Register("bad", func(map[string]any) (Transformer, error) {
		return Func{ID: "bad", Fn: func(context.Context, *Input) (*Output, error) {
			return nil, Errorf(3, 7, "unexpected token")
		}}, nil
	})
	reg.Register("never", func(map[string]any) (Transformer, error) {
		return Func{ID: "never", Fn: func(_ context.Context, in *Input) (*Output, error) {
			thirdCalls.Add(1)
			return &Output{Content: in.Content}, nil
		}}, nil
	})

	_, err := NewExecutor(reg, nil, nil).Run(t.Context(), "src/app.ts", []byte("x"), specs("ok", "bad", "never"))
	require.Error(t, err)

	var te *TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "src/app.ts", te.Module)
	assert.Equal(t, "bad", te.Transformer)
	assert.Equal(t, "unexpected token", te.Diagnostic.Message)
	assert.Equal(t, 3, te.Diagnostic.Line)
	assert.Equal(t, 7, te.Diagnostic.Column)
	assert.Zero(t, thirdCalls.Load())

	assert.Equal(t, ferrors.CategoryTransform, ferrors.GetCategory(err))
	assert.Contains(t, err.Error(), "src/app.ts:3:7")
}

func TestRunCollectsWarningsWithoutAborting(t *testing.T) {
	exec := NewExecutor(DefaultRegistry(), nil, nil)
	src := "debugger;\nconst a = 1;  \n"

	res, err := exec.Run(t.Context(), "src/a.js", []byte(src), specs("lint", "script"))
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 2)
	assert.Equal(t, "debugger statement", res.Diagnostics[0].Message)
	assert.Equal(t, "src/a.js", res.Diagnostics[0].Module)
	assert.Equal(t, "lint", res.Diagnostics[0].Transformer)
	assert.Equal(t, 2, res.Diagnostics[1].Line)
	assert.Equal(t, src, string(res.Content))
}

func TestRunUnknownTransformerIsConfigError(t *testing.T) {
	_, err := NewExecutor(NewRegistry(), nil, nil).Run(t.Context(), "a.js", nil, specs("babel"))
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
	assert.Contains(t, err.Error(), `"babel"`)
}

func TestRunHonoursCancellation(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", appendStep("a", "A"))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := NewExecutor(reg, nil, nil).Run(ctx, "a.js", nil, specs("a"))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunMergesReferencesAndExtract(t *testing.T) {
	exec := NewExecutor(DefaultRegistry(), nil, nil)
	src := "$c: #333;\n@import './base.css';\nbody { color: $c; background: url(img/bg.png) }\n"

	res, err := exec.Run(t.Context(), "src/site.scss", []byte(src), specs("sass", "css", "extract"))
	require.NoError(t, err)
	assert.True(t, res.Extract)
	assert.Equal(t, KindStyle, res.Kind)
	assert.Equal(t, []string{"./base.css", "./img/bg.png"}, res.References)
	assert.True(t, strings.Contains(string(res.Content), "color: #333;"))
}

func refStep(name string, refs []string) Factory {
	return func(map[string]any) (Transformer, error) {
		return Func{ID: name, Fn: func(_ context.Context, in *Input) (*Output, error) {
			return &Output{Content: in.Content, References: refs}, nil
		}}, nil
	}
}

func TestRunKeepsReferencesOfLastReportingStep(t *testing.T) {
	reg := NewRegistry()
	reg.Register("scan", refStep("scan", []string{"./old.css", "./base.css", "./old.css"}))
	reg.Register("prune", refStep("prune", []string{"./base.css"}))
	reg.Register("quiet", refStep("quiet", nil))
	reg.Register("drop", refStep("drop", []string{}))
	exec := NewExecutor(reg, nil, nil)

	res, err := exec.Run(t.Context(), "a.css", nil, specs("scan", "quiet"))
	require.NoError(t, err)
	assert.Equal(t, []string{"./old.css", "./base.css"}, res.References)

	res, err = exec.Run(t.Context(), "a.css", nil, specs("scan", "prune", "quiet"))
	require.NoError(t, err)
	assert.Equal(t, []string{"./base.css"}, res.References)

	res, err = exec.Run(t.Context(), "a.css", nil, specs("scan", "drop"))
	require.NoError(t, err)
	assert.Empty(t, res.References)
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, KindScript, KindFor("src/index.ts"))
	assert.Equal(t, KindStyle, KindFor("a/b.SCSS"))
	assert.Equal(t, KindMarkup, KindFor("index.html"))
	assert.Equal(t, KindAsset, KindFor("logo.png"))
}
