package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

func use(names ...string) []config.TransformerSpec {
	out := make([]config.TransformerSpec, len(names))
	for i, n := range names {
		out[i] = config.TransformerSpec{Name: n}
	}
	return out
}

func TestMatchMergesTiersInOrder(t *testing.T) {
	set, err := Compile([]config.RuleConfig{
		{Test: `\.css$`, Use: use("A")},
		{Test: `\.css$`, Use: use("B"), Enforce: config.EnforcePre},
		{Test: `\.css$`, Use: use("C")},
		{Test: `\.css$`, Use: use("D"), Enforce: config.EnforcePost},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "A", "C", "D"}, set.Match("src/site.css").Names())
	assert.Equal(t, []int{1, 0, 2, 3}, set.MatchedRules("src/site.css"))
}

func TestMatchConcatenatesMultiTransformerRules(t *testing.T) {
	set, err := Compile([]config.RuleConfig{
		{Test: `\.scss$`, Use: use("extract", "css", "sass")},
		{Test: `\.s?css$`, Use: use("lint"), Enforce: config.EnforcePre},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"lint", "extract", "css", "sass"}, set.Match("a/b.scss").Names())
}

func TestMatchExclude(t *testing.T) {
	set, err := Compile([]config.RuleConfig{
		{Test: `\.js$`, Exclude: `node_modules`, Use: use("script")},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"script"}, set.Match("src/app.js").Names())
	assert.Empty(t, set.Match("node_modules/lib/index.js"))
}

func TestMatchNoRuleYieldsEmptyChain(t *testing.T) {
	set, err := Compile(nil)
	require.NoError(t, err)

	chain := set.Match("logo.png")
	assert.NotNil(t, chain)
	assert.Empty(t, chain)

	var nilSet *Set
	assert.Empty(t, nilSet.Match("x.js"))
	assert.Zero(t, nilSet.Len())
}

func TestMatchNormalizesIdentifier(t *testing.T) {
	set, err := Compile([]config.RuleConfig{
		{Test: `^src/caf\x{e9}\.css$`, Use: use("css")},
	})
	require.NoError(t, err)
	// decomposed e + combining acute accent
	assert.Equal(t, []string{"css"}, set.Match("src/cafe\u0301.css").Names())
}

func TestCompileInvalidPatternNamesRule(t *testing.T) {
	_, err := Compile([]config.RuleConfig{
		{Test: `\.js$`, Use: use("script")},
		{Test: `(`, Use: use("broken")},
	})
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
	assert.Contains(t, err.Error(), "rule 1")

	_, err = Compile([]config.RuleConfig{{Test: `x`, Exclude: `[`, Use: use("a")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid exclude pattern")
}

func TestMerge(t *testing.T) {
	pre := []Chain{{{Name: "p1"}}, {{Name: "p2"}}}
	normal := []Chain{{{Name: "n1"}, {Name: "n2"}}}
	post := []Chain{{{Name: "z"}}}
	assert.Equal(t, []string{"p1", "p2", "n1", "n2", "z"}, Merge(pre, normal, post).Names())
	assert.Equal(t, Chain{}, Merge(nil, nil, nil))
}

func TestCompileCopiesUse(t *testing.T) {
	cfgs := []config.RuleConfig{{Test: `x`, Use: use("a")}}
	set, err := Compile(cfgs)
	require.NoError(t, err)
	cfgs[0].Use[0].Name = "mutated"
	assert.Equal(t, []string{"a"}, set.Match("x").Names())
}
