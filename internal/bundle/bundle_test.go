package bundle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/emit"
	"git.home.luguber.info/inful/assetbuilder/internal/graph"
	"git.home.luguber.info/inful/assetbuilder/internal/resolve"
	"git.home.luguber.info/inful/assetbuilder/internal/rules"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

func buildGraph(t *testing.T, files map[string]string, entries []config.Entry) *graph.Graph {
	t.Helper()
	set, err := rules.Compile([]config.RuleConfig{
		{Test: `\.js$`, Use: []config.TransformerSpec{{Name: "script"}}},
		{Test: `style\.css$`, Use: []config.TransformerSpec{{Name: "css"}, {Name: "extract"}}},
		{Test: `theme\.css$`, Use: []config.TransformerSpec{{Name: "css"}}},
		{Test: `\.md$`, Use: []config.TransformerSpec{{Name: "markdown"}}},
	})
	require.NoError(t, err)
	mem := resolve.NewMemoryResolver(files, resolve.DefaultOptions())
	b, err := graph.NewBuilder(mem, set, transform.DefaultRegistry(), graph.Options{Mode: config.ModeProduction})
	require.NoError(t, err)
	g, err := b.Build(t.Context(), entries)
	require.NoError(t, err)
	return g
}

func sampleFiles() map[string]string {
	return map[string]string{
		"index.js":       "import './style.css'\nimport './theme.css'\nimport logo from './logo.png'\nconsole.log(logo)",
		"test.js":        "import './style.css'\nimport './docs/readme.md'",
		"style.css":      "body{color:red}",
		"theme.css":      "h1{color:blue}",
		"logo.png":       "PNG",
		"docs/readme.md": "# Hello",
	}
}

func sampleEntries() []config.Entry {
	return []config.Entry{
		{Name: "main", Modules: []string{"./index.js"}},
		{Name: "test", Modules: []string{"./test.js"}},
	}
}

func output() config.OutputConfig {
	return config.OutputConfig{Filename: "[name].[hash].js"}
}

func TestBundleExtractsStyles(t *testing.T) {
	g := buildGraph(t, sampleFiles(), sampleEntries())
	res := New(Options{Output: output(), Extract: true}).Bundle(g)

	arts := res.Manifest.Artifacts()
	require.Len(t, arts, 4)

	main := arts[0]
	assert.Equal(t, "main", main.Name)
	assert.Equal(t, emit.KindScript, main.Kind)
	assert.Equal(t, "[name].[hash].js", main.Template)
	assert.Equal(t, []string{"theme.css", "index.js"}, main.Modules)
	content := string(main.Content)
	assert.Contains(t, content, `s.textContent="h1{color:blue}"`)
	assert.True(t, strings.HasSuffix(content, "\nimport './style.css'\nimport './theme.css'\nimport logo from './logo.png'\nconsole.log(logo)"))
	assert.NotContains(t, content, "color:red")

	assert.Equal(t, "test", arts[1].Name)
	assert.Equal(t, []string{"test.js"}, arts[1].Modules)

	logo := arts[2]
	assert.Equal(t, emit.KindAsset, logo.Kind)
	assert.Equal(t, "logo", logo.Name)
	assert.Equal(t, ".png", logo.Ext)
	assert.Equal(t, "main", logo.Entry)

	readme := arts[3]
	assert.Equal(t, emit.KindMarkup, readme.Kind)
	assert.Equal(t, "docs/readme", readme.Name)
	assert.Contains(t, string(readme.Content), "<h1>Hello</h1>")

	require.Len(t, res.Styles, 1)
	assert.Equal(t, "style.css", res.Styles[0].Module)
	assert.Equal(t, []string{"main", "test"}, res.Styles[0].Entries)
	assert.Len(t, res.SharedStyles(), 1)
	assert.Empty(t, res.StylesFor("main"))
	assert.Equal(t, []string{"style.css"}, Modules(res.Styles))
}

func TestBundleInjectsStylesWithoutExtraction(t *testing.T) {
	g := buildGraph(t, sampleFiles(), sampleEntries())
	res := New(Options{Output: output()}).Bundle(g)

	assert.Empty(t, res.Styles)
	main := res.Manifest.Artifacts()[0]
	assert.Equal(t, []string{"style.css", "theme.css", "index.js"}, main.Modules)
	assert.Contains(t, string(main.Content), `"body{color:red}"`)
}

func TestBundleEntryOwnedStyle(t *testing.T) {
	g := buildGraph(t, sampleFiles(), sampleEntries()[:1])
	res := New(Options{Output: output(), Extract: true}).Bundle(g)

	assert.Empty(t, res.SharedStyles())
	require.Len(t, res.StylesFor("main"), 1)
	assert.Equal(t, "body{color:red}", string(res.StylesFor("main")[0].Content))
}

func TestBundleScriptIsConcatenatedDependencyFirst(t *testing.T) {
	g := buildGraph(t, map[string]string{
		"index.js": "import './a'\nindex()",
		"a.js":     "a()",
	}, []config.Entry{{Name: "main", Modules: []string{"./index.js"}}})
	res := New(Options{Output: output()}).Bundle(g)

	assert.Equal(t, "a()\nimport './a'\nindex()", string(res.Manifest.Artifacts()[0].Content))
}

func TestBundleUnknownExtensionIsBundled(t *testing.T) {
	g := buildGraph(t, map[string]string{"index": `console.log("index")`},
		[]config.Entry{{Name: "main", Modules: []string{"index"}}})
	res := New(Options{Output: output()}).Bundle(g)

	require.Equal(t, 1, res.Manifest.Len())
	assert.Equal(t, `console.log("index")`, string(res.Manifest.Artifacts()[0].Content))
}
