package plugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/bundle"
	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/emit"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/graph"
	"git.home.luguber.info/inful/assetbuilder/internal/history"
	"git.home.luguber.info/inful/assetbuilder/internal/notify"
	"git.home.luguber.info/inful/assetbuilder/internal/resolve"
	"git.home.luguber.info/inful/assetbuilder/internal/rules"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

func mustPlugin(t *testing.T, name string, opts map[string]any, deps Deps) *Orchestrator {
	t.Helper()
	ps, err := FromConfig([]config.PluginConfig{{Name: name, Options: opts}}, deps)
	require.NoError(t, err)
	o := NewOrchestrator(nil)
	o.Use(ps...)
	return o
}

// bundled builds a two-entry project whose style is extracted.
func bundled(t *testing.T) *HookContext {
	t.Helper()
	set, err := rules.Compile([]config.RuleConfig{
		{Test: `\.js$`, Use: []config.TransformerSpec{{Name: "script"}}},
		{Test: `\.css$`, Use: []config.TransformerSpec{{Name: "css"}, {Name: "extract"}}},
	})
	require.NoError(t, err)
	mem := resolve.NewMemoryResolver(map[string]string{
		"index.js":   "import './main.css'\nimport './shared.css'",
		"test.js":    "import './shared.css'",
		"main.css":   "body{}",
		"shared.css": "p{}",
	}, resolve.DefaultOptions())
	b, err := graph.NewBuilder(mem, set, transform.DefaultRegistry(), graph.Options{})
	require.NoError(t, err)
	g, err := b.Build(t.Context(), []config.Entry{
		{Name: "main", Modules: []string{"./index.js"}},
		{Name: "test", Modules: []string{"./test.js"}},
	})
	require.NoError(t, err)
	res := bundle.New(bundle.Options{Output: config.OutputConfig{Filename: "[name].js"}, Extract: true}).Bundle(g)
	return &HookContext{Mode: config.ModeProduction, BuildID: "b1", Generation: 1, Started: time.Now(),
		Graph: g, Bundle: res, Manifest: res.Manifest}
}

func TestCSSExtractCreatesStylesheets(t *testing.T) {
	hc := bundled(t)
	o := mustPlugin(t, "css-extract", nil, Deps{})
	require.NoError(t, o.Fire(t.Context(), HookProcessAssets, hc))
	require.NoError(t, hc.Manifest.Resolve())

	styles := hc.Manifest.ByKind(emit.KindStyle)
	require.Len(t, styles, 2)
	assert.Equal(t, "main.css", styles[0].FileName)
	assert.Equal(t, "body{}", string(styles[0].Content))
	assert.Equal(t, "main", styles[0].Entry)
	assert.Equal(t, "3.css", styles[1].FileName, "shared chunk uses the [id] template")
	assert.Equal(t, []string{"shared.css"}, styles[1].Modules)
}

func TestCSSExtractRejectsBadTemplate(t *testing.T) {
	_, err := FromConfig([]config.PluginConfig{{Name: "css-extract", Options: map[string]any{"filename": "[chunk].css"}}}, Deps{})
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
}

func TestHTMLInjectsArtifacts(t *testing.T) {
	hc := bundled(t)
	o := NewOrchestrator(nil)
	ps, err := FromConfig([]config.PluginConfig{{Name: "css-extract"}, {Name: "html", Options: map[string]any{"title": "App"}}}, Deps{})
	require.NoError(t, err)
	o.Use(ps...)

	require.NoError(t, o.Fire(t.Context(), HookProcessAssets, hc))
	require.NoError(t, hc.Manifest.Resolve())
	require.NoError(t, o.Fire(t.Context(), HookPreEmit, hc))

	page, ok := hc.Manifest.Lookup("index", emit.KindMarkup)
	require.True(t, ok)
	assert.Equal(t, "index.html", page.FileName)
	doc := string(page.Content)
	assert.Contains(t, doc, "<title>App</title>")
	assert.Contains(t, doc, `<link rel="stylesheet" href="main.css"/>`)
	assert.Contains(t, doc, `<link rel="stylesheet" href="3.css"/>`)
	assert.Contains(t, doc, `<script src="main.js"></script><script src="test.js"></script></body>`)
}

func TestHTMLUsesTemplateAndChunks(t *testing.T) {
	tpl := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(tpl, []byte(`<html><head><title>Mine</title></head><body><div id="app"></div></body></html>`), 0o600))

	hc := bundled(t)
	require.NoError(t, hc.Manifest.Resolve())
	o := mustPlugin(t, "html", map[string]any{"template": tpl, "chunks": []any{"test"}, "public_path": "/static/"}, Deps{})
	require.NoError(t, o.Fire(t.Context(), HookPreEmit, hc))

	page, _ := hc.Manifest.Lookup("index", emit.KindMarkup)
	doc := string(page.Content)
	assert.Contains(t, doc, `<div id="app"></div><script src="/static/test.js"></script>`)
	assert.NotContains(t, doc, "main.js")
	assert.Contains(t, doc, "<title>Mine</title>")
}

func TestHTMLMissingTemplateFails(t *testing.T) {
	hc := bundled(t)
	o := mustPlugin(t, "html", map[string]any{"template": filepath.Join(t.TempDir(), "nope.html")}, Deps{})
	var pe *PluginError
	require.ErrorAs(t, o.Fire(t.Context(), HookPreEmit, hc), &pe)
	assert.Equal(t, "html", pe.Plugin)
}

func TestManifestMapsLogicalNames(t *testing.T) {
	hc := bundled(t)
	require.NoError(t, hc.Manifest.Resolve())
	o := mustPlugin(t, "manifest", nil, Deps{})
	require.NoError(t, o.Fire(t.Context(), HookPreEmit, hc))

	m, ok := hc.Manifest.Lookup("manifest", emit.KindManifest)
	require.True(t, ok)
	assert.Equal(t, "manifest.json", m.FileName)
	var got map[string]string
	require.NoError(t, json.Unmarshal(m.Content, &got))
	assert.Equal(t, map[string]string{"main.js": "main.js", "test.js": "test.js"}, got)
}

func TestCleanEmptiesOutput(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"old.js", "keep.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested", "deep"), 0o755))

	o := mustPlugin(t, "clean", map[string]any{"keep": []any{"*.txt"}}, Deps{})
	require.NoError(t, o.Fire(t.Context(), HookPipelineStart, &HookContext{OutputDir: dir}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name())

	// missing output and in-memory output are no-ops
	require.NoError(t, o.Fire(t.Context(), HookPipelineStart, &HookContext{OutputDir: filepath.Join(dir, "missing")}))
	require.NoError(t, o.Fire(t.Context(), HookPipelineStart, &HookContext{}))
}

func TestCleanRefusesRoot(t *testing.T) {
	o := mustPlugin(t, "clean", nil, Deps{})
	assert.Error(t, o.Fire(t.Context(), HookPipelineStart, &HookContext{OutputDir: "/"}))
}

func TestHistoryAndNotifyRecordOutcomes(t *testing.T) {
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	var capture notify.Capture

	ps, err := FromConfig([]config.PluginConfig{{Name: "progress"}}, Deps{History: store, Notifier: &capture})
	require.NoError(t, err)
	require.Len(t, ps, 3, "history and notify appended")
	o := NewOrchestrator(nil)
	o.Use(ps...)

	hc := bundled(t)
	require.NoError(t, hc.Manifest.Resolve())
	hc.Emitted = hc.Manifest.FileNames()
	require.NoError(t, o.Fire(t.Context(), HookPostEmit, hc))

	failed := &HookContext{Mode: config.ModeDevelopment, BuildID: "b2", Generation: 2, Started: time.Now()}
	o.FireFailed(t.Context(), failed, errors.New("cannot resolve"))

	builds, err := store.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, builds, 2)
	assert.Equal(t, history.StatusFailed, builds[0].Status)
	assert.Equal(t, "cannot resolve", builds[0].Error)
	assert.Equal(t, history.StatusSuccess, builds[1].Status)
	assert.Len(t, builds[1].Artifacts, 2)

	events := capture.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "success", events[0].Status)
	assert.Equal(t, []string{"main.js", "test.js"}, events[0].Artifacts)
	assert.Equal(t, "failed", events[1].Status)
}

func TestFromConfigErrors(t *testing.T) {
	_, err := FromConfig([]config.PluginConfig{{Name: "uglify"}}, Deps{})
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))

	_, err = FromConfig([]config.PluginConfig{{Name: "history"}}, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history.path")

	_, err = FromConfig([]config.PluginConfig{{Name: "clean", Options: map[string]any{"keep": 3}}}, Deps{})
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"clean", "css-extract", "history", "html", "manifest", "notify", "progress"}, Names())
}
