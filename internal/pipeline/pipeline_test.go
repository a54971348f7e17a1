package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/emit"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/graph"
	"git.home.luguber.info/inful/assetbuilder/internal/history"
	"git.home.luguber.info/inful/assetbuilder/internal/notify"
	"git.home.luguber.info/inful/assetbuilder/internal/plugin"
	"git.home.luguber.info/inful/assetbuilder/internal/resolve"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

const baseConfig = `
entries:
  main: ./src/index.js
rules:
  - test: '\.js$'
    use: [script]
  - test: '\.css$'
    use: [css, extract]
  - test: '\.scss$'
    use: [sass, css]
`

const distOutput = "output:\n  path: dist\n"

type fixture struct {
	cfg    *config.Config
	files  *resolve.MemoryResolver
	target *emit.MemoryTarget
}

func newFixture(t *testing.T, yaml string, files map[string]string) *fixture {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml), config.FormatYAML, "test.yaml")
	require.NoError(t, err)
	return &fixture{
		cfg:    cfg,
		files:  resolve.NewMemoryResolver(files, resolve.DefaultOptions()),
		target: emit.NewMemoryTarget(),
	}
}

func (f *fixture) service(t *testing.T, opts Options) *Service {
	t.Helper()
	opts.Resolver = f.files
	if opts.Target == nil {
		opts.Target = f.target
	}
	svc, err := NewService(f.cfg, opts)
	require.NoError(t, err)
	return svc
}

func (f *fixture) file(t *testing.T, name string) string {
	t.Helper()
	data, ok := f.target.ReadFile(name)
	require.True(t, ok, "missing %s in %v", name, f.target.Files())
	return string(data)
}

func TestProductionBuildEmitsHashedBundle(t *testing.T) {
	f := newFixture(t, baseConfig+distOutput, map[string]string{"src/index.js": `console.log("index")`})
	svc := f.service(t, Options{Mode: config.ModeProduction})

	res, err := svc.Run(t.Context(), BuildRequest{})
	require.NoError(t, err)
	assert.Equal(t, BuildStatusSuccess, res.Status)
	assert.NotEmpty(t, res.BuildID)
	assert.Equal(t, uint64(1), res.Generation)
	assert.False(t, res.Incremental)

	require.Len(t, res.Written, 1)
	assert.Regexp(t, regexp.MustCompile(`^main\.[0-9a-f]{20}\.js$`), res.Written[0])
	assert.Equal(t, `console.log("index")`, f.file(t, res.Written[0]))
	assert.Equal(t, f.target.Files(), res.Written)
}

func TestDevelopmentBuildIsNotMinified(t *testing.T) {
	f := newFixture(t, baseConfig+distOutput, map[string]string{"src/index.js": "const answer = 42;\nconsole.log(answer);\n"})
	svc := f.service(t, Options{Mode: config.ModeDevelopment})

	res, err := svc.Run(t.Context(), BuildRequest{})
	require.NoError(t, err)
	assert.Equal(t, "const answer = 42;\nconsole.log(answer);\n", f.file(t, res.Written[0]))
}

func TestExtractedStylesheetIsReferencedByHTML(t *testing.T) {
	f := newFixture(t, baseConfig+`
plugins:
  - css-extract
  - html
  - manifest
output:
  path: dist
  filename: '[name].js'
`, map[string]string{
		"src/index.js": "import './main.css'\nconsole.log('hi')",
		"src/main.css": "body { color: red; }",
	})
	svc := f.service(t, Options{Mode: config.ModeDevelopment})

	res, err := svc.Run(t.Context(), BuildRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.js", "main.css", "index.html", "manifest.json"}, res.Written)

	assert.Equal(t, "body { color: red; }", f.file(t, "main.css"))
	assert.NotContains(t, f.file(t, "main.js"), "color: red")
	page := f.file(t, "index.html")
	assert.Contains(t, page, `<link rel="stylesheet" href="main.css"/>`)
	assert.Contains(t, page, `<script src="main.js"></script>`)
	assert.JSONEq(t, `{"main.js":"main.js","main.css":"main.css","index.html":"index.html"}`, f.file(t, "manifest.json"))
}

func TestProductionStylesheetIsMinifiedBeforeNaming(t *testing.T) {
	f := newFixture(t, baseConfig+`
plugins: [css-extract, html]
output:
  path: dist
  css_filename: '[name].[hash:8].css'
`, map[string]string{
		"src/index.js": "import './main.css'",
		"src/main.css": "body {\n  color: red;\n}\n",
	})
	svc := f.service(t, Options{Mode: config.ModeProduction})

	res, err := svc.Run(t.Context(), BuildRequest{})
	require.NoError(t, err)
	css, ok := res.Manifest.Lookup("main", emit.KindStyle)
	require.True(t, ok)
	assert.Equal(t, "body{color:red}", string(css.Content))
	assert.Equal(t, "main."+emit.ContentHash(css.Content)[:8]+".css", css.FileName)
	assert.Contains(t, f.file(t, "index.html"), `href="`+css.FileName+`"`)
}

func TestResolutionFailureWritesNothing(t *testing.T) {
	f := newFixture(t, baseConfig+distOutput, map[string]string{"src/index.js": "import './missing'"})
	var failed []error
	svc := f.service(t, Options{Plugins: []plugin.Plugin{failureProbe(&failed)}})

	res, err := svc.Run(t.Context(), BuildRequest{})
	var re *graph.ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "./missing", re.Reference)
	assert.Equal(t, ferrors.CategoryResolution, ferrors.GetCategory(err))
	assert.Equal(t, BuildStatusFailed, res.Status)
	assert.Empty(t, f.target.Files())
	assert.Empty(t, res.Written)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], err)
}

func TestTransformFailureWritesNothing(t *testing.T) {
	f := newFixture(t, baseConfig+distOutput, map[string]string{
		"src/index.js":   "import './theme.scss'",
		"src/theme.scss": "a { color: $undefined; }",
	})
	svc := f.service(t, Options{})

	res, err := svc.Run(t.Context(), BuildRequest{})
	var te *transform.TransformError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "src/theme.scss", te.Module)
	assert.Equal(t, ferrors.CategoryTransform, ferrors.GetCategory(err))
	assert.Equal(t, BuildStatusFailed, res.Status)
	assert.Empty(t, f.target.Files())
}

func TestIncrementalRunCarriesFailedChanges(t *testing.T) {
	f := newFixture(t, baseConfig+distOutput, map[string]string{
		"src/index.js": "import './util'",
		"src/util.js":  "export const v = 1",
	})
	svc := f.service(t, Options{Mode: config.ModeDevelopment})
	ctx := t.Context()

	_, err := svc.Run(ctx, BuildRequest{})
	require.NoError(t, err)

	f.files.Set("src/util.js", "import './extra'")
	res, err := svc.Run(ctx, BuildRequest{Changed: []string{"src/util.js"}})
	require.Error(t, err)
	assert.True(t, res.Incremental)

	f.files.Set("src/extra.js", "export const e = 1")
	res, err = svc.Run(ctx, BuildRequest{Changed: []string{"src/extra.js"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/extra.js", "src/util.js"}, res.Changed)
	assert.Equal(t, uint64(3), res.Generation)
	assert.Equal(t, 2, res.Stats.Transformed)
	assert.Equal(t, []string{"src/extra.js", "src/util.js", "src/index.js"}, res.Graph.EntryOrder("main"))

	res, err = svc.Run(ctx, BuildRequest{Changed: []string{"src/index.js"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/index.js"}, res.Changed, "successful generations reset the carried set")
}

func TestFullRequestIgnoresPreviousGraph(t *testing.T) {
	f := newFixture(t, baseConfig+distOutput, map[string]string{"src/index.js": ""})
	svc := f.service(t, Options{})

	_, err := svc.Run(t.Context(), BuildRequest{})
	require.NoError(t, err)
	res, err := svc.Run(t.Context(), BuildRequest{Full: true})
	require.NoError(t, err)
	assert.False(t, res.Incremental)
	assert.Equal(t, 1, res.Stats.Transformed)
}

func TestPluginFailureAbortsBeforeEmit(t *testing.T) {
	f := newFixture(t, baseConfig+distOutput, map[string]string{"src/index.js": ""})
	var failed []error
	svc := f.service(t, Options{Plugins: []plugin.Plugin{hookPlugin{
		name: "guard",
		hook: plugin.HookPreEmit,
		fn: func(context.Context, *plugin.HookContext) error {
			return errors.New("budget exceeded")
		},
	}, failureProbe(&failed)}})

	res, err := svc.Run(t.Context(), BuildRequest{})
	var pe *plugin.PluginError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "guard", pe.Plugin)
	assert.Equal(t, plugin.HookPreEmit, pe.Hook)
	assert.Empty(t, f.target.Files())
	assert.NotNil(t, res.Manifest, "named artifacts are known")
	assert.Len(t, failed, 1)
}

func TestPerRequestTarget(t *testing.T) {
	f := newFixture(t, baseConfig+distOutput, map[string]string{"src/index.js": ""})
	svc := f.service(t, Options{})
	other := emit.NewMemoryTarget()

	res, err := svc.Run(t.Context(), BuildRequest{Target: other})
	require.NoError(t, err)
	assert.Equal(t, res.Written, other.Files())
	assert.Empty(t, f.target.Files())
}

func TestCleanOutputIsAddedForDiskTargets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.js"), []byte("old"), 0o600))
	f := newFixture(t, baseConfig+`
output:
  path: `+dir+`
  clean: true
  filename: '[name].js'
`, map[string]string{"src/index.js": "console.log(1)"})

	svc, err := NewService(f.cfg, Options{Resolver: f.files, Mode: config.ModeDevelopment})
	require.NoError(t, err)
	_, err = svc.Run(t.Context(), BuildRequest{})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "main.js", entries[0].Name())
	assert.Contains(t, svc.Hooks().Plugins(), "clean")
}

func TestHistoryRecordsOutcomes(t *testing.T) {
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := newFixture(t, baseConfig+distOutput, map[string]string{"src/index.js": ""})
	svc := f.service(t, Options{Services: &Services{History: store}})

	res, err := svc.Run(t.Context(), BuildRequest{})
	require.NoError(t, err)

	got, err := store.Get(t.Context(), res.BuildID)
	require.NoError(t, err)
	assert.Equal(t, history.StatusSuccess, got.Status)
	assert.Equal(t, res.Generation, got.Generation)
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, res.Written[0], got.Artifacts[0].FileName)
}

type downPublisher struct{}

func (downPublisher) Publish(context.Context, notify.Event) error { return errors.New("nats down") }
func (downPublisher) Close() error                                { return nil }

func TestHistoryReflectsLaterPostEmitFailure(t *testing.T) {
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := newFixture(t, baseConfig+distOutput+"plugins: [history, notify]\n", map[string]string{"src/index.js": ""})
	svc := f.service(t, Options{Services: &Services{History: store, Notifier: downPublisher{}}})

	res, err := svc.Run(t.Context(), BuildRequest{})
	require.Error(t, err)
	assert.Equal(t, BuildStatusFailed, res.Status)

	builds, err := store.Recent(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, res.BuildID, builds[0].ID)
	assert.Equal(t, history.StatusFailed, builds[0].Status)
	assert.Contains(t, builds[0].Error, "nats down")
	assert.Empty(t, builds[0].Artifacts)
}

func TestNewServiceRejectsBadDefinitions(t *testing.T) {
	f := newFixture(t, baseConfig+distOutput, nil)
	f.cfg.Rules = append(f.cfg.Rules, config.RuleConfig{Test: `\.ts$`, Use: []config.TransformerSpec{{Name: "babel"}}, Enforce: config.EnforceNormal})
	_, err := NewService(f.cfg, Options{Resolver: f.files})
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))

	f = newFixture(t, baseConfig+distOutput, nil)
	f.cfg.Output.Filename = "[name].[chunkhash].js"
	_, err = NewService(f.cfg, Options{Resolver: f.files})
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))

	f = newFixture(t, baseConfig+distOutput+"plugins: [uglify]\n", nil)
	_, err = NewService(f.cfg, Options{Resolver: f.files})
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
}

type hookPlugin struct {
	name string
	hook plugin.Hook
	fn   plugin.HookFunc
}

func (p hookPlugin) Name() string { return p.name }

func (p hookPlugin) Register(o *plugin.Orchestrator) { o.Register(p.hook, p.name, p.fn) }

func failureProbe(seen *[]error) plugin.Plugin {
	return hookPlugin{
		name: "probe",
		hook: plugin.HookBuildFailed,
		fn: func(_ context.Context, hc *plugin.HookContext) error {
			*seen = append(*seen, hc.Err)
			return nil
		},
	}
}
