package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

const projectConfig = `
entries:
  main: ./src/index.js
rules:
  - test: '\.js$'
    exclude: node_modules
    use: [script]
  - test: '\.css$'
    use: [css, extract]
  - test: '\.js$'
    enforce: pre
    use: [lint]
output:
  path: dist
  filename: '[name].js'
history:
  path: history.db
`

func project(t *testing.T, cfg string, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assetbuilder.yaml"), []byte(cfg), 0o644))
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func TestBuildWritesOutputAndHistory(t *testing.T) {
	dir := project(t, projectConfig, map[string]string{"src/index.js": "console.log('hello')"})
	root := &CLI{Config: filepath.Join(dir, "assetbuilder.yaml")}
	var buf bytes.Buffer

	require.NoError(t, (&BuildCmd{}).Run(&Global{Out: &buf}, root))
	data, err := os.ReadFile(filepath.Join(dir, "dist", "main.js"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, buf.String(), "main.js")
	assert.Contains(t, buf.String(), "Built 1 file(s)")

	buf.Reset()
	require.NoError(t, (&HistoryCmd{Limit: 5}).Run(&Global{Out: &buf}, root))
	assert.Contains(t, buf.String(), "success")
	assert.Contains(t, buf.String(), "production")
}

func TestBuildOutputOverride(t *testing.T) {
	dir := project(t, projectConfig, map[string]string{"src/index.js": "console.log(1)"})
	dest := filepath.Join(t.TempDir(), "public")
	root := &CLI{Config: filepath.Join(dir, "assetbuilder.yaml"), Mode: "development"}

	require.NoError(t, (&BuildCmd{Output: dest}).Run(&Global{Out: &bytes.Buffer{}}, root))
	assert.FileExists(t, filepath.Join(dest, "main.js"))
	assert.NoFileExists(t, filepath.Join(dir, "dist", "main.js"))
}

func TestBuildFailureMapsToExitCode(t *testing.T) {
	dir := project(t, projectConfig, map[string]string{"src/index.js": "import './missing.js'"})
	root := &CLI{Config: filepath.Join(dir, "assetbuilder.yaml")}

	err := (&BuildCmd{}).Run(&Global{Out: &bytes.Buffer{}}, root)
	require.Error(t, err)
	assert.Equal(t, 3, ferrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
	assert.NoFileExists(t, filepath.Join(dir, "dist", "main.js"))
}

func TestLoadModePrecedence(t *testing.T) {
	dir := project(t, projectConfig+"mode: none\n", nil)
	path := filepath.Join(dir, "assetbuilder.yaml")

	_, mode, _, err := (&CLI{Config: path}).Load(config.ModeDevelopment)
	require.NoError(t, err)
	assert.Equal(t, config.ModeNone, mode)

	t.Setenv(config.ModeEnvVar, "development")
	_, mode, _, err = (&CLI{Config: path}).Load(config.ModeProduction)
	require.NoError(t, err)
	assert.Equal(t, config.ModeDevelopment, mode)

	_, mode, _, err = (&CLI{Config: path, Mode: "production"}).Load(config.ModeDevelopment)
	require.NoError(t, err)
	assert.Equal(t, config.ModeProduction, mode)
}

func TestLoadFallsBackToCommandDefault(t *testing.T) {
	dir := project(t, projectConfig, nil)
	_, mode, _, err := (&CLI{Config: filepath.Join(dir, "assetbuilder.yaml")}).Load(config.ModeDevelopment)
	require.NoError(t, err)
	assert.Equal(t, config.ModeDevelopment, mode)
}

func TestRulesListAndExplain(t *testing.T) {
	dir := project(t, projectConfig, map[string]string{"src/index.js": ""})
	root := &CLI{Config: filepath.Join(dir, "assetbuilder.yaml")}

	var buf bytes.Buffer
	require.NoError(t, (&RulesCmd{}).Run(&Global{Out: &buf}, root))
	assert.Contains(t, buf.String(), "css -> extract")
	assert.Contains(t, buf.String(), "pre")

	buf.Reset()
	cmd := &RulesCmd{Modules: []string{filepath.Join(dir, "src", "index.js"), "theme.css", "logo.png"}}
	require.NoError(t, cmd.Run(&Global{Out: &buf}, root))
	assert.Equal(t,
		filepath.Join(dir, "src", "index.js")+": lint -> script (rules 2, 0)\n"+
			"theme.css: css -> extract (rules 1)\n"+
			"logo.png: no matching rule (passed through)\n",
		buf.String())
}

func TestInitThenRefuseOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assetbuilder.yaml")
	root := &CLI{Config: path}
	var buf bytes.Buffer

	require.NoError(t, (&InitCmd{}).Run(&Global{Out: &buf}, root))
	assert.FileExists(t, path)
	_, err := config.Load(path)
	require.NoError(t, err)

	err = (&InitCmd{}).Run(&Global{Out: &buf}, root)
	assert.Equal(t, ferrors.CategoryValidation, ferrors.GetCategory(err))
	require.NoError(t, (&InitCmd{Force: true}).Run(&Global{Out: &buf}, root))
}

func TestHistoryRequiresPath(t *testing.T) {
	dir := project(t, "entries:\n  main: ./src/index.js\n", nil)
	err := (&HistoryCmd{Limit: 1}).Run(&Global{Out: &bytes.Buffer{}}, &CLI{Config: filepath.Join(dir, "assetbuilder.yaml")})
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
}

func TestServeFlagsOverrideConfig(t *testing.T) {
	cfg := &config.Config{}
	(&ServeCmd{Host: "0.0.0.0", Port: 9000, NoLiveReload: true, WriteToDisk: true}).apply(cfg)
	assert.Equal(t, "0.0.0.0", cfg.DevServer.Host)
	assert.Equal(t, 9000, cfg.DevServer.Port)
	assert.False(t, cfg.LiveReloadEnabled(config.ModeDevelopment))
	assert.True(t, cfg.DevServer.WriteToDisk)
}
