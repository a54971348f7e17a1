package devserver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherBatchesChanges(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dist := filepath.Join(root, "dist")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(dist, 0o755))

	batches := make(chan []string, 4)
	w, err := NewWatcher([]string{root}, []string{dist}, 100*time.Millisecond,
		func(paths []string) { batches <- paths }, nil)
	require.NoError(t, err)
	go func() { _ = w.Run(t.Context()) }()

	write := func(path string) {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	write(filepath.Join(src, "a.js"))
	write(filepath.Join(src, "b.css"))
	write(filepath.Join(src, ".hidden.js"))
	write(filepath.Join(src, "a.js.swp"))
	write(filepath.Join(dist, "main.js"))

	select {
	case got := <-batches:
		assert.Equal(t, []string{filepath.Join(src, "a.js"), filepath.Join(src, "b.css")}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change batch")
	}
	select {
	case got := <-batches:
		t.Fatalf("unexpected second batch %v", got)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestShouldIgnore(t *testing.T) {
	for path, want := range map[string]bool{
		"src/index.js":     false,
		"src/.index.js":    true,
		"src/index.js~":    true,
		"src/.index.swp":   true,
		"src/index.js.swx": true,
		"src/#index.js#":   true,
		"src/index.tmp":    true,
		"Thumbs.db":        true,
		"src/theme.scss":   false,
	} {
		assert.Equal(t, want, shouldIgnore(path), path)
	}
}

func TestInjectClient(t *testing.T) {
	assert.Equal(t, `<body><p></p>`+string(clientTag)+`</BODY>`,
		string(injectClient([]byte(`<body><p></p></BODY>`))))
	assert.Equal(t, `<p></p>`+string(clientTag), string(injectClient([]byte(`<p></p>`))))
}
