package emit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// ErrInvalidName is returned for file names that escape the target.
var ErrInvalidName = errors.New("invalid artifact file name")

// Target receives emitted files.
type Target interface {
	WriteFile(ctx context.Context, name string, data []byte) error
}

func checkName(name string) error {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// DirTarget writes files below a directory. Each file is written to a
// temporary sibling and renamed into place.
type DirTarget struct {
	Root string
}

// NewDirTarget returns a target rooted at dir.
func NewDirTarget(dir string) *DirTarget {
	return &DirTarget{Root: dir}
}

func (d *DirTarget) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dest := filepath.Join(d.Root, filepath.FromSlash(name))
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// MemoryTarget keeps files in memory. It is safe for concurrent use.
type MemoryTarget struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryTarget returns an empty in-memory target.
func NewMemoryTarget() *MemoryTarget {
	return &MemoryTarget{files: make(map[string][]byte)}
}

func (m *MemoryTarget) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path.Clean(name)] = slices.Clone(data)
	return nil
}

// ReadFile returns the content stored under name.
func (m *MemoryTarget) ReadFile(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path.Clean(strings.TrimPrefix(name, "/"))]
	return data, ok
}

// Files returns the stored names, sorted.
func (m *MemoryTarget) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.files))
}

// Reset removes every file.
func (m *MemoryTarget) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.files)
}

// MultiTarget writes every file to each of its targets in order.
type MultiTarget []Target

func (t MultiTarget) WriteFile(ctx context.Context, name string, data []byte) error {
	for _, target := range t {
		if err := target.WriteFile(ctx, name, data); err != nil {
			return err
		}
	}
	return nil
}
