package resolve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSResolver resolves modules below a directory on disk.
type FSResolver struct {
	root string
	opts Options
}

// NewFSResolver creates a resolver rooted at root, made absolute.
func NewFSResolver(root string, opts Options) *FSResolver {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &FSResolver{root: root, opts: opts}
}

// Root returns the directory identifiers are relative to.
func (r *FSResolver) Root() string { return r.root }

func (r *FSResolver) Resolve(ctx context.Context, ref, from string) (string, error) {
	return resolveWith(ctx, r.opts, ref, from, r.isFile)
}

func (r *FSResolver) Read(_ context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(r.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return data, err
}

// Path maps an identifier to its file path.
func (r *FSResolver) Path(id string) string {
	return filepath.Join(r.root, filepath.FromSlash(id))
}

// ID maps a file path below the root to its identifier.
func (r *FSResolver) ID(file string) (string, bool) {
	rel, err := filepath.Rel(r.root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (r *FSResolver) isFile(_ context.Context, id string) (bool, error) {
	info, err := os.Stat(r.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
