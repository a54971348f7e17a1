package resolve

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// MemoryResolver serves modules from a map. It is safe for concurrent use and
// counts reads per identifier.
type MemoryResolver struct {
	mu    sync.RWMutex
	files map[string][]byte
	reads map[string]int
	opts  Options
}

// NewMemoryResolver creates a resolver over files (identifier -> content).
func NewMemoryResolver(files map[string]string, opts Options) *MemoryResolver {
	m := &MemoryResolver{files: make(map[string][]byte, len(files)), reads: make(map[string]int), opts: opts}
	for id, content := range files {
		m.files[id] = []byte(content)
	}
	return m
}

// Set adds or replaces a file.
func (m *MemoryResolver) Set(id, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = []byte(content)
}

// Delete removes a file.
func (m *MemoryResolver) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, id)
}

// IDs lists the stored identifiers in sorted order.
func (m *MemoryResolver) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.files))
}

// Reads returns how often id was read.
func (m *MemoryResolver) Reads(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads[id]
}

func (m *MemoryResolver) Resolve(ctx context.Context, ref, from string) (string, error) {
	return resolveWith(ctx, m.opts, ref, from, func(_ context.Context, id string) (bool, error) {
		m.mu.RLock()
		defer m.mu.RUnlock()
		_, ok := m.files[id]
		return ok, nil
	})
}

func (m *MemoryResolver) Read(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	m.reads[id]++
	return slices.Clone(data), nil
}
