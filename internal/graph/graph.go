// Package graph builds the module dependency graph of a build generation.
package graph

import (
	"maps"
	"slices"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

// Module is a transformed module. It is immutable once stored in a Graph.
type Module struct {
	ID          string
	Source      []byte
	Fingerprint string
	Rules       []int
	Chain       []string
	Content     []byte
	Kind        transform.Kind
	Extract     bool
	// RawReferences are the references as written; References are their
	// resolved identifiers in the same order, de-duplicated.
	RawReferences []string
	References    []string
	Diagnostics   []transform.Diagnostic
	// Generation is the generation that transformed the module. Reused
	// modules keep the generation they were produced in.
	Generation uint64
}

// Stats counts how a generation obtained its modules.
type Stats struct {
	// Transformed modules ran their chain in this generation.
	Transformed int
	// Refreshed modules were re-read with an unchanged fingerprint and kept
	// their previous transform output.
	Refreshed int
	// Reused modules were carried over from the previous generation untouched.
	Reused int
	// MemoHits counts requests answered by an in-flight or finished entry.
	MemoHits int
}

// Graph is the result of one build generation.
type Graph struct {
	Generation uint64
	Mode       config.BuildMode
	Stats      Stats
	// Order lists module identifiers in BFS discovery order.
	Order       []string
	Diagnostics []transform.Diagnostic

	modules    map[string]*Module
	reverse    map[string][]string
	entries    []config.Entry
	entryNames []string
	entryRoots map[string][]string
}

func newGraph(gen uint64, mode config.BuildMode, entries []config.Entry) *Graph {
	return &Graph{
		Generation: gen,
		Mode:       mode,
		entries:    entries,
		entryNames: config.Entries(entries).Names(),
		modules:    make(map[string]*Module),
		reverse:    make(map[string][]string),
		entryRoots: make(map[string][]string),
	}
}

// Module returns the module with the given identifier.
func (g *Graph) Module(id string) (*Module, bool) {
	m, ok := g.modules[id]
	return m, ok
}

// Len returns the number of modules.
func (g *Graph) Len() int { return len(g.modules) }

// IDs returns all module identifiers in sorted order.
func (g *Graph) IDs() []string {
	return slices.Sorted(maps.Keys(g.modules))
}

// Dependencies returns the modules id references directly.
func (g *Graph) Dependencies(id string) []string {
	if m, ok := g.modules[id]; ok {
		return slices.Clone(m.References)
	}
	return nil
}

// Dependents returns the modules referencing id directly, sorted.
func (g *Graph) Dependents(id string) []string {
	return slices.Clone(g.reverse[id])
}

// EntryNames returns entry names in declaration order.
func (g *Graph) EntryNames() []string { return slices.Clone(g.entryNames) }

// EntryRoots returns the resolved root modules of an entry in declaration order.
func (g *Graph) EntryRoots(entry string) []string { return slices.Clone(g.entryRoots[entry]) }

// EntryOrder returns the modules reachable from an entry, dependencies before
// the modules referencing them, each once. Roots are visited in declaration order.
func (g *Graph) EntryOrder(entry string) []string {
	var (
		order   []string
		visited = make(map[string]bool)
		visit   func(id string)
	)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		m, ok := g.modules[id]
		if !ok {
			return
		}
		for _, dep := range m.References {
			visit(dep)
		}
		order = append(order, id)
	}
	for _, root := range g.entryRoots[entry] {
		visit(root)
	}
	return order
}

// EntriesContaining returns the entries whose closure includes id, in declaration order.
func (g *Graph) EntriesContaining(id string) []string {
	var out []string
	for _, name := range g.entryNames {
		if slices.Contains(g.EntryOrder(name), id) {
			out = append(out, name)
		}
	}
	return out
}

// Affected returns ids plus every module that transitively depends on one of
// them, sorted. Identifiers unknown to the graph are kept.
func (g *Graph) Affected(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	queue := slices.Clone(ids)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, g.reverse[id]...)
	}
	return slices.Sorted(maps.Keys(seen))
}

func (g *Graph) add(m *Module) {
	g.modules[m.ID] = m
	g.Order = append(g.Order, m.ID)
}

// link builds reverse edges and sorted diagnostics once all modules are in.
func (g *Graph) link() {
	for _, id := range g.Order {
		m := g.modules[id]
		for _, dep := range m.References {
			g.reverse[dep] = append(g.reverse[dep], id)
		}
		g.Diagnostics = append(g.Diagnostics, m.Diagnostics...)
	}
	for dep := range g.reverse {
		slices.Sort(g.reverse[dep])
		g.reverse[dep] = slices.Compact(g.reverse[dep])
	}
	slices.SortStableFunc(g.Diagnostics, func(a, b transform.Diagnostic) int {
		switch {
		case a.Module < b.Module:
			return -1
		case a.Module > b.Module:
			return 1
		default:
			return a.Line - b.Line
		}
	})
}
