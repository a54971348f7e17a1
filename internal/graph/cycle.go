package graph

import "slices"

type color uint8

const (
	white color = iota
	grey
	black
)

// findCycle runs a depth-first search from the entry roots in declaration
// order and returns the first cycle met, or nil.
func (g *Graph) findCycle() []string {
	colors := make(map[string]color, len(g.modules))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = grey
		stack = append(stack, id)
		if m, ok := g.modules[id]; ok {
			for _, dep := range m.References {
				switch colors[dep] {
				case grey:
					start := slices.Index(stack, dep)
					return append(slices.Clone(stack[start:]), dep)
				case white:
					if cycle := visit(dep); cycle != nil {
						return cycle
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		colors[id] = black
		return nil
	}

	for _, name := range g.entryNames {
		for _, root := range g.entryRoots[name] {
			if colors[root] == white {
				if cycle := visit(root); cycle != nil {
					return cycle
				}
			}
		}
	}
	return nil
}
