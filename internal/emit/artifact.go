// Package emit names build artifacts and writes them to an output target.
package emit

import (
	"slices"
)

// Kind classifies an artifact.
type Kind string

const (
	KindScript   Kind = "script"
	KindStyle    Kind = "style"
	KindMarkup   Kind = "markup"
	KindAsset    Kind = "asset"
	KindManifest Kind = "manifest"
)

// Artifact is a named output unit.
type Artifact struct {
	// Name is the logical name substituted for [name].
	Name string
	// Entry is the entry the artifact belongs to; empty for shared chunks and
	// auxiliary files.
	Entry    string
	Kind     Kind
	Template string
	// ID is the numeric identifier substituted for [id]; assigned by Manifest.Add.
	ID int
	// Ext is substituted for [ext] and includes the leading dot.
	Ext     string
	Content []byte
	Modules []string
	// FileName is the rendered template, relative to the output target.
	FileName string
}

// Manifest is the ordered artifact set of one build generation. It is not
// safe for concurrent mutation; plugins run one at a time.
type Manifest struct {
	artifacts []*Artifact
	nextID    int
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{}
}

// Add appends a to the manifest and assigns its ID.
func (m *Manifest) Add(a *Artifact) *Artifact {
	a.ID = m.nextID
	m.nextID++
	m.artifacts = append(m.artifacts, a)
	return a
}

// Len returns the number of artifacts.
func (m *Manifest) Len() int { return len(m.artifacts) }

// Artifacts returns the artifacts in insertion order.
func (m *Manifest) Artifacts() []*Artifact {
	return slices.Clone(m.artifacts)
}

// ByKind returns the artifacts of kind k in insertion order.
func (m *Manifest) ByKind(k Kind) []*Artifact {
	var out []*Artifact
	for _, a := range m.artifacts {
		if a.Kind == k {
			out = append(out, a)
		}
	}
	return out
}

// ForEntry returns the artifacts of an entry in insertion order.
func (m *Manifest) ForEntry(entry string) []*Artifact {
	var out []*Artifact
	for _, a := range m.artifacts {
		if a.Entry == entry {
			out = append(out, a)
		}
	}
	return out
}

// Lookup finds an artifact by logical name and kind.
func (m *Manifest) Lookup(name string, k Kind) (*Artifact, bool) {
	for _, a := range m.artifacts {
		if a.Name == name && a.Kind == k {
			return a, true
		}
	}
	return nil, false
}

// Resolve renders FileName for every artifact that has none.
func (m *Manifest) Resolve() error {
	for _, a := range m.artifacts {
		if a.FileName != "" {
			continue
		}
		name, err := Render(a.Template, a)
		if err != nil {
			return err
		}
		a.FileName = name
	}
	return nil
}

// FileNames returns the rendered file names in insertion order.
func (m *Manifest) FileNames() []string {
	out := make([]string, 0, len(m.artifacts))
	for _, a := range m.artifacts {
		out = append(out, a.FileName)
	}
	return out
}

// Replace swaps the artifact list, keeping ID assignment for later additions.
func (m *Manifest) Replace(artifacts []*Artifact) {
	m.artifacts = slices.Clone(artifacts)
}
