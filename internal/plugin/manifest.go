package plugin

import (
	"context"
	"encoding/json"
	"path"
	"strings"

	"git.home.luguber.info/inful/assetbuilder/internal/emit"
)

// manifestFile writes a JSON object mapping logical artifact names to the
// emitted file names.
type manifestFile struct {
	filename string
}

func newManifest(opts map[string]any, _ Deps) (Plugin, error) {
	filename, err := optString(opts, "filename", "manifest.json")
	if err != nil {
		return nil, err
	}
	if err := emit.ValidateTemplate(filename); err != nil {
		return nil, err
	}
	return &manifestFile{filename: filename}, nil
}

func (m *manifestFile) Name() string { return "manifest" }

func (m *manifestFile) Register(o *Orchestrator) {
	o.Register(HookPreEmit, m.Name(), m.run)
}

func (m *manifestFile) run(_ context.Context, hc *HookContext) error {
	entries := make(map[string]string)
	for _, a := range hc.Manifest.Artifacts() {
		if a.Kind == emit.KindManifest || a.FileName == "" {
			continue
		}
		entries[a.Name+a.Ext] = a.FileName
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return hc.AddArtifact(&emit.Artifact{
		Name:     strings.TrimSuffix(m.filename, path.Ext(m.filename)),
		Kind:     emit.KindManifest,
		Template: m.filename,
		Ext:      ".json",
		Content:  append(data, '\n'),
	})
}
