package plugin

import (
	"bytes"
	"context"

	"git.home.luguber.info/inful/assetbuilder/internal/bundle"
	"git.home.luguber.info/inful/assetbuilder/internal/emit"
)

// sharedStyleName names the chunk holding styles reached by several entries.
const sharedStyleName = "shared"

// cssExtract turns the styles collected by the bundler into stylesheet
// artifacts: one per entry, plus one chunk for styles shared by entries.
type cssExtract struct {
	filename      string
	chunkFilename string
}

func newCSSExtract(opts map[string]any, deps Deps) (Plugin, error) {
	out := deps.output()
	filename, err := optString(opts, "filename", out.CSSFilename)
	if err != nil {
		return nil, err
	}
	chunk, err := optString(opts, "chunk_filename", out.CSSChunkFilename)
	if err != nil {
		return nil, err
	}
	for _, tpl := range []string{filename, chunk} {
		if err := emit.ValidateTemplate(tpl); err != nil {
			return nil, err
		}
	}
	return &cssExtract{filename: filename, chunkFilename: chunk}, nil
}

func (c *cssExtract) Name() string { return "css-extract" }

func (c *cssExtract) Register(o *Orchestrator) {
	o.Register(HookProcessAssets, c.Name(), c.run)
}

func (c *cssExtract) run(_ context.Context, hc *HookContext) error {
	if hc.Bundle == nil || hc.Graph == nil {
		return nil
	}
	for _, entry := range hc.Graph.EntryNames() {
		styles := hc.Bundle.StylesFor(entry)
		if len(styles) == 0 {
			continue
		}
		if err := hc.AddArtifact(styleArtifact(entry, entry, c.filename, styles)); err != nil {
			return err
		}
	}
	if shared := hc.Bundle.SharedStyles(); len(shared) > 0 {
		return hc.AddArtifact(styleArtifact(sharedStyleName, "", c.chunkFilename, shared))
	}
	return nil
}

func styleArtifact(name, entry, tpl string, styles []bundle.Style) *emit.Artifact {
	parts := make([][]byte, len(styles))
	for i, s := range styles {
		parts[i] = s.Content
	}
	return &emit.Artifact{
		Name:     name,
		Entry:    entry,
		Kind:     emit.KindStyle,
		Template: tpl,
		Ext:      ".css",
		Content:  bytes.Join(parts, []byte("\n")),
		Modules:  bundle.Modules(styles),
	}
}
