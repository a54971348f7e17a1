package plugin

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/bundle"
	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/emit"
	"git.home.luguber.info/inful/assetbuilder/internal/graph"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

// HookContext is the state of the generation a hook fires for. Fields are
// filled as the pipeline progresses: Graph and Bundle from process-assets on,
// Emitted at post-emit, Err at build-failed.
type HookContext struct {
	Hook       Hook
	Mode       config.BuildMode
	BuildID    string
	Generation uint64
	Started    time.Time
	// OutputDir is the output directory on disk; empty when artifacts stay in memory.
	OutputDir string
	Output    config.OutputConfig
	Graph     *graph.Graph
	Bundle    *bundle.Result
	Manifest  *emit.Manifest
	Emitted   []string
	Err       error
}

// Diagnostics returns the non-fatal diagnostics of the generation.
func (hc *HookContext) Diagnostics() []transform.Diagnostic {
	if hc.Graph == nil {
		return nil
	}
	return hc.Graph.Diagnostics
}

// AddArtifact adds an auxiliary artifact. At pre-emit its file name is
// rendered immediately; at process-assets naming happens with the rest.
func (hc *HookContext) AddArtifact(a *emit.Artifact) error {
	switch hc.Hook {
	case HookProcessAssets:
		hc.Manifest.Add(a)
		return nil
	case HookPreEmit:
		hc.Manifest.Add(a)
		name, err := emit.Render(a.Template, a)
		if err != nil {
			return err
		}
		a.FileName = name
		return nil
	default:
		return fmt.Errorf("artifacts cannot be added at %s", hc.Hook)
	}
}
