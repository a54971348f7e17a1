// Package pipeline runs build generations end to end: graph, bundle,
// optimize, name, emit, with lifecycle hooks in between. The CLI and the dev
// server both route through Service.
package pipeline

import (
	"context"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/emit"
	"git.home.luguber.info/inful/assetbuilder/internal/graph"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

// BuildService executes build generations.
type BuildService interface {
	Run(ctx context.Context, req BuildRequest) (*BuildResult, error)
}

// BuildRequest describes one generation.
type BuildRequest struct {
	// Changed lists module identifiers whose content changed since the last
	// generation. It is ignored when no previous graph exists.
	Changed []string

	// Full forces a full generation even when a previous graph exists.
	Full bool

	// Target overrides the service's output target for this generation.
	Target emit.Target
}

// BuildResult is the outcome of a generation. On failure it carries what is
// known up to the failing stage.
type BuildResult struct {
	Status     BuildStatus
	BuildID    string
	Generation uint64
	Mode       config.BuildMode

	// Incremental is set when the generation reused a previous graph.
	Incremental bool
	// Changed is the invalidated change set of an incremental generation.
	Changed []string

	Graph    *graph.Graph
	Manifest *emit.Manifest

	// Written lists the file names that reached the target, also on partial failure.
	Written []string
	Bytes   int64

	Diagnostics []transform.Diagnostic
	Stats       graph.Stats

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Artifacts returns the artifacts of the generation in emission order.
func (r *BuildResult) Artifacts() []*emit.Artifact {
	if r.Manifest == nil {
		return nil
	}
	return r.Manifest.Artifacts()
}

// BuildStatus represents the outcome of a generation.
type BuildStatus string

const (
	BuildStatusSuccess   BuildStatus = "success"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusCancelled BuildStatus = "cancelled"
)

// IsSuccess reports whether the generation emitted all artifacts.
func (s BuildStatus) IsSuccess() bool {
	return s == BuildStatusSuccess
}
