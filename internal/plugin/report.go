package plugin

import (
	"context"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/history"
	"git.home.luguber.info/inful/assetbuilder/internal/notify"
)

// historyRecorder stores every finished or failed build.
type historyRecorder struct {
	store *history.Store
}

func newHistory(_ map[string]any, deps Deps) (Plugin, error) {
	if deps.History == nil {
		return nil, errMissingService("history", "history.path")
	}
	return &historyRecorder{store: deps.History}, nil
}

func (h *historyRecorder) Name() string { return "history" }

func (h *historyRecorder) Register(o *Orchestrator) {
	o.Register(HookPostEmit, h.Name(), h.run)
	o.Register(HookBuildFailed, h.Name(), h.run)
}

func (h *historyRecorder) run(ctx context.Context, hc *HookContext) error {
	b := history.Build{
		ID:          hc.BuildID,
		Generation:  hc.Generation,
		Mode:        hc.Mode.String(),
		Status:      history.StatusSuccess,
		Started:     hc.Started,
		Duration:    time.Since(hc.Started),
		Diagnostics: len(hc.Diagnostics()),
	}
	if hc.Err != nil {
		b.Status = history.StatusFailed
		b.Error = hc.Err.Error()
	}
	if hc.Manifest != nil && hc.Err == nil {
		for _, a := range hc.Manifest.Artifacts() {
			b.Artifacts = append(b.Artifacts, history.Artifact{FileName: a.FileName, Kind: string(a.Kind), Size: len(a.Content)})
		}
	}
	return h.store.Record(ctx, b)
}

// notifier publishes build outcomes.
type notifier struct {
	pub notify.Publisher
}

func newNotify(_ map[string]any, deps Deps) (Plugin, error) {
	if deps.Notifier == nil {
		return nil, errMissingService("notify", "notify.url")
	}
	return &notifier{pub: deps.Notifier}, nil
}

func (n *notifier) Name() string { return "notify" }

func (n *notifier) Register(o *Orchestrator) {
	o.Register(HookPostEmit, n.Name(), n.run)
	o.Register(HookBuildFailed, n.Name(), n.run)
}

func (n *notifier) run(ctx context.Context, hc *HookContext) error {
	ev := notify.Event{
		BuildID:    hc.BuildID,
		Generation: hc.Generation,
		Mode:       hc.Mode.String(),
		Status:     string(history.StatusSuccess),
		DurationMS: time.Since(hc.Started).Milliseconds(),
		Artifacts:  hc.Emitted,
		Time:       time.Now().UTC(),
	}
	if hc.Err != nil {
		ev.Status = string(history.StatusFailed)
		ev.Error = hc.Err.Error()
		ev.Artifacts = nil
	}
	return n.pub.Publish(ctx, ev)
}

type missingServiceError struct {
	plugin, key string
}

func (e missingServiceError) Error() string {
	return "plugin " + e.plugin + " requires " + e.key + " to be configured"
}

func errMissingService(plugin, key string) error {
	return missingServiceError{plugin: plugin, key: key}
}
