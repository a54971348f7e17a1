// Package devserver serves the last good build over HTTP, rebuilds on
// source changes, and pushes updates to connected browsers.
package devserver

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	"git.home.luguber.info/inful/assetbuilder/internal/emit"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/graph"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/pipeline"
	"git.home.luguber.info/inful/assetbuilder/internal/transform"
)

// State is the lifecycle state of the server.
type State string

const (
	StateIdle       State = "idle"
	StateBuilding   State = "building"
	StateServing    State = "serving"
	StateRebuilding State = "rebuilding"
)

const shutdownTimeout = 5 * time.Second

// Options configure a Server.
type Options struct {
	// Registry exposes /metrics when non-nil.
	Registry *prom.Registry
	Recorder metrics.Recorder
	Logger   *slog.Logger

	// Disk receives every generation next to the in-memory copy when
	// dev_server.write_to_disk is set. It defaults to output.path.
	Disk emit.Target
}

// Server is the development server.
type Server struct {
	cfg        *config.Config
	svc        *pipeline.Service
	hub        *Hub
	registry   *prom.Registry
	recorder   metrics.Recorder
	logger     *slog.Logger
	errs       *ferrors.HTTPErrorAdapter
	disk       emit.Target
	liveReload bool
	hot        bool
	ids        func(file string) (string, bool)

	mu      sync.Mutex
	state   State
	good    *snapshot
	last    *pipeline.BuildResult
	lastErr error
	running bool
	pending map[string]bool
	full    bool
	idle    chan struct{}
}

// snapshot is an immutable emitted generation.
type snapshot struct {
	files      *emit.MemoryTarget
	kinds      map[string]emit.Kind
	generation uint64
	buildID    string
	built      time.Time
}

// New creates a server around svc. The service must not be shared with
// other callers while the server runs.
func New(cfg *config.Config, svc *pipeline.Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := metrics.OrNoop(opts.Recorder)
	s := &Server{
		cfg:        cfg,
		svc:        svc,
		hub:        NewHub(recorder, logger),
		registry:   opts.Registry,
		recorder:   recorder,
		logger:     logger,
		errs:       ferrors.NewHTTPErrorAdapter(logger),
		disk:       opts.Disk,
		liveReload: cfg.LiveReloadEnabled(svc.Mode()),
		hot:        cfg.DevServer.ScriptUpdate == config.ScriptUpdateHot,
		state:      StateIdle,
		pending:    make(map[string]bool),
	}
	if s.disk == nil && cfg.DevServer.WriteToDisk {
		s.disk = emit.NewDirTarget(cfg.Output.Path)
	}
	if m, ok := svc.Resolver().(interface{ ID(string) (string, bool) }); ok {
		s.ids = m.ID
	} else {
		s.ids = relativeTo(cfg.Context)
	}
	return s
}

func relativeTo(root string) func(string) (string, bool) {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return func(file string) (string, bool) {
		rel, err := filepath.Rel(root, file)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", false
		}
		return filepath.ToSlash(rel), true
	}
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Hub returns the push hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.DevServer.Host, strconv.Itoa(s.cfg.DevServer.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryServer, "listen failed").
			WithContext("addr", addr).Build()
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln: the initial build, the HTTP endpoints, the
// file watcher, and the optional resync job. A failed initial build is
// reported and the server keeps running.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- httpSrv.Serve(ln) }()
	s.logger.Info("Dev server listening",
		slog.String("url", "http://"+ln.Addr().String()),
		slog.Bool("live_reload", s.liveReload))

	defer s.shutdown(httpSrv)

	if err := s.InitialBuild(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("Initial build failed; waiting for changes", logfields.Error(err))
	}

	watcher, err := NewWatcher(s.cfg.DevServer.Watch, []string{s.cfg.Output.Path},
		s.cfg.DevServer.DebounceDuration(), func(paths []string) { s.onFiles(ctx, paths) }, s.logger)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "watch failed").Build()
	}
	go func() { _ = watcher.Run(ctx) }()

	if interval := s.cfg.DevServer.ResyncDuration(); interval > 0 {
		sched, err := s.scheduleResync(ctx, interval)
		if err != nil {
			return err
		}
		defer func() { _ = sched.Shutdown() }()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return ferrors.WrapError(err, ferrors.CategoryServer, "http server failed").Build()
	}
}

func (s *Server) scheduleResync(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "create scheduler").Build()
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.Resync(ctx) }),
		gocron.WithName("resync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "schedule resync").Build()
	}
	sched.Start()
	s.logger.Info("Resync scheduled", slog.Duration("interval", interval))
	return sched, nil
}

func (s *Server) shutdown(httpSrv *http.Server) {
	s.logger.Info("Shutting down dev server")
	s.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown error", logfields.Error(err))
	}
	_ = s.WaitIdle(ctx)
}

// InitialBuild runs a full generation and waits for it.
func (s *Server) InitialBuild(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateBuilding
	s.mu.Unlock()
	s.schedule(ctx, nil, true)
	if err := s.WaitIdle(ctx); err != nil {
		return err
	}
	return s.LastError()
}

// Changed schedules an incremental rebuild for the given module identifiers.
// While a rebuild is in flight, changes accumulate into one follow-up.
func (s *Server) Changed(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	s.schedule(ctx, ids, false)
}

// Resync schedules a full rebuild.
func (s *Server) Resync(ctx context.Context) {
	s.schedule(ctx, nil, true)
}

func (s *Server) onFiles(ctx context.Context, paths []string) {
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		if id, ok := s.ids(p); ok {
			ids = append(ids, id)
		}
	}
	s.Changed(ctx, ids...)
}

func (s *Server) schedule(ctx context.Context, ids []string, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.pending[id] = true
	}
	s.full = s.full || full
	if s.running {
		return
	}
	s.running = true
	s.idle = make(chan struct{})
	go s.rebuildLoop(ctx)
}

// WaitIdle blocks until no rebuild is in flight or pending.
func (s *Server) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastError returns the error of the latest generation, or nil when it
// succeeded.
func (s *Server) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Server) rebuildLoop(ctx context.Context) {
	for {
		s.mu.Lock()
		if ctx.Err() != nil || (len(s.pending) == 0 && !s.full) {
			s.running = false
			close(s.idle)
			s.mu.Unlock()
			return
		}
		changed := slices.Sorted(maps.Keys(s.pending))
		full := s.full
		clear(s.pending)
		s.full = false
		if s.state == StateServing {
			s.state = StateRebuilding
		} else {
			s.state = StateBuilding
		}
		s.mu.Unlock()

		s.generate(ctx, changed, full)
	}
}

func (s *Server) generate(ctx context.Context, changed []string, full bool) {
	mem := emit.NewMemoryTarget()
	var target emit.Target = mem
	if s.disk != nil {
		target = emit.MultiTarget{mem, s.disk}
	}
	res, err := s.svc.Run(ctx, pipeline.BuildRequest{Changed: changed, Full: full, Target: target})

	s.mu.Lock()
	s.state = StateServing
	s.last = res
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.recorder.IncRebuild(metrics.ResultCanceled)
			return
		}
		s.recorder.IncRebuild(metrics.ResultFatal)
		s.logger.Warn("Rebuild failed; serving last good build",
			logfields.Generation(res.Generation),
			logfields.Error(err))
		s.hub.Broadcast(Message{
			Kind:       KindBuildError,
			Payload:    s.errs.FormatErrorResponse(err),
			Generation: res.Generation,
		})
		return
	}
	prev, recovered := s.good, s.lastErr != nil
	next := newSnapshot(res, mem)
	s.good = next
	s.lastErr = nil
	s.mu.Unlock()

	outcome := metrics.ResultSuccess
	if len(res.Diagnostics) > 0 {
		outcome = metrics.ResultWarning
	}
	s.recorder.IncRebuild(outcome)

	if msg, ok := s.updateMessage(prev, next, res); ok {
		s.hub.Broadcast(msg)
	} else if recovered && prev != nil {
		// Clears the error overlay of clients even without new output.
		s.hub.Broadcast(Message{Kind: KindFullReload, Generation: res.Generation})
	}
}

func newSnapshot(res *pipeline.BuildResult, files *emit.MemoryTarget) *snapshot {
	kinds := make(map[string]emit.Kind)
	for _, a := range res.Artifacts() {
		kinds[a.FileName] = a.Kind
	}
	return &snapshot{
		files:      files,
		kinds:      kinds,
		generation: res.Generation,
		buildID:    res.BuildID,
		built:      res.EndTime,
	}
}

// updateMessage decides how clients apply a successful generation. Style
// changes are swapped in place, script changes follow the script update
// policy, and everything else reloads the page.
func (s *Server) updateMessage(prev, next *snapshot, res *pipeline.BuildResult) (Message, bool) {
	msg := Message{Generation: res.Generation}
	if prev == nil {
		return msg, false
	}
	var styles, scripts, others, removed []string
	for _, name := range next.files.Files() {
		data, _ := next.files.ReadFile(name)
		if old, ok := prev.files.ReadFile(name); ok && bytes.Equal(old, data) {
			continue
		}
		switch next.kinds[name] {
		case emit.KindStyle:
			styles = append(styles, name)
		case emit.KindScript:
			scripts = append(scripts, name)
		case emit.KindManifest:
		default:
			others = append(others, name)
		}
	}
	for _, name := range prev.files.Files() {
		if _, ok := next.files.ReadFile(name); !ok {
			removed = append(removed, name)
		}
	}
	if len(styles)+len(scripts)+len(others)+len(removed) == 0 {
		return msg, false
	}

	oldStyles, oldScripts := filterKind(prev, removed, emit.KindStyle), filterKind(prev, removed, emit.KindScript)
	switch {
	case !res.Incremental:
		msg.Kind = KindFullReload
	case onlyKind(res.Graph, res.Changed, transform.KindStyle) && len(styles) > 0 &&
		len(scripts)+len(others) == 0 && len(oldStyles) == len(removed):
		msg.Kind = KindStyleUpdate
		msg.Payload = UpdatePayload{Files: styles, Removed: oldStyles}
	case s.hot && len(scripts) > 0 && len(others) == 0 && len(oldScripts) == len(removed):
		msg.Kind = KindScriptUpdate
		msg.Payload = UpdatePayload{Files: scripts, Removed: oldScripts}
	default:
		msg.Kind = KindFullReload
	}
	return msg, true
}

// onlyKind reports whether every changed module has kind k. Deleted modules
// have no kind and never qualify.
func onlyKind(g *graph.Graph, changed []string, k transform.Kind) bool {
	if g == nil || len(changed) == 0 {
		return false
	}
	for _, id := range changed {
		m, ok := g.Module(id)
		if !ok || m.Kind != k {
			return false
		}
	}
	return true
}

func filterKind(snap *snapshot, names []string, k emit.Kind) []string {
	var out []string
	for _, n := range names {
		if snap.kinds[n] == k {
			out = append(out, n)
		}
	}
	return out
}
