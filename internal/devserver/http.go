package devserver

import (
	"encoding/json"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/gzhttp"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
)

// Status is the JSON document served at /__assetbuilder/status.
type Status struct {
	State      State                      `json:"state"`
	Mode       string                     `json:"mode"`
	Generation uint64                     `json:"generation"`
	BuildID    string                     `json:"build_id,omitempty"`
	BuiltAt    string                     `json:"built_at,omitempty"`
	Files      []string                   `json:"files"`
	Attempted  uint64                     `json:"attempted_generation"`
	Changed    []string                   `json:"changed,omitempty"`
	Error      *ferrors.HTTPErrorResponse `json:"error,omitempty"`
	Clients    int                        `json:"clients"`
	LiveReload bool                       `json:"live_reload"`
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+pathStatus, s.serveStatus)
	if s.liveReload {
		mux.HandleFunc("GET "+pathEvents, s.hub.ServeSSE)
		mux.HandleFunc("GET "+pathWS, s.hub.ServeWS)
		mux.HandleFunc("GET "+pathClient, serveClient)
	}
	if s.registry != nil {
		mux.Handle("GET /metrics", metrics.HTTPHandler(s.registry))
	}
	var artifacts http.Handler = http.HandlerFunc(s.serveArtifact)
	if s.cfg.DevServer.Compress {
		artifacts = gzhttp.GzipHandler(artifacts)
	}
	mux.Handle("GET /", artifacts)
	return mux
}

// Status reports the server state.
func (s *Server) Status() Status {
	s.mu.Lock()
	st := Status{
		State:      s.state,
		Mode:       s.svc.Mode().String(),
		Files:      []string{},
		LiveReload: s.liveReload,
	}
	if g := s.good; g != nil {
		st.Generation = g.generation
		st.BuildID = g.buildID
		st.BuiltAt = g.built.UTC().Format(time.RFC3339)
		st.Files = g.files.Files()
	}
	if r := s.last; r != nil {
		st.Attempted = r.Generation
		st.Changed = r.Changed
	}
	if s.lastErr != nil {
		resp := s.errs.FormatErrorResponse(s.lastErr)
		st.Error = &resp
	}
	s.mu.Unlock()
	st.Clients = s.hub.Clients()
	return st
}

func (s *Server) serveStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	_ = json.NewEncoder(w).Encode(s.Status())
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snap, lastErr, state := s.good, s.lastErr, s.state
	s.mu.Unlock()

	if snap == nil {
		err := lastErr
		if err == nil {
			err = ferrors.ServerError("no build available").WithContext("state", string(state)).Build()
		}
		s.errs.WriteErrorResponse(w, r, err)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	data, ok := snap.files.ReadFile(name)
	if !ok {
		name = path.Join(name, "index.html")
		data, ok = snap.files.ReadFile(name)
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	if s.liveReload && strings.HasPrefix(ctype, "text/html") {
		data = injectClient(data)
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}
