package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveBuildDuration("production", time.Second)
	r.IncModuleTransform(ResultSuccess)
	r.SetPushClients(3)

	if _, ok := OrNoop(nil).(NoopRecorder); !ok {
		t.Fatal("OrNoop(nil) must return NoopRecorder")
	}
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveBuildDuration("development", 120*time.Millisecond)
	pr.ObserveStageDuration("graph", 80*time.Millisecond)
	pr.IncBuildOutcome(ResultSuccess)
	pr.IncModuleTransform(ResultFatal)
	pr.IncMemoHit()
	pr.AddArtifactsEmitted(3)
	pr.IncEmitRetry()
	pr.IncRebuild(ResultSuccess)
	pr.SetPushClients(2)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) != 9 {
		t.Fatalf("expected 9 metric families, got %d", len(mfs))
	}
}

func TestHTTPHandlerServesMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).AddArtifactsEmitted(4)

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "assetbuilder_artifacts_emitted_total 4") {
		t.Fatalf("expected artifacts counter in output, got:\n%s", body)
	}
}
