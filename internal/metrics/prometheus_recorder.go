package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "assetbuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	buildDuration *prom.HistogramVec
	stageDuration *prom.HistogramVec
	buildOutcome  *prom.CounterVec
	transforms    *prom.CounterVec
	memoHits      prom.Counter
	artifacts     prom.Counter
	emitRetries   prom.Counter
	rebuilds      *prom.CounterVec
	pushClients   prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of complete build generations",
			Buckets:   prom.DefBuckets,
		}, []string{"mode"}),
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		transforms: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "module_transforms_total",
			Help:      "Transformer chain executions by result",
		}, []string{"result"}),
		memoHits: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "module_memo_hits_total",
			Help:      "Module requests served from the per-generation memo",
		}),
		artifacts: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_emitted_total",
			Help:      "Artifacts written by the emitter",
		}),
		emitRetries: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "emit_retries_total",
			Help:      "Artifact write retries after transient failures",
		}),
		rebuilds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dev_rebuilds_total",
			Help:      "Dev server rebuilds by outcome",
		}, []string{"outcome"}),
		pushClients: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "dev_push_clients",
			Help:      "Connected live update clients",
		}),
	}
	reg.MustRegister(pr.buildDuration, pr.stageDuration, pr.buildOutcome, pr.transforms,
		pr.memoHits, pr.artifacts, pr.emitRetries, pr.rebuilds, pr.pushClients)
	return pr
}

func (p *PrometheusRecorder) ObserveBuildDuration(mode string, d time.Duration) {
	p.buildDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome ResultLabel) {
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncModuleTransform(result ResultLabel) {
	p.transforms.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncMemoHit() { p.memoHits.Inc() }

func (p *PrometheusRecorder) AddArtifactsEmitted(n int) { p.artifacts.Add(float64(n)) }

func (p *PrometheusRecorder) IncEmitRetry() { p.emitRetries.Inc() }

func (p *PrometheusRecorder) IncRebuild(outcome ResultLabel) {
	p.rebuilds.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) SetPushClients(n int) { p.pushClients.Set(float64(n)) }

// HTTPHandler serves the metrics of reg in the Prometheus exposition format.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
