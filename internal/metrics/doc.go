// Package metrics records pipeline observability data.
//
// Components receive a Recorder through their options and default to
// NoopRecorder, so metrics collection never needs nil checks:
//
//	builder := graph.NewBuilder(resolver, set, registry, graph.Options{
//	    Recorder: metrics.NoopRecorder{},
//	})
//
// The dev server swaps in a PrometheusRecorder when metrics are enabled and
// serves it from /metrics through HTTPHandler.
package metrics
