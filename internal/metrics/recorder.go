package metrics

import "time"

// ResultLabel enumerates result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for builds, stages, module transforms,
// emitted artifacts and dev server activity.
type Recorder interface {
	ObserveBuildDuration(mode string, d time.Duration)
	ObserveStageDuration(stage string, d time.Duration)
	IncBuildOutcome(outcome ResultLabel)
	IncModuleTransform(result ResultLabel)
	IncMemoHit()
	AddArtifactsEmitted(n int)
	IncEmitRetry()
	IncRebuild(outcome ResultLabel)
	SetPushClients(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(string, time.Duration) {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncBuildOutcome(ResultLabel)                {}
func (NoopRecorder) IncModuleTransform(ResultLabel)             {}
func (NoopRecorder) IncMemoHit()                                {}
func (NoopRecorder) AddArtifactsEmitted(int)                    {}
func (NoopRecorder) IncEmitRetry()                              {}
func (NoopRecorder) IncRebuild(ResultLabel)                     {}
func (NoopRecorder) SetPushClients(int)                         {}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
