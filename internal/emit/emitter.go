package emit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
	"git.home.luguber.info/inful/assetbuilder/internal/metrics"
	"git.home.luguber.info/inful/assetbuilder/internal/retry"
)

// ErrDuplicateName is reported when two artifacts render to the same file name.
var ErrDuplicateName = errors.New("duplicate artifact file name")

// FailedWrite names an artifact that could not be written.
type FailedWrite struct {
	FileName string
	Err      error
}

// EmitError reports the artifacts that failed to land. Written lists what
// was written before or despite the failures; partial output is possible.
type EmitError struct {
	Failed  []FailedWrite
	Written []string
}

func (e *EmitError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		parts[i] = fmt.Sprintf("%s: %v", f.FileName, f.Err)
	}
	return fmt.Sprintf("emit failed for %d artifact(s): %s", len(e.Failed), strings.Join(parts, "; "))
}

func (e *EmitError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}
	return errs
}

func (e *EmitError) Classify() *ferrors.ClassifiedError {
	names := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		names[i] = f.FileName
	}
	return ferrors.WrapError(errors.Join(e.Unwrap()...), ferrors.CategoryEmit, e.Error()).
		Fatal().
		WithContext("failed", names).
		WithContext("written", len(e.Written)).
		Build()
}

// Result lists what an emission wrote.
type Result struct {
	Written []string
	Bytes   int64
}

// Options configures an Emitter.
type Options struct {
	Retry    retry.Policy
	Recorder metrics.Recorder
	Logger   *slog.Logger
}

// Emitter writes artifacts to a target.
type Emitter struct {
	target   Target
	retry    retry.Policy
	recorder metrics.Recorder
	logger   *slog.Logger
}

// New creates an emitter for target. A zero retry policy means no retries.
func New(target Target, opts Options) *Emitter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		target:   target,
		retry:    opts.Retry,
		recorder: metrics.OrNoop(opts.Recorder),
		logger:   logger,
	}
}

// Emit renders missing file names and writes every artifact in order. Name
// collisions fail the emission before anything is written. A failed write
// does not stop the others; the returned Result lists what landed and the
// error is an *EmitError naming what did not.
func (e *Emitter) Emit(ctx context.Context, artifacts []*Artifact) (*Result, error) {
	start := time.Now()
	seen := make(map[string]bool, len(artifacts))
	var dups []FailedWrite
	for _, a := range artifacts {
		if a.FileName == "" {
			name, err := Render(a.Template, a)
			if err != nil {
				return nil, err
			}
			a.FileName = name
		}
		if seen[a.FileName] {
			dups = append(dups, FailedWrite{FileName: a.FileName, Err: ErrDuplicateName})
		}
		seen[a.FileName] = true
	}
	if len(dups) > 0 {
		return &Result{}, &EmitError{Failed: dups}
	}

	res := &Result{}
	var failed []FailedWrite
	for _, a := range artifacts {
		err := e.retry.Do(ctx, func() error {
			return e.target.WriteFile(ctx, a.FileName, a.Content)
		}, retryable, func(attempt int, err error) {
			e.recorder.IncEmitRetry()
			e.logger.Warn("Retrying artifact write",
				logfields.Artifact(a.FileName), slog.Int("attempt", attempt), logfields.Error(err))
		})
		if err != nil {
			failed = append(failed, FailedWrite{FileName: a.FileName, Err: err})
			continue
		}
		res.Written = append(res.Written, a.FileName)
		res.Bytes += int64(len(a.Content))
	}

	e.recorder.AddArtifactsEmitted(len(res.Written))
	e.recorder.ObserveStageDuration("emit", time.Since(start))
	if len(failed) > 0 {
		return res, &EmitError{Failed: failed, Written: res.Written}
	}
	e.logger.Debug("Artifacts emitted", logfields.Count(len(res.Written)), logfields.Since(start))
	return res, nil
}

func retryable(err error) bool {
	return !errors.Is(err, ErrInvalidName) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
