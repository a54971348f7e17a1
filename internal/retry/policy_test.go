package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, config.RetryBackoffLinear, p.Mode)
	assert.Equal(t, 50*time.Millisecond, p.Initial)
	assert.Equal(t, time.Second, p.Max)
	assert.Equal(t, 2, p.MaxRetries)
}

func TestNewPolicyOverrides(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	// initial > max -> clamped
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, 2*time.Second, p.Max)
	assert.Equal(t, config.RetryBackoffFixed, p.Mode)
	assert.Equal(t, 5, p.MaxRetries)
}

func TestFromConfig(t *testing.T) {
	p := FromConfig(config.RetryConfig{
		MaxRetries:   3,
		Backoff:      config.RetryBackoffExponential,
		InitialDelay: "10ms",
		MaxDelay:     "40ms",
	})
	assert.Equal(t, Policy{Mode: config.RetryBackoffExponential, Initial: 10 * time.Millisecond, Max: 40 * time.Millisecond, MaxRetries: 3}, p)
}

func TestDelayModes(t *testing.T) {
	fixed := NewPolicy(config.RetryBackoffFixed, 100*time.Millisecond, 500*time.Millisecond, 3)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, 100*time.Millisecond, fixed.Delay(i))
	}

	linear := NewPolicy(config.RetryBackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5)
	for attempt, want := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 250 * time.Millisecond, 4: 250 * time.Millisecond} {
		assert.Equal(t, want, linear.Delay(attempt), "linear attempt %d", attempt)
	}

	exp := NewPolicy(config.RetryBackoffExponential, 50*time.Millisecond, 160*time.Millisecond, 5)
	for attempt, want := range map[int]time.Duration{1: 50 * time.Millisecond, 2: 100 * time.Millisecond, 3: 160 * time.Millisecond, 4: 160 * time.Millisecond} {
		assert.Equal(t, want, exp.Delay(attempt), "exponential attempt %d", attempt)
	}
}

func TestDelayEdgeCases(t *testing.T) {
	p := NewPolicy(config.RetryBackoffLinear, 10*time.Millisecond, 20*time.Millisecond, 1)
	assert.Zero(t, p.Delay(0))
	assert.Zero(t, p.Delay(-1))
}

func TestValidate(t *testing.T) {
	assert.Error(t, Policy{Mode: config.RetryBackoffLinear, Max: time.Second, MaxRetries: 1}.Validate())
	assert.Error(t, Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, MaxRetries: 1}.Validate())
	assert.Error(t, Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 2 * time.Second, MaxRetries: -1}.Validate())
	assert.NoError(t, Policy{Mode: config.RetryBackoffLinear, Initial: time.Second, Max: 2 * time.Second}.Validate())
}

func TestUnknownModeFallsBack(t *testing.T) {
	p := NewPolicy("weird", 250*time.Millisecond, 500*time.Millisecond, 1)
	assert.Equal(t, config.RetryBackoffLinear, p.Mode)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 3)
	calls := 0
	var retried []int
	err := p.Do(t.Context(), func() error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	}, nil, func(attempt int, _ error) { retried = append(retried, attempt) })
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 5)
	permanent := errors.New("permanent")
	calls := 0
	err := p.Do(t.Context(), func() error {
		calls++
		return permanent
	}, func(err error) bool { return !errors.Is(err, permanent) }, nil)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)
	calls := 0
	err := p.Do(t.Context(), func() error {
		calls++
		return errors.New("busy")
	}, nil, nil)
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, time.Hour, time.Hour, 5)
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	err := p.Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("busy")
	}, nil, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
