package engine

import (
	"context"
	"time"

	"github.com/admitflow/admitflow/pkg/config"
)

// RetryPolicy governs one step's resolve+act unit. MaxRetries is the
// number of retries after the first attempt; every retryable failure
// kind consumes the same shared budget. Delay is fixed per attempt
// unless Multiplier is set above 1.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
	Multiplier float64
}

// DefaultRetryPolicy is the engine-wide fallback when neither the step
// nor the phase declares retry settings.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: config.DefaultMaxRetries,
		Delay:      time.Duration(config.DefaultRetryDelay) * time.Second,
		Multiplier: 1.0,
	}
}

// EffectivePolicy resolves a step's retry settings: step override beats
// phase default beats the engine-wide default.
func EffectivePolicy(step config.Step, phase config.Phase, engineDefault RetryPolicy) RetryPolicy {
	p := engineDefault
	if p.Multiplier <= 0 {
		p.Multiplier = 1.0
	}
	if phase.MaxRetries > 0 {
		p.MaxRetries = phase.MaxRetries
	}
	if phase.RetryDelay > 0 {
		p.Delay = time.Duration(phase.RetryDelay) * time.Second
	}
	if step.MaxRetries != nil {
		p.MaxRetries = *step.MaxRetries
	}
	if step.RetryDelay != nil {
		p.Delay = time.Duration(*step.RetryDelay) * time.Second
	}
	return p
}

// Do runs fn up to MaxRetries+1 times, waiting Delay (grown by
// Multiplier) between attempts. Non-retryable failures (config errors
// and anything unclassified) return immediately. attempt is 1-based.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	delay := p.Delay
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1.0
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxRetries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return timeoutErr(err)
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !KindOf(lastErr).Retryable() {
			return lastErr
		}
		if attempt == p.MaxRetries+1 {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return timeoutErr(ctx.Err())
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * mult)
	}
	return lastErr
}
