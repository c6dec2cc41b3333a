package llm

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxAttempts is the default number of transport attempts per call.
	DefaultMaxAttempts = 3
	// DefaultRateLimitMaxAttempts applies once a call has seen a rate limit
	// error; bursty throttling should not exhaust a call's attempt budget.
	DefaultRateLimitMaxAttempts = 5
	// DefaultInitialDelay is the base delay for exponential backoff.
	DefaultInitialDelay = 1 * time.Second
	// DefaultMaxInterval caps a single computed backoff delay.
	DefaultMaxInterval = 60 * time.Second
	// StandardMultiplier is the multiplier for exponential backoff.
	StandardMultiplier = 2.0
)

// RetryPolicy holds the tunable knobs of the retry scheduler. The zero
// value is usable; unset fields fall back to the defaults above.
type RetryPolicy struct {
	MaxAttempts          int
	RateLimitMaxAttempts int
	InitialDelay         time.Duration
	MaxInterval          time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.RateLimitMaxAttempts <= 0 {
		p.RateLimitMaxAttempts = DefaultRateLimitMaxAttempts
	}
	if p.RateLimitMaxAttempts < p.MaxAttempts {
		p.RateLimitMaxAttempts = p.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = DefaultMaxInterval
	}
	return p
}

// retrySchedule tracks backoff state across the attempts of one logical
// call. One schedule per call; concurrent calls never share state.
type retrySchedule struct {
	policy   RetryPolicy
	attempt  int
	sawLimit bool
	interval backoff.BackOff
}

// newSchedule creates the per-call schedule. The exponential interval state
// is delegated to the backoff package with randomization disabled: the
// deterministic floor (base * 2^attempt) must hold so callers can reason
// about minimum elapsed time, and jitter is added separately on top.
func (p RetryPolicy) newSchedule() *retrySchedule {
	p = p.withDefaults()
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	eb.Multiplier = StandardMultiplier
	eb.RandomizationFactor = 0
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0 // Attempt-count bounded, not wall-clock bounded
	eb.Reset()
	return &retrySchedule{policy: p, interval: eb}
}

// Next decides whether the call should be retried after the given
// classified error, and with what delay. A server-supplied retry-after
// hint overrides the computed backoff. Non-retryable errors never wait.
func (s *retrySchedule) Next(e *Error) (time.Duration, bool) {
	if e == nil || !e.Retryable {
		return 0, false
	}

	if e.Kind == KindRateLimitExceeded {
		s.sawLimit = true
	}
	maxAttempts := s.policy.MaxAttempts
	if s.sawLimit {
		maxAttempts = s.policy.RateLimitMaxAttempts
	}

	s.attempt++
	if s.attempt >= maxAttempts {
		return 0, false
	}

	if e.RetryAfter != nil {
		return *e.RetryAfter, true
	}

	delay := s.interval.NextBackOff()
	if delay == backoff.Stop {
		return 0, false
	}
	// Jitter in [0, InitialDelay) decorrelates concurrent callers without
	// dropping below the deterministic floor.
	delay += time.Duration(rand.Int63n(int64(s.policy.InitialDelay)))
	return delay, true
}

// wait suspends the current call for the given delay without blocking any
// sibling call, honoring cancellation.
func (s *retrySchedule) wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
