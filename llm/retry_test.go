package llm

import (
	"context"
	"testing"
	"time"
)

func retryableErr(kind ErrorKind) *Error {
	return newError(kind, "test-backend", "boom", nil)
}

func TestScheduleStopsOnNonRetryable(t *testing.T) {
	sched := RetryPolicy{}.newSchedule()
	if _, retry := sched.Next(retryableErr(KindInvalidAPIKey)); retry {
		t.Fatal("non-retryable kind must not be retried")
	}
	if _, retry := sched.Next(nil); retry {
		t.Fatal("nil error must not be retried")
	}
}

func TestScheduleDeterministicFloors(t *testing.T) {
	sched := RetryPolicy{MaxAttempts: 4}.newSchedule()

	delay1, retry := sched.Next(retryableErr(KindServerError))
	if !retry {
		t.Fatal("first failure should be retried")
	}
	if delay1 < 1*time.Second || delay1 >= 2*time.Second {
		t.Errorf("first delay = %v, want [1s, 2s)", delay1)
	}

	delay2, retry := sched.Next(retryableErr(KindServerError))
	if !retry {
		t.Fatal("second failure should be retried")
	}
	if delay2 < 2*time.Second || delay2 >= 3*time.Second {
		t.Errorf("second delay = %v, want [2s, 3s)", delay2)
	}

	delay3, retry := sched.Next(retryableErr(KindServerError))
	if !retry {
		t.Fatal("third failure should be retried")
	}
	if delay3 < 4*time.Second || delay3 >= 5*time.Second {
		t.Errorf("third delay = %v, want [4s, 5s)", delay3)
	}
}

func TestScheduleAttemptBudget(t *testing.T) {
	sched := RetryPolicy{MaxAttempts: 3}.newSchedule()

	if _, retry := sched.Next(retryableErr(KindServerError)); !retry {
		t.Fatal("attempt 1 failure should schedule attempt 2")
	}
	if _, retry := sched.Next(retryableErr(KindServerError)); !retry {
		t.Fatal("attempt 2 failure should schedule attempt 3")
	}
	if _, retry := sched.Next(retryableErr(KindServerError)); retry {
		t.Fatal("attempt 3 failure must exhaust the budget")
	}
}

func TestScheduleRateLimitExtendsBudget(t *testing.T) {
	sched := RetryPolicy{MaxAttempts: 3, RateLimitMaxAttempts: 5}.newSchedule()

	// Two plain retryable failures, then a rate limit: the budget grows.
	sched.Next(retryableErr(KindServerError))
	sched.Next(retryableErr(KindServerError))

	if _, retry := sched.Next(retryableErr(KindRateLimitExceeded)); !retry {
		t.Fatal("rate limit should extend the attempt budget")
	}
	if _, retry := sched.Next(retryableErr(KindServerError)); !retry {
		t.Fatal("extended budget should allow attempt 5")
	}
	if _, retry := sched.Next(retryableErr(KindServerError)); retry {
		t.Fatal("attempt 5 failure must exhaust the extended budget")
	}
}

func TestScheduleRetryAfterOverridesBackoff(t *testing.T) {
	sched := RetryPolicy{}.newSchedule()

	hint := 7 * time.Second
	e := retryableErr(KindRateLimitExceeded)
	e.RetryAfter = &hint

	delay, retry := sched.Next(e)
	if !retry {
		t.Fatal("rate limit with hint should be retried")
	}
	if delay != hint {
		t.Errorf("delay = %v, want the server hint %v", delay, hint)
	}
}

func TestScheduleMaxIntervalCap(t *testing.T) {
	sched := RetryPolicy{
		MaxAttempts:  10,
		InitialDelay: 1 * time.Second,
		MaxInterval:  2 * time.Second,
	}.newSchedule()

	for i := 0; i < 5; i++ {
		delay, retry := sched.Next(retryableErr(KindServerError))
		if !retry {
			t.Fatalf("failure %d should be retried", i+1)
		}
		if delay >= 3*time.Second {
			t.Errorf("delay %d = %v, want < MaxInterval + jitter", i+1, delay)
		}
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	sched := RetryPolicy{}.newSchedule()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sched.wait(ctx, time.Minute)
	if err == nil {
		t.Fatal("wait should fail when the context is cancelled")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("wait blocked %v despite cancellation", elapsed)
	}
}

func TestPolicyWithDefaults(t *testing.T) {
	p := RetryPolicy{}.withDefaults()
	if p.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", p.MaxAttempts, DefaultMaxAttempts)
	}
	if p.RateLimitMaxAttempts != DefaultRateLimitMaxAttempts {
		t.Errorf("RateLimitMaxAttempts = %d, want %d", p.RateLimitMaxAttempts, DefaultRateLimitMaxAttempts)
	}

	// The rate limit budget never shrinks below the base budget.
	p = RetryPolicy{MaxAttempts: 8, RateLimitMaxAttempts: 4}.withDefaults()
	if p.RateLimitMaxAttempts != 8 {
		t.Errorf("RateLimitMaxAttempts = %d, want floored to 8", p.RateLimitMaxAttempts)
	}
}
