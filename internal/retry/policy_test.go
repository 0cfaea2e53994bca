package retry

import (
	"context"
	"testing"
	"time"

	"github.com/Iron-Ham/monosplit/internal/config"
	"github.com/Iron-Ham/monosplit/internal/errors"
)

func TestPolicy_Backoff(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 8 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_ThrottleDelay(t *testing.T) {
	p := Policy{DefaultRetryAfter: time.Minute, MaxRateLimitWait: 5 * time.Minute}

	if got := p.ThrottleDelay(0); got != time.Minute {
		t.Errorf("ThrottleDelay(0) = %v, want default 1m", got)
	}
	if got := p.ThrottleDelay(30 * time.Second); got != 30*time.Second {
		t.Errorf("ThrottleDelay(30s) = %v, want 30s", got)
	}
	if got := p.ThrottleDelay(time.Hour); got != 5*time.Minute {
		t.Errorf("ThrottleDelay(1h) = %v, want capped 5m", got)
	}
}

// recordingSleep replaces real waiting in Executor tests.
type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func newTestExecutor(policy Policy, breaker *Breaker) (*Executor, *recordingSleep) {
	rec := &recordingSleep{}
	e := NewExecutor(policy, breaker, nil, nil, nil)
	e.sleep = rec.sleep
	return e, rec
}

func testPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		BaseDelay:         time.Second,
		MaxDelay:          8 * time.Second,
		DefaultRetryAfter: time.Minute,
		MaxRateLimitWait:  10 * time.Minute,
		MaxRateLimitWaits: 2,
	}
}

func TestExecutor_SucceedsAfterTransientFailures(t *testing.T) {
	e, rec := newTestExecutor(testPolicy(), nil)
	calls := 0

	err := e.Do(context.Background(), "web/create", nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.NewProviderError("create", errors.ProviderTransient, nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(rec.waits) != 2 || rec.waits[0] != time.Second || rec.waits[1] != 2*time.Second {
		t.Errorf("waits = %v, want [1s 2s]", rec.waits)
	}
	if state := e.Manager().GetState("web/create"); !state.Succeeded || state.Attempts != 3 {
		t.Errorf("state = %+v", state)
	}
}

func TestExecutor_GivesUpAfterMaxAttempts(t *testing.T) {
	e, rec := newTestExecutor(testPolicy(), nil)
	calls := 0

	err := e.Do(context.Background(), "k", nil, func(context.Context) error {
		calls++
		return errors.NewProviderError("create", errors.ProviderTransient, nil)
	})
	if !errors.Is(err, errors.ErrProviderUnavailable) {
		t.Fatalf("Do() = %v, want transient provider error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(rec.waits) != 2 {
		t.Errorf("waits = %v, want 2 backoffs", rec.waits)
	}
}

func TestExecutor_AuthErrorNotRetried(t *testing.T) {
	e, rec := newTestExecutor(testPolicy(), nil)
	calls := 0

	err := e.Do(context.Background(), "k", nil, func(context.Context) error {
		calls++
		return errors.NewProviderError("create", errors.ProviderAuth, nil).WithStatus(401)
	})
	if !errors.Is(err, errors.ErrUnauthorized) {
		t.Fatalf("Do() = %v, want auth error", err)
	}
	if calls != 1 || len(rec.waits) != 0 {
		t.Errorf("calls = %d waits = %v, want a single attempt without waiting", calls, rec.waits)
	}
}

func TestExecutor_RateLimitedUsesRetryAfter(t *testing.T) {
	e, rec := newTestExecutor(testPolicy(), nil)
	calls := 0

	err := e.Do(context.Background(), "k", nil, func(context.Context) error {
		calls++
		switch calls {
		case 1:
			return errors.NewProviderError("create", errors.ProviderRateLimited, nil).WithRetryAfter(30 * time.Second)
		case 2:
			return errors.NewProviderError("create", errors.ProviderRateLimited, nil)
		default:
			return nil
		}
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if len(rec.waits) != 2 || rec.waits[0] != 30*time.Second || rec.waits[1] != time.Minute {
		t.Errorf("waits = %v, want [30s 1m]", rec.waits)
	}
	if state := e.Manager().GetState("k"); state.RateLimitWaits != 2 || state.Attempts != 1 {
		t.Errorf("state = %+v, want 2 waits and 1 counted attempt", state)
	}
}

func TestExecutor_RateLimitWaitsBounded(t *testing.T) {
	e, _ := newTestExecutor(testPolicy(), nil)
	calls := 0

	err := e.Do(context.Background(), "k", nil, func(context.Context) error {
		calls++
		return errors.NewProviderError("create", errors.ProviderRateLimited, nil)
	})
	if !errors.Is(err, errors.ErrRateLimited) {
		t.Fatalf("Do() = %v, want rate limited", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 waits)", calls)
	}
}

func TestExecutor_BreakerStopsCalls(t *testing.T) {
	breaker := NewBreaker("github", 2, time.Hour)
	policy := testPolicy()
	policy.MaxAttempts = 5
	e, _ := newTestExecutor(policy, breaker)
	calls := 0

	err := e.Do(context.Background(), "k", nil, func(context.Context) error {
		calls++
		return errors.NewProviderError("create", errors.ProviderTransient, nil)
	})
	if !errors.Is(err, errors.ErrCircuitOpen) {
		t.Fatalf("Do() = %v, want circuit open", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}

	err = e.Do(context.Background(), "other", nil, func(context.Context) error {
		t.Error("fn called while circuit open")
		return nil
	})
	if !errors.Is(err, errors.ErrCircuitOpen) {
		t.Errorf("second Do() = %v, want circuit open", err)
	}
}

func TestExecutor_GateWaitsForReset(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	gate := NewGate(10, 15*time.Minute)
	gate.now = func() time.Time { return now }

	rec := &recordingSleep{}
	e := NewExecutor(testPolicy(), nil, gate, nil, nil)
	e.sleep = rec.sleep

	quota := func() Quota {
		return Quota{Known: true, Remaining: 3, Reset: now.Add(90 * time.Second)}
	}
	if err := e.Do(context.Background(), "k", quota, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Do() = %v", err)
	}
	if len(rec.waits) != 1 || rec.waits[0] != 90*time.Second {
		t.Errorf("waits = %v, want [1m30s]", rec.waits)
	}
}

func TestExecutor_CanceledContext(t *testing.T) {
	e, _ := newTestExecutor(testPolicy(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Do(ctx, "k", nil, func(context.Context) error {
		t.Error("fn called with canceled context")
		return nil
	})
	if err == nil {
		t.Error("Do() = nil, want context error")
	}
}

func TestNewExecutorFromConfig(t *testing.T) {
	e := NewExecutorFromConfig("gitlab", config.Default().Retry, nil)
	if e.Breaker() == nil || e.Manager() == nil || e.gate == nil {
		t.Fatal("NewExecutorFromConfig() left collaborators nil")
	}
	if e.policy.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", e.policy.MaxAttempts)
	}
}

func TestExecutor_HalfOpenTrialEndingInAuthError(t *testing.T) {
	breaker, clock := newTestBreaker(1, time.Minute)
	policy := testPolicy()
	policy.MaxAttempts = 1
	e, _ := newTestExecutor(policy, breaker)

	_ = e.Do(context.Background(), "a", nil, func(context.Context) error {
		return errors.NewProviderError("create", errors.ProviderTransient, nil)
	})
	clock.advance(time.Minute)

	err := e.Do(context.Background(), "b", nil, func(context.Context) error {
		return errors.NewProviderError("create", errors.ProviderAuth, nil).WithStatus(401)
	})
	if !errors.Is(err, errors.ErrUnauthorized) {
		t.Fatalf("trial Do() = %v, want auth error", err)
	}

	clock.advance(time.Hour)
	calls := 0
	err = e.Do(context.Background(), "c", nil, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("Do() after auth trial = %v with %d calls, want success", err, calls)
	}
	if breaker.State() != StateClosed {
		t.Errorf("State() = %v, want closed", breaker.State())
	}
}

func TestExecutor_HalfOpenTrialRateLimitedIsRetried(t *testing.T) {
	breaker, clock := newTestBreaker(1, time.Minute)
	policy := testPolicy()
	policy.MaxAttempts = 1
	e, rec := newTestExecutor(policy, breaker)

	_ = e.Do(context.Background(), "a", nil, func(context.Context) error {
		return errors.NewProviderError("create", errors.ProviderTransient, nil)
	})
	clock.advance(time.Minute)

	calls := 0
	err := e.Do(context.Background(), "b", nil, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.NewProviderError("create", errors.ProviderRateLimited, nil).WithRetryAfter(5 * time.Second)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want the throttled call to be retried", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(rec.waits) != 1 || rec.waits[0] != 5*time.Second {
		t.Errorf("waits = %v, want [5s]", rec.waits)
	}
}
