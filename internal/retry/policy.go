package retry

import (
	"context"
	"time"

	"github.com/Iron-Ham/monosplit/internal/config"
	"github.com/Iron-Ham/monosplit/internal/errors"
	"github.com/Iron-Ham/monosplit/internal/logging"
)

// Policy holds the backoff and throttle limits for provider calls.
type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	DefaultRetryAfter time.Duration
	MaxRateLimitWait  time.Duration
	MaxRateLimitWaits int
}

// PolicyFromConfig builds a Policy from the retry section.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:       cfg.MaxAttempts,
		BaseDelay:         cfg.BaseDelay,
		MaxDelay:          cfg.MaxDelay,
		DefaultRetryAfter: cfg.DefaultRetryAfter,
		MaxRateLimitWait:  cfg.MaxRateLimitWait,
		MaxRateLimitWaits: cfg.MaxRateLimitWaits,
	}
}

// Backoff returns the delay before retry number attempt (0-based):
// min(BaseDelay * 2^attempt, MaxDelay).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// ThrottleDelay returns how long to wait after a rate-limited response.
func (p Policy) ThrottleDelay(retryAfter time.Duration) time.Duration {
	d := retryAfter
	if d <= 0 {
		d = p.DefaultRetryAfter
	}
	if p.MaxRateLimitWait > 0 && d > p.MaxRateLimitWait {
		d = p.MaxRateLimitWait
	}
	return d
}

// Executor runs provider calls under a Policy, a Breaker and a Gate.
// One Executor is built per run and shared by every unit of that run.
type Executor struct {
	policy  Policy
	breaker *Breaker
	gate    *Gate
	manager *Manager
	logger  *logging.Logger
	sleep   func(context.Context, time.Duration) error
}

// NewExecutor wires the collaborators together. A nil gate disables quota
// waiting; a nil logger discards output.
func NewExecutor(policy Policy, breaker *Breaker, gate *Gate, manager *Manager, logger *logging.Logger) *Executor {
	if manager == nil {
		manager = NewManager()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Executor{
		policy:  policy,
		breaker: breaker,
		gate:    gate,
		manager: manager,
		logger:  logger,
		sleep:   Sleep,
	}
}

// NewExecutorFromConfig builds an Executor, Breaker and Gate for provider name.
func NewExecutorFromConfig(name string, cfg config.RetryConfig, logger *logging.Logger) *Executor {
	return NewExecutor(
		PolicyFromConfig(cfg),
		NewBreaker(name, cfg.BreakerThreshold, cfg.BreakerCooldown),
		NewGate(cfg.RateLimitFloor, cfg.MaxRateLimitWait),
		NewManager(),
		logger,
	)
}

// Manager returns the attempt manager.
func (e *Executor) Manager() *Manager {
	return e.manager
}

// Breaker returns the circuit breaker, which may be nil.
func (e *Executor) Breaker() *Breaker {
	return e.breaker
}

// Do runs fn until it succeeds or a stop condition is reached:
//   - errors that are not retryable (auth, rejected, validation) return at once
//   - rate-limited errors wait Retry-After (or the default) without consuming
//     an attempt, up to MaxRateLimitWaits times
//   - other retryable errors back off exponentially, up to MaxAttempts
//
// quota, when non-nil, is consulted before each attempt so the Gate can
// wait out an exhausted quota.
func (e *Executor) Do(ctx context.Context, key string, quota func() Quota, fn func(context.Context) error) error {
	e.manager.GetOrCreateState(key, e.policy.MaxAttempts)
	transientFailures := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.breaker != nil {
			if err := e.breaker.Allow(); err != nil {
				e.manager.SetLastError(key, err.Error())
				return err
			}
		}
		if e.gate != nil && quota != nil {
			if d := e.gate.Delay(quota()); d > 0 {
				e.logger.Info("waiting for rate limit reset", "key", key, "wait", d.String())
				if err := e.sleep(ctx, d); err != nil {
					return err
				}
			}
		}

		err := fn(ctx)
		if err == nil {
			if e.breaker != nil {
				e.breaker.Success()
			}
			e.manager.RecordAttempt(key, true)
			return nil
		}
		// Only transient failures count against the breaker; every other
		// outcome must still end a half-open trial.
		if e.breaker != nil && (!errors.IsRetryable(err) || isRateLimited(err)) {
			e.breaker.Release()
		}
		e.manager.SetLastError(key, err.Error())

		var provErr *errors.ProviderError
		if isRateLimited(err) && errors.As(err, &provErr) {
			waits := e.manager.RecordRateLimitWait(key)
			if waits > e.policy.MaxRateLimitWaits {
				e.manager.RecordAttempt(key, false)
				return err
			}
			d := e.policy.ThrottleDelay(provErr.RetryAfter)
			e.logger.Warn("rate limited, backing off", "key", key, "wait", d.String(), "waits", waits)
			if err := e.sleep(ctx, d); err != nil {
				return err
			}
			continue
		}

		e.manager.RecordAttempt(key, false)
		if !errors.IsRetryable(err) {
			return err
		}

		if e.breaker != nil {
			e.breaker.Failure()
		}
		transientFailures++
		if transientFailures >= e.policy.MaxAttempts {
			e.logger.Warn("giving up after retries", "key", key, "attempts", transientFailures, "error", err.Error())
			return err
		}

		d := e.policy.Backoff(transientFailures - 1)
		e.logger.Debug("retrying after transient error", "key", key, "attempt", transientFailures, "delay", d.String(), "error", err.Error())
		if err := e.sleep(ctx, d); err != nil {
			return err
		}
	}
}

func isRateLimited(err error) bool {
	var provErr *errors.ProviderError
	return errors.As(err, &provErr) && provErr.Kind == errors.ProviderRateLimited
}
