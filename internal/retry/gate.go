package retry

import (
	"context"
	"time"
)

// Quota is the last rate-limit state observed from a provider.
type Quota struct {
	// Known is false until the provider has reported quota headers.
	Known     bool
	Remaining int
	Limit     int
	Reset     time.Time
}

// Gate pauses mutating calls while a provider's remaining quota is at or
// below a floor, until the quota resets.
type Gate struct {
	floor   int
	maxWait time.Duration
	now     func() time.Time
}

// NewGate creates a Gate that waits at most maxWait per call.
func NewGate(floor int, maxWait time.Duration) *Gate {
	return &Gate{
		floor:   floor,
		maxWait: maxWait,
		now:     time.Now,
	}
}

// Delay returns how long a caller should wait before spending quota q.
func (g *Gate) Delay(q Quota) time.Duration {
	if !q.Known || q.Remaining > g.floor || q.Reset.IsZero() {
		return 0
	}
	wait := q.Reset.Sub(g.now())
	if wait <= 0 {
		return 0
	}
	if g.maxWait > 0 && wait > g.maxWait {
		wait = g.maxWait
	}
	return wait
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
