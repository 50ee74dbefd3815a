package source

import (
	"math/rand"
	"time"
)

// ReconnectPolicy bounds how an adapter chases a lost upstream: a fixed
// attempt budget with a doubling, jittered delay. After the budget is spent
// the adapter settles into Disconnected until Connect is called again.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay, 0..1
}

// DefaultReconnectPolicy mirrors the upstream services: five attempts,
// five seconds base, capped at thirty.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: 5,
		BaseDelay:   5 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// Delay returns the wait before the given attempt (1-based) and whether the
// attempt is still within budget.
func (p ReconnectPolicy) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > p.MaxAttempts {
		return 0, false
	}

	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	if p.Jitter > 0 {
		span := float64(d) * p.Jitter
		d = time.Duration(float64(d) - span/2 + rand.Float64()*span)
	}
	return d, true
}
