package source

import (
	"testing"
	"time"
)

func TestReconnectPolicyDelays(t *testing.T) {
	p := ReconnectPolicy{MaxAttempts: 5, BaseDelay: 5 * time.Second, MaxDelay: 30 * time.Second}

	want := []time.Duration{5, 10, 20, 30, 30}
	for i, w := range want {
		d, ok := p.Delay(i + 1)
		if !ok {
			t.Fatalf("attempt %d rejected within budget", i+1)
		}
		if d != w*time.Second {
			t.Fatalf("attempt %d delay = %v, want %v", i+1, d, w*time.Second)
		}
	}

	if _, ok := p.Delay(6); ok {
		t.Fatal("attempt past the budget accepted")
	}
	if _, ok := p.Delay(0); ok {
		t.Fatal("attempt 0 accepted")
	}
}

func TestReconnectPolicyJitterBounds(t *testing.T) {
	p := DefaultReconnectPolicy()

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		for i := 0; i < 100; i++ {
			d, ok := p.Delay(attempt)
			if !ok {
				t.Fatalf("attempt %d rejected", attempt)
			}
			base := 5 * time.Second << (attempt - 1)
			if base > p.MaxDelay {
				base = p.MaxDelay
			}
			lo := time.Duration(float64(base) * (1 - p.Jitter/2))
			hi := time.Duration(float64(base) * (1 + p.Jitter/2))
			if d < lo || d > hi {
				t.Fatalf("attempt %d delay %v outside [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}
