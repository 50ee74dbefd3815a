package service

import (
	"testing"
	"time"

	"marketpulse/internal/core/domain"
)

func collectAlerts(t *testing.T, a *SmartAggregator, symbols []string) []domain.QualityAlert {
	t.Helper()

	alerts := make(chan domain.QualityAlert, 16)
	a.StartQualityMonitoring(5*time.Millisecond, symbols, func(alert domain.QualityAlert) {
		select {
		case alerts <- alert:
		default:
		}
	})

	deadline := time.After(time.Second)
	var got []domain.QualityAlert
	for len(got) == 0 {
		select {
		case alert := <-alerts:
			got = append(got, alert)
		case <-deadline:
			a.StopQualityMonitoring()
			return nil
		}
	}
	a.StopQualityMonitoring()
	return got
}

func TestQualityMonitorLowQualityAlert(t *testing.T) {
	now := time.Now()

	a := newTestAggregator()
	a.now = func() time.Time { return now }

	// 40 minutes stale at priority 8: score 56, under the threshold
	stale := newStubSource("stale")
	stale.setPrice(domain.PriceObservation{Symbol: "BTCUSDT", Price: 104500, ObservedAt: now.Add(-40 * time.Minute)})
	a.Register(desc("stale", 8, true), stale)

	got := collectAlerts(t, a, []string{"BTCUSDT"})
	if len(got) == 0 {
		t.Fatal("no alert for a low-quality reading")
	}
	if got[0].Kind != domain.AlertLowQuality {
		t.Fatalf("alert kind = %q, want low_quality", got[0].Kind)
	}
	if got[0].Symbol != "BTCUSDT" {
		t.Fatalf("alert symbol = %q", got[0].Symbol)
	}
}

func TestQualityMonitorDisagreementAlert(t *testing.T) {
	now := time.Now()

	a := newTestAggregator()
	a.now = func() time.Time { return now }

	// 1% apart, well past the 0.5% disagreement threshold
	one := newStubSource("one")
	one.setPrice(domain.PriceObservation{Symbol: "BTCUSDT", Price: 100000, ObservedAt: now})
	two := newStubSource("two")
	two.setPrice(domain.PriceObservation{Symbol: "BTCUSDT", Price: 101000, ObservedAt: now})

	a.Register(desc("one", 10, true), one)
	a.Register(desc("two", 8, true), two)

	got := collectAlerts(t, a, []string{"BTCUSDT"})
	if len(got) == 0 {
		t.Fatal("no alert for disagreeing sources")
	}
	if got[0].Kind != domain.AlertSourceDisagreement {
		t.Fatalf("alert kind = %q, want source_disagreement", got[0].Kind)
	}
	if got[0].MaxDeviationPct != 1 {
		t.Fatalf("deviation = %f, want 1", got[0].MaxDeviationPct)
	}
}

func TestQualityMonitorHonorsConfiguredThreshold(t *testing.T) {
	now := time.Now()

	settings := DefaultAggregatorSettings()
	settings.QualityThreshold = 95
	a := NewSmartAggregator(settings, testLogger())
	a.now = func() time.Time { return now }

	// Fresh at priority 8 scores 80: fine at the default 70, not at 95.
	one := newStubSource("one")
	one.setPrice(domain.PriceObservation{Symbol: "BTCUSDT", Price: 104500, ObservedAt: now})
	two := newStubSource("two")
	two.setPrice(domain.PriceObservation{Symbol: "BTCUSDT", Price: 104500, ObservedAt: now})

	a.Register(desc("one", 8, true), one)
	a.Register(desc("two", 8, true), two)

	got := collectAlerts(t, a, []string{"BTCUSDT"})
	if len(got) == 0 {
		t.Fatal("no alert with the threshold raised to 95")
	}
	if got[0].Kind != domain.AlertLowQuality {
		t.Fatalf("alert kind = %q, want low_quality", got[0].Kind)
	}
}

func TestQualityMonitorTimeDisagreementAlert(t *testing.T) {
	now := time.Now()

	a := newTestAggregator()
	a.now = func() time.Time { return now }

	// Same price, timestamps two minutes apart: past the 30s spread limit.
	current := newStubSource("current")
	current.setPrice(domain.PriceObservation{Symbol: "BTCUSDT", Price: 104500, ObservedAt: now})
	lagging := newStubSource("lagging")
	lagging.setPrice(domain.PriceObservation{Symbol: "BTCUSDT", Price: 104500, ObservedAt: now.Add(-2 * time.Minute)})

	a.Register(desc("current", 10, true), current)
	a.Register(desc("lagging", 8, true), lagging)

	got := collectAlerts(t, a, []string{"BTCUSDT"})
	if len(got) == 0 {
		t.Fatal("no alert for a two-minute timestamp spread")
	}
	if got[0].Kind != domain.AlertTimeDisagreement {
		t.Fatalf("alert kind = %q, want time_disagreement", got[0].Kind)
	}
}

func TestQualityMonitorLowRedundancyAlert(t *testing.T) {
	now := time.Now()

	a := newTestAggregator()
	a.now = func() time.Time { return now }

	only := newStubSource("only")
	only.setPrice(domain.PriceObservation{Symbol: "BTCUSDT", Price: 104500, ObservedAt: now})
	a.Register(desc("only", 10, true), only)

	got := collectAlerts(t, a, []string{"BTCUSDT"})
	if len(got) == 0 {
		t.Fatal("no alert with a single reporting source")
	}
	if got[0].Kind != domain.AlertLowRedundancy {
		t.Fatalf("alert kind = %q, want low_redundancy", got[0].Kind)
	}
}

func TestQualityMonitorPerSourceTolerance(t *testing.T) {
	now := time.Now()

	a := newTestAggregator()
	a.now = func() time.Time { return now }

	// 0.1% apart: under the 0.5% global threshold but past the strict
	// source's own 0.05% tolerance.
	anchor := newStubSource("anchor")
	anchor.setPrice(domain.PriceObservation{Symbol: "BTCUSDT", Price: 100000, ObservedAt: now})
	strict := newStubSource("strict")
	strict.setPrice(domain.PriceObservation{Symbol: "BTCUSDT", Price: 100100, ObservedAt: now})

	a.Register(desc("anchor", 10, true), anchor)
	d := desc("strict", 8, true)
	d.MaxDeviationPct = 0.05
	a.Register(d, strict)

	got := collectAlerts(t, a, []string{"BTCUSDT"})
	if len(got) == 0 {
		t.Fatal("no alert past the per-source tolerance")
	}
	if got[0].Kind != domain.AlertSourceDisagreement {
		t.Fatalf("alert kind = %q, want source_disagreement", got[0].Kind)
	}
	if got[0].Source != "strict" {
		t.Fatalf("alert source = %q, want strict", got[0].Source)
	}
}

func TestQualityMonitorQuietWhenHealthy(t *testing.T) {
	now := time.Now()

	a := newTestAggregator()
	a.now = func() time.Time { return now }

	// Two fresh sources, same timestamp, 0.001% apart: nothing to flag.
	healthy := newStubSource("healthy")
	healthy.setPrice(domain.PriceObservation{Symbol: "BTCUSDT", Price: 104500, ObservedAt: now})
	twin := newStubSource("twin")
	twin.setPrice(domain.PriceObservation{Symbol: "BTCUSDT", Price: 104501, ObservedAt: now})

	a.Register(desc("healthy", 10, true), healthy)
	a.Register(desc("twin", 9, true), twin)

	alerts := make(chan domain.QualityAlert, 16)
	a.StartQualityMonitoring(5*time.Millisecond, []string{"BTCUSDT"}, func(alert domain.QualityAlert) {
		alerts <- alert
	})
	time.Sleep(50 * time.Millisecond)
	a.StopQualityMonitoring()

	select {
	case alert := <-alerts:
		t.Fatalf("unexpected alert: %+v", alert)
	default:
	}
}

func TestQualityMonitorStartStop(t *testing.T) {
	a := newTestAggregator()

	a.StartQualityMonitoring(time.Hour, nil, nil)
	a.StartQualityMonitoring(time.Hour, nil, nil) // double start is a no-op
	a.StopQualityMonitoring()
	a.StopQualityMonitoring() // double stop is safe
}
