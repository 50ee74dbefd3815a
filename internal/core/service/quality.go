package service

import (
	"log/slog"
	"time"

	"marketpulse/internal/core/domain"
)

const defaultQualityInterval = 10 * time.Second

var defaultWatchSymbols = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"}

// qualityMonitor periodically samples aggregated readings for a watch list
// and raises alerts on low quality or cross-source disagreement.
type qualityMonitor struct {
	interval time.Duration
	symbols  []string
	onAlert  func(domain.QualityAlert)

	stop chan struct{}
	done chan struct{}
}

// StartQualityMonitoring begins periodic checks. Starting an already running
// monitor is a no-op; a nil onAlert only logs.
func (a *SmartAggregator) StartQualityMonitoring(interval time.Duration, symbols []string, onAlert func(domain.QualityAlert)) {
	if interval <= 0 {
		interval = defaultQualityInterval
	}
	if len(symbols) == 0 {
		symbols = defaultWatchSymbols
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.monitor != nil {
		return
	}
	m := &qualityMonitor{
		interval: interval,
		symbols:  symbols,
		onAlert:  onAlert,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	a.monitor = m

	go a.runQualityChecks(m)
	a.logger.Info("quality monitoring started",
		slog.Duration("interval", interval),
		slog.Int("symbols", len(symbols)))
}

func (a *SmartAggregator) StopQualityMonitoring() {
	a.mu.Lock()
	m := a.monitor
	a.monitor = nil
	a.mu.Unlock()

	if m == nil {
		return
	}
	close(m.stop)
	<-m.done
	a.logger.Info("quality monitoring stopped")
}

func (a *SmartAggregator) runQualityChecks(m *qualityMonitor) {
	defer close(m.done)

	t := time.NewTicker(m.interval)
	defer t.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			a.performQualityCheck(m)
		}
	}
}

func (a *SmartAggregator) performQualityCheck(m *qualityMonitor) {
	now := a.now()
	for _, symbol := range m.symbols {
		reading := a.GetAggregatedPriceData(symbol)
		if reading == nil {
			continue
		}

		if reading.QualityScore < a.settings.QualityThreshold {
			a.emitAlert(m, domain.QualityAlert{
				Kind:         domain.AlertLowQuality,
				Symbol:       symbol,
				Source:       reading.Source,
				QualityScore: reading.QualityScore,
				At:           now,
			})
		}

		if dev := reading.MaxDeviationPct(); dev > a.settings.DeviationThresholdPct {
			a.emitAlert(m, domain.QualityAlert{
				Kind:            domain.AlertSourceDisagreement,
				Symbol:          symbol,
				Source:          reading.Source,
				QualityScore:    reading.QualityScore,
				MaxDeviationPct: dev,
				At:              now,
			})
		}

		// Per-source tolerance from the descriptor, on top of the
		// global threshold.
		for _, alt := range reading.Alternatives {
			tolerance := a.sourceTolerance(alt.Source)
			if tolerance > 0 && alt.DeviationPct > tolerance {
				a.emitAlert(m, domain.QualityAlert{
					Kind:            domain.AlertSourceDisagreement,
					Symbol:          symbol,
					Source:          alt.Source,
					QualityScore:    reading.QualityScore,
					MaxDeviationPct: alt.DeviationPct,
					At:              now,
				})
			}
		}

		if spread := timestampSpread(reading); spread > a.settings.MaxTimeDeviation {
			a.emitAlert(m, domain.QualityAlert{
				Kind:         domain.AlertTimeDisagreement,
				Symbol:       symbol,
				Source:       reading.Source,
				QualityScore: reading.QualityScore,
				At:           now,
			})
		}

		if reporting := len(reading.Alternatives) + 1; reporting < a.settings.RedundancyLevel {
			a.emitAlert(m, domain.QualityAlert{
				Kind:         domain.AlertLowRedundancy,
				Symbol:       symbol,
				Source:       reading.Source,
				QualityScore: reading.QualityScore,
				At:           now,
			})
		}
	}
}

func (a *SmartAggregator) sourceTolerance(name string) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if m, ok := a.byName[name]; ok {
		return m.desc.MaxDeviationPct
	}
	return 0
}

// timestampSpread is the widest gap between the selected observation's
// timestamp and any alternative's.
func timestampSpread(reading *domain.AggregatedReading) time.Duration {
	var spread time.Duration
	for _, alt := range reading.Alternatives {
		d := reading.Data.ObservedAt.Sub(alt.Data.ObservedAt)
		if d < 0 {
			d = -d
		}
		if d > spread {
			spread = d
		}
	}
	return spread
}

func (a *SmartAggregator) emitAlert(m *qualityMonitor, alert domain.QualityAlert) {
	a.logger.Warn("data quality alert",
		slog.String("kind", string(alert.Kind)),
		slog.String("symbol", alert.Symbol),
		slog.String("source", alert.Source),
		slog.Float64("quality_score", alert.QualityScore),
		slog.Float64("max_deviation_pct", alert.MaxDeviationPct))
	if m.onAlert != nil {
		m.onAlert(alert)
	}
}
