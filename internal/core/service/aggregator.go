package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"marketpulse/internal/core/domain"
	"marketpulse/internal/core/port"
)

// The staleness penalty grows per minute past the freshness floor, capped.
const maxStalenessPenalty = 30.0

// AggregatorSettings tunes scoring and quality monitoring. Zero values fall
// back to the defaults.
type AggregatorSettings struct {
	// FreshnessFloor is the observation age below which no staleness
	// penalty applies.
	FreshnessFloor time.Duration
	// MaxTimeDeviation bounds the observation-timestamp spread across
	// sources before the monitor flags time disagreement.
	MaxTimeDeviation time.Duration
	// QualityThreshold is the score under which the monitor alerts.
	QualityThreshold float64
	// DeviationThresholdPct is the cross-source price disagreement over
	// which the monitor alerts.
	DeviationThresholdPct float64
	// RedundancyLevel is the number of reporting sources the monitor
	// expects per watched symbol.
	RedundancyLevel int
}

func DefaultAggregatorSettings() AggregatorSettings {
	return AggregatorSettings{
		FreshnessFloor:        60 * time.Second,
		MaxTimeDeviation:      30 * time.Second,
		QualityThreshold:      70,
		DeviationThresholdPct: 0.5,
		RedundancyLevel:       2,
	}
}

func (s AggregatorSettings) withDefaults() AggregatorSettings {
	def := DefaultAggregatorSettings()
	if s.FreshnessFloor <= 0 {
		s.FreshnessFloor = def.FreshnessFloor
	}
	if s.MaxTimeDeviation <= 0 {
		s.MaxTimeDeviation = def.MaxTimeDeviation
	}
	if s.QualityThreshold <= 0 {
		s.QualityThreshold = def.QualityThreshold
	}
	if s.DeviationThresholdPct <= 0 {
		s.DeviationThresholdPct = def.DeviationThresholdPct
	}
	if s.RedundancyLevel <= 0 {
		s.RedundancyLevel = def.RedundancyLevel
	}
	return s
}

// managedSource pairs a registered source with its scoring descriptor.
type managedSource struct {
	desc domain.SourceDescriptor
	src  port.MarketDataSource
}

// SmartAggregator scores every registered source per symbol and serves the
// most reliable reading, annotated with cross-source agreement. Registration
// order is the tie-break: equal reliability keeps the earlier source.
type SmartAggregator struct {
	settings AggregatorSettings
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	ordered []*managedSource
	byName  map[string]*managedSource

	monitor *qualityMonitor
}

func NewSmartAggregator(settings AggregatorSettings, logger *slog.Logger) *SmartAggregator {
	return &SmartAggregator{
		settings: settings.withDefaults(),
		logger:   logger,
		now:      time.Now,
		byName:   make(map[string]*managedSource),
	}
}

// Register adds a source under the given descriptor. Re-registering a name
// replaces its descriptor but keeps its position in the tie-break order.
func (a *SmartAggregator) Register(desc domain.SourceDescriptor, src port.MarketDataSource) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if m, ok := a.byName[desc.Name]; ok {
		m.desc = desc
		m.src = src
		return
	}
	m := &managedSource{desc: desc, src: src}
	a.ordered = append(a.ordered, m)
	a.byName[desc.Name] = m
}

// ConnectDataSources brings up every enabled source concurrently, each
// racing its own descriptor timeout. Reports whether at least one source
// came up.
func (a *SmartAggregator) ConnectDataSources(ctx context.Context) bool {
	a.mu.RLock()
	sources := make([]*managedSource, len(a.ordered))
	copy(sources, a.ordered)
	a.mu.RUnlock()

	results := make(chan bool, len(sources))
	for _, m := range sources {
		if !m.desc.Enabled {
			results <- false
			continue
		}
		go func(m *managedSource) {
			results <- a.connectWithTimeout(ctx, m)
		}(m)
	}

	anyUp := false
	for range sources {
		if <-results {
			anyUp = true
		}
	}
	return anyUp
}

// connectWithTimeout races Connect against the descriptor timeout. A source
// that blows its budget is treated as down even if it connects later.
func (a *SmartAggregator) connectWithTimeout(ctx context.Context, m *managedSource) bool {
	done := make(chan bool, 1)
	go func() {
		cctx, cancel := context.WithTimeout(ctx, m.desc.Timeout)
		defer cancel()
		done <- m.src.Connect(cctx)
	}()

	select {
	case ok := <-done:
		if !ok {
			a.logger.Warn("source failed to connect", slog.String("source", m.desc.Name))
		}
		return ok
	case <-time.After(m.desc.Timeout):
		a.logger.Warn("source connect timed out",
			slog.String("source", m.desc.Name),
			slog.Duration("timeout", m.desc.Timeout))
		return false
	}
}

func (a *SmartAggregator) DisconnectDataSources() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, m := range a.ordered {
		m.src.Disconnect()
	}
}

// SetSourceEnabled flips a source in or out of aggregation. Disabling does
// not disconnect; the source keeps running and is simply ignored by scoring.
func (a *SmartAggregator) SetSourceEnabled(name string, enabled bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	m, ok := a.byName[name]
	if !ok {
		return fmt.Errorf("unknown source %q", name)
	}
	m.desc.Enabled = enabled
	a.logger.Info("source toggled",
		slog.String("source", name),
		slog.Bool("enabled", enabled))
	return nil
}

// SourceStatus lists every registered source in registration order.
func (a *SmartAggregator) SourceStatus() []domain.SourceStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]domain.SourceStatus, 0, len(a.ordered))
	for _, m := range a.ordered {
		out = append(out, domain.SourceStatus{
			Name:      m.desc.Name,
			Enabled:   m.desc.Enabled,
			Connected: m.src.IsConnected(),
			Priority:  m.desc.Priority,
		})
	}
	return out
}

// scored is one source's candidate reading for a symbol.
type scored struct {
	name        string
	obs         domain.PriceObservation
	reliability float64
}

// GetAggregatedPriceData picks the most reliable reading for the symbol
// across enabled sources and annotates it with the alternatives and a
// cross-source confidence. Returns nil when no enabled source has a cached
// observation for the symbol.
func (a *SmartAggregator) GetAggregatedPriceData(symbol string) *domain.AggregatedReading {
	a.mu.RLock()
	sources := make([]*managedSource, len(a.ordered))
	copy(sources, a.ordered)
	a.mu.RUnlock()

	now := a.now()
	candidates := make([]scored, 0, len(sources))
	for _, m := range sources {
		if !m.desc.Enabled {
			continue
		}
		obs, ok := priceFor(m.src, symbol)
		if !ok {
			continue
		}
		candidates = append(candidates, scored{
			name:        m.desc.Name,
			obs:         obs,
			reliability: reliability(obs, m.desc, now, a.settings.FreshnessFloor),
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	// Strict greater-than keeps the earliest source on ties.
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.reliability > best.reliability {
			best = c
		}
	}

	alternatives := make([]domain.AlternativeReading, 0, len(candidates)-1)
	for _, c := range candidates {
		if c.name == best.name {
			continue
		}
		alternatives = append(alternatives, domain.AlternativeReading{
			Source:       c.name,
			Data:         c.obs,
			DeviationPct: deviationPct(best.obs.Price, c.obs.Price),
		})
	}

	reading := &domain.AggregatedReading{
		Data:         best.obs,
		Source:       best.name,
		QualityScore: best.reliability,
		Alternatives: alternatives,
	}
	reading.Confidence = confidence(reading.MaxDeviationPct(), len(candidates))
	return reading
}

func priceFor(src port.MarketDataSource, symbol string) (domain.PriceObservation, bool) {
	for _, obs := range src.PriceData() {
		if obs.Symbol == symbol {
			return obs, true
		}
	}
	return domain.PriceObservation{}, false
}

// reliability scores one observation: a staleness penalty grows per minute
// past the freshness floor (capped), then the source priority scales the
// remainder. Clamped to 0..100.
func reliability(obs domain.PriceObservation, desc domain.SourceDescriptor, now time.Time, floor time.Duration) float64 {
	age := now.Sub(obs.ObservedAt)
	penalty := 0.0
	if age > floor {
		penalty = math.Min(maxStalenessPenalty, (age - floor).Minutes())
	}

	score := (100 - penalty) * float64(desc.Priority) / 10
	return math.Max(0, math.Min(100, score))
}

// confidence maps the worst cross-source disagreement into 0..100. A single
// source has nothing to disagree with and scores full confidence.
func confidence(maxDeviationPct float64, candidates int) float64 {
	if candidates <= 1 {
		return 100
	}
	return math.Max(0, 100-10*maxDeviationPct)
}

// deviationPct is the absolute relative difference in percent against the
// selected price.
func deviationPct(selected, other float64) float64 {
	if selected == 0 {
		return 0
	}
	return math.Abs(other-selected) / selected * 100
}
