package domain

import "time"

// SourceDescriptor configures one adapter's role in aggregation. Descriptors
// are registered once; Enabled may be toggled at runtime, entries are never
// removed.
type SourceDescriptor struct {
	Name string `json:"name"`
	// Priority scales reliability scoring; 1..10, 10 highest.
	Priority int `json:"priority"`
	// Weight is carried per-source metadata (0..1); selection and
	// confidence are computed from priority and deviation alone.
	Weight float64 `json:"weight"`
	// MaxDeviationPct is this source's own disagreement tolerance; the
	// quality monitor flags readings that drift past it. Zero disables
	// the per-source check.
	MaxDeviationPct float64       `json:"maxDeviationPct"`
	Timeout         time.Duration `json:"timeoutMs"`
	Enabled         bool          `json:"enabled"`
}

// AlternativeReading is a non-selected source's observation for the same
// symbol, with its deviation from the selected price.
type AlternativeReading struct {
	Source       string           `json:"source"`
	Data         PriceObservation `json:"data"`
	DeviationPct float64          `json:"deviation"`
}

// AggregatedReading is the aggregator's answer for one symbol: the most
// reliable observation plus disagreement diagnostics. Built fresh per query.
type AggregatedReading struct {
	Data         PriceObservation     `json:"data"`
	Source       string               `json:"source"`
	Confidence   float64              `json:"confidence"`   // 0..100, drops with cross-source disagreement
	QualityScore float64              `json:"qualityScore"` // 0..100, the selected observation's reliability
	Alternatives []AlternativeReading `json:"alternatives"`
}

// MaxDeviationPct returns the largest disagreement among alternatives.
func (r AggregatedReading) MaxDeviationPct() float64 {
	var max float64
	for _, alt := range r.Alternatives {
		if alt.DeviationPct > max {
			max = alt.DeviationPct
		}
	}
	return max
}

// QualityAlertKind classifies quality-monitor warnings.
type QualityAlertKind string

const (
	AlertLowQuality         QualityAlertKind = "low_quality"
	AlertSourceDisagreement QualityAlertKind = "source_disagreement"
	AlertTimeDisagreement   QualityAlertKind = "time_disagreement"
	AlertLowRedundancy      QualityAlertKind = "low_redundancy"
)

// QualityAlert is an observational warning raised by the quality monitor.
// It never blocks or discards data.
type QualityAlert struct {
	Kind            QualityAlertKind `json:"kind"`
	Symbol          string           `json:"symbol"`
	Source          string           `json:"source"`
	QualityScore    float64          `json:"qualityScore"`
	MaxDeviationPct float64          `json:"maxDeviationPct"`
	At              time.Time        `json:"at"`
}
