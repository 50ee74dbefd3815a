package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"marketpulse/internal/core/port"
)

// Recorder periodically snapshots aggregated readings for a watch list into
// durable storage, giving the HTTP surface a history that outlives the
// in-memory caches.
type Recorder struct {
	agg     *SmartAggregator
	repo    port.RepositoryPort
	symbols []string
	logger  *slog.Logger

	cron *cron.Cron
}

func NewRecorder(agg *SmartAggregator, repo port.RepositoryPort, symbols []string, logger *slog.Logger) *Recorder {
	if len(symbols) == 0 {
		symbols = defaultWatchSymbols
	}
	return &Recorder{agg: agg, repo: repo, symbols: symbols, logger: logger}
}

// Start schedules the flush. The spec string follows robfig/cron, e.g.
// "@every 1m".
func (r *Recorder) Start(spec string) error {
	if r.cron != nil {
		return fmt.Errorf("recorder already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, r.flush); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	r.cron = c
	c.Start()

	r.logger.Info("recorder started",
		slog.String("schedule", spec),
		slog.Int("symbols", len(r.symbols)))
	return nil
}

func (r *Recorder) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
	r.logger.Info("recorder stopped")
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, symbol := range r.symbols {
		reading := r.agg.GetAggregatedPriceData(symbol)
		if reading == nil {
			continue
		}
		if err := r.repo.SaveReading(ctx, *reading); err != nil {
			r.logger.Warn("reading flush failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()))
		}
	}
}
