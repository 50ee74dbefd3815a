// Package postgres persists aggregated readings for later analysis.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketpulse/internal/core/domain"
)

// ReadingsRepository implements the repository port over a pgx pool. The
// aggregated_readings table stores one row per recorded snapshot.
type ReadingsRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewReadingsRepository(pool *pgxpool.Pool, logger *slog.Logger) *ReadingsRepository {
	return &ReadingsRepository{pool: pool, logger: logger}
}

func (r *ReadingsRepository) SaveReading(ctx context.Context, reading domain.AggregatedReading) error {
	const q = `
		INSERT INTO aggregated_readings
			(symbol, source, price, confidence, quality_score, max_deviation_pct, observed_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, q,
		reading.Data.Symbol,
		reading.Source,
		reading.Data.Price,
		reading.Confidence,
		reading.QualityScore,
		reading.MaxDeviationPct(),
		reading.Data.ObservedAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save reading %s: %w", reading.Data.Symbol, err)
	}
	return nil
}

// ReadingsByPeriod returns the readings recorded within the trailing period,
// oldest first.
func (r *ReadingsRepository) ReadingsByPeriod(ctx context.Context, symbol string, period time.Duration) ([]domain.AggregatedReading, error) {
	const q = `
		SELECT symbol, source, price, confidence, quality_score, observed_at
		FROM aggregated_readings
		WHERE symbol = $1 AND recorded_at >= $2
		ORDER BY recorded_at`

	rows, err := r.pool.Query(ctx, q, symbol, time.Now().Add(-period))
	if err != nil {
		return nil, fmt.Errorf("readings by period %s: %w", symbol, err)
	}
	defer rows.Close()

	var readings []domain.AggregatedReading
	for rows.Next() {
		var reading domain.AggregatedReading
		if err := rows.Scan(
			&reading.Data.Symbol,
			&reading.Source,
			&reading.Data.Price,
			&reading.Confidence,
			&reading.QualityScore,
			&reading.Data.ObservedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("readings by period %s: %w", symbol, err)
	}
	return readings, nil
}

func (r *ReadingsRepository) LatestReading(ctx context.Context, symbol string) (domain.AggregatedReading, error) {
	const q = `
		SELECT symbol, source, price, confidence, quality_score, observed_at
		FROM aggregated_readings
		WHERE symbol = $1
		ORDER BY recorded_at DESC
		LIMIT 1`

	var reading domain.AggregatedReading
	err := r.pool.QueryRow(ctx, q, symbol).Scan(
		&reading.Data.Symbol,
		&reading.Source,
		&reading.Data.Price,
		&reading.Confidence,
		&reading.QualityScore,
		&reading.Data.ObservedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AggregatedReading{}, fmt.Errorf("no readings for %q", symbol)
	}
	if err != nil {
		return domain.AggregatedReading{}, fmt.Errorf("latest reading %s: %w", symbol, err)
	}
	return reading, nil
}

// EnsureSchema creates the readings table if missing. Called once at boot.
func (r *ReadingsRepository) EnsureSchema(ctx context.Context) error {
	const q = `
		CREATE TABLE IF NOT EXISTS aggregated_readings (
			id                BIGSERIAL PRIMARY KEY,
			symbol            TEXT NOT NULL,
			source            TEXT NOT NULL,
			price             DOUBLE PRECISION NOT NULL,
			confidence        DOUBLE PRECISION NOT NULL,
			quality_score     DOUBLE PRECISION NOT NULL,
			max_deviation_pct DOUBLE PRECISION NOT NULL,
			observed_at       TIMESTAMPTZ NOT NULL,
			recorded_at       TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS aggregated_readings_symbol_recorded_idx
			ON aggregated_readings (symbol, recorded_at DESC);`

	if _, err := r.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
