// Package workerpool fans observation streams from every source into a
// bounded pool of cache writers.
package workerpool

import (
	"context"
	"log/slog"
	"sync"

	"marketpulse/internal/core/domain"
	"marketpulse/internal/core/port"
)

// ObservationJob is one price observation tagged with the source it came
// from.
type ObservationJob struct {
	Source string
	Obs    domain.PriceObservation
}

// FanIn merges the per-source channels into one stream. The output closes
// once every input is drained or the context ends.
func FanIn(ctx context.Context, inputs ...<-chan ObservationJob) <-chan ObservationJob {
	out := make(chan ObservationJob)

	var wg sync.WaitGroup
	wg.Add(len(inputs))
	for _, in := range inputs {
		go func(in <-chan ObservationJob) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- job:
					case <-ctx.Done():
						return
					}
				}
			}
		}(in)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Pool writes observation jobs to the cache with a fixed number of workers.
type Pool struct {
	workers int
	cache   port.CachePort
	logger  *slog.Logger
}

func New(workers int, cache port.CachePort, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{workers: workers, cache: cache, logger: logger}
}

// Run consumes jobs until the channel closes or the context ends. A failed
// write is logged and dropped; the cache is a mirror, not the source of
// truth.
func (p *Pool) Run(ctx context.Context, jobs <-chan ObservationJob) {
	var wg sync.WaitGroup
	wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func(id int) {
			defer wg.Done()
			for job := range jobs {
				if err := p.cache.AddObservation(ctx, job.Source, job.Obs); err != nil {
					p.logger.Warn("cache write failed",
						slog.Int("worker", id),
						slog.String("source", job.Source),
						slog.String("symbol", job.Obs.Symbol),
						slog.String("error", err.Error()))
				}
			}
		}(i)
	}
	wg.Wait()
}
