package service

import (
	"context"
	"log/slog"
	"sync"

	"marketpulse/internal/core/domain"
	"marketpulse/internal/core/port"
	"marketpulse/internal/core/service/workerpool"
)

// Mirror tails the price channel of every registered source and writes the
// observations to the cache through a worker pool, so recent history is
// queryable without touching the adapters.
type Mirror struct {
	cache   port.CachePort
	workers int
	logger  *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	subs   []mirrorSub
}

type mirrorSub struct {
	src port.MarketDataSource
	sub port.Subscription
}

func NewMirror(cache port.CachePort, workers int, logger *slog.Logger) *Mirror {
	return &Mirror{cache: cache, workers: workers, logger: logger}
}

// Start subscribes to every source and begins mirroring. Safe to call once;
// a second call before Stop is a no-op.
func (m *Mirror) Start(sources []port.MarketDataSource) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	inputs := make([]<-chan workerpool.ObservationJob, 0, len(sources))
	for _, src := range sources {
		ch := make(chan workerpool.ObservationJob, 256)
		name := src.Name()
		sub := src.Subscribe(domain.ChannelPrice, func(ev domain.StreamEvent) {
			if ev.Price == nil {
				return
			}
			job := workerpool.ObservationJob{Source: name, Obs: *ev.Price}
			// Drop rather than block the publisher.
			select {
			case ch <- job:
			default:
			}
		})
		m.subs = append(m.subs, mirrorSub{src: src, sub: sub})
		inputs = append(inputs, ch)
	}

	merged := workerpool.FanIn(ctx, inputs...)
	pool := workerpool.New(m.workers, m.cache, m.logger)
	go func() {
		defer close(m.done)
		pool.Run(ctx, merged)
	}()

	m.logger.Info("price mirror started",
		slog.Int("sources", len(sources)),
		slog.Int("workers", m.workers))
}

func (m *Mirror) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return
	}
	for _, s := range m.subs {
		s.src.Unsubscribe(domain.ChannelPrice, s.sub)
	}
	m.subs = nil
	m.cancel()
	<-m.done
	m.cancel = nil
	m.logger.Info("price mirror stopped")
}
