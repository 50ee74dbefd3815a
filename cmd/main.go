package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appcfg "marketpulse/config"
	"marketpulse/internal/adapters/cache/redis"
	httpserver "marketpulse/internal/adapters/handlers/http"
	"marketpulse/internal/adapters/handlers/http/handler"
	"marketpulse/internal/adapters/repository/postgres"
	"marketpulse/internal/adapters/source"
	"marketpulse/internal/core/domain"
	"marketpulse/internal/core/port"
	"marketpulse/internal/core/service"
	depcfg "marketpulse/pkg/config"
)

// aggregation descriptors for the live sources; the mock stays out of
// aggregation, it only backs the facade fallback.
var sourceDescriptors = []domain.SourceDescriptor{
	{Name: "enhanced", Priority: 10, Weight: 0.6, MaxDeviationPct: 0.05, Timeout: time.Second, Enabled: true},
	{Name: "binance", Priority: 9, Weight: 0.4, MaxDeviationPct: 0.2, Timeout: 3 * time.Second, Enabled: true},
	{Name: "okx", Priority: 8, Weight: 0.3, MaxDeviationPct: 0.25, Timeout: 4 * time.Second, Enabled: true},
	{Name: "coingecko", Priority: 8, Weight: 0.3, MaxDeviationPct: 0.3, Timeout: 5 * time.Second, Enabled: true},
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// Missing .env is fine, the environment may carry everything.
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		return err
	}

	logger := depcfg.NewLogger(cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := depcfg.NewDependencies(ctx,
		depcfg.WithLogger(logger),
		depcfg.WithPostgres(cfg.Postgres),
		depcfg.WithRedis(cfg.Redis),
	)
	if err != nil {
		return err
	}
	defer deps.Close()

	repo := postgres.NewReadingsRepository(deps.Postgres, logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	cache := redis.NewObservationCache(deps.Redis, logger)

	mock := source.NewMockSource(cfg.Market.UpdateInterval, logger)
	coingecko := source.NewCoinGeckoSource(logger)
	binance := source.NewBinanceSource(logger)
	okx := source.NewOKXSource(logger)
	enhanced := source.NewEnhancedSource(logger)

	sources := []port.MarketDataSource{mock, coingecko, binance, okx, enhanced}
	byName := map[string]port.MarketDataSource{}
	for _, s := range sources {
		byName[s.Name()] = s
	}

	fallback := "mock"
	if !cfg.Market.FallbackToMock {
		fallback = cfg.Market.DataSource
	}
	facade := service.NewUnifiedMarketData(sources, cfg.Market.DataSource, fallback, logger)
	if !facade.Connect(ctx) {
		logger.Warn("no data source connected at boot",
			slog.String("requested", cfg.Market.DataSource))
	}

	agg := service.NewSmartAggregator(service.AggregatorSettings{
		FreshnessFloor:        cfg.Market.FreshnessFloor,
		MaxTimeDeviation:      cfg.Market.MaxTimeDeviation,
		QualityThreshold:      cfg.Market.QualityThreshold,
		DeviationThresholdPct: cfg.Market.PriceDeviationPct,
		RedundancyLevel:       cfg.Market.RedundancyLevel,
	}, logger)
	for _, desc := range sourceDescriptors {
		agg.Register(desc, byName[desc.Name])
	}
	agg.ConnectDataSources(ctx)
	defer agg.DisconnectDataSources()

	agg.StartQualityMonitoring(cfg.Market.QualityInterval, cfg.Market.WatchSymbols, nil)
	defer agg.StopQualityMonitoring()

	mirror := service.NewMirror(cache, cfg.Market.MirrorWorkers, logger)
	mirror.Start(sources)
	defer mirror.Stop()

	recorder := service.NewRecorder(agg, repo, cfg.Market.WatchSymbols, logger)
	if err := recorder.Start(cfg.Market.RecorderSchedule); err != nil {
		return err
	}
	defer recorder.Stop()

	h := handler.NewMarketHandler(facade, agg, cache, logger)
	srv := httpserver.NewServer(cfg.Server.Port, httpserver.NewRouter(h), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", slog.String("error", err.Error()))
	}
	facade.Disconnect()
	return nil
}
