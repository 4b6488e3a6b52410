package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"dip-trader/internal/application/service/execution"
	"dip-trader/internal/application/service/stopprice"
	"dip-trader/internal/application/service/subscription"
	"dip-trader/internal/config"
	domaininstruments "dip-trader/internal/domain/entity/instruments"
	interfaces "dip-trader/internal/domain/interfaces"
	"dip-trader/internal/infrastructure/broker"
	"dip-trader/internal/infrastructure/cache"
	infrainstruments "dip-trader/internal/infrastructure/instruments"
	"dip-trader/internal/infrastructure/invest"
	infrahttp "dip-trader/internal/interfaces/http"
	"dip-trader/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	investgo "github.com/russianinvestments/invest-api-go-sdk/investgo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown LOG_LEVEL %q, keeping %s", cfg.LogLevel, logger.GetLevel())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := loadCatalog(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to build catalog: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"instruments": catalog.Len(),
		"source":      catalogSource(cfg),
	}).Info("catalog loaded")

	interval, err := invest.IntervalFromSeconds(cfg.Trading.TimeframeSeconds)
	if err != nil {
		logger.Fatalf("invalid candle timeframe: %v", err)
	}

	investCfg := investgo.Config{
		EndPoint:           cfg.Invest.Endpoint,
		Token:              cfg.Invest.Token,
		AppName:            cfg.Invest.AppName,
		AccountId:          cfg.Invest.AccountID,
		InsecureSkipVerify: cfg.Invest.SkipTLSVerify,
	}
	client, err := investgo.NewClient(ctx, investCfg, logger)
	if err != nil {
		logger.Fatalf("create invest api client: %v", err)
	}
	defer func() {
		if stopErr := client.Stop(); stopErr != nil {
			logger.Errorf("stop invest api client: %v", stopErr)
		}
	}()

	api := invest.NewSDK(client)
	resolver := invest.NewResolver(api, cfg.Invest.ClassCode)
	if cfg.Redis.Enabled() {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unavailable, resolving instruments through the api")
		} else {
			ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
			resolver.WithStore(cache.NewInstrumentCache(redisClient, ttl), logger)
		}
	}

	stream, err := client.NewMarketDataStreamClient().MarketDataStream()
	if err != nil {
		logger.Fatalf("create market data stream: %v", err)
	}
	defer stream.Stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics("", registry)

	feed := invest.NewCandleFeed(stream, resolver, invest.FeedConfig{
		Interval:     interval,
		WaitingClose: cfg.Trading.CandleWaitingClose,
		Buffer:       cfg.Trading.CandleBuffer,
		Metrics:      metrics,
	}, logger)
	brokerage := invest.NewClient(api, resolver, logger)

	var publisher interfaces.EventPublisher = broker.NopPublisher{}
	var events *broker.AsyncPublisher
	if cfg.RabbitMQ.Enabled() {
		pub, err := broker.NewPublisher(cfg.RabbitMQ, logger)
		if err != nil {
			logger.Fatalf("init event publisher: %v", err)
		}
		defer pub.Close()
		events = broker.NewAsyncPublisher(pub, broker.DefaultQueueSize, broker.DefaultPublishTimeout, metrics, logger)
		publisher = events
	}

	engine, err := execution.NewEngine(execution.Options{
		Broker:           brokerage,
		StopPricer:       stopprice.NewEstimator(brokerage, cfg.Trading.OrderBookDepth, logger),
		Publisher:        publisher,
		Metrics:          metrics,
		Logger:           logger,
		AccountID:        cfg.Invest.AccountID,
		SerializeEntries: cfg.Trading.SerializeEntries,
	})
	if err != nil {
		logger.Fatalf("init execution engine: %v", err)
	}
	driver := subscription.NewDriver(catalog, feed, engine, metrics, logger)

	handler, err := infrahttp.NewHandler(catalog, driver, registry)
	if err != nil {
		logger.Fatalf("init http handler: %v", err)
	}
	server := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := stream.Listen()
		if gctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("market data stream: %w", err)
		}
		return errors.New("market data stream closed")
	})
	g.Go(func() error {
		logger.Infof("HTTP server listening on %s", cfg.HTTP.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if events != nil {
		g.Go(func() error {
			events.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		if driver.Start(gctx) == 0 {
			logger.Warn("no instrument subscription was established")
		}
		driver.Wait()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		stream.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("server shutdown error: %v", err)
		}
		return nil
	})

	logger.WithFields(logrus.Fields{
		"account":   cfg.Invest.AccountID,
		"timeframe": cfg.Trading.TimeframeSeconds,
		"events":    cfg.RabbitMQ.Enabled(),
	}).Info("trader started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("trader stopped with error: %v", err)
	}
	logger.Info("trader stopped")
}

func thresholdPolicy(cfg *config.Config) domaininstruments.ThresholdPolicy {
	return domaininstruments.ThresholdPolicy{
		Tier1: cfg.Trading.ThresholdTier1,
		Tier2: cfg.Trading.ThresholdTier2,
		Tier3: cfg.Trading.ThresholdTier3,
	}
}

func loadCatalog(ctx context.Context, cfg *config.Config) (*domaininstruments.Catalog, error) {
	policy := thresholdPolicy(cfg)
	if cfg.Catalog.DSN == "" {
		return domaininstruments.NewDefaultCatalog(policy)
	}

	repo, err := infrainstruments.NewTierRepository(cfg.Catalog.DSN)
	if err != nil {
		return nil, err
	}
	defer repo.Close()

	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate instrument_tiers: %w", err)
	}
	memberships, err := repo.LoadMemberships(ctx)
	if err != nil {
		return nil, err
	}
	return domaininstruments.NewCatalog(policy, memberships...)
}

func catalogSource(cfg *config.Config) string {
	if cfg.Catalog.DSN == "" {
		return "static"
	}
	return "postgres"
}
