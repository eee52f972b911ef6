package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"marketgrid/config"
	"marketgrid/internal/cache"
	"marketgrid/internal/httpapi"
	"marketgrid/internal/registry"
	"marketgrid/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"environment": cfg.App.Environment,
	}).Info("starting marketgrid")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" || cfg.Metrics.CloudWatch {
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval.Std())
	}

	reg, _ := registry.Bootstrap(cfg)

	var store cache.Store
	if cfg.Cache.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Error("failed to connect to redis")
			os.Exit(1)
		}
		store = cache.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
		log.WithFields(logger.Fields{"addr": cfg.Redis.Addr}).Info("redis cache backend connected")
	} else {
		store = cache.NewMemoryStore()
	}

	overrides := make(map[string]int)
	for name, src := range cfg.Sources {
		if src.RateLimitPerMinute > 0 {
			overrides[name] = src.RateLimitPerMinute
		}
	}

	coord := cache.NewCoordinator(reg, cache.Options{
		Store:           store,
		UpstreamTimeout: cfg.Cache.UpstreamTimeout.Std(),
		LimiterWait:     cfg.Cache.LimiterWait.Std(),
		TTL: cache.TTLSet{
			Candles:        cfg.Cache.TTL.Candles.Std(),
			Ticker:         cfg.Cache.TTL.Ticker.Std(),
			FundingRate:    cfg.Cache.TTL.FundingRate.Std(),
			FundingHistory: cfg.Cache.TTL.FundingHistory.Std(),
			Basis:          cfg.Cache.TTL.Basis.Std(),
			BasisHistory:   cfg.Cache.TTL.BasisHistory.Std(),
		},
		RateLimitOverrides: overrides,
	})

	srv := httpapi.New(cfg.Server, reg, coord)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("http server failed")
			os.Exit(1)
		}
		return
	}

	log.Info("starting graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown timeout exceeded")
	}

	log.Info("marketgrid stopped")
}
