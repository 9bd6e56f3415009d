package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scoobystack/scooby-engine/internal/api"
	"github.com/scoobystack/scooby-engine/internal/cache"
	"github.com/scoobystack/scooby-engine/internal/config"
	"github.com/scoobystack/scooby-engine/internal/dispatch"
	"github.com/scoobystack/scooby-engine/internal/feedback"
	"github.com/scoobystack/scooby-engine/internal/fingerprint"
	"github.com/scoobystack/scooby-engine/internal/gateway"
	"github.com/scoobystack/scooby-engine/internal/metrics"
	"github.com/scoobystack/scooby-engine/internal/models"
	"github.com/scoobystack/scooby-engine/internal/oracle"
	"github.com/scoobystack/scooby-engine/internal/repo"
	"github.com/scoobystack/scooby-engine/internal/router"
	"github.com/scoobystack/scooby-engine/internal/rules"
	"github.com/scoobystack/scooby-engine/internal/services"
	"github.com/scoobystack/scooby-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting scooby-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var provider cache.Provider
	if cfg.Cache.Valkey.Enabled && cfg.Cache.Valkey.Addr != "" {
		valkey, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Valkey.Addr,
			Username:     cfg.Cache.Valkey.Username,
			Password:     cfg.Cache.Valkey.Password,
			DB:           cfg.Cache.Valkey.DB,
			DialTimeout:  cfg.Cache.Valkey.DialTimeout,
			ReadTimeout:  cfg.Cache.Valkey.ReadTimeout,
			WriteTimeout: cfg.Cache.Valkey.WriteTimeout,
			MaxRetries:   cfg.Cache.Valkey.MaxRetries,
			TLS:          cfg.Cache.Valkey.TLS,
		})
		if err != nil {
			logger.Warn("valkey snapshot store unavailable", slog.Any("error", err))
		} else {
			provider = valkey
			defer valkey.Close()
		}
	}

	store := cache.NewStore(cache.Options{
		Capacity:            cfg.Cache.Capacity,
		ConfidenceFloor:     cfg.Cache.ConfidenceFloor,
		ConfidenceIncrement: cfg.Cache.ConfidenceIncrement,
		ConfidenceDecrement: cfg.Cache.ConfidenceDecrement,
		PinThreshold:        cfg.Cache.PinThreshold,
		TTLExtension:        cfg.Cache.TTLExtension,
		TierTTLs: map[models.Tier]time.Duration{
			models.TierCritical: cfg.Tiers.Critical.CacheTTL,
			models.TierHigh:     cfg.Tiers.High.CacheTTL,
			models.TierStandard: cfg.Tiers.Standard.CacheTTL,
		},
		TierThresholds: map[models.Tier]float64{
			models.TierCritical: cfg.Tiers.Critical.SimilarityThreshold,
			models.TierHigh:     cfg.Tiers.High.SimilarityThreshold,
			models.TierStandard: cfg.Tiers.Standard.SimilarityThreshold,
		},
		SnapshotTTL: cfg.Cache.Valkey.SnapshotTTL,
	}, provider, logger)

	if provider != nil {
		warmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if loaded, err := store.LoadSnapshot(warmCtx); err != nil {
			logger.Warn("snapshot warm load failed", slog.Any("error", err))
		} else if loaded > 0 {
			logger.Info("knowledge base warmed from snapshot", slog.Int("entries", loaded))
		}
		cancel()
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go store.RunSweeper(sweepCtx, cfg.Cache.SweepInterval)

	encoder, err := oracle.NewEmbeddingEncoder(cfg.Encoder, logger)
	if err != nil {
		logger.Error("failed to build embedding encoder", slog.Any("error", err))
		os.Exit(1)
	}

	oracleClient, err := oracle.NewOpenAIClient(cfg.Oracle, logger)
	if err != nil {
		logger.Error("failed to build oracle client", slog.Any("error", err))
		os.Exit(1)
	}

	gw := gateway.New(oracleClient, cfg.Gateway, logger)

	ruleTable, err := rules.Load(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		os.Exit(1)
	}

	policies := router.DefaultPolicies(
		models.TierPolicy{
			Budget:              cfg.Tiers.Critical.Budget,
			CacheTTL:            cfg.Tiers.Critical.CacheTTL,
			SimilarityThreshold: cfg.Tiers.Critical.SimilarityThreshold,
		},
		models.TierPolicy{
			Budget:              cfg.Tiers.High.Budget,
			CacheTTL:            cfg.Tiers.High.CacheTTL,
			SimilarityThreshold: cfg.Tiers.High.SimilarityThreshold,
			AllowApproximate:    true,
			AsyncOracle:         true,
		},
		models.TierPolicy{
			Budget:              cfg.Tiers.Standard.Budget,
			CacheTTL:            cfg.Tiers.Standard.CacheTTL,
			SimilarityThreshold: cfg.Tiers.Standard.SimilarityThreshold,
			AllowApproximate:    true,
			SyncOracle:          true,
		},
	)
	tierRouter := router.New(cfg.Router.CriticalServices, cfg.Router.FatalLexicon, policies, logger)

	docStore := repo.NewWeaviateDocStore(cfg.DocStore)

	dispatcher := dispatch.New(dispatch.Config{
		Fingerprinter: fingerprint.New(encoder, logger),
		Store:         store,
		Rules:         ruleTable,
		Router:        tierRouter,
		Gateway:       gw,
		Docs:          docStore,
		EnrichWorkers: cfg.Feedback.EnrichWorkers,
		Logger:        logger,
	})

	promoter := feedback.New(store, cfg.Feedback, logger)

	var logSource services.LogSource
	if cfg.LogSource.BaseURL != "" {
		logSource = repo.NewLogSourceClient(cfg.LogSource)
	}

	engine := services.New(dispatcher, promoter, store, logSource, docStore, logger)
	server := api.NewServer(engine, cfg.Server, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dispatcher shutdown", slog.Any("error", err))
	}
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", slog.Any("error", err))
	}
	if err := promoter.Shutdown(shutdownCtx); err != nil {
		logger.Warn("feedback promoter shutdown", slog.Any("error", err))
	}

	stopSweeper()
	if provider != nil {
		snapCtx, cancelSnap := context.WithTimeout(context.Background(), 5*time.Second)
		if err := store.SaveSnapshot(snapCtx); err != nil {
			logger.Warn("final snapshot failed", slog.Any("error", err))
		}
		cancelSnap()
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("scooby-engine stopped")
}
