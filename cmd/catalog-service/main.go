package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sneakly/catalog/pkg/audit"
	"github.com/sneakly/catalog/pkg/catalog"
	"github.com/sneakly/catalog/pkg/common/config"
	"github.com/sneakly/catalog/pkg/common/database"
	"github.com/sneakly/catalog/pkg/common/kafka"
	"github.com/sneakly/catalog/pkg/common/logger"
	"github.com/sneakly/catalog/pkg/common/middleware"
	"github.com/sneakly/catalog/pkg/fetch"
	"github.com/sneakly/catalog/pkg/observability/metrics"
	"github.com/sneakly/catalog/pkg/scraper"
	"github.com/sneakly/catalog/pkg/source"
	"github.com/sneakly/catalog/pkg/staging"
)

func main() {
	logger.Init("catalog-service")
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	runRepo := scraper.NewRepository(db)
	candidateRepo := staging.NewRepository(db)
	catalogRepo := catalog.NewRepository(db)
	auditor := audit.NewRecorder(db)
	if err := runRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate run tables")
	}
	if err := candidateRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate staging tables")
	}
	if err := catalogRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate catalog tables")
	}
	if err := auditor.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate audit tables")
	}

	policy, err := source.LoadPolicy(cfg.SourcePolicyPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load source policy")
	}

	adapters := make([]source.Adapter, 0, len(policy.Sources))
	overrides := make(map[string]fetch.DomainSettings, len(policy.Sources))
	for _, sc := range policy.Sources {
		adapters = append(adapters, source.NewCollyAdapter(sc, cfg.FetchUserAgent, cfg.FetchTimeout))
		overrides[sc.Domain] = fetch.DomainSettings{
			Workers:     sc.Workers,
			MinInterval: time.Duration(sc.MinIntervalMS) * time.Millisecond,
		}
	}
	registry, err := source.NewRegistry(adapters...)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to build source registry")
	}

	robots := fetch.NewRobotsChecker(
		&http.Client{Timeout: cfg.FetchTimeout},
		cfg.FetchUserAgent,
		database.GetRedis(),
		cfg.RobotsCacheTTL,
	)

	limiter := fetch.NewLimiter(fetch.Options{
		Defaults: fetch.DomainSettings{
			Workers:     cfg.FetchWorkersPerRun,
			MinInterval: cfg.FetchMinInterval,
		},
		Overrides:    overrides,
		FetchTimeout: cfg.FetchTimeout,
		MaxAttempts:  cfg.FetchMaxAttempts,
		BackoffBase:  cfg.FetchBackoffBase,
		BackoffCap:   cfg.FetchBackoffCap,
	})

	producer := kafka.NewProducer(cfg.KafkaRunsTopic)
	defer producer.Close()

	matcher := staging.NewMatcher(candidateRepo, catalogRepo, staging.JaroWinkler{}, 0.92)
	scheduler := scraper.NewScheduler(runRepo, registry, matcher, catalogRepo, robots, limiter, producer, auditor, scraper.Options{
		Workers:      cfg.FetchWorkersPerRun,
		RunTimeout:   cfg.RunTimeout,
		DefaultLimit: cfg.DefaultDiscoveryCap,
	})
	promotions := catalog.NewPromotionService(candidateRepo, catalogRepo, auditor)

	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1/catalog").Subrouter()
	scraper.NewHandler(scheduler).Register(api)
	catalog.NewHandler(candidateRepo, promotions, catalogRepo).Register(api)
	audit.NewHandler(auditor).Register(api)

	janitorStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.RunJanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := scheduler.FailOrphans(context.Background()); err != nil {
					logger.Log.WithError(err).Warn("run janitor sweep failed")
				}
			case <-janitorStop:
				return
			}
		}
	}()

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("catalog service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start catalog service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(janitorStop)

	logger.Log.Info("Shutting down catalog service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("catalog service forced to shutdown")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("failed to close postgres")
	}
	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Error("failed to close redis")
	}
	logger.Log.Info("catalog service stopped")
}
