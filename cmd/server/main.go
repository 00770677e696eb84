package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	jwtpkg "assistant/backend/internal/auth/jwt"
	"assistant/backend/internal/cache"
	"assistant/backend/internal/config"
	"assistant/backend/internal/extraction"
	"assistant/backend/internal/health"
	"assistant/backend/internal/imap"
	"assistant/backend/internal/importer"
	"assistant/backend/internal/logger"
	"assistant/backend/internal/monitoring"
	"assistant/backend/internal/secret"
	"assistant/backend/internal/service"
	"assistant/backend/internal/storage"
	"assistant/backend/internal/storage/backend"
	"assistant/backend/internal/storage/hybrid"
	"assistant/backend/internal/storage/memory"
	"assistant/backend/internal/storage/redis"
	httptransport "assistant/backend/internal/transport/http"
)

// main runs the HTTP API of the email-to-action pipeline.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.NewLogger(logger.FromConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting assistant server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("timezone", cfg.App.Timezone),
	)

	// ========== Storage ==========
	db, err := backend.Open(cfg.Database, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}

	var (
		store       storage.Store = db
		locker      storage.Locker
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = redis.New(cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		store = hybrid.NewStore(db, redis.NewCache(redisClient), log)
		locker = redis.NewLocker(redisClient)
		log.Info("redis cache and sync locks enabled", zap.String("address", cfg.Redis.Address))
	} else {
		locker = memory.NewLocker()
		log.Info("using in-process sync locks")

		if backend.Persistent(cfg.Database) && cfg.Database.LocalCacheSize > 0 {
			localCache := cache.NewLocalCache(cfg.Database.LocalCacheSize)
			defer localCache.Close()
			store = hybrid.NewStore(db, localCache, log)
			log.Info("in-process record cache enabled", zap.Int("max_entries", cfg.Database.LocalCacheSize))
		}
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("store close error", zap.Error(err))
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Warn("redis close error", zap.Error(err))
			}
		}
	}()

	sealer, err := secret.NewSealer(cfg.Secrets.Key)
	if err != nil {
		log.Fatal("failed to initialize secret sealer", zap.Error(err))
	}

	// ========== Monitoring ==========
	metrics := monitoring.NewMetrics()
	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	healthChecker := health.NewHealthChecker(store, redisPinger, log)

	alerts := monitoring.NewAlertManager(log)
	alerts.AddReceiver(monitoring.NewLogAlertReceiver(log))
	if cfg.Alerts.WebhookURL != "" {
		alerts.AddReceiver(monitoring.NewWebhookAlertReceiver(cfg.Alerts.WebhookURL, log))
	}
	alerts.AddRule(monitoring.DatabaseConnectionRule(store))
	alerts.AddRule(monitoring.SyncFailureRule(metrics.SyncRunsTotal, cfg.Alerts.SyncFailureThreshold))
	alerts.AddRule(monitoring.ExtractionFailureRule(metrics.ExtractionFailuresTotal, cfg.Alerts.ExtractionFailureThreshold))

	// ========== Pipeline ==========
	connector := imap.NewConnector(log, imap.WithDialTimeout(cfg.Mail.DialTimeout))
	mailImporter := importer.New(connector, store, log)

	generators := extraction.DefaultGenerators(cfg.AI, cfg.App.Location, log)
	engine := extraction.NewEngine(store, generators, log,
		extraction.WithLocation(cfg.App.Location),
		extraction.WithMetrics(metrics),
	)
	generatorNames := make([]string, 0, len(generators))
	for _, g := range generators {
		generatorNames = append(generatorNames, g.Name())
	}
	log.Info("extraction generators configured", zap.Strings("generators", generatorNames))

	mailService := service.NewMailService(service.MailServiceDeps{
		Accounts: store,
		Messages: store,
		Importer: mailImporter,
		Analyzer: engine,
		Locker:   locker,
		Sealer:   sealer,
		Config:   cfg.Mail,
		Metrics:  metrics,
		Logger:   log,
	})

	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		AccountService: service.NewAccountService(store, sealer, log),
		MessageService: service.NewMessageService(store),
		MailService:    mailService,
		TaskService:    service.NewTaskService(store),
		NoteService:    service.NewNoteService(store),
		UserService:    service.NewUserService(store),
		JWTManager:     jwtManager,
		HealthChecker:  healthChecker,
		Metrics:        metrics,
		Logger:         log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	// Sync requests may run for the whole sync timeout.
	writeTimeout := cfg.Mail.SyncTimeout + 30*time.Second
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting alert monitoring", zap.Duration("interval", cfg.Alerts.Interval))
		alerts.StartMonitoring(groupCtx, cfg.Alerts.Interval)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
		return
	}

	log.Info("server exited cleanly")
}
