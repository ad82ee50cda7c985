package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/auth"
	"storefront/internal/broker"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	sessionIdleTimeout = 30 * time.Minute
	sessionPruneEvery  = 5 * time.Minute
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, util.FileOutput{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service",
		zap.String("instance_id", cfg.Server.InstanceID),
		zap.String("store_driver", cfg.Store.Driver))

	tp, err := util.InitTracer("storefront", cfg.Server.InstanceID, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("Failed to load display timezone", zap.Error(err))
	}

	backend, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer backend.Close()
	logger.Info("Store connected", zap.String("driver", cfg.Store.Driver))

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	verifier, err := newVerifier(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize auth", zap.Error(err))
	}

	lookups := store.NewCachedLookups(backend, redisClient, cfg.Redis.CacheTTL)
	denormalizer := service.NewDenormalizer(lookups, loc, cfg.Business.DefaultProductImage)
	aggregator := service.NewAggregator(backend, denormalizer, cfg.Business.LookupConcurrency)
	gateway := service.NewGateway(backend, redisClient, eventPublisher, cfg.Server.InstanceID, cfg.Business.MutationLockTTL)
	registry := service.NewSessionRegistry(aggregator, gateway, service.CancelPolicy(cfg.Business.CancelPolicy))
	bookingService := service.NewBookingService(
		backend,
		redisClient,
		eventPublisher,
		registry,
		lookups,
		denormalizer,
		cfg.Server.InstanceID,
		cfg.Business.NonSubscribableProducts,
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	// every instance reads the full topic
	groupID := fmt.Sprintf("%s-%s", cfg.Kafka.ConsumerGroup, cfg.Server.InstanceID)
	eventConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking, groupID)
	eventWorker := worker.NewEventWorker(eventConsumer, cfg.Server.InstanceID, registry, lookups)
	go func() {
		if err := eventWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Event worker error", zap.Error(err))
		}
	}()

	go pruneSessions(workerCtx, registry)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(bookingService, registry, verifier, backend, loc, map[string]api.Pinger{
		"store": backend,
		"redis": redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := eventWorker.Stop(); err != nil {
		logger.Error("Error stopping event worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

func openStore(cfg *config.Config) (store.Backend, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		m, err := store.NewMongo(cfg.Store.MongoURI, cfg.Store.MongoDB)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		pg, err := store.NewPostgres(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, err
			}
		}
		return pg, nil
	}
}

func newVerifier(cfg *config.Config) (auth.Verifier, error) {
	if cfg.Auth.Mode == config.AuthDev {
		util.GetLogger().Warn("Dev auth enabled; bearer tokens are not verified")
		return auth.DevVerifier{}, nil
	}
	v, err := auth.NewFirebaseVerifier(context.Background(), cfg.Auth.ProjectID, cfg.Auth.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func pruneSessions(ctx context.Context, registry *service.SessionRegistry) {
	ticker := time.NewTicker(sessionPruneEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := registry.Prune(sessionIdleTimeout); n > 0 {
				util.GetLogger().Debug("Pruned idle sessions", zap.Int("count", n), zap.Int("live", registry.Len()))
			}
		}
	}
}
