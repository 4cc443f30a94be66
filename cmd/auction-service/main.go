package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-storefront/internal/api/handlers"
	"auction-storefront/internal/config"
	"auction-storefront/internal/domain"
	"auction-storefront/internal/infrastructure/kafka"
	"auction-storefront/internal/infrastructure/leader"
	"auction-storefront/internal/infrastructure/memory"
	"auction-storefront/internal/infrastructure/metrics"
	"auction-storefront/internal/infrastructure/mysql"
	"auction-storefront/internal/infrastructure/redis"
	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"
	"auction-storefront/pkg/utils"

	redisClient "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a config file; ./config.yaml is used when present")
	pflag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting auction service", "config", cfg.GetConfigString())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := utils.InitializeRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	defer rdb.Close()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open store", "driver", cfg.Storage.Driver, "error", err)
	}
	defer closeStore()

	var cache domain.Cache
	switch cfg.Cache.Driver {
	case config.CacheRedis:
		cache = redis.NewRedisCache(rdb, cfg.Cache.Prefix)
	default:
		cache = memory.NewCache()
	}

	eventPublisher, closePublisher := newEventPublisher(cfg, rdb)
	defer closePublisher()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(registry)

	auctionService := services.NewAuctionService(store, cache, eventPublisher, log,
		services.WithMaxBidRetries(cfg.Auction.MaxBidRetries),
		services.WithCacheTTL(cfg.Cache.TTL),
		services.WithMetrics(recorder),
	)

	validator := services.NewBidValidator(redis.NewRedisBidRulesStore(rdb), log)
	if err := validator.LoadRules(ctx); err != nil {
		log.Warn("Failed to load bid rules, using defaults until they load", "error", err)
	}
	bidService := services.NewBidService(auctionService, validator, log)
	inventoryService := services.NewInventoryService(store, eventPublisher, recorder, log)

	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.Key, cfg.Leader.TTL, log)
	sweeper := services.NewAuctionSweeper(auctionService, leaderElection, cfg.Instance.ID,
		cfg.Auction.SweepSchedule, log)

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	if err := sweeper.Start(runCtx); err != nil {
		log.Fatal("Failed to start auction sweeper", "error", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}"}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.CORS.AllowedOrigins,
		AllowMethods: []string{
			http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
		},
		MaxAge: 86400,
	}))

	handlers.RegisterRoutes(e,
		handlers.NewAuctionHandler(auctionService, bidService, sweeper, log),
		handlers.NewInventoryHandler(inventoryService, log),
		registry,
	)

	serverAddr := cfg.Server.Address()
	log.Info("Starting auction server", "address", serverAddr)
	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction service...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	stopRun()
	if err := sweeper.Stop(); err != nil {
		log.Error("Failed to stop auction sweeper", "error", err)
	}

	log.Info("Auction service stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// openStore returns the configured store and a function releasing it.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (domain.Store, func(), error) {
	if cfg.Storage.Driver == config.StorageMemory {
		log.Warn("Using in-memory store; data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	db, err := utils.InitializeMysql(ctx, cfg.MySQL, log)
	if err != nil {
		return nil, nil, err
	}
	if cfg.MySQL.Migrate {
		if err := mysql.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close MySQL connection", "error", err)
		}
	}
	return mysql.NewStore(db), closeDB, nil
}

func newEventPublisher(cfg *config.Config, rdb *redisClient.Client) (domain.EventPublisher, func()) {
	if cfg.Events.Driver == config.EventsKafka {
		publisher := kafka.NewEventPublisher(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)
		return publisher, func() { publisher.Close() }
	}
	return redis.NewEventPublisher(rdb, cfg.Events.Channel), func() {}
}
