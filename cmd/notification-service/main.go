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
	"auction-storefront/internal/infrastructure/mysql"
	"auction-storefront/internal/infrastructure/redis"
	"auction-storefront/internal/infrastructure/websocket"
	"auction-storefront/internal/services"
	"auction-storefront/pkg/logger"
	"auction-storefront/pkg/utils"

	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a config file; ./config.yaml is used when present")
	pflag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithLevel(cfg.Log.Level)
	log.Info("Starting notification service", "config", cfg.GetConfigString())

	initCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Products are only checked against a shared database.
	var products websocket.ProductReader
	if cfg.Storage.Driver == config.StorageMySQL {
		db, err := utils.InitializeMysql(initCtx, cfg.MySQL, log)
		if err != nil {
			log.Fatal("Failed to connect to MySQL", "error", err)
		}
		defer db.Close()
		products = mysql.NewStore(db).Products()
	} else {
		log.Warn("No shared store configured; websocket connections are not checked against products")
	}

	var subscriber domain.EventSubscriber
	switch cfg.Events.Driver {
	case config.EventsKafka:
		// every notification instance needs every event, so each one reads as its own group
		groupID := "notification-" + cfg.Instance.ID
		kafkaSubscriber := kafka.NewEventSubscriber(cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic, groupID, log)
		defer kafkaSubscriber.Close()
		subscriber = kafkaSubscriber
	default:
		rdb, err := utils.InitializeRedis(initCtx, cfg.Redis, log)
		if err != nil {
			log.Fatal("Failed to connect to Redis", "error", err)
		}
		defer rdb.Close()
		subscriber = redis.NewRedisEventSubscriber(rdb, cfg.Events.Channel, log)
	}

	connManager := websocket.NewConnectionManager(log)
	notifier := websocket.NewWebSocketNotifier(connManager)
	eventListener := services.NewEventListener(notifier, notifier, log)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	go func() {
		if err := eventListener.Start(ctx, subscriber); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Event listener stopped", "error", err)
		}
	}()

	wsHandler := websocket.NewWebSocketHandler(products, connManager, cfg.CORS.AllowedOrigins, log)
	router := handlers.NewNotificationRouter(wsHandler, cfg.CORS.AllowedOrigins, log)

	server := &http.Server{
		Addr:              cfg.Notifier.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Starting notification server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down notification service...")
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Notification service stopped")
}
