package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/binance"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/config"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/database"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/events"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/logger"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/metrics"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/trader"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded", zap.String("bot", cfg.Bot.Name), zap.String("user_id", cfg.Bot.UserID))

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	store, err := database.Open(ctx, cfg.Database, cfg.Strategy, logger.Component(log, "store"))
	if err != nil {
		log.Fatal("Failed to open store", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer store.Close()

	// Initialize Binance REST client
	restClient, err := signingClient(ctx, binance.NewRestClient(&cfg.Binance, logger.Component(log, "binance")),
		store, cfg.Credentials.EncryptionKey, cfg.Bot.UserID, log)
	if err != nil {
		log.Fatal("Failed to load API credentials", zap.Error(err))
	}
	if _, err := restClient.GetServerTime(ctx); err != nil {
		log.Fatal("Failed to connect to Binance API", zap.Error(err))
	}
	log.Info("Successfully connected to Binance API.")

	publisher, err := events.NewPublisher(ctx, cfg.Redis, logger.Component(log, "events"))
	if err != nil {
		log.Fatal("Failed to connect to event bus", zap.Error(err))
	}
	defer publisher.Close()

	strategy, err := trader.NewStrategy(cfg.Bot.Strategy)
	if err != nil {
		log.Fatal("Failed to select strategy", zap.Error(err))
	}

	// Initialize and run the trading engine
	tradeEngine := trader.NewEngine(logger.Component(log, "engine"), &cfg, restClient, store, strategy, publisher, metrics.New())

	apiServer := trader.NewAPIServer(tradeEngine, log)
	apiServer.Start()

	if err := tradeEngine.Run(ctx); err != nil {
		log.Error("Trading engine stopped with error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
