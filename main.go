// main.go
package main

import (
	"context"
	"io"
	"log"

	"cinema-checkout/cmd"
	"cinema-checkout/internal/data/repository"
	"cinema-checkout/internal/gateway"
	"cinema-checkout/internal/gateway/payos"
	"cinema-checkout/internal/notification"
	"cinema-checkout/internal/wire"
	"cinema-checkout/pkg/database"
	"cinema-checkout/pkg/utils"

	"go.uber.org/zap"
)

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
		zap.String("hold_store", config.Booking.HoldStore),
		zap.String("notifier", config.Notifier.Driver),
	)

	// Database and schema
	if err := database.RunMigrations(database.ConnString(config.Database), config.Database.MigrationsPath); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	// Redis backs the seat holds and the price cache. Without it a single
	// instance can still run on in-memory holds.
	rdb, err := database.InitRedis(config.Redis)
	if err != nil {
		if config.Booking.HoldStore == utils.HoldStoreRedis {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		logger.Warn("Redis unavailable, running without price cache", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	repos := repository.NewRepository(db, rdb, config.Booking, logger)

	gateways := gateway.Registry{
		payos.Provider: payos.NewClient(config.PayOS, logger),
	}

	notifier, err := notification.New(config, logger)
	if err != nil {
		logger.Fatal("Failed to init notifier", zap.Error(err))
	}

	// Wire all dependencies
	app := wire.Wiring(repos, gateways, notifier, config, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.Scheduler.Start(ctx)

	err = cmd.APIServer(app.Router, config.App.Port, logger, func(context.Context) {
		app.Scheduler.Stop()
		if err := notifier.Close(); err != nil {
			logger.Warn("Failed to close notifier", zap.Error(err))
		}
		if closer, ok := repos.Reservation.(io.Closer); ok {
			closer.Close()
		}
	})
	if err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}
}
