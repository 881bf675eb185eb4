package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/resale-sync/internal/config"
	"github.com/maltedev/resale-sync/internal/database"
	"github.com/maltedev/resale-sync/internal/engine"
	"github.com/maltedev/resale-sync/internal/models"
)

// price-sync re-checks every tracked product on a fixed interval and records
// the outcomes. Changes surface on the availability stream through the
// transactional outbox, so downstream repricing reacts without polling the
// database.
func main() {
	var (
		interval  = flag.Duration("interval", 30*time.Minute, "Delay between sync rounds")
		batchSize = flag.Int("batch", 50, "Maximum products re-checked per round")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if !cfg.Database.Enabled {
		logger.Error("price-sync requires a database, set DB_ENABLED=true")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	snapshots := database.NewSnapshotRepository(db)

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}

		relay := database.NewRelay(db, redisClient, database.RelayConfig{})
		go func() {
			if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("relay stopped with error", "error", err)
			}
		}()
	}

	eng := engine.New(cfg.Engine)

	logger.Info("starting price sync",
		"interval", *interval,
		"batch_size", *batchSize,
		"workers", cfg.Engine.Workers)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	// First round runs immediately.
	syncRound(ctx, logger, snapshots, eng, *batchSize)

	for {
		select {
		case <-ctx.Done():
			logger.Info("price sync stopped")
			return
		case <-ticker.C:
			syncRound(ctx, logger, snapshots, eng, *batchSize)
		}
	}
}

func syncRound(ctx context.Context, logger *slog.Logger, snapshots *database.SnapshotRepository, eng *engine.Engine, batchSize int) {
	queries, err := snapshots.ListTracked(ctx, batchSize)
	if err != nil {
		logger.Error("failed to list tracked products", "error", err)
		return
	}

	if len(queries) == 0 {
		logger.Info("no tracked products due for a check")
		return
	}

	logger.Info("sync round started", "products", len(queries))

	results := eng.CheckBatch(ctx, queries)

	recorded, failed := 0, 0
	for i, result := range results {
		if err := snapshots.RecordCheck(ctx, result, queries[i].LocationContext); err != nil {
			logger.Error("failed to record check",
				"product_id", result.ProductID, "error", err)
			continue
		}
		recorded++
		if result.Error != models.ErrKindNone {
			failed++
		}
	}

	logger.Info("sync round finished",
		"products", len(queries),
		"recorded", recorded,
		"failed_checks", failed)
}
