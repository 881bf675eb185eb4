package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maltedev/resale-sync/internal/config"
	"github.com/maltedev/resale-sync/internal/engine"
	"github.com/maltedev/resale-sync/internal/models"
	"github.com/maltedev/resale-sync/internal/queue"
	"github.com/maltedev/resale-sync/internal/storage"
)

func main() {
	var (
		products    = flag.String("products", "", "Comma-separated list of product identifiers to check")
		inputFile   = flag.String("file", "", "File containing product identifiers (one per line)")
		location    = flag.String("location", "", "Delivery location context (postal code)")
		journalPath = flag.String("journal", "checks.json", "Path to the check journal file")
		output      = flag.String("output", "stdout", "Output format: stdout, json")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
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

	journal, err := storage.NewJournal(*journalPath)
	if err != nil {
		logger.Error("failed to open journal", "error", err)
		os.Exit(1)
	}

	taskQueue := queue.NewInMemoryQueue()
	defer taskQueue.Close()

	if err := loadTasks(taskQueue, journal, *products, *inputFile, *location); err != nil {
		logger.Error("failed to load tasks", "error", err)
		os.Exit(1)
	}

	if taskQueue.Size() == 0 {
		fmt.Fprintln(os.Stderr, "No products to check. Use -products or -file.")
		flag.Usage()
		os.Exit(1)
	}

	var queries []models.Query
	batch := queue.NewBatchQueue(taskQueue, taskQueue.Size())
	taskQueue.Close()
	tasks, err := batch.PopBatch(ctx)
	if err != nil {
		logger.Error("failed to drain queue", "error", err)
		os.Exit(1)
	}
	for _, task := range tasks {
		queries = append(queries, task.Query)
	}

	logger.Info("starting availability checks",
		"products", len(queries),
		"workers", cfg.Engine.Workers,
		"location", *location)

	eng := engine.New(cfg.Engine)
	results := eng.CheckBatch(ctx, queries)

	trusted, partial, failed := 0, 0, 0
	for i, result := range results {
		if err := journal.Record(result, queries[i].LocationContext); err != nil {
			logger.Error("failed to record result", "product_id", result.ProductID, "error", err)
		}

		switch {
		case result.Error != models.ErrKindNone:
			failed++
		case result.Warning != models.ErrKindNone:
			partial++
		default:
			trusted++
		}
	}

	if err := printResults(results, *output); err != nil {
		logger.Error("failed to print results", "error", err)
		os.Exit(1)
	}

	logger.Info("checks finished",
		"trusted", trusted,
		"partial", partial,
		"failed", failed)
}

func loadTasks(q *queue.InMemoryQueue, journal *storage.Journal, products, inputFile, location string) error {
	push := func(productID string) error {
		productID = strings.TrimSpace(productID)
		if productID == "" {
			return nil
		}
		query := models.Query{ProductID: productID, LocationContext: location}
		if err := journal.Track(query); err != nil {
			return err
		}
		return q.Push(queue.NewTask(query, 0))
	}

	if products != "" {
		for _, p := range strings.Split(products, ",") {
			if err := push(p); err != nil {
				return err
			}
		}
	}

	if inputFile != "" {
		f, err := os.Open(inputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if err := push(scanner.Text()); err != nil {
				return err
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
	}

	return nil
}

func printResults(results []models.AvailabilityResult, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	default:
		for _, r := range results {
			line := fmt.Sprintf("%s available=%t", r.ProductID, r.Available)
			if r.Price != nil {
				line += fmt.Sprintf(" price=%.2f %s", *r.Price, r.Currency)
			}
			if r.DaysUntilDelivery != nil {
				line += fmt.Sprintf(" delivery_days=%d", *r.DaysUntilDelivery)
			}
			if r.Error != models.ErrKindNone {
				line += fmt.Sprintf(" error=%s", r.Error)
			}
			if r.Warning != models.ErrKindNone {
				line += fmt.Sprintf(" warning=%s", r.Warning)
			}
			fmt.Println(line)
		}
		return nil
	}
}
