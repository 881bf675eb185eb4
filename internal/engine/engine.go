// Package engine is the public face of the availability checker. It fans
// queries out over a pool of workers, each running its own executor with a
// private session rotator and rate limiter, so one worker's block never
// contaminates another's identity.
package engine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/resale-sync/internal/config"
	"github.com/maltedev/resale-sync/internal/executor"
	"github.com/maltedev/resale-sync/internal/models"
)

// Checker runs a single availability check. Satisfied by *executor.Executor;
// tests substitute fakes.
type Checker interface {
	Check(ctx context.Context, query models.Query) models.AvailabilityResult
}

// ResultCache stores results for the freshness window. Satisfied by
// *cache.Cache.
type ResultCache interface {
	Get(ctx context.Context, productID, location string) (*models.AvailabilityResult, error)
	Set(ctx context.Context, result models.AvailabilityResult, location string) error
}

type Engine struct {
	cfg     config.EngineConfig
	factory func() Checker
	cache   ResultCache
	logger  *slog.Logger
}

type Option func(*Engine)

// WithCheckerFactory replaces the per-worker executor constructor.
func WithCheckerFactory(f func() Checker) Option {
	return func(e *Engine) { e.factory = f }
}

func WithCache(c ResultCache) Option {
	return func(e *Engine) { e.cache = c }
}

func New(cfg config.EngineConfig, opts ...Option) *Engine {
	e := &Engine{
		cfg: cfg,
		factory: func() Checker {
			return executor.New(cfg)
		},
		logger: slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckAvailability resolves one query on a dedicated worker. Like every
// engine entry point it returns a result, never an error.
func (e *Engine) CheckAvailability(ctx context.Context, query models.Query) models.AvailabilityResult {
	location := e.location(query)

	if cached := e.fromCache(ctx, query.ProductID, location); cached != nil {
		return *cached
	}

	result := e.factory().Check(ctx, query)
	e.toCache(ctx, result, location)
	return result
}

// CheckBatch resolves a set of queries over the configured worker pool.
// Results are positionally aligned with the input.
func (e *Engine) CheckBatch(ctx context.Context, queries []models.Query) []models.AvailabilityResult {
	results := make([]models.AvailabilityResult, len(queries))

	type job struct {
		index int
		query models.Query
	}

	jobs := make(chan job)

	workers := e.cfg.Workers
	if workers > len(queries) {
		workers = len(queries)
	}
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		checker := e.factory()
		g.Go(func() error {
			for j := range jobs {
				location := e.location(j.query)
				if cached := e.fromCache(gctx, j.query.ProductID, location); cached != nil {
					results[j.index] = *cached
					continue
				}
				result := checker.Check(gctx, j.query)
				e.toCache(gctx, result, location)
				results[j.index] = result
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for i, q := range queries {
			select {
			case jobs <- job{index: i, query: q}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		// Workers always drain; only the feeder can error, on cancellation.
		// Unprocessed slots become transport failures so the output stays
		// positionally complete.
		now := time.Now()
		for i := range results {
			if results[i].ProductID == "" {
				results[i] = models.FailureResult(queries[i].ProductID, models.ErrKindTransport, 0, now)
			}
		}
	}

	e.logger.Info("batch finished", "queries", len(queries), "workers", workers)
	return results
}

func (e *Engine) location(q models.Query) string {
	if q.LocationContext != "" {
		return q.LocationContext
	}
	return e.cfg.DefaultLocation
}

func (e *Engine) fromCache(ctx context.Context, productID, location string) *models.AvailabilityResult {
	if e.cache == nil {
		return nil
	}

	cached, err := e.cache.Get(ctx, productID, location)
	if err != nil {
		e.logger.Warn("cache read failed", "product_id", productID, "error", err)
		return nil
	}
	if cached != nil {
		e.logger.Debug("cache hit", "product_id", productID, "location", location)
	}
	return cached
}

func (e *Engine) toCache(ctx context.Context, result models.AvailabilityResult, location string) {
	if e.cache == nil || !result.Trusted() {
		return
	}
	if err := e.cache.Set(ctx, result, location); err != nil {
		e.logger.Warn("cache write failed", "product_id", result.ProductID, "error", err)
	}
}
