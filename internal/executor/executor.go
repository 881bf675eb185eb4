// Package executor drives the fetch lifecycle for one availability check:
// attempt, classify, then retry, rotate, solve, or stop. It owns the retry
// budget and converts every outcome into a result; nothing escapes as a
// raised error.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/url"
	"time"

	"github.com/maltedev/resale-sync/internal/captcha"
	"github.com/maltedev/resale-sync/internal/config"
	"github.com/maltedev/resale-sync/internal/detector"
	"github.com/maltedev/resale-sync/internal/extractor"
	"github.com/maltedev/resale-sync/internal/models"
	"github.com/maltedev/resale-sync/internal/ratelimit"
	"github.com/maltedev/resale-sync/internal/session"
	"github.com/maltedev/resale-sync/internal/variant"
)

// Executor runs checks through one rotator and one limiter. Like the
// rotator it wraps, an Executor belongs to a single worker and is not safe
// for concurrent use.
type Executor struct {
	cfg       config.EngineConfig
	rotator   *session.Rotator
	limiter   ratelimit.Limiter
	detector  *detector.Detector
	solver    *captcha.Solver
	extractor *extractor.Extractor
	resolver  *variant.Resolver
	logger    *slog.Logger

	// Location context applied to the current session. A rotation produces a
	// new session ID, so the switch runs again on the fresh identity.
	locatedSession string
	locatedZip     string

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

type Option func(*Executor)

func WithRotator(r *session.Rotator) Option {
	return func(e *Executor) { e.rotator = r }
}

func WithLimiter(l ratelimit.Limiter) Option {
	return func(e *Executor) { e.limiter = l }
}

func WithSleep(f func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = f }
}

func WithNow(f func() time.Time) Option {
	return func(e *Executor) { e.now = f }
}

func New(cfg config.EngineConfig, opts ...Option) *Executor {
	ex := extractor.New(cfg)

	e := &Executor{
		cfg:       cfg,
		rotator:   session.NewRotator(cfg),
		limiter:   ratelimit.NewPacedLimiter(cfg.BaseDelay, cfg.DelayJitter),
		detector:  detector.New(cfg.MinBodyBytes),
		solver:    captcha.NewSolver(cfg.BaseURL, cfg.MinBodyBytes),
		extractor: ex,
		resolver:  variant.NewResolver(cfg.BaseURL, ex),
		logger:    slog.Default().With("component", "executor"),
		sleep:     sleepCtx,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check resolves one availability query. It always returns a result: either
// trusted data, a partial success with a warning, or a terminal error kind.
func (e *Executor) Check(ctx context.Context, query models.Query) models.AvailabilityResult {
	location := query.LocationContext
	if location == "" {
		location = e.cfg.DefaultLocation
	}

	productURL := fmt.Sprintf("%s/dp/%s", e.cfg.BaseURL, query.ProductID)
	attempts := 0

	cooledDown := false

	for retry := 0; retry <= e.cfg.MaxRetries; retry++ {
		if retry > 0 && !cooledDown {
			delay := backoffDelay(e.cfg, retry-1)
			e.logger.Info("retrying after backoff",
				"product_id", query.ProductID,
				"retry", retry,
				"delay", delay)
			if err := e.sleep(ctx, delay); err != nil {
				return models.FailureResult(query.ProductID, models.ErrKindTransport, attempts, e.now())
			}
		}
		cooledDown = false

		sess, err := e.rotator.Session(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return models.FailureResult(query.ProductID, models.ErrKindTransport, attempts, e.now())
			}
			e.logger.Warn("session setup failed", "error", err)
			continue
		}

		if err := e.applyLocation(ctx, sess, location); err != nil {
			if ctx.Err() != nil {
				return models.FailureResult(query.ProductID, models.ErrKindTransport, attempts, e.now())
			}
			e.logger.Warn("location switch failed", "error", err, "location", location)
			e.rotator.Reset()
			continue
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return models.FailureResult(query.ProductID, models.ErrKindTransport, attempts, e.now())
		}

		attempts++
		status, body, err := sess.Get(ctx, productURL)
		if err != nil {
			if ctx.Err() != nil {
				return models.FailureResult(query.ProductID, models.ErrKindTransport, attempts, e.now())
			}
			e.logger.Warn("fetch failed",
				"product_id", query.ProductID,
				"attempt", attempts,
				"error", err)
			continue
		}

		class := e.detector.Classify(status, body)
		e.logger.Debug("response classified",
			"product_id", query.ProductID,
			"status", status,
			"class", class.String(),
			"body_bytes", len(body))

		switch class {
		case models.ClassNotFound:
			// Terminal fact about the product. The session did nothing
			// wrong; it stays in rotation.
			return models.FailureResult(query.ProductID, models.ErrKindNotFound, attempts, e.now())

		case models.ClassRateLimited:
			// Throttling punishes pace, not identity. Cool down and keep
			// the session; the fixed cooldown replaces the backoff wait for
			// this retry.
			if err := e.sleep(ctx, e.cfg.RateLimitCooldown); err != nil {
				return models.FailureResult(query.ProductID, models.ErrKindTransport, attempts, e.now())
			}
			cooledDown = true
			continue

		case models.ClassBlocked:
			e.rotator.Reset()
			continue

		case models.ClassCaptchaChallenge:
			solved, serr := e.solver.Solve(ctx, captcha.FetchFunc(e.sessionFetch(sess)), body)
			if serr != nil || !solved {
				e.logger.Warn("challenge not cleared, rotating identity",
					"solved", solved, "error", serr)
				e.rotator.Reset()
			}
			continue

		case models.ClassOK:
			return e.extract(ctx, sess, query.ProductID, body, attempts)
		}
	}

	return models.FailureResult(query.ProductID, models.ErrKindRetriesExhausted, attempts, e.now())
}

// extract turns an OK-classified body into the final result, running the
// variant fallback when the page shows a price but no delivery promise.
func (e *Executor) extract(ctx context.Context, sess *session.Session, productID string, body []byte, attempts int) models.AvailabilityResult {
	checkedAt := e.now()

	page, err := e.extractor.ParsePage(body, checkedAt)
	if err != nil {
		e.logger.Error("page unparseable", "product_id", productID, "error", err)
		return models.FailureResult(productID, models.ErrKindParseFailure, attempts, checkedAt)
	}

	if extractor.NeedsVariantFallback(page) {
		resolved, rerr := e.resolver.Resolve(ctx, variant.FetchFunc(e.sessionFetch(sess)), productID, body, checkedAt)
		switch {
		case rerr == nil:
			attempts++
			page = resolved
		case errors.Is(rerr, variant.ErrIdentityMismatch):
			return models.FailureResult(productID, models.ErrKindIdentityMismatch, attempts+1, checkedAt)
		case errors.Is(rerr, variant.ErrVariantUnlisted):
			// A parent page whose variant map omits the requested product has
			// no offer for it. Its rendered price belongs to some sibling
			// variant and must not be reported.
			e.logger.Warn("requested variant not offered on parent page",
				"product_id", productID)
			return models.AvailabilityResult{
				ProductID: productID,
				Available: false,
				Attempts:  attempts,
				CheckedAt: checkedAt,
			}
		default:
			// Resolution failed softly; the original page's price is still
			// trustworthy and the missing delivery becomes a warning.
			e.logger.Warn("variant fallback unresolved",
				"product_id", productID, "error", rerr)
		}
	}

	result := e.extractor.BuildResult(productID, page, checkedAt)
	result.Attempts = attempts
	return result
}

// applyLocation switches the session's delivery location once per session.
// The switch is cookie-bound, so a fresh identity starts with no location.
func (e *Executor) applyLocation(ctx context.Context, sess *session.Session, location string) error {
	if e.locatedSession == sess.ID && e.locatedZip == location {
		return nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	locationURL := fmt.Sprintf("%s%s?zipCode=%s",
		e.cfg.BaseURL, e.cfg.LocationPath, url.QueryEscape(location))

	status, _, err := sess.Get(ctx, locationURL)
	if err != nil {
		return fmt.Errorf("location request failed: %w", err)
	}

	e.logger.Debug("location context applied",
		"session_id", sess.ID, "location", location, "status", status)

	e.locatedSession = sess.ID
	e.locatedZip = location
	return nil
}

func (e *Executor) sessionFetch(sess *session.Session) func(ctx context.Context, rawURL string) (int, []byte, error) {
	return func(ctx context.Context, rawURL string) (int, []byte, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return 0, nil, err
		}
		return sess.Get(ctx, rawURL)
	}
}

// backoffDelay grows exponentially per retry with additive jitter, capped at
// the configured maximum. The jitter bound scales with the step to the next
// delay, so consecutive delays never decrease for any multiplier >= 1.
func backoffDelay(cfg config.EngineConfig, retry int) time.Duration {
	base := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(retry))

	jitterFrac := (cfg.BackoffMultiplier - 1) / 2
	if jitterFrac > 0.5 {
		jitterFrac = 0.5
	}
	jitter := rand.Float64() * base * jitterFrac

	delay := time.Duration(base + jitter)
	if delay > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
