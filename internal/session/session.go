// Package session owns the pool of browser identities the engine presents to
// the target site. A session binds a TLS/browser fingerprint to a cookie jar
// and a randomized request budget; the rotator retires and replaces sessions
// so no identity accumulates a suspicious request history.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/google/uuid"

	"github.com/maltedev/resale-sync/internal/config"
	"github.com/maltedev/resale-sync/internal/fingerprint"
)

var (
	ErrBudgetExhausted = errors.New("session request budget exhausted")
)

// HTTPClient is the narrow slice of tls-client the session layer needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientFactory builds the transport for a new identity. Tests substitute a
// fake; production uses DefaultClientFactory.
type ClientFactory func(profile fingerprint.Profile, timeout time.Duration) (HTTPClient, error)

// DefaultClientFactory builds a tls-client with the profile's client hello,
// a fresh cookie jar, and automatic content decoding.
func DefaultClientFactory(profile fingerprint.Profile, timeout time.Duration) (HTTPClient, error) {
	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(int(timeout.Seconds())),
		tls_client.WithClientProfile(profile.ClientProfile),
		tls_client.WithCookieJar(tls_client.NewCookieJar()),
		tls_client.WithRandomTLSExtensionOrder(),
	}

	client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tls client: %w", err)
	}
	return client, nil
}

// Session is one simulated visitor: fingerprint, cookie jar (inside the
// client), and a request counter bounded by a randomized budget.
type Session struct {
	ID            string
	Profile       fingerprint.Profile
	RequestCount  int
	RequestBudget int
	CreatedAt     time.Time

	client HTTPClient
}

// Exhausted reports whether the session has spent its request budget.
func (s *Session) Exhausted() bool {
	return s.RequestCount >= s.RequestBudget
}

// Get fetches a URL through this identity, presenting the session's
// fingerprint headers. Every call counts against the budget; callers must
// obtain sessions through a Rotator, which replaces them strictly before the
// budget is crossed.
func (s *Session) Get(ctx context.Context, rawURL string) (int, []byte, error) {
	if s.Exhausted() {
		return 0, nil, ErrBudgetExhausted
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header = http.Header{
		"user-agent":                {s.Profile.UserAgent},
		"accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
		"accept-language":           {s.Profile.AcceptLanguage},
		"upgrade-insecure-requests": {"1"},
		"sec-ch-ua-platform":        {s.Profile.Platform},
		http.HeaderOrderKey: {
			"user-agent", "accept", "accept-language",
			"upgrade-insecure-requests", "sec-ch-ua-platform",
		},
	}

	s.RequestCount++

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, body, nil
}

// Rotator hands out a usable session, creating one lazily and replacing it
// when its budget runs out or after a block event. A Rotator is owned by
// exactly one worker; it is not safe for concurrent use.
type Rotator struct {
	cfg      config.EngineConfig
	factory  ClientFactory
	profiles []fingerprint.Profile
	logger   *slog.Logger

	current *Session

	// sleep is injectable so tests do not wait out cooldowns.
	sleep func(ctx context.Context, d time.Duration) error
}

type RotatorOption func(*Rotator)

func WithClientFactory(f ClientFactory) RotatorOption {
	return func(r *Rotator) { r.factory = f }
}

func WithProfiles(set []fingerprint.Profile) RotatorOption {
	return func(r *Rotator) { r.profiles = set }
}

func WithSleep(f func(ctx context.Context, d time.Duration) error) RotatorOption {
	return func(r *Rotator) { r.sleep = f }
}

func NewRotator(cfg config.EngineConfig, opts ...RotatorOption) *Rotator {
	r := &Rotator{
		cfg:      cfg,
		factory:  DefaultClientFactory,
		profiles: fingerprint.Defaults(),
		logger:   slog.Default().With("component", "session_rotator"),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Session returns the current session, creating a replacement if none exists
// or the budget is exhausted. Replacing an exhausted session sleeps a
// randomized cooldown first, so identity turnover has no fixed period.
func (r *Rotator) Session(ctx context.Context) (*Session, error) {
	if r.current != nil && !r.current.Exhausted() {
		return r.current, nil
	}

	if r.current != nil {
		cooldown := randomDuration(r.cfg.SessionCooldownMin, r.cfg.SessionCooldownMax)
		r.logger.Info("session budget exhausted, cooling down",
			"session_id", r.current.ID,
			"requests", r.current.RequestCount,
			"cooldown", cooldown)
		if err := r.sleep(ctx, cooldown); err != nil {
			return nil, err
		}
	}

	return r.replace(ctx)
}

// Reset retires the current session immediately. Called after a BLOCKED
// classification: the identity is suspect and must not issue more requests.
func (r *Rotator) Reset() {
	if r.current != nil {
		r.logger.Warn("session retired after block",
			"session_id", r.current.ID,
			"requests", r.current.RequestCount)
	}
	r.current = nil
}

func (r *Rotator) replace(ctx context.Context) (*Session, error) {
	profile := fingerprint.Random(r.profiles)

	client, err := r.factory(profile, r.cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to build session transport: %w", err)
	}

	budget := r.cfg.SessionBudgetMin
	if spread := r.cfg.SessionBudgetMax - r.cfg.SessionBudgetMin; spread > 0 {
		budget += rand.Intn(spread + 1)
	}

	s := &Session{
		ID:            uuid.NewString(),
		Profile:       profile,
		RequestBudget: budget,
		CreatedAt:     time.Now(),
		client:        client,
	}

	// Warm-up fetch seeds cookies so the first product request does not
	// arrive from a cookie-less client.
	status, _, err := s.Get(ctx, r.cfg.BaseURL+"/")
	if err != nil {
		return nil, fmt.Errorf("session warm-up failed: %w", err)
	}

	r.logger.Info("session created",
		"session_id", s.ID,
		"profile", profile.Name,
		"budget", budget,
		"warmup_status", status)

	r.current = s
	return s, nil
}

func randomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
