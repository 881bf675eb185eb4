// Package captcha resolves the lightweight click-through challenge the
// target site serves before a hard block: a small page with a form whose
// hidden fields must be echoed back to a validation endpoint. Anything
// heavier than that is out of scope and falls through to the block path.
package captcha

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

var (
	ErrNoChallengeForm = errors.New("no challenge form found in page")
)

// FetchFunc issues one GET through the identity that received the challenge.
// The resubmission must present the same fingerprint that triggered it.
type FetchFunc func(ctx context.Context, rawURL string) (int, []byte, error)

type Solver struct {
	baseURL string
	// successBytes: a cleared challenge redirects into a real page; real
	// pages are far larger than the challenge interstitial.
	successBytes int
	logger       *slog.Logger
}

func NewSolver(baseURL string, successBytes int) *Solver {
	return &Solver{
		baseURL:      baseURL,
		successBytes: successBytes,
		logger:       slog.Default().With("component", "captcha_solver"),
	}
}

// Solve extracts the challenge form from the page and resubmits it once.
// It never loops: one attempt per request cycle, success or fall back to
// the standard block path.
func (s *Solver) Solve(ctx context.Context, fetch FetchFunc, page []byte) (bool, error) {
	validationURL, err := s.extractChallenge(page)
	if err != nil {
		return false, err
	}

	status, body, err := fetch(ctx, validationURL)
	if err != nil {
		return false, fmt.Errorf("challenge resubmission failed: %w", err)
	}

	solved := status == 200 && len(body) >= s.successBytes
	s.logger.Info("challenge resubmitted", "status", status, "body_bytes", len(body), "solved", solved)

	return solved, nil
}

// extractChallenge locates the challenge form and rebuilds its submission
// URL from the action target and hidden fields.
func (s *Solver) extractChallenge(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("failed to parse challenge page: %w", err)
	}

	form := doc.Find(`form[action*="validateCaptcha"]`).First()
	if form.Length() == 0 {
		return "", ErrNoChallengeForm
	}

	action, _ := form.Attr("action")
	if action == "" {
		return "", ErrNoChallengeForm
	}

	values := url.Values{}
	form.Find(`input[type="hidden"]`).Each(func(_ int, input *goquery.Selection) {
		name, _ := input.Attr("name")
		value, _ := input.Attr("value")
		if name != "" {
			values.Set(name, value)
		}
	})

	if len(values) == 0 {
		return "", ErrNoChallengeForm
	}

	target, err := url.Parse(action)
	if err != nil {
		return "", fmt.Errorf("invalid challenge form action %q: %w", action, err)
	}
	if !target.IsAbs() {
		base, err := url.Parse(s.baseURL)
		if err != nil {
			return "", fmt.Errorf("invalid base URL: %w", err)
		}
		target = base.ResolveReference(target)
	}

	query := target.Query()
	for key, vals := range values {
		for _, v := range vals {
			query.Set(key, v)
		}
	}
	target.RawQuery = query.Encode()

	return target.String(), nil
}
