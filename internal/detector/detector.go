// Package detector classifies fetched responses. Getting this wrong is
// expensive in both directions: treating a block as "item unavailable"
// corrupts downstream pricing decisions, and treating a missing item as a
// block burns retries and identities on a product that no longer exists.
package detector

import (
	"bytes"
	"net/http"
	"regexp"

	"github.com/maltedev/resale-sync/internal/models"
)

// maxBodyScanBytes caps how much of the body the marker patterns scan.
const maxBodyScanBytes = 256 * 1024

// blockPattern pairs a body marker with the classification it implies.
// Ordered by specificity: the first match wins.
type blockPattern struct {
	pattern *regexp.Regexp
	class   models.Classification
	note    string
}

var blockPatterns = []blockPattern{
	{
		pattern: regexp.MustCompile(`(?i)validateCaptcha`),
		class:   models.ClassCaptchaChallenge,
		note:    "click-through challenge form",
	},
	{
		pattern: regexp.MustCompile(`(?i)enter the characters you see below`),
		class:   models.ClassCaptchaChallenge,
		note:    "character challenge prompt",
	},
	{
		pattern: regexp.MustCompile(`(?i)geben sie die unten angezeigten zeichen ein`),
		class:   models.ClassCaptchaChallenge,
		note:    "character challenge prompt (de)",
	},
	{
		pattern: regexp.MustCompile(`(?i)robot\s?check`),
		class:   models.ClassBlocked,
		note:    "robot check interstitial",
	},
	{
		pattern: regexp.MustCompile(`(?i)automated access to`),
		class:   models.ClassBlocked,
		note:    "automated access notice",
	},
	{
		pattern: regexp.MustCompile(`(?i)automatisierte zugriffe`),
		class:   models.ClassBlocked,
		note:    "automated access notice (de)",
	},
	{
		pattern: regexp.MustCompile(`(?i)api-services-support@`),
		class:   models.ClassBlocked,
		note:    "bot wall contact address",
	},
}

// Product pages always carry a price widget and a delivery block. A 200
// response with neither is a stripped-down wall, not a product page.
var (
	priceMarkers = [][]byte{
		[]byte("a-price"),
		[]byte("priceToPay"),
		[]byte("priceblock"),
	}
	deliveryMarkers = [][]byte{
		[]byte("deliveryBlockMessage"),
		[]byte("DELIVERY_BLOCK"),
		[]byte("delivery-block"),
		[]byte("availability"),
	}
)

type Detector struct {
	minBodyBytes int
}

func New(minBodyBytes int) *Detector {
	return &Detector{minBodyBytes: minBodyBytes}
}

// Classify maps a response to its classification. Priority order: status
// 404, throttling statuses, body markers, body size, then the
// missing-page-structure heuristic.
func (d *Detector) Classify(statusCode int, body []byte) models.Classification {
	// A missing or delisted item is a fact, not a failure.
	if statusCode == http.StatusNotFound || statusCode == http.StatusGone {
		return models.ClassNotFound
	}

	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable {
		return models.ClassRateLimited
	}

	scan := body
	if len(scan) > maxBodyScanBytes {
		scan = scan[:maxBodyScanBytes]
	}

	for _, bp := range blockPatterns {
		if bp.pattern.Match(scan) {
			return bp.class
		}
	}

	if statusCode == http.StatusForbidden {
		return models.ClassBlocked
	}

	if len(body) < d.minBodyBytes {
		return models.ClassBlocked
	}

	if !containsAny(scan, priceMarkers) && !containsAny(scan, deliveryMarkers) {
		return models.ClassBlocked
	}

	return models.ClassOK
}

func containsAny(body []byte, markers [][]byte) bool {
	for _, m := range markers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return false
}
