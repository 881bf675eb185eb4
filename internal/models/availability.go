package models

import (
	"time"
)

// Query identifies one availability check: an opaque product identifier on the
// source marketplace plus the delivery location context (postal code) the
// check is performed against.
type Query struct {
	ProductID       string `json:"product_id"`
	LocationContext string `json:"location_context"`
}

// Classification is the outcome class of a single fetched response.
type Classification int

const (
	ClassOK Classification = iota
	ClassNotFound
	ClassRateLimited
	ClassBlocked
	ClassCaptchaChallenge
)

func (c Classification) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassNotFound:
		return "not_found"
	case ClassRateLimited:
		return "rate_limited"
	case ClassBlocked:
		return "blocked"
	case ClassCaptchaChallenge:
		return "captcha_challenge"
	default:
		return "unknown"
	}
}

// ErrorKind tags the unrecoverable failure classes surfaced to callers.
// The engine resolves retryable classes internally; a result either carries
// trusted data or one of these kinds, never a raised error.
type ErrorKind string

const (
	ErrKindNone             ErrorKind = ""
	ErrKindNotFound         ErrorKind = "not_found"
	ErrKindRetriesExhausted ErrorKind = "retries_exhausted"
	ErrKindIdentityMismatch ErrorKind = "identity_mismatch"
	ErrKindParseFailure     ErrorKind = "parse_failure"
	ErrKindTransport        ErrorKind = "transport"
)

// DeliveryCandidate is one delivery-promise fragment extracted from a page,
// prior to final selection.
type DeliveryCandidate struct {
	RawText           string    `json:"raw_text"`
	ParsedDate        time.Time `json:"parsed_date"`
	DaysUntilDelivery int       `json:"days_until_delivery"`
	PriorityChannel   bool      `json:"priority_channel"`
}

// AvailabilityResult is the engine's sole output contract. Optional fields
// are pointers: nil means the page did not yield that fact, never a default.
type AvailabilityResult struct {
	ProductID         string     `json:"product_id"`
	Available         bool       `json:"available"`
	InStock           bool       `json:"in_stock"`
	Price             *float64   `json:"price,omitempty"`
	Currency          string     `json:"currency,omitempty"`
	DeliveryDate      *time.Time `json:"delivery_date,omitempty"`
	DaysUntilDelivery *int       `json:"days_until_delivery,omitempty"`
	FastDelivery      bool       `json:"fast_delivery"`
	PriorityChannel   bool       `json:"priority_channel"`

	// Error is set only for the unrecoverable classes; Available is false
	// whenever Error is set.
	Error ErrorKind `json:"error,omitempty"`

	// Warning annotates a partial success: price is trustworthy but the
	// delivery promise could not be parsed. Available stays true.
	Warning ErrorKind `json:"warning,omitempty"`

	Attempts  int       `json:"attempts"`
	CheckedAt time.Time `json:"checked_at"`
}

// FailureResult builds the terminal result for an unrecoverable error kind.
func FailureResult(productID string, kind ErrorKind, attempts int, at time.Time) AvailabilityResult {
	return AvailabilityResult{
		ProductID: productID,
		Available: false,
		Error:     kind,
		Attempts:  attempts,
		CheckedAt: at,
	}
}

// Trusted reports whether the result carries data a downstream pricing or
// publication job may act on.
func (r AvailabilityResult) Trusted() bool {
	return r.Error == ErrKindNone && r.Available
}
