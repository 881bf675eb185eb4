// Package variant resolves the price-without-delivery signature: the page
// rendered a parent listing or a sibling variant instead of the requested
// one. The resolver inspects the page's variant map and re-fetches with
// explicit variant selection, verifying afterwards that the page now shows
// the product that was asked for.
package variant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/maltedev/resale-sync/internal/extractor"
)

var (
	// ErrIdentityMismatch means the re-fetched page reports a different
	// product than requested. Its data must be discarded: a price for the
	// wrong variant is worse than no price.
	ErrIdentityMismatch = errors.New("page reports a different product than requested")

	// ErrNoVariantData means the page carries no variant map to resolve
	// against.
	ErrNoVariantData = errors.New("no variant map on page")

	// ErrVariantUnlisted means the requested product is not among the
	// page's variants.
	ErrVariantUnlisted = errors.New("requested product not listed in variant map")
)

// FetchFunc issues one GET through the session that fetched the original
// page. Variant state is cookie-bound; switching identities mid-resolution
// would reset it.
type FetchFunc func(ctx context.Context, rawURL string) (int, []byte, error)

var (
	dimensionDataPattern = regexp.MustCompile(`"dimensionValuesDisplayData"\s*:\s*(\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\})`)
	parentIDPattern      = regexp.MustCompile(`"parentAsin"\s*:\s*"([A-Za-z0-9]+)"`)
)

// variantMap is the page's embedded mapping of variant identifiers to their
// dimension values (size, color).
type variantMap struct {
	parent     string
	dimensions map[string][]string
}

type Resolver struct {
	baseURL   string
	extractor *extractor.Extractor
	logger    *slog.Logger
}

func NewResolver(baseURL string, ex *extractor.Extractor) *Resolver {
	return &Resolver{
		baseURL:   baseURL,
		extractor: ex,
		logger:    slog.Default().With("component", "variant_resolver"),
	}
}

// Resolve attempts to recover the requested variant's real offer from a page
// showing the price-without-delivery signature. On success it returns the
// re-fetched page. ErrIdentityMismatch is a hard reject. ErrVariantUnlisted
// means the page is a true parent listing with no offer for the requested
// product; only ErrNoVariantData leaves the original page usable.
func (r *Resolver) Resolve(ctx context.Context, fetch FetchFunc, productID string, body []byte, ref time.Time) (*extractor.Page, error) {
	vm, ok := parseVariantMap(body)
	if !ok {
		return nil, ErrNoVariantData
	}

	if _, listed := vm.dimensions[productID]; !listed {
		r.logger.Warn("requested variant absent from variant map",
			"product_id", productID,
			"parent", vm.parent,
			"variants", len(vm.dimensions))
		return nil, ErrVariantUnlisted
	}

	// th=1 forces the variant's own offer; psc=1 pins the selection.
	variantURL := fmt.Sprintf("%s/dp/%s?th=1&psc=1", r.baseURL, productID)

	status, variantBody, err := fetch(ctx, variantURL)
	if err != nil {
		return nil, fmt.Errorf("variant re-fetch failed: %w", err)
	}
	if status != 200 {
		return nil, fmt.Errorf("variant re-fetch returned status %d", status)
	}

	page, err := r.extractor.ParsePage(variantBody, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to parse variant page: %w", err)
	}

	if page.ReportedID != "" && page.ReportedID != productID {
		r.logger.Warn("variant page identity mismatch",
			"requested", productID,
			"reported", page.ReportedID)
		return nil, ErrIdentityMismatch
	}

	r.logger.Info("variant resolved",
		"product_id", productID,
		"parent", vm.parent,
		"has_price", page.Price != nil,
		"delivery_candidates", len(page.Delivery))

	return page, nil
}

// parseVariantMap lifts the embedded variant JSON out of the page script.
// The data sits inside an inline script blob, not the DOM, so this is a
// regex-plus-json job rather than a selector one.
func parseVariantMap(body []byte) (*variantMap, bool) {
	m := dimensionDataPattern.FindSubmatch(body)
	if m == nil {
		return nil, false
	}

	dimensions := make(map[string][]string)
	if err := json.Unmarshal(m[1], &dimensions); err != nil {
		return nil, false
	}
	if len(dimensions) == 0 {
		return nil, false
	}

	vm := &variantMap{dimensions: dimensions}
	if pm := parentIDPattern.FindSubmatch(body); pm != nil {
		vm.parent = string(pm[1])
	}

	return vm, true
}
