// Package extractor turns a product page into the structured availability
// facts the engine reports: buy price, stock state, delivery promise, and
// the identity of the product the page actually rendered.
package extractor

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/resale-sync/internal/config"
	"github.com/maltedev/resale-sync/internal/models"
)

// deliveryRegionSelectors locate the page regions that carry delivery
// promises for the main offer. Order reflects template generations still in
// rotation.
var deliveryRegionSelectors = []string{
	`#mir-layout-DELIVERY_BLOCK`,
	`#deliveryBlockMessage`,
	`[data-csa-c-content-id="DEXUnifiedCXPDM"]`,
	`#delivery-block`,
	`.delivery-message`,
}

// sponsoredContainerSelector marks regions belonging to sponsored offers.
// Their prices and promises describe a different seller's listing and must
// never leak into the main offer's result.
const sponsoredContainerSelector = `[data-component-type="sp-sponsored-result"], .sponsored-products, #sp_detail, #sims-sponsored-products`

var (
	inStockPattern     = regexp.MustCompile(`(?i)(in stock|auf lager|nur noch \d+|only \d+ left)`)
	unavailablePattern = regexp.MustCompile(`(?i)(currently unavailable|derzeit nicht verfügbar|nicht auf lager|out of stock)`)
)

// Page holds the raw facts lifted from one parsed product page, before any
// result-level interpretation.
type Page struct {
	ReportedID  string
	Title       string
	Price       *float64
	Currency    string
	InStock     bool
	Unavailable bool
	Delivery    []models.DeliveryCandidate
}

type Extractor struct {
	policy           config.DeliverySelection
	maxDeliveryDays  int
	fastDeliveryDays int
	logger           *slog.Logger
}

func New(cfg config.EngineConfig) *Extractor {
	return &Extractor{
		policy:           cfg.DeliverySelection,
		maxDeliveryDays:  cfg.MaxDeliveryDays,
		fastDeliveryDays: cfg.FastDeliveryDays,
		logger:           slog.Default().With("component", "extractor"),
	}
}

// ParsePage reads one product page. ref anchors relative delivery promises
// ("tomorrow") to the moment the page was fetched.
func (e *Extractor) ParsePage(body []byte, ref time.Time) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse product page: %w", err)
	}

	page := &Page{
		ReportedID: extractReportedID(doc),
		Title:      strings.TrimSpace(doc.Find("#productTitle").First().Text()),
	}

	page.Price, page.Currency = extractPrice(doc)

	availText := strings.ToLower(strings.TrimSpace(doc.Find("#availability").First().Text()))
	page.InStock = inStockPattern.MatchString(availText)
	page.Unavailable = unavailablePattern.MatchString(availText)

	page.Delivery = e.extractDelivery(doc, ref)

	return page, nil
}

// extractDelivery walks the known delivery regions, skipping anything inside
// a sponsored container, and parses each region's text independently.
func (e *Extractor) extractDelivery(doc *goquery.Document, ref time.Time) []models.DeliveryCandidate {
	var candidates []models.DeliveryCandidate
	seen := make(map[string]bool)

	for _, sel := range deliveryRegionSelectors {
		doc.Find(sel).Each(func(_ int, region *goquery.Selection) {
			if region.Closest(sponsoredContainerSelector).Length() > 0 {
				return
			}

			text := normalizeSpace(region.Text())
			if text == "" || seen[text] {
				return
			}
			seen[text] = true

			candidate, ok := ParseDeliveryText(text, ref, e.policy)
			if !ok {
				return
			}
			if candidate.DaysUntilDelivery > e.maxDeliveryDays {
				e.logger.Debug("delivery candidate beyond horizon, discarded",
					"days", candidate.DaysUntilDelivery, "text", candidate.RawText)
				return
			}

			candidates = append(candidates, candidate)
		})
	}

	return candidates
}

// BuildResult interprets a parsed page into the engine's result contract.
// Attempts and terminal error kinds are the executor's business; this layer
// only states what the page said.
func (e *Extractor) BuildResult(productID string, page *Page, checkedAt time.Time) models.AvailabilityResult {
	result := models.AvailabilityResult{
		ProductID: productID,
		CheckedAt: checkedAt,
	}

	if page.Price == nil {
		// A page without any buy price has no purchasable main offer.
		result.Available = false
		result.InStock = false
		return result
	}

	result.Price = page.Price
	result.Currency = page.Currency
	result.Available = !page.Unavailable
	// Absent an explicit stock banner, a priced and orderable offer counts
	// as stocked.
	result.InStock = page.InStock || result.Available

	if chosen, ok := SelectCandidate(page.Delivery, e.policy); ok {
		date := chosen.ParsedDate
		days := chosen.DaysUntilDelivery
		result.DeliveryDate = &date
		result.DaysUntilDelivery = &days
		result.FastDelivery = days <= e.fastDeliveryDays
		result.PriorityChannel = chosen.PriorityChannel
	} else if result.Available {
		// Price parsed, delivery did not. The price is still trustworthy;
		// flag the gap instead of failing the whole check.
		result.Warning = models.ErrKindParseFailure
	}

	return result
}

// NeedsVariantFallback reports the price-without-delivery signature: the
// requested variant may not be the one the page rendered by default.
func NeedsVariantFallback(page *Page) bool {
	return page.Price != nil && len(page.Delivery) == 0 && !page.Unavailable
}

func extractReportedID(doc *goquery.Document) string {
	if v, ok := doc.Find(`input#ASIN`).First().Attr("value"); ok && v != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`input[name="ASIN"]`).First().Attr("value"); ok && v != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`#dp`).First().Attr("data-asin"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

var spacePattern = regexp.MustCompile(`\s+`)

func normalizeSpace(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}
