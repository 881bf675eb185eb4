package extractor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Price extraction runs three rules in strict precedence order. The page
// renders several price-shaped numbers (strike-through list prices, per-unit
// prices, sponsored offers); only the customer-visible buy price is trusted,
// with the composite widget and the legacy block as fallbacks.

var (
	// Rule 1: the price the customer actually pays, rendered as a single
	// screen-reader string inside the buy widget.
	customerVisibleSelectors = []string{
		`#corePriceDisplay_desktop_feature_div .priceToPay .a-offscreen`,
		`span.apexPriceToPay .a-offscreen`,
		`#corePrice_feature_div .a-price .a-offscreen`,
	}

	// Rule 3: legacy single-element price blocks still served on some
	// page templates.
	legacyPriceSelectors = []string{
		`#priceblock_ourprice`,
		`#priceblock_dealprice`,
		`#priceblock_saleprice`,
		`#price_inside_buybox`,
	}

	priceDigits = regexp.MustCompile(`\d`)
)

// extractPrice returns the buy price and its currency, or nil when no rule
// produced a plausible value. A nil price is a fact about the page, not an
// error; the caller decides what it means.
func extractPrice(doc *goquery.Document) (*float64, string) {
	for _, sel := range customerVisibleSelectors {
		if price, currency, ok := parsePriceString(doc.Find(sel).First().Text()); ok {
			return &price, currency
		}
	}

	// Rule 2: composite widget splitting the value into whole and fraction
	// spans. Joined with a dot regardless of page locale.
	root := doc.Find(`#corePrice_feature_div, #corePriceDisplay_desktop_feature_div, #apex_desktop`).First()
	if root.Length() == 0 {
		root = doc.Selection
	}
	whole := strings.TrimSpace(root.Find(`.a-price-whole`).First().Text())
	fraction := strings.TrimSpace(root.Find(`.a-price-fraction`).First().Text())
	if whole != "" && fraction != "" {
		symbol := strings.TrimSpace(root.Find(`.a-price-symbol`).First().Text())
		joined := strings.Trim(whole, ".,") + "." + fraction
		if price, currency, ok := parsePriceString(symbol + joined); ok {
			return &price, currency
		}
	}

	for _, sel := range legacyPriceSelectors {
		if price, currency, ok := parsePriceString(doc.Find(sel).First().Text()); ok {
			return &price, currency
		}
	}

	return nil, ""
}

// parsePriceString normalizes a localized price string to a float. Handles
// both decimal conventions ("1.299,00 €" and "$1,299.00") by treating the
// last separator as the decimal point.
func parsePriceString(raw string) (float64, string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !priceDigits.MatchString(raw) {
		return 0, "", false
	}

	currency := detectCurrency(raw)

	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '.' || r == ',' {
			return r
		}
		return -1
	}, raw)

	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		// A lone comma is the decimal point when two digits follow,
		// otherwise a thousands separator.
		if len(cleaned)-lastComma-1 == 2 {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(cleaned, ".") > 1 {
			// Only the last dot separates the fraction.
			cleaned = strings.ReplaceAll(cleaned[:lastDot], ".", "") + cleaned[lastDot:]
		} else if len(cleaned)-lastDot-1 == 3 && lastDot > 0 {
			// "1.299" with no fraction span is a German thousands group.
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		}
	}

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || price <= 0 {
		return 0, "", false
	}

	return price, currency, true
}

func detectCurrency(raw string) string {
	switch {
	case strings.Contains(raw, "€") || strings.Contains(raw, "EUR"):
		return "EUR"
	case strings.Contains(raw, "$") || strings.Contains(raw, "USD"):
		return "USD"
	case strings.Contains(raw, "£") || strings.Contains(raw, "GBP"):
		return "GBP"
	default:
		return "EUR"
	}
}
