package variant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/resale-sync/internal/config"
	"github.com/maltedev/resale-sync/internal/extractor"
)

var refDate = time.Date(2025, time.December, 18, 14, 30, 0, 0, time.UTC)

func testExtractor() *extractor.Extractor {
	return extractor.New(config.EngineConfig{
		DeliverySelection: config.SelectEarliest,
		MaxDeliveryDays:   30,
		FastDeliveryDays:  1,
	})
}

func parentPage(dimensionData string) []byte {
	return []byte(`
		<html><body>
			<script>
				var obj = {"parentAsin":"B0PARENT999",
					"dimensionValuesDisplayData":` + dimensionData + `};
			</script>
			<span class="priceToPay"><span class="a-offscreen">$34.99</span></span>
		</body></html>`)
}

func variantPage(asin string) []byte {
	return []byte(`
		<html><body>
			<input id="ASIN" type="hidden" value="` + asin + `">
			<div id="corePriceDisplay_desktop_feature_div">
				<span class="priceToPay"><span class="a-offscreen">$29.99</span></span>
			</div>
			<div id="mir-layout-DELIVERY_BLOCK">FREE delivery Monday, December 22</div>
		</body></html>`)
}

func TestResolveSuccess(t *testing.T) {
	r := NewResolver("https://www.example.com", testExtractor())

	var fetchedURL string
	fetch := func(_ context.Context, rawURL string) (int, []byte, error) {
		fetchedURL = rawURL
		return 200, variantPage("B0VARIANT01"), nil
	}

	body := parentPage(`{"B0VARIANT01":["M","Blue"],"B0VARIANT02":["L","Blue"]}`)

	page, err := r.Resolve(context.Background(), fetch, "B0VARIANT01", body, refDate)
	require.NoError(t, err)

	assert.Equal(t, "https://www.example.com/dp/B0VARIANT01?th=1&psc=1", fetchedURL)
	assert.Equal(t, "B0VARIANT01", page.ReportedID)
	require.NotNil(t, page.Price)
	assert.InDelta(t, 29.99, *page.Price, 0.001)
	require.Len(t, page.Delivery, 1)
}

func TestResolveIdentityMismatchIsHardReject(t *testing.T) {
	r := NewResolver("https://www.example.com", testExtractor())

	// The site silently swaps in a sibling variant.
	fetch := func(_ context.Context, _ string) (int, []byte, error) {
		return 200, variantPage("B0VARIANT02"), nil
	}

	body := parentPage(`{"B0VARIANT01":["M","Blue"],"B0VARIANT02":["L","Blue"]}`)

	page, err := r.Resolve(context.Background(), fetch, "B0VARIANT01", body, refDate)
	assert.ErrorIs(t, err, ErrIdentityMismatch)
	assert.Nil(t, page)
}

func TestResolveNoVariantData(t *testing.T) {
	r := NewResolver("https://www.example.com", testExtractor())

	fetch := func(_ context.Context, _ string) (int, []byte, error) {
		t.Fatal("fetch must not be called without a variant map")
		return 0, nil, nil
	}

	_, err := r.Resolve(context.Background(), fetch, "B0VARIANT01", []byte(`<html><body>plain page</body></html>`), refDate)
	assert.ErrorIs(t, err, ErrNoVariantData)
}

func TestResolveVariantUnlisted(t *testing.T) {
	r := NewResolver("https://www.example.com", testExtractor())

	fetch := func(_ context.Context, _ string) (int, []byte, error) {
		t.Fatal("fetch must not be called for an unlisted variant")
		return 0, nil, nil
	}

	body := parentPage(`{"B0VARIANT02":["L","Blue"]}`)

	_, err := r.Resolve(context.Background(), fetch, "B0VARIANT01", body, refDate)
	assert.ErrorIs(t, err, ErrVariantUnlisted)
}

func TestParseVariantMap(t *testing.T) {
	vm, ok := parseVariantMap(parentPage(`{"B0VARIANT01":["M"],"B0VARIANT02":["L"]}`))
	require.True(t, ok)
	assert.Equal(t, "B0PARENT999", vm.parent)
	assert.Len(t, vm.dimensions, 2)

	_, ok = parseVariantMap([]byte(`no variant data here`))
	assert.False(t, ok)

	_, ok = parseVariantMap([]byte(`"dimensionValuesDisplayData": {}`))
	assert.False(t, ok)
}
