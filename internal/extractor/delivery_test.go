package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/resale-sync/internal/config"
	"github.com/maltedev/resale-sync/internal/models"
)

// Thursday, December 18, 2025.
var refDate = time.Date(2025, time.December, 18, 14, 30, 0, 0, time.UTC)

func TestParseDeliveryText(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		policy       config.DeliverySelection
		wantOK       bool
		wantDays     int
		wantDate     time.Time
		wantPriority bool
	}{
		{
			name:     "english weekday month day",
			text:     "FREE delivery Monday, December 22",
			policy:   config.SelectEarliest,
			wantOK:   true,
			wantDays: 4,
			wantDate: time.Date(2025, time.December, 22, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "german weekday day month",
			text:     "GRATIS Lieferung Mittwoch, 24. Dezember",
			policy:   config.SelectEarliest,
			wantOK:   true,
			wantDays: 6,
			wantDate: time.Date(2025, time.December, 24, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "same day english",
			text:     "Order within 2 hrs for delivery Today",
			policy:   config.SelectEarliest,
			wantOK:   true,
			wantDays: 0,
			wantDate: time.Date(2025, time.December, 18, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "next day german",
			text:     "Lieferung morgen",
			policy:   config.SelectEarliest,
			wantOK:   true,
			wantDays: 1,
			wantDate: time.Date(2025, time.December, 19, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "english range takes earliest bound",
			text:     "Delivery December 22 - 29",
			policy:   config.SelectEarliest,
			wantOK:   true,
			wantDays: 4,
			wantDate: time.Date(2025, time.December, 22, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "english range takes latest bound",
			text:     "Delivery December 22 - 29",
			policy:   config.SelectLatest,
			wantOK:   true,
			wantDays: 11,
			wantDate: time.Date(2025, time.December, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "english range crossing months",
			text:     "Arrives December 29 - January 5",
			policy:   config.SelectLatest,
			wantOK:   true,
			wantDays: 18,
			wantDate: time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "german range",
			text:     "Lieferung 22. - 29. Dezember",
			policy:   config.SelectEarliest,
			wantOK:   true,
			wantDays: 4,
			wantDate: time.Date(2025, time.December, 22, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "date in next year rolls over",
			text:     "FREE delivery Saturday, January 3",
			policy:   config.SelectEarliest,
			wantOK:   true,
			wantDays: 16,
			wantDate: time.Date(2026, time.January, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name:         "priority channel flagged",
			text:         "fastest delivery Tomorrow",
			policy:       config.SelectEarliest,
			wantOK:       true,
			wantDays:     1,
			wantDate:     time.Date(2025, time.December, 19, 0, 0, 0, 0, time.UTC),
			wantPriority: true,
		},
		{
			name:   "relative beats absolute when both present",
			text:   "Delivery Today, or Monday, December 22 with standard shipping",
			policy: config.SelectEarliest,
			wantOK: true,
			// Same/next-day language outranks the explicit date.
			wantDays: 0,
			wantDate: time.Date(2025, time.December, 18, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "no delivery grammar",
			text:   "Usually ships within 2 to 3 weeks",
			policy: config.SelectEarliest,
			wantOK: false,
		},
		{
			name:   "empty text",
			text:   "   ",
			policy: config.SelectEarliest,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate, ok := ParseDeliveryText(tt.text, refDate, tt.policy)

			if !tt.wantOK {
				assert.False(t, ok)
				return
			}

			require.True(t, ok)
			assert.Equal(t, tt.wantDays, candidate.DaysUntilDelivery)
			assert.True(t, candidate.ParsedDate.Equal(tt.wantDate),
				"got %s, want %s", candidate.ParsedDate, tt.wantDate)
			assert.Equal(t, tt.wantPriority, candidate.PriorityChannel)
		})
	}
}

func TestParseDeliveryTextRejectsInvertedRange(t *testing.T) {
	_, ok := ParseDeliveryText("Delivery December 29 - 22", refDate, config.SelectEarliest)
	assert.False(t, ok)
}

func TestSelectCandidate(t *testing.T) {
	candidates := []models.DeliveryCandidate{
		{RawText: "standard", DaysUntilDelivery: 5},
		{RawText: "express", DaysUntilDelivery: 1, PriorityChannel: true},
		{RawText: "economy", DaysUntilDelivery: 9},
	}

	earliest, ok := SelectCandidate(candidates, config.SelectEarliest)
	require.True(t, ok)
	assert.Equal(t, "express", earliest.RawText)
	assert.True(t, earliest.PriorityChannel)

	latest, ok := SelectCandidate(candidates, config.SelectLatest)
	require.True(t, ok)
	assert.Equal(t, "economy", latest.RawText)

	_, ok = SelectCandidate(nil, config.SelectEarliest)
	assert.False(t, ok)
}

func TestParseDeliveryTextIsIdempotent(t *testing.T) {
	first, ok1 := ParseDeliveryText("FREE delivery Monday, December 22", refDate, config.SelectEarliest)
	second, ok2 := ParseDeliveryText("FREE delivery Monday, December 22", refDate, config.SelectEarliest)

	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, first, second)
}
