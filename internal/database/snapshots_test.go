package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/maltedev/resale-sync/internal/models"
)

func trustedResult(price float64) models.AvailabilityResult {
	return models.AvailabilityResult{
		ProductID: "B0TEST12345",
		Available: true,
		InStock:   true,
		Price:     &price,
		Currency:  "EUR",
		Attempts:  1,
		CheckedAt: time.Now(),
	}
}

func TestSnapshotChanged(t *testing.T) {
	price := 34.99

	tests := []struct {
		name   string
		prev   *ProductSnapshot
		result models.AvailabilityResult
		want   bool
	}{
		{
			name:   "new product always counts",
			prev:   nil,
			result: trustedResult(34.99),
			want:   true,
		},
		{
			name:   "untrusted result never emits",
			prev:   nil,
			result: models.FailureResult("B0TEST12345", models.ErrKindRetriesExhausted, 4, time.Now()),
			want:   false,
		},
		{
			name:   "availability flip",
			prev:   &ProductSnapshot{Available: false, Price: &price},
			result: trustedResult(34.99),
			want:   true,
		},
		{
			name:   "price moved",
			prev:   &ProductSnapshot{Available: true, Price: &price},
			result: trustedResult(29.99),
			want:   true,
		},
		{
			name:   "same state",
			prev:   &ProductSnapshot{Available: true, Price: &price},
			result: trustedResult(34.99),
			want:   false,
		},
		{
			name:   "sub-cent drift ignored",
			prev:   &ProductSnapshot{Available: true, Price: &price},
			result: trustedResult(34.994),
			want:   false,
		},
		{
			name:   "price appeared",
			prev:   &ProductSnapshot{Available: true, Price: nil},
			result: trustedResult(34.99),
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, snapshotChanged(tt.prev, tt.result))
		})
	}
}

func TestNextRetryTime(t *testing.T) {
	now := time.Now()

	first := nextRetryTime(1)
	assert.WithinDuration(t, now.Add(2*time.Second), first, time.Second)

	// Backoff caps at five minutes.
	capped := nextRetryTime(20)
	assert.WithinDuration(t, now.Add(300*time.Second), capped, time.Second)
}
