package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/resale-sync/internal/database"
	"github.com/maltedev/resale-sync/internal/models"
)

type stubEngine struct {
	lastQuery models.Query
	result    models.AvailabilityResult
}

func (s *stubEngine) CheckAvailability(_ context.Context, query models.Query) models.AvailabilityResult {
	s.lastQuery = query
	s.result.ProductID = query.ProductID
	return s.result
}

func (s *stubEngine) CheckBatch(_ context.Context, queries []models.Query) []models.AvailabilityResult {
	results := make([]models.AvailabilityResult, len(queries))
	for i, q := range queries {
		r := s.result
		r.ProductID = q.ProductID
		results[i] = r
	}
	return results
}

type stubSnapshots struct {
	snapshot *database.ProductSnapshot
	paused   map[string]bool
	err      error
}

func (s *stubSnapshots) Get(_ context.Context, productID, location string) (*database.ProductSnapshot, error) {
	return s.snapshot, s.err
}

func (s *stubSnapshots) SetPaused(_ context.Context, productID, location string, paused bool) error {
	if s.paused == nil {
		s.paused = make(map[string]bool)
	}
	s.paused[productID] = paused
	return s.err
}

func trustedStubResult() models.AvailabilityResult {
	price := 34.99
	days := 2
	return models.AvailabilityResult{
		Available: true,
		InStock:   true,
		Price:     &price,
		Currency:  "EUR",

		DaysUntilDelivery: &days,
		Attempts:          1,
		CheckedAt:         time.Now(),
	}
}

func TestCheckAvailability(t *testing.T) {
	eng := &stubEngine{result: trustedStubResult()}
	h := NewHandlers(eng, nil)

	body := bytes.NewBufferString(`{"product_id":"B0TEST12345","location":"90210"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability", body)
	rec := httptest.NewRecorder()

	h.CheckAvailability(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "90210", eng.lastQuery.LocationContext)

	var result models.AvailabilityResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "B0TEST12345", result.ProductID)
	assert.True(t, result.Available)
}

func TestCheckAvailabilityFailureStaysHTTP200(t *testing.T) {
	eng := &stubEngine{
		result: models.FailureResult("", models.ErrKindRetriesExhausted, 4, time.Now()),
	}
	h := NewHandlers(eng, nil)

	body := bytes.NewBufferString(`{"product_id":"B0TEST12345"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability", body)
	rec := httptest.NewRecorder()

	h.CheckAvailability(rec, req)

	// Check failures are result documents, not HTTP errors.
	assert.Equal(t, http.StatusOK, rec.Code)

	var result models.AvailabilityResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, models.ErrKindRetriesExhausted, result.Error)
}

func TestCheckAvailabilityValidation(t *testing.T) {
	h := NewHandlers(&stubEngine{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{product_id}`},
		{"missing product id", `{"location":"90210"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/availability", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()

			h.CheckAvailability(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCheckBatch(t *testing.T) {
	eng := &stubEngine{result: trustedStubResult()}
	h := NewHandlers(eng, nil)

	body := bytes.NewBufferString(`{"queries":[{"product_id":"B0AAA"},{"product_id":"B0BBB","location":"80331"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability/batch", body)
	rec := httptest.NewRecorder()

	h.CheckBatch(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp BatchCheckResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "B0AAA", resp.Results[0].ProductID)
	assert.Equal(t, "B0BBB", resp.Results[1].ProductID)
}

func TestCheckBatchRejectsEmpty(t *testing.T) {
	h := NewHandlers(&stubEngine{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability/batch", bytes.NewBufferString(`{"queries":[]}`))
	rec := httptest.NewRecorder()

	h.CheckBatch(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestGetSnapshot(t *testing.T) {
	price := 34.99
	snapshots := &stubSnapshots{snapshot: &database.ProductSnapshot{
		ProductID: "B0TEST12345",
		Location:  "10115",
		Available: true,
		Price:     &price,
	}}
	h := NewHandlers(&stubEngine{}, snapshots)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/B0TEST12345?location=10115", nil)
	req = withURLParam(req, "productID", "B0TEST12345")
	rec := httptest.NewRecorder()

	h.GetSnapshot(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var snapshot database.ProductSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snapshot))
	assert.Equal(t, "B0TEST12345", snapshot.ProductID)
}

func TestGetSnapshotNotTracked(t *testing.T) {
	h := NewHandlers(&stubEngine{}, &stubSnapshots{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/B0GONE", nil)
	req = withURLParam(req, "productID", "B0GONE")
	rec := httptest.NewRecorder()

	h.GetSnapshot(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSnapshotWithoutStore(t *testing.T) {
	h := NewHandlers(&stubEngine{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshots/B0TEST", nil)
	req = withURLParam(req, "productID", "B0TEST")
	rec := httptest.NewRecorder()

	h.GetSnapshot(rec, req)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestSetPaused(t *testing.T) {
	snapshots := &stubSnapshots{}
	h := NewHandlers(&stubEngine{}, snapshots)

	body := bytes.NewBufferString(`{"location":"10115","paused":true}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/snapshots/B0TEST12345/tracking", body)
	req = withURLParam(req, "productID", "B0TEST12345")
	rec := httptest.NewRecorder()

	h.SetPaused(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, snapshots.paused["B0TEST12345"])
}
