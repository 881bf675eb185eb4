// Package storage keeps a JSON-file journal of check outcomes for runs that
// operate without a database: a CLI batch run can resume and report without
// any infrastructure beyond the filesystem.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/maltedev/resale-sync/internal/models"
)

// JournalEntry records the latest outcome for one product/location pair.
type JournalEntry struct {
	ProductID string                     `json:"product_id"`
	Location  string                     `json:"location"`
	Status    string                     `json:"status"` // pending, checked, failed
	Result    *models.AvailabilityResult `json:"result,omitempty"`
	AddedAt   time.Time                  `json:"added_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

const (
	StatusPending = "pending"
	StatusChecked = "checked"
	StatusFailed  = "failed"
)

type Journal struct {
	mu       sync.RWMutex
	entries  map[string]*JournalEntry
	filename string
}

func NewJournal(filename string) (*Journal, error) {
	j := &Journal{
		entries:  make(map[string]*JournalEntry),
		filename: filename,
	}

	if err := j.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	return j, nil
}

// Track registers a query as pending. Re-tracking an existing pair resets
// it to pending without losing the previous result.
func (j *Journal) Track(query models.Query) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if query.ProductID == "" {
		return fmt.Errorf("product id is required")
	}

	key := entryKey(query.ProductID, query.LocationContext)
	now := time.Now()

	if entry, exists := j.entries[key]; exists {
		entry.Status = StatusPending
		entry.UpdatedAt = now
	} else {
		j.entries[key] = &JournalEntry{
			ProductID: query.ProductID,
			Location:  query.LocationContext,
			Status:    StatusPending,
			AddedAt:   now,
			UpdatedAt: now,
		}
	}

	return j.save()
}

// Record stores a check result against its entry, tracking the pair first
// if needed.
func (j *Journal) Record(result models.AvailabilityResult, location string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	key := entryKey(result.ProductID, location)
	entry, exists := j.entries[key]
	if !exists {
		entry = &JournalEntry{
			ProductID: result.ProductID,
			Location:  location,
			AddedAt:   time.Now(),
		}
		j.entries[key] = entry
	}

	entry.Result = &result
	entry.UpdatedAt = time.Now()
	if result.Error != models.ErrKindNone {
		entry.Status = StatusFailed
	} else {
		entry.Status = StatusChecked
	}

	return j.save()
}

func (j *Journal) Get(productID, location string) (*JournalEntry, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	entry, exists := j.entries[entryKey(productID, location)]
	return entry, exists
}

// Pending returns the queries still waiting for a check.
func (j *Journal) Pending() []models.Query {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var pending []models.Query
	for _, entry := range j.entries {
		if entry.Status == StatusPending {
			pending = append(pending, models.Query{
				ProductID:       entry.ProductID,
				LocationContext: entry.Location,
			})
		}
	}
	return pending
}

func (j *Journal) Stats() map[string]int {
	j.mu.RLock()
	defer j.mu.RUnlock()

	stats := make(map[string]int)
	for _, entry := range j.entries {
		stats[entry.Status]++
	}
	stats["total"] = len(j.entries)
	return stats
}

func (j *Journal) save() error {
	data, err := json.MarshalIndent(j.entries, "", "  ")
	if err != nil {
		return err
	}

	// Write to a temp file first so a crash mid-write cannot corrupt the
	// journal.
	tmpFile := j.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpFile, j.filename)
}

func (j *Journal) load() error {
	data, err := os.ReadFile(j.filename)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, &j.entries)
}

func entryKey(productID, location string) string {
	return productID + ":" + location
}
