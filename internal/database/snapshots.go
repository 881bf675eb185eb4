package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/resale-sync/internal/models"
)

// ProductSnapshot is the last known availability state of one tracked
// product/location pair.
type ProductSnapshot struct {
	ProductID         string     `db:"product_id"`
	Location          string     `db:"location"`
	Available         bool       `db:"available"`
	InStock           bool       `db:"in_stock"`
	Price             *float64   `db:"price"`
	Currency          string     `db:"currency"`
	DeliveryDate      *time.Time `db:"delivery_date"`
	DaysUntilDelivery *int       `db:"days_until_delivery"`
	FastDelivery      bool       `db:"fast_delivery"`
	ErrorKind         string     `db:"error_kind"`
	Attempts          int        `db:"attempts"`
	Paused            bool       `db:"paused"`
	CheckedAt         time.Time  `db:"checked_at"`
}

type SnapshotRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{
		db:     db,
		outbox: NewOutboxRepository(db),
	}
}

// RecordCheck stores a check result and, when availability or price moved,
// emits the matching event in the same transaction. A NOT_FOUND result
// pauses the product so schedulers stop re-checking a dead listing.
func (r *SnapshotRepository) RecordCheck(ctx context.Context, result models.AvailabilityResult, location string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		prev, err := getSnapshotForUpdate(ctx, tx, result.ProductID, location)
		if err != nil {
			return err
		}

		if err := upsertSnapshot(ctx, tx, result, location); err != nil {
			return err
		}

		if snapshotChanged(prev, result) {
			payload, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("failed to marshal result payload: %w", err)
			}
			event := &OutboxEvent{
				AggregateID: result.ProductID,
				EventType:   EventAvailabilityChanged,
				Payload:     payload,
			}
			if err := r.outbox.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
		}

		if result.Error == models.ErrKindNotFound {
			return r.pauseWithTx(ctx, tx, result.ProductID, location)
		}

		return nil
	})
}

// ListTracked returns the active products due for a re-check, oldest check
// first so nothing starves.
func (r *SnapshotRepository) ListTracked(ctx context.Context, limit int) ([]models.Query, error) {
	query := `
		SELECT product_id, location
		FROM availability_snapshot
		WHERE paused = FALSE
		ORDER BY checked_at ASC
		LIMIT $1`

	rows, err := r.db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked products: %w", err)
	}
	defer rows.Close()

	var queries []models.Query
	for rows.Next() {
		var q models.Query
		if err := rows.Scan(&q.ProductID, &q.LocationContext); err != nil {
			return nil, fmt.Errorf("failed to scan tracked product: %w", err)
		}
		queries = append(queries, q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return queries, nil
}

// Get returns the stored snapshot, or nil when the pair is not tracked.
func (r *SnapshotRepository) Get(ctx context.Context, productID, location string) (*ProductSnapshot, error) {
	query := `
		SELECT product_id, location, available, in_stock, price, currency,
			delivery_date, days_until_delivery, fast_delivery,
			error_kind, attempts, paused, checked_at
		FROM availability_snapshot
		WHERE product_id = $1 AND location = $2`

	s := &ProductSnapshot{}
	err := r.db.pool.QueryRow(ctx, query, productID, location).Scan(
		&s.ProductID, &s.Location, &s.Available, &s.InStock, &s.Price, &s.Currency,
		&s.DeliveryDate, &s.DaysUntilDelivery, &s.FastDelivery,
		&s.ErrorKind, &s.Attempts, &s.Paused, &s.CheckedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	return s, nil
}

// SetPaused toggles tracking and emits the lifecycle event.
func (r *SnapshotRepository) SetPaused(ctx context.Context, productID, location string, paused bool) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx,
			`UPDATE availability_snapshot SET paused = $1 WHERE product_id = $2 AND location = $3`,
			paused, productID, location)
		if err != nil {
			return fmt.Errorf("failed to update paused flag: %w", err)
		}
		if result.RowsAffected() == 0 {
			return fmt.Errorf("product not tracked: %s", productID)
		}

		eventType := EventProductReactivated
		if paused {
			eventType = EventProductPaused
		}

		payload, err := json.Marshal(map[string]string{
			"product_id": productID,
			"location":   location,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal pause payload: %w", err)
		}

		return r.outbox.InsertWithTx(ctx, tx, &OutboxEvent{
			AggregateID: productID,
			EventType:   eventType,
			Payload:     payload,
		})
	})
}

func (r *SnapshotRepository) pauseWithTx(ctx context.Context, tx pgx.Tx, productID, location string) error {
	if _, err := tx.Exec(ctx,
		`UPDATE availability_snapshot SET paused = TRUE WHERE product_id = $1 AND location = $2`,
		productID, location); err != nil {
		return fmt.Errorf("failed to pause product: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"product_id": productID,
		"location":   location,
		"reason":     string(models.ErrKindNotFound),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal pause payload: %w", err)
	}

	return r.outbox.InsertWithTx(ctx, tx, &OutboxEvent{
		AggregateID: productID,
		EventType:   EventProductPaused,
		Payload:     payload,
	})
}

func getSnapshotForUpdate(ctx context.Context, tx pgx.Tx, productID, location string) (*ProductSnapshot, error) {
	query := `
		SELECT available, price
		FROM availability_snapshot
		WHERE product_id = $1 AND location = $2
		FOR UPDATE`

	s := &ProductSnapshot{ProductID: productID, Location: location}
	err := tx.QueryRow(ctx, query, productID, location).Scan(&s.Available, &s.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock snapshot: %w", err)
	}

	return s, nil
}

func upsertSnapshot(ctx context.Context, tx pgx.Tx, result models.AvailabilityResult, location string) error {
	query := `
		INSERT INTO availability_snapshot (
			product_id, location, available, in_stock, price, currency,
			delivery_date, days_until_delivery, fast_delivery,
			error_kind, attempts, checked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (product_id, location) DO UPDATE SET
			available = EXCLUDED.available,
			in_stock = EXCLUDED.in_stock,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			delivery_date = EXCLUDED.delivery_date,
			days_until_delivery = EXCLUDED.days_until_delivery,
			fast_delivery = EXCLUDED.fast_delivery,
			error_kind = EXCLUDED.error_kind,
			attempts = EXCLUDED.attempts,
			checked_at = EXCLUDED.checked_at`

	_, err := tx.Exec(ctx, query,
		result.ProductID, location, result.Available, result.InStock,
		result.Price, result.Currency, result.DeliveryDate, result.DaysUntilDelivery,
		result.FastDelivery, string(result.Error), result.Attempts, result.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	return nil
}

// snapshotChanged reports whether the new result moves availability or price
// enough to interest downstream consumers. A new product always counts.
func snapshotChanged(prev *ProductSnapshot, result models.AvailabilityResult) bool {
	if !result.Trusted() {
		return false
	}
	if prev == nil {
		return true
	}
	if prev.Available != result.Available {
		return true
	}

	switch {
	case prev.Price == nil && result.Price == nil:
		return false
	case prev.Price == nil || result.Price == nil:
		return true
	default:
		return math.Abs(*prev.Price-*result.Price) >= 0.01
	}
}
