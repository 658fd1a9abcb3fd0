package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mbaylor/leafwatch/internal/models"
)

// StateRepository holds the externally-owned state slots: one row per
// vehicle per canonical field, latest value only.
type StateRepository struct {
	db *DB
}

// NewStateRepository creates a state repository.
func NewStateRepository(db *DB) *StateRepository {
	return &StateRepository{db: db}
}

// UpdateState writes one state slot.
func (r *StateRepository) UpdateState(ctx context.Context, vin, key, value, displayHint string) error {
	query := `
		INSERT INTO vehicle_states (vin, key, value, display_hint, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (vin, key) DO UPDATE SET
			value = EXCLUDED.value,
			display_hint = EXCLUDED.display_hint,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.Pool.Exec(ctx, query, vin, key, value, displayHint, time.Now()); err != nil {
		return fmt.Errorf("update state %s/%s: %w", vin, key, err)
	}
	return nil
}

// States returns all state slots for one vehicle.
func (r *StateRepository) States(ctx context.Context, vin string) ([]*models.StateSlot, error) {
	query := `
		SELECT vin, key, value, display_hint, updated_at
		FROM vehicle_states
		WHERE vin = $1
		ORDER BY key
	`
	rows, err := r.db.Pool.Query(ctx, query, vin)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	defer rows.Close()

	var slots []*models.StateSlot
	for rows.Next() {
		s := &models.StateSlot{}
		if err := rows.Scan(&s.VIN, &s.Key, &s.Value, &s.DisplayHint, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		slots = append(slots, s)
	}

	return slots, rows.Err()
}
