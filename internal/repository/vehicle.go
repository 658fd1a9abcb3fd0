package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mbaylor/leafwatch/internal/models"
)

// VehicleRepository stores the registered vehicles.
type VehicleRepository struct {
	db *DB
}

// NewVehicleRepository creates a vehicle repository.
func NewVehicleRepository(db *DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

// Upsert inserts or refreshes a vehicle keyed by VIN.
func (r *VehicleRepository) Upsert(ctx context.Context, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (vin, nickname, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (vin) DO UPDATE SET nickname = EXCLUDED.nickname, updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	now := time.Now()
	err := r.db.Pool.QueryRow(ctx, query, v.VIN, v.Nickname, now).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert vehicle: %w", err)
	}

	v.UpdatedAt = now
	return nil
}

// List returns all registered vehicles.
func (r *VehicleRepository) List(ctx context.Context) ([]*models.Vehicle, error) {
	query := `
		SELECT id, vin, nickname, created_at, updated_at
		FROM vehicles
		ORDER BY id
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []*models.Vehicle
	for rows.Next() {
		v := &models.Vehicle{}
		if err := rows.Scan(&v.ID, &v.VIN, &v.Nickname, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, v)
	}

	return vehicles, rows.Err()
}

// GetByVIN returns one vehicle, or (nil, nil) when unknown.
func (r *VehicleRepository) GetByVIN(ctx context.Context, vin string) (*models.Vehicle, error) {
	query := `
		SELECT id, vin, nickname, created_at, updated_at
		FROM vehicles
		WHERE vin = $1
	`
	v := &models.Vehicle{}
	err := r.db.Pool.QueryRow(ctx, query, vin).Scan(&v.ID, &v.VIN, &v.Nickname, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}

	return v, nil
}

// Delete unregisters a vehicle and drops its state slots.
func (r *VehicleRepository) Delete(ctx context.Context, vin string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM vehicle_states WHERE vin = $1`, vin); err != nil {
		return fmt.Errorf("delete vehicle states: %w", err)
	}
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM vehicles WHERE vin = $1`, vin); err != nil {
		return fmt.Errorf("delete vehicle: %w", err)
	}
	return nil
}
