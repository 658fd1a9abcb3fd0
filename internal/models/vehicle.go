package models

import "time"

// Vehicle is one remote-monitored vehicle registered to the account.
type Vehicle struct {
	ID        int64     `json:"id" db:"id"`
	VIN       string    `json:"vin" db:"vin"`
	Nickname  string    `json:"nickname" db:"nickname"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// StateSlot is one externally-owned state slot for a vehicle: the latest
// value of a canonical field plus its display rendering.
type StateSlot struct {
	VIN         string    `json:"vin" db:"vin"`
	Key         string    `json:"key" db:"key"`
	Value       string    `json:"value" db:"value"`
	DisplayHint string    `json:"display_hint" db:"display_hint"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
