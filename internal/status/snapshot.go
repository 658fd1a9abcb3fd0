package status

import "time"

// Snapshot is the canonical decoded status of one vehicle at one point in
// time. Snapshots are immutable; every successful refresh produces a new one.
type Snapshot struct {
	VIN     string    `json:"vin"`
	TakenAt time.Time `json:"taken_at"`

	Capacity     float64 `json:"capacity"`
	Remaining    float64 `json:"remaining"`
	BatteryLevel float64 `json:"battery_level"`
	// LevelValid is false when the reported capacity was zero and the
	// percentage could not be computed.
	LevelValid bool `json:"level_valid"`

	Charging       bool   `json:"charging"`
	QuickCharging  bool   `json:"quick_charging"`
	PlugConnected  bool   `json:"plug_connected"`
	QuickCharger   bool   `json:"quick_charger"`
	ChargingStatus string `json:"charging_status"`

	RangeACOffM float64 `json:"range_ac_off_m"`
	RangeACOnM  float64 `json:"range_ac_on_m"`

	// Time to full charge per charge mode; nil means "not applicable to
	// the current charge mode", not an error.
	TimeToFullTrickle *time.Duration `json:"time_to_full_trickle"`
	TimeToFullL2      *time.Duration `json:"time_to_full_l2"`

	// HvacOn is nil when the climate record was unavailable.
	HvacOn *bool `json:"hvac_on"`
}

// Band buckets the battery level for display: an icon name derived from
// charge activity and remaining level.
func (s *Snapshot) Band() string {
	switch {
	case s.Charging:
		return "charging"
	case s.PlugConnected:
		return "plugged"
	case !s.LevelValid:
		return "unknown"
	case s.BatteryLevel >= 87.5:
		return "high"
	case s.BatteryLevel >= 62.5:
		return "75"
	case s.BatteryLevel > 37.5:
		return "50"
	case s.BatteryLevel > 15:
		return "25"
	}
	return "low"
}
