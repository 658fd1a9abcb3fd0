package status

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mbaylor/leafwatch/internal/remote"
)

// Plug-connection states reported by the service.
const (
	PlugConnected    = "CONNECTED"
	PlugQCConnected  = "QC_CONNECTED"
	PlugNotConnected = "NOT_CONNECTED"
)

// Charge-mode states reported by the service.
const (
	ChargeNormal   = "NORMAL_CHARGING"
	ChargeGeneric  = "CHARGING"
	ChargeRapid    = "RAPIDLY_CHARGING"
	ChargeInactive = "NOT_CHARGING"
)

// Projector maps raw remote payloads into canonical snapshots. Unrecognized
// enum values are logged and substituted with the active assumption
// (connected / charging) rather than a falsely-idle one; decode anomalies
// never abort a refresh cycle.
type Projector struct {
	logger *zap.Logger
}

// NewProjector creates a projector.
func NewProjector(logger *zap.Logger) *Projector {
	return &Projector{logger: logger}
}

// Project decodes a completed status payload into a fresh snapshot.
// The output is deterministic for the same payload and timestamp.
func (p *Projector) Project(vin string, raw *remote.StatusPayload, now time.Time) *Snapshot {
	return p.projectBattery(vin, &raw.Battery, now)
}

// ProjectCached decodes the service's cached battery and climate records.
// hvac may be nil when no climate record is available.
func (p *Projector) ProjectCached(vin string, battery *remote.BatteryPayload, hvac *remote.HvacPayload, now time.Time) *Snapshot {
	snap := p.projectBattery(vin, battery, now)
	if hvac != nil {
		running := hvac.Running
		snap.HvacOn = &running
	}
	return snap
}

func (p *Projector) projectBattery(vin string, b *remote.BatteryPayload, now time.Time) *Snapshot {
	snap := &Snapshot{
		VIN:            vin,
		TakenAt:        now,
		Capacity:       b.Capacity,
		Remaining:      b.Remaining,
		ChargingStatus: b.ChargingStatus,
		RangeACOffM:    b.RangeACOffM,
		RangeACOnM:     b.RangeACOnM,
	}

	snap.PlugConnected, snap.QuickCharger = p.plugState(vin, b.PlugState)
	snap.Charging, snap.QuickCharging = p.chargeState(vin, b.ChargingStatus)

	if b.Capacity > 0 {
		snap.BatteryLevel = math.Round(100 * b.Remaining / b.Capacity)
		snap.LevelValid = true
	} else {
		// Zero capacity would divide by zero; skip the percentage and
		// carry on with the rest of the decode.
		p.logger.Warn("Battery capacity is zero, skipping level computation",
			zap.String("vin", vin))
	}

	if b.TimeToFullTrickle != nil {
		d := *b.TimeToFullTrickle
		snap.TimeToFullTrickle = &d
	}
	if b.TimeToFullL2 != nil {
		d := *b.TimeToFullL2
		snap.TimeToFullL2 = &d
	}

	return snap
}

// plugState resolves the plug-connection enum. The default arm assumes a
// connected plug so an unrecognized value never hides an active session.
func (p *Projector) plugState(vin, state string) (connected, quick bool) {
	switch state {
	case PlugConnected:
		return true, false
	case PlugQCConnected:
		return true, true
	case PlugNotConnected:
		return false, false
	default:
		p.logger.Warn("Unknown plug-connection state, assuming connected",
			zap.String("vin", vin),
			zap.String("plug_state", state))
		return true, false
	}
}

// chargeState resolves the charge-mode enum with the same active-assumption
// default arm.
func (p *Projector) chargeState(vin, status string) (charging, quick bool) {
	switch status {
	case ChargeNormal, ChargeGeneric:
		return true, false
	case ChargeRapid:
		return true, true
	case ChargeInactive:
		return false, false
	default:
		p.logger.Warn("Unknown charging status, assuming charging",
			zap.String("vin", vin),
			zap.String("charging_status", status))
		return true, false
	}
}
