package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mbaylor/leafwatch/internal/config"
	"github.com/mbaylor/leafwatch/internal/models"
	"github.com/mbaylor/leafwatch/internal/refresh"
	"github.com/mbaylor/leafwatch/internal/remote"
	"github.com/mbaylor/leafwatch/internal/repository"
	"github.com/mbaylor/leafwatch/internal/session"
	"github.com/mbaylor/leafwatch/internal/status"
	"github.com/mbaylor/leafwatch/pkg/units"
	"github.com/mbaylor/leafwatch/pkg/ws"
)

// StateStore is the host-side slot store the service reconciles snapshots
// into: one call per canonical field per refresh.
type StateStore interface {
	UpdateState(ctx context.Context, vin, key, value, displayHint string) error
}

// Refresher runs one full status-refresh cycle for a vehicle.
type Refresher interface {
	Refresh(ctx context.Context, vin string) (*refresh.Outcome, error)
}

// State slot keys.
const (
	SlotBatteryCapacity  = "batteryCapacity"
	SlotBatteryRemaining = "batteryRemainingCharge"
	SlotBatteryLevel     = "batteryLevel"
	SlotBatteryBand      = "batteryBand"
	SlotConnected        = "connected"
	SlotQuickCharger     = "quickChargerConnected"
	SlotCharging         = "charging"
	SlotQuickCharging    = "quickCharging"
	SlotChargingStatus   = "chargingStatus"
	SlotRangeACOff       = "cruisingRangeACOff"
	SlotRangeACOn        = "cruisingRangeACOn"
	SlotTimeToFull       = "timeToFullTrickle"
	SlotTimeToFullL2     = "timeToFullL2"
	SlotHvacOn           = "hvacOn"
)

// RefreshService drives the refresh loop: it repeatedly asks the scheduler
// which vehicles are due, runs the orchestrator for each, and reconciles
// the outcome into the state store, the scheduler and the WebSocket hub.
type RefreshService struct {
	cfg          *config.Config
	logger       *zap.Logger
	session      *session.Manager
	orchestrator Refresher
	scheduler    *refresh.Scheduler
	projector    *status.Projector
	vehicleRepo  *repository.VehicleRepository
	states       StateStore
	wsHub        *ws.Hub
	scale        units.DistanceScale

	mu        sync.RWMutex
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	snapshots map[string]*status.Snapshot
}

// NewRefreshService creates the service.
func NewRefreshService(
	cfg *config.Config,
	logger *zap.Logger,
	sess *session.Manager,
	orchestrator Refresher,
	scheduler *refresh.Scheduler,
	projector *status.Projector,
	vehicleRepo *repository.VehicleRepository,
	states StateStore,
	wsHub *ws.Hub,
	scale units.DistanceScale,
) *RefreshService {
	return &RefreshService{
		cfg:          cfg,
		logger:       logger,
		session:      sess,
		orchestrator: orchestrator,
		scheduler:    scheduler,
		projector:    projector,
		vehicleRepo:  vehicleRepo,
		states:       states,
		wsHub:        wsHub,
		scale:        scale,
		stopCh:       make(chan struct{}),
		snapshots:    make(map[string]*status.Snapshot),
	}
}

// Start logs in, syncs the vehicle list, primes the state slots from the
// service's cached records and launches the refresh loop.
func (s *RefreshService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Refresh service already running, skipping start")
		return nil
	}
	s.stopCh = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting refresh service")

	if err := s.syncVehicles(ctx); err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("sync vehicles: %w", err)
	}

	s.primeFromCache(ctx)

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Refresh service started, loop running")
	return nil
}

// Stop halts the loop and waits for in-flight cycles to finish.
func (s *RefreshService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping refresh service")
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Refresh service stopped")
}

// syncVehicles upserts the vehicle identity list recorded at login.
func (s *RefreshService) syncVehicles(ctx context.Context) error {
	if err := s.session.EnsureLoggedIn(ctx); err != nil {
		return err
	}

	for _, identity := range s.session.Vehicles() {
		v := &models.Vehicle{
			VIN:      identity.VIN,
			Nickname: identity.Nickname,
		}
		if err := s.vehicleRepo.Upsert(ctx, v); err != nil {
			s.logger.Error("Failed to upsert vehicle", zap.Error(err), zap.String("vin", identity.VIN))
			continue
		}
		s.logger.Info("Synced vehicle", zap.String("vin", v.VIN), zap.String("nickname", v.Nickname))
	}

	return nil
}

// primeFromCache populates the state slots from the service's cached
// battery and climate records so the host has data before the first full
// refresh cycle completes. Failures only delay that first picture.
func (s *RefreshService) primeFromCache(ctx context.Context) {
	vehicles, err := s.vehicleRepo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list vehicles for priming", zap.Error(err))
		return
	}

	for _, v := range vehicles {
		var battery *remote.BatteryPayload
		err := s.session.Do(ctx, func(c remote.Client) error {
			b, err := c.LatestBatterySnapshot(ctx, v.VIN)
			battery = b
			return err
		})
		if err != nil {
			s.logger.Warn("No cached battery record", zap.String("vin", v.VIN), zap.Error(err))
			continue
		}

		var hvac *remote.HvacPayload
		if err := s.session.Do(ctx, func(c remote.Client) error {
			h, err := c.LatestHvacSnapshot(ctx, v.VIN)
			hvac = h
			return err
		}); err != nil {
			s.logger.Debug("No cached climate record", zap.String("vin", v.VIN), zap.Error(err))
		}

		snap := s.projector.ProjectCached(v.VIN, battery, hvac, time.Now())
		s.publish(ctx, snap)
	}
}

// loop ticks until stopped. The tick only gates how often due-ness is
// checked; actual cadence per vehicle comes from the scheduler.
func (s *RefreshService) loop(ctx context.Context) {
	defer s.wg.Done()

	s.logger.Info("Performing initial refresh pass")
	s.refreshDue(ctx)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshDue(ctx)
		}
	}
}

// refreshDue runs a full refresh cycle for every due vehicle. Vehicles have
// no data dependency on each other, so due cycles run concurrently.
func (s *RefreshService) refreshDue(ctx context.Context) {
	vehicles, err := s.vehicleRepo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list vehicles", zap.Error(err))
		return
	}

	now := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	for _, v := range vehicles {
		if !s.scheduler.IsDue(v.VIN, now) {
			continue
		}
		vin := v.VIN
		g.Go(func() error {
			s.refreshOne(gctx, vin)
			return nil
		})
	}

	g.Wait()
}

// refreshOne runs one cycle and reconciles the outcome. Failures reschedule
// with the error interval and never terminate the loop.
func (s *RefreshService) refreshOne(ctx context.Context, vin string) {
	outcome, err := s.orchestrator.Refresh(ctx, vin)
	now := time.Now()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("Refresh cycle failed", zap.String("vin", vin), zap.Error(err))
		s.scheduler.OnFailure(vin, now)
		return
	}

	if !outcome.Ready() {
		// Expected outcome: the vehicle did not report in time. Back off
		// with the error interval so a slow remote round trip is not
		// immediately re-asked.
		s.logger.Info("Refresh timed out, rescheduling",
			zap.String("vin", vin),
			zap.Duration("waited", outcome.Waited))
		s.scheduler.OnFailure(vin, now)
		return
	}

	snap := outcome.Snapshot
	s.scheduler.OnSuccess(vin, snap.Charging, now)
	s.publish(ctx, snap)

	s.logger.Info("Refreshed vehicle",
		zap.String("vin", vin),
		zap.Float64("battery_level", snap.BatteryLevel),
		zap.Bool("charging", snap.Charging))
}

// publish reconciles a snapshot into the state store and pushes it to
// WebSocket clients. Slot write failures are logged and skipped; the
// snapshot itself is still retained and broadcast.
func (s *RefreshService) publish(ctx context.Context, snap *status.Snapshot) {
	s.mu.Lock()
	s.snapshots[snap.VIN] = snap
	s.mu.Unlock()

	for _, slot := range s.slots(snap) {
		if err := s.states.UpdateState(ctx, snap.VIN, slot.key, slot.value, slot.hint); err != nil {
			s.logger.Error("Failed to update state slot",
				zap.String("vin", snap.VIN),
				zap.String("key", slot.key),
				zap.Error(err))
		}
	}

	s.wsHub.BroadcastSnapshot(snap)
}

type slotWrite struct {
	key   string
	value string
	hint  string
}

// slots flattens a snapshot into state-slot writes, formatting display
// hints with the configured distance scale. Absent time-to-full durations
// become the -1 sentinel so "not applicable" never reads as "instant".
func (s *RefreshService) slots(snap *status.Snapshot) []slotWrite {
	writes := []slotWrite{
		{SlotBatteryCapacity, formatFloat(snap.Capacity), ""},
		{SlotBatteryRemaining, formatFloat(snap.Remaining), ""},
		{SlotConnected, strconv.FormatBool(snap.PlugConnected), ""},
		{SlotQuickCharger, strconv.FormatBool(snap.QuickCharger), ""},
		{SlotCharging, strconv.FormatBool(snap.Charging), ""},
		{SlotQuickCharging, strconv.FormatBool(snap.QuickCharging), ""},
		{SlotChargingStatus, snap.ChargingStatus, ""},
		{SlotBatteryBand, snap.Band(), ""},
		{SlotRangeACOff, formatFloat(s.scale.Convert(snap.RangeACOffM)), units.FormatDistance(s.scale, snap.RangeACOffM)},
		{SlotRangeACOn, formatFloat(s.scale.Convert(snap.RangeACOnM)), units.FormatDistance(s.scale, snap.RangeACOnM)},
		{SlotTimeToFull, timeToFullValue(snap.TimeToFullTrickle), timeToFullHint(snap.TimeToFullTrickle)},
		{SlotTimeToFullL2, timeToFullValue(snap.TimeToFullL2), timeToFullHint(snap.TimeToFullL2)},
	}

	if snap.LevelValid {
		writes = append(writes, slotWrite{
			SlotBatteryLevel,
			formatFloat(snap.BatteryLevel),
			fmt.Sprintf("%.0f%%", snap.BatteryLevel),
		})
	}

	if snap.HvacOn != nil {
		writes = append(writes, slotWrite{SlotHvacOn, strconv.FormatBool(*snap.HvacOn), ""})
	}

	return writes
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func timeToFullValue(d *time.Duration) string {
	if d == nil {
		return "-1"
	}
	return strconv.Itoa(int(d.Minutes()))
}

func timeToFullHint(d *time.Duration) string {
	if d == nil {
		return "-"
	}
	return units.FormatMinutes(int(d.Minutes()))
}

// Snapshot returns the latest snapshot for vin, if any.
func (s *RefreshService) Snapshot(vin string) (*status.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[vin]
	return snap, ok
}

// Snapshots returns the latest snapshot per vehicle.
func (s *RefreshService) Snapshots() map[string]*status.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*status.Snapshot, len(s.snapshots))
	for vin, snap := range s.snapshots {
		out[vin] = snap
	}
	return out
}

// RefreshNow forces a vehicle to be due on the next tick.
func (s *RefreshService) RefreshNow(vin string, now time.Time) {
	// OnFailure with a zero error interval would be wrong here; reuse the
	// scheduler's due semantics by expiring the record directly.
	s.scheduler.Expire(vin, now)
	s.logger.Info("Manual refresh requested", zap.String("vin", vin))
}

// StartCharging forwards the charge command with the usual retry policy.
func (s *RefreshService) StartCharging(ctx context.Context, vin string) error {
	return s.session.Do(ctx, func(c remote.Client) error {
		return c.StartCharging(ctx, vin)
	})
}

// StartClimateControl turns the HVAC on.
func (s *RefreshService) StartClimateControl(ctx context.Context, vin string) error {
	return s.session.Do(ctx, func(c remote.Client) error {
		return c.StartClimateControl(ctx, vin)
	})
}

// StopClimateControl turns the HVAC off.
func (s *RefreshService) StopClimateControl(ctx context.Context, vin string) error {
	return s.session.Do(ctx, func(c remote.Client) error {
		return c.StopClimateControl(ctx, vin)
	})
}

// Vehicles lists the registered vehicles (for the API and WebSocket init).
func (s *RefreshService) Vehicles(ctx context.Context) ([]*models.Vehicle, error) {
	return s.vehicleRepo.List(ctx)
}
