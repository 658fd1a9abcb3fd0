package refresh

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Intervals are the configured re-schedule gaps. Charging vehicles change
// state fast and poll short; idle vehicles poll long; any failure defers by
// the error interval so a degraded remote service is not hammered.
type Intervals struct {
	Charging time.Duration
	Idle     time.Duration
	Error    time.Duration
}

// ScheduleState is the per-vehicle scheduling record.
type ScheduleState struct {
	LastUpdate time.Time
	NextDue    time.Time
	Charging   bool
}

// Scheduler computes, per vehicle, when the next refresh should run based on
// the last observed charging state or on error conditions. Safe for
// concurrent use by per-vehicle refresh flows.
type Scheduler struct {
	logger    *zap.Logger
	intervals Intervals

	mu     sync.RWMutex
	states map[string]*ScheduleState
}

// NewScheduler creates a scheduler.
func NewScheduler(logger *zap.Logger, intervals Intervals) *Scheduler {
	return &Scheduler{
		logger:    logger,
		intervals: intervals,
		states:    make(map[string]*ScheduleState),
	}
}

// IsDue reports whether vin is eligible for a new refresh cycle. A vehicle
// that has never been scheduled is due immediately.
func (s *Scheduler) IsDue(vin string, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[vin]
	if !ok {
		return true
	}
	return !now.Before(st.NextDue)
}

// OnSuccess records a completed refresh and schedules the next one using
// the charging or idle interval depending on the observed charging flag.
func (s *Scheduler) OnSuccess(vin string, charging bool, now time.Time) {
	interval := s.intervals.Idle
	if charging {
		interval = s.intervals.Charging
	}

	s.mu.Lock()
	st := s.state(vin)
	st.LastUpdate = now
	st.Charging = charging
	st.NextDue = now.Add(interval)
	s.mu.Unlock()

	s.logger.Debug("Rescheduled after success",
		zap.String("vin", vin),
		zap.Bool("charging", charging),
		zap.Duration("interval", interval))
}

// OnFailure defers the next refresh by the error interval. LastUpdate is
// left untouched; the vehicle's data did not change.
func (s *Scheduler) OnFailure(vin string, now time.Time) {
	s.mu.Lock()
	st := s.state(vin)
	st.NextDue = now.Add(s.intervals.Error)
	s.mu.Unlock()

	s.logger.Debug("Rescheduled after failure",
		zap.String("vin", vin),
		zap.Duration("interval", s.intervals.Error))
}

// Expire makes vin due immediately (manual refresh).
func (s *Scheduler) Expire(vin string, now time.Time) {
	s.mu.Lock()
	st := s.state(vin)
	st.NextDue = now
	s.mu.Unlock()
}

// State returns a copy of the schedule record for vin.
func (s *Scheduler) State(vin string) (ScheduleState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[vin]
	if !ok {
		return ScheduleState{}, false
	}
	return *st, true
}

// state returns the record for vin, creating it if needed. Caller holds mu.
func (s *Scheduler) state(vin string) *ScheduleState {
	st, ok := s.states[vin]
	if !ok {
		st = &ScheduleState{}
		s.states[vin] = st
	}
	return st
}
