package refresh

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mbaylor/leafwatch/internal/remote"
	"github.com/mbaylor/leafwatch/internal/session"
	"github.com/mbaylor/leafwatch/internal/status"
)

// Error reports a refresh cycle aborted by a remote failure that survived
// the single retry-after-relogin.
type Error struct {
	VIN string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("refresh %s: %v", e.VIN, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Outcome is the terminal result of one refresh cycle. A timed-out cycle is
// an expected outcome, not an error: the vehicle simply did not report in
// time and the next full cycle is rescheduled.
type Outcome struct {
	State    string
	Snapshot *status.Snapshot
	Waited   time.Duration
}

// Ready reports whether the cycle produced a snapshot.
func (o *Outcome) Ready() bool {
	return o.State == StateReady
}

// Orchestrator drives the two-phase refresh for one vehicle at a time:
// submit a status-refresh job, poll for completion under the backoff
// schedule, decode the payload. Session errors are retried once after a
// forced re-login (via session.Manager.Do); the backoff sleeps are the only
// suspension points and honor context cancellation.
type Orchestrator struct {
	logger    *zap.Logger
	session   *session.Manager
	projector *status.Projector
	backoff   Backoff

	// sleep and now are injected so tests can run the schedule instantly.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewOrchestrator creates an orchestrator with the default backoff schedule.
func NewOrchestrator(logger *zap.Logger, sess *session.Manager, projector *status.Projector) *Orchestrator {
	return &Orchestrator{
		logger:    logger,
		session:   sess,
		projector: projector,
		backoff:   DefaultBackoff,
		sleep:     sleepContext,
		now:       time.Now,
	}
}

// Refresh runs one full cycle for vin. It returns a ready or timed-out
// outcome, or an *Error when a remote failure survives the retry policy.
func (o *Orchestrator) Refresh(ctx context.Context, vin string) (*Outcome, error) {
	m := NewMachine()

	var token remote.JobToken
	err := o.session.Do(ctx, func(c remote.Client) error {
		t, err := c.RequestStatusUpdate(ctx, vin)
		token = t
		return err
	})
	if err != nil {
		return nil, &Error{VIN: vin, Err: fmt.Errorf("request status update: %w", err)}
	}
	m.Trigger(EventSubmit)

	o.logger.Debug("Status refresh requested",
		zap.String("vin", vin),
		zap.String("token", string(token)))

	var waited time.Duration
	for attempt, wait := range o.backoff {
		if err := o.sleep(ctx, wait); err != nil {
			return nil, err
		}
		waited += wait
		m.Trigger(EventPoll)

		var payload *remote.StatusPayload
		err := o.session.Do(ctx, func(c remote.Client) error {
			p, err := c.PollStatusUpdate(ctx, token)
			payload = p
			return err
		})
		if err != nil {
			return nil, &Error{VIN: vin, Err: fmt.Errorf("poll status update: %w", err)}
		}

		if payload == nil {
			o.logger.Debug("Status not ready yet",
				zap.String("vin", vin),
				zap.Int("attempt", attempt+1),
				zap.Duration("waited", waited))
			continue
		}

		m.Trigger(EventComplete)
		snap := o.projector.Project(vin, payload, o.now())
		o.attachHvac(ctx, vin, snap)

		o.logger.Info("Status refresh ready",
			zap.String("vin", vin),
			zap.Int("attempt", attempt+1),
			zap.Duration("waited", waited))

		return &Outcome{State: m.Current(), Snapshot: snap, Waited: waited}, nil
	}

	m.Trigger(EventExpire)
	o.logger.Info("Status refresh timed out",
		zap.String("vin", vin),
		zap.Duration("waited", waited))

	return &Outcome{State: m.Current(), Waited: waited}, nil
}

// attachHvac fills in the HVAC-running flag from the service's cached
// climate record. The flag stays nil when the record is unavailable; a
// failure here never aborts a cycle that already has battery data.
func (o *Orchestrator) attachHvac(ctx context.Context, vin string, snap *status.Snapshot) {
	var hvac *remote.HvacPayload
	err := o.session.Do(ctx, func(c remote.Client) error {
		h, err := c.LatestHvacSnapshot(ctx, vin)
		hvac = h
		return err
	})
	if err != nil {
		o.logger.Warn("Climate record unavailable",
			zap.String("vin", vin),
			zap.Error(err))
		return
	}
	if hvac != nil {
		running := hvac.Running
		snap.HvacOn = &running
	}
}

// sleepContext waits for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
