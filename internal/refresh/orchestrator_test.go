package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mbaylor/leafwatch/internal/remote"
	"github.com/mbaylor/leafwatch/internal/session"
	"github.com/mbaylor/leafwatch/internal/status"
)

// fakeClient scripts the remote service per call.
type fakeClient struct {
	mu       sync.Mutex
	logins   int
	requests int
	polls    int

	loginErr   error
	requestErr func(call int) error
	pollFn     func(call int) (*remote.StatusPayload, error)
	hvac       *remote.HvacPayload
	hvacErr    error
}

func (f *fakeClient) Login(ctx context.Context, username, password string, region remote.Region) ([]remote.VehicleIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return []remote.VehicleIdentity{{VIN: "VIN1", Nickname: "leaf"}}, nil
}

func (f *fakeClient) RequestStatusUpdate(ctx context.Context, vin string) (remote.JobToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.requestErr != nil {
		if err := f.requestErr(f.requests); err != nil {
			return "", err
		}
	}
	return "job-1", nil
}

func (f *fakeClient) PollStatusUpdate(ctx context.Context, token remote.JobToken) (*remote.StatusPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollFn != nil {
		return f.pollFn(f.polls)
	}
	return nil, nil
}

func (f *fakeClient) LatestBatterySnapshot(ctx context.Context, vin string) (*remote.BatteryPayload, error) {
	return nil, remote.ServiceError("not_scripted")
}

func (f *fakeClient) LatestHvacSnapshot(ctx context.Context, vin string) (*remote.HvacPayload, error) {
	if f.hvacErr != nil {
		return nil, f.hvacErr
	}
	return f.hvac, nil
}

func (f *fakeClient) StartCharging(ctx context.Context, vin string) error       { return nil }
func (f *fakeClient) StartClimateControl(ctx context.Context, vin string) error { return nil }
func (f *fakeClient) StopClimateControl(ctx context.Context, vin string) error  { return nil }

func (f *fakeClient) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func testPayload() *remote.StatusPayload {
	return &remote.StatusPayload{
		Battery: remote.BatteryPayload{
			Capacity:       12,
			Remaining:      7,
			PlugState:      "CONNECTED",
			ChargingStatus: "NORMAL_CHARGING",
			RangeACOffM:    120000,
			RangeACOnM:     100000,
		},
	}
}

func newTestOrchestrator(client *fakeClient) (*Orchestrator, *[]time.Duration) {
	logger := zap.NewNop()
	sess := session.NewManager(logger, client, "user", "pass", remote.RegionUS)
	o := NewOrchestrator(logger, sess, status.NewProjector(logger))

	sleeps := &[]time.Duration{}
	o.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	o.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return o, sleeps
}

func totalSlept(sleeps []time.Duration) time.Duration {
	var sum time.Duration
	for _, d := range sleeps {
		sum += d
	}
	return sum
}

func TestRefreshReadyOnLastAttempt(t *testing.T) {
	client := &fakeClient{
		pollFn: func(call int) (*remote.StatusPayload, error) {
			if call < 5 {
				return nil, nil
			}
			return testPayload(), nil
		},
	}
	o, sleeps := newTestOrchestrator(client)

	outcome, err := o.Refresh(context.Background(), "VIN1")
	require.NoError(t, err)
	require.True(t, outcome.Ready())
	assert.Equal(t, StateReady, outcome.State)

	// All five waits were spent; the payload arrived on the final poll.
	assert.Equal(t, 600*time.Second, totalSlept(*sleeps))
	require.NotNil(t, outcome.Snapshot)
	assert.Equal(t, float64(58), outcome.Snapshot.BatteryLevel)
}

func TestRefreshReadySkipsRemainingWaits(t *testing.T) {
	client := &fakeClient{
		pollFn: func(call int) (*remote.StatusPayload, error) {
			if call < 4 {
				return nil, nil
			}
			return testPayload(), nil
		},
	}
	o, sleeps := newTestOrchestrator(client)

	outcome, err := o.Refresh(context.Background(), "VIN1")
	require.NoError(t, err)
	require.True(t, outcome.Ready())

	// 30+120+120+150, the fifth wait never happens.
	assert.Equal(t, []time.Duration{
		30 * time.Second, 120 * time.Second, 120 * time.Second, 150 * time.Second,
	}, *sleeps)
	assert.Equal(t, 420*time.Second, outcome.Waited)
}

func TestRefreshTimesOutAfterFullSchedule(t *testing.T) {
	client := &fakeClient{} // every poll reports not-ready
	o, sleeps := newTestOrchestrator(client)

	outcome, err := o.Refresh(context.Background(), "VIN1")
	require.NoError(t, err)
	assert.False(t, outcome.Ready())
	assert.Equal(t, StateTimedOut, outcome.State)
	assert.Nil(t, outcome.Snapshot)
	assert.Equal(t, 600*time.Second, totalSlept(*sleeps))
	assert.Equal(t, 600*time.Second, outcome.Waited)
	assert.Equal(t, 5, client.polls)
}

func TestRefreshSubmitRetriesOnceAfterRelogin(t *testing.T) {
	client := &fakeClient{
		requestErr: func(call int) error {
			if call == 1 {
				return remote.ServiceError("session_stale")
			}
			return nil
		},
		pollFn: func(call int) (*remote.StatusPayload, error) {
			return testPayload(), nil
		},
	}
	o, _ := newTestOrchestrator(client)

	outcome, err := o.Refresh(context.Background(), "VIN1")
	require.NoError(t, err)
	assert.True(t, outcome.Ready())

	// Lazy login plus the forced re-login before the retry.
	assert.Equal(t, 2, client.loginCount())
	assert.Equal(t, 2, client.requests)
}

func TestRefreshSubmitFailingTwiceAborts(t *testing.T) {
	client := &fakeClient{
		requestErr: func(call int) error {
			return remote.ServiceError("rate_limited")
		},
	}
	o, sleeps := newTestOrchestrator(client)

	outcome, err := o.Refresh(context.Background(), "VIN1")
	require.Error(t, err)
	assert.Nil(t, outcome)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "VIN1", rerr.VIN)

	// Exactly one retry, no polling, no waiting.
	assert.Equal(t, 2, client.requests)
	assert.Equal(t, 0, client.polls)
	assert.Empty(t, *sleeps)
}

func TestRefreshPollServiceErrorAborts(t *testing.T) {
	client := &fakeClient{
		pollFn: func(call int) (*remote.StatusPayload, error) {
			return nil, remote.ServiceError("malformed_session")
		},
	}
	o, _ := newTestOrchestrator(client)

	_, err := o.Refresh(context.Background(), "VIN1")
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))

	// One poll, one retry after re-login.
	assert.Equal(t, 2, client.polls)
	assert.Equal(t, 2, client.loginCount())
}

func TestRefreshTransportErrorNotRetried(t *testing.T) {
	client := &fakeClient{
		pollFn: func(call int) (*remote.StatusPayload, error) {
			return nil, remote.TransportError(errors.New("connection reset"))
		},
	}
	o, _ := newTestOrchestrator(client)

	_, err := o.Refresh(context.Background(), "VIN1")
	require.Error(t, err)
	assert.Equal(t, 1, client.polls)
	assert.Equal(t, 1, client.loginCount())
}

func TestRefreshAttachesHvacFlag(t *testing.T) {
	client := &fakeClient{
		pollFn: func(call int) (*remote.StatusPayload, error) {
			return testPayload(), nil
		},
		hvac: &remote.HvacPayload{Running: true},
	}
	o, _ := newTestOrchestrator(client)

	outcome, err := o.Refresh(context.Background(), "VIN1")
	require.NoError(t, err)
	require.NotNil(t, outcome.Snapshot.HvacOn)
	assert.True(t, *outcome.Snapshot.HvacOn)
}

func TestRefreshHvacFailureDoesNotAbort(t *testing.T) {
	client := &fakeClient{
		pollFn: func(call int) (*remote.StatusPayload, error) {
			return testPayload(), nil
		},
		hvacErr: remote.TransportError(errors.New("timeout")),
	}
	o, _ := newTestOrchestrator(client)

	outcome, err := o.Refresh(context.Background(), "VIN1")
	require.NoError(t, err)
	assert.True(t, outcome.Ready())
	assert.Nil(t, outcome.Snapshot.HvacOn)
}

func TestRefreshCancelledDuringBackoff(t *testing.T) {
	client := &fakeClient{}
	o, _ := newTestOrchestrator(client)

	ctx, cancel := context.WithCancel(context.Background())
	o.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := o.Refresh(ctx, "VIN1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, client.polls)
}
