package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mbaylor/leafwatch/internal/remote"
)

// Manager owns the process-wide login state over the remote service. One
// remote account covers every vehicle, so a single Manager is shared by all
// refresh flows. Login is lazy; a forced re-login only ever happens in
// reaction to an error. The mutex is held across the login round trip so
// concurrent callers after an invalidation collapse into one login.
type Manager struct {
	logger *zap.Logger
	client remote.Client

	username string
	password string
	region   remote.Region

	mu       sync.Mutex
	loggedIn bool
	vehicles []remote.VehicleIdentity
}

// NewManager creates a manager around the given remote client and
// credentials. No network traffic happens until the first EnsureLoggedIn.
func NewManager(logger *zap.Logger, client remote.Client, username, password string, region remote.Region) *Manager {
	return &Manager{
		logger:   logger,
		client:   client,
		username: username,
		password: password,
		region:   region,
	}
}

// EnsureLoggedIn authenticates if the session is currently logged out and
// records the vehicle identity list advertised by the account. It is a
// no-op while logged in.
func (m *Manager) EnsureLoggedIn(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loggedIn {
		return nil
	}

	vehicles, err := m.client.Login(ctx, m.username, m.password, m.region)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	m.loggedIn = true
	m.vehicles = vehicles

	for _, v := range vehicles {
		m.logger.Info("Account vehicle",
			zap.String("vin", v.VIN),
			zap.String("nickname", v.Nickname))
	}
	m.logger.Info("Logged in to remote service",
		zap.String("region", string(m.region)),
		zap.Int("vehicles", len(vehicles)))

	return nil
}

// Invalidate forces the session back to logged out so the next
// EnsureLoggedIn re-authenticates. Affects every vehicle's refresh flow.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loggedIn {
		m.logger.Info("Session invalidated, will re-authenticate on next use")
	}
	m.loggedIn = false
}

// LoggedIn reports the current authentication state.
func (m *Manager) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loggedIn
}

// Vehicles returns a copy of the identity list recorded at login.
func (m *Manager) Vehicles() []remote.VehicleIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]remote.VehicleIdentity, len(m.vehicles))
	copy(out, m.vehicles)
	return out
}

// Do runs op against an authenticated client. If op fails with an auth or
// remote-service error the session is invalidated and op retried exactly
// once after re-login; a second failure propagates. Transport errors are
// never retried mid-cycle.
func (m *Manager) Do(ctx context.Context, op func(c remote.Client) error) error {
	if err := m.EnsureLoggedIn(ctx); err != nil {
		return err
	}

	err := op(m.client)
	if err == nil || !remote.Retryable(err) {
		return err
	}

	m.logger.Warn("Remote call failed, retrying once after re-login",
		zap.String("kind", remote.KindOf(err).String()),
		zap.Error(err))

	m.Invalidate()
	if err := m.EnsureLoggedIn(ctx); err != nil {
		return err
	}
	return op(m.client)
}
