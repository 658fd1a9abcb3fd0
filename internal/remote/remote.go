package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Region selects the regional telemetry endpoint.
type Region string

const (
	RegionUS Region = "US"
	RegionEU Region = "EU"
)

// JobToken correlates an asynchronous status-refresh request with its result.
type JobToken string

// VehicleIdentity is one vehicle advertised by the remote account at login.
type VehicleIdentity struct {
	VIN      string
	Nickname string
}

// BatteryPayload is the raw battery record returned by the service.
// Enumerated fields are passed through untranslated; the projector owns
// their interpretation.
type BatteryPayload struct {
	Capacity          float64
	Remaining         float64
	PlugState         string
	ChargingStatus    string
	RangeACOffM       float64
	RangeACOnM        float64
	TimeToFullTrickle *time.Duration
	TimeToFullL2      *time.Duration
}

// HvacPayload is the raw climate record returned by the service.
type HvacPayload struct {
	Running bool
}

// StatusPayload is the result of a completed status-refresh job.
type StatusPayload struct {
	Battery BatteryPayload
}

// Client is the capability surface of the remote telemetry service.
// PollStatusUpdate returns (nil, nil) while the job is still pending.
type Client interface {
	Login(ctx context.Context, username, password string, region Region) ([]VehicleIdentity, error)
	RequestStatusUpdate(ctx context.Context, vin string) (JobToken, error)
	PollStatusUpdate(ctx context.Context, token JobToken) (*StatusPayload, error)
	LatestBatterySnapshot(ctx context.Context, vin string) (*BatteryPayload, error)
	LatestHvacSnapshot(ctx context.Context, vin string) (*HvacPayload, error)
	StartCharging(ctx context.Context, vin string) error
	StartClimateControl(ctx context.Context, vin string) error
	StopClimateControl(ctx context.Context, vin string) error
}

// ErrorKind classifies remote failures for the retry policy.
type ErrorKind int

const (
	// KindAuth means the service rejected the credentials or session.
	KindAuth ErrorKind = iota
	// KindService is a structured error from the remote API.
	KindService
	// KindTransport is a network-level failure before any API response.
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindService:
		return "service"
	case KindTransport:
		return "transport"
	}
	return "unknown"
}

// Error is a classified remote failure.
type Error struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote %s error (code %s)", e.Kind, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("remote %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("remote %s error", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// AuthError reports rejected credentials or an expired session.
func AuthError(code string) *Error {
	return &Error{Kind: KindAuth, Code: code}
}

// ServiceError reports a structured error from the remote API.
func ServiceError(code string) *Error {
	return &Error{Kind: KindService, Code: code}
}

// TransportError wraps a network-level failure.
func TransportError(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

// KindOf returns the classification of err, or KindTransport for
// unclassified errors (anything unknown is treated as the network's fault).
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindTransport
}

// Retryable reports whether err should be retried once after a forced
// re-login. Auth and service errors qualify; transport errors do not.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindAuth || k == KindService
}
