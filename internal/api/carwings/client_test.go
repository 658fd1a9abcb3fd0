package carwings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbaylor/leafwatch/internal/remote"
)

func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	mux := http.NewServeMux()
	for path, h := range handlers {
		mux.HandleFunc(path, h)
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func loginHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "user@example.com", r.PostFormValue("UserId"))
		assert.Equal(t, "NNA", r.PostFormValue("RegionCode"))
		fmt.Fprint(w, `{
			"status": 200,
			"vehicleInfoList": {
				"vehicleInfo": [
					{"vin": "VIN1", "nickname": "leaf", "custom_sessionid": "session-abc"}
				]
			}
		}`)
	}
}

func login(t *testing.T, c *Client) {
	vehicles, err := c.Login(context.Background(), "user@example.com", "secret", remote.RegionUS)
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
}

func TestLoginCapturesSession(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/UserLoginRequest.php": loginHandler(t),
	})
	c := NewClient(srv.URL)

	vehicles, err := c.Login(context.Background(), "user@example.com", "secret", remote.RegionUS)
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, "VIN1", vehicles[0].VIN)
	assert.Equal(t, "leaf", vehicles[0].Nickname)
	assert.Equal(t, "session-abc", c.sessionID)
}

func TestLoginRejectedCredentials(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/UserLoginRequest.php": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status": "401", "ErrorCode": "INVALID_CREDENTIALS"}`)
		},
	})
	c := NewClient(srv.URL)

	_, err := c.Login(context.Background(), "user@example.com", "wrong", remote.RegionUS)
	require.Error(t, err)
	assert.Equal(t, remote.KindAuth, remote.KindOf(err))
}

func TestRequestStatusUpdate(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/UserLoginRequest.php": loginHandler(t),
		"/BatteryStatusCheckRequest.php": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "session-abc", r.PostFormValue("custom_sessionid"))
			assert.Equal(t, "VIN1", r.PostFormValue("VIN"))
			fmt.Fprint(w, `{"status": 200, "resultKey": "key-123"}`)
		},
	})
	c := NewClient(srv.URL)
	login(t, c)

	token, err := c.RequestStatusUpdate(context.Background(), "VIN1")
	require.NoError(t, err)
	assert.Equal(t, remote.JobToken("key-123"), token)
}

func TestPollStatusUpdatePendingThenReady(t *testing.T) {
	calls := 0
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/UserLoginRequest.php": loginHandler(t),
		"/BatteryStatusCheckResultRequest.php": func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				fmt.Fprint(w, `{"status": 200, "responseFlag": "0"}`)
				return
			}
			fmt.Fprint(w, `{
				"status": 200,
				"responseFlag": "1",
				"chargeStatus": "NORMAL_CHARGING",
				"batteryCapacity": "12",
				"batteryDegradation": "7",
				"pluginState": "CONNECTED",
				"cruisingRangeAcOn": "100000",
				"cruisingRangeAcOff": "120000",
				"timeRequiredToFull200": {"HourRequiredToFull": "2", "MinutesRequiredToFull": "30"}
			}`)
		},
	})
	c := NewClient(srv.URL)
	login(t, c)

	payload, err := c.PollStatusUpdate(context.Background(), "key-123")
	require.NoError(t, err)
	assert.Nil(t, payload)

	payload, err = c.PollStatusUpdate(context.Background(), "key-123")
	require.NoError(t, err)
	require.NotNil(t, payload)

	b := payload.Battery
	assert.Equal(t, float64(12), b.Capacity)
	assert.Equal(t, float64(7), b.Remaining)
	assert.Equal(t, "CONNECTED", b.PlugState)
	assert.Equal(t, "NORMAL_CHARGING", b.ChargingStatus)
	assert.Equal(t, float64(120000), b.RangeACOffM)
	assert.Nil(t, b.TimeToFullTrickle)
	require.NotNil(t, b.TimeToFullL2)
	assert.Equal(t, 2*time.Hour+30*time.Minute, *b.TimeToFullL2)
}

func TestStaleSessionMapsToAuthError(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/UserLoginRequest.php": loginHandler(t),
		"/BatteryStatusCheckRequest.php": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status": 9003}`)
		},
	})
	c := NewClient(srv.URL)
	login(t, c)

	_, err := c.RequestStatusUpdate(context.Background(), "VIN1")
	require.Error(t, err)
	assert.Equal(t, remote.KindAuth, remote.KindOf(err))
}

func TestServiceStatusMapsToServiceError(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/UserLoginRequest.php": loginHandler(t),
		"/BatteryStatusCheckRequest.php": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status": 500}`)
		},
	})
	c := NewClient(srv.URL)
	login(t, c)

	_, err := c.RequestStatusUpdate(context.Background(), "VIN1")
	require.Error(t, err)
	assert.Equal(t, remote.KindService, remote.KindOf(err))
}

func TestNetworkFailureMapsToTransportError(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/UserLoginRequest.php": loginHandler(t),
	})
	c := NewClient(srv.URL)
	login(t, c)
	srv.Close()

	_, err := c.RequestStatusUpdate(context.Background(), "VIN1")
	require.Error(t, err)
	assert.Equal(t, remote.KindTransport, remote.KindOf(err))

	var rerr *remote.Error
	require.True(t, errors.As(err, &rerr))
	assert.False(t, remote.Retryable(err))
}

func TestLatestBatterySnapshot(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/UserLoginRequest.php": loginHandler(t),
		"/BatteryStatusRecordsRequest.php": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{
				"status": 200,
				"BatteryStatusRecords": {
					"BatteryStatus": {
						"BatteryChargingStatus": "NOT_CHARGING",
						"BatteryCapacity": "12",
						"BatteryRemainingAmount": "9"
					},
					"PluginState": "NOT_CONNECTED",
					"CruisingRangeAcOn": "90000",
					"CruisingRangeAcOff": "110000"
				}
			}`)
		},
	})
	c := NewClient(srv.URL)
	login(t, c)

	b, err := c.LatestBatterySnapshot(context.Background(), "VIN1")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, float64(9), b.Remaining)
	assert.Equal(t, "NOT_CONNECTED", b.PlugState)
	assert.Nil(t, b.TimeToFullTrickle)
}

func TestLatestHvacSnapshot(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/UserLoginRequest.php": loginHandler(t),
		"/RemoteACRecordsRequest.php": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{
				"status": 200,
				"RemoteACRecords": {
					"OperationResult": "START_BATTERY",
					"RemoteACOperation": "START"
				}
			}`)
		},
	})
	c := NewClient(srv.URL)
	login(t, c)

	h, err := c.LatestHvacSnapshot(context.Background(), "VIN1")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Running)
}

func TestLatestHvacSnapshotNeverReported(t *testing.T) {
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/UserLoginRequest.php": loginHandler(t),
		"/RemoteACRecordsRequest.php": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"status": 200, "RemoteACRecords": {}}`)
		},
	})
	c := NewClient(srv.URL)
	login(t, c)

	h, err := c.LatestHvacSnapshot(context.Background(), "VIN1")
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestCommands(t *testing.T) {
	seen := map[string]bool{}
	commandHandler := func(w http.ResponseWriter, r *http.Request) {
		seen[r.URL.Path] = true
		fmt.Fprint(w, `{"status": 200}`)
	}
	srv := newTestServer(t, map[string]http.HandlerFunc{
		"/UserLoginRequest.php":             loginHandler(t),
		"/BatteryRemoteChargingRequest.php": commandHandler,
		"/ACRemoteRequest.php":              commandHandler,
		"/ACRemoteOffRequest.php":           commandHandler,
	})
	c := NewClient(srv.URL)
	login(t, c)

	require.NoError(t, c.StartCharging(context.Background(), "VIN1"))
	require.NoError(t, c.StartClimateControl(context.Background(), "VIN1"))
	require.NoError(t, c.StopClimateControl(context.Background(), "VIN1"))

	assert.True(t, seen["/BatteryRemoteChargingRequest.php"])
	assert.True(t, seen["/ACRemoteRequest.php"])
	assert.True(t, seen["/ACRemoteOffRequest.php"])
}

func TestCallBeforeLoginFails(t *testing.T) {
	c := NewClient("")
	_, err := c.RequestStatusUpdate(context.Background(), "VIN1")
	require.Error(t, err)
	assert.Equal(t, remote.KindAuth, remote.KindOf(err))
}
