package carwings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mbaylor/leafwatch/internal/remote"
)

// Regional telemetry proxy endpoints.
var baseURLs = map[remote.Region]string{
	remote.RegionUS: "https://gdcportalgw.its-mo.com/api_v230317_NA/gdc",
	remote.RegionEU: "https://gdcportalgw.its-mo.com/api_v230317_NE/gdc",
}

const initialAppStr = "9s5rfKVuMrT03RtzajWNcA"

var _ remote.Client = (*Client)(nil)

// Client talks to the CARWINGS smartphone proxy. It implements
// remote.Client; the refresh core only sees that interface.
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu        sync.Mutex
	sessionID string
}

// NewClient creates a client. The base URL is chosen at login from the
// account region; baseURL overrides it when non-empty (tests, proxies).
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		baseURL: baseURL,
	}
}

// Login authenticates and returns the account's vehicle identity list.
func (c *Client) Login(ctx context.Context, username, password string, region remote.Region) ([]remote.VehicleIdentity, error) {
	base := c.baseURL
	if base == "" {
		var ok bool
		base, ok = baseURLs[region]
		if !ok {
			return nil, remote.ServiceError("unknown_region")
		}
	}

	data := url.Values{}
	data.Set("UserId", username)
	data.Set("Password", password)
	data.Set("RegionCode", regionCode(region))
	data.Set("initial_app_str", initialAppStr)

	var resp loginResponse
	if err := c.post(ctx, base, "/UserLoginRequest.php", data, &resp); err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		// Credential rejection, not a service fault.
		return nil, remote.AuthError(fmt.Sprintf("login_status_%d", resp.Status))
	}

	vehicles := make([]remote.VehicleIdentity, 0, len(resp.VehicleInfoList.VehicleInfo))
	var sessionID string
	for _, v := range resp.VehicleInfoList.VehicleInfo {
		vehicles = append(vehicles, remote.VehicleIdentity{VIN: v.VIN, Nickname: v.Nickname})
		if v.CustomSessionID != "" {
			sessionID = v.CustomSessionID
		}
	}

	c.mu.Lock()
	c.baseURL = base
	c.sessionID = sessionID
	c.mu.Unlock()

	return vehicles, nil
}

// RequestStatusUpdate submits an asynchronous status-refresh job and
// returns its correlation token.
func (c *Client) RequestStatusUpdate(ctx context.Context, vin string) (remote.JobToken, error) {
	data := c.sessionValues(vin)

	var resp checkResponse
	if err := c.post(ctx, c.base(), "/BatteryStatusCheckRequest.php", data, &resp); err != nil {
		return "", err
	}
	if err := statusError(int(resp.Status)); err != nil {
		return "", err
	}
	if resp.ResultKey == "" {
		return "", remote.ServiceError("missing_result_key")
	}

	return remote.JobToken(resp.ResultKey), nil
}

// PollStatusUpdate polls a job by token. It returns (nil, nil) while the
// vehicle has not reported yet.
func (c *Client) PollStatusUpdate(ctx context.Context, token remote.JobToken) (*remote.StatusPayload, error) {
	data := c.sessionValues("")
	data.Set("resultKey", string(token))

	var resp resultResponse
	if err := c.post(ctx, c.base(), "/BatteryStatusCheckResultRequest.php", data, &resp); err != nil {
		return nil, err
	}
	if err := statusError(int(resp.Status)); err != nil {
		return nil, err
	}
	if resp.ResponseFlag == "0" {
		return nil, nil
	}

	return &remote.StatusPayload{Battery: *resp.batteryRecord.payload()}, nil
}

// LatestBatterySnapshot fetches the service's cached battery record.
func (c *Client) LatestBatterySnapshot(ctx context.Context, vin string) (*remote.BatteryPayload, error) {
	var resp recordsResponse
	if err := c.post(ctx, c.base(), "/BatteryStatusRecordsRequest.php", c.sessionValues(vin), &resp); err != nil {
		return nil, err
	}
	if err := statusError(int(resp.Status)); err != nil {
		return nil, err
	}

	return resp.payload(), nil
}

// LatestHvacSnapshot fetches the service's cached climate record. It
// returns (nil, nil) when the vehicle has never reported one.
func (c *Client) LatestHvacSnapshot(ctx context.Context, vin string) (*remote.HvacPayload, error) {
	var resp acRecordsResponse
	if err := c.post(ctx, c.base(), "/RemoteACRecordsRequest.php", c.sessionValues(vin), &resp); err != nil {
		return nil, err
	}
	if err := statusError(int(resp.Status)); err != nil {
		return nil, err
	}
	if resp.RemoteACRecords.OperationResult == "" {
		return nil, nil
	}

	return &remote.HvacPayload{
		Running: resp.RemoteACRecords.RemoteACOperation == "START",
	}, nil
}

// StartCharging asks the vehicle to start charging now.
func (c *Client) StartCharging(ctx context.Context, vin string) error {
	return c.command(ctx, "/BatteryRemoteChargingRequest.php", vin)
}

// StartClimateControl turns the HVAC on.
func (c *Client) StartClimateControl(ctx context.Context, vin string) error {
	return c.command(ctx, "/ACRemoteRequest.php", vin)
}

// StopClimateControl turns the HVAC off.
func (c *Client) StopClimateControl(ctx context.Context, vin string) error {
	return c.command(ctx, "/ACRemoteOffRequest.php", vin)
}

func (c *Client) command(ctx context.Context, path, vin string) error {
	var resp commandResponse
	if err := c.post(ctx, c.base(), path, c.sessionValues(vin), &resp); err != nil {
		return err
	}
	return statusError(int(resp.Status))
}

func (c *Client) base() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseURL
}

func (c *Client) sessionValues(vin string) url.Values {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	data := url.Values{}
	data.Set("custom_sessionid", sessionID)
	if vin != "" {
		data.Set("VIN", vin)
	}
	return data
}

// post sends a form-encoded request and decodes the JSON reply. Network
// failures come back as transport errors; they carry no retry hint.
func (c *Client) post(ctx context.Context, base, path string, data url.Values, out interface{}) error {
	if base == "" {
		return remote.AuthError("not_logged_in")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", base+path, strings.NewReader(data.Encode()))
	if err != nil {
		return remote.TransportError(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "leafwatch/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return remote.TransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return remote.ServiceError(fmt.Sprintf("http_%d:%s", resp.StatusCode, string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return remote.TransportError(fmt.Errorf("decode response: %w", err))
	}

	return nil
}

// statusError maps the in-band status field of a reply onto the error
// taxonomy. 401 and the proxy's 9003 mean the session went stale.
func statusError(status int) error {
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, 9003:
		return remote.AuthError(fmt.Sprintf("session_%d", status))
	default:
		return remote.ServiceError(fmt.Sprintf("status_%d", status))
	}
}

func regionCode(region remote.Region) string {
	switch region {
	case remote.RegionEU:
		return "NE"
	default:
		return "NNA"
	}
}
