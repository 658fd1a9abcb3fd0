package carwings

import (
	"strconv"
	"time"

	"github.com/mbaylor/leafwatch/internal/remote"
)

// loginResponse is the reply to UserLoginRequest.php.
type loginResponse struct {
	Status          jsonInt `json:"status"`
	ErrorCode       string  `json:"ErrorCode"`
	VehicleInfoList struct {
		VehicleInfo []vehicleInfo `json:"vehicleInfo"`
	} `json:"vehicleInfoList"`
}

type vehicleInfo struct {
	VIN             string `json:"vin"`
	Nickname        string `json:"nickname"`
	CustomSessionID string `json:"custom_sessionid"`
}

// checkResponse is the reply to BatteryStatusCheckRequest.php.
type checkResponse struct {
	Status    jsonInt `json:"status"`
	ResultKey string  `json:"resultKey"`
}

// resultResponse is the reply to BatteryStatusCheckResultRequest.php.
// responseFlag "0" means the job is still pending.
type resultResponse struct {
	Status       jsonInt `json:"status"`
	ResponseFlag string  `json:"responseFlag"`
	batteryRecord
}

// recordsResponse is the reply to BatteryStatusRecordsRequest.php.
type recordsResponse struct {
	Status               jsonInt `json:"status"`
	BatteryStatusRecords struct {
		BatteryStatus struct {
			BatteryChargingStatus  string `json:"BatteryChargingStatus"`
			BatteryCapacity        string `json:"BatteryCapacity"`
			BatteryRemainingAmount string `json:"BatteryRemainingAmount"`
		} `json:"BatteryStatus"`
		PluginState         string      `json:"PluginState"`
		CruisingRangeAcOn   string      `json:"CruisingRangeAcOn"`
		CruisingRangeAcOff  string      `json:"CruisingRangeAcOff"`
		TimeRequiredToFull  *timeToFull `json:"TimeRequiredToFull"`
		TimeRequiredToFull2 *timeToFull `json:"TimeRequiredToFull200"`
	} `json:"BatteryStatusRecords"`
}

// batteryRecord is the flat battery shape used by the check-result reply.
// batteryDegradation is the service's name for the remaining amount.
type batteryRecord struct {
	ChargeStatus        string      `json:"chargeStatus"`
	BatteryCapacity     string      `json:"batteryCapacity"`
	BatteryDegradation  string      `json:"batteryDegradation"`
	PluginState         string      `json:"pluginState"`
	CruisingRangeAcOn   string      `json:"cruisingRangeAcOn"`
	CruisingRangeAcOff  string      `json:"cruisingRangeAcOff"`
	TimeRequiredToFull  *timeToFull `json:"timeRequiredToFull"`
	TimeRequiredToFull2 *timeToFull `json:"timeRequiredToFull200"`
}

// acRecordsResponse is the reply to RemoteACRecordsRequest.php.
type acRecordsResponse struct {
	Status          jsonInt `json:"status"`
	RemoteACRecords struct {
		OperationResult   string `json:"OperationResult"`
		RemoteACOperation string `json:"RemoteACOperation"`
	} `json:"RemoteACRecords"`
}

// commandResponse is the reply to the fire-and-confirm command endpoints.
type commandResponse struct {
	Status jsonInt `json:"status"`
}

// timeToFull is the service's split duration encoding. Either field may be
// absent depending on the active charge mode.
type timeToFull struct {
	HourRequiredToFull    jsonInt `json:"HourRequiredToFull"`
	MinutesRequiredToFull jsonInt `json:"MinutesRequiredToFull"`
}

func (t *timeToFull) duration() *time.Duration {
	if t == nil {
		return nil
	}
	d := time.Duration(t.HourRequiredToFull)*time.Hour + time.Duration(t.MinutesRequiredToFull)*time.Minute
	return &d
}

// jsonInt tolerates the service's habit of sending numbers as strings.
type jsonInt int

func (n *jsonInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*n = jsonInt(v)
	return nil
}

// parseFloat reads the service's stringly-typed numeric fields; malformed
// or empty values decode to zero.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func (r *recordsResponse) payload() *remote.BatteryPayload {
	b := r.BatteryStatusRecords
	return &remote.BatteryPayload{
		Capacity:          parseFloat(b.BatteryStatus.BatteryCapacity),
		Remaining:         parseFloat(b.BatteryStatus.BatteryRemainingAmount),
		PlugState:         b.PluginState,
		ChargingStatus:    b.BatteryStatus.BatteryChargingStatus,
		RangeACOffM:       parseFloat(b.CruisingRangeAcOff),
		RangeACOnM:        parseFloat(b.CruisingRangeAcOn),
		TimeToFullTrickle: b.TimeRequiredToFull.duration(),
		TimeToFullL2:      b.TimeRequiredToFull2.duration(),
	}
}

func (r *batteryRecord) payload() *remote.BatteryPayload {
	return &remote.BatteryPayload{
		Capacity:          parseFloat(r.BatteryCapacity),
		Remaining:         parseFloat(r.BatteryDegradation),
		PlugState:         r.PluginState,
		ChargingStatus:    r.ChargeStatus,
		RangeACOffM:       parseFloat(r.CruisingRangeAcOff),
		RangeACOnM:        parseFloat(r.CruisingRangeAcOn),
		TimeToFullTrickle: r.TimeRequiredToFull.duration(),
		TimeToFullL2:      r.TimeRequiredToFull2.duration(),
	}
}
