package web

import (
	"encoding/json"
	"os"
	"time"

	"github.com/sweeney/thermostat/internal/state"
)

// statusView is everything the page and JSON endpoint show.
type statusView struct {
	Snapshot      state.Snapshot
	Info          Info
	Network       *NetworkInfo
	MQTTUsed      bool
	MQTTConnected bool
	MQTTBuffered  int
	Now           time.Time
}

func (v statusView) Uptime() time.Duration {
	if v.Info.StartTime.IsZero() {
		return 0
	}
	return v.Now.Sub(v.Info.StartTime)
}

// StatusJSON is the JSON representation of the daemon status.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	State         state.StateJSON `json:"state"`
	Ready         bool            `json:"ready"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	MQTT          *MQTTStatus     `json:"mqtt,omitempty"`
	Network       *NetworkInfo    `json:"network,omitempty"`
	Config        ConfigJSON      `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Buffered  int    `json:"buffered"`
}

// ConfigJSON echoes the effective control settings.
type ConfigJSON struct {
	PollMs        int64   `json:"poll_ms"`
	EvaluateMs    int64   `json:"evaluate_ms"`
	LowThreshold  float64 `json:"low_threshold"`
	HighThreshold float64 `json:"high_threshold"`
	Sensor        string  `json:"sensor"`
	Relay         string  `json:"relay"`
	Occupancy     string  `json:"occupancy"`
}

// NetworkInfo is the host network state written by pi-helper.
type NetworkInfo struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// NetworkFromEnv reads network info from the environment, or returns nil
// when pi-helper has not provided any.
func NetworkFromEnv() *NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func formatJSON(v statusView) []byte {
	inner := StatusInner{
		State:         state.ToJSON(v.Snapshot),
		Ready:         v.Snapshot.Ready(),
		UptimeSeconds: int64(v.Uptime().Seconds()),
		StartTime:     v.Info.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     v.Now.UTC().Format(time.RFC3339),
		Network:       v.Network,
		Config: ConfigJSON{
			PollMs:        v.Info.PollInterval.Milliseconds(),
			EvaluateMs:    v.Info.EvaluateInterval.Milliseconds(),
			LowThreshold:  v.Info.LowThreshold,
			HighThreshold: v.Info.HighThreshold,
			Sensor:        v.Info.Sensor,
			Relay:         v.Info.Relay,
			Occupancy:     v.Info.Occupancy,
		},
	}
	if v.MQTTUsed {
		inner.MQTT = &MQTTStatus{Connected: v.MQTTConnected, Broker: v.Info.Broker, Buffered: v.MQTTBuffered}
	}
	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
