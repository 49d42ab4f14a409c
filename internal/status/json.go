package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for a line's status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	LineID        string        `json:"line_id"`
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Zones         []ZoneJSON    `json:"zones"`
	CurrentRunID  string        `json:"current_run_id,omitempty"`
	LastRunID     string        `json:"last_run_id,omitempty"`
	LastTermination string      `json:"last_termination,omitempty"`
	Degraded      bool          `json:"degraded"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Config        ConfigJSON    `json:"config"`
}

// ZoneJSON is the JSON representation of one zone's status.
type ZoneJSON struct {
	Zone           string  `json:"zone"`
	Stage          string  `json:"stage"`
	ActiveSetpoint float64 `json:"active_setpoint_F"`
	LastValid      bool    `json:"last_valid"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of worker config.
type ConfigJSON struct {
	SamplingPeriodMs int64  `json:"sampling_period_ms"`
	Broker           string `json:"broker"`
	HTTPAddr         string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	zones := make([]ZoneJSON, 0, len(snap.Zones))
	for zone, zs := range snap.Zones {
		zones = append(zones, ZoneJSON{
			Zone:           string(zone),
			Stage:          string(zs.Stage),
			ActiveSetpoint: zs.ActiveSetpoint,
			LastValid:      zs.LastValid,
		})
	}

	return StatusInner{
		LineID:          snap.LineID,
		Zones:           zones,
		CurrentRunID:    snap.CurrentRunID,
		LastRunID:       snap.LastRunID,
		LastTermination: string(snap.LastTermination),
		Degraded:        snap.Degraded,
		UptimeSeconds:   int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:       snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:       snap.Now.UTC().Format(time.RFC3339),
		MQTT:            MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			SamplingPeriodMs: snap.Config.SamplingPeriodMs,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the HTTP control surface (no
// event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
