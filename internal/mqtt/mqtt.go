// Package mqtt publishes run and stage events to an MQTT broker, with an
// in-memory fake for tests.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

// TopicEvents is the per-line topic carrying individual FSM events.
func TopicEvents(lineID string) string { return fmt.Sprintf("sentinel/%s/events", lineID) }

// TopicRuns is the per-line topic carrying closed RunRecords.
func TopicRuns(lineID string) string { return fmt.Sprintf("sentinel/%s/runs", lineID) }

// TopicSystem is the per-line topic carrying lifecycle events
// (STARTUP, SHUTDOWN, HEARTBEAT, DEGRADED).
func TopicSystem(lineID string) string { return fmt.Sprintf("sentinel/%s/system", lineID) }

// Publisher publishes events, run records, and system lifecycle events.
type Publisher interface {
	// PublishEvent sends one FSM event to the broker.
	PublishEvent(lineID string, event logic.Event) error

	// PublishRun sends a closed run's record to the broker.
	PublishRun(lineID string, record logic.RunRecord) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(lineID string, event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown,
// heartbeat, degraded-mode entry). Leaving degraded mode is logged by the
// worker, not published.
type SystemEvent struct {
	Timestamp time.Time
	Event     string // e.g. "STARTUP", "SHUTDOWN", "HEARTBEAT", "DEGRADED"
	Reason    string // e.g. "SIGTERM", "SIGINT", "sink unavailable"
	Retained  bool
}

// EventPayload is the MQTT message payload for a single FSM event.
type EventPayload struct {
	Timestamp string  `json:"timestamp"`
	Kind      string  `json:"kind"`
	Zone      string  `json:"zone,omitempty"`
	Fault     string  `json:"fault,omitempty"`
	Outcome   string  `json:"outcome,omitempty"`
	SetpointF float64 `json:"setpoint_F,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

// FormatEventPayload creates the JSON payload for an FSM event.
func FormatEventPayload(event logic.Event) ([]byte, error) {
	payload := EventPayload{
		Timestamp: event.T.UTC().Format(time.RFC3339),
		Kind:      string(event.Type),
		Zone:      string(event.Zone),
		Fault:     string(event.Fault),
		Outcome:   string(event.Outcome),
		SetpointF: event.SetpointF,
		Detail:    event.Detail,
	}
	return json.Marshal(payload)
}

// FormatRunPayload creates the JSON payload for a closed run record.
func FormatRunPayload(record logic.RunRecord) ([]byte, error) {
	return json.Marshal(record)
}

// SystemPayload is the MQTT message payload for a system lifecycle event.
type SystemPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	}
	return json.Marshal(payload)
}
