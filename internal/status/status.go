// Package status provides a thread-safe status tracker for one line's FSM
// Worker, read by the HTTP control surface and MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

// Config carries daemon configuration for display.
type Config struct {
	SamplingPeriodMs int64
	Broker           string
	HTTPAddr         string
}

// ZoneStatus is the current stage and reference values for one zone.
type ZoneStatus struct {
	Stage          logic.StageKind
	ActiveSetpoint float64
	LastSampleAt   time.Time
	LastValid      bool
}

// Snapshot is a point-in-time view of one line's worker state. It is a
// value type — safe to use after the lock is released.
type Snapshot struct {
	LineID        string
	Zones         map[logic.Zone]ZoneStatus
	CurrentRunID  string
	LastRunID     string
	LastTermination logic.TerminationKind
	Degraded      bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the worker started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable worker state behind an RWMutex, grounded on the
// teacher's internal/status.Tracker.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker for one line.
func NewTracker(lineID string, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			LineID:    lineID,
			Zones:     make(map[logic.Zone]ZoneStatus),
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// UpdateZone records one zone's stage and reference setpoint. Called once
// per tick per zone from the worker.
func (t *Tracker) UpdateZone(zone logic.Zone, zs ZoneStatus) {
	t.mu.Lock()
	t.snap.Zones[zone] = zs
	t.mu.Unlock()
}

// SetCurrentRun records the run currently open, or "" if none.
func (t *Tracker) SetCurrentRun(runID string) {
	t.mu.Lock()
	t.snap.CurrentRunID = runID
	t.mu.Unlock()
}

// RecordClosedRun records the most recently closed run's id and outcome.
func (t *Tracker) RecordClosedRun(runID string, termination logic.TerminationKind) {
	t.mu.Lock()
	t.snap.LastRunID = runID
	t.snap.LastTermination = termination
	t.snap.CurrentRunID = ""
	t.mu.Unlock()
}

// SetDegraded sets the degraded-mode flag.
func (t *Tracker) SetDegraded(degraded bool) {
	t.mu.Lock()
	t.snap.Degraded = degraded
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the worker state. The Now field
// is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	zones := make(map[logic.Zone]ZoneStatus, len(t.snap.Zones))
	for k, v := range t.snap.Zones {
		zones[k] = v
	}
	t.mu.RUnlock()
	s.Zones = zones
	s.Now = time.Now()
	return s
}
