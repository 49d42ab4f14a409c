// Package logic contains pure business logic for heating-cycle stage
// detection. This package has NO external dependencies (no network, disk,
// MQTT, or time.Sleep). Time is always injectable via time.Time parameters
// so the state machine is deterministic and replayable.
package logic

import (
	"fmt"
	"time"
)

// Zone identifies one of the three heating zones in the canonical cycle.
type Zone string

const (
	ZonePreheat Zone = "preheat"
	ZoneMain    Zone = "main"
	ZoneRib     Zone = "rib"
)

// CanonicalOrder is the fixed cycle order zones are filtered against when
// building a run's cycle_order.
var CanonicalOrder = []Zone{ZonePreheat, ZoneMain, ZoneRib}

// StageKind is the coarse phase a zone is in.
type StageKind string

const (
	StageIdle   StageKind = "IDLE"
	StageRamp   StageKind = "RAMP"
	StageStable StageKind = "STABLE"
	StageEnd    StageKind = "END"
)

// EventType is the closed set of events a Detector or Coordinator can emit.
type EventType string

const (
	EventRampStarted EventType = "RAMP_STARTED"
	EventStable      EventType = "STABLE"
	EventStageEnded  EventType = "STAGE_ENDED"
	EventFault       EventType = "FAULT"
	EventDegraded    EventType = "DEGRADED"
	EventAnomaly     EventType = "ANOMALY"
)

// FaultKind is the closed set of reasons a Fault event carries.
type FaultKind string

const (
	FaultSensorInvalid    FaultKind = "SensorInvalid"
	FaultTimeWentBackward FaultKind = "TimeWentBackward"
	FaultTimeoutRamp      FaultKind = "TimeoutRamp"
	FaultTimeoutStage     FaultKind = "TimeoutStage"
)

// StageOutcome is how a zone's stage concluded.
type StageOutcome string

const (
	OutcomeCompleted StageOutcome = "Completed"
	OutcomeTimedOut  StageOutcome = "TimedOut"
	OutcomeFaulted   StageOutcome = "Faulted"
	OutcomeSkipped   StageOutcome = "Skipped"
)

// TerminationKind is how a run concluded.
type TerminationKind string

const (
	TerminationCompleted    TerminationKind = "Completed"
	TerminationPartialQuiet TerminationKind = "PartialQuiet"
	TerminationFaulted      TerminationKind = "Faulted"
	TerminationAborted      TerminationKind = "Aborted"
)

// Sample is one (temperature, setpoint, timestamp) observation for a zone.
type Sample struct {
	Zone         Zone
	T            time.Time // monotonic-sourced timestamp; must never decrease per zone
	TemperatureF float64
	SetpointF    float64
	Valid        bool
}

// Event is a single FSM transition or observability record.
type Event struct {
	T         time.Time
	Type      EventType
	Zone      Zone
	Fault     FaultKind     // set only when Type == EventFault
	Outcome   StageOutcome  // set only when Type == EventStageEnded
	Baseline  float64       // set only when Type == EventRampStarted
	SetpointF float64       // active setpoint at the time of the event
	Stats     StatsSnapshot // populated on EventStageEnded
	StartedAt time.Time     // stage start time, populated on EventStageEnded
	Detail    string        // free-form observability note (anomalies, degraded reasons)
}

// PendingSetpoint tracks a candidate setpoint edit awaiting its sustain dwell.
type PendingSetpoint struct {
	Value       float64
	FirstSeenAt time.Time
}

// StageRecord is the finalized record of one zone's pass through a stage.
type StageRecord struct {
	Zone      Zone
	StartedAt time.Time
	EndedAt   time.Time
	Stats     StatsSnapshot
	Outcome   StageOutcome
	SetpointF float64
}

// Config holds the tunable thresholds of the stage-detection FSM. All
// durations are stored as time.Duration for direct use; spec.md expresses
// them in seconds/minutes, converted at load time (see internal/config).
type Config struct {
	Version int

	SamplingPeriod time.Duration
	TolF           float64
	DeltaRampF     float64
	DTMinFPerMin   float64
	TStable        time.Duration
	DeltaOffF      float64
	TOffSustain    time.Duration
	SMinF          float64
	TSpSustain     time.Duration
	MaxRamp        time.Duration
	MaxStage       time.Duration
	QuietWindow    time.Duration
	DTQuietFPerMin float64

	AllowMainWithoutPreheat            bool
	ContinueAfterFaultIfNextStageRamps bool
}

// DefaultConfig returns the parameter defaults from spec.md's configuration
// table.
func DefaultConfig() Config {
	return Config{
		Version:                            1,
		SamplingPeriod:                     2 * time.Second,
		TolF:                               8,
		DeltaRampF:                         20,
		DTMinFPerMin:                       10,
		TStable:                            90 * time.Second,
		DeltaOffF:                          20,
		TOffSustain:                        45 * time.Second,
		SMinF:                              20,
		TSpSustain:                         20 * time.Second,
		MaxRamp:                            900 * time.Second,
		MaxStage:                           7200 * time.Second,
		QuietWindow:                        720 * time.Second,
		DTQuietFPerMin:                     2,
		AllowMainWithoutPreheat:            true,
		ContinueAfterFaultIfNextStageRamps: true,
	}
}

// ConfigInvalid is returned by Config.Validate and worker.New when the
// configuration cannot safely drive the FSM. It is the one error kind the
// core ever surfaces as a Go error to a caller (spec.md §7).
type ConfigInvalid struct {
	Reason string
}

func (e *ConfigInvalid) Error() string {
	return fmt.Sprintf("config invalid: %s", e.Reason)
}

func errConfigInvalid(reason string) error {
	return &ConfigInvalid{Reason: reason}
}

// Validate reports a ConfigInvalid error when the configuration cannot
// safely drive the FSM.
func (c Config) Validate() error {
	switch {
	case c.SamplingPeriod <= 0:
		return errConfigInvalid("sampling_period_s must be positive")
	case c.TolF < 0:
		return errConfigInvalid("Tol_F must be non-negative")
	case c.DeltaRampF <= 0:
		return errConfigInvalid("DeltaRamp_F must be positive")
	case c.TStable <= 0:
		return errConfigInvalid("T_stable_s must be positive")
	case c.DeltaOffF <= 0:
		return errConfigInvalid("DeltaOff_F must be positive")
	case c.TOffSustain <= 0:
		return errConfigInvalid("T_off_sustain_s must be positive")
	case c.SMinF <= 0:
		return errConfigInvalid("S_min_F must be positive")
	case c.MaxRamp <= 0:
		return errConfigInvalid("Max_ramp_s must be positive")
	case c.MaxStage <= c.MaxRamp:
		return errConfigInvalid("Max_stage_s must exceed Max_ramp_s")
	case c.QuietWindow <= 0:
		return errConfigInvalid("quiet_window_s must be positive")
	}
	return nil
}
