// Package sink implements the State Sink boundary: the narrow interface
// through which the FSM Worker persists runtime-state checkpoints and
// emits events, stage closures, and run closures. Grounded on the
// teacher's internal/mqtt.Publisher boundary pattern (a small interface,
// a real adapter, and a recording fake for tests).
package sink

import (
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

// RuntimeBlob is the small (<=1KB) per-line checkpoint a Sink persists on
// every tick, letting a restarted worker resume an in-flight run rather
// than losing it. It mirrors the in-memory Run/Detector state closely
// enough to rebuild both exactly.
type RuntimeBlob struct {
	LineID    string         `json:"line_id"`
	SavedAt   time.Time      `json:"saved_at"`
	Run       *RunState      `json:"run,omitempty"`
	Detectors map[logic.Zone]logic.DetectorState `json:"detectors"`
}

// RunState is the serializable snapshot of an in-flight logic.Run,
// sufficient to reconstruct it without replaying history.
type RunState struct {
	RunID          string                              `json:"run_id"`
	StartedAt      time.Time                           `json:"started_at"`
	CycleOrder     []logic.Zone                        `json:"cycle_order"`
	CurrentZoneIdx int                                  `json:"current_zone_idx"`
	ZoneRecords    map[logic.Zone][]logic.StageRecord  `json:"zone_records"`
	Events         []logic.Event                        `json:"events"`
}

// Sink is the State Sink boundary consumed by internal/worker. All five
// methods must tolerate being called from a single goroutine per line;
// no method is safe for concurrent use by multiple lines sharing one
// Sink unless the concrete implementation documents otherwise.
type Sink interface {
	// SaveRuntimeState idempotently overwrites the checkpoint for lineID.
	SaveRuntimeState(lineID string, blob RuntimeBlob) error
	// LoadRuntimeState returns the last saved checkpoint for lineID, and
	// ok=false if none exists (fresh start).
	LoadRuntimeState(lineID string) (blob RuntimeBlob, ok bool, err error)
	// AppendEvent is best-effort: a failure must not corrupt runtime state
	// or block the caller from proceeding with the tick.
	AppendEvent(lineID string, event logic.Event) error
	// OnStageClosed is invoked once per finalized stage.
	OnStageClosed(lineID string, rec logic.StageRecord) error
	// OnRunClosed is invoked exactly once per opened run.
	OnRunClosed(lineID string, record logic.RunRecord) error
}
