package logic

import (
	"math"
	"time"
)

// Run is the in-memory record of one traversal of the enabled zones in
// cycle order. It is owned exclusively by a Coordinator; nothing outside
// internal/logic ever mutates it directly.
type Run struct {
	RunID      string
	LineID     string
	StartedAt  time.Time
	EndedAt    time.Time
	CycleOrder []Zone

	CurrentZoneIdx int

	ZoneRecords map[Zone][]StageRecord

	Termination     TerminationKind
	HasTermination  bool
	Partial         bool
}

func newRun(runID, lineID string, startedAt time.Time, cycleOrder []Zone) *Run {
	return &Run{
		RunID:       runID,
		LineID:      lineID,
		StartedAt:   startedAt,
		CycleOrder:  cycleOrder,
		ZoneRecords: make(map[Zone][]StageRecord),
	}
}

// RestoreRun rebuilds an in-flight Run from a State Sink checkpoint, for
// the FSM Worker to resume a run left open across a restart (spec.md
// §4.5's load_runtime_state recovery path). currentZoneIdx and
// zoneRecords come from the persisted snapshot; fault-recovery bookkeeping
// lives on the Coordinator's pendingRecovery map, not on the Run, so there
// is nothing else to restore here.
func RestoreRun(runID, lineID string, startedAt time.Time, cycleOrder []Zone, currentZoneIdx int, zoneRecords map[Zone][]StageRecord) *Run {
	if zoneRecords == nil {
		zoneRecords = make(map[Zone][]StageRecord)
	}
	return &Run{
		RunID:          runID,
		LineID:         lineID,
		StartedAt:      startedAt,
		CycleOrder:     cycleOrder,
		CurrentZoneIdx: currentZoneIdx,
		ZoneRecords:    zoneRecords,
	}
}

func (r *Run) currentZone() (Zone, bool) {
	if r.CurrentZoneIdx < 0 || r.CurrentZoneIdx >= len(r.CycleOrder) {
		return "", false
	}
	return r.CycleOrder[r.CurrentZoneIdx], true
}

func (r *Run) recordStage(rec StageRecord) {
	r.ZoneRecords[rec.Zone] = append(r.ZoneRecords[rec.Zone], rec)
}

func (r *Run) latestRecord(zone Zone) (StageRecord, bool) {
	recs := r.ZoneRecords[zone]
	if len(recs) == 0 {
		return StageRecord{}, false
	}
	return recs[len(recs)-1], true
}

// RunRecord is the external, JSON-serializable projection of a closed Run,
// matching spec.md §6's exact field set.
type RunRecord struct {
	RunID       string          `json:"run_id"`
	LineID      string          `json:"line_id"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     time.Time       `json:"ended_at"`
	Termination TerminationKind `json:"termination"`
	Partial     bool            `json:"partial"`
	Zones       []RunZone       `json:"zones"`
	Events      []RunEvent      `json:"events"`
}

// RunZone is one zone's contribution to a RunRecord.
type RunZone struct {
	Zone      Zone         `json:"zone"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
	Outcome   StageOutcome `json:"outcome"`
	SamplesN  int          `json:"samples_n"`
	MeanF     float64      `json:"mean_F"`
	StddevF   float64      `json:"stddev_F"`
	MinF      float64      `json:"min_F"`
	MaxF      float64      `json:"max_F"`
	SetpointF float64      `json:"setpoint_F"`
}

// RunEvent is the external, JSON-serializable projection of an Event.
type RunEvent struct {
	T      time.Time `json:"t"`
	Kind   EventType `json:"kind"`
	Zone   Zone      `json:"zone,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

// BuildRecord projects a closed Run plus its accumulated events into a
// RunRecord. Called exactly once, at the point a Coordinator closes a run.
func BuildRecord(r *Run, events []Event) RunRecord {
	zones := make([]RunZone, 0, len(r.CycleOrder))
	for _, z := range r.CycleOrder {
		rec, ok := r.latestRecord(z)
		if !ok {
			zones = append(zones, RunZone{Zone: z, Outcome: OutcomeSkipped, MeanF: math.NaN(), StddevF: math.NaN(), MinF: math.NaN(), MaxF: math.NaN()})
			continue
		}
		zones = append(zones, RunZone{
			Zone:      z,
			StartedAt: rec.StartedAt,
			EndedAt:   rec.EndedAt,
			Outcome:   rec.Outcome,
			SamplesN:  rec.Stats.N,
			MeanF:     rec.Stats.Mean,
			StddevF:   rec.Stats.Stddev,
			MinF:      rec.Stats.Min,
			MaxF:      rec.Stats.Max,
			SetpointF: rec.SetpointF,
		})
	}

	recEvents := make([]RunEvent, 0, len(events))
	for _, e := range events {
		recEvents = append(recEvents, RunEvent{T: e.T, Kind: e.Type, Zone: e.Zone, Detail: e.Detail})
	}

	return RunRecord{
		RunID:       r.RunID,
		LineID:      r.LineID,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
		Termination: r.Termination,
		Partial:     r.Partial,
		Zones:       zones,
		Events:      recEvents,
	}
}
