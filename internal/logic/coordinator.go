package logic

import (
	"math"
	"time"
)

// quietPoint is one sample kept in the Coordinator's quiet-window ring,
// used to decide whether the whole line has gone thermally flat.
type quietPoint struct {
	t    time.Time
	temp float64
}

// StepResult is what a Coordinator.Observe call hands back to its caller
// (the FSM Worker) so the worker can drive the State Sink's hooks without
// internal/logic depending on persistence at all.
type StepResult struct {
	Events       []Event
	ClosedStages []StageRecord
	ClosedRun    *RunRecord
}

// Coordinator composes a line's per-zone Detectors into one linear cycle
// (Preheat -> Main -> Rib, filtered to enabled zones), owns run lifecycle,
// and applies recovery and quiet-timeout rules. Grounded on
// sweeney-boiler-sensor's cmd/boiler-sensor's runLoop, which plays the
// analogous "drive multiple channels, fold their events into one stream"
// role for the CH/HW debounce pair; generalized here to a 3-zone ordered
// cycle with run-scoped bookkeeping.
type Coordinator struct {
	lineID string
	cfg    Config
	zones  []Zone // enabled zones, canonical order

	detectors map[Zone]*Detector
	quiet     map[Zone][]quietPoint

	run        *Run
	runEvents  []Event
	newRunID   func() string

	pendingRecovery map[Zone]time.Time // zone that faulted -> fault time, awaiting next zone's ramp
}

// NewCoordinator builds a Coordinator for one line. enabledZones must be a
// subset of CanonicalOrder; it is re-sorted into canonical order.
func NewCoordinator(lineID string, enabledZones []Zone, cfg Config, newRunID func() string) *Coordinator {
	enabled := make(map[Zone]bool, len(enabledZones))
	for _, z := range enabledZones {
		enabled[z] = true
	}
	var ordered []Zone
	for _, z := range CanonicalOrder {
		if enabled[z] {
			ordered = append(ordered, z)
		}
	}

	detectors := make(map[Zone]*Detector, len(ordered))
	quiet := make(map[Zone][]quietPoint, len(ordered))
	for _, z := range ordered {
		detectors[z] = NewDetector(z, cfg)
		quiet[z] = nil
	}

	return &Coordinator{
		lineID:          lineID,
		cfg:             cfg,
		zones:           ordered,
		detectors:       detectors,
		quiet:           quiet,
		newRunID:        newRunID,
		pendingRecovery: make(map[Zone]time.Time),
	}
}

// CurrentRun reports the run currently open, if any.
func (c *Coordinator) CurrentRun() *Run { return c.run }

// RestoreState rehydrates the Coordinator's detectors and, if one was
// open at checkpoint time, its in-flight Run — used by the FSM Worker at
// startup to resume after a restart (spec.md §4.5). events is the run's
// accumulated event log at checkpoint time; pass nil if run is nil.
func (c *Coordinator) RestoreState(detectorStates map[Zone]DetectorState, run *Run, events []Event) {
	for z, st := range detectorStates {
		if d, ok := c.detectors[z]; ok {
			d.RestoreState(st)
		}
	}
	c.run = run
	c.runEvents = events
	c.pendingRecovery = make(map[Zone]time.Time)
}

// ExportState captures every detector's state, for the worker to build a
// RuntimeBlob checkpoint.
func (c *Coordinator) ExportState() map[Zone]DetectorState {
	out := make(map[Zone]DetectorState, len(c.detectors))
	for z, d := range c.detectors {
		out[z] = d.ExportState()
	}
	return out
}

// CurrentRunEvents reports the open run's accumulated event log, for
// checkpointing alongside CurrentRun.
func (c *Coordinator) CurrentRunEvents() []Event { return c.runEvents }

// ZoneStage reports a zone's current stage and active setpoint, for the
// worker to publish into its status tracker each tick.
func (c *Coordinator) ZoneStage(zone Zone) (StageKind, float64, bool) {
	d, ok := c.detectors[zone]
	if !ok {
		return "", 0, false
	}
	return d.Stage(), d.ActiveSetpoint(), true
}

// Observe steps every enabled zone's detector with its sample for this
// tick and folds the results into run lifecycle decisions. Called exactly
// once per worker tick.
func (c *Coordinator) Observe(samples map[Zone]Sample, now time.Time) StepResult {
	var result StepResult

	for _, z := range c.zones {
		s, ok := samples[z]
		if !ok {
			continue
		}
		if s.Valid {
			c.pushQuiet(z, s.T, s.TemperatureF)
		}

		events := c.detectors[z].Step(s)
		for _, e := range events {
			result.Events = append(result.Events, e)
			c.handleEvent(z, e, &result)
		}
	}

	if c.run != nil {
		if closed := c.checkRecoveryTimeout(now); closed != nil {
			result.ClosedRun = closed
		} else if closed := c.checkQuietTimeout(now); closed != nil {
			result.ClosedRun = closed
		}
	}

	return result
}

// checkRecoveryTimeout closes the run as Faulted once a faulted zone's
// 2*Max_ramp_s recovery window has elapsed with no qualifying advance
// (spec.md §4.3: "the coordinator advances current_zone_idx upon the next
// zone's RampStarted within 2*Max_ramp_s; else the run closes as
// Faulted"). handleRampStarted only ever consults pendingRecovery when a
// later RampStarted actually arrives; this sweep is what fires the "else"
// when one never does.
func (c *Coordinator) checkRecoveryTimeout(now time.Time) *RunRecord {
	for _, faultT := range c.pendingRecovery {
		if now.Sub(faultT) > 2*c.cfg.MaxRamp {
			return c.closeRun(now, TerminationFaulted, c.anyZoneIncomplete())
		}
	}
	return nil
}

func (c *Coordinator) pushQuiet(z Zone, t time.Time, temp float64) {
	cutoff := t.Add(-c.cfg.QuietWindow)
	capacity := int(c.cfg.QuietWindow/c.cfg.SamplingPeriod) + 8
	pts := c.quiet[z]
	kept := pts[:0]
	for _, p := range pts {
		if p.t.After(cutoff) {
			kept = append(kept, p)
		}
	}
	kept = append(kept, quietPoint{t: t, temp: temp})
	if len(kept) > capacity {
		kept = kept[len(kept)-capacity:]
	}
	c.quiet[z] = kept
}

func (c *Coordinator) zoneIndex(z Zone) int {
	for i, zz := range c.zones {
		if zz == z {
			return i
		}
	}
	return -1
}

func (c *Coordinator) handleEvent(z Zone, e Event, result *StepResult) {
	switch e.Type {
	case EventRampStarted:
		c.handleRampStarted(z, e, result)
	case EventStageEnded:
		c.handleStageEnded(z, e, result)
	default:
		// Fault/Degraded/Anomaly events are observability-only at the
		// coordinator level; they still belong to the run's event log.
		if c.run != nil {
			c.runEvents = append(c.runEvents, e)
		}
	}
}

func (c *Coordinator) handleRampStarted(z Zone, e Event, result *StepResult) {
	if c.run == nil {
		idx := c.zoneIndex(z)
		if idx != 0 && !c.cfg.AllowMainWithoutPreheat {
			return
		}
		c.openRun(z, e.T)
		c.runEvents = append(c.runEvents, e)
		return
	}
	c.runEvents = append(c.runEvents, e)

	curZone, ok := c.run.currentZone()
	if !ok {
		return
	}
	curIdx := c.zoneIndex(curZone)
	zIdx := c.zoneIndex(z)

	switch {
	case zIdx == curIdx:
		// Re-ramp of the current zone (e.g. after STABLE->RAMP jump) is
		// already reflected by the detector. An earlier zone's fault has
		// already advanced the run to this zone, so a ramp here inside
		// that fault's 2*Max_ramp_s window is its recovery: drop it from
		// pendingRecovery so checkRecoveryTimeout does not close the run.
		for pz, faultT := range c.pendingRecovery {
			if c.zoneIndex(pz) < zIdx && e.T.Sub(faultT) <= 2*c.cfg.MaxRamp {
				delete(c.pendingRecovery, pz)
			}
		}
	case zIdx > curIdx:
		faultT, wasFaulted := c.pendingRecovery[curZone]
		if wasFaulted && c.cfg.ContinueAfterFaultIfNextStageRamps && e.T.Sub(faultT) <= 2*c.cfg.MaxRamp {
			delete(c.pendingRecovery, curZone)
			c.run.CurrentZoneIdx = zIdx
		}
		// Otherwise this is just a recovery hint; recorded via the
		// RampStarted event already appended to result.Events.
	case zIdx < curIdx:
		anomaly := Event{
			T: e.T, Type: EventAnomaly, Zone: z,
			Detail: "ramp started for an earlier zone than the run's current zone",
		}
		result.Events = append(result.Events, anomaly)
		c.runEvents = append(c.runEvents, anomaly)
	}
}

func (c *Coordinator) handleStageEnded(z Zone, e Event, result *StepResult) {
	if c.run == nil {
		return
	}
	c.runEvents = append(c.runEvents, e)

	curZone, ok := c.run.currentZone()
	if !ok || z != curZone {
		if c.zoneIndex(z) < c.zoneIndex(curZone) {
			anomaly := Event{
				T: e.T, Type: EventAnomaly, Zone: z,
				Detail: "stage ended for an earlier zone than the run's current zone",
			}
			result.Events = append(result.Events, anomaly)
			c.runEvents = append(c.runEvents, anomaly)
		}
		return
	}

	rec := StageRecord{
		Zone:      z,
		StartedAt: e.StartedAt,
		EndedAt:   e.T,
		Stats:     e.Stats,
		Outcome:   e.Outcome,
		SetpointF: e.SetpointF,
	}
	c.run.recordStage(rec)
	result.ClosedStages = append(result.ClosedStages, rec)

	switch e.Outcome {
	case OutcomeFaulted:
		c.pendingRecovery[z] = e.T
		if !c.cfg.ContinueAfterFaultIfNextStageRamps {
			result.ClosedRun = c.closeRun(e.T, TerminationFaulted, c.anyZoneIncomplete())
			return
		}
		c.advanceOrFinish(e.T, result)
	default:
		delete(c.pendingRecovery, z)
		c.advanceOrFinish(e.T, result)
	}
}

// advanceOrFinish moves current_zone_idx forward, or closes the run as
// Completed if the cycle's last zone just finished.
func (c *Coordinator) advanceOrFinish(t time.Time, result *StepResult) {
	if c.run.CurrentZoneIdx >= len(c.run.CycleOrder)-1 {
		result.ClosedRun = c.closeRun(t, TerminationCompleted, c.anyZoneIncomplete())
		return
	}
	c.run.CurrentZoneIdx++
}

func (c *Coordinator) anyZoneIncomplete() bool {
	for _, z := range c.run.CycleOrder {
		rec, ok := c.run.latestRecord(z)
		if !ok || rec.Outcome != OutcomeCompleted {
			return true
		}
	}
	return false
}

func (c *Coordinator) openRun(startZone Zone, t time.Time) {
	id := c.newRunID()
	c.run = newRun(id, c.lineID, t, c.zones)
	c.run.CurrentZoneIdx = c.zoneIndex(startZone)
	c.runEvents = nil
	c.pendingRecovery = make(map[Zone]time.Time)
}

// checkQuietTimeout closes the run with PartialQuiet/Completed if every
// zone is IDLE or END and the trailing quiet_window_s slope is flat for
// all zones.
func (c *Coordinator) checkQuietTimeout(now time.Time) *RunRecord {
	for _, z := range c.zones {
		st := c.detectors[z].Stage()
		if st == StageRamp || st == StageStable {
			return nil
		}
	}

	for _, z := range c.zones {
		pts := c.quiet[z]
		if len(pts) == 0 {
			continue
		}
		if now.Sub(pts[len(pts)-1].t) > c.cfg.QuietWindow {
			continue
		}
		ts := make([]time.Time, len(pts))
		ys := make([]float64, len(pts))
		for i, p := range pts {
			ts[i] = p.t
			ys[i] = p.temp
		}
		slope := linearSlope(ts, ys)
		if math.Abs(slope) >= c.cfg.DTQuietFPerMin {
			return nil
		}
	}

	if now.Sub(c.run.StartedAt) < c.cfg.QuietWindow {
		return nil
	}

	partial := c.anyZoneIncomplete()
	kind := TerminationCompleted
	if partial {
		kind = TerminationPartialQuiet
	}
	return c.closeRun(now, kind, partial)
}

// AbortRun closes the current run as Aborted, per spec.md §5's explicit
// abort_run control-surface operation.
func (c *Coordinator) AbortRun(t time.Time, reason string) *RunRecord {
	if c.run == nil {
		return nil
	}
	c.runEvents = append(c.runEvents, Event{T: t, Type: EventAnomaly, Detail: "run aborted: " + reason})
	return c.closeRun(t, TerminationAborted, c.anyZoneIncomplete())
}

func (c *Coordinator) closeRun(t time.Time, kind TerminationKind, partial bool) *RunRecord {
	c.run.EndedAt = t
	c.run.Termination = kind
	c.run.HasTermination = true
	c.run.Partial = partial
	rec := BuildRecord(c.run, c.runEvents)
	c.run = nil
	c.runEvents = nil
	c.pendingRecovery = make(map[Zone]time.Time)
	return &rec
}
