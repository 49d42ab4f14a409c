// Package worker implements the FSM Worker: the periodic driver that
// wakes every sampling period, pulls one sample per zone from the Sample
// Source, steps the Run Coordinator, and persists state checkpoints and
// events through the State Sink. Grounded on sweeney-boiler-sensor's
// cmd/boiler-sensor runLoop (ticker + signal channel + select), adding a
// degraded-mode buffer and a command channel pair so the HTTP control
// surface can abort a run or reload configuration from another
// goroutine without taking a lock on the Coordinator itself.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
	"github.com/vulcan-sentinel/sentinel-core/internal/mqtt"
	"github.com/vulcan-sentinel/sentinel-core/internal/sink"
	"github.com/vulcan-sentinel/sentinel-core/internal/source"
	"github.com/vulcan-sentinel/sentinel-core/internal/status"
)

// degradedQueueCapacity is spec.md §5's fixed bound on the in-memory
// event queue used while the State Sink is failing.
const degradedQueueCapacity = 1024

// sinkWriteTimeout is spec.md §5's ceiling on one State Sink write.
const sinkWriteTimeout = 5 * time.Second

// Params configures a new Worker.
type Params struct {
	LineID    string
	Zones     []logic.Zone
	Config    logic.Config
	Source    source.Source
	Sink      sink.Sink
	Publisher mqtt.Publisher
	Logger    *slog.Logger

	// NewRunID generates a new run id; defaults to uuid.NewV7().String().
	NewRunID func() string

	// Now, if set, replaces time.Now for the worker's own clock reads
	// (distinct from each Sample's own monotonic timestamp). Tests inject
	// a fixed or stepped clock here.
	Now func() time.Time

	// HeartbeatInterval is how often tick() emits a liveness HEARTBEAT
	// system event (spec.md §4.4 step 4). Zero or negative disables it;
	// New applies no default. cmd/sentinel-worker's -heartbeat flag
	// supplies 15 minutes, matching the teacher's own default.
	HeartbeatInterval time.Duration
}

type abortRequest struct {
	reason string
	resp   chan error
}

type reloadRequest struct {
	cfg  logic.Config
	resp chan error
}

// Worker drives one production line's FSM end to end. It implements
// internal/api.LineController.
type Worker struct {
	lineID string
	zones  []logic.Zone

	src source.Source
	snk sink.Sink
	pub mqtt.Publisher
	log *slog.Logger
	now func() time.Time

	newRunID func() string

	cfgMu sync.Mutex
	cfg   logic.Config

	coord   *logic.Coordinator
	tracker *status.Tracker

	heartbeatInterval time.Duration
	lastHeartbeat     time.Time
	eventCounts       map[logic.EventType]int

	degraded            bool
	consecutiveFailures int
	queue               *degradedQueue

	abortCh  chan abortRequest
	reloadCh chan reloadRequest
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Worker, attempting to resume any runtime state the Sink
// has checkpointed for this line (spec.md §4.5's load_runtime_state
// recovery path). Returns a *logic.ConfigInvalid if cfg fails validation.
func New(p Params) (*Worker, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	if len(p.Zones) == 0 {
		return nil, errors.New("worker: at least one zone must be enabled")
	}
	if p.NewRunID == nil {
		p.NewRunID = func() string {
			id, err := uuid.NewV7()
			if err != nil {
				return uuid.New().String()
			}
			return id.String()
		}
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("line_id", p.LineID)

	coord := logic.NewCoordinator(p.LineID, p.Zones, p.Config, p.NewRunID)

	w := &Worker{
		lineID:   p.LineID,
		zones:    p.Zones,
		src:      p.Source,
		snk:      p.Sink,
		pub:      p.Publisher,
		log:      logger,
		now:      p.Now,
		newRunID: p.NewRunID,
		cfg:      p.Config,
		coord:    coord,
		tracker: status.NewTracker(p.LineID, p.Now(), status.Config{
			SamplingPeriodMs: p.Config.SamplingPeriod.Milliseconds(),
		}),
		heartbeatInterval: p.HeartbeatInterval,
		lastHeartbeat:     p.Now(),
		eventCounts:       make(map[logic.EventType]int),
		queue:             newDegradedQueue(degradedQueueCapacity),
		abortCh:           make(chan abortRequest),
		reloadCh:          make(chan reloadRequest),
		stopCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
	}

	if w.snk != nil {
		if err := w.resume(); err != nil {
			logger.Warn("failed to load runtime state, starting fresh", "error", err)
		}
	}

	return w, nil
}

func (w *Worker) resume() error {
	blob, ok, err := w.snk.LoadRuntimeState(w.lineID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	detectorStates := make(map[logic.Zone]logic.DetectorState, len(blob.Detectors))
	for z, st := range blob.Detectors {
		detectorStates[z] = st
	}

	var run *logic.Run
	var events []logic.Event
	if blob.Run != nil {
		run = logic.RestoreRun(blob.Run.RunID, w.lineID, blob.Run.StartedAt, blob.Run.CycleOrder, blob.Run.CurrentZoneIdx, blob.Run.ZoneRecords)
		events = blob.Run.Events
		w.tracker.SetCurrentRun(run.RunID)
	}

	w.coord.RestoreState(detectorStates, run, events)
	w.log.Info("resumed runtime state", "had_open_run", run != nil)
	return nil
}

// Status implements internal/api.LineController.
func (w *Worker) Status() status.Snapshot { return w.tracker.Snapshot() }

// AbortRun implements internal/api.LineController: it asks the worker's
// own goroutine to abort the current run, serializing the request
// through the tick loop rather than locking the Coordinator directly.
func (w *Worker) AbortRun(reason string) error {
	resp := make(chan error, 1)
	select {
	case w.abortCh <- abortRequest{reason: reason, resp: resp}:
	case <-w.doneCh:
		return errors.New("worker: stopped")
	}
	select {
	case err := <-resp:
		return err
	case <-w.doneCh:
		return errors.New("worker: stopped")
	}
}

// ReloadConfig implements internal/api.LineController. The new config is
// validated and handed to the Run goroutine, which stores it between ticks
// and rearms the tick timer against its sampling period; from the next
// tick on, the sampling period and the sample max-age derived from it
// come from the new config. The Coordinator and its detectors keep the
// thresholds they were built with in New: a reload does not change stage
// detection, neither for the open run nor for later runs.
func (w *Worker) ReloadConfig(cfg logic.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	resp := make(chan error, 1)
	select {
	case w.reloadCh <- reloadRequest{cfg: cfg, resp: resp}:
	case <-w.doneCh:
		return errors.New("worker: stopped")
	}
	select {
	case err := <-resp:
		return err
	case <-w.doneCh:
		return errors.New("worker: stopped")
	}
}

// Stop requests the worker's Run loop to finish its current tick,
// persist runtime state, and exit (spec.md §5's cancellation contract).
func (w *Worker) Stop() {
	close(w.stopCh)
}

// Run drives the FSM Worker's tick loop until Stop is called or ctx is
// canceled. Grounded on the teacher's runLoop shape: a single select over
// a wake channel, stop, and cancellation. Unlike the teacher's bare
// time.Ticker, the wake channel here is a manually rearmed time.Timer
// driven by a monotonic deadline ladder (spec.md §4.4): each fire computes
// the next deadline as last_deadline + period rather than now + period, so
// a slow tick doesn't drift the cadence. A tick that overran the period
// fires its successor immediately once and then resynchronizes the ladder
// to the current time, instead of bursting through every missed deadline.
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.doneCh)

	// The deadline ladder runs on the real wall clock, not w.now(): w.now()
	// is the injectable clock used for sample timestamps and is fixed in
	// tests, which would wedge a ladder computed from it.
	lastDeadline := time.Now()
	timer := time.NewTimer(w.currentConfig().SamplingPeriod)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown("context canceled")
			return ctx.Err()

		case <-w.stopCh:
			w.shutdown("stop requested")
			return nil

		case req := <-w.abortCh:
			t := w.now()
			rec := w.coord.AbortRun(t, req.reason)
			if rec != nil {
				w.handleClosedRun(*rec)
			}
			if req.resp != nil {
				if rec == nil {
					req.resp <- fmt.Errorf("worker: no run open on line %s", w.lineID)
				} else {
					req.resp <- nil
				}
			}

		case req := <-w.reloadCh:
			w.cfgMu.Lock()
			w.cfg = req.cfg
			w.cfgMu.Unlock()
			w.log.Info("configuration reloaded", "version", req.cfg.Version)
			if req.resp != nil {
				req.resp <- nil
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(nextWait(lastDeadline, req.cfg.SamplingPeriod, time.Now()))

		case fireTime := <-timer.C:
			w.tick(fireTime)
			period := w.currentConfig().SamplingPeriod
			if fireTime.Sub(lastDeadline.Add(period)) > period {
				// this tick overran by more than one period: the
				// immediate re-fire above already caught up, so
				// resynchronize the ladder to now instead of bursting
				// through every deadline that was missed in between.
				lastDeadline = fireTime
			} else {
				lastDeadline = lastDeadline.Add(period)
			}
			timer.Reset(nextWait(lastDeadline, period, time.Now()))
		}
	}
}

// nextWait returns how long to sleep before the next deadline on the
// last_deadline+period ladder. A deadline already in the past (an
// overrun) returns 0, so the timer fires immediately on the next select.
func nextWait(lastDeadline time.Time, period time.Duration, now time.Time) time.Duration {
	wait := lastDeadline.Add(period).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

func (w *Worker) currentConfig() logic.Config {
	w.cfgMu.Lock()
	defer w.cfgMu.Unlock()
	return w.cfg
}

func (w *Worker) shutdown(reason string) {
	t := w.now()
	w.saveCheckpoint(t)
	if w.pub != nil {
		event := mqtt.SystemEvent{Timestamp: t, Event: "SHUTDOWN", Reason: reason, Retained: true}
		if err := w.pub.PublishSystem(w.lineID, event); err != nil {
			w.log.Warn("failed to publish shutdown event", "error", err)
		}
	}
	w.log.Info("worker stopped", "reason", reason)
}

// tick performs exactly one worker iteration, per spec.md §4.4: acquire
// samples, step the Coordinator, persist checkpoint and events, publish,
// emit liveness heartbeat.
func (w *Worker) tick(t time.Time) {
	cfg := w.currentConfig()
	samples := w.acquireSamples(t, cfg)

	result := w.coord.Observe(samples, t)

	for _, e := range result.Events {
		w.log.Debug("event", "type", e.Type, "zone", e.Zone, "outcome", e.Outcome)
		w.eventCounts[e.Type]++
		w.persistEvent(e)
		if w.pub != nil {
			if err := w.pub.PublishEvent(w.lineID, e); err != nil {
				w.log.Warn("failed to publish event", "error", err, "type", e.Type)
			}
		}
	}

	for _, stageRec := range result.ClosedStages {
		w.persistStage(stageRec)
	}

	if result.ClosedRun != nil {
		w.handleClosedRun(*result.ClosedRun)
	}

	w.updateTracker(t)
	w.saveCheckpoint(t)
	w.emitHeartbeat(t)
}

// emitHeartbeat publishes a liveness HEARTBEAT system event once per
// heartbeatInterval (spec.md §4.4 step 4), adapted from the teacher's
// Detector.CheckHeartbeat/main.go runLoop heartbeat branch: disabled by a
// non-positive interval, otherwise fired at most once per interval and
// carrying uptime plus a running tally of events seen since startup.
func (w *Worker) emitHeartbeat(t time.Time) {
	if w.heartbeatInterval <= 0 {
		return
	}
	if t.Sub(w.lastHeartbeat) < w.heartbeatInterval {
		return
	}
	w.lastHeartbeat = t

	snap := w.tracker.Snapshot()
	w.log.Info("heartbeat", "uptime", snap.Uptime(), "counts", w.eventCounts)

	if w.pub == nil {
		return
	}
	event := mqtt.SystemEvent{
		Timestamp: t,
		Event:     "HEARTBEAT",
		Reason:    fmt.Sprintf("uptime=%s counts=%v", snap.Uptime(), w.eventCounts),
	}
	if err := w.pub.PublishSystem(w.lineID, event); err != nil {
		w.log.Warn("failed to publish heartbeat event", "error", err)
	}
}

func (w *Worker) acquireSamples(t time.Time, cfg logic.Config) map[logic.Zone]logic.Sample {
	maxAge := 3 * cfg.SamplingPeriod
	samples := make(map[logic.Zone]logic.Sample, len(w.zones))
	for _, z := range w.zones {
		reading, err := w.src.Latest(z)
		if err != nil {
			w.log.Warn("sample source error", "zone", z, "error", err)
			samples[z] = logic.Sample{Zone: z, T: t, Valid: false}
			continue
		}
		valid := reading.Valid && t.Sub(reading.TMonotonic) <= maxAge
		samples[z] = logic.Sample{
			Zone: z, T: reading.TMonotonic,
			TemperatureF: reading.TemperatureF, SetpointF: reading.SetpointF,
			Valid: valid,
		}
	}
	return samples
}

func (w *Worker) updateTracker(t time.Time) {
	for _, z := range w.zones {
		stage, setpoint, ok := w.coord.ZoneStage(z)
		if !ok {
			continue
		}
		w.tracker.UpdateZone(z, status.ZoneStatus{
			Stage: stage, ActiveSetpoint: setpoint, LastSampleAt: t, LastValid: true,
		})
	}
	if run := w.coord.CurrentRun(); run != nil {
		w.tracker.SetCurrentRun(run.RunID)
	}
	if w.pub != nil {
		if connStatus, ok := w.pub.(mqtt.ConnectionStatus); ok {
			w.tracker.SetMQTTConnected(connStatus.IsConnected())
		}
	}
	w.tracker.SetDegraded(w.degraded)
}

func (w *Worker) handleClosedRun(record logic.RunRecord) {
	w.tracker.RecordClosedRun(record.RunID, record.Termination)
	w.persistRun(record)
	if w.pub != nil {
		if err := w.pub.PublishRun(w.lineID, record); err != nil {
			w.log.Warn("failed to publish run record", "error", err, "run_id", record.RunID)
		}
	}
}

func (w *Worker) saveCheckpoint(t time.Time) {
	if w.snk == nil {
		return
	}
	blob := sink.RuntimeBlob{
		LineID:    w.lineID,
		SavedAt:   t,
		Detectors: w.coord.ExportState(),
	}
	if run := w.coord.CurrentRun(); run != nil {
		blob.Run = &sink.RunState{
			RunID:          run.RunID,
			StartedAt:      run.StartedAt,
			CycleOrder:     run.CycleOrder,
			CurrentZoneIdx: run.CurrentZoneIdx,
			ZoneRecords:    run.ZoneRecords,
			Events:         w.coord.CurrentRunEvents(),
		}
	}
	err := w.withSinkTimeout(func() error { return w.snk.SaveRuntimeState(w.lineID, blob) })
	w.recordSinkResult(err)
}

func (w *Worker) persistEvent(e logic.Event) {
	if w.snk == nil {
		return
	}
	if w.degraded {
		w.queue.push(pendingItem{kind: pendingEvent, event: e})
		return
	}
	err := w.withSinkTimeout(func() error { return w.snk.AppendEvent(w.lineID, e) })
	w.recordSinkResult(err)
	if err != nil {
		w.queue.push(pendingItem{kind: pendingEvent, event: e})
	}
}

func (w *Worker) persistStage(rec logic.StageRecord) {
	if w.snk == nil {
		return
	}
	if w.degraded {
		w.queue.push(pendingItem{kind: pendingStage, stage: rec})
		return
	}
	err := w.withSinkTimeout(func() error { return w.snk.OnStageClosed(w.lineID, rec) })
	w.recordSinkResult(err)
	if err != nil {
		w.queue.push(pendingItem{kind: pendingStage, stage: rec})
	}
}

func (w *Worker) persistRun(record logic.RunRecord) {
	if w.snk == nil {
		return
	}
	if w.degraded {
		w.queue.push(pendingItem{kind: pendingRun, run: record})
		return
	}
	err := w.withSinkTimeout(func() error { return w.snk.OnRunClosed(w.lineID, record) })
	w.recordSinkResult(err)
	if err != nil {
		// on_run_closed must never be dropped (spec.md §5): queue it even
		// though the queue is nominally for degraded mode only, so a
		// single transient failure doesn't lose a closed run.
		w.queue.push(pendingItem{kind: pendingRun, run: record})
	}
}

func (w *Worker) withSinkTimeout(fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(sinkWriteTimeout):
		return fmt.Errorf("worker: state sink write exceeded %s", sinkWriteTimeout)
	}
}

// recordSinkResult implements spec.md §5's retry discipline: a single
// failed write is tolerated silently (it will be retried on the next
// tick); a second consecutive failure trips degraded mode and publishes a
// DEGRADED system event. Any success resets the streak and, if the worker
// was degraded or the queue holds an earlier failed write, flushes the
// queue.
func (w *Worker) recordSinkResult(err error) {
	if err != nil {
		w.consecutiveFailures++
		if w.consecutiveFailures >= 2 && !w.degraded {
			w.degraded = true
			w.log.Warn("entering degraded mode: state sink unavailable", "error", err)
			if w.pub != nil {
				event := mqtt.SystemEvent{Timestamp: w.now(), Event: "DEGRADED", Reason: "sink unavailable"}
				if perr := w.pub.PublishSystem(w.lineID, event); perr != nil {
					w.log.Warn("failed to publish degraded event", "error", perr)
				}
			}
		}
		return
	}

	w.consecutiveFailures = 0
	if !w.degraded && w.queue.len() == 0 {
		return
	}
	w.flushQueue()
}

// flushQueue retries every buffered write once the sink is healthy
// again, leaving anything that still fails for the next attempt.
func (w *Worker) flushQueue() {
	pending := w.queue.drainAll()
	anyFailed := false
	for _, item := range pending {
		var err error
		switch item.kind {
		case pendingEvent:
			err = w.snk.AppendEvent(w.lineID, item.event)
		case pendingStage:
			err = w.snk.OnStageClosed(w.lineID, item.stage)
		case pendingRun:
			err = w.snk.OnRunClosed(w.lineID, item.run)
		}
		if err != nil {
			w.log.Warn("failed to flush buffered sink write", "error", err, "kind", item.kind)
			w.queue.push(item)
			anyFailed = true
		}
	}
	if !anyFailed {
		if w.degraded {
			w.log.Info("exited degraded mode, sink writes flushed", "flushed", len(pending))
		}
		w.degraded = false
	}
}
