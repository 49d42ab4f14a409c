package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{SamplingPeriodMs: 2000, Broker: "tcp://localhost:1883", HTTPAddr: ":8080"}
	tr := NewTracker("line-1", start, cfg)

	snap := tr.Snapshot()
	if snap.LineID != "line-1" {
		t.Errorf("LineID: got %q, want line-1", snap.LineID)
	}
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.SamplingPeriodMs != 2000 {
		t.Errorf("Config.SamplingPeriodMs: got %d, want 2000", snap.Config.SamplingPeriodMs)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if len(snap.Zones) != 0 {
		t.Errorf("expected no zones initially, got %d", len(snap.Zones))
	}
}

func TestUpdateZoneAndSnapshot(t *testing.T) {
	tr := NewTracker("line-1", time.Now(), Config{})

	tr.UpdateZone(logic.ZonePreheat, ZoneStatus{Stage: logic.StageRamp, ActiveSetpoint: 300, LastValid: true})

	snap := tr.Snapshot()
	zs, ok := snap.Zones[logic.ZonePreheat]
	if !ok {
		t.Fatal("expected preheat zone present")
	}
	if zs.Stage != logic.StageRamp || zs.ActiveSetpoint != 300 || !zs.LastValid {
		t.Errorf("zone status mismatch: %+v", zs)
	}
}

func TestSetCurrentRunAndRecordClosedRun(t *testing.T) {
	tr := NewTracker("line-1", time.Now(), Config{})

	tr.SetCurrentRun("run-1")
	if got := tr.Snapshot().CurrentRunID; got != "run-1" {
		t.Errorf("CurrentRunID: got %q, want run-1", got)
	}

	tr.RecordClosedRun("run-1", logic.TerminationCompleted)
	snap := tr.Snapshot()
	if snap.CurrentRunID != "" {
		t.Errorf("expected CurrentRunID cleared, got %q", snap.CurrentRunID)
	}
	if snap.LastRunID != "run-1" || snap.LastTermination != logic.TerminationCompleted {
		t.Errorf("closed-run bookkeeping mismatch: %+v", snap)
	}
}

func TestSetDegradedAndMQTTConnected(t *testing.T) {
	tr := NewTracker("line-1", time.Now(), Config{})

	tr.SetDegraded(true)
	tr.SetMQTTConnected(true)

	snap := tr.Snapshot()
	if !snap.Degraded {
		t.Error("expected Degraded=true")
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	tr := NewTracker("line-1", time.Now(), Config{})
	tr.UpdateZone(logic.ZoneMain, ZoneStatus{Stage: logic.StageIdle})

	snap1 := tr.Snapshot()
	tr.UpdateZone(logic.ZoneMain, ZoneStatus{Stage: logic.StageStable})

	if snap1.Zones[logic.ZoneMain].Stage != logic.StageIdle {
		t.Error("earlier snapshot mutated by later tracker update")
	}
}

func TestUptime(t *testing.T) {
	start := time.Now().Add(-5 * time.Minute)
	tr := NewTracker("line-1", start, Config{})
	snap := tr.Snapshot()
	if snap.Uptime() < 4*time.Minute {
		t.Errorf("Uptime: got %v, want >= 4m", snap.Uptime())
	}
}

func TestConcurrentUpdatesDoNotRace(t *testing.T) {
	tr := NewTracker("line-1", time.Now(), Config{})
	var wg sync.WaitGroup
	zones := []logic.Zone{logic.ZonePreheat, logic.ZoneMain, logic.ZoneRib}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			z := zones[i%len(zones)]
			tr.UpdateZone(z, ZoneStatus{Stage: logic.StageRamp})
			_ = tr.Snapshot()
		}(i)
	}
	wg.Wait()
}

func TestFormatJSON(t *testing.T) {
	tr := NewTracker("line-1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{Broker: "tcp://x:1883"})
	tr.UpdateZone(logic.ZonePreheat, ZoneStatus{Stage: logic.StageStable, ActiveSetpoint: 300})
	tr.SetMQTTConnected(true)

	data := FormatJSON(tr.Snapshot())

	var got StatusJSON
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status.LineID != "line-1" {
		t.Errorf("LineID: got %q", got.Status.LineID)
	}
	if !got.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if len(got.Status.Zones) != 1 || got.Status.Zones[0].Stage != "STABLE" {
		t.Errorf("Zones: got %+v", got.Status.Zones)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	tr := NewTracker("line-1", time.Now(), Config{})
	data := FormatStatusEvent(tr.Snapshot(), "STARTUP", "")

	var got StatusJSON
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status.Event != "STARTUP" {
		t.Errorf("Event: got %q, want STARTUP", got.Status.Event)
	}
}
