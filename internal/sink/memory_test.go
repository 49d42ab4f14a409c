package sink

import (
	"errors"
	"testing"
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

func TestMemorySaveAndLoadRuntimeState(t *testing.T) {
	m := NewMemory()

	if _, ok, err := m.LoadRuntimeState("line-1"); ok || err != nil {
		t.Fatalf("expected no state yet, got ok=%v err=%v", ok, err)
	}

	blob := RuntimeBlob{LineID: "line-1", SavedAt: time.Now()}
	if err := m.SaveRuntimeState("line-1", blob); err != nil {
		t.Fatalf("SaveRuntimeState: %v", err)
	}

	got, ok, err := m.LoadRuntimeState("line-1")
	if err != nil || !ok {
		t.Fatalf("LoadRuntimeState: ok=%v err=%v", ok, err)
	}
	if got.LineID != "line-1" {
		t.Errorf("LineID: got %q", got.LineID)
	}
}

func TestMemoryAppendEventRecordsOrder(t *testing.T) {
	m := NewMemory()
	e1 := logic.Event{Type: logic.EventRampStarted, Zone: logic.ZonePreheat}
	e2 := logic.Event{Type: logic.EventStageEnded, Zone: logic.ZonePreheat}

	if err := m.AppendEvent("line-1", e1); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := m.AppendEvent("line-1", e2); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if len(m.Events) != 2 || m.Events[0].Type != logic.EventRampStarted || m.Events[1].Type != logic.EventStageEnded {
		t.Fatalf("unexpected events: %+v", m.Events)
	}
}

func TestMemoryOnStageClosedAndOnRunClosed(t *testing.T) {
	m := NewMemory()
	rec := logic.StageRecord{Zone: logic.ZonePreheat, Outcome: logic.OutcomeCompleted}
	if err := m.OnStageClosed("line-1", rec); err != nil {
		t.Fatalf("OnStageClosed: %v", err)
	}
	run := logic.RunRecord{RunID: "run-1", LineID: "line-1"}
	if err := m.OnRunClosed("line-1", run); err != nil {
		t.Fatalf("OnRunClosed: %v", err)
	}

	if len(m.StageRecords) != 1 || len(m.Runs) != 1 {
		t.Fatalf("got stages=%d runs=%d", len(m.StageRecords), len(m.Runs))
	}
	if m.Runs[0].RunID != "run-1" {
		t.Errorf("RunID: got %q", m.Runs[0].RunID)
	}
}

func TestMemoryErrorInjection(t *testing.T) {
	m := NewMemory()
	wantErr := errors.New("disk full")
	m.AppendEventError = wantErr

	if err := m.AppendEvent("line-1", logic.Event{}); err != wantErr {
		t.Fatalf("expected injected error, got %v", err)
	}
	if len(m.Events) != 0 {
		t.Error("event must not be recorded when AppendEvent fails")
	}
}

func TestMemoryReset(t *testing.T) {
	m := NewMemory()
	m.AppendEvent("line-1", logic.Event{})
	m.SaveRuntimeState("line-1", RuntimeBlob{LineID: "line-1"})

	m.Reset()

	if len(m.Events) != 0 {
		t.Error("Reset must clear Events")
	}
	if _, ok, _ := m.LoadRuntimeState("line-1"); ok {
		t.Error("Reset must clear saved blobs")
	}
}
