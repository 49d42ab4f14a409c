package sink

import (
	"bufio"
	"os"
	"testing"
	"time"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

func TestFileSaveAndLoadRuntimeState(t *testing.T) {
	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	if _, ok, err := f.LoadRuntimeState("line-1"); ok || err != nil {
		t.Fatalf("expected no state yet, got ok=%v err=%v", ok, err)
	}

	blob := RuntimeBlob{
		LineID:  "line-1",
		SavedAt: time.Now().Truncate(time.Second),
		Run: &RunState{
			RunID:      "run-1",
			CycleOrder: []logic.Zone{logic.ZonePreheat, logic.ZoneMain},
		},
	}
	if err := f.SaveRuntimeState("line-1", blob); err != nil {
		t.Fatalf("SaveRuntimeState: %v", err)
	}

	got, ok, err := f.LoadRuntimeState("line-1")
	if err != nil || !ok {
		t.Fatalf("LoadRuntimeState: ok=%v err=%v", ok, err)
	}
	if got.Run == nil || got.Run.RunID != "run-1" {
		t.Fatalf("unexpected blob: %+v", got)
	}
}

func TestFileSaveRuntimeStateOverwritesIdempotently(t *testing.T) {
	f, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	f.SaveRuntimeState("line-1", RuntimeBlob{LineID: "line-1", Run: &RunState{RunID: "run-1"}})
	f.SaveRuntimeState("line-1", RuntimeBlob{LineID: "line-1", Run: &RunState{RunID: "run-2"}})

	got, ok, err := f.LoadRuntimeState("line-1")
	if err != nil || !ok {
		t.Fatalf("LoadRuntimeState: ok=%v err=%v", ok, err)
	}
	if got.Run.RunID != "run-2" {
		t.Fatalf("expected latest save to win, got %+v", got.Run)
	}

	if _, err := os.Stat(f.statePath("line-1") + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain after successful rename")
	}
}

func TestFileAppendEventWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	f.AppendEvent("line-1", logic.Event{Type: logic.EventRampStarted, Zone: logic.ZonePreheat})
	f.AppendEvent("line-1", logic.Event{Type: logic.EventStageEnded, Zone: logic.ZonePreheat})

	fh, err := os.Open(f.eventsPath("line-1"))
	if err != nil {
		t.Fatalf("open events file: %v", err)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	var lines int
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Errorf("expected 2 JSON lines, got %d", lines)
	}
}

func TestFileOnStageClosedAndOnRunClosed(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	if err := f.OnStageClosed("line-1", logic.StageRecord{Zone: logic.ZonePreheat}); err != nil {
		t.Fatalf("OnStageClosed: %v", err)
	}
	if err := f.OnRunClosed("line-1", logic.RunRecord{RunID: "run-1"}); err != nil {
		t.Fatalf("OnRunClosed: %v", err)
	}

	if _, err := os.Stat(f.stagesPath("line-1")); err != nil {
		t.Errorf("stages file missing: %v", err)
	}
	if _, err := os.Stat(f.runsPath("line-1")); err != nil {
		t.Errorf("runs file missing: %v", err)
	}
}

func TestNewFileCreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/sink-dir"
	if _, err := NewFile(dir); err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected directory to be created: %v", err)
	}
}
