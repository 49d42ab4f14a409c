package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

// File is a durable Sink: a JSON-lines append log per line for events,
// stage closures, and run closures, plus an atomically overwritten
// runtime-state blob used for startup recovery. Modeled on the teacher's
// pattern of marshaling small JSON snapshots with encoding/json
// (status.FormatJSON, mqtt.FormatEventPayload) and on the aggregator
// service's internal.Offsets (mutex-guarded read-modify-write of a JSON
// file) for the checkpoint blob. No embedded-DB driver from the corpus
// (e.g. SQLite) is wired here — see DESIGN.md.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile creates a File sink rooted at dir, creating it if necessary.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create directory %s: %w", dir, err)
	}
	return &File{dir: dir}, nil
}

func (f *File) statePath(lineID string) string {
	return filepath.Join(f.dir, lineID+".state.json")
}

func (f *File) eventsPath(lineID string) string {
	return filepath.Join(f.dir, lineID+".events.jsonl")
}

func (f *File) stagesPath(lineID string) string {
	return filepath.Join(f.dir, lineID+".stages.jsonl")
}

func (f *File) runsPath(lineID string) string {
	return filepath.Join(f.dir, lineID+".runs.jsonl")
}

// SaveRuntimeState idempotently overwrites the checkpoint for lineID by
// writing to a temp file in the same directory and renaming over the
// target, so a crash mid-write never leaves a truncated blob behind.
func (f *File) SaveRuntimeState(lineID string, blob RuntimeBlob) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("sink: marshal runtime state: %w", err)
	}

	target := f.statePath(lineID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("sink: write temp state file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("sink: rename state file: %w", err)
	}
	return nil
}

// LoadRuntimeState reads the last saved checkpoint for lineID.
func (f *File) LoadRuntimeState(lineID string) (RuntimeBlob, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.statePath(lineID))
	if os.IsNotExist(err) {
		return RuntimeBlob{}, false, nil
	}
	if err != nil {
		return RuntimeBlob{}, false, fmt.Errorf("sink: read state file: %w", err)
	}
	var blob RuntimeBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return RuntimeBlob{}, false, fmt.Errorf("sink: unmarshal state file: %w", err)
	}
	return blob, true, nil
}

// AppendEvent writes one JSON line to the line's event log. Best-effort:
// callers should log but not fail the tick on error.
func (f *File) AppendEvent(lineID string, event logic.Event) error {
	return f.appendLine(f.eventsPath(lineID), event)
}

// OnStageClosed writes one JSON line to the line's stage log.
func (f *File) OnStageClosed(lineID string, rec logic.StageRecord) error {
	return f.appendLine(f.stagesPath(lineID), rec)
}

// OnRunClosed writes one JSON line to the line's run log.
func (f *File) OnRunClosed(lineID string, record logic.RunRecord) error {
	return f.appendLine(f.runsPath(lineID), record)
}

func (f *File) appendLine(path string, v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sink: marshal: %w", err)
	}

	fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sink: open %s: %w", path, err)
	}
	defer fh.Close()

	if _, err := fh.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("sink: write %s: %w", path, err)
	}
	return nil
}
