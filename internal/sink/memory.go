package sink

import (
	"sync"

	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

// Memory is an in-process Sink for tests and single-process deployments
// without durable recovery, grounded on the teacher's
// internal/mqtt.FakePublisher recording-double style: every call is
// recorded into an exported slice/map so tests can assert on exactly
// what was persisted.
type Memory struct {
	mu sync.Mutex

	blobs map[string]RuntimeBlob

	Events       []logic.Event
	StageRecords []logic.StageRecord
	Runs         []logic.RunRecord

	SaveRuntimeStateError error
	AppendEventError      error
	OnStageClosedError    error
	OnRunClosedError      error
}

// NewMemory creates an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]RuntimeBlob)}
}

func (m *Memory) SaveRuntimeState(lineID string, blob RuntimeBlob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveRuntimeStateError != nil {
		return m.SaveRuntimeStateError
	}
	m.blobs[lineID] = blob
	return nil
}

func (m *Memory) LoadRuntimeState(lineID string) (RuntimeBlob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[lineID]
	return blob, ok, nil
}

func (m *Memory) AppendEvent(lineID string, event logic.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendEventError != nil {
		return m.AppendEventError
	}
	m.Events = append(m.Events, event)
	return nil
}

func (m *Memory) OnStageClosed(lineID string, rec logic.StageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OnStageClosedError != nil {
		return m.OnStageClosedError
	}
	m.StageRecords = append(m.StageRecords, rec)
	return nil
}

func (m *Memory) OnRunClosed(lineID string, record logic.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OnRunClosedError != nil {
		return m.OnRunClosedError
	}
	m.Runs = append(m.Runs, record)
	return nil
}

// Reset clears every recorded call, for reuse across subtests.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs = make(map[string]RuntimeBlob)
	m.Events = nil
	m.StageRecords = nil
	m.Runs = nil
}
