package mqtt

import (
	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	Events   []logic.Event
	Payloads [][]byte

	Runs       []logic.RunRecord
	RunPayloads [][]byte

	SystemEvents   []SystemEvent
	SystemPayloads [][]byte

	PublishEventError  error
	PublishRunError    error
	PublishSystemError error

	Closed    bool
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

// PublishEvent records the FSM event.
func (f *FakePublisher) PublishEvent(lineID string, event logic.Event) error {
	if f.PublishEventError != nil {
		return f.PublishEventError
	}
	f.Events = append(f.Events, event)
	payload, err := FormatEventPayload(event)
	if err != nil {
		return err
	}
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishRun records the closed run record.
func (f *FakePublisher) PublishRun(lineID string, record logic.RunRecord) error {
	if f.PublishRunError != nil {
		return f.PublishRunError
	}
	f.Runs = append(f.Runs, record)
	payload, err := FormatRunPayload(record)
	if err != nil {
		return err
	}
	f.RunPayloads = append(f.RunPayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(lineID string, event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}
	f.SystemEvents = append(f.SystemEvents, event)
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.Events = nil
	f.Payloads = nil
	f.Runs = nil
	f.RunPayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishEventError = nil
	f.PublishRunError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
