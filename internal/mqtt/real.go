package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/vulcan-sentinel/sentinel-core/internal/logic"
)

// RealPublisher publishes to an actual MQTT broker, buffering messages
// through a ringBuffer while disconnected (see buffer.go).
type RealPublisher struct {
	client paho.Client
	buf    *ringBuffer
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{
		client: client,
		buf:    newRingBuffer(1024),
	}, nil
}

// publish sends one already-encoded payload to the broker. It never
// touches the buffer itself — callers own buffering, since only they know
// which domain value (event, run, system) to re-publish from on retry.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("publish deferred: not connected")
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// FlushBuffered republishes any sentinel messages queued while
// disconnected, in FIFO order, by calling back into the owning Publish*
// method for each one. A renewed failure re-buffers that message (via the
// same Publish* call) and aborts the flush; whatever was still in the
// drained batch behind it is not retried until the next flush.
func (p *RealPublisher) FlushBuffered() {
	pending := p.buf.drainAll()
	for i, m := range pending {
		var err error
		switch m.kind {
		case publishEvent:
			err = p.PublishEvent(m.lineID, m.event)
		case publishRun:
			err = p.PublishRun(m.lineID, m.run)
		case publishSystem:
			err = p.PublishSystem(m.lineID, m.system)
		}
		if err != nil {
			for _, rest := range pending[i+1:] {
				p.buf.push(rest)
			}
			return
		}
	}
}

// PublishEvent sends an FSM event to the broker, buffering it for replay
// if the broker is unreachable.
func (p *RealPublisher) PublishEvent(lineID string, event logic.Event) error {
	payload, err := FormatEventPayload(event)
	if err != nil {
		return fmt.Errorf("format event payload: %w", err)
	}
	if err := p.publish(TopicEvents(lineID), 0, false, payload); err != nil {
		p.buf.push(pendingPublish{kind: publishEvent, lineID: lineID, event: event})
		return err
	}
	return nil
}

// PublishRun sends a closed run record to the broker at QoS 1, since run
// records must not be silently lost, buffering it for replay on failure.
func (p *RealPublisher) PublishRun(lineID string, record logic.RunRecord) error {
	payload, err := FormatRunPayload(record)
	if err != nil {
		return fmt.Errorf("format run payload: %w", err)
	}
	if err := p.publish(TopicRuns(lineID), 1, false, payload); err != nil {
		p.buf.push(pendingPublish{kind: publishRun, lineID: lineID, run: record})
		return err
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the broker, honoring
// the event's own Retained flag (startup/shutdown events are retained so
// a late subscriber sees the line's last known lifecycle transition).
func (p *RealPublisher) PublishSystem(lineID string, event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	if err := p.publish(TopicSystem(lineID), 1, event.Retained, payload); err != nil {
		p.buf.push(pendingPublish{kind: publishSystem, lineID: lineID, system: event})
		return err
	}
	return nil
}

// IsConnected reports whether the broker connection is active.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
