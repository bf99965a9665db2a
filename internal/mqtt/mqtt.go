// Package mqtt carries relay commands, relay and occupancy reports, and
// state snapshots over an MQTT broker.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Topics names every topic the thermostat uses.
type Topics struct {
	RelayInput  string // commands to the relay: on, off, status
	RelayOutput string // relay reports: 1 or 0
	Occupancy   string // occupancy reports
	State       string // retained snapshot of the control state
	System      string // lifecycle events and last will
}

// DefaultTopics returns the topic layout used when config leaves them empty.
func DefaultTopics() Topics {
	return Topics{
		RelayInput:  "home/heating/relay/in",
		RelayOutput: "home/heating/relay/out",
		Occupancy:   "home/occupancy",
		State:       "home/heating/thermostat/state",
		System:      "home/heating/thermostat/system",
	}
}

// ErrNotConnected is returned while the broker connection is down.
var ErrNotConnected = errors.New("not connected to broker")

// Relay protocol commands.
const (
	CommandOn     = "on"
	CommandOff    = "off"
	CommandStatus = "status"
)

// Handler receives an inbound message.
type Handler func(topic string, payload []byte)

// Client is the subset of a broker connection the backends need.
type Client interface {
	// Publish sends payload to topic without waiting on the broker. While
	// offline, retained payloads may be buffered; others fail with ErrNotConnected.
	Publish(topic string, qos byte, retained bool, payload []byte) error

	// Subscribe registers handler for topic. Handlers run on the client's
	// goroutine and must not block.
	Subscribe(topic string, qos byte, handler Handler) error

	IsConnected() bool
	Close() error
}

// ParseSwitch interprets an on/off payload as sent by relays and presence
// sensors: 1/0, on/off, true/false, case-insensitive.
func ParseSwitch(payload []byte) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "1", "on", "true":
		return true, nil
	case "0", "off", "false":
		return false, nil
	}
	return false, fmt.Errorf("unrecognised switch payload %q", payload)
}

// SystemEvent is a lifecycle event (STARTUP, SHUTDOWN, OFFLINE).
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string // e.g. "SIGTERM"; shutdown only
}

type systemPayload struct {
	System systemPayloadInner `json:"system"`
}

type systemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// A zero timestamp is omitted, which is how the last will is sent.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	inner := systemPayloadInner{Event: event.Event, Reason: event.Reason}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(systemPayload{System: inner})
}

// waitingPublisher is implemented by clients that can block until the broker
// acknowledges a publish.
type waitingPublisher interface {
	PublishAndWait(topic string, qos byte, retained bool, payload []byte) error
}

// PublishSystem sends a lifecycle event to topic at QoS 1, retained so the
// broker always holds the latest lifecycle state. It waits for the
// acknowledgement when the client supports it.
func PublishSystem(c Client, topic string, event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	if w, ok := c.(waitingPublisher); ok {
		return w.PublishAndWait(topic, 1, true, payload)
	}
	return c.Publish(topic, 1, true, payload)
}
