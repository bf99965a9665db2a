package mqtt

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/thermostat/internal/port"
)

// Relay drives a networked relay. Commands go to the input topic and the
// relay reports its state on the output topic.
type Relay struct {
	client Client
	input  string
	output string
}

var _ port.Relay = (*Relay)(nil)

// NewRelay creates a relay backend on the given topics.
func NewRelay(c Client, topics Topics) *Relay {
	return &Relay{client: c, input: topics.RelayInput, output: topics.RelayOutput}
}

// Bind subscribes to relay reports and forwards them to sink.
func (r *Relay) Bind(sink port.Sink) error {
	err := r.client.Subscribe(r.output, 1, func(topic string, payload []byte) {
		on, err := ParseSwitch(payload)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("ignoring relay report")
			return
		}
		sink.OnRelayState(on)
	})
	if err != nil {
		return &port.TransportError{Op: "subscribe relay", Backend: "mqtt", Err: err}
	}
	return nil
}

// RequestRelayState asks the relay to report its state.
func (r *Relay) RequestRelayState() error {
	return r.send("request relay state", CommandStatus)
}

// SetRelay commands the relay. The relay confirms by reporting its new state.
func (r *Relay) SetRelay(on bool) error {
	cmd := CommandOff
	if on {
		cmd = CommandOn
	}
	return r.send("set relay", cmd)
}

func (r *Relay) send(op, cmd string) error {
	if err := r.client.Publish(r.input, 1, false, []byte(cmd)); err != nil {
		return &port.TransportError{Op: op, Backend: "mqtt", Err: fmt.Errorf("publish %q to %s: %w", cmd, r.input, err)}
	}
	return nil
}
