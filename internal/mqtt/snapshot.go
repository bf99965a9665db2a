package mqtt

import (
	"fmt"

	"github.com/sweeney/thermostat/internal/port"
	"github.com/sweeney/thermostat/internal/state"
)

// StatePublisher publishes each snapshot as a retained message, so new
// subscribers immediately see the latest control state.
type StatePublisher struct {
	client Client
	topic  string
}

var _ port.SnapshotSink = (*StatePublisher)(nil)

// NewStatePublisher creates a snapshot sink publishing to topic.
func NewStatePublisher(c Client, topic string) *StatePublisher {
	return &StatePublisher{client: c, topic: topic}
}

func (p *StatePublisher) PublishSnapshot(snap state.Snapshot) error {
	if err := p.client.Publish(p.topic, 1, true, state.FormatEvent(snap)); err != nil {
		return fmt.Errorf("publish state: %w", err)
	}
	return nil
}
