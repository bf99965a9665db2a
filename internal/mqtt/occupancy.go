package mqtt

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/thermostat/internal/port"
)

// Occupancy follows a presence topic. Every report is forwarded as it
// arrives; a request re-delivers the last report seen.
type Occupancy struct {
	client Client
	topic  string

	mu    sync.Mutex
	sink  port.Sink
	last  bool
	known bool
}

var _ port.OccupancySource = (*Occupancy)(nil)

// NewOccupancy creates an occupancy backend on topic.
func NewOccupancy(c Client, topic string) *Occupancy {
	return &Occupancy{client: c, topic: topic}
}

func (o *Occupancy) Bind(sink port.Sink) error {
	o.mu.Lock()
	o.sink = sink
	o.mu.Unlock()

	err := o.client.Subscribe(o.topic, 1, func(topic string, payload []byte) {
		occupied, err := ParseSwitch(payload)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("ignoring occupancy report")
			return
		}
		o.mu.Lock()
		o.last, o.known = occupied, true
		o.mu.Unlock()
		sink.OnOccupancy(occupied)
	})
	if err != nil {
		return &port.TransportError{Op: "subscribe occupancy", Backend: "mqtt", Err: err}
	}
	return nil
}

// RequestOccupancy re-delivers the last report. Before the first report it
// delivers nothing and the configured default stays in effect.
func (o *Occupancy) RequestOccupancy() error {
	o.mu.Lock()
	sink, last, known := o.sink, o.last, o.known
	o.mu.Unlock()

	if !o.client.IsConnected() {
		return &port.TransportError{Op: "request occupancy", Backend: "mqtt", Err: ErrNotConnected}
	}
	if known && sink != nil {
		sink.OnOccupancy(last)
	}
	return nil
}
