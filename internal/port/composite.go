package port

import (
	"errors"
	"fmt"

	"github.com/sweeney/thermostat/internal/state"
)

// TemperatureSource delivers temperature readings.
type TemperatureSource interface {
	Bind(sink Sink) error
	RequestTemperature() error
}

// Relay reads and drives the heating relay.
type Relay interface {
	Bind(sink Sink) error
	RequestRelayState() error
	SetRelay(on bool) error
}

// OccupancySource delivers occupancy readings.
type OccupancySource interface {
	Bind(sink Sink) error
	RequestOccupancy() error
}

// SnapshotSink persists or forwards a snapshot.
type SnapshotSink interface {
	PublishSnapshot(snap state.Snapshot) error
}

// NamedSink labels a SnapshotSink for error reporting.
type NamedSink struct {
	Name string
	Sink SnapshotSink
}

// Composite assembles independent backends into a single Port.
// A nil backend answers its requests with ErrNotSupported.
type Composite struct {
	Temperature TemperatureSource
	Relay       Relay
	Occupancy   OccupancySource
	Sinks       []NamedSink
}

var _ Port = (*Composite)(nil)

// Bind binds every backend to sink. A backend shared between roles is bound once.
func (c *Composite) Bind(sink Sink) error {
	var errs []error
	bound := make(map[any]bool)
	bind := func(name string, b interface{ Bind(Sink) error }) {
		if b == nil || bound[b] {
			return
		}
		bound[b] = true
		if err := b.Bind(sink); err != nil {
			errs = append(errs, fmt.Errorf("bind %s: %w", name, err))
		}
	}
	if c.Temperature != nil {
		bind("temperature", c.Temperature)
	}
	if c.Relay != nil {
		bind("relay", c.Relay)
	}
	if c.Occupancy != nil {
		bind("occupancy", c.Occupancy)
	}
	return errors.Join(errs...)
}

func (c *Composite) RequestTemperature() error {
	if c.Temperature == nil {
		return ErrNotSupported
	}
	return c.Temperature.RequestTemperature()
}

func (c *Composite) RequestRelayState() error {
	if c.Relay == nil {
		return ErrNotSupported
	}
	return c.Relay.RequestRelayState()
}

func (c *Composite) RequestOccupancy() error {
	if c.Occupancy == nil {
		return ErrNotSupported
	}
	return c.Occupancy.RequestOccupancy()
}

func (c *Composite) SetRelay(on bool) error {
	if c.Relay == nil {
		return ErrNotSupported
	}
	return c.Relay.SetRelay(on)
}

// PublishSnapshot hands snap to every sink. A failing sink does not stop
// the others; all failures are joined into the returned error.
func (c *Composite) PublishSnapshot(snap state.Snapshot) error {
	var errs []error
	for _, s := range c.Sinks {
		if err := s.Sink.PublishSnapshot(snap); err != nil {
			errs = append(errs, fmt.Errorf("snapshot sink %s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// StaticOccupancy always reports the same occupancy.
type StaticOccupancy struct {
	Occupied bool
	sink     Sink
}

func (s *StaticOccupancy) Bind(sink Sink) error {
	s.sink = sink
	return nil
}

// RequestOccupancy delivers the configured value synchronously.
func (s *StaticOccupancy) RequestOccupancy() error {
	if s.sink == nil {
		return errors.New("static occupancy: not bound")
	}
	s.sink.OnOccupancy(s.Occupied)
	return nil
}
