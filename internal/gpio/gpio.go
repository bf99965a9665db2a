// Package gpio drives the heating relay from a GPIO output line.
// The real line uses the Linux GPIO character device; the fake allows
// testing without hardware.
package gpio

import (
	"fmt"
	"sync"

	"github.com/sweeney/thermostat/internal/port"
)

// Line is a single logical GPIO line: 1 = relay energised.
// Active-low wiring is handled when the line is opened.
type Line interface {
	Value() (int, error)
	SetValue(value int) error
	Close() error
}

// Default line settings (BCM numbering).
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 17
)

// Relay is a port.Relay over a GPIO line. The line is read back after every
// write so the controller learns the real state from the hardware.
type Relay struct {
	line Line

	mu   sync.Mutex
	sink port.Sink
}

var _ port.Relay = (*Relay)(nil)

// NewRelay wraps an opened line.
func NewRelay(line Line) *Relay {
	return &Relay{line: line}
}

func (r *Relay) Bind(sink port.Sink) error {
	r.mu.Lock()
	r.sink = sink
	r.mu.Unlock()
	return nil
}

// RequestRelayState reads the line and delivers the state.
func (r *Relay) RequestRelayState() error {
	return r.report("request relay state")
}

// SetRelay drives the line, then reports the state read back from it.
func (r *Relay) SetRelay(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return &port.TransportError{Op: "set relay", Backend: "gpio", Err: err}
	}
	return r.report("set relay")
}

func (r *Relay) report(op string) error {
	v, err := r.line.Value()
	if err != nil {
		return &port.TransportError{Op: op, Backend: "gpio", Err: fmt.Errorf("read line: %w", err)}
	}
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink.OnRelayState(v != 0)
	}
	return nil
}

// Close releases the line.
func (r *Relay) Close() error {
	return r.line.Close()
}
