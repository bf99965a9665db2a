// Package port defines the sensor/actuator boundary of the controller.
//
// Requests are fire-and-forget: a nil error only means the request was
// dispatched. Results arrive later through the bound Sink, possibly on a
// transport goroutine, and a Sink must never block.
package port

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/thermostat/internal/state"
)

// ErrNotSupported is returned by backends that cannot serve a request.
var ErrNotSupported = errors.New("operation not supported by backend")

// Sink receives asynchronous readings from a backend.
type Sink interface {
	// OnTemperature delivers a raw temperature value and the time it was taken.
	// A zero ts means the backend does not timestamp its readings.
	OnTemperature(value any, ts time.Time)
	OnRelayState(on bool)
	OnOccupancy(occupied bool)
}

// Port is the full sensor/actuator collaborator used by the control loop.
type Port interface {
	Bind(sink Sink) error
	RequestTemperature() error
	RequestRelayState() error
	RequestOccupancy() error
	// SetRelay dispatches a relay command. Confirmation only arrives through
	// a later OnRelayState callback.
	SetRelay(on bool) error
	PublishSnapshot(snap state.Snapshot) error
}

// TransportError reports a request that could not be dispatched.
type TransportError struct {
	Op      string // e.g. "request temperature", "set relay"
	Backend string // e.g. "mqtt", "gpio", "file"
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s via %s: %v", e.Op, e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
