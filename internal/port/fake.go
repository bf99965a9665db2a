package port

import (
	"sync"
	"time"

	"github.com/sweeney/thermostat/internal/state"
)

// Fake is a Port test double. It records every request and can answer
// requests synchronously through the bound sink when the Reply fields are set.
type Fake struct {
	mu sync.Mutex

	sink Sink

	// Scripted replies; nil means the request is recorded but never answered.
	ReplyTemperature *float64
	ReplyRelay       *bool
	ReplyOccupancy   *bool
	// ReplyAt stamps temperature replies. Zero means time.Now().
	ReplyAt func() time.Time
	// FollowRelay makes SetRelay echo the new state back as a relay reading.
	FollowRelay bool

	// Errors returned by the corresponding requests.
	RequestError error
	SetRelayError error
	PublishError  error

	TemperatureRequests int
	RelayRequests       int
	OccupancyRequests   int
	RelayCommands       []bool
	Snapshots           []state.Snapshot
}

var _ Port = (*Fake)(nil)

// NewFake creates an unbound Fake with no scripted replies.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Bind(sink Sink) error {
	f.mu.Lock()
	f.sink = sink
	f.mu.Unlock()
	return nil
}

// Sink returns the bound sink so tests can inject readings directly.
func (f *Fake) Sink() Sink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sink
}

func (f *Fake) RequestTemperature() error {
	f.mu.Lock()
	f.TemperatureRequests++
	err, sink, reply := f.RequestError, f.sink, f.ReplyTemperature
	at := time.Now()
	if f.ReplyAt != nil {
		at = f.ReplyAt()
	}
	f.mu.Unlock()

	if err != nil {
		return &TransportError{Op: "request temperature", Backend: "fake", Err: err}
	}
	if reply != nil && sink != nil {
		sink.OnTemperature(*reply, at)
	}
	return nil
}

func (f *Fake) RequestRelayState() error {
	f.mu.Lock()
	f.RelayRequests++
	err, sink, reply := f.RequestError, f.sink, f.ReplyRelay
	f.mu.Unlock()

	if err != nil {
		return &TransportError{Op: "request relay state", Backend: "fake", Err: err}
	}
	if reply != nil && sink != nil {
		sink.OnRelayState(*reply)
	}
	return nil
}

func (f *Fake) RequestOccupancy() error {
	f.mu.Lock()
	f.OccupancyRequests++
	err, sink, reply := f.RequestError, f.sink, f.ReplyOccupancy
	f.mu.Unlock()

	if err != nil {
		return &TransportError{Op: "request occupancy", Backend: "fake", Err: err}
	}
	if reply != nil && sink != nil {
		sink.OnOccupancy(*reply)
	}
	return nil
}

func (f *Fake) SetRelay(on bool) error {
	f.mu.Lock()
	if f.SetRelayError != nil {
		err := f.SetRelayError
		f.mu.Unlock()
		return &TransportError{Op: "set relay", Backend: "fake", Err: err}
	}
	f.RelayCommands = append(f.RelayCommands, on)
	if f.FollowRelay {
		f.ReplyRelay = &on
	}
	sink, follow := f.sink, f.FollowRelay
	f.mu.Unlock()

	if follow && sink != nil {
		sink.OnRelayState(on)
	}
	return nil
}

func (f *Fake) PublishSnapshot(snap state.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Snapshots = append(f.Snapshots, snap)
	return nil
}

// Commands returns a copy of the relay commands received so far.
func (f *Fake) Commands() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.RelayCommands...)
}

// Published returns a copy of the snapshots received so far.
func (f *Fake) Published() []state.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]state.Snapshot(nil), f.Snapshots...)
}

// Requests returns the temperature, relay and occupancy request counts.
func (f *Fake) Requests() (temperature, relay, occupancy int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.TemperatureRequests, f.RelayRequests, f.OccupancyRequests
}

// SetReplies replaces the scripted replies under the lock.
func (f *Fake) SetReplies(temperature *float64, relay *bool, occupancy *bool) {
	f.mu.Lock()
	f.ReplyTemperature, f.ReplyRelay, f.ReplyOccupancy = temperature, relay, occupancy
	f.mu.Unlock()
}

// Float64 returns a pointer for a scripted reply.
func Float64(v float64) *float64 { return &v }

// Bool returns a pointer for a scripted reply.
func Bool(v bool) *bool { return &v }
