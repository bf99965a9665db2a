// Package state holds the controller's last known readings behind a single lock.
// Readings are applied by the control loop; HTTP handlers and sinks read snapshots.
package state

import (
	"errors"
	"sync"
	"time"

	"github.com/sweeney/thermostat/internal/logic"
)

// Defaults seeds a fresh ControlState.
type Defaults struct {
	Occupied           bool
	DesiredTemperature float64
}

// Snapshot is a point-in-time view of the control state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	ID                 string
	Temperature        float64
	HasTemperature     bool
	TemperatureAt      time.Time
	Relay              logic.RelayState
	Occupied           bool
	DesiredTemperature float64
	ActiveProgram      string
	LastCommand        logic.RelayCommand
	UpdatedAt          time.Time
}

// Ready reports whether both temperature and relay state are known.
func (s Snapshot) Ready() bool {
	return s.HasTemperature && s.Relay.Known()
}

// Input builds the hysteresis decision input from the snapshot.
func (s Snapshot) Input(low, high float64) logic.Input {
	return logic.Input{
		Current:       s.Temperature,
		HasCurrent:    s.HasTemperature,
		Desired:       s.DesiredTemperature,
		Relay:         s.Relay,
		LowThreshold:  low,
		HighThreshold: high,
	}
}

// ControlState holds mutable controller state behind an RWMutex.
// Every apply method takes the write lock for its whole update, so a
// Snapshot never observes a half-applied reading.
type ControlState struct {
	mu   sync.RWMutex
	snap Snapshot
}

// New creates a ControlState with unknown temperature and relay state.
func New(d Defaults) *ControlState {
	return &ControlState{
		snap: Snapshot{
			Relay:              logic.RelayUnknown,
			Occupied:           d.Occupied,
			DesiredTemperature: d.DesiredTemperature,
		},
	}
}

// ApplyTemperatureReading records a temperature reading taken at ts.
// The value may be a number or a numeric string. Non-finite values return an
// *logic.InvalidReadingError and a timestamp that does not advance past the
// previous one returns logic.ErrStaleReading; in both cases the state is untouched.
func (s *ControlState) ApplyTemperatureReading(value any, ts time.Time) error {
	temp, err := logic.ParseTemperature(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !ts.IsZero() && !s.snap.TemperatureAt.IsZero() && !ts.After(s.snap.TemperatureAt) {
		return logic.ErrStaleReading
	}

	s.snap.Temperature = temp
	s.snap.HasTemperature = true
	if !ts.IsZero() {
		s.snap.TemperatureAt = ts
	}
	return nil
}

// ApplyRelayState records the relay state reported by the actuator.
func (s *ControlState) ApplyRelayState(on bool) {
	s.mu.Lock()
	s.snap.Relay = logic.RelayStateFromBool(on)
	s.mu.Unlock()
}

// ApplyOccupancy records whether the space is occupied.
func (s *ControlState) ApplyOccupancy(occupied bool) {
	s.mu.Lock()
	s.snap.Occupied = occupied
	s.mu.Unlock()
}

// SetTarget records the result of schedule resolution.
func (s *ControlState) SetTarget(t logic.Target) {
	s.mu.Lock()
	s.snap.DesiredTemperature = t.Temperature
	s.snap.ActiveProgram = t.Program
	s.mu.Unlock()
}

// RecordEvaluation stores the outcome of an evaluation and returns the
// snapshot taken under the same lock, stamped with id and now.
func (s *ControlState) RecordEvaluation(id string, cmd logic.RelayCommand, now time.Time) Snapshot {
	s.mu.Lock()
	s.snap.ID = id
	s.snap.LastCommand = cmd
	s.snap.UpdatedAt = now
	snap := s.snap
	s.mu.Unlock()
	return snap
}

// Ready reports whether temperature and relay state have both been received.
func (s *ControlState) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Ready()
}

// Snapshot returns a point-in-time copy of the control state.
// UpdatedAt is the time of the last evaluation, zero before the first one.
func (s *ControlState) Snapshot() Snapshot {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	return snap
}

// IsInvalidReading reports whether err rejected a reading because of its payload.
func IsInvalidReading(err error) bool {
	var ire *logic.InvalidReadingError
	return errors.As(err, &ire)
}
