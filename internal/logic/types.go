// Package logic contains the pure decision logic for the heating zone:
// schedule resolution and the hysteresis relay decision.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// RelayState is the last known state of the heating relay.
// The zero value is RelayUnknown so an uninitialized state never reads as "off".
type RelayState int

const (
	RelayUnknown RelayState = iota
	RelayOff
	RelayOn
)

// RelayStateFromBool converts a relay report into a known state.
func RelayStateFromBool(on bool) RelayState {
	if on {
		return RelayOn
	}
	return RelayOff
}

// Known reports whether a relay reading has been received.
func (s RelayState) Known() bool {
	return s == RelayOn || s == RelayOff
}

func (s RelayState) String() string {
	switch s {
	case RelayOn:
		return "ON"
	case RelayOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// MarshalText lets RelayState appear as a string in JSON payloads.
func (s RelayState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RelayCommand is the outcome of a hysteresis decision.
type RelayCommand int

const (
	NoChange RelayCommand = iota
	TurnOn
	TurnOff
)

func (c RelayCommand) String() string {
	switch c {
	case TurnOn:
		return "TURN_ON"
	case TurnOff:
		return "TURN_OFF"
	default:
		return "NO_CHANGE"
	}
}

// MarshalText lets RelayCommand appear as a string in JSON payloads.
func (c RelayCommand) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// TempProgram is a named temperature target.
type TempProgram struct {
	Temperature float64
	// TemperatureIfUnoccupied overrides Temperature while nobody is home.
	TemperatureIfUnoccupied *float64
}

// ProgramEntry starts a temperature program at a minute of the day.
type ProgramEntry struct {
	Start   int // minutes since midnight, 0..1439
	Program string
}

// DayProgram is the set of program entries for one day.
// Entries need not be sorted; resolution orders them by Start.
type DayProgram []ProgramEntry

// Schedule is the weekly program table.
type Schedule struct {
	// WeekProgram maps a weekday (Sunday=0 .. Saturday=6) to a day program key.
	WeekProgram  map[time.Weekday]string
	DayPrograms  map[string]DayProgram
	TempPrograms map[string]TempProgram
}

// Settings is the part of the configuration re-read before every evaluation.
type Settings struct {
	Schedule      Schedule
	LowThreshold  float64
	HighThreshold float64
}

// Target is the result of schedule resolution.
type Target struct {
	Program     string
	Start       int
	Temperature float64
}

// Input is a single hysteresis decision request.
type Input struct {
	Current       float64
	HasCurrent    bool
	Desired       float64
	Relay         RelayState
	LowThreshold  float64
	HighThreshold float64
}

// FormatClock renders minutes since midnight as HH:MM.
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
