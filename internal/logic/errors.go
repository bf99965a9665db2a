package logic

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyDayProgram is wrapped by ConfigResolutionError when a day has no entries.
	ErrEmptyDayProgram = errors.New("day program has no entries")

	// ErrStaleReading is returned when a temperature reading does not advance the timestamp.
	ErrStaleReading = errors.New("temperature reading timestamp did not advance")

	// ErrInsufficientData marks an evaluation made before temperature and relay state were known.
	// It is a steady state, not a failure.
	ErrInsufficientData = errors.New("insufficient data: temperature or relay state unknown")
)

// ResolutionFailure identifies which lookup failed while resolving a schedule.
type ResolutionFailure string

const (
	MissingWeekday     ResolutionFailure = "weekday"
	MissingDayProgram  ResolutionFailure = "day_program"
	MissingTempProgram ResolutionFailure = "temp_program"
	EmptyDayProgram    ResolutionFailure = "empty_day_program"
	InvalidSchedule    ResolutionFailure = "invalid_schedule"
)

// ConfigResolutionError is returned when the schedule references something that does not exist.
// The evaluation that hit it must be skipped.
type ConfigResolutionError struct {
	Failure ResolutionFailure
	Weekday time.Weekday
	Key     string
	Err     error
}

func (e *ConfigResolutionError) Error() string {
	msg := fmt.Sprintf("resolve schedule: %s", e.Failure)
	if e.Key != "" {
		msg += fmt.Sprintf(" %q", e.Key)
	}
	if e.Failure != InvalidSchedule {
		msg += fmt.Sprintf(" (%s)", e.Weekday)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigResolutionError) Unwrap() error {
	return e.Err
}

// InvalidReadingError is returned when a sensor value is not a finite number.
type InvalidReadingError struct {
	Value any
	Err   error
}

func (e *InvalidReadingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid temperature reading %v: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("invalid temperature reading %v", e.Value)
}

func (e *InvalidReadingError) Unwrap() error {
	return e.Err
}
