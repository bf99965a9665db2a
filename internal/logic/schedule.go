package logic

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the number of distinct start times a day program can hold.
const MinutesPerDay = 24 * 60

// Resolve returns the temperature program active at now.
//
// The active entry is the one with the greatest start time not after now's
// minute of day. Before the first entry of the day, the last entry of the day
// is used, so a day starting at 07:00 inherits its evening program overnight.
// When occupied is false and the program defines an unoccupied temperature,
// that temperature is returned instead of the base one.
func Resolve(s Schedule, now time.Time, occupied bool) (Target, error) {
	weekday := now.Weekday()
	minute := now.Hour()*60 + now.Minute()

	dayKey, ok := s.WeekProgram[weekday]
	if !ok {
		return Target{}, &ConfigResolutionError{Failure: MissingWeekday, Weekday: weekday}
	}

	day, ok := s.DayPrograms[dayKey]
	if !ok {
		return Target{}, &ConfigResolutionError{Failure: MissingDayProgram, Weekday: weekday, Key: dayKey}
	}
	if len(day) == 0 {
		return Target{}, &ConfigResolutionError{
			Failure: EmptyDayProgram,
			Weekday: weekday,
			Key:     dayKey,
			Err:     ErrEmptyDayProgram,
		}
	}

	entries := day.Sorted()
	selected := entries[len(entries)-1]
	for _, e := range entries {
		if e.Start > minute {
			break
		}
		selected = e
	}

	program, ok := s.TempPrograms[selected.Program]
	if !ok {
		return Target{}, &ConfigResolutionError{Failure: MissingTempProgram, Weekday: weekday, Key: selected.Program}
	}

	temperature := program.Temperature
	if !occupied && program.TemperatureIfUnoccupied != nil {
		temperature = *program.TemperatureIfUnoccupied
	}

	return Target{
		Program:     selected.Program,
		Start:       selected.Start,
		Temperature: temperature,
	}, nil
}

// Sorted returns a copy of the entries ordered by start time.
// Entries sharing a start time keep their relative order.
func (d DayProgram) Sorted() DayProgram {
	out := make(DayProgram, len(d))
	copy(out, d)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}

// Validate checks that every key referenced by the schedule exists.
// It does not require all seven weekdays to be present; a missing weekday
// only fails the evaluations that fall on it.
func (s Schedule) Validate() error {
	for weekday, dayKey := range s.WeekProgram {
		if weekday < time.Sunday || weekday > time.Saturday {
			return &ConfigResolutionError{Failure: InvalidSchedule, Key: fmt.Sprintf("weekday %d", int(weekday))}
		}
		if _, ok := s.DayPrograms[dayKey]; !ok {
			return &ConfigResolutionError{
				Failure: InvalidSchedule,
				Key:     dayKey,
				Err:     fmt.Errorf("%s references a missing day program", weekday),
			}
		}
	}

	for dayKey, day := range s.DayPrograms {
		seen := make(map[int]bool, len(day))
		for _, e := range day {
			if e.Start < 0 || e.Start >= MinutesPerDay {
				return &ConfigResolutionError{
					Failure: InvalidSchedule,
					Key:     dayKey,
					Err:     fmt.Errorf("start minute %d out of range", e.Start),
				}
			}
			if seen[e.Start] {
				return &ConfigResolutionError{
					Failure: InvalidSchedule,
					Key:     dayKey,
					Err:     fmt.Errorf("duplicate start time %s", FormatClock(e.Start)),
				}
			}
			seen[e.Start] = true
			if _, ok := s.TempPrograms[e.Program]; !ok {
				return &ConfigResolutionError{
					Failure: InvalidSchedule,
					Key:     e.Program,
					Err:     fmt.Errorf("missing temp program referenced by day program %q", dayKey),
				}
			}
		}
	}

	return nil
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("time of day %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("time of day %q: bad minute", s)
	}
	return h*60 + m, nil
}
