// Package sensor reads temperatures from a file written by an external
// sensor poller (a DHT22 dump): the first line is the time of the reading
// and the last line contains "Temperature = <value>".
package sensor

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/thermostat/internal/port"
)

// ErrMalformed is wrapped when the file does not hold a complete reading.
var ErrMalformed = errors.New("malformed sensor file")

// DefaultPath is where the poller writes its readings.
const DefaultPath = "temp-reading/dht22/temp"

var temperatureLine = regexp.MustCompile(`Temperature\s*=\s*(\S+)`)

// timestampLayouts are tried in order; the last is what date(1) prints.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.UnixDate,
}

// File is a port.TemperatureSource over a sensor file.
type File struct {
	path string

	mu        sync.Mutex
	sink      port.Sink
	lastStamp string
}

var _ port.TemperatureSource = (*File)(nil)

// NewFile creates a source reading path.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Bind(sink port.Sink) error {
	f.mu.Lock()
	f.sink = sink
	f.mu.Unlock()
	return nil
}

// RequestTemperature reads the file and delivers its reading. A reading
// whose timestamp line matches the previous delivery is not delivered again.
func (f *File) RequestTemperature() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return &port.TransportError{Op: "request temperature", Backend: "file", Err: err}
	}

	r, err := parseReading(data)
	if err != nil {
		return &port.TransportError{Op: "request temperature", Backend: "file", Err: fmt.Errorf("%s: %w", f.path, err)}
	}

	f.mu.Lock()
	if r.stamp == f.lastStamp {
		f.mu.Unlock()
		log.Debug().Str("stamp", r.stamp).Msg("sensor file unchanged, no new reading")
		return nil
	}
	f.lastStamp = r.stamp
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		sink.OnTemperature(r.value, r.at)
	}
	return nil
}

type reading struct {
	stamp string
	at    time.Time // zero if stamp is not a recognised time
	value string
}

func parseReading(data []byte) (reading, error) {
	lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\n")
	if len(lines) < 2 {
		return reading{}, fmt.Errorf("%w: want a timestamp line and a reading line", ErrMalformed)
	}

	stamp := strings.TrimSpace(lines[0])
	m := temperatureLine.FindStringSubmatch(lines[len(lines)-1])
	if m == nil {
		return reading{}, fmt.Errorf("%w: no temperature on last line", ErrMalformed)
	}

	r := reading{stamp: stamp, value: m[1]}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, stamp, time.Local); err == nil {
			r.at = t
			break
		}
	}
	if r.at.IsZero() {
		log.Debug().Str("stamp", stamp).Msg("unrecognised sensor timestamp, using arrival time")
	}
	return r, nil
}
