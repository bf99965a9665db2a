package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sweeney/thermostat/internal/port"
	"github.com/sweeney/thermostat/internal/state"
)

const logTimeLayout = "2006-01-02 15:04:05"

// TextLog appends one human-readable line per snapshot. The file is opened
// for each write so external rotation needs no signal.
type TextLog struct {
	path string
	mu   sync.Mutex
}

var _ port.SnapshotSink = (*TextLog)(nil)

// NewTextLog creates a sink appending to path.
func NewTextLog(path string) *TextLog {
	return &TextLog{path: filepath.Clean(path)}
}

func (l *TextLog) PublishSnapshot(snap state.Snapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open state log: %w", err)
	}
	if _, err := f.WriteString(FormatLine(snap)); err != nil {
		f.Close()
		return fmt.Errorf("write state log: %w", err)
	}
	return f.Close()
}

// FormatLine renders a snapshot as a single newline-terminated log line.
func FormatLine(snap state.Snapshot) string {
	var b strings.Builder
	b.WriteString(snap.UpdatedAt.Local().Format(logTimeLayout))
	fmt.Fprintf(&b, " desired=%.1f", snap.DesiredTemperature)
	if snap.HasTemperature {
		fmt.Fprintf(&b, " current=%.1f", snap.Temperature)
		if !snap.TemperatureAt.IsZero() {
			fmt.Fprintf(&b, " (%s)", snap.TemperatureAt.Local().Format(logTimeLayout))
		}
	} else {
		b.WriteString(" current=unknown")
	}
	fmt.Fprintf(&b, " heating=%s occupied=%t", snap.Relay, snap.Occupied)
	if snap.ActiveProgram != "" {
		fmt.Fprintf(&b, " program=%s", snap.ActiveProgram)
	}
	fmt.Fprintf(&b, " command=%s\n", snap.LastCommand)
	return b.String()
}
