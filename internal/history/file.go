package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sweeney/thermostat/internal/port"
	"github.com/sweeney/thermostat/internal/state"
)

// ErrNotFound is returned by Load before the first snapshot is written.
var ErrNotFound = errors.New("state file not found")

// StateFile keeps the latest snapshot as pretty-printed JSON.
type StateFile struct {
	path string
	mu   sync.Mutex
}

var _ port.SnapshotSink = (*StateFile)(nil)

// NewStateFile creates a sink writing to path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: filepath.Clean(path)}
}

// PublishSnapshot replaces the file atomically, so readers never see a
// partial document.
func (f *StateFile) PublishSnapshot(snap state.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(state.FormatJSON(snap), '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Load reads the last snapshot written.
func (f *StateFile) Load() (state.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state.Snapshot{}, ErrNotFound
		}
		return state.Snapshot{}, fmt.Errorf("read state file: %w", err)
	}
	return state.ParseJSON(data)
}
