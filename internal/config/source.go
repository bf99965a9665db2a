package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/thermostat/internal/logic"
)

// FileSource re-reads the schedule and thresholds from the config file so
// edits take effect at the next evaluation without a restart. The parsed
// settings are reused while the file's size and modification time are unchanged.
type FileSource struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	cached  logic.Settings
	loaded  bool
}

// NewFileSource creates a source for the config file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Settings returns the current settings. Any failure to read or validate the
// file is a *logic.ConfigResolutionError, so the evaluation is skipped rather
// than run against the previous schedule.
func (f *FileSource) Settings() (logic.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		return logic.Settings{}, f.fail(err)
	}
	if f.loaded && info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return f.cached, nil
	}

	cfg, err := Load(f.path)
	if err != nil {
		return logic.Settings{}, f.fail(err)
	}
	if cfg.Control.LowThreshold < 0 || cfg.Control.HighThreshold < 0 {
		return logic.Settings{}, f.fail(fmt.Errorf("thresholds must not be negative"))
	}
	settings, err := cfg.Settings()
	if err != nil {
		return logic.Settings{}, f.fail(err)
	}

	if f.loaded {
		log.Info().Str("path", f.path).Msg("schedule reloaded")
	}
	f.cached, f.loaded = settings, true
	f.modTime, f.size = info.ModTime(), info.Size()
	return settings, nil
}

func (f *FileSource) fail(err error) error {
	// Force a full reload next time, even if the file looks unchanged.
	f.loaded = false
	return &logic.ConfigResolutionError{Failure: logic.InvalidSchedule, Key: f.path, Err: err}
}

// StaticSource serves fixed settings.
type StaticSource struct {
	S logic.Settings
}

func (s StaticSource) Settings() (logic.Settings, error) {
	return s.S, nil
}
