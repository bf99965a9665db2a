// Package config loads the thermostat's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/thermostat/internal/gpio"
	"github.com/sweeney/thermostat/internal/logic"
	"github.com/sweeney/thermostat/internal/sensor"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "config/thermostat.yaml"

// Backend types.
const (
	SensorFile      = "file"
	RelayMQTT       = "mqtt"
	RelayGPIO       = "gpio"
	OccupancyStatic = "static"
	OccupancyMQTT   = "mqtt"
)

// Config is the whole configuration file.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Control   ControlConfig   `yaml:"control"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Sensor    SensorConfig    `yaml:"sensor"`
	Relay     RelayConfig     `yaml:"relay"`
	Occupancy OccupancyConfig `yaml:"occupancy"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	History   HistoryConfig   `yaml:"history"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// ControlConfig holds the control loop settings.
type ControlConfig struct {
	LowThreshold  float64 `yaml:"low_threshold"`
	HighThreshold float64 `yaml:"high_threshold"`

	PollInterval       Duration `yaml:"poll_interval"`
	PollIntervalMs     int      `yaml:"poll_interval_ms"`
	EvaluateInterval   Duration `yaml:"evaluate_interval"`
	EvaluateIntervalMs int      `yaml:"evaluate_interval_ms"`

	// PollAtStartup requests readings immediately instead of waiting one interval.
	PollAtStartup *bool `yaml:"poll_at_startup"`

	DefaultOccupied     *bool    `yaml:"default_occupied"`
	FallbackTemperature *float64 `yaml:"fallback_temperature"`

	// ReadingQueue is the number of readings buffered between the transport and the loop.
	ReadingQueue int `yaml:"reading_queue"`
}

// ScheduleConfig is the weekly program in its file form.
type ScheduleConfig struct {
	// WeekProgram maps a weekday name ("monday", "mon") or index ("0" = Sunday) to a day program.
	WeekProgram  map[string]string            `yaml:"week_program"`
	DayPrograms  map[string]map[string]string `yaml:"day_programs"` // day program -> "HH:MM" -> temp program
	TempPrograms map[string]TempProgramConfig `yaml:"temp_programs"`
}

// TempProgramConfig is one named temperature target.
type TempProgramConfig struct {
	Temperature             float64  `yaml:"temperature"`
	TemperatureIfUnoccupied *float64 `yaml:"temperature_if_unoccupied"`
}

// SensorConfig selects the temperature source.
type SensorConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// RelayConfig selects the relay backend.
type RelayConfig struct {
	Type      string `yaml:"type"`
	Chip      string `yaml:"chip"`
	Pin       *int   `yaml:"pin"` // BCM number; nil means gpio.DefaultPin
	ActiveLow bool   `yaml:"active_low"`
}

// OccupancyConfig selects the occupancy source.
type OccupancyConfig struct {
	Type string `yaml:"type"`
}

// MQTTConfig holds broker settings. Empty topics fall back to mqtt.DefaultTopics.
type MQTTConfig struct {
	Broker     string      `yaml:"broker"`
	ClientID   string      `yaml:"client_id"`
	Username   string      `yaml:"username"`
	Password   string      `yaml:"password"`
	BufferSize int         `yaml:"buffer_size"`
	Topics     TopicConfig `yaml:"topics"`
	// PublishState publishes every snapshot to the retained state topic.
	PublishState bool `yaml:"publish_state"`
}

// TopicConfig overrides individual MQTT topics.
type TopicConfig struct {
	RelayInput  string `yaml:"relay_input"`
	RelayOutput string `yaml:"relay_output"`
	Occupancy   string `yaml:"occupancy"`
	State       string `yaml:"state"`
	System      string `yaml:"system"`
}

// HistoryConfig configures the snapshot sinks on disk. Empty paths disable a sink.
type HistoryConfig struct {
	Database  string   `yaml:"database"`
	Retention Duration `yaml:"retention"`
	StateFile string   `yaml:"state_file"`
	StateLog  string   `yaml:"state_log"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Duration is a time.Duration that decodes from a Go duration string
// ("90s") or a plain integer number of milliseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	s := value.Value
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads, expands and decodes the configuration file and applies defaults.
// It does not validate; call Validate before use.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes configuration from YAML text and applies defaults.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expandEnvVars(string(data)))))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	ctl := &c.Control
	if ctl.PollInterval == 0 && ctl.PollIntervalMs > 0 {
		ctl.PollInterval = Duration(time.Duration(ctl.PollIntervalMs) * time.Millisecond)
	}
	if ctl.PollInterval == 0 {
		ctl.PollInterval = Duration(time.Minute)
	}
	if ctl.EvaluateInterval == 0 && ctl.EvaluateIntervalMs > 0 {
		ctl.EvaluateInterval = Duration(time.Duration(ctl.EvaluateIntervalMs) * time.Millisecond)
	}
	if ctl.EvaluateInterval == 0 {
		ctl.EvaluateInterval = Duration(time.Minute)
	}
	if ctl.PollAtStartup == nil {
		ctl.PollAtStartup = boolPtr(true)
	}
	if ctl.DefaultOccupied == nil {
		ctl.DefaultOccupied = boolPtr(true)
	}
	if ctl.FallbackTemperature == nil {
		v := 14.0
		ctl.FallbackTemperature = &v
	}
	if ctl.ReadingQueue <= 0 {
		ctl.ReadingQueue = 32
	}

	if c.Sensor.Type == "" {
		c.Sensor.Type = SensorFile
	}
	if c.Sensor.Path == "" {
		c.Sensor.Path = sensor.DefaultPath
	}
	if c.Relay.Type == "" {
		c.Relay.Type = RelayMQTT
	}
	if c.Relay.Chip == "" {
		c.Relay.Chip = gpio.DefaultChip
	}
	if c.Relay.Pin == nil {
		v := gpio.DefaultPin
		c.Relay.Pin = &v
	}
	if c.Occupancy.Type == "" {
		c.Occupancy.Type = OccupancyStatic
	}

	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "tcp://localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "thermostat"
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
}

// NeedsMQTT reports whether any configured backend uses the broker.
func (c *Config) NeedsMQTT() bool {
	return c.Relay.Type == RelayMQTT || c.Occupancy.Type == OccupancyMQTT || c.MQTT.PublishState
}

// Validate checks the configuration, including every reference in the schedule.
func (c *Config) Validate() error {
	var errs []error
	ctl := c.Control
	if ctl.LowThreshold < 0 || ctl.HighThreshold < 0 {
		errs = append(errs, errors.New("control: thresholds must not be negative"))
	}
	if ctl.PollInterval.Duration() <= 0 {
		errs = append(errs, errors.New("control: poll_interval must be positive"))
	}
	if ctl.EvaluateInterval.Duration() <= 0 {
		errs = append(errs, errors.New("control: evaluate_interval must be positive"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log: unknown level %q", c.Log.Level))
	}
	if c.Sensor.Type != SensorFile {
		errs = append(errs, fmt.Errorf("sensor: unknown type %q", c.Sensor.Type))
	}
	if c.Relay.Type != RelayMQTT && c.Relay.Type != RelayGPIO {
		errs = append(errs, fmt.Errorf("relay: unknown type %q", c.Relay.Type))
	}
	if c.Relay.Pin != nil && *c.Relay.Pin < 0 {
		errs = append(errs, fmt.Errorf("relay: pin %d must not be negative", *c.Relay.Pin))
	}
	if c.Occupancy.Type != OccupancyStatic && c.Occupancy.Type != OccupancyMQTT {
		errs = append(errs, fmt.Errorf("occupancy: unknown type %q", c.Occupancy.Type))
	}
	if c.History.Retention < 0 {
		errs = append(errs, errors.New("history: retention must not be negative"))
	}

	if _, err := c.Schedule.ToSchedule(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Warnings lists settings that are legal but probably unintended.
func (c *Config) Warnings() []string {
	var w []string
	if c.Control.LowThreshold == 0 || c.Control.HighThreshold == 0 {
		w = append(w, "a zero hysteresis threshold switches the relay at the exact target and will chatter")
	}
	if len(c.Schedule.WeekProgram) < 7 {
		w = append(w, fmt.Sprintf("week_program covers %d of 7 days; evaluations on missing days will fail", len(c.Schedule.WeekProgram)))
	}
	return w
}

// Settings converts the schedule and thresholds into their logic form.
func (c *Config) Settings() (logic.Settings, error) {
	sched, err := c.Schedule.ToSchedule()
	if err != nil {
		return logic.Settings{}, err
	}
	return logic.Settings{
		Schedule:      sched,
		LowThreshold:  c.Control.LowThreshold,
		HighThreshold: c.Control.HighThreshold,
	}, nil
}

// ToSchedule parses weekday keys and clock times, then checks every reference.
func (s ScheduleConfig) ToSchedule() (logic.Schedule, error) {
	out := logic.Schedule{
		WeekProgram:  make(map[time.Weekday]string, len(s.WeekProgram)),
		DayPrograms:  make(map[string]logic.DayProgram, len(s.DayPrograms)),
		TempPrograms: make(map[string]logic.TempProgram, len(s.TempPrograms)),
	}

	for key, day := range s.WeekProgram {
		wd, err := ParseWeekday(key)
		if err != nil {
			return logic.Schedule{}, fmt.Errorf("schedule: week_program: %w", err)
		}
		if _, dup := out.WeekProgram[wd]; dup {
			return logic.Schedule{}, fmt.Errorf("schedule: week_program: %s listed twice", wd)
		}
		out.WeekProgram[wd] = day
	}

	for name, entries := range s.DayPrograms {
		day := make(logic.DayProgram, 0, len(entries))
		for clock, program := range entries {
			start, err := logic.ParseClock(clock)
			if err != nil {
				return logic.Schedule{}, fmt.Errorf("schedule: day program %q: %w", name, err)
			}
			day = append(day, logic.ProgramEntry{Start: start, Program: program})
		}
		out.DayPrograms[name] = day.Sorted()
	}

	for name, p := range s.TempPrograms {
		out.TempPrograms[name] = logic.TempProgram{
			Temperature:             p.Temperature,
			TemperatureIfUnoccupied: p.TemperatureIfUnoccupied,
		}
	}

	if err := out.Validate(); err != nil {
		return logic.Schedule{}, err
	}
	return out, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// ParseWeekday accepts a full or three-letter English day name, or an index
// 0-6 counting from Sunday.
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(key); err == nil {
		if n < 0 || n > 6 {
			return 0, fmt.Errorf("weekday index %d out of range 0-6", n)
		}
		return time.Weekday(n), nil
	}
	if wd, ok := weekdayNames[key]; ok {
		return wd, nil
	}
	if len(key) == 3 {
		for name, wd := range weekdayNames {
			if strings.HasPrefix(name, key) {
				return wd, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// envPattern matches ${VAR} or ${VAR:default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default}. An unset or empty
// variable without a default expands to the empty string.
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
}

func boolPtr(v bool) *bool { return &v }
