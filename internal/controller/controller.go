// Package controller runs the control loop: it polls the port for readings,
// applies them to the control state, and on every evaluation resolves the
// schedule, decides the relay command and publishes a snapshot.
//
// All state mutation happens on the loop goroutine. Port callbacks only
// enqueue readings, so a slow or chatty transport never blocks the loop and
// an evaluation always sees temperature, relay state and occupancy together.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/thermostat/internal/logic"
	"github.com/sweeney/thermostat/internal/port"
	"github.com/sweeney/thermostat/internal/state"
)

// Phase is the loop's position in its Idle, Polling, Evaluating cycle.
type Phase int32

const (
	Idle Phase = iota
	Polling
	Evaluating
)

func (p Phase) String() string {
	switch p {
	case Polling:
		return "polling"
	case Evaluating:
		return "evaluating"
	default:
		return "idle"
	}
}

// SettingsSource supplies the schedule and thresholds. It is consulted on
// every evaluation so configuration edits apply without a restart.
type SettingsSource interface {
	Settings() (logic.Settings, error)
}

// Options tune a Controller. Zero values select the defaults.
type Options struct {
	// PollAtStartup requests readings as soon as Run starts.
	PollAtStartup bool
	// QueueSize bounds readings waiting for the loop. Default 32.
	QueueSize int
	// ErrorBuffer bounds the Errors channel. Default 16.
	ErrorBuffer int
	// Now is the clock. Default time.Now.
	Now func() time.Time
	// NewID names each snapshot. Default uuid.NewString.
	NewID func() string
}

type readingKind int

const (
	temperatureReading readingKind = iota
	relayReading
	occupancyReading
)

type reading struct {
	kind  readingKind
	value any
	ts    time.Time
	on    bool
}

// Controller is the control loop. Construct it with New; run it with Run or RunOnce.
type Controller struct {
	port     port.Port
	settings SettingsSource
	state    *state.ControlState
	opts     Options

	readings chan reading
	errs     chan error
	phase    atomic.Int32

	bindOnce sync.Once
	bindErr  error

	// Owned by the loop goroutine. Set once an evaluation has decided with
	// temperature and relay state known and the schedule resolved.
	decided bool
}

var _ port.Sink = (*Controller)(nil)

// New creates a controller over p, reading settings from src and keeping
// readings in st.
func New(p port.Port, src SettingsSource, st *state.ControlState, opts Options) *Controller {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	if opts.ErrorBuffer <= 0 {
		opts.ErrorBuffer = 16
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Controller{
		port:     p,
		settings: src,
		state:    st,
		opts:     opts,
		readings: make(chan reading, opts.QueueSize),
		errs:     make(chan error, opts.ErrorBuffer),
	}
}

// State returns the control state the loop maintains.
func (c *Controller) State() *state.ControlState {
	return c.state
}

// Phase reports what the loop is doing right now.
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

// Errors delivers every error the loop recovers from. The channel never
// blocks the loop: when it is full the oldest error is discarded.
func (c *Controller) Errors() <-chan error {
	return c.errs
}

// OnTemperature queues a temperature reading. Safe to call from any goroutine.
func (c *Controller) OnTemperature(value any, ts time.Time) {
	c.enqueue(reading{kind: temperatureReading, value: value, ts: ts})
}

// OnRelayState queues a relay report. Safe to call from any goroutine.
func (c *Controller) OnRelayState(on bool) {
	c.enqueue(reading{kind: relayReading, on: on})
}

// OnOccupancy queues an occupancy report. Safe to call from any goroutine.
func (c *Controller) OnOccupancy(occupied bool) {
	c.enqueue(reading{kind: occupancyReading, on: occupied})
}

func (c *Controller) enqueue(r reading) {
	select {
	case c.readings <- r:
	default:
		log.Warn().Int("queue", cap(c.readings)).Msg("reading queue full, dropping reading")
	}
}

func (c *Controller) bind() error {
	c.bindOnce.Do(func() {
		if err := c.port.Bind(c); err != nil {
			c.bindErr = fmt.Errorf("bind port: %w", err)
		}
	})
	return c.bindErr
}

// Run drives the loop until ctx is done. pollTick triggers reading requests
// and evalTick triggers evaluations; tests inject their own channels.
// The first evaluation happens as soon as temperature and relay state are
// both known, without waiting for evalTick.
func (c *Controller) Run(ctx context.Context, pollTick, evalTick <-chan time.Time) error {
	if err := c.bind(); err != nil {
		return err
	}

	if c.opts.PollAtStartup {
		c.poll()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-pollTick:
			c.poll()

		case <-evalTick:
			c.drainPending()
			c.evaluate()

		case r := <-c.readings:
			c.apply(r)
			if !c.decided && c.state.Ready() {
				c.drainPending()
				log.Info().Msg("temperature and relay state known, running first evaluation")
				c.evaluate()
			}
		}
	}
}

// RunOnce polls once, waits up to timeout for temperature and relay state,
// evaluates once and returns the resulting snapshot.
func (c *Controller) RunOnce(ctx context.Context, timeout time.Duration) (state.Snapshot, error) {
	if err := c.bind(); err != nil {
		return state.Snapshot{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.poll()
	for !c.state.Ready() {
		select {
		case <-ctx.Done():
			snap := c.state.Snapshot()
			return snap, fmt.Errorf("no reading within %s (temperature known: %t, relay %s): %w",
				timeout, snap.HasTemperature, snap.Relay, logic.ErrInsufficientData)
		case r := <-c.readings:
			c.apply(r)
		}
	}
	c.drainPending()
	return c.evaluate()
}

// drainPending applies readings already queued, so an evaluation triggered
// by one reading also sees the others that arrived with it.
func (c *Controller) drainPending() {
	for {
		select {
		case r := <-c.readings:
			c.apply(r)
		default:
			return
		}
	}
}

func (c *Controller) poll() {
	c.phase.Store(int32(Polling))
	defer c.phase.Store(int32(Idle))

	requests := []struct {
		name string
		do   func() error
	}{
		{"temperature", c.port.RequestTemperature},
		{"relay state", c.port.RequestRelayState},
		{"occupancy", c.port.RequestOccupancy},
	}
	for _, req := range requests {
		err := req.do()
		switch {
		case err == nil:
		case errors.Is(err, port.ErrNotSupported):
			log.Debug().Str("request", req.name).Msg("not supported by port")
		default:
			log.Warn().Err(err).Str("request", req.name).Msg("poll request failed, retrying next poll")
			c.report(err)
		}
	}
}

func (c *Controller) apply(r reading) {
	switch r.kind {
	case temperatureReading:
		ts := r.ts
		if ts.IsZero() {
			ts = c.opts.Now()
		}
		if err := c.state.ApplyTemperatureReading(r.value, ts); err != nil {
			log.Warn().Err(err).Interface("value", r.value).Time("at", ts).Msg("temperature reading rejected")
			c.report(err)
			return
		}
		log.Debug().Interface("value", r.value).Time("at", ts).Msg("temperature reading")

	case relayReading:
		c.state.ApplyRelayState(r.on)
		log.Debug().Bool("on", r.on).Msg("relay state")

	case occupancyReading:
		c.state.ApplyOccupancy(r.on)
		log.Debug().Bool("occupied", r.on).Msg("occupancy")
	}
}

// evaluate runs one resolve-decide-act cycle. Errors are reported and the
// cycle is abandoned; the next tick starts fresh.
func (c *Controller) evaluate() (state.Snapshot, error) {
	c.phase.Store(int32(Evaluating))
	defer c.phase.Store(int32(Idle))

	now := c.opts.Now()
	settings, err := c.settings.Settings()
	if err != nil {
		log.Error().Err(err).Msg("cannot load schedule, skipping evaluation")
		c.report(err)
		return c.state.Snapshot(), err
	}

	target, err := logic.Resolve(settings.Schedule, now, c.state.Snapshot().Occupied)
	if err != nil {
		log.Error().Err(err).Msg("cannot resolve schedule, skipping evaluation")
		c.report(err)
		return c.state.Snapshot(), err
	}
	c.state.SetTarget(target)

	in := c.state.Snapshot().Input(settings.LowThreshold, settings.HighThreshold)
	cmd := logic.Decide(in)
	if in.Insufficient() {
		log.Debug().Err(logic.ErrInsufficientData).Bool("has_temperature", in.HasCurrent).
			Str("relay", in.Relay.String()).Msg("no decision")
	} else {
		c.decided = true
	}

	if on, ok := cmd.Command(); ok {
		log.Info().Str("command", cmd.String()).Float64("current", in.Current).
			Float64("desired", in.Desired).Str("program", target.Program).Msg("switching heating")
		if err := c.port.SetRelay(on); err != nil {
			log.Error().Err(err).Str("command", cmd.String()).Msg("relay command failed")
			c.report(err)
		}
	}

	snap := c.state.RecordEvaluation(c.opts.NewID(), cmd, now)
	if err := c.port.PublishSnapshot(snap); err != nil {
		log.Error().Err(err).Msg("snapshot sink failed")
		c.report(err)
	}
	return snap, nil
}

// report hands err to Errors without blocking, discarding the oldest if full.
func (c *Controller) report(err error) {
	select {
	case c.errs <- err:
		return
	default:
	}
	select {
	case <-c.errs:
	default:
	}
	select {
	case c.errs <- err:
	default:
	}
}
