package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/thermostat/internal/logic"
	"github.com/sweeney/thermostat/internal/port"
	"github.com/sweeney/thermostat/internal/state"
)

// Monday 2026-01-05 08:00, inside the "day" program.
var monday8 = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

func testSettings() logic.Settings {
	unoccupied := 16.0
	return logic.Settings{
		Schedule: logic.Schedule{
			WeekProgram: map[time.Weekday]string{time.Monday: "workday"},
			DayPrograms: map[string]logic.DayProgram{
				"workday": {{Start: 7 * 60, Program: "day"}, {Start: 22 * 60, Program: "night"}},
			},
			TempPrograms: map[string]logic.TempProgram{
				"day":   {Temperature: 20, TemperatureIfUnoccupied: &unoccupied},
				"night": {Temperature: 17},
			},
		},
		LowThreshold:  0.5,
		HighThreshold: 0.5,
	}
}

type staticSource struct{ s logic.Settings }

func (s staticSource) Settings() (logic.Settings, error) { return s.s, nil }

// switchSource fails until ok is set.
type switchSource struct {
	mu sync.Mutex
	ok bool
}

func (s *switchSource) set(ok bool) {
	s.mu.Lock()
	s.ok = ok
	s.mu.Unlock()
}

func (s *switchSource) Settings() (logic.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		return logic.Settings{}, &logic.ConfigResolutionError{Failure: logic.InvalidSchedule, Key: "test"}
	}
	return testSettings(), nil
}

// clock is a settable time source shared between the test and the loop.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type harness struct {
	ctrl   *Controller
	fake   *port.Fake
	clock  *clock
	poll   chan time.Time
	eval   chan time.Time
	cancel context.CancelFunc
	done   chan error
}

func newController(fake *port.Fake, src SettingsSource, clk *clock, opts Options) *Controller {
	opts.Now = clk.Now
	ids := 0
	opts.NewID = func() string {
		ids++
		return "snap-" + string(rune('0'+ids))
	}
	st := state.New(state.Defaults{Occupied: true, DesiredTemperature: 14})
	return New(fake, src, st, opts)
}

func start(t *testing.T, fake *port.Fake, src SettingsSource, opts Options) *harness {
	t.Helper()
	clk := &clock{now: monday8}
	fake.ReplyAt = clk.Now

	h := &harness{
		ctrl:  newController(fake, src, clk, opts),
		fake:  fake,
		clock: clk,
		poll:  make(chan time.Time),
		eval:  make(chan time.Time),
		done:  make(chan error, 1),
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.ctrl.Run(ctx, h.poll, h.eval) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-h.done:
			if err != nil {
				t.Errorf("Run returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not stop after cancel")
		}
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func nextError(t *testing.T, c *Controller) error {
	t.Helper()
	select {
	case err := <-c.Errors():
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an error")
		return nil
	}
}

// boundSink waits for Run to bind the controller to the fake port.
func boundSink(t *testing.T, fake *port.Fake) port.Sink {
	t.Helper()
	waitFor(t, "bind", func() bool { return fake.Sink() != nil })
	return fake.Sink()
}

func published(h *harness, n int) func() bool {
	return func() bool { return len(h.fake.Published()) >= n }
}

func TestEagerFirstEvaluation(t *testing.T) {
	fake := port.NewFake()
	fake.SetReplies(port.Float64(18.0), port.Bool(false), port.Bool(true))
	h := start(t, fake, staticSource{testSettings()}, Options{PollAtStartup: true})

	waitFor(t, "first snapshot", published(h, 1))

	if got := fake.Commands(); len(got) != 1 || !got[0] {
		t.Fatalf("commands: got %v, want [true]", got)
	}
	snap := fake.Published()[0]
	if snap.LastCommand != logic.TurnOn {
		t.Errorf("LastCommand: got %s, want TURN_ON", snap.LastCommand)
	}
	if snap.ActiveProgram != "day" || snap.DesiredTemperature != 20 {
		t.Errorf("target: got (%q, %v), want (day, 20)", snap.ActiveProgram, snap.DesiredTemperature)
	}
	if !snap.UpdatedAt.Equal(monday8) {
		t.Errorf("UpdatedAt: got %v", snap.UpdatedAt)
	}
	if snap.ID == "" {
		t.Error("snapshot has no ID")
	}
}

func TestNoEagerEvaluationWithoutRelayState(t *testing.T) {
	fake := port.NewFake()
	fake.SetReplies(port.Float64(18.0), nil, nil)
	h := start(t, fake, staticSource{testSettings()}, Options{PollAtStartup: true})

	waitFor(t, "temperature applied", func() bool { return h.ctrl.State().Snapshot().HasTemperature })
	h.poll <- monday8 // a second poll; the loop has finished applying the first
	if n := len(fake.Published()); n != 0 {
		t.Fatalf("evaluated before relay state known: %d snapshots", n)
	}

	// A timer evaluation still runs and publishes, but decides nothing.
	h.eval <- monday8
	waitFor(t, "timer snapshot", published(h, 1))
	if got := fake.Commands(); len(got) != 0 {
		t.Errorf("commands with unknown relay: %v", got)
	}
	if snap := fake.Published()[0]; snap.LastCommand != logic.NoChange || snap.Relay != logic.RelayUnknown {
		t.Errorf("snapshot: command=%s relay=%s", snap.LastCommand, snap.Relay)
	}
}

func TestEagerEvaluationAfterEarlyTimerTick(t *testing.T) {
	fake := port.NewFake()
	h := start(t, fake, staticSource{testSettings()}, Options{})

	// The timer fires before anything is known.
	h.eval <- monday8
	waitFor(t, "timer snapshot", published(h, 1))

	sink := boundSink(t, fake)
	sink.OnTemperature(18.0, monday8)
	sink.OnRelayState(false)

	waitFor(t, "eager snapshot", published(h, 2))
	snap := fake.Published()[1]
	if snap.LastCommand != logic.TurnOn {
		t.Errorf("LastCommand: got %s, want TURN_ON", snap.LastCommand)
	}
	if got := fake.Commands(); len(got) != 1 || !got[0] {
		t.Errorf("commands: got %v, want [true]", got)
	}
}

func TestEagerEvaluationAfterResolutionError(t *testing.T) {
	src := &switchSource{}
	fake := port.NewFake()
	fake.SetReplies(port.Float64(18.0), port.Bool(false), nil)
	h := start(t, fake, src, Options{PollAtStartup: true})

	var cre *logic.ConfigResolutionError
	if err := nextError(t, h.ctrl); !errors.As(err, &cre) {
		t.Fatalf("expected ConfigResolutionError, got %v", err)
	}

	// Once the schedule resolves, the next reading decides without a tick.
	src.set(true)
	at := monday8.Add(time.Minute)
	fake.Sink().OnTemperature(18.2, at)
	waitFor(t, "eager snapshot", published(h, 1))
	if got := fake.Commands(); len(got) != 1 || !got[0] {
		t.Errorf("commands: got %v, want [true]", got)
	}

	// Later readings wait for the timer.
	fake.Sink().OnTemperature(18.4, at.Add(time.Minute))
	h.poll <- at
	h.poll <- at
	if n := len(fake.Published()); n != 1 {
		t.Errorf("snapshots after first decision: got %d, want 1", n)
	}
}

func TestHysteresisAcrossEvaluations(t *testing.T) {
	fake := port.NewFake()
	fake.FollowRelay = true
	fake.SetReplies(port.Float64(18.0), port.Bool(false), nil)
	h := start(t, fake, staticSource{testSettings()}, Options{PollAtStartup: true})

	waitFor(t, "first snapshot", published(h, 1))
	waitFor(t, "relay echo", func() bool { return h.ctrl.State().Snapshot().Relay == logic.RelayOn })

	sink := fake.Sink()
	steps := []struct {
		temp float64
		want logic.RelayCommand
	}{
		{20.4, logic.NoChange}, // inside dead band
		{20.5, logic.NoChange}, // exactly on the upper threshold
		{20.6, logic.TurnOff},
		{19.6, logic.NoChange}, // off, above the lower threshold
		{19.4, logic.TurnOn},
	}
	for i, step := range steps {
		at := monday8.Add(time.Duration(i+1) * time.Minute)
		h.clock.Set(at)
		sink.OnTemperature(step.temp, at)
		waitFor(t, "reading applied", func() bool { return h.ctrl.State().Snapshot().TemperatureAt.Equal(at) })

		h.eval <- at
		waitFor(t, "snapshot", published(h, i+2))
		snap := fake.Published()[i+1]
		if snap.LastCommand != step.want {
			t.Errorf("step %d (%.1f): got %s, want %s", i, step.temp, snap.LastCommand, step.want)
		}
		if step.want != logic.NoChange {
			on, _ := step.want.Command()
			waitFor(t, "relay echo", func() bool {
				return h.ctrl.State().Snapshot().Relay == logic.RelayStateFromBool(on)
			})
		}
	}

	if got := fake.Commands(); len(got) != 3 || !got[0] || got[1] || !got[2] {
		t.Errorf("commands: got %v, want [true false true]", got)
	}
}

func TestUnoccupiedTarget(t *testing.T) {
	fake := port.NewFake()
	fake.SetReplies(port.Float64(18.0), port.Bool(false), port.Bool(false))
	h := start(t, fake, staticSource{testSettings()}, Options{PollAtStartup: true})

	waitFor(t, "first snapshot", published(h, 1))
	snap := fake.Published()[0]
	if snap.Occupied || snap.DesiredTemperature != 16 {
		t.Errorf("got occupied=%v desired=%v, want false/16", snap.Occupied, snap.DesiredTemperature)
	}
	if snap.LastCommand != logic.NoChange {
		t.Errorf("18.0 against 16 should not switch, got %s", snap.LastCommand)
	}
}

func TestResolutionErrorSkipsEvaluationAndContinues(t *testing.T) {
	src := &switchSource{}
	fake := port.NewFake()
	fake.SetReplies(port.Float64(18.0), port.Bool(false), nil)
	h := start(t, fake, src, Options{PollAtStartup: true})

	err := nextError(t, h.ctrl)
	var cre *logic.ConfigResolutionError
	if !errors.As(err, &cre) {
		t.Fatalf("expected ConfigResolutionError, got %v", err)
	}
	if n := len(fake.Published()); n != 0 {
		t.Errorf("failed evaluation published %d snapshots", n)
	}
	if len(fake.Commands()) != 0 {
		t.Error("failed evaluation issued a relay command")
	}

	src.set(true)
	h.eval <- monday8
	waitFor(t, "snapshot after recovery", published(h, 1))
	if got := fake.Commands(); len(got) != 1 || !got[0] {
		t.Errorf("commands after recovery: %v", got)
	}
}

func TestMissingWeekdayReported(t *testing.T) {
	fake := port.NewFake()
	fake.SetReplies(port.Float64(18.0), port.Bool(false), nil)
	h := start(t, fake, staticSource{testSettings()}, Options{})

	h.clock.Set(monday8.AddDate(0, 0, 1)) // Tuesday is not in the week program
	h.poll <- monday8
	err := nextError(t, h.ctrl)
	var cre *logic.ConfigResolutionError
	if !errors.As(err, &cre) || cre.Failure != logic.MissingWeekday || cre.Weekday != time.Tuesday {
		t.Fatalf("expected missing Tuesday, got %v", err)
	}
}

func TestTransportErrorReportedAndPollingContinues(t *testing.T) {
	fake := port.NewFake()
	fake.RequestError = errors.New("broker down")
	h := start(t, fake, staticSource{testSettings()}, Options{})

	h.poll <- monday8
	for i := 0; i < 3; i++ {
		if err := nextError(t, h.ctrl); !port.IsTransport(err) {
			t.Fatalf("error %d: expected TransportError, got %v", i, err)
		}
	}

	h.poll <- monday8
	waitFor(t, "second poll", func() bool {
		temp, _, _ := fake.Requests()
		return temp == 2
	})
}

func TestNotSupportedIsNotReported(t *testing.T) {
	fake := port.NewFake()
	c := &port.Composite{Sinks: []port.NamedSink{{Name: "fake", Sink: fake}}}
	clk := &clock{now: monday8}
	ctrl := New(c, staticSource{testSettings()}, state.New(state.Defaults{}), Options{Now: clk.Now})

	ctrl.poll()
	select {
	case err := <-ctrl.Errors():
		t.Fatalf("unexpected error: %v", err)
	default:
	}
}

func TestInvalidAndStaleReadingsReported(t *testing.T) {
	fake := port.NewFake()
	h := start(t, fake, staticSource{testSettings()}, Options{})
	sink := boundSink(t, fake)

	sink.OnTemperature("warm", monday8)
	var ire *logic.InvalidReadingError
	if err := nextError(t, h.ctrl); !errors.As(err, &ire) {
		t.Fatalf("expected InvalidReadingError, got %v", err)
	}

	sink.OnTemperature(19.0, monday8)
	waitFor(t, "reading applied", func() bool { return h.ctrl.State().Snapshot().HasTemperature })
	sink.OnTemperature(25.0, monday8)
	if err := nextError(t, h.ctrl); !errors.Is(err, logic.ErrStaleReading) {
		t.Fatalf("expected ErrStaleReading, got %v", err)
	}
	if got := h.ctrl.State().Snapshot().Temperature; got != 19.0 {
		t.Errorf("temperature: got %v, want 19.0", got)
	}
}

func TestUntimestampedReadingUsesClock(t *testing.T) {
	fake := port.NewFake()
	h := start(t, fake, staticSource{testSettings()}, Options{})

	boundSink(t, fake).OnTemperature(19.0, time.Time{})
	waitFor(t, "reading applied", func() bool { return h.ctrl.State().Snapshot().HasTemperature })
	if at := h.ctrl.State().Snapshot().TemperatureAt; !at.Equal(monday8) {
		t.Errorf("TemperatureAt: got %v, want %v", at, monday8)
	}
}

func TestSnapshotSinkFailureReported(t *testing.T) {
	fake := port.NewFake()
	fake.PublishError = errors.New("disk full")
	fake.SetReplies(port.Float64(20.0), port.Bool(false), nil)
	h := start(t, fake, staticSource{testSettings()}, Options{PollAtStartup: true})

	if err := nextError(t, h.ctrl); !errors.Is(err, fake.PublishError) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if snap := h.ctrl.State().Snapshot(); snap.UpdatedAt.IsZero() {
		t.Error("evaluation should still be recorded in state")
	}
}

func TestRelayCommandFailureReported(t *testing.T) {
	fake := port.NewFake()
	fake.SetRelayError = errors.New("relay offline")
	fake.SetReplies(port.Float64(18.0), port.Bool(false), nil)
	h := start(t, fake, staticSource{testSettings()}, Options{PollAtStartup: true})

	if err := nextError(t, h.ctrl); !port.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	waitFor(t, "snapshot despite failure", published(h, 1))
	if got := fake.Published()[0].LastCommand; got != logic.TurnOn {
		t.Errorf("LastCommand: got %s", got)
	}
}

func TestRunOnce(t *testing.T) {
	fake := port.NewFake()
	fake.SetReplies(port.Float64(21.0), port.Bool(true), port.Bool(true))
	ctrl := newController(fake, staticSource{testSettings()}, &clock{now: monday8}, Options{})

	snap, err := ctrl.RunOnce(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if snap.LastCommand != logic.TurnOff {
		t.Errorf("LastCommand: got %s, want TURN_OFF", snap.LastCommand)
	}
	if len(fake.Published()) != 1 {
		t.Errorf("expected one published snapshot, got %d", len(fake.Published()))
	}
	if ctrl.Phase() != Idle {
		t.Errorf("phase after RunOnce: %s", ctrl.Phase())
	}
}

func TestRunOnceTimeout(t *testing.T) {
	fake := port.NewFake()
	fake.SetReplies(port.Float64(21.0), nil, nil)
	ctrl := newController(fake, staticSource{testSettings()}, &clock{now: monday8}, Options{})

	_, err := ctrl.RunOnce(context.Background(), 20*time.Millisecond)
	if !errors.Is(err, logic.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if len(fake.Published()) != 0 {
		t.Error("nothing should be published without a decision")
	}
}

func TestErrorsDropOldestWhenFull(t *testing.T) {
	ctrl := New(port.NewFake(), staticSource{}, state.New(state.Defaults{}), Options{ErrorBuffer: 2})
	e1, e2, e3 := errors.New("1"), errors.New("2"), errors.New("3")
	ctrl.report(e1)
	ctrl.report(e2)
	ctrl.report(e3)

	if got := <-ctrl.Errors(); got != e2 {
		t.Errorf("first: got %v, want 2", got)
	}
	if got := <-ctrl.Errors(); got != e3 {
		t.Errorf("second: got %v, want 3", got)
	}
}

func TestReadingQueueFullDrops(t *testing.T) {
	ctrl := New(port.NewFake(), staticSource{}, state.New(state.Defaults{}), Options{QueueSize: 2})
	for i := 0; i < 5; i++ {
		ctrl.OnTemperature(float64(i), time.Time{})
	}
	if got := len(ctrl.readings); got != 2 {
		t.Errorf("queued readings: got %d, want 2", got)
	}
}

func TestPhaseString(t *testing.T) {
	for p, want := range map[Phase]string{Idle: "idle", Polling: "polling", Evaluating: "evaluating"} {
		if p.String() != want {
			t.Errorf("%d: got %q, want %q", p, p.String(), want)
		}
	}
}

func TestBindErrorStopsRun(t *testing.T) {
	c := &port.Composite{Relay: failingRelay{}}
	ctrl := New(c, staticSource{}, state.New(state.Defaults{}), Options{})
	if err := ctrl.Run(context.Background(), nil, nil); err == nil {
		t.Fatal("expected bind error")
	}
}

type failingRelay struct{}

func (failingRelay) Bind(port.Sink) error { return errors.New("subscribe refused") }
func (failingRelay) RequestRelayState() error { return nil }
func (failingRelay) SetRelay(bool) error { return nil }
