package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sweeney/thermostat/internal/config"
	"github.com/sweeney/thermostat/internal/controller"
	"github.com/sweeney/thermostat/internal/gpio"
	"github.com/sweeney/thermostat/internal/history"
	"github.com/sweeney/thermostat/internal/mqtt"
	"github.com/sweeney/thermostat/internal/port"
	"github.com/sweeney/thermostat/internal/sensor"
	"github.com/sweeney/thermostat/internal/state"
	"github.com/sweeney/thermostat/internal/web"
)

type runOptions struct {
	ConfigPath  string
	Once        bool
	OnceTimeout time.Duration
}

// daemon owns every backend built from the configuration.
type daemon struct {
	cfg     *config.Config
	client  mqtt.Client // nil when no backend uses the broker
	topics  mqtt.Topics
	port    *port.Composite
	state   *state.ControlState
	hub     *web.Hub
	closers []func() error
}

func topicsFromConfig(tc config.TopicConfig) mqtt.Topics {
	t := mqtt.DefaultTopics()
	for _, o := range []struct {
		dst *string
		src string
	}{
		{&t.RelayInput, tc.RelayInput},
		{&t.RelayOutput, tc.RelayOutput},
		{&t.Occupancy, tc.Occupancy},
		{&t.State, tc.State},
		{&t.System, tc.System},
	} {
		if o.src != "" {
			*o.dst = o.src
		}
	}
	return t
}

// newDaemon assembles the port from cfg. client must be set when cfg.NeedsMQTT.
func newDaemon(cfg *config.Config, client mqtt.Client) (*daemon, error) {
	if cfg.NeedsMQTT() && client == nil {
		return nil, errors.New("configuration uses mqtt but no client was provided")
	}

	d := &daemon{
		cfg:    cfg,
		client: client,
		topics: topicsFromConfig(cfg.MQTT.Topics),
		state: state.New(state.Defaults{
			Occupied:           *cfg.Control.DefaultOccupied,
			DesiredTemperature: *cfg.Control.FallbackTemperature,
		}),
	}
	p := &port.Composite{
		Temperature: sensor.NewFile(cfg.Sensor.Path),
	}

	switch cfg.Relay.Type {
	case config.RelayGPIO:
		line, err := gpio.OpenLine(cfg.Relay.Chip, *cfg.Relay.Pin, cfg.Relay.ActiveLow)
		if err != nil {
			return nil, fmt.Errorf("open relay line: %w", err)
		}
		r := gpio.NewRelay(line)
		d.closers = append(d.closers, r.Close)
		p.Relay = r
	default:
		p.Relay = mqtt.NewRelay(client, d.topics)
	}

	switch cfg.Occupancy.Type {
	case config.OccupancyMQTT:
		p.Occupancy = mqtt.NewOccupancy(client, d.topics.Occupancy)
	default:
		p.Occupancy = &port.StaticOccupancy{Occupied: *cfg.Control.DefaultOccupied}
	}

	h := cfg.History
	if h.StateFile != "" {
		p.Sinks = append(p.Sinks, port.NamedSink{Name: "state file", Sink: history.NewStateFile(h.StateFile)})
	}
	if h.StateLog != "" {
		p.Sinks = append(p.Sinks, port.NamedSink{Name: "state log", Sink: history.NewTextLog(h.StateLog)})
	}
	if h.Database != "" {
		store, err := history.Open(h.Database, h.Retention.Duration())
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, store.Close)
		p.Sinks = append(p.Sinks, port.NamedSink{Name: "history", Sink: store})
	}
	if cfg.MQTT.PublishState {
		p.Sinks = append(p.Sinks, port.NamedSink{Name: "mqtt state", Sink: mqtt.NewStatePublisher(client, d.topics.State)})
	}
	if cfg.HTTP.Enabled {
		d.hub = web.NewHub()
		p.Sinks = append(p.Sinks, port.NamedSink{Name: "websocket", Sink: d.hub})
	}

	d.port = p
	return d, nil
}

func (d *daemon) controller(src controller.SettingsSource, now func() time.Time) *controller.Controller {
	return controller.New(d.port, src, d.state, controller.Options{
		PollAtStartup: *d.cfg.Control.PollAtStartup,
		QueueSize:     d.cfg.Control.ReadingQueue,
		Now:           now,
	})
}

// announce publishes a lifecycle event when a broker is in use.
func (d *daemon) announce(event, reason string) {
	if d.client == nil {
		return
	}
	err := mqtt.PublishSystem(d.client, d.topics.System, mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     event,
		Reason:    reason,
	})
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	log.Info().Str("event", event).Str("reason", reason).Msg("published system event")
}

func (d *daemon) webServer(start time.Time) *web.Server {
	cfg := d.cfg
	opts := web.Options{
		Info: web.Info{
			StartTime:        start,
			PollInterval:     cfg.Control.PollInterval.Duration(),
			EvaluateInterval: cfg.Control.EvaluateInterval.Duration(),
			LowThreshold:     cfg.Control.LowThreshold,
			HighThreshold:    cfg.Control.HighThreshold,
			Sensor:           cfg.Sensor.Type,
			Relay:            cfg.Relay.Type,
			Occupancy:        cfg.Occupancy.Type,
		},
		Network: web.NetworkFromEnv(),
		Hub:     d.hub,
	}
	if d.client != nil {
		opts.Info.Broker = cfg.MQTT.Broker
		opts.Connected = d.client.IsConnected
		if b, ok := d.client.(interface{ Buffered() int }); ok {
			opts.Buffered = b.Buffered
		}
	}
	return web.New(cfg.HTTP.Addr, d.state, opts)
}

// Close releases the backends in reverse order of creation.
func (d *daemon) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}

func runDaemon(ctx context.Context, cmd *cobra.Command, opts runOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}

	var client mqtt.Client
	if cfg.NeedsMQTT() {
		rc, err := mqtt.NewRealClient(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			BufferSize: cfg.MQTT.BufferSize,
			WillTopic:  topicsFromConfig(cfg.MQTT.Topics).System,
		})
		if err != nil {
			return err
		}
		defer rc.Close()
		client = rc
	}

	d, err := newDaemon(cfg, client)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn().Err(err).Msg("closing backends")
		}
	}()

	ctl := d.controller(config.NewFileSource(opts.ConfigPath), time.Now)

	if opts.Once {
		snap, err := ctl.RunOnce(ctx, opts.OnceTimeout)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(state.FormatJSON(snap)))
		return nil
	}

	logPreviousState(cfg.History.StateFile)
	d.announce("STARTUP", "")

	if cfg.HTTP.Enabled {
		srv := d.webServer(time.Now())
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
	}

	pollTicker := time.NewTicker(cfg.Control.PollInterval.Duration())
	defer pollTicker.Stop()
	evalTicker := time.NewTicker(cfg.Control.EvaluateInterval.Duration())
	defer evalTicker.Stop()

	log.Info().
		Dur("poll", cfg.Control.PollInterval.Duration()).
		Dur("evaluate", cfg.Control.EvaluateInterval.Duration()).
		Str("sensor", cfg.Sensor.Type).
		Str("relay", cfg.Relay.Type).
		Str("occupancy", cfg.Occupancy.Type).
		Msg("started")

	if err := ctl.Run(ctx, pollTicker.C, evalTicker.C); err != nil {
		return err
	}

	var reason string
	var sig stopSignal
	if errors.As(context.Cause(ctx), &sig) {
		reason = sig.name
	}
	log.Info().Str("reason", reason).Msg("shutting down")
	d.announce("SHUTDOWN", reason)
	return nil
}

// logPreviousState reports the snapshot left by the last run, if any.
func logPreviousState(path string) {
	if path == "" {
		return
	}
	prev, err := history.NewStateFile(path).Load()
	switch {
	case errors.Is(err, history.ErrNotFound):
		return
	case err != nil:
		log.Warn().Err(err).Str("path", path).Msg("cannot read previous state")
		return
	}
	log.Info().
		Str("heating", prev.Relay.String()).
		Float64("desired", prev.DesiredTemperature).
		Str("program", prev.ActiveProgram).
		Time("at", prev.UpdatedAt).
		Msg("previous state")
}
