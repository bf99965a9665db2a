// Package cmd holds the thermostat's cobra commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sweeney/thermostat/internal/config"
	"github.com/sweeney/thermostat/internal/logging"
)

// stopSignal is the cancellation cause when the daemon is asked to stop.
type stopSignal struct {
	name string
}

func (s stopSignal) Error() string {
	return "received " + s.name
}

// Execute runs the thermostat CLI and exits with non-zero status on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath  string
		once        bool
		onceTimeout time.Duration
	)

	root := &cobra.Command{
		Use:   "thermostat",
		Short: "Run the heating thermostat.",
		Long: `Runs the thermostat daemon for one heating zone.

Temperature, relay state and occupancy are polled on a fixed interval. On every
evaluation the weekly schedule is resolved from the config file, re-read each
time, and the relay is switched when the temperature leaves the hysteresis band.

With --once the readings are requested a single time, one evaluation runs as
soon as temperature and relay state are known, and the snapshot is printed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := notifyContext(cmd.Context())
			defer stop()

			return runDaemon(ctx, cmd, runOptions{
				ConfigPath:  configPath,
				Once:        once,
				OnceTimeout: onceTimeout,
			})
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to configuration file")
	root.Flags().BoolVar(&once, "once", false, "evaluate once, print the snapshot and exit")
	root.Flags().DurationVar(&onceTimeout, "once-timeout", 30*time.Second, "how long --once waits for readings")

	root.AddCommand(newResolveCmd(&configPath), newHistoryCmd(&configPath), newStatusCmd(&configPath))
	return root
}

// notifyContext is cancelled on SIGINT or SIGTERM with the signal name as its cause.
func notifyContext(parent context.Context) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigCh:
			cancel(stopSignal{name: signalName(s)})
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel(nil)
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// loadConfig reads and validates the file, sets up logging and reports warnings.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)
	for _, w := range cfg.Warnings() {
		log.Warn().Str("config", path).Msg(w)
	}
	return cfg, nil
}
