package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/thermostat/internal/logic"
)

func newResolveCmd(configPath *string) *cobra.Command {
	var (
		at         string
		unoccupied bool
	)

	c := &cobra.Command{
		Use:   "resolve",
		Short: "Print the program and target temperature the schedule gives.",
		Long: `Resolves the weekly schedule in the config file at a moment in time,
now by default, and prints the active program and its target temperature.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			settings, err := cfg.Settings()
			if err != nil {
				return err
			}
			target, err := logic.Resolve(settings.Schedule, now, !unoccupied)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s program=%s since=%s target=%.1f\n",
				now.Format("2006-01-02 15:04"), now.Weekday(), target.Program,
				logic.FormatClock(target.Start), target.Temperature)
			return nil
		},
	}

	c.Flags().StringVar(&at, "at", "", "RFC3339 time to resolve at (default now)")
	c.Flags().BoolVar(&unoccupied, "unoccupied", false, "resolve as if nobody is home")
	return c
}
