package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweeney/thermostat/internal/history"
	"github.com/sweeney/thermostat/internal/state"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	var limit int

	c := &cobra.Command{
		Use:   "history",
		Short: "Print recent snapshots from the history database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.History.Database == "" {
				return errors.New("history.database is not configured")
			}

			store, err := history.Open(cfg.History.Database, 0)
			if err != nil {
				return err
			}
			defer store.Close()

			snaps, err := store.Recent(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i := len(snaps) - 1; i >= 0; i-- {
				fmt.Fprint(out, history.FormatLine(snaps[i]))
			}
			return nil
		},
	}

	c.Flags().IntVarP(&limit, "limit", "n", 20, "number of snapshots to print")
	return c
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the last snapshot written to the state file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.History.StateFile == "" {
				return errors.New("history.state_file is not configured")
			}

			snap, err := history.NewStateFile(cfg.History.StateFile).Load()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(state.FormatJSON(snap)))
			return nil
		},
	}
}
