package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voxup/cmd/voxup/ui"
	"voxup/state"
)

func logsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the outcome of the last provisioning run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			snap, ok, err := a.store.Load()
			if err != nil {
				return err
			}
			if !ok || snap.LastRunID == "" {
				fmt.Println(ui.Muted("No provisioning run recorded yet."))
				return nil
			}

			fmt.Print(ui.KeyValues("  ",
				ui.KV("Run", snap.LastRunID),
				ui.KV("Status", snap.LastRunStatus),
				ui.KV("Recorded", snap.UpdatedAt.Local().Format("2006-01-02 15:04:05")),
			))
			if len(snap.Steps) > 0 {
				fmt.Println()
				fmt.Println(stepTable(snap.Steps))
			}
			return nil
		},
	}

	cmd.AddCommand(logsClearCmd())
	return cmd
}

func logsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the recorded run summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			a.bus.Clear()

			d, err := state.NewDebounced(a.store, 0)
			if err != nil {
				return err
			}
			// Step outcomes stay: they still gate step skipping on re-runs.
			d.Update(func(snap *state.Snapshot) {
				snap.LastRunID = ""
				snap.LastRunStatus = ""
			})
			if err := d.Close(); err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("Run summary cleared."))
			return nil
		},
	}
}
