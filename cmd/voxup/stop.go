package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"voxup/cmd/voxup/ui"
	"voxup/engine"
	"voxup/state"
)

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Force-stop a worker listening on the configured port",
		Long: `Stop kills whatever process listens on the service port. Use it when a
worker outlived the serve invocation that launched it; a foreground
voxup serve stops cleanly on Ctrl+C instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			port := a.cfg.Service.Port
			killed, err := engine.KillPort(cmd.Context(), a.run, port)
			if err != nil {
				return err
			}
			if killed == 0 {
				fmt.Println(ui.Muted(fmt.Sprintf("Nothing is listening on port %d.", port)))
				return nil
			}

			d, err := state.NewDebounced(a.store, 0)
			if err != nil {
				return err
			}
			d.Update(func(snap *state.Snapshot) {
				snap.ServiceState = string(engine.StateStopped)
				snap.ServiceMessage = ""
			})
			if err := d.Close(); err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("Stopped %d process(es) on port %d.", killed, port))
			return nil
		},
	}
}
