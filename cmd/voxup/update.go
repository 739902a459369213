package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"voxup/cmd/voxup/ui"
	"voxup/repotrack"
)

func updateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check whether the index-tts checkout is behind its remote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var info repotrack.Info
			tracker := repotrack.New(a.run)
			err = ui.RunWithSpinner(cmd.Context(), "Checking for updates", func(ctx context.Context) error {
				info, err = tracker.Check(ctx, a.cfg.InstallDir)
				return err
			})
			if err != nil {
				if errors.Is(err, repotrack.ErrNetwork) && info.Local != "" {
					fmt.Println(ui.WarnMsg("Remote unreachable; local revision is %s.", info.Local[:7]))
					return nil
				}
				return err
			}

			if info.HasUpdate {
				fmt.Println(ui.InfoMsg("%s", info.Message))
				fmt.Println(ui.Muted("Apply it with: voxup update pull"))
				return nil
			}
			fmt.Println(ui.SuccessMsg("%s", info.Message))
			return nil
		},
	}

	cmd.AddCommand(updatePullCmd())
	return cmd
}

func updatePullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Fast-forward the checkout to the remote revision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			tracker := repotrack.New(a.run)
			err = ui.RunWithSpinner(cmd.Context(), "Pulling updates", func(ctx context.Context) error {
				return tracker.Pull(ctx, a.cfg.InstallDir)
			})
			if err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("Checkout updated."))
			fmt.Println(ui.Muted("Re-run voxup provision to sync the environment if dependencies changed."))
			return nil
		},
	}
}
