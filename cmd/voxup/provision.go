package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"voxup/cmd/voxup/ui"
	"voxup/pipeline"
	"voxup/state"
)

func provisionCmd() *cobra.Command {
	var (
		installDir string
		modelDir   string
		region     string
		fresh      bool
	)

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Install tools, clone index-tts, and download model assets",
		Long: `Provision runs the setup steps in order: installer tools, repository
clone, git-lfs assets, the uv environment, and the model download.
Steps that already completed are skipped, so re-running after a failure
resumes where it stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if installDir != "" {
				a.cfg.InstallDir = installDir
			}
			if modelDir != "" {
				a.cfg.ModelDir = modelDir
			}
			if region != "" {
				a.cfg.Region = region
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			d, err := state.NewDebounced(a.store, 0)
			if err != nil {
				return err
			}
			defer d.Close()

			if fresh {
				d.Update(func(snap *state.Snapshot) { snap.Steps = nil })
			}
			d.Update(func(snap *state.Snapshot) {
				snap.InstallDir = a.cfg.InstallDir
				snap.ModelDir = a.cfg.ModelDir
				snap.Region = a.cfg.Region
			})

			steps := pipeline.Steps()
			checklist := ui.NewChecklist(steps)
			defer checklist.Close()

			ex := pipeline.NewExecutor(a.run, a.bus, steps, multiSink{checklist, persistSink{d}})
			ex.Prior = d.Snapshot().Steps

			rep, err := ex.Run(cmd.Context(), a.cfg.Pipeline())
			checklist.Close()
			if err != nil {
				if errors.Is(err, pipeline.ErrInvalidTarget) {
					return fmt.Errorf("%w (choose an empty or already provisioned --install-dir)", err)
				}
				return err
			}

			fmt.Println(ui.SuccessMsg("Provisioning complete."))
			fmt.Print(ui.KeyValues("  ",
				ui.KV("Install dir", a.cfg.InstallDir),
				ui.KV("Model dir", a.cfg.Pipeline().EffectiveModelDir()),
				ui.KV("Run", rep.RunID),
			))
			fmt.Println(ui.Muted("Start the service with: voxup serve"))
			return nil
		},
	}

	cmd.Flags().StringVar(&installDir, "install-dir", "", "Where to clone index-tts (default from config)")
	cmd.Flags().StringVar(&modelDir, "model-dir", "", "Where to store model assets (default: checkpoints/ in the install dir)")
	cmd.Flags().StringVar(&region, "region", "", "Download region: global or mainland-china")
	cmd.Flags().BoolVar(&fresh, "fresh", false, "Forget recorded step outcomes and re-verify everything")

	return cmd
}
