package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"voxup/cmd/voxup/ui"
	"voxup/internal/buildinfo"
	"voxup/internal/logging"
)

func main() {
	var (
		debug         bool
		noInteraction bool
	)
	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "voxup",
		Short:         "Provision and run the IndexTTS-2 speech service locally",
		Version:       buildinfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			if err := logging.Configure(level); err != nil {
				return err
			}
			ui.ConfigureInteraction(noInteraction)
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&noInteraction, "no-interaction", false, "Disable colors and in-place redraws")

	root.AddCommand(provisionCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(stopCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(updateCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(logsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
