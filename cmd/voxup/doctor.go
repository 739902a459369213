package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"voxup/cmd/voxup/ui"
	"voxup/sysinfo"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check host tools and GPU support",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var (
				tools sysinfo.Tools
				gpu   sysinfo.GPU
			)
			err = ui.RunWithSpinner(cmd.Context(), "Inspecting host", func(ctx context.Context) error {
				tools = sysinfo.CheckTools(ctx, a.run)
				gpu = sysinfo.DetectGPU(ctx, a.run)
				return nil
			})
			if err != nil {
				return err
			}

			rows := make([][]string, 0, 5)
			for _, tool := range []sysinfo.Tool{tools.Git, tools.GitLFS, tools.Python, tools.UV, tools.CUDAToolkit} {
				rows = append(rows, []string{tool.Name, ui.Bool(tool.Present), tool.Version})
			}
			fmt.Println(ui.Table([]string{"Tool", "Found", "Version"}, rows))

			if gpu.HasCUDA {
				fmt.Println(ui.SuccessMsg("CUDA device detected."))
				fmt.Print(ui.KeyValues("  ",
					ui.KV("GPU", gpu.Name),
					ui.KV("VRAM", fmt.Sprintf("%d GB", gpu.VRAMGB)),
					ui.KV("Driver", gpu.Driver),
				))
				if gpu.RecommendFP16 {
					fmt.Println(ui.InfoMsg("Enough VRAM for half precision; consider serving with --device gpu --precision fp16."))
				}
			} else {
				fmt.Println(ui.WarnMsg("No CUDA device; the service will run on CPU."))
			}

			if missing := tools.Missing(); len(missing) > 0 {
				fmt.Println(ui.WarnMsg("Missing tools: %v. voxup provision installs them where it can.", missing))
			}
			return nil
		},
	}
}
