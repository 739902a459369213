package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"

	"voxup/cmd/voxup/ui"
	"voxup/config"
	"voxup/engine"
	"voxup/logbus"
	"voxup/state"
)

func serveCmd() *cobra.Command {
	var (
		device    string
		precision string
		port      int
		follow    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the speech service and run until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if device != "" {
				a.cfg.Service.Device = engine.Device(device)
			}
			if precision != "" {
				a.cfg.Service.Precision = engine.Precision(precision)
			}
			if port != 0 {
				a.cfg.Service.Port = port
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			d, err := state.NewDebounced(a.store, 0)
			if err != nil {
				return err
			}
			defer d.Close()

			rt, err := workerRuntime(a)
			if err != nil {
				return err
			}
			e := engine.New(rt, a.bus, engine.WithStateSink(serviceSink{d}))

			if follow {
				lines, cancel := a.bus.Subscribe()
				defer cancel()
				go printLines(lines)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := e.Start(ctx, a.cfg.Engine()); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Service ready at %s", ui.Accent(e.Endpoint())))
			fmt.Println(ui.Muted("Press Ctrl+C to stop."))

			<-ctx.Done()
			stop()

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := e.Stop(stopCtx); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Service stopped."))
			return nil
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "Compute device: cpu or gpu")
	cmd.Flags().StringVar(&precision, "precision", "", "Model precision: fp32 or fp16")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port for the worker")
	cmd.Flags().BoolVar(&follow, "follow", true, "Print worker log lines while running")

	return cmd
}

// workerRuntime picks the process or container runtime from config.
func workerRuntime(a *app) (engine.WorkerRuntime, error) {
	if a.cfg.Runtime != config.RuntimeContainer {
		return engine.NewProcessRuntime(a.run), nil
	}

	docker, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connect to docker: %w", err)
	}
	var opts []engine.ContainerOption
	if a.cfg.Image != "" {
		opts = append(opts, engine.WithImage(a.cfg.Image))
	}
	return engine.NewContainerRuntime(docker, opts...), nil
}

func printLines(lines <-chan logbus.Line) {
	for line := range lines {
		text := fmt.Sprintf("%s %s %s",
			ui.FaintStyle.Render(line.Time.Format("15:04:05")),
			ui.Muted("["+line.Source+"]"),
			line.Text,
		)
		if line.Stream == logbus.StreamStderr {
			fmt.Fprintln(os.Stderr, text)
			continue
		}
		fmt.Println(text)
	}
}
