package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"voxup/cmd/voxup/ui"
	"voxup/engine"
	"voxup/pipeline"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provisioning progress and service reachability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			snap, _, err := a.store.Load()
			if err != nil {
				return err
			}

			endpoint := a.cfg.Engine().Endpoint()
			probeCtx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
			reachable := engine.HTTPProbe(probeCtx, endpoint) == nil
			cancel()

			serviceState := snap.ServiceState
			if serviceState == "" {
				serviceState = "stopped"
			}

			pairs := []ui.Pair{
				ui.KV("Install dir", a.cfg.InstallDir),
				ui.KV("Model dir", a.cfg.Pipeline().EffectiveModelDir()),
				ui.KV("Region", a.cfg.Region),
				ui.KV("Runtime", a.cfg.Runtime),
				ui.KV("Endpoint", endpoint),
				ui.KV("Reachable", ui.Bool(reachable)),
				ui.KV("Last known state", serviceState),
			}
			if snap.LastRunID != "" {
				pairs = append(pairs, ui.KV("Last provision", fmt.Sprintf("%s (%s)", snap.LastRunStatus, snap.LastRunID)))
			}
			fmt.Print(ui.KeyValues("  ", pairs...))

			if len(snap.Steps) > 0 {
				fmt.Println()
				fmt.Println(stepTable(snap.Steps))
			}
			return nil
		},
	}
}

// stepTable renders recorded step outcomes in pipeline order.
func stepTable(outcomes map[string]pipeline.Outcome) string {
	var rows [][]string
	for _, st := range pipeline.Steps() {
		o, ok := outcomes[st.ID]
		if !ok {
			rows = append(rows, []string{st.Label, string(pipeline.StatusPending), ""})
			continue
		}
		rows = append(rows, []string{st.Label, statusCell(o.Status), o.Message})
	}
	return ui.Table([]string{"Step", "Status", "Note"}, rows)
}

func statusCell(s pipeline.Status) string {
	switch s {
	case pipeline.StatusSuccess:
		return ui.Success(string(s))
	case pipeline.StatusFailed:
		return ui.ErrorStyle.Render(string(s))
	case pipeline.StatusRunning:
		return ui.Accent(string(s))
	default:
		return ui.Muted(string(s))
	}
}
