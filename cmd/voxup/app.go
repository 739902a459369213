package main

import (
	"fmt"

	"voxup/config"
	"voxup/logbus"
	"voxup/runner"
	"voxup/state"
)

// app bundles the pieces every subcommand needs: the loaded config, the
// shared log bus, the exec runner publishing to it, and the state store.
type app struct {
	cfg   config.Config
	bus   *logbus.Bus
	run   *runner.Exec
	store *state.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, err := state.Open(config.StatePath())
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	bus := logbus.New()
	return &app{
		cfg:   cfg,
		bus:   bus,
		run:   runner.NewExec(bus),
		store: store,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
