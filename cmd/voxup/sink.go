package main

import (
	"voxup/engine"
	"voxup/pipeline"
	"voxup/state"
)

// persistSink writes pipeline progress into the debounced snapshot so a
// later invocation can skip completed steps and show the last run.
type persistSink struct {
	d *state.Debounced
}

func (s persistSink) StepChanged(o pipeline.Outcome) {
	s.d.Update(func(snap *state.Snapshot) {
		if snap.Steps == nil {
			snap.Steps = make(map[string]pipeline.Outcome)
		}
		snap.Steps[o.StepID] = o
	})
}

func (s persistSink) RunFinished(rep pipeline.Report) {
	s.d.Update(func(snap *state.Snapshot) {
		snap.LastRunID = rep.RunID
		snap.LastRunStatus = string(rep.Status)
	})
}

// multiSink fans pipeline notifications out to several sinks in order.
type multiSink []pipeline.Sink

func (m multiSink) StepChanged(o pipeline.Outcome) {
	for _, s := range m {
		s.StepChanged(o)
	}
}

func (m multiSink) RunFinished(rep pipeline.Report) {
	for _, s := range m {
		s.RunFinished(rep)
	}
}

// serviceSink records service state transitions in the snapshot.
type serviceSink struct {
	d *state.Debounced
}

func (s serviceSink) ServiceChanged(st engine.State, msg string) {
	s.d.Update(func(snap *state.Snapshot) {
		snap.ServiceState = string(st)
		snap.ServiceMessage = msg
	})
}
