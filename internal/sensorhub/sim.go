package sensorhub

import (
	"time"

	"tiltview/internal/orientation"
	"tiltview/internal/sim"
)

type SimConfig struct {
	Motion sim.Motion
	Env    sim.Environment
	// Sources limits which streams the simulated device has. Empty means all.
	Sources []orientation.Source
}

// SimHub synthesizes samples from a sim.Motion.
type SimHub struct {
	*pollHub
}

func NewSimHub(cfg SimConfig, sink Sink) *SimHub {
	if cfg.Motion == nil {
		cfg.Motion = sim.TiltSim{}
	}
	srcs := cfg.Sources
	if len(srcs) == 0 {
		srcs = orientation.AllSources
	}
	read := func(src orientation.Source, now time.Time) (orientation.Sample, bool, error) {
		return sim.Sample(cfg.Motion, cfg.Env, src, now), true, nil
	}
	return &SimHub{pollHub: newPollHub("simhub", srcs, read, sink)}
}
