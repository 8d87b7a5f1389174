// Package model defines the data structures for hwgw's configuration, fleet snapshots, and status.
package model

import "fmt"

type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Operations   OperationsConfig   `yaml:"operations"`
	Host         HostConfig         `yaml:"host"`
	Daemon       DaemonConfig       `yaml:"daemon"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type OrchestratorConfig struct {
	Mode                 string       `yaml:"mode"` // "batch" or "simple"
	Root                 string       `yaml:"root"`
	FallbackTarget       string       `yaml:"fallback_target"`
	LoopDelayMs          int          `yaml:"loop_delay_ms"`
	InsufficientDelayMs  int          `yaml:"insufficient_delay_ms"`
	PrepareBufferMs      int          `yaml:"prepare_buffer_ms"`
	BatchBufferMs        int          `yaml:"batch_buffer_ms"`
	PenaltyEpsilon       float64      `yaml:"penalty_epsilon"`
	YieldTargetFraction  float64      `yaml:"yield_target_fraction"`
	PenaltyDrift         float64      `yaml:"penalty_drift"`
	MinBatchThreads      int          `yaml:"min_batch_threads"`
	RootSweepIntervalSec int          `yaml:"root_sweep_interval_sec"`
	Simple               SimpleConfig `yaml:"simple"`
}

// SimpleConfig tunes the one-action-per-iteration mode.
type SimpleConfig struct {
	PenaltyOffset float64 `yaml:"penalty_offset"`
	YieldFraction float64 `yaml:"yield_fraction"`
	BufferMs      int     `yaml:"buffer_ms"`
}

type OperationsConfig struct {
	RAMCost RAMCostConfig `yaml:"ram_cost"`
}

type RAMCostConfig struct {
	ConvergePenalty float64 `yaml:"converge_penalty"`
	ConvergeYield   float64 `yaml:"converge_yield"`
	Extract         float64 `yaml:"extract"`
}

type HostConfig struct {
	World     string  `yaml:"world"`
	TimeScale float64 `yaml:"time_scale"`
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec"`
	StatusIntervalSec  int `yaml:"status_interval_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

const (
	ModeBatch  = "batch"
	ModeSimple = "simple"
)

// MinBatchFloor is the smallest batch that gives each of the four groups a chance at a
// thread.
const MinBatchFloor = 4

// DefaultConfig returns the configuration written by setup and used to fill unset fields.
func DefaultConfig() Config {
	return Config{
		Orchestrator: OrchestratorConfig{
			Mode:                 ModeBatch,
			Root:                 "home",
			FallbackTarget:       "n00dles",
			LoopDelayMs:          1000,
			InsufficientDelayMs:  5000,
			PrepareBufferMs:      1000,
			BatchBufferMs:        2000,
			PenaltyEpsilon:       0.1,
			YieldTargetFraction:  0.99,
			PenaltyDrift:         1.0,
			MinBatchThreads:      4,
			RootSweepIntervalSec: 60,
			Simple: SimpleConfig{
				PenaltyOffset: 5,
				YieldFraction: 0.75,
				BufferMs:      1000,
			},
		},
		Operations: OperationsConfig{
			RAMCost: RAMCostConfig{
				ConvergePenalty: 1.75,
				ConvergeYield:   1.75,
				Extract:         1.75,
			},
		},
		Host: HostConfig{
			World:     "world.hcl",
			TimeScale: 1,
		},
		Daemon: DaemonConfig{
			ShutdownTimeoutSec: 30,
			StatusIntervalSec:  10,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// WithDefaults fills every zero-valued field from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	o := &c.Orchestrator
	if o.Mode == "" {
		o.Mode = d.Orchestrator.Mode
	}
	if o.Root == "" {
		o.Root = d.Orchestrator.Root
	}
	if o.FallbackTarget == "" {
		o.FallbackTarget = d.Orchestrator.FallbackTarget
	}
	if o.LoopDelayMs <= 0 {
		o.LoopDelayMs = d.Orchestrator.LoopDelayMs
	}
	if o.InsufficientDelayMs <= 0 {
		o.InsufficientDelayMs = d.Orchestrator.InsufficientDelayMs
	}
	if o.PrepareBufferMs <= 0 {
		o.PrepareBufferMs = d.Orchestrator.PrepareBufferMs
	}
	if o.BatchBufferMs <= 0 {
		o.BatchBufferMs = d.Orchestrator.BatchBufferMs
	}
	if o.PenaltyEpsilon <= 0 {
		o.PenaltyEpsilon = d.Orchestrator.PenaltyEpsilon
	}
	if o.YieldTargetFraction <= 0 || o.YieldTargetFraction > 1 {
		o.YieldTargetFraction = d.Orchestrator.YieldTargetFraction
	}
	if o.PenaltyDrift <= 0 {
		o.PenaltyDrift = d.Orchestrator.PenaltyDrift
	}
	if o.MinBatchThreads <= 0 {
		o.MinBatchThreads = d.Orchestrator.MinBatchThreads
	}
	o.MinBatchThreads = max(o.MinBatchThreads, MinBatchFloor)
	if o.RootSweepIntervalSec <= 0 {
		o.RootSweepIntervalSec = d.Orchestrator.RootSweepIntervalSec
	}
	if o.Simple.PenaltyOffset <= 0 {
		o.Simple.PenaltyOffset = d.Orchestrator.Simple.PenaltyOffset
	}
	if o.Simple.YieldFraction <= 0 || o.Simple.YieldFraction > 1 {
		o.Simple.YieldFraction = d.Orchestrator.Simple.YieldFraction
	}
	if o.Simple.BufferMs <= 0 {
		o.Simple.BufferMs = d.Orchestrator.Simple.BufferMs
	}

	r := &c.Operations.RAMCost
	if r.ConvergePenalty <= 0 {
		r.ConvergePenalty = d.Operations.RAMCost.ConvergePenalty
	}
	if r.ConvergeYield <= 0 {
		r.ConvergeYield = d.Operations.RAMCost.ConvergeYield
	}
	if r.Extract <= 0 {
		r.Extract = d.Operations.RAMCost.Extract
	}

	if c.Host.World == "" {
		c.Host.World = d.Host.World
	}
	if c.Host.TimeScale <= 0 {
		c.Host.TimeScale = d.Host.TimeScale
	}
	if c.Daemon.ShutdownTimeoutSec <= 0 {
		c.Daemon.ShutdownTimeoutSec = d.Daemon.ShutdownTimeoutSec
	}
	if c.Daemon.StatusIntervalSec <= 0 {
		c.Daemon.StatusIntervalSec = d.Daemon.StatusIntervalSec
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	return c
}

// Validate rejects settings WithDefaults cannot repair.
func (c Config) Validate() error {
	switch c.Orchestrator.Mode {
	case ModeBatch, ModeSimple:
	default:
		return fmt.Errorf("orchestrator.mode must be %q or %q, got %q", ModeBatch, ModeSimple, c.Orchestrator.Mode)
	}
	return nil
}
