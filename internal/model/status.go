package model

import "time"

// Phase is the controller's current step in the discover → prepare → batch cycle.
type Phase string

const (
	PhaseDiscovering Phase = "discovering"
	PhaseSelecting   Phase = "selecting"
	PhaseSecuring    Phase = "securing"
	PhaseGrowing     Phase = "growing"
	PhaseBatching    Phase = "batching"
	PhaseExtracting  Phase = "extracting" // simple mode only
	PhaseWaiting     Phase = "waiting"
)

// Partition is the thread split of one HWGW batch, in deployment order.
type Partition struct {
	Extract   int `json:"extract" yaml:"extract"`
	Penalty1  int `json:"penalty1" yaml:"penalty1"`
	Yield     int `json:"yield" yaml:"yield"`
	Penalty2  int `json:"penalty2" yaml:"penalty2"`
	Available int `json:"available" yaml:"available"`
}

// Sum is the number of threads the partition allocates.
func (p Partition) Sum() int {
	return p.Extract + p.Penalty1 + p.Yield + p.Penalty2
}

// Remainder is the part of Available the flooring left unallocated.
func (p Partition) Remainder() int {
	return p.Available - p.Sum()
}

// RoundSummary records the outcome of the most recent deployment.
type RoundSummary struct {
	Kinds     []OpKind      `json:"kinds"`
	Requested int           `json:"requested"`
	Placed    int           `json:"placed"`
	Failures  int           `json:"failures"`
	Wait      time.Duration `json:"wait"`
}

// Status is the read-only view the daemon exposes to the CLI and dashboard.
type Status struct {
	Mode          string        `json:"mode"`
	Phase         Phase         `json:"phase"`
	ResumePhase   Phase         `json:"resume_phase,omitempty"`
	Target        string        `json:"target"`
	Iteration     int           `json:"iteration"`
	FleetNodes    int           `json:"fleet_nodes"`
	FreeThreads   int           `json:"free_threads"`
	LastPartition *Partition    `json:"last_partition,omitempty"`
	LastRound     *RoundSummary `json:"last_round,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// DaemonStatus is the reply to the daemon's status command.
type DaemonStatus struct {
	PID       int             `json:"pid"`
	StartedAt time.Time       `json:"started_at"`
	Status    Status          `json:"status"`
	Counters  MetricsCounters `json:"counters"`
}
