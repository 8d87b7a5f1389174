package model

import "time"

// Capacity is a node's RAM budget in GB.
type Capacity struct {
	Max  float64 `json:"max" yaml:"max"`
	Used float64 `json:"used" yaml:"used"`
}

// Free returns the unused RAM, never negative.
func (c Capacity) Free() float64 {
	if c.Used >= c.Max {
		return 0
	}
	return c.Max - c.Used
}

// WorkerNode is a point-in-time view of a host that may run threads.
type WorkerNode struct {
	ID        string   `json:"id" yaml:"id"`
	HasAccess bool     `json:"has_access" yaml:"has_access"`
	Capacity  Capacity `json:"capacity" yaml:"capacity"`
}

// ObjectiveState is the host-owned state of a target.
type ObjectiveState struct {
	MaxYield       float64 `json:"max_yield"`
	CurrentYield   float64 `json:"current_yield"`
	MinPenalty     float64 `json:"min_penalty"`
	CurrentPenalty float64 `json:"current_penalty"`
	RequiredLevel  int     `json:"required_level"`
}

// Objective is an extractable target together with the host's estimates for it.
type Objective struct {
	ID string `json:"id"`
	ObjectiveState
	SuccessChance    float64       `json:"success_chance"`
	ExtractDuration  time.Duration `json:"extract_duration"`
	ConvergeDuration time.Duration `json:"converge_duration"`
}

// Snapshot is the fleet view taken once per decision cycle. It is never mutated after
// construction; capacity used for placement is re-read from the host instead.
type Snapshot struct {
	TakenAt     time.Time    `json:"taken_at"`
	Root        string       `json:"root"`
	AccessLevel int          `json:"access_level"`
	Nodes       []WorkerNode `json:"nodes"`
	// Fleet is the rooted subset of Nodes, in discovery order.
	Fleet       []string     `json:"fleet"`
	Objectives  []Objective  `json:"objectives"`
}

// NodeIDs returns every discovered node ID, in discovery order.
func (s Snapshot) NodeIDs() []string {
	ids := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

// Assignment describes one placement made by the dispatcher.
type Assignment struct {
	Kind     OpKind `json:"kind"`
	TargetID string `json:"target_id"`
	NodeID   string `json:"node_id"`
	Threads  int    `json:"threads"`
	Handle   string `json:"handle,omitempty"`
}
