package model

import "fmt"

// OpKind identifies one of the three operation kinds a worker thread can run.
type OpKind int

const (
	KindConvergePenalty OpKind = iota + 1 // weaken
	KindConvergeYield                     // grow
	KindExtract                           // hack
)

// AllKinds lists every operation kind in termination order.
var AllKinds = []OpKind{KindExtract, KindConvergeYield, KindConvergePenalty}

func (k OpKind) String() string {
	switch k {
	case KindConvergePenalty:
		return "converge_penalty"
	case KindConvergeYield:
		return "converge_yield"
	case KindExtract:
		return "extract"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Letter is the HWGW shorthand used in log lines and the dashboard.
func (k OpKind) Letter() string {
	switch k {
	case KindConvergePenalty:
		return "W"
	case KindConvergeYield:
		return "G"
	case KindExtract:
		return "H"
	default:
		return "?"
	}
}

func (k OpKind) Valid() bool {
	return k >= KindConvergePenalty && k <= KindExtract
}

func ParseOpKind(s string) (OpKind, error) {
	switch s {
	case "converge_penalty", "weaken":
		return KindConvergePenalty, nil
	case "converge_yield", "grow":
		return KindConvergeYield, nil
	case "extract", "hack":
		return KindExtract, nil
	}
	return 0, fmt.Errorf("unknown operation kind %q", s)
}

func (k OpKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid operation kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *OpKind) UnmarshalText(b []byte) error {
	parsed, err := ParseOpKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// OpTable carries the per-kind unit RAM cost. Index 0 is unused.
type OpTable struct {
	cost [4]float64
}

// NewOpTable builds the table from configured costs.
func NewOpTable(cfg RAMCostConfig) OpTable {
	var t OpTable
	t.cost[KindConvergePenalty] = cfg.ConvergePenalty
	t.cost[KindConvergeYield] = cfg.ConvergeYield
	t.cost[KindExtract] = cfg.Extract
	return t
}

// UnitCost returns the RAM one thread of k consumes, or 0 for an invalid kind.
func (t OpTable) UnitCost(k OpKind) float64 {
	if !k.Valid() {
		return 0
	}
	return t.cost[k]
}

// MaxUnitCost is the most expensive thread across all kinds.
func (t OpTable) MaxUnitCost() float64 {
	highest := 0.0
	for _, k := range AllKinds {
		if c := t.cost[k]; c > highest {
			highest = c
		}
	}
	return highest
}
