package fleet

import (
	"fmt"
	"time"

	"github.com/simonsavoca/bitburner/internal/host"
)

// SweepResult reports one access-acquisition pass.
type SweepResult struct {
	Attempted int
	Rooted    []string
	Failures  map[string]error
}

// Sweeper periodically tries to gain access to discovered nodes that lack it.
type Sweeper struct {
	interval time.Duration
	last     time.Time
}

func NewSweeper(interval time.Duration) *Sweeper {
	return &Sweeper{interval: interval}
}

// Due reports whether a sweep should run at now. The first sweep is always due.
func (s *Sweeper) Due(now time.Time) bool {
	return s.last.IsZero() || now.Sub(s.last) >= s.interval
}

// Sweep attempts every node in ids without access. Hosts that do not implement host.Rooter
// are skipped. Nodes needing more ports than the available openers are left for a later sweep.
func (s *Sweeper) Sweep(h host.WorkerHost, ids []string, now time.Time) SweepResult {
	s.last = now
	res := SweepResult{Failures: map[string]error{}}
	r, ok := h.(host.Rooter)
	if !ok {
		return res
	}
	openers := r.Openers()
	for _, id := range ids {
		if h.HasAccess(id) {
			continue
		}
		required, err := r.PortsRequired(id)
		if err != nil {
			res.Failures[id] = err
			continue
		}
		if required > len(openers) {
			continue
		}
		res.Attempted++
		if err := rootNode(r, openers, id); err != nil {
			res.Failures[id] = err
			continue
		}
		res.Rooted = append(res.Rooted, id)
	}
	return res
}

func rootNode(r host.Rooter, openers []string, id string) error {
	for _, o := range openers {
		if err := r.OpenPort(o, id); err != nil {
			return fmt.Errorf("open %s: %w", o, err)
		}
	}
	if err := r.Nuke(id); err != nil {
		return fmt.Errorf("nuke: %w", err)
	}
	return nil
}
