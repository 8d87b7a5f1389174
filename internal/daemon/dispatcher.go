package daemon

import (
	"log"

	"github.com/simonsavoca/bitburner/internal/fleet"
	"github.com/simonsavoca/bitburner/internal/host"
	"github.com/simonsavoca/bitburner/internal/model"
)

// PlacementFailure is a launch the host refused. Its threads are lost for the round.
type PlacementFailure struct {
	NodeID  string
	Threads int
	Err     error
}

// DispatchResult reports one greedy placement pass.
type DispatchResult struct {
	Kind        model.OpKind
	Requested   int
	Placed      int
	Failures    []PlacementFailure
	Assignments []model.Assignment
}

// Dispatcher places thread budgets on fleet nodes.
type Dispatcher struct {
	host     host.WorkerHost
	table    model.OpTable
	logger   *log.Logger
	logLevel *LevelVar
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(h host.WorkerHost, table model.OpTable, logger *log.Logger, logLevel *LevelVar) *Dispatcher {
	return &Dispatcher{
		host:     h,
		table:    table,
		logger:   logger,
		logLevel: logLevel,
	}
}

// Dispatch walks nodes in the given order and launches min(remaining, free) threads of kind
// on each, re-reading capacity before every node. A refused launch still counts against
// the budget.
func (d *Dispatcher) Dispatch(kind model.OpKind, targetID string, nodes []string, budget int) DispatchResult {
	res := DispatchResult{Kind: kind, Requested: budget}
	cost := d.table.UnitCost(kind)
	remaining := budget
	for _, nodeID := range nodes {
		if remaining <= 0 {
			break
		}

		free := fleet.QueryFreeThreads(d.host, nodeID, cost)
		threads := min(remaining, free)
		if threads <= 0 {
			continue
		}
		remaining -= threads

		handle, err := d.host.Launch(kind, nodeID, threads, targetID)
		if err != nil {
			res.Failures = append(res.Failures, PlacementFailure{NodeID: nodeID, Threads: threads, Err: err})
			d.log(LogLevelWarn, "placement_failed kind=%s node=%s threads=%d target=%s error=%v",
				kind, nodeID, threads, targetID, err)
			continue
		}
		res.Placed += threads
		res.Assignments = append(res.Assignments, model.Assignment{
			Kind:     kind,
			TargetID: targetID,
			NodeID:   nodeID,
			Threads:  threads,
			Handle:   string(handle),
		})
		d.log(LogLevelDebug, "placed kind=%s node=%s threads=%d target=%s", kind, nodeID, threads, targetID)
	}
	if res.Placed < res.Requested {
		d.log(LogLevelDebug, "dispatch_short kind=%s requested=%d placed=%d", kind, res.Requested, res.Placed)
	}
	return res
}

// FleetFree sums the threads of kind each node can take right now.
func (d *Dispatcher) FleetFree(kind model.OpKind, nodes []string) int {
	return fleet.TotalFreeThreads(fleet.ReadNodes(d.host, nodes), d.table.UnitCost(kind))
}

// TerminateAll kills every execution of each kind on every node. Errors are logged.
func (d *Dispatcher) TerminateAll(kinds []model.OpKind, nodes []string) {
	for _, id := range nodes {
		for _, k := range kinds {
			if err := d.host.Terminate(k, id); err != nil {
				d.log(LogLevelWarn, "terminate_failed kind=%s node=%s error=%v", k, id, err)
			}
		}
	}
}

func (d *Dispatcher) log(level LogLevel, format string, args ...any) {
	logLine(d.logger, d.logLevel, level, "dispatcher", format, args...)
}
