// Package host defines the WorkerHost capability the orchestrator drives and ships an
// in-memory simulation of it.
package host

import (
	"errors"
	"time"

	"github.com/simonsavoca/bitburner/internal/model"
)

var (
	ErrUnknownNode     = errors.New("unknown node")
	ErrNoAccess        = errors.New("no access capability on node")
	ErrInsufficientRAM = errors.New("insufficient free RAM")
	ErrInvalidThreads  = errors.New("thread count must be positive")
	ErrInvalidKind     = errors.New("invalid operation kind")
)

// PlacementHandle identifies one launched execution.
type PlacementHandle string

// WorkerHost is the external capability that owns node topology, target state, and the
// actual execution of operations. Implementations must report positive durations.
type WorkerHost interface {
	ListVisibleNeighbors(nodeID string) ([]string, error)
	HasAccess(nodeID string) bool
	Capacity(nodeID string) (model.Capacity, error)
	ObjectiveState(id string) (model.ObjectiveState, error)
	// AccessLevel is the player's current level, compared against RequiredLevel.
	AccessLevel() int
	EstimateDuration(kind model.OpKind, id string) (time.Duration, error)
	SuccessChance(id string) (float64, error)
	Launch(kind model.OpKind, nodeID string, threads int, targetID string) (PlacementHandle, error)
	// Terminate kills every execution of kind on nodeID, finished or not.
	Terminate(kind model.OpKind, nodeID string) error
}

// Rooter is implemented by hosts that let the orchestrator acquire access to nodes.
type Rooter interface {
	PortsRequired(nodeID string) (int, error)
	// Openers lists the port openers currently available to the player.
	Openers() []string
	OpenPort(opener, nodeID string) error
	Nuke(nodeID string) error
}
