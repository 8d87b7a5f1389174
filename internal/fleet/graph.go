// Package fleet walks the node graph a host exposes and accounts for the thread capacity
// of the nodes the orchestrator may use.
package fleet

import (
	"time"

	"github.com/simonsavoca/bitburner/internal/host"
	"github.com/simonsavoca/bitburner/internal/model"
)

// NeighborLister is the part of a host the graph walk needs.
type NeighborLister interface {
	ListVisibleNeighbors(nodeID string) ([]string, error)
}

// Discover walks the visibility relation depth-first from root and returns every reachable
// node in first-visit order, root first. A node whose neighbor query fails is kept as a leaf
// and reported in gaps.
func Discover(h NeighborLister, root string) (ids []string, gaps []string) {
	visited := map[string]bool{}
	stack := []string{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		ids = append(ids, id)

		neighbors, err := h.ListVisibleNeighbors(id)
		if err != nil {
			gaps = append(gaps, id)
			continue
		}
		// reverse push keeps the walk in the host's neighbor order
		for i := len(neighbors) - 1; i >= 0; i-- {
			if !visited[neighbors[i]] {
				stack = append(stack, neighbors[i])
			}
		}
	}
	return ids, gaps
}

// Rooted filters ids to the nodes the orchestrator may place work on.
func Rooted(h host.WorkerHost, ids []string) []string {
	var out []string
	for _, id := range ids {
		if h.HasAccess(id) {
			out = append(out, id)
		}
	}
	return out
}

// Extractable filters ids to valid objectives: rooted, within the player's level, with
// positive max yield, and not root itself. Nodes whose state cannot be read are skipped.
func Extractable(h host.WorkerHost, ids []string, level int, root string) []string {
	var out []string
	for _, id := range ids {
		if id == root || !h.HasAccess(id) {
			continue
		}
		st, err := h.ObjectiveState(id)
		if err != nil {
			continue
		}
		if st.RequiredLevel <= level && st.MaxYield > 0 {
			out = append(out, id)
		}
	}
	return out
}

// TakeSnapshot discovers the graph and reads every node and objective once. The returned
// gaps are the nodes whose neighbor query failed.
func TakeSnapshot(h host.WorkerHost, root string, now time.Time) (model.Snapshot, []string) {
	ids, gaps := Discover(h, root)
	level := h.AccessLevel()
	snap := model.Snapshot{
		TakenAt:     now,
		Root:        root,
		AccessLevel: level,
		Nodes:       ReadNodes(h, ids),
		Fleet:       Rooted(h, ids),
	}
	for _, id := range Extractable(h, ids, level, root) {
		if o, ok := ReadObjective(h, id); ok {
			snap.Objectives = append(snap.Objectives, o)
		}
	}
	return snap, gaps
}

// ReadObjective reads the fresh state and estimates of one objective.
func ReadObjective(h host.WorkerHost, id string) (model.Objective, bool) {
	st, err := h.ObjectiveState(id)
	if err != nil {
		return model.Objective{}, false
	}
	chance, err := h.SuccessChance(id)
	if err != nil {
		return model.Objective{}, false
	}
	extract, err := h.EstimateDuration(model.KindExtract, id)
	if err != nil {
		return model.Objective{}, false
	}
	converge, err := h.EstimateDuration(model.KindConvergePenalty, id)
	if err != nil {
		return model.Objective{}, false
	}
	return model.Objective{
		ID:               id,
		ObjectiveState:   st,
		SuccessChance:    chance,
		ExtractDuration:  extract,
		ConvergeDuration: converge,
	}, true
}
