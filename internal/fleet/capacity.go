package fleet

import (
	"math"

	"github.com/simonsavoca/bitburner/internal/model"
)

// CapacityReader is the part of a host capacity accounting needs.
type CapacityReader interface {
	Capacity(nodeID string) (model.Capacity, error)
}

// FreeThreads is the number of threads costing unitCost that fit in c's free RAM.
func FreeThreads(c model.Capacity, unitCost float64) int {
	if unitCost <= 0 {
		return 0
	}
	return int(math.Floor(c.Free() / unitCost))
}

// TotalFreeThreads sums FreeThreads over nodes.
func TotalFreeThreads(nodes []model.WorkerNode, unitCost float64) int {
	total := 0
	for _, n := range nodes {
		total += FreeThreads(n.Capacity, unitCost)
	}
	return total
}

// QueryFreeThreads reads id's capacity from the host now. A failed read counts as zero.
func QueryFreeThreads(h CapacityReader, id string, unitCost float64) int {
	c, err := h.Capacity(id)
	if err != nil {
		return 0
	}
	return FreeThreads(c, unitCost)
}

// NodeReader is the part of a host a fresh node read needs.
type NodeReader interface {
	CapacityReader
	HasAccess(nodeID string) bool
}

// ReadNodes reads the access and capacity of each id from the host now. A node whose
// capacity cannot be read reports zero.
func ReadNodes(h NodeReader, ids []string) []model.WorkerNode {
	nodes := make([]model.WorkerNode, 0, len(ids))
	for _, id := range ids {
		n := model.WorkerNode{ID: id, HasAccess: h.HasAccess(id)}
		if c, err := h.Capacity(id); err == nil {
			n.Capacity = c
		}
		nodes = append(nodes, n)
	}
	return nodes
}
