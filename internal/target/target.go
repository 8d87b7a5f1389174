// Package target scores objectives and picks the one the orchestrator works next.
package target

import (
	"time"

	"github.com/simonsavoca/bitburner/internal/model"
)

// Score is the expected yield per millisecond of extraction, discounted by the
// objective's penalty floor. A zero duration is not guarded; hosts report positive ones.
func Score(o model.Objective) float64 {
	ms := float64(o.ExtractDuration) / float64(time.Millisecond)
	return (o.MaxYield / ms) * o.SuccessChance / (o.MinPenalty + 1)
}

// Selection is the outcome of SelectBest.
type Selection struct {
	ID       string
	Score    float64
	Fallback bool
}

// SelectBest returns the highest-scoring objective. Ties keep the first one encountered.
// An empty list selects fallback.
func SelectBest(objectives []model.Objective, fallback string) Selection {
	if len(objectives) == 0 {
		return Selection{ID: fallback, Fallback: true}
	}
	best := Selection{ID: objectives[0].ID, Score: Score(objectives[0])}
	for _, o := range objectives[1:] {
		if s := Score(o); s > best.Score {
			best = Selection{ID: o.ID, Score: s}
		}
	}
	return best
}
