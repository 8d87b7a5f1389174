package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/simonsavoca/bitburner/internal/clock"
	"github.com/simonsavoca/bitburner/internal/host"
	"github.com/simonsavoca/bitburner/internal/model"
)

func TestNextPrepareStep(t *testing.T) {
	cfg := model.DefaultConfig().Orchestrator

	state := func(yield, penalty float64) model.ObjectiveState {
		return model.ObjectiveState{MaxYield: 1000, CurrentYield: yield, MinPenalty: 5, CurrentPenalty: penalty}
	}

	tests := []struct {
		name string
		st   model.ObjectiveState
		last PrepareStep
		want PrepareStep
	}{
		{"high penalty secures first", state(100, 12), StepNone, StepSecure},
		{"low yield grows once secure", state(100, 5), StepNone, StepGrow},
		{"converged target is ready", state(995, 5), StepNone, StepReady},
		{"securing continues", state(100, 5.5), StepSecure, StepSecure},
		{"growth that drifted is corrected", state(400, 6.5), StepGrow, StepCorrect},
		{"growth continues under drift limit", state(400, 5.5), StepGrow, StepGrow},
		{"grown target still secured", state(1000, 5.5), StepGrow, StepSecure},
		{"correction resumes growth", state(400, 5), StepCorrect, StepGrow},
		{"correction can finish", state(1000, 5), StepCorrect, StepReady},
		{"growth favoured over residual penalty", state(400, 5.9), StepCorrect, StepGrow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextPrepareStep(cfg, tt.st, tt.last))
		})
	}
}

func TestNextPrepareStep_PenaltyToleranceIsInclusive(t *testing.T) {
	cfg := model.DefaultConfig().Orchestrator
	st := model.ObjectiveState{MaxYield: 10, CurrentYield: 10, MinPenalty: 0, CurrentPenalty: 0.1}

	assert.Equal(t, StepReady, NextPrepareStep(cfg, st, StepNone))
}

func TestPrepareStep_KindAndPhase(t *testing.T) {
	assert.Equal(t, model.KindConvergePenalty, StepSecure.Kind())
	assert.Equal(t, model.KindConvergeYield, StepGrow.Kind())
	assert.Equal(t, model.KindConvergePenalty, StepCorrect.Kind())
	assert.Equal(t, model.PhaseSecuring, StepSecure.Phase())
	assert.Equal(t, model.PhaseGrowing, StepGrow.Phase())
	assert.Equal(t, model.PhaseSecuring, StepCorrect.Phase())
	assert.Equal(t, "correct", StepCorrect.String())
}

func TestPreparer_Round(t *testing.T) {
	sim := newDispatchSim(t)
	logger, _ := testLogger()
	level := NewLevelVar(LogLevelDebug)
	p := NewPreparer(sim, NewDispatcher(sim, testTable(), logger, level), logger, level)
	cfg := model.DefaultConfig().Orchestrator

	res := p.Round(cfg, StepGrow, "tgt", []string{"home", "w1", "w2"})

	assert.Equal(t, model.KindConvergeYield, res.Kind)
	assert.Equal(t, 10, res.Dispatch.Requested, "every free thread of the fleet")
	assert.Equal(t, 10, res.Dispatch.Placed)
	// grow takes 3.2x the 1s base at minimum penalty
	assert.Equal(t, 3200*time.Millisecond+time.Second, res.Wait)
}

func TestPreparer_RoundWithoutCapacity(t *testing.T) {
	w := host.World{
		Servers: []host.ServerSpec{
			{ID: "home", RAM: 1, Access: true},
			{ID: "tgt", MaxMoney: 10, MinSecurity: 1, Security: 3},
		},
	}
	sim := host.NewSim(w, clock.NewFake(epoch), testTable())
	logger, buf := testLogger()
	level := NewLevelVar(LogLevelInfo)
	p := NewPreparer(sim, NewDispatcher(sim, testTable(), logger, level), logger, level)

	res := p.Round(model.DefaultConfig().Orchestrator, StepSecure, "tgt", []string{"home"})

	assert.Zero(t, res.Dispatch.Placed)
	assert.Greater(t, res.Wait, time.Second, "the caller still waits before rechecking")
	assert.Contains(t, buf.String(), "insufficient_capacity")
}

func TestSimpleAction(t *testing.T) {
	cfg := model.DefaultConfig().Orchestrator.Simple
	tests := []struct {
		name    string
		yield   float64
		penalty float64
		want    model.OpKind
	}{
		{"penalty above offset", 1000, 10.5, model.KindConvergePenalty},
		{"penalty at offset tolerated", 100, 10, model.KindConvergeYield},
		{"yield under fraction", 700, 6, model.KindConvergeYield},
		{"ready to extract", 750, 6, model.KindExtract},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := model.ObjectiveState{MaxYield: 1000, CurrentYield: tt.yield, MinPenalty: 5, CurrentPenalty: tt.penalty}
			assert.Equal(t, tt.want, SimpleAction(cfg, st))
		})
	}
}

func TestSimpleHandler_ClearsFleetFirst(t *testing.T) {
	sim := newDispatchSim(t)
	logger, _ := testLogger()
	level := NewLevelVar(LogLevelDebug)
	d := NewDispatcher(sim, testTable(), logger, level)
	s := NewSimpleHandler(sim, d, logger, level)
	nodes := []string{"home", "w1", "w2"}

	d.Dispatch(model.KindConvergeYield, "tgt", nodes, 6)

	res := s.Run(model.DefaultConfig().Orchestrator, model.KindExtract, "tgt", nodes)

	assert.Equal(t, 10, res.Dispatch.Placed)
	for _, a := range sim.Active() {
		assert.Equal(t, model.KindExtract, a.Kind)
	}
	assert.Equal(t, time.Second+time.Second, res.Wait)
}
