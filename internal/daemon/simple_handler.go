package daemon

import (
	"log"
	"time"

	"github.com/simonsavoca/bitburner/internal/host"
	"github.com/simonsavoca/bitburner/internal/model"
)

// SimpleAction picks the single operation the one-target mode runs next.
func SimpleAction(cfg model.SimpleConfig, st model.ObjectiveState) model.OpKind {
	switch {
	case st.CurrentPenalty > st.MinPenalty+cfg.PenaltyOffset:
		return model.KindConvergePenalty
	case st.CurrentYield < st.MaxYield*cfg.YieldFraction:
		return model.KindConvergeYield
	default:
		return model.KindExtract
	}
}

// SimplePhase is the controller phase a simple-mode action runs in.
func SimplePhase(kind model.OpKind) model.Phase {
	switch kind {
	case model.KindConvergePenalty:
		return model.PhaseSecuring
	case model.KindConvergeYield:
		return model.PhaseGrowing
	default:
		return model.PhaseExtracting
	}
}

// SimpleHandler runs the one-action-per-iteration mode: the whole fleet works one kind.
type SimpleHandler struct {
	host       host.WorkerHost
	dispatcher *Dispatcher
	logger     *log.Logger
	logLevel   *LevelVar
}

// NewSimpleHandler creates a new SimpleHandler.
func NewSimpleHandler(h host.WorkerHost, d *Dispatcher, logger *log.Logger, logLevel *LevelVar) *SimpleHandler {
	return &SimpleHandler{host: h, dispatcher: d, logger: logger, logLevel: logLevel}
}

// Run clears every kind from the fleet, then deploys all free threads on kind.
func (s *SimpleHandler) Run(cfg model.OrchestratorConfig, kind model.OpKind, targetID string, nodes []string) RoundResult {
	s.dispatcher.TerminateAll(model.AllKinds, nodes)

	res := RoundResult{Kind: kind}
	d, err := s.host.EstimateDuration(kind, targetID)
	if err != nil {
		s.log(LogLevelWarn, "estimate_failed kind=%s target=%s error=%v", kind, targetID, err)
		d = 0
	}
	res.Wait = d + time.Duration(cfg.Simple.BufferMs)*time.Millisecond

	budget := s.dispatcher.FleetFree(kind, nodes)
	res.Dispatch = s.dispatcher.Dispatch(kind, targetID, nodes, budget)
	if res.Dispatch.Placed == 0 {
		s.log(LogLevelWarn, "insufficient_capacity kind=%s target=%s", kind, targetID)
	} else {
		s.log(LogLevelInfo, "action kind=%s target=%s threads=%d nodes=%d wait=%s",
			kind, targetID, res.Dispatch.Placed, len(res.Dispatch.Assignments), res.Wait)
	}
	return res
}

func (s *SimpleHandler) log(level LogLevel, format string, args ...any) {
	logLine(s.logger, s.logLevel, level, "simple", format, args...)
}
