package daemon

import (
	"log"
	"time"

	"github.com/simonsavoca/bitburner/internal/host"
	"github.com/simonsavoca/bitburner/internal/model"
)

// PrepareStep is one decision of target preparation.
type PrepareStep int

const (
	StepNone    PrepareStep = iota
	StepSecure              // penalty above tolerance
	StepGrow                // yield below target
	StepCorrect             // penalty drifted during growth
	StepReady               // both metrics converged
)

func (s PrepareStep) String() string {
	switch s {
	case StepSecure:
		return "secure"
	case StepGrow:
		return "grow"
	case StepCorrect:
		return "correct"
	case StepReady:
		return "ready"
	default:
		return "none"
	}
}

// Kind is the operation a preparation round deploys.
func (s PrepareStep) Kind() model.OpKind {
	if s == StepGrow {
		return model.KindConvergeYield
	}
	return model.KindConvergePenalty
}

// Phase is the controller phase a preparation round runs in.
func (s PrepareStep) Phase() model.Phase {
	if s == StepGrow {
		return model.PhaseGrowing
	}
	return model.PhaseSecuring
}

// NextPrepareStep decides what to do with a target given its fresh state and the step
// whose round just finished (StepNone on entry). Penalty is secured before growth starts.
// Once growing, growth continues ahead of the securing check, and a growth round that
// pushed penalty past the drift limit is followed by one corrective round.
func NextPrepareStep(cfg model.OrchestratorConfig, st model.ObjectiveState, last PrepareStep) PrepareStep {
	securing := st.CurrentPenalty > st.MinPenalty+cfg.PenaltyEpsilon
	growing := st.CurrentYield < st.MaxYield*cfg.YieldTargetFraction

	switch last {
	case StepGrow:
		if st.CurrentPenalty > st.MinPenalty+cfg.PenaltyDrift {
			return StepCorrect
		}
		fallthrough
	case StepCorrect:
		if growing {
			return StepGrow
		}
		if securing {
			return StepSecure
		}
		return StepReady
	}
	if securing {
		return StepSecure
	}
	if growing {
		return StepGrow
	}
	return StepReady
}

// RoundResult reports one fleet-wide deployment of a single kind.
type RoundResult struct {
	Step     PrepareStep
	Kind     model.OpKind
	Dispatch DispatchResult
	Wait     time.Duration
}

// Preparer deploys the rounds that converge a target's penalty and yield.
type Preparer struct {
	host       host.WorkerHost
	dispatcher *Dispatcher
	logger     *log.Logger
	logLevel   *LevelVar
}

// NewPreparer creates a new Preparer.
func NewPreparer(h host.WorkerHost, d *Dispatcher, logger *log.Logger, logLevel *LevelVar) *Preparer {
	return &Preparer{host: h, dispatcher: d, logger: logger, logLevel: logLevel}
}

// Round deploys every free thread of the fleet on step's kind against targetID. The
// returned wait is the kind's duration estimate plus the prepare buffer. A round that
// places nothing still returns a wait so the caller rechecks instead of spinning.
func (p *Preparer) Round(cfg model.OrchestratorConfig, step PrepareStep, targetID string, nodes []string) RoundResult {
	kind := step.Kind()
	res := RoundResult{Step: step, Kind: kind}

	d, err := p.host.EstimateDuration(kind, targetID)
	if err != nil {
		p.log(LogLevelWarn, "estimate_failed kind=%s target=%s error=%v", kind, targetID, err)
		d = 0
	}
	res.Wait = d + time.Duration(cfg.PrepareBufferMs)*time.Millisecond

	budget := p.dispatcher.FleetFree(kind, nodes)
	res.Dispatch = p.dispatcher.Dispatch(kind, targetID, nodes, budget)
	if res.Dispatch.Placed == 0 {
		p.log(LogLevelWarn, "insufficient_capacity step=%s target=%s nodes=%d", step, targetID, len(nodes))
	} else {
		p.log(LogLevelInfo, "round step=%s kind=%s target=%s threads=%d wait=%s",
			step, kind, targetID, res.Dispatch.Placed, res.Wait)
	}
	return res
}

func (p *Preparer) log(level LogLevel, format string, args ...any) {
	logLine(p.logger, p.logLevel, level, "preparer", format, args...)
}
