package daemon

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/simonsavoca/bitburner/internal/clock"
	"github.com/simonsavoca/bitburner/internal/fleet"
	"github.com/simonsavoca/bitburner/internal/host"
	"github.com/simonsavoca/bitburner/internal/model"
	"github.com/simonsavoca/bitburner/internal/target"
)

// State is the controller's position in the discover, prepare, batch cycle.
type State struct {
	Phase     model.Phase
	Resume    model.Phase // phase whose wait is running, set while waiting
	Step      PrepareStep // last preparation round deployed
	Config    model.OrchestratorConfig
	Snapshot  model.Snapshot
	Target    string
	Iteration int
}

// Fleet is the nodes work is placed on during this cycle.
func (s State) Fleet() []string { return s.Snapshot.Fleet }

// Observation carries what executing the previous Action produced. Only the fields the
// action fills are set.
type Observation struct {
	Config    *model.OrchestratorConfig
	Snapshot  *model.Snapshot
	Selection *target.Selection
	Objective *model.Objective // fresh read of the target, nil if unreadable
	Round     *RoundResult
	Batch     *BatchResult
}

type ActionKind int

const (
	ActionDiscover ActionKind = iota + 1
	ActionSelect
	ActionPrepare
	ActionBatch
	ActionSimple
	ActionWait
)

func (k ActionKind) String() string {
	switch k {
	case ActionDiscover:
		return "discover"
	case ActionSelect:
		return "select"
	case ActionPrepare:
		return "prepare"
	case ActionBatch:
		return "batch"
	case ActionSimple:
		return "simple"
	case ActionWait:
		return "wait"
	}
	return "unknown"
}

// Action is the side effect the controller must perform next.
type Action struct {
	Kind      ActionKind
	Step      PrepareStep    // ActionPrepare
	Op        model.OpKind   // ActionSimple
	Wait      time.Duration  // ActionWait
	Terminate []model.OpKind // ActionWait: kinds killed on the fleet after the wait
}

// Start is the state a controller begins in.
func Start(cfg model.OrchestratorConfig) State {
	return State{Phase: model.PhaseDiscovering, Config: cfg}
}

// Transition is the pure step function of the controller.
func Transition(s State, obs Observation) (State, Action) {
	cfg := s.Config
	switch s.Phase {
	case model.PhaseSelecting:
		if obs.Selection == nil {
			return s, Action{Kind: ActionSelect}
		}
		s.Target = obs.Selection.ID
		if obs.Objective == nil {
			return waitThen(s, model.PhaseDiscovering, ms(cfg.LoopDelayMs), nil)
		}
		if cfg.Mode == model.ModeSimple {
			kind := SimpleAction(cfg.Simple, obs.Objective.ObjectiveState)
			s.Phase = SimplePhase(kind)
			return s, Action{Kind: ActionSimple, Op: kind}
		}
		return prepareOrBatch(s, NextPrepareStep(cfg, obs.Objective.ObjectiveState, StepNone))

	case model.PhaseSecuring, model.PhaseGrowing, model.PhaseExtracting:
		if obs.Round == nil {
			return waitThen(s, model.PhaseDiscovering, ms(cfg.LoopDelayMs), nil)
		}
		if cfg.Mode == model.ModeSimple {
			return waitThen(s, model.PhaseDiscovering, obs.Round.Wait, nil)
		}
		return waitThen(s, s.Phase, obs.Round.Wait, []model.OpKind{obs.Round.Kind})

	case model.PhaseBatching:
		if obs.Batch == nil || obs.Batch.Skipped {
			wait := ms(cfg.InsufficientDelayMs)
			if obs.Batch != nil {
				wait = obs.Batch.Wait
			}
			return waitThen(s, model.PhaseDiscovering, wait, nil)
		}
		return waitThen(s, model.PhaseBatching, obs.Batch.Wait, model.AllKinds)

	case model.PhaseWaiting:
		switch s.Resume {
		case model.PhaseSecuring, model.PhaseGrowing:
			if obs.Objective == nil {
				return discover(s)
			}
			return prepareOrBatch(s, NextPrepareStep(cfg, obs.Objective.ObjectiveState, s.Step))
		case model.PhaseBatching:
			return waitThen(s, model.PhaseDiscovering, ms(cfg.LoopDelayMs), nil)
		default:
			return discover(s)
		}
	}

	// discovering
	if obs.Snapshot == nil {
		return discover(s)
	}
	if obs.Config != nil {
		s.Config = *obs.Config
	}
	s.Snapshot = *obs.Snapshot
	s.Iteration++
	s.Step = StepNone
	s.Phase = model.PhaseSelecting
	return s, Action{Kind: ActionSelect}
}

func discover(s State) (State, Action) {
	s.Phase = model.PhaseDiscovering
	s.Resume = ""
	return s, Action{Kind: ActionDiscover}
}

func waitThen(s State, resume model.Phase, d time.Duration, terminate []model.OpKind) (State, Action) {
	s.Phase = model.PhaseWaiting
	s.Resume = resume
	return s, Action{Kind: ActionWait, Wait: d, Terminate: terminate}
}

func prepareOrBatch(s State, step PrepareStep) (State, Action) {
	s.Resume = ""
	if step == StepReady {
		s.Step = StepNone
		s.Phase = model.PhaseBatching
		return s, Action{Kind: ActionBatch}
	}
	s.Step = step
	s.Phase = step.Phase()
	return s, Action{Kind: ActionPrepare, Step: step}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Controller executes the actions Transition asks for against a host.
type Controller struct {
	host       host.WorkerHost
	clock      clock.Clock
	table      model.OpTable
	dispatcher *Dispatcher
	preparer   *Preparer
	batch      *BatchScheduler
	simple     *SimpleHandler
	sweeper    *fleet.Sweeper
	logger     *log.Logger
	logLevel   *LevelVar

	config atomic.Pointer[model.OrchestratorConfig]
	status atomic.Pointer[model.Status]

	mu            sync.Mutex
	counters      model.MetricsCounters
	lastPartition *model.Partition
	lastRound     *model.RoundSummary
	lastNodes     []string

	onCycle func()
}

// NewController wires the placement components around h. cfg must already have defaults.
func NewController(h host.WorkerHost, clk clock.Clock, cfg model.Config, logger *log.Logger, logLevel *LevelVar) *Controller {
	table := model.NewOpTable(cfg.Operations.RAMCost)
	d := NewDispatcher(h, table, logger, logLevel)
	c := &Controller{
		host:       h,
		clock:      clk,
		table:      table,
		dispatcher: d,
		preparer:   NewPreparer(h, d, logger, logLevel),
		batch:      NewBatchScheduler(h, table, d, logger, logLevel),
		simple:     NewSimpleHandler(h, d, logger, logLevel),
		sweeper:    fleet.NewSweeper(time.Duration(cfg.Orchestrator.RootSweepIntervalSec) * time.Second),
		logger:     logger,
		logLevel:   logLevel,
	}
	c.SetConfig(cfg.Orchestrator)
	c.status.Store(&model.Status{Mode: cfg.Orchestrator.Mode, Phase: model.PhaseDiscovering})
	return c
}

// SetConfig replaces the orchestrator settings. The control loop adopts them at its next
// discovery.
func (c *Controller) SetConfig(cfg model.OrchestratorConfig) {
	c.config.Store(&cfg)
}

// OnCycle registers fn to run after every completed batch or simple action.
func (c *Controller) OnCycle(fn func()) {
	c.onCycle = fn
}

// Status returns the latest published status.
func (c *Controller) Status() model.Status {
	return *c.status.Load()
}

// Counters returns the counters accumulated since the controller was created.
func (c *Controller) Counters() model.MetricsCounters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// FleetView re-reads every node of the latest discovery. Unreadable nodes report zero capacity.
func (c *Controller) FleetView() []model.WorkerNode {
	c.mu.Lock()
	ids := c.lastNodes
	c.mu.Unlock()

	return fleet.ReadNodes(c.host, ids)
}

// Run drives the cycle until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	s, a := Start(*c.config.Load()), Action{Kind: ActionDiscover}
	c.log(LogLevelInfo, "controller_start mode=%s root=%s", s.Config.Mode, s.Config.Root)
	for {
		next, action, err := c.Step(ctx, s, a)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.log(LogLevelInfo, "controller_stop iteration=%d", s.Iteration)
				return nil
			}
			return err
		}
		s, a = next, action
	}
}

// Step performs a and returns the transition it leads to. Only a cancelled wait fails.
func (c *Controller) Step(ctx context.Context, s State, a Action) (State, Action, error) {
	obs, err := c.execute(ctx, s, a)
	if err != nil {
		return s, a, err
	}
	next, action := Transition(s, obs)
	c.log(LogLevelDebug, "transition from=%s to=%s action=%s target=%s", s.Phase, next.Phase, action.Kind, next.Target)
	c.publish(next)
	if c.onCycle != nil && (a.Kind == ActionBatch || a.Kind == ActionSimple) {
		c.onCycle()
	}
	return next, action, nil
}

func (c *Controller) execute(ctx context.Context, s State, a Action) (Observation, error) {
	switch a.Kind {
	case ActionDiscover:
		return c.discover(), nil

	case ActionSelect:
		sel := target.SelectBest(s.Snapshot.Objectives, s.Config.FallbackTarget)
		if sel.Fallback {
			c.count(func(m *model.MetricsCounters) { m.FallbackSelections++ })
			c.log(LogLevelInfo, "no_eligible_target fallback=%s", sel.ID)
		} else {
			c.log(LogLevelInfo, "target_selected target=%s score=%.4f candidates=%d", sel.ID, sel.Score, len(s.Snapshot.Objectives))
		}
		obs := Observation{Selection: &sel}
		c.readTarget(&obs, sel.ID)
		return obs, nil

	case ActionPrepare:
		r := c.preparer.Round(s.Config, a.Step, s.Target, s.Fleet())
		c.recordRound(r)
		c.count(func(m *model.MetricsCounters) {
			switch a.Step {
			case StepSecure:
				m.PenaltyRounds++
			case StepGrow:
				m.YieldRounds++
			case StepCorrect:
				m.CorrectiveRounds++
			}
		})
		return Observation{Round: &r}, nil

	case ActionBatch:
		b := c.batch.Run(s.Config, s.Target, s.Fleet())
		c.recordBatch(b)
		return Observation{Batch: &b}, nil

	case ActionSimple:
		r := c.simple.Run(s.Config, a.Op, s.Target, s.Fleet())
		c.recordRound(r)
		c.count(func(m *model.MetricsCounters) { m.SimpleActions++ })
		return Observation{Round: &r}, nil

	case ActionWait:
		if err := c.clock.Sleep(ctx, a.Wait); err != nil {
			return Observation{}, err
		}
		if len(a.Terminate) > 0 {
			c.dispatcher.TerminateAll(a.Terminate, s.Fleet())
		}
		var obs Observation
		if s.Resume == model.PhaseSecuring || s.Resume == model.PhaseGrowing {
			c.readTarget(&obs, s.Target)
		}
		return obs, nil
	}
	return Observation{}, nil
}

func (c *Controller) discover() Observation {
	cfg := *c.config.Load()
	now := c.clock.Now()
	snap, gaps := fleet.TakeSnapshot(c.host, cfg.Root, now)
	if len(gaps) > 0 {
		c.log(LogLevelDebug, "discovery_gap nodes=%v", gaps)
	}

	if c.sweeper.Due(now) {
		res := c.sweeper.Sweep(c.host, snap.NodeIDs(), now)
		for id, err := range res.Failures {
			c.log(LogLevelWarn, "root_failed node=%s error=%v", id, err)
		}
		if len(res.Rooted) > 0 {
			c.log(LogLevelInfo, "nodes_rooted nodes=%v", res.Rooted)
			snap, gaps = fleet.TakeSnapshot(c.host, cfg.Root, now)
		}
		c.count(func(m *model.MetricsCounters) { m.NodesRooted += len(res.Rooted) })
	}

	c.mu.Lock()
	c.lastNodes = snap.NodeIDs()
	c.counters.Iterations++
	c.counters.DiscoveryGaps += len(gaps)
	c.mu.Unlock()
	c.log(LogLevelDebug, "discovered nodes=%d fleet=%d objectives=%d", len(snap.Nodes), len(snap.Fleet), len(snap.Objectives))
	return Observation{Config: &cfg, Snapshot: &snap}
}

func (c *Controller) readTarget(obs *Observation, id string) {
	o, ok := fleet.ReadObjective(c.host, id)
	if !ok {
		c.log(LogLevelWarn, "target_unreadable target=%s", id)
		return
	}
	obs.Objective = &o
}

func (c *Controller) recordRound(r RoundResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastRound = &model.RoundSummary{
		Kinds:     []model.OpKind{r.Kind},
		Requested: r.Dispatch.Requested,
		Placed:    r.Dispatch.Placed,
		Failures:  len(r.Dispatch.Failures),
		Wait:      r.Wait,
	}
	c.counters.ThreadsPlaced += r.Dispatch.Placed
	c.counters.PlacementFailures += len(r.Dispatch.Failures)
	if r.Dispatch.Placed == 0 {
		c.counters.EmptyRounds++
	}
}

func (c *Controller) recordBatch(b BatchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := b.Partition
	c.lastPartition = &p
	if b.Skipped {
		c.counters.SkippedBatches++
		return
	}
	summary := &model.RoundSummary{Requested: p.Sum(), Wait: b.Wait}
	for _, g := range b.Groups {
		summary.Kinds = append(summary.Kinds, g.Kind)
		summary.Placed += g.Placed
		summary.Failures += len(g.Failures)
	}
	c.lastRound = summary
	c.counters.Batches++
	c.counters.ThreadsPlaced += summary.Placed
	c.counters.PlacementFailures += summary.Failures
}

func (c *Controller) count(fn func(*model.MetricsCounters)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.counters)
}

func (c *Controller) publish(s State) {
	nodes := s.Fleet()
	st := model.Status{
		Mode:        s.Config.Mode,
		Phase:       s.Phase,
		Target:      s.Target,
		Iteration:   s.Iteration,
		FleetNodes:  len(nodes),
		FreeThreads: fleet.TotalFreeThreads(fleet.ReadNodes(c.host, nodes), c.table.MaxUnitCost()),
		UpdatedAt:   c.clock.Now(),
	}
	if s.Phase == model.PhaseWaiting {
		st.ResumePhase = s.Resume
	}
	c.mu.Lock()
	st.LastPartition = c.lastPartition
	st.LastRound = c.lastRound
	c.mu.Unlock()
	c.status.Store(&st)
}

func (c *Controller) log(level LogLevel, format string, args ...any) {
	logLine(c.logger, c.logLevel, level, "controller", format, args...)
}
