package host

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simonsavoca/bitburner/internal/clock"
	"github.com/simonsavoca/bitburner/internal/model"
)

// Per-thread effects applied when a placement completes.
const (
	weakenPerThread       = 0.05
	growSecurityPerThread = 0.004
	hackSecurityPerThread = 0.002
	maxSecurity           = 100

	growTimeFactor   = 3.2
	weakenTimeFactor = 4.0

	defaultHackTime     = 4 * time.Second
	defaultHackFraction = 0.002
	defaultGrowth       = 0.03
)

// ServerSpec describes one server of a simulated world.
type ServerSpec struct {
	ID            string
	RAM           float64
	Reserved      float64 // RAM held by work the orchestrator does not own
	Access        bool
	Links         []string
	MaxMoney      float64
	Money         float64
	MinSecurity   float64
	Security      float64
	RequiredLevel int
	Ports         int
	Growth        float64 // money multiplier per grow thread, e.g. 0.03
	HackTime      time.Duration
	HackFraction  float64 // share of money one extract thread removes
}

// World is a complete simulated network.
type World struct {
	Level   int
	Openers []string
	Servers []ServerSpec
}

type simServer struct {
	spec     ServerSpec
	access   bool
	opened   map[string]bool
	money    float64
	security float64
	links    []string
}

type placement struct {
	handle  PlacementHandle
	kind    model.OpKind
	node    string
	target  string
	threads int
	ram     float64
	end     time.Time
}

// Sim is a deterministic in-memory WorkerHost. Placements take effect lazily: every
// query first settles the placements whose duration has elapsed on the shared clock.
type Sim struct {
	mu         sync.Mutex
	clock      clock.Clock
	table      model.OpTable
	level      int
	openers    []string
	servers    map[string]*simServer
	active     []*placement
	extracted  float64
	failScan   map[string]bool
	failLaunch map[string]bool
}

// NewSim builds a host from w. Links are made symmetric.
func NewSim(w World, clk clock.Clock, table model.OpTable) *Sim {
	s := &Sim{
		clock:      clk,
		table:      table,
		level:      w.Level,
		openers:    append([]string(nil), w.Openers...),
		servers:    make(map[string]*simServer, len(w.Servers)),
		failScan:   make(map[string]bool),
		failLaunch: make(map[string]bool),
	}
	for _, spec := range w.Servers {
		if spec.HackTime <= 0 {
			spec.HackTime = defaultHackTime
		}
		if spec.HackFraction <= 0 {
			spec.HackFraction = defaultHackFraction
		}
		if spec.Growth <= 0 {
			spec.Growth = defaultGrowth
		}
		if spec.Security < spec.MinSecurity {
			spec.Security = spec.MinSecurity
		}
		s.servers[spec.ID] = &simServer{
			spec:     spec,
			access:   spec.Access,
			opened:   make(map[string]bool),
			money:    math.Min(spec.Money, spec.MaxMoney),
			security: spec.Security,
		}
	}
	for _, spec := range w.Servers {
		for _, link := range spec.Links {
			s.link(spec.ID, link)
		}
	}
	return s
}

func (s *Sim) link(a, b string) {
	sa, okA := s.servers[a]
	sb, okB := s.servers[b]
	if !okA || !okB || a == b {
		return
	}
	if !slices.Contains(sa.links, b) {
		sa.links = append(sa.links, b)
	}
	if !slices.Contains(sb.links, a) {
		sb.links = append(sb.links, a)
	}
}

// AddLink connects two existing servers, growing the visible graph.
func (s *Sim) AddLink(a, b string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.link(a, b)
}

// SetLevel changes the player's access level.
func (s *Sim) SetLevel(level int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
}

// SetReserved changes the RAM held on a node by work outside the orchestrator.
func (s *Sim) SetReserved(nodeID string, ram float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if srv, ok := s.servers[nodeID]; ok {
		srv.spec.Reserved = ram
	}
}

// FailNeighborQuery makes ListVisibleNeighbors fail for nodeID.
func (s *Sim) FailNeighborQuery(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failScan[nodeID] = true
}

// FailLaunches makes every Launch on nodeID fail.
func (s *Sim) FailLaunches(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLaunch[nodeID] = true
}

// Extracted is the total money removed by completed extract placements.
func (s *Sim) Extracted() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	return s.extracted
}

// Active lists placements that have not completed or been terminated.
func (s *Sim) Active() []model.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	out := make([]model.Assignment, 0, len(s.active))
	for _, p := range s.active {
		out = append(out, model.Assignment{
			Kind:     p.kind,
			TargetID: p.target,
			NodeID:   p.node,
			Threads:  p.threads,
			Handle:   string(p.handle),
		})
	}
	return out
}

func (s *Sim) ListVisibleNeighbors(nodeID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[nodeID]
	if !ok {
		return nil, fmt.Errorf("scan %s: %w", nodeID, ErrUnknownNode)
	}
	if s.failScan[nodeID] {
		return nil, fmt.Errorf("scan %s: query failed", nodeID)
	}
	return append([]string(nil), srv.links...), nil
}

func (s *Sim) HasAccess(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[nodeID]
	return ok && srv.access
}

func (s *Sim) Capacity(nodeID string) (model.Capacity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	srv, ok := s.servers[nodeID]
	if !ok {
		return model.Capacity{}, fmt.Errorf("capacity %s: %w", nodeID, ErrUnknownNode)
	}
	return model.Capacity{Max: srv.spec.RAM, Used: s.usedRAM(srv)}, nil
}

func (s *Sim) usedRAM(srv *simServer) float64 {
	used := srv.spec.Reserved
	for _, p := range s.active {
		if p.node == srv.spec.ID {
			used += p.ram
		}
	}
	return used
}

func (s *Sim) ObjectiveState(id string) (model.ObjectiveState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	srv, ok := s.servers[id]
	if !ok {
		return model.ObjectiveState{}, fmt.Errorf("objective %s: %w", id, ErrUnknownNode)
	}
	return model.ObjectiveState{
		MaxYield:       srv.spec.MaxMoney,
		CurrentYield:   srv.money,
		MinPenalty:     srv.spec.MinSecurity,
		CurrentPenalty: srv.security,
		RequiredLevel:  srv.spec.RequiredLevel,
	}, nil
}

func (s *Sim) AccessLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

func (s *Sim) EstimateDuration(kind model.OpKind, id string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	srv, ok := s.servers[id]
	if !ok {
		return 0, fmt.Errorf("estimate %s: %w", id, ErrUnknownNode)
	}
	return s.duration(kind, srv)
}

func (s *Sim) duration(kind model.OpKind, srv *simServer) (time.Duration, error) {
	base := float64(srv.spec.HackTime) * (1 + (srv.security-srv.spec.MinSecurity)/(srv.spec.MinSecurity+1))
	switch kind {
	case model.KindExtract:
		return time.Duration(base), nil
	case model.KindConvergeYield:
		return time.Duration(base * growTimeFactor), nil
	case model.KindConvergePenalty:
		return time.Duration(base * weakenTimeFactor), nil
	}
	return 0, fmt.Errorf("estimate %s: %w", kind, ErrInvalidKind)
}

func (s *Sim) SuccessChance(id string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settle()
	srv, ok := s.servers[id]
	if !ok {
		return 0, fmt.Errorf("chance %s: %w", id, ErrUnknownNode)
	}
	return s.chance(srv), nil
}

func (s *Sim) chance(srv *simServer) float64 {
	skill := 1.75 * float64(s.level)
	if skill <= 0 {
		return 0
	}
	c := (skill - float64(srv.spec.RequiredLevel)) / skill * (maxSecurity - srv.security) / maxSecurity
	return math.Max(0, math.Min(1, c))
}

func (s *Sim) Launch(kind model.OpKind, nodeID string, threads int, targetID string) (PlacementHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !kind.Valid() {
		return "", fmt.Errorf("launch on %s: %w", nodeID, ErrInvalidKind)
	}
	if threads <= 0 {
		return "", fmt.Errorf("launch on %s: %w", nodeID, ErrInvalidThreads)
	}
	s.settle()
	node, ok := s.servers[nodeID]
	if !ok {
		return "", fmt.Errorf("launch on %s: %w", nodeID, ErrUnknownNode)
	}
	if !node.access {
		return "", fmt.Errorf("launch on %s: %w", nodeID, ErrNoAccess)
	}
	if s.failLaunch[nodeID] {
		return "", fmt.Errorf("launch on %s: exec refused", nodeID)
	}
	target, ok := s.servers[targetID]
	if !ok {
		return "", fmt.Errorf("launch target %s: %w", targetID, ErrUnknownNode)
	}
	ram := float64(threads) * s.table.UnitCost(kind)
	if free := node.spec.RAM - s.usedRAM(node); ram > free+1e-9 {
		return "", fmt.Errorf("launch %d threads on %s (need %.2f, free %.2f): %w",
			threads, nodeID, ram, free, ErrInsufficientRAM)
	}
	d, err := s.duration(kind, target)
	if err != nil {
		return "", err
	}
	p := &placement{
		handle:  PlacementHandle(uuid.NewString()),
		kind:    kind,
		node:    nodeID,
		target:  targetID,
		threads: threads,
		ram:     ram,
		end:     s.clock.Now().Add(d),
	}
	s.active = append(s.active, p)
	return p.handle, nil
}

func (s *Sim) Terminate(kind model.OpKind, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[nodeID]; !ok {
		return fmt.Errorf("terminate on %s: %w", nodeID, ErrUnknownNode)
	}
	s.settle()
	kept := s.active[:0]
	for _, p := range s.active {
		if p.kind == kind && p.node == nodeID {
			continue
		}
		kept = append(kept, p)
	}
	s.active = kept
	return nil
}

// settle applies every placement whose end time has passed, in completion order.
// Callers hold s.mu.
func (s *Sim) settle() {
	now := s.clock.Now()
	var done []*placement
	kept := s.active[:0]
	for _, p := range s.active {
		if !p.end.After(now) {
			done = append(done, p)
			continue
		}
		kept = append(kept, p)
	}
	s.active = kept
	sort.SliceStable(done, func(i, j int) bool { return done[i].end.Before(done[j].end) })
	for _, p := range done {
		s.apply(p)
	}
}

func (s *Sim) apply(p *placement) {
	t, ok := s.servers[p.target]
	if !ok {
		return
	}
	n := float64(p.threads)
	switch p.kind {
	case model.KindConvergePenalty:
		t.security = math.Max(t.spec.MinSecurity, t.security-weakenPerThread*n)
	case model.KindConvergeYield:
		grown := (t.money + n) * math.Pow(1+t.spec.Growth, n)
		t.money = math.Min(t.spec.MaxMoney, grown)
		t.security = math.Min(maxSecurity, t.security+growSecurityPerThread*n)
	case model.KindExtract:
		share := math.Min(1, t.spec.HackFraction*n)
		stolen := t.money * share * s.chance(t)
		t.money -= stolen
		s.extracted += stolen
		t.security = math.Min(maxSecurity, t.security+hackSecurityPerThread*n)
	}
}

func (s *Sim) PortsRequired(nodeID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[nodeID]
	if !ok {
		return 0, fmt.Errorf("ports %s: %w", nodeID, ErrUnknownNode)
	}
	return srv.spec.Ports, nil
}

func (s *Sim) Openers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.openers...)
}

func (s *Sim) OpenPort(opener, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[nodeID]
	if !ok {
		return fmt.Errorf("open port on %s: %w", nodeID, ErrUnknownNode)
	}
	if !slices.Contains(s.openers, opener) {
		return fmt.Errorf("open port on %s: opener %s not available", nodeID, opener)
	}
	srv.opened[opener] = true
	return nil
}

func (s *Sim) Nuke(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	srv, ok := s.servers[nodeID]
	if !ok {
		return fmt.Errorf("nuke %s: %w", nodeID, ErrUnknownNode)
	}
	if len(srv.opened) < srv.spec.Ports {
		return fmt.Errorf("nuke %s: %d of %d ports open", nodeID, len(srv.opened), srv.spec.Ports)
	}
	srv.access = true
	return nil
}
