package daemon

import (
	"log"
	"time"

	"github.com/simonsavoca/bitburner/internal/fleet"
	"github.com/simonsavoca/bitburner/internal/host"
	"github.com/simonsavoca/bitburner/internal/model"
)

// Partition splits total threads 20/20/40/20 across extract, penalty, yield, penalty.
// Each share is floored on its own; the remainder stays unallocated.
func Partition(total int) model.Partition {
	if total < 0 {
		total = 0
	}
	return model.Partition{
		Extract:   total * 2 / 10,
		Penalty1:  total * 2 / 10,
		Yield:     total * 4 / 10,
		Penalty2:  total * 2 / 10,
		Available: total,
	}
}

type batchGroup struct {
	kind    model.OpKind
	threads int
}

// BatchResult reports one batch attempt.
type BatchResult struct {
	Partition model.Partition
	Skipped   bool
	Groups    []DispatchResult
	Wait      time.Duration
}

// Placed is the number of threads launched across all groups.
func (b BatchResult) Placed() int {
	n := 0
	for _, g := range b.Groups {
		n += g.Placed
	}
	return n
}

// BatchScheduler deploys HWGW batches against a prepared target.
type BatchScheduler struct {
	host       host.WorkerHost
	table      model.OpTable
	dispatcher *Dispatcher
	logger     *log.Logger
	logLevel   *LevelVar
}

// NewBatchScheduler creates a new BatchScheduler.
func NewBatchScheduler(h host.WorkerHost, table model.OpTable, d *Dispatcher, logger *log.Logger, logLevel *LevelVar) *BatchScheduler {
	return &BatchScheduler{host: h, table: table, dispatcher: d, logger: logger, logLevel: logLevel}
}

// Run partitions the fleet's free threads and dispatches the four groups in order. Every
// group walks the whole fleet from the first node, so a later group fills whatever
// capacity the earlier groups left. Below cfg.MinBatchThreads, and never below four,
// nothing is deployed and the wait is the insufficient-capacity delay.
func (b *BatchScheduler) Run(cfg model.OrchestratorConfig, targetID string, nodes []string) BatchResult {
	total := fleet.TotalFreeThreads(fleet.ReadNodes(b.host, nodes), b.table.MaxUnitCost())
	res := BatchResult{Partition: Partition(total)}
	minThreads := max(cfg.MinBatchThreads, model.MinBatchFloor)
	if total < minThreads {
		res.Skipped = true
		res.Wait = time.Duration(cfg.InsufficientDelayMs) * time.Millisecond
		b.log(LogLevelWarn, "batch_skipped target=%s free_threads=%d min=%d", targetID, total, minThreads)
		return res
	}

	p := res.Partition
	groups := []batchGroup{
		{model.KindExtract, p.Extract},
		{model.KindConvergePenalty, p.Penalty1},
		{model.KindConvergeYield, p.Yield},
		{model.KindConvergePenalty, p.Penalty2},
	}
	for _, g := range groups {
		res.Groups = append(res.Groups, b.dispatcher.Dispatch(g.kind, targetID, nodes, g.threads))
	}

	d, err := b.host.EstimateDuration(model.KindExtract, targetID)
	if err != nil {
		b.log(LogLevelWarn, "estimate_failed kind=%s target=%s error=%v", model.KindExtract, targetID, err)
		d = 0
	}
	res.Wait = d + time.Duration(cfg.BatchBufferMs)*time.Millisecond

	b.log(LogLevelInfo, "batch target=%s H=%d W=%d G=%d W=%d unused=%d placed=%d wait=%s",
		targetID, p.Extract, p.Penalty1, p.Yield, p.Penalty2, p.Remainder(), res.Placed(), res.Wait)
	return res
}

func (b *BatchScheduler) log(level LogLevel, format string, args ...any) {
	logLine(b.logger, b.logLevel, level, "batch", format, args...)
}
