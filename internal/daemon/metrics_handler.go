package daemon

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/simonsavoca/bitburner/internal/model"
	yamlutil "github.com/simonsavoca/bitburner/internal/yaml"
)

// MetricsHandler generates metrics and dashboard files. Both describe only the current
// process: nothing is read back on start.
type MetricsHandler struct {
	stateDir  string
	startedAt time.Time
	logger    *log.Logger
	logLevel  *LevelVar
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(stateDir string, startedAt time.Time, logger *log.Logger, logLevel *LevelVar) *MetricsHandler {
	return &MetricsHandler{
		stateDir:  stateDir,
		startedAt: startedAt,
		logger:    logger,
		logLevel:  logLevel,
	}
}

// MetricsPath is where UpdateMetrics writes.
func (mh *MetricsHandler) MetricsPath() string {
	return filepath.Join(mh.stateDir, "state", "metrics.yaml")
}

// DashboardPath is where UpdateDashboard writes.
func (mh *MetricsHandler) DashboardPath() string {
	return filepath.Join(mh.stateDir, "dashboard.md")
}

// UpdateMetrics writes state/metrics.yaml from the current status and counters.
func (mh *MetricsHandler) UpdateMetrics(st model.Status, counters model.MetricsCounters, now time.Time) error {
	heartbeat := now.UTC().Format(time.RFC3339)
	updated := st.UpdatedAt.UTC().Format(time.RFC3339)
	m := model.Metrics{
		SchemaVersion:   1,
		FileType:        "state_metrics",
		StartedAt:       mh.startedAt.UTC().Format(time.RFC3339),
		Phase:           st.Phase,
		Target:          st.Target,
		FleetNodes:      st.FleetNodes,
		FreeThreads:     st.FreeThreads,
		LastPartition:   st.LastPartition,
		Counters:        counters,
		DaemonHeartbeat: &heartbeat,
		UpdatedAt:       &updated,
	}
	if err := yamlutil.AtomicWrite(mh.MetricsPath(), m); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// UpdateDashboard writes a markdown summary to dashboard.md.
func (mh *MetricsHandler) UpdateDashboard(st model.Status, counters model.MetricsCounters, now time.Time) error {
	var sb strings.Builder
	sb.WriteString("# hwgw Dashboard\n\n")
	sb.WriteString(fmt.Sprintf("Updated: %s\n\n", now.UTC().Format(time.RFC3339)))

	sb.WriteString("## Controller\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| mode | %s |\n", st.Mode))
	phase := string(st.Phase)
	if st.ResumePhase != "" {
		phase = fmt.Sprintf("%s (after %s)", st.Phase, st.ResumePhase)
	}
	sb.WriteString(fmt.Sprintf("| phase | %s |\n", phase))
	sb.WriteString(fmt.Sprintf("| target | %s |\n", orDash(st.Target)))
	sb.WriteString(fmt.Sprintf("| iteration | %d |\n", st.Iteration))
	sb.WriteString(fmt.Sprintf("| fleet nodes | %d |\n", st.FleetNodes))
	sb.WriteString(fmt.Sprintf("| free threads | %d |\n", st.FreeThreads))

	sb.WriteString("\n## Last Batch\n\n")
	if p := st.LastPartition; p != nil {
		sb.WriteString("| H | W | G | W | unused |\n")
		sb.WriteString("|--:|--:|--:|--:|-------:|\n")
		sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %d |\n", p.Extract, p.Penalty1, p.Yield, p.Penalty2, p.Remainder()))
	} else {
		sb.WriteString("_No batch yet_\n")
	}

	sb.WriteString("\n## Last Round\n\n")
	if r := st.LastRound; r != nil {
		letters := make([]string, 0, len(r.Kinds))
		for _, k := range r.Kinds {
			letters = append(letters, k.Letter())
		}
		sb.WriteString(fmt.Sprintf("- kinds: %s\n", strings.Join(letters, "")))
		sb.WriteString(fmt.Sprintf("- placed: %d / %d\n", r.Placed, r.Requested))
		sb.WriteString(fmt.Sprintf("- failures: %d\n", r.Failures))
		sb.WriteString(fmt.Sprintf("- wait: %s\n", r.Wait))
	} else {
		sb.WriteString("_No round yet_\n")
	}

	sb.WriteString("\n## Counters\n\n")
	sb.WriteString("| Counter | Value |\n")
	sb.WriteString("|---------|------:|\n")
	rows := []struct {
		name  string
		value int
	}{
		{"iterations", counters.Iterations},
		{"penalty rounds", counters.PenaltyRounds},
		{"yield rounds", counters.YieldRounds},
		{"corrective rounds", counters.CorrectiveRounds},
		{"batches", counters.Batches},
		{"skipped batches", counters.SkippedBatches},
		{"simple actions", counters.SimpleActions},
		{"threads placed", counters.ThreadsPlaced},
		{"placement failures", counters.PlacementFailures},
		{"empty rounds", counters.EmptyRounds},
		{"fallback selections", counters.FallbackSelections},
		{"discovery gaps", counters.DiscoveryGaps},
		{"nodes rooted", counters.NodesRooted},
	}
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", r.name, r.value))
	}

	if err := yamlutil.AtomicWriteText(mh.DashboardPath(), sb.String()); err != nil {
		return fmt.Errorf("write dashboard: %w", err)
	}
	return nil
}

// Refresh writes both files, logging instead of returning failures.
func (mh *MetricsHandler) Refresh(st model.Status, counters model.MetricsCounters, now time.Time) {
	if err := mh.UpdateMetrics(st, counters, now); err != nil {
		mh.log(LogLevelWarn, "%v", err)
	}
	if err := mh.UpdateDashboard(st, counters, now); err != nil {
		mh.log(LogLevelWarn, "%v", err)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (mh *MetricsHandler) log(level LogLevel, format string, args ...any) {
	logLine(mh.logger, mh.logLevel, level, "metrics", format, args...)
}
