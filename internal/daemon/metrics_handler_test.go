package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/simonsavoca/bitburner/internal/model"
)

func newTestMetricsHandler(t *testing.T) *MetricsHandler {
	t.Helper()
	logger, _ := testLogger()
	return NewMetricsHandler(t.TempDir(), epoch, logger, NewLevelVar(LogLevelDebug))
}

func sampleStatus() model.Status {
	p := Partition(18)
	return model.Status{
		Mode:          model.ModeBatch,
		Phase:         model.PhaseWaiting,
		ResumePhase:   model.PhaseBatching,
		Target:        "joesguns",
		Iteration:     4,
		FleetNodes:    3,
		FreeThreads:   0,
		LastPartition: &p,
		LastRound: &model.RoundSummary{
			Kinds:     []model.OpKind{model.KindExtract, model.KindConvergePenalty, model.KindConvergeYield, model.KindConvergePenalty},
			Requested: 16,
			Placed:    15,
			Failures:  1,
			Wait:      3 * time.Second,
		},
		UpdatedAt: epoch.Add(time.Minute),
	}
}

func TestMetricsHandler_UpdateMetrics(t *testing.T) {
	mh := newTestMetricsHandler(t)
	counters := model.MetricsCounters{Iterations: 4, Batches: 2, SkippedBatches: 1, ThreadsPlaced: 31}

	if err := mh.UpdateMetrics(sampleStatus(), counters, epoch.Add(2*time.Minute)); err != nil {
		t.Fatalf("UpdateMetrics: %v", err)
	}

	data, err := os.ReadFile(mh.MetricsPath())
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	var m model.Metrics
	if err := yamlv3.Unmarshal(data, &m); err != nil {
		t.Fatalf("parse metrics: %v", err)
	}
	if m.SchemaVersion != 1 || m.FileType != "state_metrics" {
		t.Errorf("header: got %d/%q", m.SchemaVersion, m.FileType)
	}
	if m.Target != "joesguns" || m.Phase != model.PhaseWaiting {
		t.Errorf("target/phase: got %q/%q", m.Target, m.Phase)
	}
	if m.Counters != counters {
		t.Errorf("counters: got %+v, want %+v", m.Counters, counters)
	}
	if m.LastPartition == nil || m.LastPartition.Yield != 7 {
		t.Errorf("last partition: got %+v", m.LastPartition)
	}
	if m.DaemonHeartbeat == nil || *m.DaemonHeartbeat != "2026-01-01T00:02:00Z" {
		t.Errorf("heartbeat: got %v", m.DaemonHeartbeat)
	}
	if m.StartedAt != "2026-01-01T00:00:00Z" {
		t.Errorf("started_at: got %q", m.StartedAt)
	}
}

func TestMetricsHandler_UpdateMetricsOverwrites(t *testing.T) {
	mh := newTestMetricsHandler(t)

	if err := mh.UpdateMetrics(sampleStatus(), model.MetricsCounters{Batches: 9}, epoch); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := mh.UpdateMetrics(model.Status{Phase: model.PhaseDiscovering}, model.MetricsCounters{}, epoch); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(mh.MetricsPath())
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if strings.Contains(string(data), "last_partition") {
		t.Errorf("stale partition survived rewrite:\n%s", data)
	}
	if !strings.Contains(string(data), "batches: 0") {
		t.Errorf("counters were not reset:\n%s", data)
	}
}

func TestMetricsHandler_UpdateDashboard(t *testing.T) {
	mh := newTestMetricsHandler(t)
	counters := model.MetricsCounters{PenaltyRounds: 12, YieldRounds: 4, FallbackSelections: 1}

	if err := mh.UpdateDashboard(sampleStatus(), counters, epoch); err != nil {
		t.Fatalf("UpdateDashboard: %v", err)
	}
	data, err := os.ReadFile(mh.DashboardPath())
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	content := string(data)

	for _, want := range []string{
		"# hwgw Dashboard",
		"| phase | waiting (after batching) |",
		"| target | joesguns |",
		"| 3 | 3 | 7 | 3 | 2 |",
		"- kinds: HWGW",
		"- placed: 15 / 16",
		"| penalty rounds | 12 |",
		"| fallback selections | 1 |",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("dashboard missing %q:\n%s", want, content)
		}
	}
}

func TestMetricsHandler_DashboardBeforeFirstBatch(t *testing.T) {
	mh := newTestMetricsHandler(t)

	if err := mh.UpdateDashboard(model.Status{Phase: model.PhaseDiscovering}, model.MetricsCounters{}, epoch); err != nil {
		t.Fatalf("UpdateDashboard: %v", err)
	}
	data, err := os.ReadFile(mh.DashboardPath())
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	content := string(data)
	for _, want := range []string{"| target | - |", "_No batch yet_", "_No round yet_"} {
		if !strings.Contains(content, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestMetricsHandler_RefreshLogsFailures(t *testing.T) {
	dir := t.TempDir()
	// a file where the state directory should be makes the metrics write fail
	if err := os.WriteFile(filepath.Join(dir, "state"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	logger, buf := testLogger()
	mh := NewMetricsHandler(dir, epoch, logger, NewLevelVar(LogLevelInfo))

	mh.Refresh(sampleStatus(), model.MetricsCounters{}, epoch)

	if !strings.Contains(buf.String(), "WARN metrics: write metrics") {
		t.Errorf("expected warning, got %q", buf.String())
	}
	if _, err := os.Stat(mh.DashboardPath()); err != nil {
		t.Errorf("dashboard should still be written: %v", err)
	}
}
