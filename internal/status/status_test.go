package status

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/simonsavoca/bitburner/internal/model"
	"github.com/simonsavoca/bitburner/internal/uds"
	yamlutil "github.com/simonsavoca/bitburner/internal/yaml"
)

func shortDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "hwgw-st-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestCollect_Live(t *testing.T) {
	dir := shortDir(t)
	p := model.Partition{Extract: 2, Penalty1: 2, Yield: 4, Penalty2: 2, Available: 12}
	want := model.DaemonStatus{
		PID:       4242,
		StartedAt: time.Now().Add(-time.Minute),
		Status: model.Status{
			Mode:          model.ModeBatch,
			Phase:         model.PhaseWaiting,
			ResumePhase:   model.PhaseBatching,
			Target:        "joesguns",
			FleetNodes:    5,
			LastPartition: &p,
		},
		Counters: model.MetricsCounters{Batches: 3, Iterations: 4},
	}

	srv := uds.NewServer(filepath.Join(dir, uds.DefaultSocketName), nil)
	srv.Handle("status", func(*uds.Request) *uds.Response { return uds.SuccessResponse(want) })
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Stop()

	r := Collect(dir)
	if !r.Daemon.Running || r.Daemon.PID != 4242 {
		t.Fatalf("daemon: got %+v", r.Daemon)
	}
	if r.Live == nil || r.Live.Status.Target != "joesguns" || r.Live.Counters.Batches != 3 {
		t.Fatalf("live: got %+v", r.Live)
	}

	var buf bytes.Buffer
	Print(&buf, r)
	out := buf.String()
	for _, s := range []string{
		"Daemon: running (pid 4242)",
		"Phase:        waiting (after batching)",
		"Target:       joesguns",
		"H:2 W:2 G:4 W:2 (unused 2)",
	} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
}

func TestCollect_StoppedWithMetrics(t *testing.T) {
	dir := shortDir(t)
	updated := "2026-01-01T00:00:00Z"
	m := model.Metrics{
		SchemaVersion: 1,
		FileType:      "state_metrics",
		Phase:         model.PhaseGrowing,
		Target:        "n00dles",
		Counters:      model.MetricsCounters{YieldRounds: 7},
		UpdatedAt:     &updated,
	}
	if err := yamlutil.AtomicWrite(filepath.Join(dir, "state", "metrics.yaml"), m); err != nil {
		t.Fatal(err)
	}

	r := Collect(dir)
	if r.Daemon.Running {
		t.Fatal("daemon should be reported stopped")
	}
	if r.LastKnown == nil || r.LastKnown.Counters.YieldRounds != 7 {
		t.Fatalf("last known: got %+v", r.LastKnown)
	}

	var buf bytes.Buffer
	Print(&buf, r)
	out := buf.String()
	if !strings.Contains(out, "Daemon: stopped") || !strings.Contains(out, "phase=growing target=n00dles") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "updated=2026-01-01T00:00:00Z") {
		t.Errorf("missing update time:\n%s", out)
	}
}

func TestCollect_NothingThere(t *testing.T) {
	r := Collect(shortDir(t))
	if r.Daemon.Running || r.Live != nil || r.LastKnown != nil {
		t.Fatalf("expected empty report, got %+v", r)
	}

	var buf bytes.Buffer
	Print(&buf, r)
	if strings.TrimSpace(buf.String()) != "Daemon: stopped" {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestDown_NotRunning(t *testing.T) {
	var buf bytes.Buffer
	if err := Down(shortDir(t), time.Second, &buf); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if !strings.Contains(buf.String(), "not running") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestDown_WaitsForSocketRemoval(t *testing.T) {
	dir := shortDir(t)
	srv := uds.NewServer(filepath.Join(dir, uds.DefaultSocketName), nil)
	srv.Handle("shutdown", func(*uds.Request) *uds.Response {
		go srv.Stop()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Stop()

	var buf bytes.Buffer
	if err := Down(dir, 5*time.Second, &buf); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if !strings.Contains(buf.String(), "hwgw daemon stopped.") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestDown_Timeout(t *testing.T) {
	dir := shortDir(t)
	srv := uds.NewServer(filepath.Join(dir, uds.DefaultSocketName), nil)
	srv.Handle("shutdown", func(*uds.Request) *uds.Response { return uds.SuccessResponse(nil) })
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Stop()

	var buf bytes.Buffer
	err := Down(dir, 300*time.Millisecond, &buf)
	if err == nil || !strings.Contains(err.Error(), "shutdown timeout") {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestDown_Rejected(t *testing.T) {
	dir := shortDir(t)
	srv := uds.NewServer(filepath.Join(dir, uds.DefaultSocketName), nil)
	srv.Handle("shutdown", func(*uds.Request) *uds.Response {
		return uds.ErrorResponse(uds.ErrCodeInternal, "busy")
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Stop()

	var buf bytes.Buffer
	err := Down(dir, time.Second, &buf)
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("expected rejection, got %v", err)
	}
	if strings.Contains(buf.String(), "Shutdown accepted") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}
