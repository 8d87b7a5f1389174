package daemon

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simonsavoca/bitburner/internal/clock"
	"github.com/simonsavoca/bitburner/internal/host"
	"github.com/simonsavoca/bitburner/internal/lock"
	"github.com/simonsavoca/bitburner/internal/model"
	"github.com/simonsavoca/bitburner/internal/uds"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LogLevelDebug},
		{"DEBUG", LogLevelDebug},
		{"info", LogLevelInfo},
		{"warn", LogLevelWarn},
		{"warning", LogLevelWarn},
		{"error", LogLevelError},
		{"unknown", LogLevelInfo},
		{"", LogLevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLogLevel(tt.input)
			if got != tt.expected {
				t.Errorf("parseLogLevel(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLogLine_RespectsThreshold(t *testing.T) {
	logger, buf := testLogger()
	level := NewLevelVar(LogLevelWarn)

	logLine(logger, level, LogLevelInfo, "test", "hidden")
	assert.Empty(t, buf.String())

	logLine(logger, level, LogLevelError, "test", "shown n=%d", 3)
	assert.Contains(t, buf.String(), "ERROR test: shown n=3")

	level.Set(LogLevelDebug)
	logLine(logger, level, LogLevelDebug, "test", "now visible")
	assert.Contains(t, buf.String(), "DEBUG test: now visible")
}

// shortStateDir keeps the socket path under the platform limit.
func shortStateDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "hwgw-d-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func newTestDaemon(t *testing.T, stateDir string) *Daemon {
	t.Helper()
	clk := clock.NewScaled(1000)
	sim := host.NewSim(controllerWorld(1000, 5), clk, testTable())
	cfg := model.Config{
		Daemon:  model.DaemonConfig{ShutdownTimeoutSec: 5, StatusIntervalSec: 1},
		Logging: model.LoggingConfig{Level: "info"},
	}
	return newDaemon(stateDir, cfg, sim, clk, io.Discard, nil)
}

func TestNewDaemon(t *testing.T) {
	dir := shortStateDir(t)
	d := newTestDaemon(t, dir)

	assert.Equal(t, dir, d.stateDir)
	assert.Equal(t, LogLevelInfo, d.logLevel.Level())
	assert.Equal(t, model.ModeBatch, d.config.Orchestrator.Mode, "defaults applied")

	st := d.Status()
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, model.PhaseDiscovering, st.Status.Phase)
}

func TestDaemonShutdownIdempotent(t *testing.T) {
	d := newTestDaemon(t, shortStateDir(t))

	d.Shutdown()
	d.Shutdown()
	assert.Error(t, d.ctx.Err())
}

func TestDaemon_RunServesAndShutsDown(t *testing.T) {
	dir := shortStateDir(t)
	d := newTestDaemon(t, dir)

	done := make(chan error, 1)
	go func() { done <- d.Run() }()

	client := uds.NewClient(filepath.Join(dir, uds.DefaultSocketName), time.Second)
	require.Eventually(t, func() bool {
		return client.Call("ping", nil, nil) == nil
	}, 5*time.Second, 20*time.Millisecond)

	// the controller runs at 1000x, so batches accumulate quickly
	require.Eventually(t, func() bool {
		var st model.DaemonStatus
		if err := client.Call("status", nil, &st); err != nil {
			return false
		}
		return st.Counters.Batches > 0 && st.Status.Target == "tgt"
	}, 5*time.Second, 20*time.Millisecond)

	second := newTestDaemon(t, dir)
	err := second.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, lock.ErrLocked))

	require.NoError(t, client.Call("shutdown", nil, nil))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}

	_, err = os.Stat(filepath.Join(dir, uds.DefaultSocketName))
	assert.True(t, os.IsNotExist(err), "socket removed")
	_, err = os.Stat(filepath.Join(dir, "locks", "daemon.lock"))
	assert.True(t, os.IsNotExist(err), "lock removed")
	_, err = os.Stat(filepath.Join(dir, "state", "metrics.yaml"))
	assert.NoError(t, err, "final metrics written")
}

func TestDaemon_ReloadsConfig(t *testing.T) {
	dir := shortStateDir(t)
	d := newTestDaemon(t, dir)

	done := make(chan error, 1)
	go func() { done <- d.Run() }()
	t.Cleanup(func() {
		d.Shutdown()
		<-done
	})

	client := uds.NewClient(filepath.Join(dir, uds.DefaultSocketName), time.Second)
	require.Eventually(t, func() bool {
		return client.Call("ping", nil, nil) == nil
	}, 5*time.Second, 20*time.Millisecond)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("orchestrator:\n  mode: simple\nlogging:\n  level: debug\n"), 0644))

	require.Eventually(t, func() bool {
		return d.controller.config.Load().Mode == model.ModeSimple && d.logLevel.Level() == LogLevelDebug
	}, 5*time.Second, 20*time.Millisecond)

	// an unparsable file keeps the running configuration
	require.NoError(t, os.WriteFile(cfgPath, []byte("orchestrator: [\n"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, model.ModeSimple, d.controller.config.Load().Mode)

	// so does an unknown mode
	require.NoError(t, os.WriteFile(cfgPath, []byte("orchestrator:\n  mode: Batch\n"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, model.ModeSimple, d.controller.config.Load().Mode)
	assert.Equal(t, LogLevelDebug, d.logLevel.Level())
}

func TestNew_RejectsUnknownMode(t *testing.T) {
	cfg := model.Config{Orchestrator: model.OrchestratorConfig{Mode: "turbo"}}
	_, err := New(shortStateDir(t), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orchestrator.mode")
}
