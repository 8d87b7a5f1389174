package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/simonsavoca/bitburner/internal/clock"
	"github.com/simonsavoca/bitburner/internal/host"
	"github.com/simonsavoca/bitburner/internal/lock"
	"github.com/simonsavoca/bitburner/internal/model"
	"github.com/simonsavoca/bitburner/internal/uds"
	yamlutil "github.com/simonsavoca/bitburner/internal/yaml"
)

const configFileName = "config.yaml"

// Daemon is the hwgw daemon process.
type Daemon struct {
	stateDir  string
	config    model.Config
	logLevel  *LevelVar
	logger    *log.Logger
	logFile   io.Closer
	startedAt time.Time

	fileLock   *lock.FileLock
	server     *uds.Server
	watcher    *fsnotify.Watcher
	controller *Controller
	metrics    *MetricsHandler

	ctx      context.Context
	cancel   context.CancelFunc
	shutdown sync.Once
}

// New creates a daemon driving the simulated host described by the configured world file.
func New(stateDir string, cfg model.Config) (*Daemon, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logPath := filepath.Join(stateDir, "logs", "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	worldPath := cfg.Host.World
	if !filepath.IsAbs(worldPath) {
		worldPath = filepath.Join(stateDir, worldPath)
	}
	world, err := host.LoadWorld(worldPath, nil)
	if err != nil {
		return nil, err
	}

	var clk clock.Clock = clock.Real{}
	if cfg.Host.TimeScale != 1 {
		clk = clock.NewScaled(cfg.Host.TimeScale)
	}
	sim := host.NewSim(world, clk, model.NewOpTable(cfg.Operations.RAMCost))

	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}
	return newDaemon(stateDir, cfg, sim, clk, logFile, logFile), nil
}

// newDaemon is the internal constructor for testing.
func newDaemon(stateDir string, cfg model.Config, h host.WorkerHost, clk clock.Clock, w io.Writer, closer io.Closer) *Daemon {
	cfg = cfg.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(w, "", 0)
	level := NewLevelVar(parseLogLevel(cfg.Logging.Level))
	startedAt := time.Now()

	d := &Daemon{
		stateDir:   stateDir,
		config:     cfg,
		logLevel:   level,
		logger:     logger,
		logFile:    closer,
		startedAt:  startedAt,
		fileLock:   lock.NewFileLock(filepath.Join(stateDir, "locks", "daemon.lock")),
		server:     uds.NewServer(filepath.Join(stateDir, uds.DefaultSocketName), logger),
		controller: NewController(h, clk, cfg, logger, level),
		metrics:    NewMetricsHandler(stateDir, startedAt, logger, level),
		ctx:        ctx,
		cancel:     cancel,
	}
	d.controller.OnCycle(d.refreshMetrics)
	return d
}

// Run starts the daemon and blocks until shutdown completes.
func (d *Daemon) Run() error {
	if err := d.fileLock.TryLock(); err != nil {
		d.closeLog()
		return fmt.Errorf("daemon lock: %w", err)
	}
	d.log(LogLevelInfo, "daemon starting pid=%d mode=%s", os.Getpid(), d.config.Orchestrator.Mode)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.cleanup()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	d.watcher = watcher
	// the directory, not the file: editors replace config.yaml by rename
	if err := watcher.Add(d.stateDir); err != nil {
		d.cleanup()
		return fmt.Errorf("watch %s: %w", d.stateDir, err)
	}

	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("start UDS server: %w", err)
	}
	d.log(LogLevelInfo, "UDS server listening on %s", filepath.Join(d.stateDir, uds.DefaultSocketName))

	g, gctx := errgroup.WithContext(d.ctx)
	g.Go(func() error { return d.controller.Run(gctx) })
	g.Go(func() error { d.configLoop(gctx); return nil })
	g.Go(func() error { d.statusLoop(gctx); return nil })
	g.Go(func() error { d.waitSignals(gctx); return nil })
	d.log(LogLevelInfo, "daemon ready")

	runErr := d.drain(g)
	if runErr != nil {
		d.log(LogLevelError, "daemon stopped with error=%v", runErr)
	}
	d.refreshMetrics()
	d.cleanup()
	return runErr
}

// drain waits for the goroutine group, bounding the wait once shutdown has begun.
func (d *Daemon) drain(g *errgroup.Group) error {
	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	select {
	case err := <-errCh:
		return err
	case <-d.ctx.Done():
	}

	timeout := time.Duration(d.config.Daemon.ShutdownTimeoutSec) * time.Second
	select {
	case err := <-errCh:
		d.log(LogLevelInfo, "all goroutines drained")
		return err
	case <-time.After(timeout):
		d.log(LogLevelWarn, "shutdown timeout after %s, some goroutines still running", timeout)
		return nil
	}
}

// registerHandlers registers UDS request handlers.
func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]string{"status": "ok"})
	})

	d.server.Handle("status", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(d.Status())
	})

	d.server.Handle("fleet", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(d.controller.FleetView())
	})

	d.server.Handle("shutdown", func(req *uds.Request) *uds.Response {
		d.log(LogLevelInfo, "shutdown requested via UDS")
		go d.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})
}

// Status is the snapshot served to the CLI.
func (d *Daemon) Status() model.DaemonStatus {
	return model.DaemonStatus{
		PID:       os.Getpid(),
		StartedAt: d.startedAt,
		Status:    d.controller.Status(),
		Counters:  d.controller.Counters(),
	}
}

// configLoop reloads config.yaml when it changes.
func (d *Daemon) configLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				d.log(LogLevelDebug, "fsnotify event=%s file=%s", event.Op, event.Name)
				d.reloadConfig()
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log(LogLevelError, "fsnotify error=%v", err)
		}
	}
}

// reloadConfig swaps the orchestrator section and log level. A file that does not parse
// or names an unknown mode leaves the running configuration in place.
func (d *Daemon) reloadConfig() {
	var cfg model.Config
	if err := yamlutil.Load(filepath.Join(d.stateDir, configFileName), &cfg); err != nil {
		d.log(LogLevelWarn, "config_reload_failed error=%v", err)
		return
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		d.log(LogLevelWarn, "config_reload_failed error=%v", err)
		return
	}
	d.controller.SetConfig(cfg.Orchestrator)
	d.logLevel.Set(parseLogLevel(cfg.Logging.Level))
	d.log(LogLevelInfo, "config_reloaded mode=%s level=%s", cfg.Orchestrator.Mode, cfg.Logging.Level)
}

// statusLoop refreshes metrics and the dashboard at the configured interval.
func (d *Daemon) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(d.config.Daemon.StatusIntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.refreshMetrics()
		}
	}
}

func (d *Daemon) refreshMetrics() {
	d.metrics.Refresh(d.controller.Status(), d.controller.Counters(), time.Now())
}

// waitSignals blocks until a shutdown signal arrives or ctx ends.
func (d *Daemon) waitSignals(ctx context.Context) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-ctx.Done():
		signal.Stop(sigCh)
		return
	case sig := <-sigCh:
		d.log(LogLevelInfo, "received signal=%s, initiating graceful shutdown", sig)
	}

	go func() {
		<-sigCh
		d.log(LogLevelWarn, "received second signal, forcing exit")
		os.Exit(1)
	}()
	d.Shutdown()
}

// Shutdown stops the daemon (idempotent via sync.Once). Run returns once goroutines drain.
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.log(LogLevelInfo, "shutdown started")
		d.cancel()
	})
}

// cleanup releases resources.
func (d *Daemon) cleanup() {
	d.server.Stop()
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	if err := d.fileLock.Unlock(); err != nil && !errors.Is(err, os.ErrNotExist) {
		d.log(LogLevelWarn, "unlock error=%v", err)
	}
	d.log(LogLevelInfo, "daemon stopped")
	d.closeLog()
}

func (d *Daemon) closeLog() {
	if d.logFile != nil {
		_ = d.logFile.Close()
	}
}

func (d *Daemon) log(level LogLevel, format string, args ...any) {
	logLine(d.logger, d.logLevel, level, "daemon", format, args...)
}
