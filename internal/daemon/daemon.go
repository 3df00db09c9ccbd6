package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/robfig/cron/v3"

	"reelsmith/internal/admission"
	"reelsmith/internal/api"
	"reelsmith/internal/assembly"
	"reelsmith/internal/catalog"
	"reelsmith/internal/config"
	"reelsmith/internal/events"
	"reelsmith/internal/lifecycle"
	"reelsmith/internal/logging"
	"reelsmith/internal/notifications"
	"reelsmith/internal/records"
	"reelsmith/internal/tasks"
	"reelsmith/internal/variants"
	"reelsmith/internal/webhook"
)

// retentionSchedule prunes old daemon logs once a day, off-peak.
const retentionSchedule = "0 3 * * *"

// Components bundles the wired pipeline engines the daemon serves.
type Components struct {
	Store      *records.Store
	Hub        *events.Hub
	Runner     *tasks.Runner
	Catalog    *catalog.Catalog
	Variants   *variants.Engine
	Lifecycle  *lifecycle.Manager
	Admission  *admission.Queue
	Assembly   *assembly.Orderer
	Dispatcher *webhook.Dispatcher
	Notifier   notifications.Service
}

// Daemon coordinates the API server and scheduled maintenance, and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	comps  Components

	lockPath string
	lock     *flock.Flock

	apiSrv    *apiServer
	scheduler *cron.Cron

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, comps Components, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || comps.Store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "reelsmithd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		comps:    comps,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, binds the API server, and schedules
// maintenance. ctx cancellation shuts the API server down.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelsmith daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.releaseLock()
		cancel()
		return err
	}
	d.apiSrv = srv
	if err := d.apiSrv.start(runCtx); err != nil {
		d.releaseLock()
		cancel()
		return err
	}

	d.scheduler = cron.New()
	if _, err := d.scheduler.AddFunc(retentionSchedule, d.pruneLogs); err != nil {
		d.logger.Warn("failed to schedule log retention", logging.Error(err))
	} else {
		d.scheduler.Start()
	}

	d.running.Store(true)
	d.logger.Info("reelsmith daemon started", "lock", d.lockPath)
	return nil
}

// Stop stops the API server, drains background tasks, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.scheduler != nil {
		d.scheduler.Stop()
		d.scheduler = nil
	}
	if d.apiSrv != nil {
		d.apiSrv.stop()
		d.apiSrv = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.comps.Runner != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.comps.Runner.Wait(drainCtx); err != nil {
			d.logger.Warn("background tasks did not drain", logging.Error(err))
		}
		cancel()
	}
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("reelsmith daemon stopped")
}

// Close stops the daemon and releases the record store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.comps.Store != nil {
		return d.comps.Store.Close()
	}
	return nil
}

// Status reports daemon runtime information including store diagnostics.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
	}
	health, err := d.comps.Store.CheckHealth(ctx)
	if err != nil && health.Error == "" {
		health.Error = err.Error()
	}
	status.Database = api.FromHealth(health)
	if count, err := d.comps.Store.CountGeneratingShots(ctx); err == nil {
		status.GeneratingShots = count
	}
	return status
}

func (d *Daemon) pruneLogs() {
	logging.CleanupOldLogs(d.logger, d.cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     d.cfg.Paths.LogDir,
		Pattern: "reelsmith-*.log",
	})
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}
