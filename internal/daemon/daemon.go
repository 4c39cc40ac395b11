// Package daemon coordinates the long-running digest services: the worker
// pool, the weekly dispatch scheduler, and single-instance enforcement.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"digest/internal/config"
	"digest/internal/dispatcher"
	"digest/internal/logging"
	"digest/internal/notifications"
	"digest/internal/tasks"
	"digest/internal/worker"
)

// Daemon owns background processing and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	queue      *tasks.Store
	pool       *worker.Pool
	dispatcher *dispatcher.Dispatcher
	scheduler  *Scheduler
	alerts     notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	QueueDBPath  string
	LockFilePath string
	Queue        tasks.HealthSummary
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	queue *tasks.Store,
	pool *worker.Pool,
	disp *dispatcher.Dispatcher,
	alerts notifications.Service,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || queue == nil || pool == nil || disp == nil {
		return nil, errors.New("daemon requires config, queue, worker pool, and dispatcher")
	}
	if alerts == nil {
		alerts = notifications.NewService(cfg)
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	lockPath := filepath.Join(cfg.Paths.DataDir, "digestd.lock")
	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		queue:      queue,
		pool:       pool,
		dispatcher: disp,
		alerts:     alerts,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.scheduler = NewScheduler(cfg, disp, alerts, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the worker pool and scheduler.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another digest daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.pool.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start worker pool: %w", err)
	}
	d.scheduler.Start(runCtx)

	d.running.Store(true)
	d.logger.Info("digest daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	d.pool.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("digest daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.queue != nil {
		return d.queue.Close()
	}
	return nil
}

// DispatchNow runs an immediate dispatch pass outside the weekly schedule.
func (d *Daemon) DispatchNow(ctx context.Context) (dispatcher.Result, error) {
	return d.dispatcher.Run(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	health, err := d.queue.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		QueueDBPath:  d.queue.Path(),
		LockFilePath: d.lockPath,
		Queue:        health,
	}, nil
}
