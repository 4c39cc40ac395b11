package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"digest/internal/config"
	"digest/internal/logging"
	"digest/internal/tasks"
)

// Pool runs a fixed set of workers that poll the queue for ready tasks.
type Pool struct {
	cfg       *config.Config
	queue     *tasks.Store
	processor *Processor
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool constructs a worker pool over the shared processor.
func NewPool(cfg *config.Config, queue *tasks.Store, processor *Processor, logger *slog.Logger) *Pool {
	return &Pool{
		cfg:       cfg,
		queue:     queue,
		processor: processor,
		logger:    logging.NewComponentLogger(logger, "worker-pool"),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("worker pool already running")
	}

	workers := p.cfg.Workflow.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		// Only the first worker runs the stale reclaimer; one sweep per poll
		// cycle is enough.
		go p.runWorker(runCtx, i, i == 0)
	}
	p.logger.Info("worker pool started", logging.Int("workers", workers))
	return nil
}

// Stop terminates the workers and waits for in-flight tasks to settle.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) runWorker(ctx context.Context, index int, runReclaimer bool) {
	defer p.wg.Done()
	logger := p.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if runReclaimer {
			p.reclaimStale(ctx, logger)
		}

		task, err := p.queue.Claim(ctx, time.Now())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("failed to claim next task",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"))
			p.waitOrShutdown(ctx, p.errorRetryInterval())
			continue
		}
		if task == nil {
			p.waitOrShutdown(ctx, p.pollInterval())
			continue
		}

		if err := p.processWithHeartbeat(ctx, task); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("task processing failed", logging.Error(err),
				logging.Int64(logging.FieldTaskID, task.ID))
		}
	}
}

// processWithHeartbeat runs the processor while a companion goroutine stamps
// heartbeats so a wedged worker's task can be reclaimed.
func (p *Pool) processWithHeartbeat(ctx context.Context, task *tasks.Task) error {
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go p.heartbeatLoop(hbCtx, &hbWG, task.ID)

	err := p.processor.Process(ctx, task)
	stopHeartbeat()
	hbWG.Wait()
	return err
}

func (p *Pool) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, taskID int64) {
	defer wg.Done()
	interval := time.Duration(p.cfg.Workflow.HeartbeatInterval) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.queue.UpdateHeartbeat(ctx, taskID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				p.logger.Warn("heartbeat update failed",
					logging.Int64(logging.FieldTaskID, taskID),
					logging.Error(err))
			}
		}
	}
}

func (p *Pool) reclaimStale(ctx context.Context, logger *slog.Logger) {
	timeout := time.Duration(p.cfg.Workflow.HeartbeatTimeout) * time.Second
	if timeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-timeout)
	reclaimed, err := p.queue.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("reclaim stale processing failed; stuck tasks may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"))
		}
		return
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale tasks", logging.Int64("count", reclaimed))
	}
}

func (p *Pool) pollInterval() time.Duration {
	interval := time.Duration(p.cfg.Workflow.QueuePollInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return interval
}

func (p *Pool) errorRetryInterval() time.Duration {
	interval := time.Duration(p.cfg.Workflow.ErrorRetryInterval) * time.Second
	if interval <= 0 {
		interval = p.pollInterval()
	}
	return interval
}

func (p *Pool) waitOrShutdown(ctx context.Context, delay time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
