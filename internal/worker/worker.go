// Package worker processes queued topic tasks: generate a summary, compare
// its fingerprint against the stored baseline, and deliver email only when
// the content changed. Transient failures are retried with backoff; permanent
// ones dead-letter the task for operator review.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"digest/internal/baseline"
	"digest/internal/config"
	"digest/internal/logging"
	"digest/internal/notifications"
	"digest/internal/services"
	"digest/internal/services/mailer"
	"digest/internal/services/summarizer"
	"digest/internal/subscriptions"
	"digest/internal/tasks"
	"digest/internal/topic"
)

// Summarizer produces digest content for a topic.
type Summarizer interface {
	Summarize(ctx context.Context, topicKey string) (summarizer.Result, error)
}

// Processor executes one task through the full digest pipeline.
type Processor struct {
	cfg        *config.Config
	queue      *tasks.Store
	subs       *subscriptions.Store
	baselines  *baseline.Store
	summarizer Summarizer
	mailer     mailer.Mailer
	alerts     notifications.Service
	logger     *slog.Logger
	clock      func() time.Time
}

// NewProcessor wires the digest pipeline stages together.
func NewProcessor(
	cfg *config.Config,
	queue *tasks.Store,
	subs *subscriptions.Store,
	baselines *baseline.Store,
	summarizerClient Summarizer,
	mailerClient mailer.Mailer,
	alerts notifications.Service,
	logger *slog.Logger,
) *Processor {
	if alerts == nil {
		alerts = notifications.NewService(cfg)
	}
	return &Processor{
		cfg:        cfg,
		queue:      queue,
		subs:       subs,
		baselines:  baselines,
		summarizer: summarizerClient,
		mailer:     mailerClient,
		alerts:     alerts,
		logger:     logging.NewComponentLogger(logger, "worker"),
		clock:      time.Now,
	}
}

// Process runs a claimed task to a terminal or retryable state. It always
// records the outcome on the queue; the returned error reflects internal
// bookkeeping failures only (e.g. the queue database going away).
func (p *Processor) Process(ctx context.Context, task *tasks.Task) error {
	logger := p.logger.With(
		logging.Int64(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldTopic, task.Topic),
		logging.String(logging.FieldRunID, task.RunID),
	)
	logger.Info("processing topic task", logging.Int("attempt", task.Attempts))

	result, err := p.summarizer.Summarize(ctx, task.Topic)
	if err != nil {
		return p.recordFailure(ctx, logger, task, fmt.Errorf("summarize: %w", err))
	}

	stored, err := p.getBaseline(ctx, task.Topic)
	if err != nil {
		return p.recordFailure(ctx, logger, task, fmt.Errorf("read baseline: %w", err))
	}

	if stored != nil && stored.Fingerprint == result.Fingerprint {
		// Unchanged content needs no email. When the baseline was recorded
		// after this task was enqueued, a previous delivery of this same task
		// already ran to completion and this execution is a queue redelivery.
		if !stored.RecordedAt.Before(task.EnqueuedAt) {
			logger.Info("duplicate task execution detected; baseline already advanced",
				logging.String(logging.FieldEventType, "duplicate_delivery"))
		} else {
			logger.Info("topic content unchanged; skipping delivery")
		}
		task.Status = tasks.StatusUnchanged
		task.ErrorMessage = ""
		return p.updateTask(ctx, task)
	}

	task.Status = tasks.StatusNotifying
	if err := p.updateTask(ctx, task); err != nil {
		return err
	}

	delivery, err := p.mailer.Send(ctx, mailer.Message{
		Topic:      task.Topic,
		Body:       result.Content,
		Recipients: task.Recipients,
	})
	if err != nil {
		return p.recordFailure(ctx, logger, task, fmt.Errorf("send digest: %w", err))
	}
	for _, failure := range delivery.Failed {
		logger.Warn("digest delivery failed for recipient",
			logging.String("recipient", failure.Address),
			logging.String("reason", failure.Reason))
	}
	if len(delivery.Delivered) == 0 {
		err := services.Wrap(services.ErrTransient, "worker", "notify", "no recipients delivered", nil)
		return p.recordFailure(ctx, logger, task, err)
	}

	// The baseline only advances after at least one subscriber has the new
	// content. A crash before this point re-delivers rather than losing the
	// update.
	if err := p.setBaseline(ctx, task.Topic, result.Fingerprint); err != nil {
		return p.recordFailure(ctx, logger, task, fmt.Errorf("advance baseline: %w", err))
	}

	p.markDelivered(ctx, logger, task.Topic, delivery.Delivered)

	task.Status = tasks.StatusCompleted
	task.Delivered = delivery.Delivered
	task.ErrorMessage = ""
	if err := p.updateTask(ctx, task); err != nil {
		return err
	}
	logger.Info("digest delivered",
		logging.Int("delivered", len(delivery.Delivered)),
		logging.Int("failed", len(delivery.Failed)))
	return nil
}

// recordFailure routes a task error to retry or dead-letter.
func (p *Processor) recordFailure(ctx context.Context, logger *slog.Logger, task *tasks.Task, cause error) error {
	if ctx.Err() != nil {
		// Shutdown mid-task: leave the claim for the stale reclaimer.
		return ctx.Err()
	}

	if services.IsPermanent(cause) || task.Attempts >= p.retryMaxAttempts() {
		task.SetFailed(cause.Error())
		if err := p.updateTask(ctx, task); err != nil {
			return err
		}
		logger.Error("task dead-lettered",
			logging.Error(cause),
			logging.Int("attempts", task.Attempts),
			logging.String(logging.FieldErrorHint, "inspect and retry with 'digest queue retry'"))
		if alertErr := p.alerts.NotifyTaskDeadLettered(ctx, task.Topic, task.RunID, cause.Error()); alertErr != nil {
			logger.Warn("dead-letter alert failed", logging.Error(alertErr))
		}
		return nil
	}

	delay := retryDelay(
		task.Attempts,
		time.Duration(p.cfg.Workflow.RetryBaseDelaySeconds)*time.Second,
		time.Duration(p.cfg.Workflow.RetryMaxDelaySeconds)*time.Second,
	)
	retryAt := p.clock().Add(delay)
	if err := p.scheduleRetry(ctx, task, retryAt, cause.Error()); err != nil {
		return err
	}
	logger.Warn("task scheduled for retry",
		logging.Error(cause),
		logging.Int("attempt", task.Attempts),
		logging.Duration("delay", delay))
	return nil
}

// markDelivered stamps last_sent on every subscription that received this
// digest. Failures here are logged but never fail the task: the email is
// already out.
func (p *Processor) markDelivered(ctx context.Context, logger *slog.Logger, topicKey string, delivered []string) {
	deliveredSet := make(map[string]struct{}, len(delivered))
	for _, email := range delivered {
		deliveredSet[email] = struct{}{}
	}

	storeCtx, cancel := p.storeContext(ctx)
	defer cancel()
	subs, err := p.subs.List(storeCtx)
	if err != nil {
		logger.Warn("listing subscriptions for last_sent update failed", logging.Error(err))
		return
	}

	now := p.clock().UTC()
	for _, sub := range subs {
		if !sub.IsActive {
			continue
		}
		if _, ok := deliveredSet[sub.Email]; !ok {
			continue
		}
		key, err := topic.Normalize(sub.Topic)
		if err != nil || key != topicKey {
			continue
		}
		if err := p.subs.MarkSent(ctx, sub.ID, now); err != nil {
			logger.Warn("last_sent update failed",
				logging.String(logging.FieldSubscriptionID, sub.ID),
				logging.Error(err))
		}
	}
}

func (p *Processor) getBaseline(ctx context.Context, topicKey string) (*baseline.Baseline, error) {
	storeCtx, cancel := p.storeContext(ctx)
	defer cancel()
	return p.baselines.Get(storeCtx, topicKey)
}

func (p *Processor) setBaseline(ctx context.Context, topicKey, fingerprint string) error {
	storeCtx, cancel := p.storeContext(ctx)
	defer cancel()
	return p.baselines.Set(storeCtx, topicKey, fingerprint, p.clock().UTC())
}

func (p *Processor) updateTask(ctx context.Context, task *tasks.Task) error {
	storeCtx, cancel := p.storeContext(ctx)
	defer cancel()
	return p.queue.Update(storeCtx, task)
}

func (p *Processor) scheduleRetry(ctx context.Context, task *tasks.Task, retryAt time.Time, reason string) error {
	storeCtx, cancel := p.storeContext(ctx)
	defer cancel()
	return p.queue.ScheduleRetry(storeCtx, task, retryAt, reason)
}

func (p *Processor) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(p.cfg.Workflow.StoreTimeoutSeconds) * time.Second
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (p *Processor) retryMaxAttempts() int {
	if p.cfg.Workflow.RetryMaxAttempts <= 0 {
		return 1
	}
	return p.cfg.Workflow.RetryMaxAttempts
}
