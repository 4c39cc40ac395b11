// Package dispatcher turns the active subscription list into one queued task
// per topic per weekly run. Re-running the dispatcher within the same week is
// safe: the queue collapses duplicate (run, topic) pairs.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"digest/internal/logging"
	"digest/internal/runid"
	"digest/internal/subscriptions"
	"digest/internal/tasks"
	"digest/internal/topic"
)

const pageSize = 200

// SubscriptionError records a subscription skipped for data-quality reasons.
type SubscriptionError struct {
	SubscriptionID string
	Email          string
	Reason         string
}

// Result summarizes one dispatch run.
type Result struct {
	RunID            string
	SubscriptionsSeen int
	TopicsDispatched int
	TasksEnqueued    int
	Duplicates       int
	Skipped          []SubscriptionError
}

// Dispatcher groups subscriptions by topic and enqueues weekly tasks.
type Dispatcher struct {
	subs   *subscriptions.Store
	queue  *tasks.Store
	logger *slog.Logger
	clock  func() time.Time
}

// Option customizes the dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// New constructs a dispatcher over the given stores.
func New(subs *subscriptions.Store, queue *tasks.Store, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		subs:   subs,
		queue:  queue,
		logger: logging.NewComponentLogger(logger, "dispatcher"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes one dispatch pass. The whole active subscription list is read
// before any task is enqueued so a store failure mid-scan never produces a
// partial run; individual bad subscriptions are skipped and reported instead.
func (d *Dispatcher) Run(ctx context.Context) (Result, error) {
	now := d.clock().UTC()
	result := Result{RunID: runid.ForTime(now)}
	logger := d.logger.With(logging.String(logging.FieldRunID, result.RunID))

	subs, err := d.readAllActive(ctx)
	if err != nil {
		return result, fmt.Errorf("dispatch %s: read subscriptions: %w", result.RunID, err)
	}
	result.SubscriptionsSeen = len(subs)

	groups := make(map[string][]string)
	for _, sub := range subs {
		key, err := topic.Normalize(sub.Topic)
		if err != nil {
			result.Skipped = append(result.Skipped, SubscriptionError{
				SubscriptionID: sub.ID,
				Email:          sub.Email,
				Reason:         fmt.Sprintf("unusable topic %q: %v", sub.Topic, err),
			})
			logger.Warn("skipping subscription with unusable topic",
				logging.String(logging.FieldSubscriptionID, sub.ID),
				logging.String("raw_topic", sub.Topic),
				logging.Error(err))
			continue
		}
		groups[key] = append(groups[key], sub.Email)
	}
	result.TopicsDispatched = len(groups)

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		payload := tasks.Payload{
			Topic:      key,
			Recipients: groups[key],
			RunID:      result.RunID,
			EnqueuedAt: now,
		}
		task, created, err := d.queue.Enqueue(ctx, payload)
		if err != nil {
			return result, fmt.Errorf("dispatch %s: enqueue topic %q: %w", result.RunID, key, err)
		}
		if created {
			result.TasksEnqueued++
			logger.Info("enqueued topic task",
				logging.String(logging.FieldTopic, key),
				logging.Int64(logging.FieldTaskID, task.ID),
				logging.Int("recipients", len(payload.Recipients)))
		} else {
			result.Duplicates++
			logger.Info("topic already queued for run",
				logging.String(logging.FieldTopic, key),
				logging.Int64(logging.FieldTaskID, task.ID))
		}
	}

	logger.Info("dispatch complete",
		logging.Int("subscriptions", result.SubscriptionsSeen),
		logging.Int("topics", result.TopicsDispatched),
		logging.Int("enqueued", result.TasksEnqueued),
		logging.Int("duplicates", result.Duplicates),
		logging.Int("skipped", len(result.Skipped)))
	return result, nil
}

func (d *Dispatcher) readAllActive(ctx context.Context) ([]*subscriptions.Subscription, error) {
	var all []*subscriptions.Subscription
	afterID := ""
	for {
		page, err := d.subs.ListActive(ctx, afterID, pageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return all, nil
		}
		all = append(all, page...)
		afterID = page[len(page)-1].ID
		if len(page) < pageSize {
			return all, nil
		}
	}
}
