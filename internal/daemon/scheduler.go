package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"digest/internal/config"
	"digest/internal/dispatcher"
	"digest/internal/logging"
	"digest/internal/notifications"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Scheduler fires one dispatch pass at the configured weekday and hour (UTC).
type Scheduler struct {
	cfg        *config.Config
	dispatcher *dispatcher.Dispatcher
	alerts     notifications.Service
	logger     *slog.Logger
	clock      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler constructs a weekly dispatch scheduler.
func NewScheduler(cfg *config.Config, disp *dispatcher.Dispatcher, alerts notifications.Service, logger *slog.Logger) *Scheduler {
	if alerts == nil {
		alerts = notifications.NewService(cfg)
	}
	return &Scheduler{
		cfg:        cfg,
		dispatcher: disp,
		alerts:     alerts,
		logger:     logging.NewComponentLogger(logger, "scheduler"),
		clock:      time.Now,
	}
}

// Start launches the scheduling loop. It is a no-op when the schedule is
// disabled and dispatch-on-start is off.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	if !s.cfg.Schedule.Enabled && !s.cfg.Schedule.DispatchOnStart {
		s.logger.Info("dispatch schedule disabled")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(runCtx)
}

// Stop terminates the scheduling loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	if s.cfg.Schedule.DispatchOnStart {
		s.dispatch(ctx)
	}
	if !s.cfg.Schedule.Enabled {
		return
	}

	for {
		next := NextDispatchTime(s.clock().UTC(), s.cfg.Schedule.Weekday, s.cfg.Schedule.Hour)
		s.logger.Info("next dispatch scheduled", logging.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.dispatch(ctx)
	}
}

func (s *Scheduler) dispatch(ctx context.Context) {
	result, err := s.dispatcher.Run(ctx)
	if err != nil {
		s.logger.Error("scheduled dispatch failed",
			logging.Error(err),
			logging.String(logging.FieldRunID, result.RunID),
			logging.String(logging.FieldErrorHint, "run 'digest dispatch' manually after fixing the cause"))
		if alertErr := s.alerts.NotifyDispatchFailed(ctx, result.RunID, err); alertErr != nil {
			s.logger.Warn("dispatch failure alert failed", logging.Error(alertErr))
		}
		return
	}
	if alertErr := s.alerts.NotifyDispatchCompleted(ctx, result.RunID, result.TasksEnqueued, result.Duplicates); alertErr != nil {
		s.logger.Warn("dispatch completion alert failed", logging.Error(alertErr))
	}
}

// NextDispatchTime computes the next occurrence of the configured weekday and
// hour strictly after now, in UTC. Unknown weekday names fall back to Monday.
func NextDispatchTime(now time.Time, weekday string, hour int) time.Time {
	target, ok := weekdays[strings.ToLower(strings.TrimSpace(weekday))]
	if !ok {
		target = time.Monday
	}
	if hour < 0 || hour > 23 {
		hour = 0
	}

	now = now.UTC()
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	days := (int(target) - int(now.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, days)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
