package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"digest/internal/config"
)

// Store manages task queue persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the task queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "queue.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Enqueue inserts a task for the payload's (run_id, topic) pair. A second
// enqueue for the same pair is a no-op: created reports whether this call
// inserted the row. This is what collapses duplicate dispatcher runs within
// one calendar week.
func (s *Store) Enqueue(ctx context.Context, payload Payload) (*Task, bool, error) {
	if err := payload.Validate(); err != nil {
		return nil, false, err
	}

	recipients, err := encodeStrings(payload.Recipients)
	if err != nil {
		return nil, false, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO topic_tasks (
            run_id, topic, recipients, status, attempts, enqueued_at, updated_at
        ) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		payload.RunID,
		payload.Topic,
		recipients,
		StatusPending,
		payload.EnqueuedAt.UTC().Format(time.RFC3339Nano),
		now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	task, err := s.GetByRunAndTopic(ctx, payload.RunID, payload.Topic)
	if err != nil {
		return nil, false, err
	}
	if task == nil {
		return nil, false, errors.New("enqueue task: row not found after insert")
	}
	return task, affected > 0, nil
}

// GetByID fetches a task by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM topic_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// GetByRunAndTopic fetches the task for a (run_id, topic) pair.
func (s *Store) GetByRunAndTopic(ctx context.Context, runID, topicKey string) (*Task, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+taskColumns+` FROM topic_tasks WHERE run_id = ? AND topic = ?`,
		runID,
		topicKey,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task by run and topic: %w", err)
	}
	return task, nil
}

// Claim atomically takes the oldest pending task whose retry time has passed,
// moves it to summarizing, bumps its attempt count, and stamps a heartbeat.
// Returns nil when no task is ready. Atomicity of the claim is what allows
// several workers to poll the same queue.
func (s *Store) Claim(ctx context.Context, now time.Time) (*Task, error) {
	stamp := now.UTC().Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(
		ctx,
		`UPDATE topic_tasks
         SET status = ?, attempts = attempts + 1, last_heartbeat = ?, updated_at = ?
         WHERE id = (
             SELECT id FROM topic_tasks
             WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
             ORDER BY enqueued_at LIMIT 1
         )
         RETURNING `+taskColumns,
		StatusSummarizing,
		stamp,
		stamp,
		StatusPending,
		stamp,
	)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

// Update persists changes to an existing task.
func (s *Store) Update(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("task is nil")
	}
	delivered, err := encodeStrings(task.Delivered)
	if err != nil {
		return err
	}
	task.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE topic_tasks
         SET status = ?, attempts = ?, next_attempt_at = ?, updated_at = ?,
             last_heartbeat = ?, error_message = ?, delivered = ?
         WHERE id = ?`,
		task.Status,
		task.Attempts,
		nullableTime(task.NextAttemptAt),
		task.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(task.LastHeartbeat),
		nullableString(task.ErrorMessage),
		delivered,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// ScheduleRetry returns a claimed task to pending with a retry time.
func (s *Store) ScheduleRetry(ctx context.Context, task *Task, retryAt time.Time, reason string) error {
	if task == nil {
		return errors.New("task is nil")
	}
	task.Status = StatusPending
	at := retryAt.UTC()
	task.NextAttemptAt = &at
	task.LastHeartbeat = nil
	task.ErrorMessage = reason
	return s.Update(ctx, task)
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight task.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE topic_tasks SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns tasks stuck in processing back to pending
// when their heartbeats expire (e.g. after a worker crash). Attempt counts
// are preserved so a crash-looping task still dead-letters eventually.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE topic_tasks
         SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (?, ?) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		now,
		StatusSummarizing,
		StatusNotifying,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves dead-lettered tasks back to pending for re-processing,
// resetting their attempt budget. With no ids, all failed tasks are retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE topic_tasks
            SET status = ?, attempts = 0, next_attempt_at = NULL,
                error_message = NULL, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed tasks: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, now, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE topic_tasks
        SET status = ?, attempts = 0, next_attempt_at = NULL,
            error_message = NULL, updated_at = ?
        WHERE status = ? AND id IN (` + placeholders + `)`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected tasks: %w", err)
	}
	return res.RowsAffected()
}

// List returns tasks filtered by status set (or all tasks when no status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM topic_tasks`
	orderClause := ` ORDER BY enqueued_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var items []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, task)
	}
	return items, rows.Err()
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM topic_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusCompleted:
			health.Completed += count
		case StatusUnchanged:
			health.Unchanged += count
		case StatusFailed:
			health.Failed += count
		default:
			if IsProcessingStatus(status) {
				health.Processing += count
			}
		}
	}
	return health, nil
}

// ClearTerminal removes completed and unchanged tasks from the queue.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM topic_tasks WHERE status IN (?, ?)`,
		StatusCompleted,
		StatusUnchanged,
	)
	if err != nil {
		return 0, fmt.Errorf("clear terminal tasks: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only dead-lettered tasks from the queue.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM topic_tasks WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed tasks: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all tasks from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM topic_tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

const taskColumns = "id, run_id, topic, recipients, status, attempts, next_attempt_at, enqueued_at, updated_at, last_heartbeat, error_message, delivered"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id            int64
		runID         string
		topicKey      string
		recipientsRaw string
		statusStr     string
		attempts      int
		nextAttempt   sql.NullString
		enqueuedRaw   string
		updatedRaw    string
		heartbeatRaw  sql.NullString
		errorMessage  sql.NullString
		deliveredRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&runID,
		&topicKey,
		&recipientsRaw,
		&statusStr,
		&attempts,
		&nextAttempt,
		&enqueuedRaw,
		&updatedRaw,
		&heartbeatRaw,
		&errorMessage,
		&deliveredRaw,
	); err != nil {
		return nil, err
	}

	recipients, err := decodeStrings(recipientsRaw)
	if err != nil {
		return nil, fmt.Errorf("task %d recipients: %w", id, err)
	}
	delivered, err := decodeStrings(deliveredRaw.String)
	if err != nil {
		return nil, fmt.Errorf("task %d delivered: %w", id, err)
	}

	task := &Task{
		ID:           id,
		RunID:        runID,
		Topic:        topicKey,
		Recipients:   recipients,
		Status:       Status(statusStr),
		Attempts:     attempts,
		ErrorMessage: errorMessage.String,
		Delivered:    delivered,
	}
	if enqueued, err := time.Parse(time.RFC3339Nano, enqueuedRaw); err == nil {
		task.EnqueuedAt = enqueued
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	if nextAttempt.Valid {
		if at, err := time.Parse(time.RFC3339Nano, nextAttempt.String); err == nil {
			task.NextAttemptAt = &at
		}
	}
	if heartbeatRaw.Valid {
		if hb, err := time.Parse(time.RFC3339Nano, heartbeatRaw.String); err == nil {
			task.LastHeartbeat = &hb
		}
	}
	return task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
