// Package baseline persists the last-delivered content fingerprint per topic.
// The stored fingerprint is what a freshly generated summary is compared
// against to decide whether a digest goes out at all.
package baseline

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

// Baseline is the recorded fingerprint for a topic.
type Baseline struct {
	Topic       string
	Fingerprint string
	RecordedAt  time.Time
}

// Store manages baseline persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the baseline database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "baselines.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
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

// Get returns the stored baseline for a topic, or nil when none exists.
// A missing baseline means the topic has never been delivered.
func (s *Store) Get(ctx context.Context, topicKey string) (*Baseline, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT topic, fingerprint, recorded_at FROM topic_baselines WHERE topic = ?`,
		topicKey,
	)

	var (
		bl          Baseline
		recordedRaw string
	)
	err := row.Scan(&bl.Topic, &bl.Fingerprint, &recordedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get baseline: %w", err)
	}
	if recorded, parseErr := time.Parse(time.RFC3339Nano, recordedRaw); parseErr == nil {
		bl.RecordedAt = recorded
	}
	return &bl, nil
}

// Set records the fingerprint for a topic. The write is an unconditional
// upsert: last write wins.
func (s *Store) Set(ctx context.Context, topicKey, fingerprint string, recordedAt time.Time) error {
	if topicKey == "" {
		return errors.New("topic required")
	}
	if fingerprint == "" {
		return errors.New("fingerprint required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO topic_baselines (topic, fingerprint, recorded_at)
         VALUES (?, ?, ?)
         ON CONFLICT (topic) DO UPDATE SET
             fingerprint = excluded.fingerprint,
             recorded_at = excluded.recorded_at`,
		topicKey,
		fingerprint,
		recordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set baseline: %w", err)
	}
	return nil
}

// List returns all stored baselines ordered by topic.
func (s *Store) List(ctx context.Context) ([]Baseline, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT topic, fingerprint, recorded_at FROM topic_baselines ORDER BY topic`,
	)
	if err != nil {
		return nil, fmt.Errorf("list baselines: %w", err)
	}
	defer rows.Close()

	var items []Baseline
	for rows.Next() {
		var (
			bl          Baseline
			recordedRaw string
		)
		if err := rows.Scan(&bl.Topic, &bl.Fingerprint, &recordedRaw); err != nil {
			return nil, err
		}
		if recorded, parseErr := time.Parse(time.RFC3339Nano, recordedRaw); parseErr == nil {
			bl.RecordedAt = recorded
		}
		items = append(items, bl)
	}
	return items, rows.Err()
}

// Delete removes the baseline for a topic, forcing the next digest to send.
func (s *Store) Delete(ctx context.Context, topicKey string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM topic_baselines WHERE topic = ?`, topicKey)
	if err != nil {
		return false, fmt.Errorf("delete baseline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
