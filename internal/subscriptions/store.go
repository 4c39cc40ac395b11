package subscriptions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"digest/internal/config"
)

// ErrDuplicate indicates an (email, topic) pair that is already subscribed.
var ErrDuplicate = errors.New("subscription already exists")

// Store manages subscription persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the subscription database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "subscriptions.db")
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

// Add persists a new active subscription. The email must parse as an RFC 5322
// address; the topic is stored as entered (grouping normalization happens at
// dispatch time).
func (s *Store) Add(ctx context.Context, email, topicText string) (*Subscription, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("parse email: %w", err)
	}
	topicText = strings.TrimSpace(topicText)
	if topicText == "" {
		return nil, errors.New("topic must not be empty")
	}

	sub := &Subscription{
		ID:        uuid.NewString(),
		Email:     email,
		Topic:     topicText,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO subscriptions (id, email, topic, is_active, created_at, last_sent)
         VALUES (?, ?, ?, 1, ?, NULL)`,
		sub.ID,
		sub.Email,
		sub.Topic,
		sub.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s / %s", ErrDuplicate, email, topicText)
		}
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return sub, nil
}

// GetByID fetches a subscription by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// ListActive returns one page of active subscriptions ordered by id, starting
// strictly after afterID. Callers paginate by passing the last returned ID.
func (s *Store) ListActive(ctx context.Context, afterID string, limit int) ([]*Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
         WHERE is_active = 1 AND id > ? ORDER BY id LIMIT ?`,
		afterID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// List returns all subscriptions ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// MarkSent records a successful digest delivery for a subscription.
func (s *Store) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE subscriptions SET last_sent = ? WHERE id = ?`,
		sentAt.UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mark sent: subscription %s not found", id)
	}
	return nil
}

// Deactivate soft-deletes a subscription. Returns false when the id is unknown.
func (s *Store) Deactivate(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE subscriptions SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deactivate subscription: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const subscriptionColumns = "id, email, topic, is_active, created_at, last_sent"

func scanSubscription(scanner interface{ Scan(dest ...any) error }) (*Subscription, error) {
	var (
		id          string
		email       string
		topicText   string
		isActive    int
		createdRaw  string
		lastSentRaw sql.NullString
	)
	if err := scanner.Scan(&id, &email, &topicText, &isActive, &createdRaw, &lastSentRaw); err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:       id,
		Email:    email,
		Topic:    topicText,
		IsActive: isActive != 0,
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		sub.CreatedAt = created
	}
	if lastSentRaw.Valid {
		if sent, err := time.Parse(time.RFC3339Nano, lastSentRaw.String); err == nil {
			sub.LastSent = &sent
		}
	}
	return sub, nil
}
