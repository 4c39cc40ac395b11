package testsupport

import (
	"context"
	"testing"

	"digest/internal/baseline"
	"digest/internal/config"
	"digest/internal/subscriptions"
	"digest/internal/tasks"
)

// MustOpenSubscriptions opens a subscription store for tests and registers cleanup.
func MustOpenSubscriptions(t testing.TB, cfg *config.Config) *subscriptions.Store {
	t.Helper()

	store, err := subscriptions.Open(cfg)
	if err != nil {
		t.Fatalf("subscriptions.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenTasks opens a task queue store for tests and registers cleanup.
func MustOpenTasks(t testing.TB, cfg *config.Config) *tasks.Store {
	t.Helper()

	store, err := tasks.Open(cfg)
	if err != nil {
		t.Fatalf("tasks.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenBaselines opens a baseline store for tests and registers cleanup.
func MustOpenBaselines(t testing.TB, cfg *config.Config) *baseline.Store {
	t.Helper()

	store, err := baseline.Open(cfg)
	if err != nil {
		t.Fatalf("baseline.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Subscribe adds a subscription for tests using the provided store.
func Subscribe(t testing.TB, store *subscriptions.Store, email, topic string) *subscriptions.Subscription {
	t.Helper()

	sub, err := store.Add(context.Background(), email, topic)
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return sub
}
