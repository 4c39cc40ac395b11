package subscriptions_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"digest/internal/subscriptions"
	"digest/internal/testsupport"
)

func TestAddAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenSubscriptions(t, cfg)

	ctx := context.Background()
	sub, err := store.Add(ctx, "alice@example.com", "AI")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if sub.ID == "" {
		t.Fatal("expected subscription ID to be assigned")
	}
	if !sub.IsActive {
		t.Fatal("expected new subscription to be active")
	}

	fetched, err := store.GetByID(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Email != "alice@example.com" || fetched.Topic != "AI" {
		t.Fatalf("unexpected fetched subscription: %#v", fetched)
	}
	if fetched.LastSent != nil {
		t.Fatal("expected last_sent to start unset")
	}
}

func TestAddRejectsInvalidEmail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenSubscriptions(t, cfg)

	if _, err := store.Add(context.Background(), "not-an-address", "AI"); err == nil {
		t.Fatal("expected error for invalid email")
	}
}

func TestAddRejectsDuplicatePair(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenSubscriptions(t, cfg)

	ctx := context.Background()
	testsupport.Subscribe(t, store, "alice@example.com", "AI")
	_, err := store.Add(ctx, "alice@example.com", "AI")
	if !errors.Is(err, subscriptions.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestListActivePaginates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenSubscriptions(t, cfg)

	ctx := context.Background()
	for i := 0; i < 7; i++ {
		testsupport.Subscribe(t, store, fmt.Sprintf("user%d@example.com", i), "AI")
	}
	deactivated := testsupport.Subscribe(t, store, "gone@example.com", "AI")
	if ok, err := store.Deactivate(ctx, deactivated.ID); err != nil || !ok {
		t.Fatalf("Deactivate failed: ok=%v err=%v", ok, err)
	}

	var all []*subscriptions.Subscription
	afterID := ""
	for {
		page, err := store.ListActive(ctx, afterID, 3)
		if err != nil {
			t.Fatalf("ListActive failed: %v", err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		afterID = page[len(page)-1].ID
	}

	if len(all) != 7 {
		t.Fatalf("expected 7 active subscriptions, got %d", len(all))
	}
	seen := map[string]bool{}
	for _, sub := range all {
		if seen[sub.ID] {
			t.Fatalf("subscription %s returned twice", sub.ID)
		}
		seen[sub.ID] = true
		if sub.Email == "gone@example.com" {
			t.Fatal("deactivated subscription returned by ListActive")
		}
	}
}

func TestMarkSent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenSubscriptions(t, cfg)

	ctx := context.Background()
	sub := testsupport.Subscribe(t, store, "alice@example.com", "AI")

	sentAt := time.Date(2026, time.August, 24, 9, 0, 0, 0, time.UTC)
	if err := store.MarkSent(ctx, sub.ID, sentAt); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.LastSent == nil || !fetched.LastSent.Equal(sentAt) {
		t.Fatalf("unexpected last_sent: %v", fetched.LastSent)
	}

	if err := store.MarkSent(ctx, "missing-id", sentAt); err == nil {
		t.Fatal("expected error for unknown subscription id")
	}
}
