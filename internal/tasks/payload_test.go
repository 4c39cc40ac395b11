package tasks_test

import (
	"errors"
	"testing"
	"time"

	"digest/internal/tasks"
)

func TestPayloadValidateDeduplicatesRecipients(t *testing.T) {
	payload := tasks.Payload{
		Topic:      "ai",
		RunID:      "2026-W35",
		EnqueuedAt: time.Now().UTC(),
		Recipients: []string{"b@example.com", "A@example.com", "a@example.com", "  ", "b@example.com"},
	}

	if err := payload.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(payload.Recipients) != 2 {
		t.Fatalf("expected 2 recipients after dedupe, got %v", payload.Recipients)
	}
	if payload.Recipients[0] != "A@example.com" || payload.Recipients[1] != "b@example.com" {
		t.Fatalf("unexpected recipient order: %v", payload.Recipients)
	}
}

func TestPayloadValidateRejectsMissingFields(t *testing.T) {
	now := time.Now().UTC()
	cases := []struct {
		name    string
		payload tasks.Payload
	}{
		{"missing topic", tasks.Payload{RunID: "2026-W35", EnqueuedAt: now, Recipients: []string{"a@example.com"}}},
		{"missing run id", tasks.Payload{Topic: "ai", EnqueuedAt: now, Recipients: []string{"a@example.com"}}},
		{"missing enqueued at", tasks.Payload{Topic: "ai", RunID: "2026-W35", Recipients: []string{"a@example.com"}}},
		{"no recipients", tasks.Payload{Topic: "ai", RunID: "2026-W35", EnqueuedAt: now}},
		{"blank recipients", tasks.Payload{Topic: "ai", RunID: "2026-W35", EnqueuedAt: now, Recipients: []string{"  ", ""}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := tc.payload
			err := payload.Validate()
			if !errors.Is(err, tasks.ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestParsePayload(t *testing.T) {
	raw := []byte(`{
        "topic": "space exploration",
        "recipient_emails": ["one@example.com", "two@example.com"],
        "dispatch_run_id": "2026-W35",
        "enqueued_at": "2026-08-24T08:00:00Z"
    }`)

	payload, err := tasks.ParsePayload(raw)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if payload.Topic != "space exploration" {
		t.Fatalf("unexpected topic %q", payload.Topic)
	}
	if payload.RunID != "2026-W35" {
		t.Fatalf("unexpected run id %q", payload.RunID)
	}
	if len(payload.Recipients) != 2 {
		t.Fatalf("unexpected recipients %v", payload.Recipients)
	}

	if _, err := tasks.ParsePayload([]byte(`{"topic":`)); !errors.Is(err, tasks.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for malformed JSON, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	status, ok := tasks.ParseStatus(" Pending ")
	if !ok || status != tasks.StatusPending {
		t.Fatalf("expected pending, got %q ok=%v", status, ok)
	}
	if _, ok := tasks.ParseStatus("ripping"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}
