package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"digest/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	err := services.Wrap(services.ErrPermanent, "summarizer", "summarize", "topic rejected", nil)
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent marker: %v", err)
	}
	if !strings.Contains(err.Error(), "summarizer: summarize: topic rejected") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "mailer", "send", "", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause: %v", err)
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
		permanent bool
	}{
		{"transient marker", services.Wrap(services.ErrTransient, "x", "y", "", nil), true, false},
		{"permanent marker", services.Wrap(services.ErrPermanent, "x", "y", "", nil), false, true},
		{"validation marker", services.Wrap(services.ErrValidation, "x", "y", "", nil), false, true},
		{"configuration marker", services.Wrap(services.ErrConfiguration, "x", "y", "", nil), false, true},
		{"deadline", context.DeadlineExceeded, true, false},
		{"unclassified defaults transient", errors.New("mystery"), true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsTransient(tc.err); got != tc.transient {
				t.Fatalf("IsTransient = %v, want %v", got, tc.transient)
			}
			if got := services.IsPermanent(tc.err); got != tc.permanent {
				t.Fatalf("IsPermanent = %v, want %v", got, tc.permanent)
			}
		})
	}
}
