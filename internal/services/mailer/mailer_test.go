package mailer_test

import (
	"context"
	"strings"
	"testing"

	"digest/internal/config"
	"digest/internal/services"
	"digest/internal/services/mailer"
)

func TestSubject(t *testing.T) {
	if got := mailer.Subject("space exploration"); got != "Weekly Update: space exploration" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestRenderProducesPlainTextMessage(t *testing.T) {
	raw := string(mailer.Render("digest@test.invalid", "reader@example.com", "Weekly Update: ai", "line one\nline two"))

	for _, want := range []string{
		"From: digest@test.invalid\r\n",
		"To: reader@example.com\r\n",
		"Subject: Weekly Update: ai\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n",
		"\r\nline one\r\nline two\r\n",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("rendered message missing %q:\n%s", want, raw)
		}
	}
	headerEnd := strings.Index(raw, "\r\n\r\n")
	if headerEnd < 0 {
		t.Fatal("expected blank line between headers and body")
	}
}

func TestSendRejectsEmptyRecipientList(t *testing.T) {
	m := mailer.New(config.SMTP{Host: "smtp.test.invalid", Port: 587, FromAddress: "digest@test.invalid"})
	_, err := m.Send(context.Background(), mailer.Message{Topic: "ai", Body: "body"})
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent validation error, got %v", err)
	}
}

func TestSendRequiresHost(t *testing.T) {
	m := mailer.New(config.SMTP{FromAddress: "digest@test.invalid"})
	_, err := m.Send(context.Background(), mailer.Message{
		Topic:      "ai",
		Body:       "body",
		Recipients: []string{"reader@example.com"},
	})
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent configuration error, got %v", err)
	}
}

func TestSendClassifiesUnreachableRelayAsTransient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := mailer.New(config.SMTP{
		Host:           "smtp.test.invalid",
		Port:           587,
		FromAddress:    "digest@test.invalid",
		TimeoutSeconds: 1,
	})
	_, err := m.Send(ctx, mailer.Message{
		Topic:      "ai",
		Body:       "body",
		Recipients: []string{"reader@example.com"},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !services.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}
