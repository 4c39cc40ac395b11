// Package notifications sends operator push alerts through ntfy. These are
// out-of-band signals for the person running the daemon, not subscriber email.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"digest/internal/config"
)

const userAgent = "Digest-Go/0.1.0"

// Service defines the alert surface exposed to the dispatcher and workers.
type Service interface {
	NotifyDispatchCompleted(ctx context.Context, runID string, topics, duplicates int) error
	NotifyDispatchFailed(ctx context.Context, runID string, err error) error
	NotifyTaskDeadLettered(ctx context.Context, topicKey, runID, reason string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	endpoint := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if endpoint == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:       endpoint,
		client:         &http.Client{Timeout: timeout},
		sendDispatch:   cfg.Notifications.Dispatch,
		sendDeadLetter: cfg.Notifications.DeadLetter,
		sendErrors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client

	sendDispatch   bool
	sendDeadLetter bool
	sendErrors     bool
}

func (n *ntfyService) NotifyDispatchCompleted(ctx context.Context, runID string, topics, duplicates int) error {
	if !n.sendDispatch {
		return nil
	}
	message := fmt.Sprintf("Dispatch %s enqueued %d topics", runID, topics)
	if duplicates > 0 {
		message = fmt.Sprintf("%s (%d already queued)", message, duplicates)
	}
	data := payload{
		title:   "Digest - Dispatch Complete",
		message: message,
		tags:    []string{"digest", "dispatch", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDispatchFailed(ctx context.Context, runID string, err error) error {
	if !n.sendDispatch {
		return nil
	}
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "Digest - Dispatch Failed",
		message:  fmt.Sprintf("Dispatch %s failed: %s", runID, reason),
		tags:     []string{"digest", "dispatch", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyTaskDeadLettered(ctx context.Context, topicKey, runID, reason string) error {
	if !n.sendDeadLetter {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Digest - Task Dead-Lettered",
		message:  fmt.Sprintf("Topic %q (%s) exhausted retries: %s\nManual retry required", topicKey, runID, reason),
		tags:     []string{"digest", "queue", "dead-letter"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.sendErrors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Digest - Error",
		message:  builder.String(),
		tags:     []string{"digest", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Digest - Test",
		message:  "Notification system test",
		tags:     []string{"digest", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyDispatchCompleted(context.Context, string, int, int) error  { return nil }
func (noopService) NotifyDispatchFailed(context.Context, string, error) error        { return nil }
func (noopService) NotifyTaskDeadLettered(context.Context, string, string, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                 { return nil }
func (noopService) TestNotification(context.Context) error                           { return nil }
