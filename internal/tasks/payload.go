package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Payload is the wire shape of a topic task as produced by the dispatcher.
// Required fields are validated before a task is accepted; malformed payloads
// are rejected outright rather than best-effort decoded.
type Payload struct {
	Topic      string    `json:"topic"`
	Recipients []string  `json:"recipient_emails"`
	RunID      string    `json:"dispatch_run_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// ErrInvalidPayload indicates a task payload missing required fields.
var ErrInvalidPayload = errors.New("invalid task payload")

// Validate checks required fields and deduplicates recipients in place.
func (p *Payload) Validate() error {
	p.Topic = strings.TrimSpace(p.Topic)
	p.RunID = strings.TrimSpace(p.RunID)
	if p.Topic == "" {
		return fmt.Errorf("%w: topic required", ErrInvalidPayload)
	}
	if p.RunID == "" {
		return fmt.Errorf("%w: dispatch_run_id required", ErrInvalidPayload)
	}
	if p.EnqueuedAt.IsZero() {
		return fmt.Errorf("%w: enqueued_at required", ErrInvalidPayload)
	}
	p.Recipients = dedupeRecipients(p.Recipients)
	if len(p.Recipients) == 0 {
		return fmt.Errorf("%w: at least one recipient required", ErrInvalidPayload)
	}
	return nil
}

// ParsePayload decodes and validates a JSON task payload.
func ParsePayload(data []byte) (Payload, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := payload.Validate(); err != nil {
		return Payload{}, err
	}
	return payload, nil
}

func dedupeRecipients(recipients []string) []string {
	seen := make(map[string]struct{}, len(recipients))
	out := make([]string, 0, len(recipients))
	for _, addr := range recipients {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

func encodeStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode string list: %w", err)
	}
	return string(data), nil
}

func decodeStrings(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	return values, nil
}
