package worker_test

import (
	"context"
	"testing"
	"time"

	"digest/internal/config"
	"digest/internal/logging"
	"digest/internal/tasks"
	"digest/internal/testsupport"
	"digest/internal/worker"
)

func TestPoolDrainsQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(2), func(cfg *config.Config) {
		cfg.Workflow.QueuePollInterval = 1
	})
	queue := testsupport.MustOpenTasks(t, cfg)
	subs := testsupport.MustOpenSubscriptions(t, cfg)
	baselines := testsupport.MustOpenBaselines(t, cfg)

	fs := &fakeSummarizer{content: map[string]string{
		"ai":    "ai content",
		"space": "space content",
		"rust":  "rust content",
	}}
	fm := &fakeMailer{reject: map[string]string{}}
	processor := worker.NewProcessor(cfg, queue, subs, baselines, fs, fm, nil, logging.NewNop())
	pool := worker.NewPool(cfg, queue, processor, logging.NewNop())

	ctx := context.Background()
	for _, topicKey := range []string{"ai", "space", "rust"} {
		payload := tasks.Payload{
			Topic:      topicKey,
			RunID:      "2026-W35",
			Recipients: []string{"one@example.com"},
			EnqueuedAt: time.Now().UTC(),
		}
		if _, _, err := queue.Enqueue(ctx, payload); err != nil {
			t.Fatalf("Enqueue %q: %v", topicKey, err)
		}
	}

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for {
		health, err := queue.Health(ctx)
		if err != nil {
			t.Fatalf("Health: %v", err)
		}
		if health.Completed == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained in time: %+v", health)
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := pool.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail while running")
	}
}
