package daemon_test

import (
	"context"
	"testing"

	"digest/internal/daemon"
	"digest/internal/dispatcher"
	"digest/internal/logging"
	"digest/internal/services/mailer"
	"digest/internal/services/summarizer"
	"digest/internal/testsupport"
	"digest/internal/worker"
)

type stubSummarizer struct{}

func (stubSummarizer) Summarize(_ context.Context, topicKey string) (summarizer.Result, error) {
	content := "summary for " + topicKey
	return summarizer.Result{Content: content, Fingerprint: summarizer.Fingerprint(content)}, nil
}

type stubMailer struct{}

func (stubMailer) Send(_ context.Context, msg mailer.Message) (mailer.Delivery, error) {
	return mailer.Delivery{Delivered: msg.Recipients}, nil
}

func newDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	queue := testsupport.MustOpenTasks(t, cfg)
	subs := testsupport.MustOpenSubscriptions(t, cfg)
	baselines := testsupport.MustOpenBaselines(t, cfg)

	logger := logging.NewNop()
	processor := worker.NewProcessor(cfg, queue, subs, baselines, stubSummarizer{}, stubMailer{}, nil, logger)
	pool := worker.NewPool(cfg, queue, processor, logger)
	disp := dispatcher.New(subs, queue, logger)

	d, err := daemon.New(cfg, queue, pool, disp, nil, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return d
}

func TestDaemonStartStop(t *testing.T) {
	d := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if status.LockFilePath == "" || status.QueueDBPath == "" {
		t.Fatalf("expected populated paths, got %+v", status)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	d.Stop()
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status after stop: %v", err)
	}
	if status.Running {
		t.Fatal("expected stopped daemon")
	}
}

func TestDaemonDispatchNow(t *testing.T) {
	d := newDaemon(t)
	result, err := d.DispatchNow(context.Background())
	if err != nil {
		t.Fatalf("DispatchNow: %v", err)
	}
	if result.RunID == "" {
		t.Fatal("expected run id")
	}
}
