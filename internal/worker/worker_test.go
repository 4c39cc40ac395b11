package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"digest/internal/config"
	"digest/internal/logging"
	"digest/internal/services"
	"digest/internal/services/mailer"
	"digest/internal/services/summarizer"
	"digest/internal/tasks"
	"digest/internal/testsupport"
	"digest/internal/worker"
)

type fakeSummarizer struct {
	mu      sync.Mutex
	content map[string]string
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(_ context.Context, topicKey string) (summarizer.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return summarizer.Result{}, f.err
	}
	content := f.content[topicKey]
	return summarizer.Result{Content: content, Fingerprint: summarizer.Fingerprint(content)}, nil
}

type fakeMailer struct {
	mu     sync.Mutex
	reject map[string]string
	err    error
	sent   []mailer.Message
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) (mailer.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return mailer.Delivery{}, f.err
	}
	f.sent = append(f.sent, msg)
	var delivery mailer.Delivery
	for _, recipient := range msg.Recipients {
		if reason, ok := f.reject[recipient]; ok {
			delivery.Failed = append(delivery.Failed, mailer.Failure{Address: recipient, Reason: reason})
			continue
		}
		delivery.Delivered = append(delivery.Delivered, recipient)
	}
	return delivery, nil
}

func (f *fakeMailer) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	cfg        *config.Config
	queue      *tasks.Store
	processor  *worker.Processor
	summarizer *fakeSummarizer
	mailer     *fakeMailer
	t          *testing.T
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	queue := testsupport.MustOpenTasks(t, cfg)
	subs := testsupport.MustOpenSubscriptions(t, cfg)
	baselines := testsupport.MustOpenBaselines(t, cfg)

	fs := &fakeSummarizer{content: map[string]string{}}
	fm := &fakeMailer{reject: map[string]string{}}
	processor := worker.NewProcessor(cfg, queue, subs, baselines, fs, fm, nil, logging.NewNop())
	return &fixture{cfg: cfg, queue: queue, processor: processor, summarizer: fs, mailer: fm, t: t}
}

func (f *fixture) enqueueAndClaim(topicKey, runID string, recipients ...string) *tasks.Task {
	f.t.Helper()
	ctx := context.Background()
	payload := tasks.Payload{
		Topic:      topicKey,
		RunID:      runID,
		Recipients: recipients,
		EnqueuedAt: time.Now().UTC(),
	}
	if _, _, err := f.queue.Enqueue(ctx, payload); err != nil {
		f.t.Fatalf("Enqueue: %v", err)
	}
	task, err := f.queue.Claim(ctx, time.Now())
	if err != nil || task == nil {
		f.t.Fatalf("Claim: task=%+v err=%v", task, err)
	}
	return task
}

func (f *fixture) taskStatus(id int64) tasks.Status {
	f.t.Helper()
	task, err := f.queue.GetByID(context.Background(), id)
	if err != nil || task == nil {
		f.t.Fatalf("GetByID: task=%+v err=%v", task, err)
	}
	return task.Status
}

func TestProcessDeliversChangedContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subs := testsupport.MustOpenSubscriptions(t, f.cfg)
	baselines := testsupport.MustOpenBaselines(t, f.cfg)

	one := testsupport.Subscribe(t, subs, "one@example.com", "AI")
	two := testsupport.Subscribe(t, subs, "two@example.com", "ai")

	f.summarizer.content["ai"] = "fresh developments"
	task := f.enqueueAndClaim("ai", "2026-W35", "one@example.com", "two@example.com")

	if err := f.processor.Process(ctx, task); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := f.taskStatus(task.ID); got != tasks.StatusCompleted {
		t.Fatalf("expected completed, got %q", got)
	}
	stored, err := f.queue.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(stored.Delivered) != 2 {
		t.Fatalf("expected both recipients delivered, got %v", stored.Delivered)
	}

	bl, err := baselines.Get(ctx, "ai")
	if err != nil || bl == nil {
		t.Fatalf("expected baseline, got %+v err=%v", bl, err)
	}
	if bl.Fingerprint != summarizer.Fingerprint("fresh developments") {
		t.Fatalf("unexpected fingerprint %q", bl.Fingerprint)
	}

	for _, sub := range []string{one.ID, two.ID} {
		got, err := subs.GetByID(ctx, sub)
		if err != nil || got == nil {
			t.Fatalf("GetByID %s: %+v err=%v", sub, got, err)
		}
		if got.LastSent == nil {
			t.Fatalf("expected last_sent stamped for %s", got.Email)
		}
	}
}

func TestProcessSkipsDeliveryWhenContentUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	baselines := testsupport.MustOpenBaselines(t, f.cfg)

	f.summarizer.content["ai"] = "steady state"
	recorded := time.Now().UTC().Add(-time.Hour)
	if err := baselines.Set(ctx, "ai", summarizer.Fingerprint("steady state"), recorded); err != nil {
		t.Fatalf("Set baseline: %v", err)
	}

	task := f.enqueueAndClaim("ai", "2026-W35", "one@example.com")
	if err := f.processor.Process(ctx, task); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := f.taskStatus(task.ID); got != tasks.StatusUnchanged {
		t.Fatalf("expected unchanged, got %q", got)
	}
	if f.mailer.sentCount() != 0 {
		t.Fatal("expected no email for unchanged content")
	}

	bl, err := baselines.Get(ctx, "ai")
	if err != nil || bl == nil {
		t.Fatalf("Get baseline: %+v err=%v", bl, err)
	}
	if !bl.RecordedAt.Equal(recorded) {
		t.Fatalf("expected baseline untouched, got recorded_at %v", bl.RecordedAt)
	}
}

func TestProcessSchedulesRetryOnTransientFailure(t *testing.T) {
	f := newFixture(t, testsupport.WithRetryPolicy(4, 1, 10))
	ctx := context.Background()

	f.summarizer.err = services.Wrap(services.ErrTransient, "summarizer", "summarize", "upstream 503", nil)
	task := f.enqueueAndClaim("ai", "2026-W35", "one@example.com")

	if err := f.processor.Process(ctx, task); err != nil {
		t.Fatalf("Process: %v", err)
	}

	stored, err := f.queue.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != tasks.StatusPending {
		t.Fatalf("expected pending retry, got %q", stored.Status)
	}
	if stored.NextAttemptAt == nil {
		t.Fatal("expected next_attempt_at set")
	}
	if stored.Attempts != 1 {
		t.Fatalf("expected attempts preserved, got %d", stored.Attempts)
	}
	if stored.ErrorMessage == "" {
		t.Fatal("expected retry reason recorded")
	}
}

func TestProcessDeadLettersPermanentFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.summarizer.err = services.Wrap(services.ErrPermanent, "summarizer", "summarize", "topic rejected", nil)
	task := f.enqueueAndClaim("ai", "2026-W35", "one@example.com")

	if err := f.processor.Process(ctx, task); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := f.taskStatus(task.ID); got != tasks.StatusFailed {
		t.Fatalf("expected failed, got %q", got)
	}
}

func TestProcessDeadLettersAfterAttemptsExhausted(t *testing.T) {
	f := newFixture(t, testsupport.WithRetryPolicy(1, 1, 10))
	ctx := context.Background()

	f.summarizer.err = services.Wrap(services.ErrTransient, "summarizer", "summarize", "upstream 503", nil)
	task := f.enqueueAndClaim("ai", "2026-W35", "one@example.com")

	if err := f.processor.Process(ctx, task); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := f.taskStatus(task.ID); got != tasks.StatusFailed {
		t.Fatalf("expected dead-letter after max attempts, got %q", got)
	}
}

func TestProcessTreatsZeroDeliveriesAsTransient(t *testing.T) {
	f := newFixture(t, testsupport.WithRetryPolicy(4, 1, 10))
	ctx := context.Background()
	baselines := testsupport.MustOpenBaselines(t, f.cfg)

	f.summarizer.content["ai"] = "new content"
	f.mailer.reject["one@example.com"] = "mailbox unavailable"
	task := f.enqueueAndClaim("ai", "2026-W35", "one@example.com")

	if err := f.processor.Process(ctx, task); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := f.taskStatus(task.ID); got != tasks.StatusPending {
		t.Fatalf("expected retry when nothing delivered, got %q", got)
	}
	bl, err := baselines.Get(ctx, "ai")
	if err != nil {
		t.Fatalf("Get baseline: %v", err)
	}
	if bl != nil {
		t.Fatalf("baseline must not advance without a delivery, got %+v", bl)
	}
}

func TestProcessCompletesOnPartialDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subs := testsupport.MustOpenSubscriptions(t, f.cfg)
	baselines := testsupport.MustOpenBaselines(t, f.cfg)

	ok := testsupport.Subscribe(t, subs, "ok@example.com", "ai")
	bad := testsupport.Subscribe(t, subs, "bad@example.com", "ai")

	f.summarizer.content["ai"] = "new content"
	f.mailer.reject["bad@example.com"] = "mailbox unavailable"
	task := f.enqueueAndClaim("ai", "2026-W35", "ok@example.com", "bad@example.com")

	if err := f.processor.Process(ctx, task); err != nil {
		t.Fatalf("Process: %v", err)
	}

	stored, err := f.queue.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != tasks.StatusCompleted {
		t.Fatalf("expected completed on partial delivery, got %q", stored.Status)
	}
	if len(stored.Delivered) != 1 || stored.Delivered[0] != "ok@example.com" {
		t.Fatalf("unexpected delivered list %v", stored.Delivered)
	}

	if bl, err := baselines.Get(ctx, "ai"); err != nil || bl == nil {
		t.Fatalf("expected baseline advanced, got %+v err=%v", bl, err)
	}

	okSub, err := subs.GetByID(ctx, ok.ID)
	if err != nil || okSub.LastSent == nil {
		t.Fatalf("expected last_sent for delivered recipient, got %+v err=%v", okSub, err)
	}
	badSub, err := subs.GetByID(ctx, bad.ID)
	if err != nil || badSub.LastSent != nil {
		t.Fatalf("expected no last_sent for failed recipient, got %+v err=%v", badSub, err)
	}
}

func TestProcessKeepsTopicsIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	baselines := testsupport.MustOpenBaselines(t, f.cfg)

	f.summarizer.content["ai"] = "ai content"
	f.summarizer.content["space"] = "space content"

	aiTask := f.enqueueAndClaim("ai", "2026-W35", "one@example.com")
	if err := f.processor.Process(ctx, aiTask); err != nil {
		t.Fatalf("Process ai: %v", err)
	}
	spaceTask := f.enqueueAndClaim("space", "2026-W35", "one@example.com")
	if err := f.processor.Process(ctx, spaceTask); err != nil {
		t.Fatalf("Process space: %v", err)
	}

	ai, err := baselines.Get(ctx, "ai")
	if err != nil || ai == nil {
		t.Fatalf("Get ai baseline: %+v err=%v", ai, err)
	}
	space, err := baselines.Get(ctx, "space")
	if err != nil || space == nil {
		t.Fatalf("Get space baseline: %+v err=%v", space, err)
	}
	if ai.Fingerprint == space.Fingerprint {
		t.Fatal("expected distinct fingerprints per topic")
	}
}

func TestProcessDetectsRedeliveredTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.summarizer.content["ai"] = "stable content"

	first := f.enqueueAndClaim("ai", "2026-W35", "one@example.com")
	if err := f.processor.Process(ctx, first); err != nil {
		t.Fatalf("Process first: %v", err)
	}
	if got := f.taskStatus(first.ID); got != tasks.StatusCompleted {
		t.Fatalf("expected completed, got %q", got)
	}

	// The following week the content has not moved: no second email.
	second := f.enqueueAndClaim("ai", "2026-W36", "one@example.com")
	if err := f.processor.Process(ctx, second); err != nil {
		t.Fatalf("Process second: %v", err)
	}
	if got := f.taskStatus(second.ID); got != tasks.StatusUnchanged {
		t.Fatalf("expected unchanged, got %q", got)
	}
	if f.mailer.sentCount() != 1 {
		t.Fatalf("expected exactly one email, got %d", f.mailer.sentCount())
	}
}
