// Command digestd runs the weekly digest daemon: the worker pool that drains
// the task queue plus the scheduler that triggers dispatch runs.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"digest/internal/baseline"
	"digest/internal/config"
	"digest/internal/daemon"
	"digest/internal/dispatcher"
	"digest/internal/logging"
	"digest/internal/notifications"
	"digest/internal/services/mailer"
	"digest/internal/services/summarizer"
	"digest/internal/subscriptions"
	"digest/internal/tasks"
	"digest/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	queue, err := tasks.Open(cfg)
	if err != nil {
		log.Fatalf("open task queue: %v", err)
	}
	defer queue.Close()
	subs, err := subscriptions.Open(cfg)
	if err != nil {
		log.Fatalf("open subscription store: %v", err)
	}
	defer subs.Close()
	baselines, err := baseline.Open(cfg)
	if err != nil {
		log.Fatalf("open baseline store: %v", err)
	}
	defer baselines.Close()

	alerts := notifications.NewService(cfg)
	processor := worker.NewProcessor(
		cfg,
		queue,
		subs,
		baselines,
		summarizer.NewClient(cfg.Summarizer),
		mailer.New(cfg.SMTP),
		alerts,
		logger,
	)
	pool := worker.NewPool(cfg, queue, processor, logger)
	disp := dispatcher.New(subs, queue, logger)

	d, err := daemon.New(cfg, queue, pool, disp, alerts, logger)
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	<-ctx.Done()
	logger.Info("digestd shutting down")
}
