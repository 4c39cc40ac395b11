// Package tasks persists per-topic digest tasks in SQLite and provides the
// at-least-once queue contract between the dispatcher and the worker pool:
// idempotent enqueue keyed by (run_id, topic), atomic claim for concurrent
// workers, heartbeat-based reclaim of crashed tasks, scheduled retries, and
// dead-lettering.
package tasks
