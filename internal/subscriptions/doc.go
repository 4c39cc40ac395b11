// Package subscriptions persists topic subscriptions in SQLite. The
// dispatcher reads the active set; the worker is the only mutator of
// last_sent.
package subscriptions
