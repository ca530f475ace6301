// Package queue provides durable retry of failed revocations. Revocations
// that could not be applied inline are upserted into a table keyed by
// (user, project), and a cron-driven sweeper redelivers them with
// exponential backoff until they succeed or exhaust their attempts.
// Delivery is at-least-once; revocation itself is idempotent, so repeats
// are harmless.
package queue
