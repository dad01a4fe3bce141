// Package store provides persistent storage for the relay gateway using SQLite.
//
// # Architecture
//
// The store package exposes a single Store interface covering the entities
// the relay core reads and writes:
//
//   - User: conversation participants, human or automated (agent)
//   - Conversation: a mediated exchange with a visibility mode
//   - Message: raw sender content plus optional mediated content
//   - NotificationPreference: per-user SMS settings, rate limit, quiet hours
//   - NotificationLogEntry: append-only record of confirmed sends
//
// SQLiteStore is the production implementation; MockStore is an in-memory
// implementation for tests that don't need a real database.
//
// # Invariants enforced here
//
// Messages are immutable once mediated: SetProcessed only updates rows whose
// processed column is still NULL and returns ErrAlreadyProcessed otherwise.
//
// User resolution by phone number is idempotent: FindOrCreateUserByPhone
// relies on a unique index over non-empty phone numbers and re-reads the
// winning row when two concurrent requests race on the same number.
//
// The notification log is append-only and is written by the dispatcher only
// after the transport confirms a send. LastNotificationTime reads the latest
// entry so the rate-limit gate stays a pure function over stored state.
//
// # Timestamps
//
// All timestamps are stored as UTC RFC3339 strings, matching SQLite's lack
// of a native datetime type.
package store
