// Package notify implements notification gating and fan-out for new messages.
//
// # Gate
//
// CanNotify is a pure function over a user's preference, the timestamp of
// their last logged send, and the current time. Rate limiting is inclusive
// at the boundary; quiet hours support overnight windows (start > end) and
// suppress silently without consuming the rate-limit clock.
//
// Externalizing the "last sent" state into the append-only notification log
// keeps the gate free of hidden shared state and trivially testable.
//
// # Dispatcher
//
// Dispatch processes every participant of a conversation independently:
//
//  1. Exclude the sender and agent users.
//  2. Skip recipients with SMS disabled or no phone number.
//  3. Apply the gate against the notification log.
//  4. Send a templated body with a bounded content preview.
//  5. Append a log entry only after the transport confirms the send.
//
// One recipient's transport failure never aborts delivery to the others;
// the caller receives a per-recipient outcome instead.
//
// # Known race
//
// Two concurrent dispatches to the same user can both read a stale last-sent
// time and both send, since the gate read and the log write are not atomic.
// The window is brief and a duplicated notification is harmless, so this is
// tolerated instead of imposing a lock across senders.
package notify
