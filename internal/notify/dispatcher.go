// ABOUTME: Notification dispatcher fanning a message out to conversation participants
// ABOUTME: Per-recipient gating, preview formatting, transport send, and log append

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/relay-gateway/internal/store"
)

// PreviewLength caps the message excerpt included in a notification body.
const PreviewLength = 100

// Transport delivers one SMS and reports an explicit success or failure.
type Transport interface {
	SendSMS(ctx context.Context, to, body string) error
}

// DispatchStore defines what the dispatcher needs from storage.
type DispatchStore interface {
	GetPreference(ctx context.Context, userID string) (*store.NotificationPreference, error)
	LastNotificationTime(ctx context.Context, userID, channel string) (*time.Time, error)
	AppendNotificationLog(ctx context.Context, entry *store.NotificationLogEntry) error
}

// Status is the per-recipient delivery outcome.
type Status string

const (
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Skip and failure reasons reported per recipient.
const (
	SkipNoPreference = "no_preference"
	SkipSMSDisabled  = "sms_disabled"
	SkipNoPhone      = "no_phone"
)

// RecipientResult reports the outcome for one recipient.
type RecipientResult struct {
	UserID string
	Status Status
	Reason string // empty for sent
}

// Result collects per-recipient outcomes for one dispatch call.
type Result struct {
	Recipients []RecipientResult
}

// Sent returns how many recipients were actually notified.
func (r *Result) Sent() int {
	n := 0
	for _, rec := range r.Recipients {
		if rec.Status == StatusSent {
			n++
		}
	}
	return n
}

// Request describes one message to fan out.
type Request struct {
	Message      *store.Message
	Sender       *store.User
	Participants []*store.User
	// Prefix is prepended to the notification body, e.g. to mark an agent
	// reply in a shared thread. Optional.
	Prefix string
}

// Dispatcher fans messages out to conversation participants over SMS.
type Dispatcher struct {
	store     DispatchStore
	transport Transport
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(st DispatchStore, transport Transport, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		store:     st,
		transport: transport,
		logger:    logger.With("component", "notify"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch notifies every eligible participant about a new message. The
// sender and agent users are excluded up front; each remaining recipient is
// processed independently, so one transport failure never aborts delivery to
// the others. A log entry is appended only after the transport confirms a
// send, never before.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Result {
	result := &Result{}
	body := d.formatBody(req)

	for _, participant := range req.Participants {
		if participant.ID == req.Message.SenderID || participant.IsAgent {
			continue
		}
		result.Recipients = append(result.Recipients, d.notifyOne(ctx, participant, req.Message, body))
	}

	d.logger.Debug("dispatch complete",
		"message_id", req.Message.ID,
		"recipients", len(result.Recipients),
		"sent", result.Sent())
	return result
}

// notifyOne runs the full per-recipient pipeline: preference check, gate,
// transport send, log append.
func (d *Dispatcher) notifyOne(ctx context.Context, recipient *store.User, msg *store.Message, body string) RecipientResult {
	pref, err := d.store.GetPreference(ctx, recipient.ID)
	if err == store.ErrNotFound {
		return RecipientResult{UserID: recipient.ID, Status: StatusSkipped, Reason: SkipNoPreference}
	}
	if err != nil {
		return RecipientResult{UserID: recipient.ID, Status: StatusFailed, Reason: fmt.Sprintf("loading preference: %v", err)}
	}
	if !pref.SMSEnabled {
		return RecipientResult{UserID: recipient.ID, Status: StatusSkipped, Reason: SkipSMSDisabled}
	}
	phone := pref.Phone
	if phone == "" {
		phone = recipient.Phone
	}
	if phone == "" {
		return RecipientResult{UserID: recipient.ID, Status: StatusSkipped, Reason: SkipNoPhone}
	}

	lastSentAt, err := d.store.LastNotificationTime(ctx, recipient.ID, store.NotificationChannelSMS)
	if err != nil {
		return RecipientResult{UserID: recipient.ID, Status: StatusFailed, Reason: fmt.Sprintf("reading notification log: %v", err)}
	}

	decision := CanNotify(pref, lastSentAt, d.now())
	if !decision.Allowed {
		// Suppression is silent: intentional outcome, not a fault
		return RecipientResult{UserID: recipient.ID, Status: StatusSkipped, Reason: string(decision.Reason)}
	}

	if err := d.transport.SendSMS(ctx, phone, body); err != nil {
		d.logger.Warn("SMS send failed",
			"user_id", recipient.ID,
			"error", err)
		// No log entry: a failed send must never look like a delivered one
		return RecipientResult{UserID: recipient.ID, Status: StatusFailed, Reason: err.Error()}
	}

	entry := &store.NotificationLogEntry{
		ID:      uuid.New().String(),
		UserID:  recipient.ID,
		Channel: store.NotificationChannelSMS,
		SentAt:  d.now(),
		Preview: Preview(msg.Raw),
	}
	if err := d.store.AppendNotificationLog(ctx, entry); err != nil {
		// The send succeeded; a log write failure widens the duplicate-send
		// window but must not surface as a delivery failure
		d.logger.Error("failed to record notification",
			"user_id", recipient.ID,
			"error", err)
	}

	return RecipientResult{UserID: recipient.ID, Status: StatusSent}
}

// formatBody builds the notification text: optional prefix, sender display
// name, and a bounded preview of the message content.
func (d *Dispatcher) formatBody(req *Request) string {
	senderName := "Someone"
	if req.Sender != nil && req.Sender.DisplayName != "" {
		senderName = req.Sender.DisplayName
	}
	body := fmt.Sprintf("New message from %s: %s", senderName, Preview(req.Message.Raw))
	if req.Prefix != "" {
		body = req.Prefix + " " + body
	}
	return body
}

// Preview truncates content to PreviewLength characters, appending an
// ellipsis when cut. Rune-safe.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength]) + "..."
}
