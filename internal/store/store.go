// ABOUTME: Store interface and data types for relay-gateway persistence
// ABOUTME: Defines User, Conversation, Message structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateUser is returned when trying to create a user whose phone
// number is already registered
var ErrDuplicateUser = errors.New("user already exists")

// ErrAlreadyProcessed is returned when trying to set processed content on a
// message that has already been processed. Messages are immutable once
// processed content is attached.
var ErrAlreadyProcessed = errors.New("message already processed")

// ConversationMode controls how message content is presented to viewers
type ConversationMode string

const (
	ModeDirect    ConversationMode = "direct"    // No intermediary; raw content always shown
	ModeAssisted  ConversationMode = "assisted"  // Mediator summary shown alongside raw
	ModeAnonymous ConversationMode = "anonymous" // Processed content substituted for raw
)

// Valid reports whether m is one of the known conversation modes.
func (m ConversationMode) Valid() bool {
	switch m {
	case ModeDirect, ModeAssisted, ModeAnonymous:
		return true
	}
	return false
}

// NotificationChannelSMS is the channel label recorded for SMS sends.
const NotificationChannelSMS = "sms"

// User represents a conversation participant, human or automated.
type User struct {
	ID          string
	DisplayName string
	Phone       string // E.164, empty if the user has no phone on file
	IsAgent     bool   // automated participant (excluded from notification fan-out)
	CreatedAt   time.Time
}

// Conversation is a mediated exchange between participants. The mode is
// mutated elsewhere; this layer only reads it.
type Conversation struct {
	ID        string
	Mode      ConversationMode
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single message within a conversation. Raw is always present.
// Processed is filled once by an asynchronous mediation step and never
// changes afterwards. RawVisibleTo lists viewers explicitly permitted to see
// Raw even when the conversation mode would substitute Processed.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Raw            string
	Processed      *string
	IsFromAgent    bool
	RawVisibleTo   []string
	CreatedAt      time.Time
}

// NotificationPreference holds a user's SMS notification settings. Quiet
// hours are wall-clock "HH:MM" strings; QuietStart > QuietEnd denotes an
// overnight window. Both empty means no quiet hours.
type NotificationPreference struct {
	UserID           string
	SMSEnabled       bool
	Phone            string
	RateLimitSeconds int // minimum seconds between notifications
	QuietStart       string
	QuietEnd         string
}

// DefaultRateLimitSeconds is used when a preference row has no explicit
// rate limit.
const DefaultRateLimitSeconds = 60

// NotificationLogEntry records one successful outbound notification.
// Append-only; written only after the transport confirms the send.
type NotificationLogEntry struct {
	ID      string
	UserID  string
	Channel string
	SentAt  time.Time
	Preview string
}

// Store defines the interface for relay-gateway persistence
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByPhone(ctx context.Context, phone string) (*User, error)
	// FindOrCreateUserByPhone resolves the user registered under phone,
	// creating one if none exists. Idempotent: calling twice with the same
	// phone yields the same user.
	FindOrCreateUserByPhone(ctx context.Context, phone, displayName string) (*User, error)
	GetAgentUser(ctx context.Context) (*User, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	AddParticipant(ctx context.Context, conversationID, userID string) error
	ListParticipants(ctx context.Context, conversationID string) ([]*User, error)
	// FindConversationForUser returns the conversation with the most recent
	// activity that the user participates in, or ErrNotFound.
	FindConversationForUser(ctx context.Context, userID string) (*Conversation, error)

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	// SetProcessed attaches mediated content and a raw-content allow-list to
	// a message exactly once. Returns ErrAlreadyProcessed on a second call.
	SetProcessed(ctx context.Context, messageID, processed string, rawVisibleTo []string) error

	// Notification preferences and send log
	GetPreference(ctx context.Context, userID string) (*NotificationPreference, error)
	UpsertPreference(ctx context.Context, pref *NotificationPreference) error
	LastNotificationTime(ctx context.Context, userID, channel string) (*time.Time, error)
	AppendNotificationLog(ctx context.Context, entry *NotificationLogEntry) error

	// Close releases any resources held by the store
	Close() error
}
