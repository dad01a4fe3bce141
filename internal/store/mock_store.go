// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows handler and dispatcher tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	users         map[string]*User                   // keyed by user ID
	usersByPhone  map[string]string                  // phone -> user ID
	conversations map[string]*Conversation           // keyed by conversation ID
	participants  map[string][]string                // conversation ID -> user IDs
	messages      map[string]*Message                // keyed by message ID
	byConv        map[string][]string                // conversation ID -> message IDs in insert order
	preferences   map[string]*NotificationPreference // keyed by user ID
	log           []*NotificationLogEntry
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[string]*User),
		usersByPhone:  make(map[string]string),
		conversations: make(map[string]*Conversation),
		participants:  make(map[string][]string),
		messages:      make(map[string]*Message),
		byConv:        make(map[string][]string),
		preferences:   make(map[string]*NotificationPreference),
	}
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if user.Phone != "" {
		if _, exists := m.usersByPhone[user.Phone]; exists {
			return ErrDuplicateUser
		}
	}

	u := *user
	m.users[u.ID] = &u
	if u.Phone != "" {
		m.usersByPhone[u.Phone] = u.ID
	}
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

// GetUserByPhone retrieves a user by phone number.
func (m *MockStore) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usersByPhone[phone]
	if !ok {
		return nil, ErrNotFound
	}
	u := *m.users[id]
	return &u, nil
}

// FindOrCreateUserByPhone resolves or creates a user keyed by phone number.
func (m *MockStore) FindOrCreateUserByPhone(ctx context.Context, phone, displayName string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.usersByPhone[phone]; ok {
		u := *m.users[id]
		return &u, nil
	}

	user := &User{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		Phone:       phone,
		CreatedAt:   time.Now(),
	}
	m.users[user.ID] = user
	m.usersByPhone[phone] = user.ID
	u := *user
	return &u, nil
}

// GetAgentUser returns the first agent user, sorted by ID for determinism.
func (m *MockStore) GetAgentUser(ctx context.Context) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var agents []*User
	for _, u := range m.users {
		if u.IsAgent {
			agents = append(agents, u)
		}
	}
	if len(agents) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	u := *agents[0]
	return &u, nil
}

// CreateConversation stores a new conversation.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *conv
	m.conversations[c.ID] = &c
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *conv
	return &c, nil
}

// AddParticipant adds a user to a conversation.
func (m *MockStore) AddParticipant(ctx context.Context, conversationID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.participants[conversationID] {
		if id == userID {
			return nil
		}
	}
	m.participants[conversationID] = append(m.participants[conversationID], userID)
	return nil
}

// ListParticipants returns the users in a conversation.
func (m *MockStore) ListParticipants(ctx context.Context, conversationID string) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []*User
	for _, id := range m.participants[conversationID] {
		if u, ok := m.users[id]; ok {
			copied := *u
			users = append(users, &copied)
		}
	}
	return users, nil
}

// FindConversationForUser returns the most recently active conversation
// containing the user.
func (m *MockStore) FindConversationForUser(ctx context.Context, userID string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Conversation
	var bestActivity time.Time
	for convID, members := range m.participants {
		for _, id := range members {
			if id != userID {
				continue
			}
			conv, ok := m.conversations[convID]
			if !ok {
				continue
			}
			activity := conv.CreatedAt
			for _, msgID := range m.byConv[convID] {
				if msgAt := m.messages[msgID].CreatedAt; msgAt.After(activity) {
					activity = msgAt
				}
			}
			if best == nil || activity.After(bestActivity) {
				best = conv
				bestActivity = activity
			}
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	c := *best
	return &c, nil
}

// SaveMessage stores a new message. A zero CreatedAt is stamped with the
// current time, matching the SQLite store.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	copied := *msg
	m.messages[copied.ID] = &copied
	m.byConv[copied.ConversationID] = append(m.byConv[copied.ConversationID], copied.ID)
	return nil
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *msg
	return &copied, nil
}

// GetConversationMessages returns the most recent limit messages in
// chronological order.
func (m *MockStore) GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var messages []*Message
	for _, id := range m.byConv[conversationID] {
		copied := *m.messages[id]
		messages = append(messages, &copied)
	}

	// Same ordering as the SQLite store: created_at, then id
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})

	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

// SetProcessed attaches processed content to a message exactly once.
func (m *MockStore) SetProcessed(ctx context.Context, messageID, processed string, rawVisibleTo []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return ErrNotFound
	}
	if msg.Processed != nil {
		return ErrAlreadyProcessed
	}
	msg.Processed = &processed
	msg.RawVisibleTo = rawVisibleTo
	return nil
}

// GetPreference retrieves a user's notification preference.
func (m *MockStore) GetPreference(ctx context.Context, userID string) (*NotificationPreference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pref, ok := m.preferences[userID]
	if !ok {
		return nil, ErrNotFound
	}
	p := *pref
	if p.RateLimitSeconds <= 0 {
		p.RateLimitSeconds = DefaultRateLimitSeconds
	}
	return &p, nil
}

// UpsertPreference creates or replaces a user's notification preference.
func (m *MockStore) UpsertPreference(ctx context.Context, pref *NotificationPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := *pref
	m.preferences[p.UserID] = &p
	return nil
}

// LastNotificationTime returns the latest log entry time for a user/channel.
func (m *MockStore) LastNotificationTime(ctx context.Context, userID, channel string) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *time.Time
	for _, entry := range m.log {
		if entry.UserID != userID || entry.Channel != channel {
			continue
		}
		if latest == nil || entry.SentAt.After(*latest) {
			t := entry.SentAt
			latest = &t
		}
	}
	return latest, nil
}

// AppendNotificationLog records a send.
func (m *MockStore) AppendNotificationLog(ctx context.Context, entry *NotificationLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := *entry
	m.log = append(m.log, &e)
	return nil
}

// NotificationLog returns a copy of all recorded log entries, for test
// assertions.
func (m *MockStore) NotificationLog() []*NotificationLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*NotificationLogEntry, 0, len(m.log))
	for _, e := range m.log {
		copied := *e
		entries = append(entries, &copied)
	}
	return entries
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
