// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides user/conversation/message/notification persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			phone        TEXT,
			is_agent     INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_phone
			ON users(phone) WHERE phone IS NOT NULL AND phone != '';

		CREATE INDEX IF NOT EXISTS idx_users_agent ON users(is_agent);

		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			mode       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (mode IN ('direct', 'assisted', 'anonymous'))
		);

		CREATE TABLE IF NOT EXISTS participants (
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			user_id         TEXT NOT NULL REFERENCES users(id),
			joined_at       TEXT NOT NULL,

			PRIMARY KEY (conversation_id, user_id)
		);

		CREATE INDEX IF NOT EXISTS idx_participants_user ON participants(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender_id       TEXT NOT NULL,
			raw             TEXT NOT NULL,
			processed       TEXT,
			is_from_agent   INTEGER NOT NULL DEFAULT 0,
			raw_visible_to  TEXT,
			created_at      TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);

		CREATE TABLE IF NOT EXISTS notification_preferences (
			user_id            TEXT PRIMARY KEY REFERENCES users(id),
			sms_enabled        INTEGER NOT NULL DEFAULT 0,
			phone              TEXT,
			rate_limit_seconds INTEGER NOT NULL DEFAULT 60,
			quiet_start        TEXT,
			quiet_end          TEXT
		);

		CREATE TABLE IF NOT EXISTS notification_log (
			id      TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			sent_at TEXT NOT NULL,
			preview TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_notification_log_user
			ON notification_log(user_id, channel, sent_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateUser inserts a new user. If the phone number is already registered,
// it returns ErrDuplicateUser.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO users (id, display_name, phone, is_agent, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.DisplayName,
		user.Phone,
		boolToInt(user.IsAgent),
		user.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("created user", "id", user.ID, "is_agent", user.IsAgent)
	return nil
}

// GetUser retrieves a user by ID.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, display_name, phone, is_agent, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByPhone retrieves a user by phone number.
// Returns ErrNotFound if no user is registered under the number.
func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	query := `
		SELECT id, display_name, phone, is_agent, created_at
		FROM users
		WHERE phone = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, phone))
}

// GetAgentUser returns the automated agent participant.
// Returns ErrNotFound if no agent user has been created.
func (s *SQLiteStore) GetAgentUser(ctx context.Context) (*User, error) {
	query := `
		SELECT id, display_name, phone, is_agent, created_at
		FROM users
		WHERE is_agent = 1
		ORDER BY created_at
		LIMIT 1
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query))
}

// FindOrCreateUserByPhone resolves the user registered under phone, creating
// one if none exists. Safe under concurrent callers: if two requests race on
// the same phone, the loser of the insert re-reads the winner's row.
func (s *SQLiteStore) FindOrCreateUserByPhone(ctx context.Context, phone, displayName string) (*User, error) {
	user, err := s.GetUserByPhone(ctx, phone)
	if err == nil {
		return user, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	user = &User{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		Phone:       phone,
		CreatedAt:   time.Now(),
	}
	if err := s.CreateUser(ctx, user); err != nil {
		// Another request may have created the user between our lookup
		// and insert attempt
		if err == ErrDuplicateUser {
			existing, lookupErr := s.GetUserByPhone(ctx, phone)
			if lookupErr == nil {
				s.logger.Debug("found existing user after race", "user_id", existing.ID)
				return existing, nil
			}
			s.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
		}
		return nil, err
	}

	s.logger.Debug("user created from phone", "user_id", user.ID)
	return user, nil
}

// scanUser scans a single user row, mapping sql.ErrNoRows to ErrNotFound.
func (s *SQLiteStore) scanUser(row *sql.Row) (*User, error) {
	var user User
	var phone sql.NullString
	var isAgent int
	var createdAtStr string

	err := row.Scan(&user.ID, &user.DisplayName, &phone, &isAgent, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.Phone = phone.String
	user.IsAgent = isAgent != 0
	user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &user, nil
}

// CreateConversation creates a new conversation. Zero timestamps are stamped
// with the current time.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if !conv.Mode.Valid() {
		return fmt.Errorf("invalid conversation mode %q", conv.Mode)
	}

	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = conv.CreatedAt
	}

	query := `
		INSERT INTO conversations (id, mode, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		string(conv.Mode),
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "mode", conv.Mode)
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `
		SELECT id, mode, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`

	var conv Conversation
	var mode, createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(&conv.ID, &mode, &createdAtStr, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.Mode = ConversationMode(mode)
	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &conv, nil
}

// AddParticipant adds a user to a conversation. Adding the same user twice
// is a no-op.
func (s *SQLiteStore) AddParticipant(ctx context.Context, conversationID, userID string) error {
	query := `
		INSERT OR IGNORE INTO participants (conversation_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conversationID,
		userID,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting participant: %w", err)
	}
	return nil
}

// ListParticipants returns the users participating in a conversation.
func (s *SQLiteStore) ListParticipants(ctx context.Context, conversationID string) ([]*User, error) {
	query := `
		SELECT u.id, u.display_name, u.phone, u.is_agent, u.created_at
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = ?
		ORDER BY p.joined_at
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var user User
		var phone sql.NullString
		var isAgent int
		var createdAtStr string

		if err := rows.Scan(&user.ID, &user.DisplayName, &phone, &isAgent, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		user.Phone = phone.String
		user.IsAgent = isAgent != 0
		user.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// FindConversationForUser returns the conversation with the most recent
// activity (latest message, falling back to creation time) that the user
// participates in. Returns ErrNotFound if the user is in no conversation.
func (s *SQLiteStore) FindConversationForUser(ctx context.Context, userID string) (*Conversation, error) {
	query := `
		SELECT c.id
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?
		ORDER BY COALESCE(
			(SELECT MAX(m.created_at) FROM messages m WHERE m.conversation_id = c.id),
			c.created_at
		) DESC
		LIMIT 1
	`

	var id string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation for user: %w", err)
	}

	return s.GetConversation(ctx, id)
}

// messageTimeFormat is RFC 3339 with fixed-width fractional seconds.
// Message ordering compares the stored strings, so the width must not vary:
// trailing-zero trimming would sort "10:00:00.15Z" before "10:00:00.1Z".
const messageTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SaveMessage inserts a new message. A zero CreatedAt is stamped with the
// current time; history ordering depends on it.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	visibleTo, err := marshalVisibleTo(msg.RawVisibleTo)
	if err != nil {
		return err
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, raw, processed, is_from_agent, raw_visible_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Raw,
		msg.Processed,
		boolToInt(msg.IsFromAgent),
		visibleTo,
		msg.CreatedAt.UTC().Format(messageTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message",
		"id", msg.ID,
		"conversation_id", msg.ConversationID,
		"from_agent", msg.IsFromAgent)
	return nil
}

// GetMessage retrieves a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, raw, processed, is_from_agent, raw_visible_to, created_at
		FROM messages
		WHERE id = ?
	`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanMessage(rows)
}

// GetConversationMessages returns the most recent limit messages of a
// conversation in chronological order.
func (s *SQLiteStore) GetConversationMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}

	// Fetch newest-first, then reverse so callers see chronological order
	query := `
		SELECT id, conversation_id, sender_id, raw, processed, is_from_agent, raw_visible_to, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// SetProcessed attaches mediated content to a message exactly once.
// The guard on processed IS NULL enforces message immutability after the
// mediation step completes.
func (s *SQLiteStore) SetProcessed(ctx context.Context, messageID, processed string, rawVisibleTo []string) error {
	visibleTo, err := marshalVisibleTo(rawVisibleTo)
	if err != nil {
		return err
	}

	query := `
		UPDATE messages
		SET processed = ?, raw_visible_to = ?
		WHERE id = ? AND processed IS NULL
	`

	res, err := s.db.ExecContext(ctx, query, processed, visibleTo, messageID)
	if err != nil {
		return fmt.Errorf("updating message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		if _, err := s.GetMessage(ctx, messageID); err != nil {
			return err
		}
		return ErrAlreadyProcessed
	}

	s.logger.Debug("message processed", "id", messageID)
	return nil
}

// GetPreference retrieves a user's notification preference.
// Returns ErrNotFound if the user has no preference row.
func (s *SQLiteStore) GetPreference(ctx context.Context, userID string) (*NotificationPreference, error) {
	query := `
		SELECT user_id, sms_enabled, phone, rate_limit_seconds, quiet_start, quiet_end
		FROM notification_preferences
		WHERE user_id = ?
	`

	var pref NotificationPreference
	var smsEnabled int
	var phone, quietStart, quietEnd sql.NullString

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&pref.UserID,
		&smsEnabled,
		&phone,
		&pref.RateLimitSeconds,
		&quietStart,
		&quietEnd,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying preference: %w", err)
	}

	pref.SMSEnabled = smsEnabled != 0
	pref.Phone = phone.String
	pref.QuietStart = quietStart.String
	pref.QuietEnd = quietEnd.String
	if pref.RateLimitSeconds <= 0 {
		pref.RateLimitSeconds = DefaultRateLimitSeconds
	}

	return &pref, nil
}

// UpsertPreference creates or replaces a user's notification preference.
func (s *SQLiteStore) UpsertPreference(ctx context.Context, pref *NotificationPreference) error {
	rateLimit := pref.RateLimitSeconds
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimitSeconds
	}

	query := `
		INSERT INTO notification_preferences (user_id, sms_enabled, phone, rate_limit_seconds, quiet_start, quiet_end)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			sms_enabled = excluded.sms_enabled,
			phone = excluded.phone,
			rate_limit_seconds = excluded.rate_limit_seconds,
			quiet_start = excluded.quiet_start,
			quiet_end = excluded.quiet_end
	`

	_, err := s.db.ExecContext(ctx, query,
		pref.UserID,
		boolToInt(pref.SMSEnabled),
		pref.Phone,
		rateLimit,
		pref.QuietStart,
		pref.QuietEnd,
	)
	if err != nil {
		return fmt.Errorf("upserting preference: %w", err)
	}
	return nil
}

// LastNotificationTime returns when the user was last notified on the given
// channel, or nil if never.
func (s *SQLiteStore) LastNotificationTime(ctx context.Context, userID, channel string) (*time.Time, error) {
	query := `
		SELECT MAX(sent_at)
		FROM notification_log
		WHERE user_id = ? AND channel = ?
	`

	var sentAtStr sql.NullString
	err := s.db.QueryRowContext(ctx, query, userID, channel).Scan(&sentAtStr)
	if err != nil {
		return nil, fmt.Errorf("querying notification log: %w", err)
	}
	if !sentAtStr.Valid {
		return nil, nil
	}

	sentAt, err := time.Parse(time.RFC3339, sentAtStr.String)
	if err != nil {
		return nil, fmt.Errorf("parsing sent_at: %w", err)
	}
	return &sentAt, nil
}

// AppendNotificationLog records a confirmed successful send.
func (s *SQLiteStore) AppendNotificationLog(ctx context.Context, entry *NotificationLogEntry) error {
	query := `
		INSERT INTO notification_log (id, user_id, channel, sent_at, preview)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Channel,
		entry.SentAt.UTC().Format(time.RFC3339),
		entry.Preview,
	)
	if err != nil {
		return fmt.Errorf("inserting notification log entry: %w", err)
	}

	s.logger.Debug("notification logged", "user_id", entry.UserID, "channel", entry.Channel)
	return nil
}

// scanMessage scans a message row from a *sql.Rows positioned on a row.
func scanMessage(rows *sql.Rows) (*Message, error) {
	var msg Message
	var processed, visibleTo sql.NullString
	var isFromAgent int
	var createdAtStr string

	err := rows.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Raw,
		&processed,
		&isFromAgent,
		&visibleTo,
		&createdAtStr,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}

	if processed.Valid {
		p := processed.String
		msg.Processed = &p
	}
	msg.IsFromAgent = isFromAgent != 0
	if visibleTo.Valid && visibleTo.String != "" {
		if err := json.Unmarshal([]byte(visibleTo.String), &msg.RawVisibleTo); err != nil {
			return nil, fmt.Errorf("parsing raw_visible_to: %w", err)
		}
	}
	// RFC3339Nano also parses timestamps written without a fraction
	msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &msg, nil
}

// marshalVisibleTo serializes the allow-list as a JSON array, or NULL when
// empty.
func marshalVisibleTo(visibleTo []string) (any, error) {
	if len(visibleTo) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(visibleTo)
	if err != nil {
		return nil, fmt.Errorf("encoding raw_visible_to: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
