// ABOUTME: Tests for the notification dispatcher
// ABOUTME: Covers recipient filtering, gating, partial failure, and log-after-send

package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/relay-gateway/internal/store"
)

type sentSMS struct {
	To   string
	Body string
}

// fakeTransport records sends and can be told to fail for specific numbers.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []sentSMS
	failFor map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failFor: make(map[string]error)}
}

func (f *fakeTransport) SendSMS(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[to]; ok {
		return err
	}
	f.sent = append(f.sent, sentSMS{To: to, Body: body})
	return nil
}

func (f *fakeTransport) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var to []string
	for _, s := range f.sent {
		to = append(to, s.To)
	}
	return to
}

type fixture struct {
	store     *store.MockStore
	transport *fakeTransport
	disp      *Dispatcher
	sender    *store.User
	agent     *store.User
	userA     *store.User
	userB     *store.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mock := store.NewMockStore()
	transport := newFakeTransport()

	f := &fixture{
		store:     mock,
		transport: transport,
		sender:    &store.User{ID: "sender", DisplayName: "Alice", Phone: "+15550000001"},
		agent:     &store.User{ID: "agent", DisplayName: "Stef", IsAgent: true},
		userA:     &store.User{ID: "userA", DisplayName: "Bob", Phone: "+15550000002"},
		userB:     &store.User{ID: "userB", DisplayName: "Carol"}, // no phone
	}
	for _, u := range []*store.User{f.sender, f.agent, f.userA, f.userB} {
		require.NoError(t, mock.CreateUser(ctx, u))
	}

	require.NoError(t, mock.UpsertPreference(ctx, &store.NotificationPreference{
		UserID: "userA", SMSEnabled: true, Phone: "+15550000002", RateLimitSeconds: 60,
	}))
	require.NoError(t, mock.UpsertPreference(ctx, &store.NotificationPreference{
		UserID: "userB", SMSEnabled: true, RateLimitSeconds: 60, // enabled but no phone anywhere
	}))

	f.disp = NewDispatcher(mock, transport, nil)
	return f
}

func (f *fixture) request(raw string) *Request {
	return &Request{
		Message: &store.Message{
			ID:             "msg-1",
			ConversationID: "conv-1",
			SenderID:       f.sender.ID,
			Raw:            raw,
			CreatedAt:      time.Now(),
		},
		Sender:       f.sender,
		Participants: []*store.User{f.sender, f.agent, f.userA, f.userB},
	}
}

func TestDispatch_RecipientFiltering(t *testing.T) {
	f := setup(t)

	result := f.disp.Dispatch(context.Background(), f.request("hello everyone"))

	// Sender and agent are excluded outright; userB lacks a phone
	require.Len(t, result.Recipients, 2)
	assert.Equal(t, 1, result.Sent())
	assert.Equal(t, []string{"+15550000002"}, f.transport.sentTo())

	byUser := map[string]RecipientResult{}
	for _, r := range result.Recipients {
		byUser[r.UserID] = r
	}
	assert.Equal(t, StatusSent, byUser["userA"].Status)
	assert.Equal(t, StatusSkipped, byUser["userB"].Status)
	assert.Equal(t, SkipNoPhone, byUser["userB"].Reason)
}

func TestDispatch_BodyIncludesSenderAndPreview(t *testing.T) {
	f := setup(t)

	f.disp.Dispatch(context.Background(), f.request("lunch at noon?"))

	require.Len(t, f.transport.sent, 1)
	body := f.transport.sent[0].Body
	assert.Contains(t, body, "Alice")
	assert.Contains(t, body, "lunch at noon?")
}

func TestDispatch_PreviewTruncation(t *testing.T) {
	f := setup(t)
	long := strings.Repeat("x", 150)

	f.disp.Dispatch(context.Background(), f.request(long))

	require.Len(t, f.transport.sent, 1)
	assert.Contains(t, f.transport.sent[0].Body, strings.Repeat("x", 100)+"...")
	assert.NotContains(t, f.transport.sent[0].Body, strings.Repeat("x", 101))

	log := f.store.NotificationLog()
	require.Len(t, log, 1)
	assert.Equal(t, strings.Repeat("x", 100)+"...", log[0].Preview)
}

func TestDispatch_Prefix(t *testing.T) {
	f := setup(t)
	req := f.request("the answer is 42")
	req.Prefix = "[Stef]"

	f.disp.Dispatch(context.Background(), req)

	require.Len(t, f.transport.sent, 1)
	assert.True(t, strings.HasPrefix(f.transport.sent[0].Body, "[Stef] "))
}

func TestDispatch_NoPreference(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	newcomer := &store.User{ID: "userC", DisplayName: "Dave", Phone: "+15550000003"}
	require.NoError(t, f.store.CreateUser(ctx, newcomer))

	req := f.request("hi")
	req.Participants = append(req.Participants, newcomer)

	result := f.disp.Dispatch(ctx, req)

	byUser := map[string]RecipientResult{}
	for _, r := range result.Recipients {
		byUser[r.UserID] = r
	}
	assert.Equal(t, StatusSkipped, byUser["userC"].Status)
	assert.Equal(t, SkipNoPreference, byUser["userC"].Reason)
}

func TestDispatch_SMSDisabled(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertPreference(ctx, &store.NotificationPreference{
		UserID: "userA", SMSEnabled: false, Phone: "+15550000002",
	}))

	result := f.disp.Dispatch(ctx, f.request("hi"))

	assert.Equal(t, 0, result.Sent())
	assert.Empty(t, f.transport.sent)
}

func TestDispatch_RateLimited(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// A send 30 seconds ago with a 60s limit blocks this one
	require.NoError(t, f.store.AppendNotificationLog(ctx, &store.NotificationLogEntry{
		ID: "n0", UserID: "userA", Channel: store.NotificationChannelSMS,
		SentAt: time.Now().Add(-30 * time.Second), Preview: "earlier",
	}))

	result := f.disp.Dispatch(ctx, f.request("hi again"))

	byUser := map[string]RecipientResult{}
	for _, r := range result.Recipients {
		byUser[r.UserID] = r
	}
	assert.Equal(t, StatusSkipped, byUser["userA"].Status)
	assert.Equal(t, string(ReasonRateLimited), byUser["userA"].Reason)
	assert.Empty(t, f.transport.sent)

	// Suppression writes no log entry
	assert.Len(t, f.store.NotificationLog(), 1)
}

func TestDispatch_QuietHours(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.store.UpsertPreference(ctx, &store.NotificationPreference{
		UserID: "userA", SMSEnabled: true, Phone: "+15550000002",
		RateLimitSeconds: 60, QuietStart: "22:00", QuietEnd: "07:00",
	}))

	night := time.Date(2026, 3, 14, 2, 30, 0, 0, time.UTC)
	disp := NewDispatcher(f.store, f.transport, nil, WithClock(func() time.Time { return night }))

	result := disp.Dispatch(ctx, f.request("late night thought"))

	byUser := map[string]RecipientResult{}
	for _, r := range result.Recipients {
		byUser[r.UserID] = r
	}
	assert.Equal(t, StatusSkipped, byUser["userA"].Status)
	assert.Equal(t, string(ReasonQuietHours), byUser["userA"].Reason)
	assert.Empty(t, f.transport.sent)
}

func TestDispatch_TransportFailureDoesNotAbortSiblings(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	other := &store.User{ID: "userD", DisplayName: "Eve", Phone: "+15550000004"}
	require.NoError(t, f.store.CreateUser(ctx, other))
	require.NoError(t, f.store.UpsertPreference(ctx, &store.NotificationPreference{
		UserID: "userD", SMSEnabled: true, Phone: "+15550000004", RateLimitSeconds: 60,
	}))

	f.transport.failFor["+15550000002"] = errors.New("carrier unreachable")

	req := f.request("partial failure test")
	req.Participants = append(req.Participants, other)

	result := f.disp.Dispatch(ctx, req)

	byUser := map[string]RecipientResult{}
	for _, r := range result.Recipients {
		byUser[r.UserID] = r
	}
	assert.Equal(t, StatusFailed, byUser["userA"].Status)
	assert.Contains(t, byUser["userA"].Reason, "carrier unreachable")
	assert.Equal(t, StatusSent, byUser["userD"].Status)

	// Only the successful send is logged
	log := f.store.NotificationLog()
	require.Len(t, log, 1)
	assert.Equal(t, "userD", log[0].UserID)
}

func TestDispatch_LogWrittenOnlyAfterSend(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.transport.failFor["+15550000002"] = errors.New("timeout")
	f.disp.Dispatch(ctx, f.request("will fail"))
	assert.Empty(t, f.store.NotificationLog(), "failed send must not be logged")

	delete(f.transport.failFor, "+15550000002")
	f.disp.Dispatch(ctx, f.request("will succeed"))
	assert.Len(t, f.store.NotificationLog(), 1)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
	assert.Equal(t, strings.Repeat("a", 100), Preview(strings.Repeat("a", 100)))
	assert.Equal(t, strings.Repeat("a", 100)+"...", Preview(strings.Repeat("a", 101)))
}
