// ABOUTME: Inbound SMS webhook handler: verify, persist, detect, reply, fan out
// ABOUTME: Every failure path still acknowledges the provider with valid TwiML

package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/relay-gateway/internal/agent"
	"github.com/2389/relay-gateway/internal/notify"
	"github.com/2389/relay-gateway/internal/store"
	"github.com/2389/relay-gateway/internal/twilio"
)

// maxWebhookBody caps how much of a webhook payload is read. SMS payloads
// are small; anything larger is not a legitimate provider request.
const maxWebhookBody = 64 * 1024

// phonePattern matches E.164: leading +, non-zero first digit, 7 to 15 digits.
var phonePattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// ValidPhone reports whether s is a plausible E.164 phone number.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// handleInboundSMS processes one provider webhook for an incoming SMS.
// Authentication failures get 403; everything after that point answers
// 200 with TwiML so the provider never retries a message we have already
// seen.
func (g *Gateway) handleInboundSMS(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		g.logger.Warn("failed to read webhook body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	requestURL := strings.TrimRight(g.cfg.Server.PublicURL, "/") + r.URL.RequestURI()
	if !g.verifier.Verify(requestURL, string(rawBody), r.Header.Get(twilio.SignatureHeader)) {
		g.logger.Warn("rejected webhook with invalid signature", "url", requestURL)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	form, err := url.ParseQuery(string(rawBody))
	if err != nil {
		g.logger.Warn("malformed webhook form body", "error", err)
		writeTwiML(w, twilio.EmptyResponse())
		return
	}

	from := form.Get("From")
	text := form.Get("Body")
	messageSID := form.Get("MessageSid")

	if !ValidPhone(from) {
		g.logger.Warn("dropping SMS with invalid sender number",
			"from", from,
			"message_sid", messageSID)
		writeTwiML(w, twilio.EmptyResponse())
		return
	}

	reply, err := g.processInbound(r.Context(), from, text)
	if err != nil {
		// Internal detail never reaches the sender; they get a plain ack.
		g.logger.Error("inbound SMS processing failed",
			"from", from,
			"message_sid", messageSID,
			"error", err)
		writeTwiML(w, twilio.EmptyResponse())
		return
	}

	if reply == "" {
		writeTwiML(w, twilio.EmptyResponse())
		return
	}
	writeTwiML(w, twilio.MessageResponse(reply))
}

// processInbound runs the pipeline for a verified SMS: resolve the sender to
// a user, resolve or create their conversation, persist the message, and when
// the agent is addressed, generate and persist a reply and fan notifications
// out to the other participants. Returns the reply text for the sender, or ""
// when no reply is owed.
func (g *Gateway) processInbound(ctx context.Context, from, text string) (string, error) {
	agentUser, err := g.store.GetAgentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving agent user: %w", err)
	}

	sender, err := g.store.FindOrCreateUserByPhone(ctx, from, from)
	if err != nil {
		return "", fmt.Errorf("resolving sender %s: %w", from, err)
	}

	conv, err := g.resolveConversation(ctx, sender, agentUser)
	if err != nil {
		return "", err
	}

	msg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		Raw:            text,
		CreatedAt:      time.Now(),
	}
	if err := g.store.SaveMessage(ctx, msg); err != nil {
		return "", fmt.Errorf("saving inbound message: %w", err)
	}

	if !g.detector.IsAddressedToAgent(text) {
		g.logger.Debug("message not addressed to agent",
			"conversation_id", conv.ID,
			"sender_id", sender.ID)
		return "", nil
	}

	return g.respondAsAgent(ctx, conv, sender, agentUser)
}

// resolveConversation finds the sender's most recently active conversation,
// or creates a fresh direct conversation between sender and agent when they
// have none.
func (g *Gateway) resolveConversation(ctx context.Context, sender, agentUser *store.User) (*store.Conversation, error) {
	conv, err := g.store.FindConversationForUser(ctx, sender.ID)
	if err == nil {
		return conv, nil
	}
	if err != store.ErrNotFound {
		return nil, fmt.Errorf("finding conversation for %s: %w", sender.ID, err)
	}

	now := time.Now()
	conv = &store.Conversation{
		ID:        uuid.New().String(),
		Mode:      store.ModeDirect,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	if err := g.store.AddParticipant(ctx, conv.ID, sender.ID); err != nil {
		return nil, fmt.Errorf("adding sender to conversation: %w", err)
	}
	if err := g.store.AddParticipant(ctx, conv.ID, agentUser.ID); err != nil {
		return nil, fmt.Errorf("adding agent to conversation: %w", err)
	}
	g.logger.Info("created conversation for new SMS sender",
		"conversation_id", conv.ID,
		"user_id", sender.ID)
	return conv, nil
}

// respondAsAgent generates the agent reply from recent history, persists it,
// and notifies the other participants. The original sender receives the reply
// in the webhook response, so they are excluded from the fan-out.
func (g *Gateway) respondAsAgent(ctx context.Context, conv *store.Conversation, sender, agentUser *store.User) (string, error) {
	history, err := g.store.GetConversationMessages(ctx, conv.ID, g.contextMessages)
	if err != nil {
		return "", fmt.Errorf("loading conversation history: %w", err)
	}
	participants, err := g.store.ListParticipants(ctx, conv.ID)
	if err != nil {
		return "", fmt.Errorf("listing participants: %w", err)
	}

	reply := g.responder.Reply(ctx, history, agent.NamesFromUsers(participants))

	agentMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		SenderID:       agentUser.ID,
		Raw:            reply,
		IsFromAgent:    true,
		CreatedAt:      time.Now(),
	}
	if err := g.store.SaveMessage(ctx, agentMsg); err != nil {
		return "", fmt.Errorf("saving agent reply: %w", err)
	}

	if g.dispatcher != nil {
		others := make([]*store.User, 0, len(participants))
		for _, p := range participants {
			if p.ID == sender.ID {
				continue
			}
			others = append(others, p)
		}
		g.dispatcher.Dispatch(ctx, &notify.Request{
			Message:      agentMsg,
			Sender:       agentUser,
			Participants: others,
			Prefix:       "[" + g.agentName + "]",
		})
	}

	return reply, nil
}

// writeTwiML answers a webhook with a TwiML document and status 200.
func writeTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", twilio.ContentTypeXML)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, doc)
}
