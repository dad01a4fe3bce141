// ABOUTME: Conversation read endpoint rendering messages through the visibility policy
// ABOUTME: Every message body is resolved per viewer before it leaves the process

package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/relay-gateway/internal/store"
	"github.com/2389/relay-gateway/internal/visibility"
)

// defaultMessagePageSize bounds how many messages one read returns.
const defaultMessagePageSize = 50

// MessageView is one message as a specific viewer is allowed to see it.
type MessageView struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	Body        string `json:"body"`
	Composite   bool   `json:"composite,omitempty"`
	Original    string `json:"original,omitempty"`
	Mediated    string `json:"mediated,omitempty"`
	IsFromAgent bool   `json:"is_from_agent"`
	CreatedAt   string `json:"created_at"`
}

type messagesResponse struct {
	ConversationID string        `json:"conversation_id"`
	Mode           string        `json:"mode"`
	Messages       []MessageView `json:"messages"`
}

// handleConversationMessages returns a conversation's recent messages with
// each body resolved for the requesting viewer. The viewer_id query parameter
// may be absent; an anonymous reader still gets a deterministic view.
func (g *Gateway) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	viewerID := r.URL.Query().Get("viewer_id")

	limit := defaultMessagePageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	ctx := r.Context()
	conv, err := g.store.GetConversation(ctx, conversationID)
	if err == store.ErrNotFound {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		g.logger.Error("failed to load conversation",
			"conversation_id", conversationID,
			"error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	msgs, err := g.store.GetConversationMessages(ctx, conversationID, limit)
	if err != nil {
		g.logger.Error("failed to load messages",
			"conversation_id", conversationID,
			"error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := messagesResponse{
		ConversationID: conv.ID,
		Mode:           string(conv.Mode),
		Messages:       make([]MessageView, 0, len(msgs)),
	}
	for _, msg := range msgs {
		content := visibility.Resolve(msg, viewerID, conv.Mode)
		resp.Messages = append(resp.Messages, MessageView{
			ID:          msg.ID,
			SenderID:    msg.SenderID,
			Body:        content.Body,
			Composite:   content.Composite,
			Original:    content.Original,
			Mediated:    content.Mediated,
			IsFromAgent: msg.IsFromAgent,
			CreatedAt:   msg.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}
