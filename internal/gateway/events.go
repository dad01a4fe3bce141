// ABOUTME: Message event webhook: database insert events fan out as SMS notifications
// ABOUTME: Non-message events are acknowledged and skipped without side effects

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/2389/relay-gateway/internal/notify"
	"github.com/2389/relay-gateway/internal/store"
)

// MessageEvent is the payload posted when a database row changes. Only
// INSERTs on the messages table trigger notifications.
type MessageEvent struct {
	Type   string        `json:"type"`
	Table  string        `json:"table"`
	Record MessageRecord `json:"record"`
}

// MessageRecord carries the inserted message row.
type MessageRecord struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	ContentRaw     string `json:"content_raw"`
	CreatedAt      string `json:"created_at"`
}

type eventResponse struct {
	Status  string `json:"status"`
	Sent    int    `json:"sent,omitempty"`
	Skipped int    `json:"skipped,omitempty"`
	Failed  int    `json:"failed,omitempty"`
}

// handleMessageEvent dispatches notifications for a newly created in-app
// message. Events that are not message inserts are acknowledged so the
// caller does not retry them.
func (g *Gateway) handleMessageEvent(w http.ResponseWriter, r *http.Request) {
	var event MessageEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		g.logger.Warn("malformed event payload", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if event.Type != "INSERT" || event.Table != "messages" {
		writeJSON(w, http.StatusOK, eventResponse{Status: "skipped"})
		return
	}
	if event.Record.ID == "" || event.Record.ConversationID == "" || event.Record.SenderID == "" {
		g.logger.Warn("event record missing required fields")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	sender, err := g.store.GetUser(ctx, event.Record.SenderID)
	if err != nil {
		g.logger.Error("failed to load event sender",
			"sender_id", event.Record.SenderID,
			"error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	participants, err := g.store.ListParticipants(ctx, event.Record.ConversationID)
	if err != nil {
		g.logger.Error("failed to list participants",
			"conversation_id", event.Record.ConversationID,
			"error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	msg := &store.Message{
		ID:             event.Record.ID,
		ConversationID: event.Record.ConversationID,
		SenderID:       event.Record.SenderID,
		Raw:            event.Record.ContentRaw,
		IsFromAgent:    sender.IsAgent,
	}

	result := g.dispatcher.Dispatch(ctx, &notify.Request{
		Message:      msg,
		Sender:       sender,
		Participants: participants,
	})

	resp := eventResponse{Status: "ok", Sent: result.Sent()}
	for _, rec := range result.Recipients {
		switch rec.Status {
		case notify.StatusSkipped:
			resp.Skipped++
		case notify.StatusFailed:
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
