// ABOUTME: AI responder generating agent replies via an OpenAI-compatible API
// ABOUTME: Bounded context assembly, bounded output, fallback apology on any failure

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/2389/relay-gateway/internal/store"
)

const (
	// DefaultContextMessages bounds how much history goes into one reply.
	DefaultContextMessages = 20
	// DefaultMaxReplyTokens keeps generated replies SMS-sized.
	DefaultMaxReplyTokens = 160
	// completionTimeout bounds the model call; store and transport calls
	// get a few seconds, the model gets tens of seconds.
	completionTimeout = 30 * time.Second
)

// completionAPI is the narrow slice of the OpenAI client the responder uses.
// Tests substitute a stub.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Responder generates agent replies from conversation context.
type Responder struct {
	client    completionAPI
	model     string
	persona   *Persona
	maxTokens int
	logger    *slog.Logger
}

// ResponderOption customizes a Responder.
type ResponderOption func(*Responder)

// WithMaxReplyTokens overrides the completion token cap for replies.
func WithMaxReplyTokens(n int) ResponderOption {
	return func(r *Responder) {
		r.maxTokens = n
	}
}

// WithCompletionAPI overrides the completion client. Used by tests.
func WithCompletionAPI(c completionAPI) ResponderOption {
	return func(r *Responder) {
		r.client = c
	}
}

// NewResponder creates a Responder talking to the configured model.
func NewResponder(apiKey, model string, persona *Persona, opts ...ResponderOption) *Responder {
	if persona == nil {
		persona = DefaultPersona()
	}
	r := &Responder{
		client:    openai.NewClient(apiKey),
		model:     model,
		persona:   persona,
		maxTokens: DefaultMaxReplyTokens,
		logger:    slog.Default().With("component", "agent"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Persona returns the loaded persona.
func (r *Responder) Persona() *Persona {
	return r.persona
}

// Reply generates the agent's response to the most recent message in
// history. Any model error or timeout degrades to the persona's fallback
// apology; the SMS sender always receives some reply.
func (r *Responder) Reply(ctx context.Context, history []*store.Message, names map[string]string) string {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	transcript := FormatContext(history, names, r.persona.Agent.Name)

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: r.persona.Prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		r.logger.Warn("completion failed, using fallback", "error", err)
		return r.persona.Prompt.Fallback
	}
	if len(resp.Choices) == 0 {
		r.logger.Warn("completion returned no choices, using fallback")
		return r.persona.Prompt.Fallback
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return r.persona.Prompt.Fallback
	}
	return reply
}

// FormatContext renders history as a transcript, one "{speaker}: {text}"
// line per message in chronological order. The agent's own prior messages
// are labeled with its name so the model can tell them apart from human
// senders.
func FormatContext(history []*store.Message, names map[string]string, agentName string) string {
	var b strings.Builder
	for i, msg := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("%s: %s", speakerLabel(msg, names, agentName), msg.Raw))
	}
	return b.String()
}

// speakerLabel resolves the display label for a message's sender.
func speakerLabel(msg *store.Message, names map[string]string, agentName string) string {
	if msg.IsFromAgent {
		return agentName + " (you)"
	}
	if name, ok := names[msg.SenderID]; ok && name != "" {
		return name
	}
	return "User"
}

// NamesFromUsers builds the sender-label map FormatContext consumes.
func NamesFromUsers(users []*store.User) map[string]string {
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.DisplayName
	}
	return names
}
