// ABOUTME: Gateway assembles the HTTP surface and owns server lifecycle
// ABOUTME: Routes inbound SMS webhooks, message events, and health checks

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/relay-gateway/internal/config"
	"github.com/2389/relay-gateway/internal/mention"
	"github.com/2389/relay-gateway/internal/notify"
	"github.com/2389/relay-gateway/internal/store"
	"github.com/2389/relay-gateway/internal/twilio"
)

// Responder generates the agent's reply from conversation history.
type Responder interface {
	Reply(ctx context.Context, history []*store.Message, names map[string]string) string
}

// Options collects the gateway's collaborators.
type Options struct {
	Config     *config.Config
	Store      store.Store
	Verifier   *twilio.Verifier
	Detector   *mention.Detector
	Responder  Responder
	Dispatcher *notify.Dispatcher
	AgentName  string
	Logger     *slog.Logger
}

// Gateway is the HTTP entry point for the relay core.
type Gateway struct {
	cfg        *config.Config
	store      store.Store
	verifier   *twilio.Verifier
	detector   *mention.Detector
	responder  Responder
	dispatcher *notify.Dispatcher
	agentName  string
	logger     *slog.Logger

	contextMessages int
	httpServer      *http.Server
}

// New creates a Gateway from its collaborators.
func New(opts Options) (*Gateway, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("verifier is required")
	}
	if opts.Detector == nil {
		return nil, fmt.Errorf("mention detector is required")
	}
	if opts.Responder == nil {
		return nil, fmt.Errorf("responder is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	contextMessages := opts.Config.Agent.ContextMessages
	if contextMessages <= 0 {
		contextMessages = 20
	}

	g := &Gateway{
		cfg:             opts.Config,
		store:           opts.Store,
		verifier:        opts.Verifier,
		detector:        opts.Detector,
		responder:       opts.Responder,
		dispatcher:      opts.Dispatcher,
		agentName:       opts.AgentName,
		logger:          logger.With("component", "gateway"),
		contextMessages: contextMessages,
	}

	g.httpServer = &http.Server{
		Addr:              opts.Config.Server.HTTPAddr,
		Handler:           g.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// Router builds the HTTP route table. Exposed so tests can drive handlers
// without binding a listener.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.handleHealth)
	r.Post("/hooks/sms", g.handleInboundSMS)
	r.Post("/hooks/events", g.handleMessageEvent)
	r.Get("/conversations/{conversationID}/messages", g.handleConversationMessages)

	return r
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully within the configured timeout.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), g.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

// handleHealth reports liveness.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
