// ABOUTME: Gateway orchestrator that wires storage, providers and servers together
// ABOUTME: Manages the HTTP server, websocket dispatcher and shutdown lifecycle

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/yatri-ai/yatri-gateway/internal/config"
	"github.com/yatri-ai/yatri-gateway/internal/conversation"
	"github.com/yatri-ai/yatri-gateway/internal/dispatch"
	"github.com/yatri-ai/yatri-gateway/internal/orchestrator"
	"github.com/yatri-ai/yatri-gateway/internal/provider"
	"github.com/yatri-ai/yatri-gateway/internal/session"
	"github.com/yatri-ai/yatri-gateway/internal/store"
)

// Gateway owns the HTTP server and the components behind it.
type Gateway struct {
	config     *config.Config
	storage    *store.Gateway
	orch       *orchestrator.Orchestrator
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
	httpServer *http.Server
	logger     *slog.Logger
	startedAt  time.Time
}

// initStorage opens the durable SQLite store and its flat-file fallback,
// wrapped in the failover gateway.
func initStorage(cfg *config.Config) (*store.Gateway, error) {
	durable, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing sqlite store: %w", err)
	}
	fallback, err := store.NewFileStore(cfg.Database.FallbackDir)
	if err != nil {
		durable.Close()
		return nil, fmt.Errorf("initializing file store: %w", err)
	}
	return store.NewGateway(durable, fallback, cfg.Database.HealthInterval), nil
}

// buildProviderChain assembles the fallback chain from config: Anthropic,
// then OpenAI, then web search. Unconfigured members are skipped at
// request time, not here.
func buildProviderChain(cfg *config.Config) (*provider.Chain, *provider.WebSearch) {
	anthropic := provider.NewAnthropic(
		cfg.Providers.Anthropic.APIKey,
		cfg.Providers.Anthropic.Model,
		cfg.Providers.Anthropic.ReasonerModel,
	)
	openAI := provider.NewOpenAI(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.Model)
	web := provider.NewWebSearch(cfg.Providers.Timeout)
	return provider.NewChain(anthropic, openAI, web), web
}

// New creates a Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	storage, err := initStorage(cfg)
	if err != nil {
		return nil, err
	}

	chain, web := buildProviderChain(cfg)
	textConvs := conversation.NewStore(cfg.Conversation.HistoryCap)
	voiceConvs := conversation.NewStore(cfg.Conversation.HistoryCap)
	orch := orchestrator.New(chain, web, textConvs, voiceConvs)

	registry := session.NewRegistry(logger)
	dispatcher := dispatch.New(registry, orch, storage, cfg.Providers.Timeout)

	g := &Gateway{
		config:     cfg,
		storage:    storage,
		orch:       orch,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger.With("component", "gateway"),
		startedAt:  time.Now(),
	}

	mux := http.NewServeMux()
	g.registerRoutes(mux)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// registerRoutes wires every HTTP endpoint onto the mux.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	// Health endpoints
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	// WebSocket upgrade into the dispatcher
	mux.HandleFunc("GET /ws", g.dispatcher.ServeWS)

	// Chat
	mux.HandleFunc("POST /api/chat", g.handleChat)
	mux.HandleFunc("POST /api/chat/stream", g.handleChatStream)
	mux.HandleFunc("GET /api/chat/history/{userId}", g.handleChatHistory)
	mux.HandleFunc("DELETE /api/chat/history/{userId}", g.handleClearChatHistory)
	mux.HandleFunc("POST /api/chat/web-search", g.handleWebSearch)

	// Bookings
	mux.HandleFunc("POST /api/book", g.handleCreateBooking)
	mux.HandleFunc("GET /api/book/user/{userId}", g.handleUserBookings)
	mux.HandleFunc("GET /api/book/stats/{userId}", g.handleBookingStats)
	mux.HandleFunc("POST /api/book/search", g.handleSearchBookings)
	mux.HandleFunc("POST /api/book/simulate", g.handleSimulateBooking)
	mux.HandleFunc("POST /api/book/preferences/{userId}", g.handleSavePreferences)
	mux.HandleFunc("GET /api/book/preferences/{userId}", g.handleGetPreferences)
	mux.HandleFunc("GET /api/book/{id}", g.handleGetBooking)
	mux.HandleFunc("PUT /api/book/{id}", g.handleUpdateBooking)
	mux.HandleFunc("DELETE /api/book/{id}", g.handleCancelBooking)

	// Voice
	mux.HandleFunc("POST /api/voice/process", g.handleVoiceProcess)
	mux.HandleFunc("POST /api/voice/command", g.handleVoiceCommand)
	mux.HandleFunc("GET /api/voice/session/{userId}", g.handleVoiceSession)
	mux.HandleFunc("DELETE /api/voice/session/{userId}", g.handleClearVoiceSession)
	mux.HandleFunc("POST /api/voice/wake-word", g.handleWakeWord)
	mux.HandleFunc("POST /api/voice/emergency", g.handleEmergency)
	mux.HandleFunc("PUT /api/voice/emergency/{alertId}", g.handleResolveEmergency)

	// Operator backup/restore of the fallback snapshot
	mux.HandleFunc("GET /api/admin/backup", g.handleBackup)
	mux.HandleFunc("POST /api/admin/restore", g.handleRestore)
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh context; the run context
// is already canceled by the time we get here.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the storage backends.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth reports liveness with basic process facts.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, map[string]any{
		"status":      "OK",
		"timestamp":   time.Now().Format(time.RFC3339),
		"uptime":      time.Since(g.startedAt).Round(time.Second).String(),
		"environment": g.config.Environment,
	})
}

// handleReady reports readiness: the storage gateway must have a healthy
// durable backend.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.storage.Healthy() {
		g.sendJSONError(w, http.StatusServiceUnavailable, "durable storage unavailable")
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handleBackup streams a snapshot of the fallback store.
func (g *Gateway) handleBackup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=yatri-backup.json")
	if err := g.storage.BackupTo(w); err != nil {
		g.logger.Error("backup failed", "error", err)
	}
}

// handleRestore replaces the fallback store's state from an uploaded
// snapshot.
func (g *Gateway) handleRestore(w http.ResponseWriter, r *http.Request) {
	if err := g.storage.RestoreFrom(r.Body); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid snapshot: "+err.Error())
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"status": "restored"})
}

// sendJSON writes a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
