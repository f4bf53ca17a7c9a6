// ABOUTME: HTTP chat handlers: answer, SSE stream, history and web search
// ABOUTME: Thin adapters from request JSON onto the response orchestrator

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yatri-ai/yatri-gateway/internal/conversation"
	"github.com/yatri-ai/yatri-gateway/internal/orchestrator"
	"github.com/yatri-ai/yatri-gateway/internal/provider"
)

// ChatRequest is the JSON request body for POST /api/chat and /api/chat/stream.
type ChatRequest struct {
	UserID         string   `json:"userId"`
	Message        string   `json:"message"`
	ConversationID string   `json:"conversationId,omitempty"`
	UseReasoner    bool     `json:"useReasoner,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// parseChatRequest decodes and validates a chat request body. Absent
// confidence means the caller typed the message and gets full confidence;
// an absent conversation id resolves to the default conversation, and the
// resolved id is echoed back so clients can thread replies.
func parseChatRequest(r io.Reader) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.UserID == "" {
		return nil, errors.New("userId is required")
	}
	if req.Message == "" {
		return nil, errors.New("message is required")
	}
	if req.ConversationID == "" {
		req.ConversationID = conversation.DefaultConversationID
	}
	return &req, nil
}

func (req *ChatRequest) toOrchestrator() orchestrator.Request {
	confidence := 1.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	return orchestrator.Request{
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Message:        req.Message,
		Confidence:     confidence,
		ForceReasoner:  req.UseReasoner,
	}
}

// handleChat answers a typed message in one shot.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := g.orch.Chat(r.Context(), req.toOrchestrator())
	g.sendJSON(w, http.StatusOK, map[string]any{
		"reply":          res.Reply,
		"requiresRepeat": res.RequiresRepeat,
		"escalated":      res.Escalated,
		"conversationId": req.ConversationID,
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// handleChatStream answers a typed message over SSE: "chunk" events as
// text arrives, then one "complete" (or "error") event.
func (g *Gateway) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	res := g.orch.ChatStream(r.Context(), req.toOrchestrator(), func(chunk string) error {
		g.writeSSEEvent(w, "chunk", map[string]string{"text": chunk})
		flusher.Flush()
		return r.Context().Err()
	})

	if res.Reply.Source == provider.SourceError && !res.RequiresRepeat {
		g.writeSSEEvent(w, "error", map[string]string{"error": res.Reply.Text})
	} else {
		g.writeSSEEvent(w, "complete", map[string]any{
			"reply":          res.Reply,
			"requiresRepeat": res.RequiresRepeat,
			"conversationId": req.ConversationID,
			"timestamp":      time.Now().Format(time.RFC3339),
		})
	}
	flusher.Flush()
}

// handleChatHistory returns the stored text conversation for a user.
func (g *Gateway) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	conversationID := r.URL.Query().Get("conversationId")

	turns := g.orch.History(userID, conversationID)
	g.sendJSON(w, http.StatusOK, map[string]any{
		"userId":  userID,
		"history": turns,
		"count":   len(turns),
	})
}

// handleClearChatHistory drops the stored text conversation for a user.
func (g *Gateway) handleClearChatHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	g.orch.ClearHistory(userID, r.URL.Query().Get("conversationId"))
	g.sendJSON(w, http.StatusOK, map[string]any{"userId": userID, "cleared": true})
}

// WebSearchRequest is the JSON request body for POST /api/chat/web-search.
type WebSearchRequest struct {
	Query string `json:"query"`
}

// handleWebSearch answers directly from the search backend.
func (g *Gateway) handleWebSearch(w http.ResponseWriter, r *http.Request) {
	var req WebSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		g.sendJSONError(w, http.StatusBadRequest, "query is required")
		return
	}

	reply := g.orch.WebSearch(r.Context(), req.Query)
	g.sendJSON(w, http.StatusOK, map[string]any{
		"query": req.Query,
		"reply": reply,
	})
}

// writeSSEEvent writes one server-sent event frame.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
