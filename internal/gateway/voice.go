// ABOUTME: HTTP voice handlers: transcript processing, fixed commands and emergencies
// ABOUTME: Emergency alerts persist through the storage gateway and always run priority high

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yatri-ai/yatri-gateway/internal/orchestrator"
	"github.com/yatri-ai/yatri-gateway/internal/store"
	"github.com/yatri-ai/yatri-gateway/internal/voice"
)

// VoiceProcessRequest is the JSON request body for POST /api/voice/process.
type VoiceProcessRequest struct {
	UserID     string   `json:"userId"`
	Transcript string   `json:"transcript"`
	SessionID  string   `json:"sessionId,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// handleVoiceProcess answers a spoken transcript with an intent tag.
func (g *Gateway) handleVoiceProcess(w http.ResponseWriter, r *http.Request) {
	var req VoiceProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.UserID == "" || req.Transcript == "" {
		g.sendJSONError(w, http.StatusBadRequest, "userId and transcript are required")
		return
	}

	confidence := 1.0
	if req.Confidence != nil {
		confidence = *req.Confidence
	}
	res := g.orch.Voice(r.Context(), orchestrator.Request{
		UserID:         req.UserID,
		ConversationID: req.SessionID,
		Message:        req.Transcript,
		Confidence:     confidence,
	})

	g.sendJSON(w, http.StatusOK, map[string]any{
		"reply":          res.Reply,
		"intent":         res.Intent,
		"requiresRepeat": res.RequiresRepeat,
	})
}

// VoiceCommandRequest is the JSON request body for POST /api/voice/command.
type VoiceCommandRequest struct {
	UserID  string `json:"userId"`
	Command string `json:"command"`
}

// handleVoiceCommand resolves one of the fixed command names.
func (g *Gateway) handleVoiceCommand(w http.ResponseWriter, r *http.Request) {
	var req VoiceCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		g.sendJSONError(w, http.StatusBadRequest, "command is required")
		return
	}

	reply, ok := voice.RunCommand(req.Command)
	g.sendJSON(w, http.StatusOK, map[string]any{
		"command":    req.Command,
		"recognized": ok,
		"reply":      reply,
	})
}

// handleVoiceSession returns the stored voice conversation for a user.
func (g *Gateway) handleVoiceSession(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	turns := g.orch.VoiceHistory(userID, r.URL.Query().Get("sessionId"))
	g.sendJSON(w, http.StatusOK, map[string]any{
		"userId":  userID,
		"history": turns,
		"count":   len(turns),
	})
}

// handleClearVoiceSession drops the stored voice conversation for a user.
func (g *Gateway) handleClearVoiceSession(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	g.orch.ClearVoiceHistory(userID, r.URL.Query().Get("sessionId"))
	g.sendJSON(w, http.StatusOK, map[string]any{"userId": userID, "cleared": true})
}

// WakeWordRequest is the JSON request body for POST /api/voice/wake-word.
type WakeWordRequest struct {
	UserID   string `json:"userId"`
	WakeWord string `json:"wakeWord"`
}

// handleWakeWord acknowledges a detected wake word.
func (g *Gateway) handleWakeWord(w http.ResponseWriter, r *http.Request) {
	var req WakeWordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	g.sendJSON(w, http.StatusOK, map[string]any{
		"wakeWord": req.WakeWord,
		"reply":    voice.WakeWordReply(req.WakeWord),
	})
}

// EmergencyRequest is the JSON request body for POST /api/voice/emergency.
type EmergencyRequest struct {
	UserID        string `json:"userId"`
	EmergencyType string `json:"emergencyType,omitempty"`
	Location      string `json:"location,omitempty"`
	Details       string `json:"details,omitempty"`
}

// handleEmergency records an emergency alert. Alerts are always priority
// high regardless of what the caller claims.
func (g *Gateway) handleEmergency(w http.ResponseWriter, r *http.Request) {
	var req EmergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "userId is required")
		return
	}

	alert := &store.EmergencyAlert{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Type:      store.NormalizeAlertType(req.EmergencyType),
		Location:  req.Location,
		Details:   req.Details,
		Status:    store.AlertActive,
		Priority:  "high",
		CreatedAt: time.Now(),
	}

	backend, err := g.storage.SaveAlert(r.Context(), alert)
	if err != nil {
		g.logger.Error("emergency alert save failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "could not record alert")
		return
	}

	g.sendJSON(w, http.StatusCreated, map[string]any{"alert": alert, "backend": backend})
}

// ResolveEmergencyRequest is the JSON request body for
// PUT /api/voice/emergency/{alertId}.
type ResolveEmergencyRequest struct {
	Status string `json:"status"`
}

// handleResolveEmergency transitions an alert's status.
func (g *Gateway) handleResolveEmergency(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("alertId")
	var req ResolveEmergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch req.Status {
	case store.AlertResolved, store.AlertCancelled, store.AlertActive:
	default:
		g.sendJSONError(w, http.StatusBadRequest, "status must be active, resolved or cancelled")
		return
	}

	alert, backend, err := g.storage.UpdateAlertStatus(r.Context(), id, req.Status)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		g.sendJSONError(w, http.StatusInternalServerError, "could not update alert")
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{"alert": alert, "backend": backend})
}
