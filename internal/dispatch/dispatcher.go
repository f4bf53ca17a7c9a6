// ABOUTME: Command dispatcher: routes inbound websocket events to handlers
// ABOUTME: Enforces register-first authorization and per-event identity checks

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yatri-ai/yatri-gateway/internal/booking"
	"github.com/yatri-ai/yatri-gateway/internal/conversation"
	"github.com/yatri-ai/yatri-gateway/internal/dedupe"
	"github.com/yatri-ai/yatri-gateway/internal/intent"
	"github.com/yatri-ai/yatri-gateway/internal/orchestrator"
	"github.com/yatri-ai/yatri-gateway/internal/provider"
	"github.com/yatri-ai/yatri-gateway/internal/session"
	"github.com/yatri-ai/yatri-gateway/internal/store"
	"github.com/yatri-ai/yatri-gateway/internal/voice"
)

// dedupeTTL is how long a client-supplied eventId shields against
// reprocessing; dedupeSize caps the tracked set.
const (
	dedupeTTL  = 5 * time.Minute
	dedupeSize = 4096
)

// Conn is what the dispatcher needs from a connection: a stable identity
// plus the registry's non-blocking delivery contract.
type Conn interface {
	session.Conn
	ID() string
}

// Dispatcher routes parsed events to their handlers. Every event except
// "register" requires the connection to be registered and the payload's
// claimed userId to match the registered identity; typing relays are
// lenient and drop silently instead.
type Dispatcher struct {
	registry *session.Registry
	orch     *orchestrator.Orchestrator
	storage  *store.Gateway
	seen     *dedupe.Cache
	timeout  time.Duration
	logger   *slog.Logger
}

// New builds a dispatcher. timeout bounds each provider-backed handler.
func New(registry *session.Registry, orch *orchestrator.Orchestrator, storage *store.Gateway, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		orch:     orch,
		storage:  storage,
		seen:     dedupe.New(dedupeTTL, dedupeSize),
		timeout:  timeout,
		logger:   slog.Default().With("component", "dispatcher"),
	}
}

// Disconnect drops the connection from the registry. Results still in
// flight for it will fail delivery and be dropped.
func (d *Dispatcher) Disconnect(c Conn) {
	d.registry.Remove(c.ID())
}

// HandleMessage parses one inbound frame and routes it. Events are
// processed in arrival order on the caller's goroutine.
func (d *Dispatcher) HandleMessage(c Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		c.Deliver(evError, errorData{Kind: errKindProtocol, Message: "malformed event, expected {type, data}"})
		return
	}

	// Duplicate events are acknowledged but never reprocessed.
	var dedupeKey string
	if env.EventID != "" {
		dedupeKey = c.ID() + "|" + env.EventID
	}
	if dedupeKey != "" && d.seen.Seen(dedupeKey) {
		c.Deliver(evAck, map[string]any{"eventId": env.EventID, "duplicate": true})
		return
	}

	var accepted bool
	switch env.Type {
	case evRegister:
		accepted = d.handleRegister(c, env)
	case evTypingStart, evTypingStop:
		accepted = d.handleTyping(c, env)
	case evChatMessage:
		accepted = d.handleChat(c, env)
	case evChatStream:
		accepted = d.handleChatStream(c, env)
	case evVoiceCommand:
		accepted = d.handleVoice(c, env)
	case evWakeWord:
		accepted = d.handleWakeWord(c, env)
	case evBookingRequest:
		accepted = d.handleBookingRequest(c, env)
	case evBookingSimulate:
		accepted = d.handleBookingSimulate(c, env)
	case evEmergencyAlert:
		accepted = d.handleEmergency(c, env)
	case evStatusRequest:
		accepted = d.handleStatus(c)
	default:
		c.Deliver(evError, errorData{Kind: errKindProtocol, Message: "unknown event type " + env.Type})
	}

	// Only an accepted event shields its id; a rejected one may be
	// corrected and retried under the same id.
	if accepted && dedupeKey != "" {
		d.seen.Mark(dedupeKey)
	}
}

// authorize loads the caller's registration and checks the claimed
// identity. On failure it emits the authorization error and returns
// ok=false; the connection stays open.
func (d *Dispatcher) authorize(c Conn, claimedUserID string) (session.Record, bool) {
	rec, ok := d.registry.Get(c.ID())
	if !ok {
		c.Deliver(evError, errorData{Kind: errKindAuthorization, Message: "register before sending events"})
		return session.Record{}, false
	}
	if claimedUserID != rec.UserID {
		c.Deliver(evError, errorData{Kind: errKindAuthorization, Message: "userId does not match this connection"})
		return session.Record{}, false
	}
	d.registry.Touch(c.ID())
	return rec, true
}

func (d *Dispatcher) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.timeout)
}

func (d *Dispatcher) handleRegister(c Conn, env Envelope) bool {
	var p registerPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.UserID == "" {
		c.Deliver(evError, errorData{Kind: errKindProtocol, Message: "register requires a userId"})
		return false
	}

	rec := d.registry.Register(c.ID(), p.UserID, p.SessionID, p.Preferences, c)
	c.Deliver(evRegistered, rec)
	return true
}

// resolveConversationID echoes the conversation the reply belongs to,
// substituting the default when the caller named none.
func resolveConversationID(id string) string {
	if id == "" {
		return conversation.DefaultConversationID
	}
	return id
}

func (d *Dispatcher) handleChat(c Conn, env Envelope) bool {
	var p chatPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.Message == "" {
		c.Deliver(evError, errorData{Kind: errKindProtocol, Message: "chat-message requires a message"})
		return false
	}
	rec, ok := d.authorize(c, p.UserID)
	if !ok {
		return false
	}

	c.Deliver(evChatProcessing, map[string]any{"eventId": env.EventID})

	ctx, cancel := d.opContext()
	defer cancel()
	res := d.orch.Chat(ctx, orchestrator.Request{
		UserID:         p.UserID,
		ConversationID: p.ConversationID,
		Message:        p.Message,
		Confidence:     confidenceOrDefault(p.Confidence),
		ForceReasoner:  p.UseReasoner,
	})

	response := map[string]any{
		"message":        p.Message,
		"reply":          res.Reply,
		"requiresRepeat": res.RequiresRepeat,
		"escalated":      res.Escalated,
		"conversationId": resolveConversationID(p.ConversationID),
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	c.Deliver(evChatResponse, response)

	// Mirror the exchange to the user's other connections so every open
	// client shows the same conversation.
	if !res.RequiresRepeat {
		d.registry.SendToUser(rec.UserID, evChatMirror, response, c.ID())
	}
	return true
}

func (d *Dispatcher) handleChatStream(c Conn, env Envelope) bool {
	var p chatPayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.Message == "" {
		c.Deliver(evError, errorData{Kind: errKindProtocol, Message: "chat-stream requires a message"})
		return false
	}
	if _, ok := d.authorize(c, p.UserID); !ok {
		return false
	}

	ctx, cancel := d.opContext()
	defer cancel()
	res := d.orch.ChatStream(ctx, orchestrator.Request{
		UserID:         p.UserID,
		ConversationID: p.ConversationID,
		Message:        p.Message,
		Confidence:     confidenceOrDefault(p.Confidence),
		ForceReasoner:  p.UseReasoner,
	}, func(chunk string) error {
		if !c.Deliver(evChatChunk, map[string]any{"text": chunk}) {
			return errors.New("client gone")
		}
		return nil
	})

	if res.Reply.Source == provider.SourceError && !res.RequiresRepeat {
		c.Deliver(evChatError, errorData{Kind: errKindInternal, Message: res.Reply.Text})
		return true
	}
	c.Deliver(evChatComplete, map[string]any{
		"reply":          res.Reply,
		"requiresRepeat": res.RequiresRepeat,
		"conversationId": resolveConversationID(p.ConversationID),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
	return true
}

func (d *Dispatcher) handleVoice(c Conn, env Envelope) bool {
	var p voicePayload
	if err := json.Unmarshal(env.Data, &p); err != nil || p.Transcript == "" {
		c.Deliver(evError, errorData{Kind: errKindProtocol, Message: "voice-command requires a transcript"})
		return false
	}
	if _, ok := d.authorize(c, p.UserID); !ok {
		return false
	}

	ctx, cancel := d.opContext()
	defer cancel()
	res := d.orch.Voice(ctx, orchestrator.Request{
		UserID:         p.UserID,
		ConversationID: p.SessionID,
		Message:        p.Transcript,
		Confidence:     confidenceOrDefault(p.Confidence),
	})

	c.Deliver(evVoiceResponse, map[string]any{
		"transcript":     p.Transcript,
		"reply":          res.Reply,
		"intent":         res.Intent,
		"requiresRepeat": res.RequiresRepeat,
	})

	if !res.RequiresRepeat && intent.Advisory(res.Intent) {
		c.Deliver(evVoiceIntent, map[string]any{
			"intent":     res.Intent,
			"transcript": p.Transcript,
		})
	}
	return true
}

func (d *Dispatcher) handleWakeWord(c Conn, env Envelope) bool {
	var p wakeWordPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		c.Deliver(evError, errorData{Kind: errKindProtocol, Message: "wake-word requires a payload"})
		return false
	}
	if _, ok := d.authorize(c, p.UserID); !ok {
		return false
	}

	c.Deliver(evWakeWordResponse, map[string]any{
		"wakeWord": p.WakeWord,
		"reply":    voice.WakeWordReply(p.WakeWord),
	})
	return true
}

func (d *Dispatcher) handleBookingRequest(c Conn, env Envelope) bool {
	var p bookingPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		c.Deliver(evError, errorData{Kind: errKindProtocol, Message: "booking-request requires a booking"})
		return false
	}
	rec, ok := d.authorize(c, p.UserID)
	if !ok {
		return false
	}

	b := p.Booking
	b.UserID = p.UserID
	booking.Prepare(&b)
	if err := booking.Validate(&b); err != nil {
		c.Deliver(evBookingError, errorData{Kind: errKindValidation, Message: err.Error()})
		return false
	}

	ctx, cancel := d.opContext()
	defer cancel()
	backend, err := d.storage.SaveBooking(ctx, &b)
	if err != nil {
		d.logger.Error("booking save failed", "error", err)
		c.Deliver(evBookingError, errorData{Kind: errKindInternal, Message: "could not save booking"})
		return false
	}

	confirmed := map[string]any{"booking": &b, "backend": backend}
	c.Deliver(evBookingConfirmed, confirmed)
	d.registry.SendToUser(rec.UserID, evBookingNotification, confirmed, c.ID())
	return true
}

func (d *Dispatcher) handleBookingSimulate(c Conn, env Envelope) bool {
	var p bookingPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		c.Deliver(evError, errorData{Kind: errKindProtocol, Message: "booking-simulate requires a booking"})
		return false
	}
	if _, ok := d.authorize(c, p.UserID); !ok {
		return false
	}

	b := p.Booking
	if err := booking.ValidateRoute(&b); err != nil {
		c.Deliver(evBookingError, errorData{Kind: errKindValidation, Message: err.Error()})
		return false
	}

	c.Deliver(evBookingOptions, map[string]any{
		"type":    b.Type,
		"from":    b.From,
		"to":      b.To,
		"options": booking.Simulate(&b),
	})
	return true
}

func (d *Dispatcher) handleEmergency(c Conn, env Envelope) bool {
	var p emergencyPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		c.Deliver(evError, errorData{Kind: errKindProtocol, Message: "emergency-alert requires a payload"})
		return false
	}
	if _, ok := d.authorize(c, p.UserID); !ok {
		return false
	}

	alert := &store.EmergencyAlert{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		Type:      store.NormalizeAlertType(p.EmergencyType),
		Location:  p.Location,
		Details:   p.Details,
		Status:    store.AlertActive,
		Priority:  "high",
		CreatedAt: time.Now(),
	}

	ctx, cancel := d.opContext()
	defer cancel()
	backend, err := d.storage.SaveAlert(ctx, alert)
	if err != nil {
		// The broadcast still goes out; losing the record must not
		// silence the alarm.
		d.logger.Error("emergency alert save failed", "error", err)
		backend = ""
	}

	data := map[string]any{"alert": alert, "backend": backend}
	c.Deliver(evEmergencyResponse, data)
	d.registry.Broadcast(evEmergencyBroadcast, data, c.ID())
	return true
}

func (d *Dispatcher) handleTyping(c Conn, env Envelope) bool {
	var p typingPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return false
	}

	// Lenient path: unknown or mismatched connections are dropped
	// silently, a typing indicator is not worth an error frame.
	rec, ok := d.registry.Get(c.ID())
	if !ok || rec.UserID != p.UserID {
		return false
	}
	d.registry.SendToSession(rec.UserID, rec.SessionID, env.Type, map[string]any{
		"userId":    rec.UserID,
		"sessionId": rec.SessionID,
	}, c.ID())
	return true
}

func (d *Dispatcher) handleStatus(c Conn) bool {
	rec, ok := d.registry.Get(c.ID())
	if !ok {
		c.Deliver(evError, errorData{Kind: errKindAuthorization, Message: "register before sending events"})
		return false
	}
	c.Deliver(evStatusResponse, rec)
	return true
}

