// ABOUTME: Wire shapes for the websocket dispatcher
// ABOUTME: Inbound envelopes, outbound events and the per-event payloads

package dispatch

import (
	"encoding/json"

	"github.com/yatri-ai/yatri-gateway/internal/store"
)

// Envelope is the inbound wire frame. Data stays raw until the event
// type selects a payload shape.
type Envelope struct {
	Type    string          `json:"type"`
	EventID string          `json:"eventId,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Event is the outbound wire frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Inbound event types.
const (
	evRegister        = "register"
	evChatMessage     = "chat-message"
	evChatStream      = "chat-stream"
	evVoiceCommand    = "voice-command"
	evWakeWord        = "wake-word"
	evBookingRequest  = "booking-request"
	evBookingSimulate = "booking-simulate"
	evEmergencyAlert  = "emergency-alert"
	evTypingStart     = "typing-start"
	evTypingStop      = "typing-stop"
	evStatusRequest   = "status-request"
)

// Outbound event types.
const (
	evRegistered          = "registered"
	evChatProcessing      = "chat-processing"
	evChatResponse        = "chat-response"
	evChatMirror          = "chat-mirror"
	evChatChunk           = "chat-chunk"
	evChatComplete        = "chat-complete"
	evChatError           = "chat-error"
	evVoiceResponse       = "voice-response"
	evVoiceIntent         = "voice-intent"
	evWakeWordResponse    = "wake-word-response"
	evBookingConfirmed    = "booking-confirmed"
	evBookingNotification = "booking-notification"
	evBookingError        = "booking-error"
	evBookingOptions      = "booking-options"
	evEmergencyResponse   = "emergency-response"
	evEmergencyBroadcast  = "emergency-broadcast"
	evStatusResponse      = "status-response"
	evAck                 = "ack"
	evError               = "error"
)

// Error kinds carried in "error" events.
const (
	errKindProtocol      = "protocol"
	errKindAuthorization = "authorization"
	errKindValidation    = "validation"
	errKindInternal      = "internal"
)

type errorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type registerPayload struct {
	UserID      string         `json:"userId"`
	SessionID   string         `json:"sessionId,omitempty"`
	Preferences map[string]any `json:"preferences,omitempty"`
}

type chatPayload struct {
	UserID         string   `json:"userId"`
	Message        string   `json:"message"`
	ConversationID string   `json:"conversationId,omitempty"`
	UseReasoner    bool     `json:"useReasoner,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

type voicePayload struct {
	UserID     string   `json:"userId"`
	Transcript string   `json:"transcript"`
	SessionID  string   `json:"sessionId,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

type wakeWordPayload struct {
	UserID   string `json:"userId"`
	WakeWord string `json:"wakeWord"`
}

type bookingPayload struct {
	UserID  string        `json:"userId"`
	Booking store.Booking `json:"booking"`
}

type emergencyPayload struct {
	UserID        string `json:"userId"`
	EmergencyType string `json:"emergencyType"`
	Location      string `json:"location,omitempty"`
	Details       string `json:"details,omitempty"`
}

type typingPayload struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
}

// confidenceOrDefault treats an absent confidence as full confidence;
// only callers that measured one send it.
func confidenceOrDefault(c *float64) float64 {
	if c == nil {
		return 1
	}
	return *c
}
