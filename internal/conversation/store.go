// ABOUTME: Bounded in-memory conversation history keyed by (user, conversation)
// ABOUTME: Appends user/assistant turns as atomic pairs and evicts oldest pairs first

package conversation

import (
	"sync"
	"time"
)

// DefaultConversationID is used when a caller does not name a conversation.
const DefaultConversationID = "default"

// Role values for a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Channel tags for a conversation turn.
const (
	ChannelText  = "text"
	ChannelVoice = "voice"
)

// Key identifies one conversation history.
type Key struct {
	UserID         string
	ConversationID string
}

// NewKey builds a Key, substituting DefaultConversationID when the
// conversation id is empty.
func NewKey(userID, conversationID string) Key {
	if conversationID == "" {
		conversationID = DefaultConversationID
	}
	return Key{UserID: userID, ConversationID: conversationID}
}

// Turn is a single message in a conversation history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Channel   string    `json:"channel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Store holds bounded conversation histories. All state is ephemeral and
// reconstructible; the storage gateway remains the writer of record for
// anything durable.
type Store struct {
	mu        sync.RWMutex
	histories map[Key][]Turn
	cap       int
}

// NewStore creates a store retaining at most cap messages per key.
// cap is rounded down to an even number so eviction always removes
// whole user/assistant pairs.
func NewStore(cap int) *Store {
	if cap < 2 {
		cap = 2
	}
	cap -= cap % 2
	return &Store{
		histories: make(map[Key][]Turn),
		cap:       cap,
	}
}

// Append records one exchange (user turn then assistant turn) as a unit,
// then truncates from the front to the configured cap. The two turns are
// never split across an eviction boundary.
func (s *Store) Append(key Key, user, assistant Turn) {
	now := time.Now()
	if user.Timestamp.IsZero() {
		user.Timestamp = now
	}
	if assistant.Timestamp.IsZero() {
		assistant.Timestamp = now
	}
	user.Role = RoleUser
	assistant.Role = RoleAssistant

	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.histories[key], user, assistant)
	if excess := len(h) - s.cap; excess > 0 {
		h = h[excess:]
	}
	s.histories[key] = h
}

// Get returns a copy of the history for key, oldest first.
// Unknown keys yield an empty slice, never an error.
func (s *Store) Get(key Key) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[key]
	out := make([]Turn, len(h))
	copy(out, h)
	return out
}

// Tail returns a copy of the most recent n turns for key.
func (s *Store) Tail(key Key, n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.histories[key]
	if len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]Turn, len(h))
	copy(out, h)
	return out
}

// Clear removes the history for key entirely. Unknown keys are a no-op.
func (s *Store) Clear(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.histories, key)
}

// Len reports the number of retained messages for key.
func (s *Store) Len(key Key) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories[key])
}
