// ABOUTME: Tracks live client connections and their identity for the dispatcher
// ABOUTME: Groups connections per user and per user+session for fan-out delivery

package session

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultSessionID is used when a client registers without naming a session.
const DefaultSessionID = "default"

// Conn is the delivery side of a registered connection. Deliver must not
// block; implementations drop the event and return false when the
// connection cannot keep up or is gone.
type Conn interface {
	Deliver(eventType string, data any) bool
}

// Record describes one live connection.
type Record struct {
	ConnectionID string         `json:"connectionId"`
	UserID       string         `json:"userId"`
	SessionID    string         `json:"sessionId"`
	Preferences  map[string]any `json:"preferences,omitempty"`
	ConnectedAt  time.Time      `json:"connectedAt"`
	LastActivity time.Time      `json:"lastActivity"`
}

type entry struct {
	record Record
	conn   Conn
}

// Registry is the live-connection table. A user may hold any number of
// concurrent connections; connection identity is never reused.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*entry            // connectionID -> entry
	byUser map[string]map[string]*entry // userID -> connectionID -> entry
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]*entry),
		byUser: make(map[string]map[string]*entry),
		logger: logger.With("component", "session-registry"),
	}
}

// Register creates or overwrites the record for connectionID and joins it
// to the user and user+session fan-out groups. Idempotent per connection.
func (r *Registry) Register(connectionID, userID, sessionID string, preferences map[string]any, conn Conn) Record {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[connectionID]; ok {
		// Re-registration moves the connection between user groups.
		delete(r.byUser[old.record.UserID], connectionID)
		if len(r.byUser[old.record.UserID]) == 0 {
			delete(r.byUser, old.record.UserID)
		}
	}

	e := &entry{
		record: Record{
			ConnectionID: connectionID,
			UserID:       userID,
			SessionID:    sessionID,
			Preferences:  preferences,
			ConnectedAt:  now,
			LastActivity: now,
		},
		conn: conn,
	}
	r.conns[connectionID] = e
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]*entry)
	}
	r.byUser[userID][connectionID] = e

	r.logger.Info("session registered",
		"connection_id", connectionID,
		"user_id", userID,
		"session_id", sessionID,
		"user_connections", len(r.byUser[userID]),
	)
	return e.record
}

// Authorize reports whether connectionID is registered and its stored
// identity matches the claimed user.
func (r *Registry) Authorize(connectionID, claimedUserID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connectionID]
	return ok && e.record.UserID == claimedUserID
}

// Touch updates the last-activity timestamp. Unknown connections are a no-op.
func (r *Registry) Touch(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conns[connectionID]; ok {
		e.record.LastActivity = time.Now()
	}
}

// Remove drops the record for connectionID. Idempotent.
func (r *Registry) Remove(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connectionID]
	if !ok {
		return
	}
	delete(r.conns, connectionID)
	delete(r.byUser[e.record.UserID], connectionID)
	if len(r.byUser[e.record.UserID]) == 0 {
		delete(r.byUser, e.record.UserID)
	}

	r.logger.Info("session removed",
		"connection_id", connectionID,
		"user_id", e.record.UserID,
	)
}

// Get returns a snapshot of the record for connectionID.
func (r *Registry) Get(connectionID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connectionID]
	if !ok {
		return Record{}, false
	}
	return e.record, true
}

// ListActive returns a snapshot of all live records, not a live view.
func (r *Registry) ListActive() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.conns))
	for _, e := range r.conns {
		out = append(out, e.record)
	}
	return out
}

// SendToUser delivers an event to every connection of userID except
// excludeConnID. Returns the number of successful deliveries.
func (r *Registry) SendToUser(userID, eventType string, data any, excludeConnID string) int {
	return r.fanOut(r.collectUser(userID, "", excludeConnID), eventType, data)
}

// SendToSession delivers an event to the user's connections scoped to one
// logical session, excluding excludeConnID.
func (r *Registry) SendToSession(userID, sessionID, eventType string, data any, excludeConnID string) int {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	return r.fanOut(r.collectUser(userID, sessionID, excludeConnID), eventType, data)
}

// Broadcast delivers an event to every live connection except
// excludeConnID. Used only for emergency alerts.
func (r *Registry) Broadcast(eventType string, data any, excludeConnID string) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for id, e := range r.conns {
		if id == excludeConnID {
			continue
		}
		targets = append(targets, e.conn)
	}
	r.mu.RUnlock()

	return r.fanOut(targets, eventType, data)
}

// collectUser snapshots delivery targets under the read lock so sends
// happen without holding it.
func (r *Registry) collectUser(userID, sessionID, excludeConnID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group := r.byUser[userID]
	targets := make([]Conn, 0, len(group))
	for id, e := range group {
		if id == excludeConnID {
			continue
		}
		if sessionID != "" && e.record.SessionID != sessionID {
			continue
		}
		targets = append(targets, e.conn)
	}
	return targets
}

func (r *Registry) fanOut(targets []Conn, eventType string, data any) int {
	delivered := 0
	for _, c := range targets {
		if c.Deliver(eventType, data) {
			delivered++
		} else {
			r.logger.Debug("dropped event for slow connection", "event", eventType)
		}
	}
	return delivered
}
