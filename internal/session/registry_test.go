// ABOUTME: Tests for the session registry
// ABOUTME: Covers register/authorize/touch/remove, fan-out groups, global broadcast

package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records delivered events and can simulate a saturated connection.
type fakeConn struct {
	mu     sync.Mutex
	events []string
	full   bool
}

func (f *fakeConn) Deliver(eventType string, data any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.events = append(f.events, eventType)
	return true
}

func (f *fakeConn) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

func TestRegistry_RegisterAndAuthorize(t *testing.T) {
	r := NewRegistry(nil)
	c := &fakeConn{}

	rec := r.Register("conn-1", "u1", "", nil, c)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, DefaultSessionID, rec.SessionID)
	assert.False(t, rec.ConnectedAt.IsZero())

	assert.True(t, r.Authorize("conn-1", "u1"))
	assert.False(t, r.Authorize("conn-1", "u2"))
	assert.False(t, r.Authorize("unknown", "u1"))
}

func TestRegistry_RegisterIsIdempotentPerConnection(t *testing.T) {
	r := NewRegistry(nil)
	c := &fakeConn{}

	r.Register("conn-1", "u1", "a", nil, c)
	r.Register("conn-1", "u1", "a", nil, c)

	assert.Len(t, r.ListActive(), 1)
}

func TestRegistry_ReRegisterMovesUserGroup(t *testing.T) {
	r := NewRegistry(nil)
	c := &fakeConn{}

	r.Register("conn-1", "u1", "", nil, c)
	r.Register("conn-1", "u2", "", nil, c)

	assert.False(t, r.Authorize("conn-1", "u1"))
	assert.True(t, r.Authorize("conn-1", "u2"))
	assert.Zero(t, r.SendToUser("u1", "ping", nil, ""))
	assert.Equal(t, 1, r.SendToUser("u2", "ping", nil, ""))
}

func TestRegistry_Touch(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("conn-1", "u1", "", nil, &fakeConn{})

	before, _ := r.Get("conn-1")
	time.Sleep(5 * time.Millisecond)
	r.Touch("conn-1")
	after, ok := r.Get("conn-1")

	require.True(t, ok)
	assert.True(t, after.LastActivity.After(before.LastActivity))

	// Touching an unknown connection must not panic.
	r.Touch("ghost")
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("conn-1", "u1", "", nil, &fakeConn{})

	r.Remove("conn-1")
	r.Remove("conn-1")

	assert.False(t, r.Authorize("conn-1", "u1"))
	assert.Empty(t, r.ListActive())
}

func TestRegistry_SendToUserExcludesSender(t *testing.T) {
	r := NewRegistry(nil)
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	c3 := &fakeConn{}
	r.Register("conn-1", "u1", "", nil, c1)
	r.Register("conn-2", "u1", "", nil, c2)
	r.Register("conn-3", "u2", "", nil, c3)

	n := r.SendToUser("u1", "chat-mirror", map[string]any{"x": 1}, "conn-1")

	assert.Equal(t, 1, n)
	assert.Empty(t, c1.got())
	assert.Equal(t, []string{"chat-mirror"}, c2.got())
	assert.Empty(t, c3.got())
}

func TestRegistry_SendToSessionScopesBySessionID(t *testing.T) {
	r := NewRegistry(nil)
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	c3 := &fakeConn{}
	r.Register("conn-1", "u1", "mobile", nil, c1)
	r.Register("conn-2", "u1", "mobile", nil, c2)
	r.Register("conn-3", "u1", "desktop", nil, c3)

	n := r.SendToSession("u1", "mobile", "typing", nil, "conn-1")

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"typing"}, c2.got())
	assert.Empty(t, c3.got())
}

func TestRegistry_BroadcastReachesAllUsers(t *testing.T) {
	r := NewRegistry(nil)
	c1 := &fakeConn{}
	c2 := &fakeConn{}
	c3 := &fakeConn{}
	r.Register("conn-1", "u1", "", nil, c1)
	r.Register("conn-2", "u2", "", nil, c2)
	r.Register("conn-3", "u3", "", nil, c3)

	n := r.Broadcast("emergency-broadcast", map[string]any{"type": "medical"}, "")

	assert.Equal(t, 3, n)
	for _, c := range []*fakeConn{c1, c2, c3} {
		assert.Equal(t, []string{"emergency-broadcast"}, c.got())
	}
}

func TestRegistry_SlowConnectionDoesNotCountAsDelivered(t *testing.T) {
	r := NewRegistry(nil)
	slow := &fakeConn{full: true}
	fast := &fakeConn{}
	r.Register("conn-1", "u1", "", nil, slow)
	r.Register("conn-2", "u1", "", nil, fast)

	n := r.SendToUser("u1", "chat-mirror", nil, "")

	assert.Equal(t, 1, n)
	assert.Empty(t, slow.got())
}

func TestRegistry_ListActiveIsSnapshot(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("conn-1", "u1", "", map[string]any{"lang": "hi"}, &fakeConn{})

	list := r.ListActive()
	require.Len(t, list, 1)

	r.Remove("conn-1")
	assert.Len(t, list, 1, "snapshot must not change after removal")
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			id := string(rune('a' + i))
			r.Register("conn-"+id, "u1", "", nil, &fakeConn{})
			r.Touch("conn-" + id)
			r.SendToUser("u1", "ping", nil, "")
			r.Remove("conn-" + id)
		})
	}
	wg.Wait()

	assert.Empty(t, r.ListActive())
}
