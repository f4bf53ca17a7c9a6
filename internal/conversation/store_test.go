// ABOUTME: Tests for the bounded conversation store
// ABOUTME: Covers pair-wise append, FIFO eviction, isolation between keys, clearing

package conversation

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exchange(i int) (Turn, Turn) {
	return Turn{Content: fmt.Sprintf("question %d", i), Channel: ChannelText},
		Turn{Content: fmt.Sprintf("answer %d", i), Channel: ChannelText}
}

func TestStore_AppendAndGet(t *testing.T) {
	s := NewStore(20)
	key := NewKey("u1", "default")

	u, a := exchange(1)
	s.Append(key, u, a)

	got := s.Get(key)
	require.Len(t, got, 2)
	assert.Equal(t, RoleUser, got[0].Role)
	assert.Equal(t, "question 1", got[0].Content)
	assert.Equal(t, RoleAssistant, got[1].Role)
	assert.Equal(t, "answer 1", got[1].Content)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestStore_UnknownKeyReturnsEmpty(t *testing.T) {
	s := NewStore(20)
	got := s.Get(NewKey("nobody", ""))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_DefaultConversationID(t *testing.T) {
	assert.Equal(t, Key{UserID: "u1", ConversationID: "default"}, NewKey("u1", ""))
	assert.Equal(t, Key{UserID: "u1", ConversationID: "trip"}, NewKey("u1", "trip"))
}

func TestStore_EvictsOldestPairsFirst(t *testing.T) {
	s := NewStore(6)
	key := NewKey("u1", "")

	for i := 1; i <= 10; i++ {
		u, a := exchange(i)
		s.Append(key, u, a)
	}

	got := s.Get(key)
	require.Len(t, got, 6)

	// Window always contains complete pairs, most recent last.
	assert.Equal(t, "question 8", got[0].Content)
	assert.Equal(t, "answer 8", got[1].Content)
	assert.Equal(t, "question 10", got[4].Content)
	assert.Equal(t, "answer 10", got[5].Content)
	for i := 0; i < len(got); i += 2 {
		assert.Equal(t, RoleUser, got[i].Role)
		assert.Equal(t, RoleAssistant, got[i+1].Role)
	}
}

func TestStore_OddCapRoundsDownToEven(t *testing.T) {
	s := NewStore(5)
	key := NewKey("u1", "")

	for i := 1; i <= 4; i++ {
		u, a := exchange(i)
		s.Append(key, u, a)
	}

	// Cap 5 rounds down to 4; never an odd-length window.
	assert.Equal(t, 4, s.Len(key))
}

func TestStore_KeysAreIsolated(t *testing.T) {
	s := NewStore(20)
	k1 := NewKey("u1", "default")
	k2 := NewKey("u1", "trip")
	k3 := NewKey("u2", "default")

	u, a := exchange(1)
	s.Append(k1, u, a)

	assert.Len(t, s.Get(k1), 2)
	assert.Empty(t, s.Get(k2))
	assert.Empty(t, s.Get(k3))
}

func TestStore_Clear(t *testing.T) {
	s := NewStore(20)
	key := NewKey("u1", "")

	u, a := exchange(1)
	s.Append(key, u, a)
	s.Clear(key)

	assert.Empty(t, s.Get(key))

	// Clearing an unknown key must not panic.
	s.Clear(NewKey("ghost", ""))
}

func TestStore_Tail(t *testing.T) {
	s := NewStore(20)
	key := NewKey("u1", "")

	for i := 1; i <= 8; i++ {
		u, a := exchange(i)
		s.Append(key, u, a)
	}

	tail := s.Tail(key, 4)
	require.Len(t, tail, 4)
	assert.Equal(t, "question 7", tail[0].Content)
	assert.Equal(t, "answer 8", tail[3].Content)

	// Asking for more than exists returns everything.
	assert.Len(t, s.Tail(key, 100), 16)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore(20)
	key := NewKey("u1", "")

	u, a := exchange(1)
	s.Append(key, u, a)

	got := s.Get(key)
	got[0].Content = "mutated"

	assert.Equal(t, "question 1", s.Get(key)[0].Content)
}

func TestStore_ConcurrentAppends(t *testing.T) {
	s := NewStore(20)
	key := NewKey("u1", "")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			u, a := exchange(i)
			s.Append(key, u, a)
		})
	}
	wg.Wait()

	got := s.Get(key)
	assert.Len(t, got, 20)
	for i := 0; i < len(got); i += 2 {
		assert.Equal(t, RoleUser, got[i].Role)
		assert.Equal(t, RoleAssistant, got[i+1].Role)
	}
}
