package registry

import (
	"testing"

	"relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ping() models.ServerMessage {
	return models.ServerMessage{Type: models.ServerMessageTypeNotificationPing}
}

func TestRegistry_ResolveAfterRegister(t *testing.T) {
	r := New(10)
	h := NewHandle()
	r.Attach(h)

	_, ok := r.Resolve("alice")
	assert.False(t, ok)

	superseded, previous := r.Register("alice", h)
	assert.Empty(t, superseded)
	assert.Empty(t, previous)

	got, ok := r.Resolve("alice")
	require.True(t, ok)
	assert.Equal(t, h, got)
	assert.Equal(t, []string{"alice"}, r.Online())
}

func TestRegistry_LastWriterWins(t *testing.T) {
	r := New(10)
	h1, h2 := NewHandle(), NewHandle()
	ch1 := r.Attach(h1)
	ch2 := r.Attach(h2)

	r.Register("alice", h1)
	superseded, _ := r.Register("alice", h2)
	assert.Equal(t, h1, superseded)

	got, _ := r.Resolve("alice")
	assert.Equal(t, h2, got)

	assert.Equal(t, Delivered, r.SendTo("alice", ping()))
	assert.Len(t, ch2, 1)
	assert.Len(t, ch1, 0)

	// The stale connection going away must not unbind the new one.
	identity, ok := r.Detach(h1)
	assert.False(t, ok)
	assert.Empty(t, identity)

	got, ok = r.Resolve("alice")
	require.True(t, ok)
	assert.Equal(t, h2, got)
}

func TestRegistry_RebindHandle(t *testing.T) {
	r := New(10)
	h := NewHandle()
	r.Attach(h)

	r.Register("alice", h)
	_, previous := r.Register("bob", h)
	assert.Equal(t, "alice", previous)

	_, ok := r.Resolve("alice")
	assert.False(t, ok)
	identity, _ := r.IdentityOf(h)
	assert.Equal(t, "bob", identity)
}

func TestRegistry_Detach(t *testing.T) {
	r := New(10)
	h := NewHandle()
	ch := r.Attach(h)
	r.Register("alice", h)

	identity, ok := r.Detach(h)
	require.True(t, ok)
	assert.Equal(t, "alice", identity)

	_, open := <-ch
	assert.False(t, open, "outbox should be closed")

	assert.Equal(t, Offline, r.SendTo("alice", ping()))
	assert.Equal(t, Offline, r.Send(h, ping()))
	assert.Empty(t, r.Online())

	// Detaching twice is harmless.
	_, ok = r.Detach(h)
	assert.False(t, ok)
}

func TestRegistry_FullOutboxDrops(t *testing.T) {
	r := New(1)
	h := NewHandle()
	r.Attach(h)
	r.Register("alice", h)

	assert.Equal(t, Delivered, r.SendTo("alice", ping()))
	assert.Equal(t, Dropped, r.SendTo("alice", ping()))
	assert.Equal(t, "dropped", Dropped.String())
}

func TestRegistry_BroadcastReachesUnbound(t *testing.T) {
	r := New(10)
	bound, unbound := NewHandle(), NewHandle()
	chBound := r.Attach(bound)
	chUnbound := r.Attach(unbound)
	r.Register("alice", bound)

	r.Broadcast(ping())

	assert.Len(t, chBound, 1)
	assert.Len(t, chUnbound, 1)
}
