package friends

import (
	"path/filepath"
	"testing"

	"relay/internal/models"
	"relay/internal/registry"
	"relay/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSessions struct {
	online map[string]bool
	events map[string][]models.ServerMessage
}

func newRecordingSessions(online ...string) *recordingSessions {
	s := &recordingSessions{online: map[string]bool{}, events: map[string][]models.ServerMessage{}}
	for _, id := range online {
		s.online[id] = true
	}
	return s
}

func (r *recordingSessions) SendTo(identity string, msg models.ServerMessage) registry.Delivery {
	if !r.online[identity] {
		return registry.Offline
	}
	r.events[identity] = append(r.events[identity], msg)
	return registry.Delivered
}

func setup(t *testing.T, online ...string) (*Synchronizer, *storage.BboltStorage, *recordingSessions) {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "friends.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, store.UpsertUser(models.User{ID: id, Name: id}))
	}

	sessions := newRecordingSessions(online...)
	return NewSynchronizer(store, store, sessions), store, sessions
}

func status(t *testing.T, store *storage.BboltStorage, owner, friend string) models.FriendStatus {
	t.Helper()
	edges, err := store.ListFriends(owner)
	require.NoError(t, err)
	for _, e := range edges {
		if e.FriendID == friend {
			return e.Status
		}
	}
	return ""
}

func TestAddFriend(t *testing.T) {
	s, store, sessions := setup(t, "bob")

	require.NoError(t, s.AddFriend("alice", "bob"))
	assert.Equal(t, models.FriendStatusPending, status(t, store, "alice", "bob"))
	assert.Equal(t, models.FriendStatusRequested, status(t, store, "bob", "alice"))

	require.Len(t, sessions.events["bob"], 1)
	assert.Equal(t, models.ServerMessageTypeFriendStatus, sessions.events["bob"][0].Type)
	assert.Equal(t, models.FriendStatusChange{PeerID: "alice", Status: models.FriendStatusRequested},
		sessions.events["bob"][0].Payload)

	assert.ErrorIs(t, s.AddFriend("alice", "bob"), ErrAlreadyExists)
	// The reverse direction already exists as well.
	assert.ErrorIs(t, s.AddFriend("bob", "alice"), ErrAlreadyExists)
}

func TestAddFriend_Rejects(t *testing.T) {
	s, _, _ := setup(t)

	assert.ErrorIs(t, s.AddFriend("alice", "alice"), ErrSelf)
	assert.ErrorIs(t, s.AddFriend("alice", "ghost"), models.ErrNotFound)
}

func TestAcceptFriend(t *testing.T) {
	s, store, sessions := setup(t, "alice")

	t.Run("Without request", func(t *testing.T) {
		err := s.AcceptFriend("bob", "alice")
		assert.ErrorIs(t, err, ErrRequestNotFound)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("After request", func(t *testing.T) {
		require.NoError(t, s.AddFriend("alice", "bob"))
		require.NoError(t, s.AcceptFriend("bob", "alice"))

		assert.Equal(t, models.FriendStatusAccepted, status(t, store, "alice", "bob"))
		assert.Equal(t, models.FriendStatusAccepted, status(t, store, "bob", "alice"))
		require.Len(t, sessions.events["alice"], 1)
		assert.Equal(t, models.FriendStatusChange{PeerID: "bob", Status: models.FriendStatusAccepted},
			sessions.events["alice"][0].Payload)
	})

	t.Run("Twice", func(t *testing.T) {
		assert.ErrorIs(t, s.AcceptFriend("bob", "alice"), ErrRequestNotFound)
		assert.Len(t, sessions.events["alice"], 1)
	})

	t.Run("Requester cannot accept own request", func(t *testing.T) {
		require.NoError(t, s.AddFriend("alice", "carol"))
		assert.ErrorIs(t, s.AcceptFriend("alice", "carol"), ErrRequestNotFound)
		assert.Equal(t, models.FriendStatusPending, status(t, store, "alice", "carol"))
	})
}

func TestAcceptFriend_BrokenPeerSide(t *testing.T) {
	s, store, _ := setup(t)

	// Only the accepter's half exists.
	require.NoError(t, store.UpdateFriendPair("bob", "alice", func(p *models.FriendPair) error {
		p.Forward = &models.FriendEdge{Status: models.FriendStatusRequested}
		return nil
	}))

	assert.ErrorIs(t, s.AcceptFriend("bob", "alice"), ErrPeerRequestNotFound)
	// Nothing was half-applied.
	assert.Equal(t, models.FriendStatusRequested, status(t, store, "bob", "alice"))
}

func TestRemoveFriend(t *testing.T) {
	s, store, sessions := setup(t, "bob")

	require.NoError(t, s.AddFriend("alice", "bob"))
	require.NoError(t, s.AcceptFriend("bob", "alice"))
	require.NoError(t, s.RemoveFriend("alice", "bob"))

	assert.Empty(t, status(t, store, "alice", "bob"))
	assert.Empty(t, status(t, store, "bob", "alice"))

	last := sessions.events["bob"][len(sessions.events["bob"])-1]
	assert.Equal(t, models.ServerMessageTypeFriendRemoved, last.Type)
	assert.Equal(t, models.FriendRemoved{PeerID: "alice"}, last.Payload)

	assert.ErrorIs(t, s.RemoveFriend("alice", "bob"), models.ErrNotFound)

	friends, err := store.ListFriends("alice")
	require.NoError(t, err)
	assert.Empty(t, friends)
}
