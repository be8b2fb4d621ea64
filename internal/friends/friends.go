package friends

import (
	"errors"
	"fmt"
	"time"

	"relay/internal/models"
	"relay/internal/registry"
)

var (
	ErrSelf          = errors.New("cannot add yourself as a friend")
	ErrAlreadyExists = errors.New("friend relationship already exists")

	// The not-found errors below all match models.ErrNotFound.
	ErrRequestNotFound     = fmt.Errorf("friend request %w", models.ErrNotFound)
	ErrPeerRequestNotFound = fmt.Errorf("peer side of friend request %w", models.ErrNotFound)
	ErrFriendNotFound      = fmt.Errorf("friend %w", models.ErrNotFound)
)

type Store interface {
	UpdateFriendPair(ownerID, friendID string, fn func(pair *models.FriendPair) error) error
}

type Users interface {
	GetUser(id string) (models.User, error)
}

type Deliverer interface {
	SendTo(identity string, msg models.ServerMessage) registry.Delivery
}

// Synchronizer keeps both halves of a friendship in step. Each operation
// rewrites the pair in a single storage transaction.
type Synchronizer struct {
	store    Store
	users    Users
	sessions Deliverer
	now      func() time.Time
}

func NewSynchronizer(store Store, users Users, sessions Deliverer) *Synchronizer {
	return &Synchronizer{
		store:    store,
		users:    users,
		sessions: sessions,
		now:      time.Now,
	}
}

// AddFriend records a request from requester to target: requester's half
// becomes pending and target's half requested.
func (s *Synchronizer) AddFriend(requesterID, targetID string) error {
	if requesterID == targetID {
		return ErrSelf
	}
	if _, err := s.users.GetUser(targetID); err != nil {
		return err
	}

	now := s.now().Unix()
	err := s.store.UpdateFriendPair(requesterID, targetID, func(pair *models.FriendPair) error {
		if pair.Forward != nil {
			return fmt.Errorf("%s -> %s is %s: %w", requesterID, targetID, pair.Forward.Status, ErrAlreadyExists)
		}
		pair.Forward = &models.FriendEdge{
			OwnerID:  requesterID,
			FriendID: targetID,
			Status:   models.FriendStatusPending,
			AddedAt:  now,
		}
		pair.Reverse = &models.FriendEdge{
			OwnerID:  targetID,
			FriendID: requesterID,
			Status:   models.FriendStatusRequested,
			AddedAt:  now,
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyStatus(targetID, requesterID, models.FriendStatusRequested)
	return nil
}

// AcceptFriend turns a pending request from requester into a friendship.
func (s *Synchronizer) AcceptFriend(accepterID, requesterID string) error {
	err := s.store.UpdateFriendPair(accepterID, requesterID, func(pair *models.FriendPair) error {
		if pair.Forward == nil || pair.Forward.Status != models.FriendStatusRequested {
			return ErrRequestNotFound
		}
		if pair.Reverse == nil || pair.Reverse.Status != models.FriendStatusPending {
			return ErrPeerRequestNotFound
		}
		pair.Forward.Status = models.FriendStatusAccepted
		pair.Reverse.Status = models.FriendStatusAccepted
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyStatus(requesterID, accepterID, models.FriendStatusAccepted)
	return nil
}

// RemoveFriend deletes both halves whatever their status.
func (s *Synchronizer) RemoveFriend(userID, friendID string) error {
	err := s.store.UpdateFriendPair(userID, friendID, func(pair *models.FriendPair) error {
		if pair.Forward == nil && pair.Reverse == nil {
			return ErrFriendNotFound
		}
		pair.Forward, pair.Reverse = nil, nil
		return nil
	})
	if err != nil {
		return err
	}

	s.sessions.SendTo(friendID, models.ServerMessage{
		Type:    models.ServerMessageTypeFriendRemoved,
		Payload: models.FriendRemoved{PeerID: userID},
	})
	return nil
}

func (s *Synchronizer) notifyStatus(to, peerID string, status models.FriendStatus) {
	s.sessions.SendTo(to, models.ServerMessage{
		Type:    models.ServerMessageTypeFriendStatus,
		Payload: models.FriendStatusChange{PeerID: peerID, Status: status},
	})
}
