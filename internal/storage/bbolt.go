package storage

import (
	"fmt"
	"sort"
	"time"

	"relay/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketUsers    = []byte("users")
	bucketGroups   = []byte("groups")
	bucketMessages = []byte("messages")
	bucketFriends  = []byte("friends")
)

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketGroups, bucketMessages, bucketFriends} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// UpsertUser stores a new or updated identity.
func (s *BboltStorage) UpsertUser(user models.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		dbUser := &DBUser{
			ID:        user.ID,
			Name:      user.Name,
			AvatarURL: user.AvatarURL,
			CreatedAt: user.CreatedAt,
		}
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), data)
	})
}

// GetUser returns models.ErrNotFound for unknown identities.
func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var user models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		user = fromDBUser(dbUser)
		return nil
	})
	return user, err
}

func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, fromDBUser(dbUser))
			return nil
		})
	})
	sort.Slice(users, func(i, j int) bool {
		return users[i].Name < users[j].Name
	})
	return users, err
}

func fromDBUser(u DBUser) models.User {
	return models.User{
		ID:        u.ID,
		Name:      u.Name,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}

// UpsertGroup saves the group with its full member and admin lists.
func (s *BboltStorage) UpsertGroup(group models.Group) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putGroup(tx.Bucket(bucketGroups), toDBGroup(group))
	})
}

// GetGroup returns models.ErrNotFound for unknown groups.
func (s *BboltStorage) GetGroup(id string) (models.Group, error) {
	var group models.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbGroup, err := getGroup(tx.Bucket(bucketGroups), id)
		if err != nil {
			return err
		}
		group = fromDBGroup(dbGroup)
		return nil
	})
	return group, err
}

func (s *BboltStorage) ListGroups() ([]models.Group, error) {
	return s.scanGroups(func(models.Group) bool { return true })
}

// GroupsForUser returns every group that has userID as a member.
func (s *BboltStorage) GroupsForUser(userID string) ([]models.Group, error) {
	return s.scanGroups(func(g models.Group) bool { return g.HasMember(userID) })
}

func (s *BboltStorage) scanGroups(keep func(models.Group) bool) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketGroups).ForEach(func(k, v []byte) error {
			var dbGroup DBGroup
			if err := dbGroup.UnmarshalBinary(v); err != nil {
				return err
			}
			if g := fromDBGroup(dbGroup); keep(g) {
				groups = append(groups, g)
			}
			return nil
		})
	})
	return groups, err
}

// AddGroupMember adds userID to the group unless it is already a member.
func (s *BboltStorage) AddGroupMember(groupID, userID string, joinedAt int64) (models.Group, error) {
	return s.updateGroup(groupID, func(g *DBGroup) {
		for _, m := range g.Members {
			if m.UserID == userID {
				return
			}
		}
		g.Members = append(g.Members, DBGroupMember{UserID: userID, JoinedAt: joinedAt})
	})
}

// AddGroupAdmin adds userID to the group's admin set unless it is already there.
func (s *BboltStorage) AddGroupAdmin(groupID, userID string) (models.Group, error) {
	return s.updateGroup(groupID, func(g *DBGroup) {
		for _, a := range g.Admins {
			if a == userID {
				return
			}
		}
		g.Admins = append(g.Admins, userID)
	})
}

func (s *BboltStorage) updateGroup(id string, fn func(g *DBGroup)) (models.Group, error) {
	var group models.Group
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketGroups)
		dbGroup, err := getGroup(b, id)
		if err != nil {
			return err
		}
		fn(&dbGroup)
		if err := putGroup(b, dbGroup); err != nil {
			return err
		}
		group = fromDBGroup(dbGroup)
		return nil
	})
	return group, err
}

func getGroup(b *bbolt.Bucket, id string) (DBGroup, error) {
	var dbGroup DBGroup
	data := b.Get([]byte(id))
	if data == nil {
		return dbGroup, fmt.Errorf("group %s: %w", id, models.ErrNotFound)
	}
	err := dbGroup.UnmarshalBinary(data)
	return dbGroup, err
}

func putGroup(b *bbolt.Bucket, g DBGroup) error {
	data, err := g.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(g.Key(), data)
}

func toDBGroup(g models.Group) DBGroup {
	dbGroup := DBGroup{
		ID:        g.ID,
		Name:      g.Name,
		Admins:    append([]string(nil), g.Admins...),
		CreatedAt: g.CreatedAt,
	}
	for _, m := range g.Members {
		dbGroup.Members = append(dbGroup.Members, DBGroupMember{UserID: m.UserID, JoinedAt: m.JoinedAt})
	}
	return dbGroup
}

func fromDBGroup(g DBGroup) models.Group {
	group := models.Group{
		ID:        g.ID,
		Name:      g.Name,
		Admins:    append([]string(nil), g.Admins...),
		CreatedAt: g.CreatedAt,
	}
	for _, m := range g.Members {
		group.Members = append(group.Members, models.GroupMember{UserID: m.UserID, JoinedAt: m.JoinedAt})
	}
	return group
}
