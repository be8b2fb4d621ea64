package directory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"relay/internal/models"

	"github.com/c-pro/geche"
)

const unknownUserName = "Unknown User"

// Store is the identity store and group directory backing the cache.
type Store interface {
	GetUser(id string) (models.User, error)
	GetGroup(id string) (models.Group, error)
	GroupsForUser(userID string) ([]models.Group, error)
}

// Directory answers identity and group questions for the relay. Display
// names are cached for a while since every delivered message needs one.
type Directory struct {
	store Store
	names geche.Geche[string, string]
}

func New(ctx context.Context, store Store, ttl time.Duration) *Directory {
	return &Directory{
		store: store,
		names: geche.NewMapTTLCache[string, string](ctx, ttl, time.Minute),
	}
}

// UserName returns the display name of an identity. Lookup failures are
// logged and yield a placeholder.
func (d *Directory) UserName(id string) string {
	if name, err := d.names.Get(id); err == nil {
		return name
	}

	user, err := d.store.GetUser(id)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.Error("failed to load user", "user_id", id, "error", err)
		}
		return unknownUserName
	}

	d.names.Set(id, user.Name)
	return user.Name
}

// Invalidate drops a cached display name.
func (d *Directory) Invalidate(id string) {
	_ = d.names.Del(id)
}

func (d *Directory) GetUser(id string) (models.User, error) {
	return d.store.GetUser(id)
}

func (d *Directory) Group(id string) (models.Group, error) {
	return d.store.GetGroup(id)
}

// GroupIDs returns the ids of all groups userID belongs to.
func (d *Directory) GroupIDs(userID string) ([]string, error) {
	groups, err := d.store.GroupsForUser(userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	return ids, nil
}
