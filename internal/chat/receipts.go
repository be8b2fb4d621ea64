package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"relay/internal/bus"
	"relay/internal/models"
)

// Publisher broadcasts an event on a bus topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg models.ServerMessage) error
}

// Receipts records read state and tells the interested sessions about it.
type Receipts struct {
	store     MessageStore
	directory Directory
	sessions  Deliverer
	topics    Publisher
	now       func() time.Time
}

func NewReceipts(store MessageStore, directory Directory, sessions Deliverer, topics Publisher) *Receipts {
	return &Receipts{
		store:     store,
		directory: directory,
		sessions:  sessions,
		topics:    topics,
		now:       time.Now,
	}
}

// MarkDirect flags everything friendID sent to readerID as read and notifies
// both of them.
func (r *Receipts) MarkDirect(friendID, readerID string) error {
	n, err := r.store.MarkDirectRead(friendID, readerID)
	if err != nil {
		return fmt.Errorf("failed to mark direct messages read: %w", err)
	}
	slog.Debug("direct messages marked read", "friend_id", friendID, "reader_id", readerID, "count", n)

	receipt := models.ServerMessage{
		Type:    models.ServerMessageTypeReadReceipt,
		Payload: models.ReadReceipt{ReaderID: readerID, FriendID: friendID},
	}
	r.sessions.SendTo(readerID, receipt)
	r.sessions.SendTo(friendID, receipt)
	return nil
}

// MarkGroup adds readerID to the readers of every group message written by
// someone else. The receipt goes to the group's connected members, reader included.
func (r *Receipts) MarkGroup(ctx context.Context, groupID, readerID string) error {
	group, err := r.directory.Group(groupID)
	if err != nil {
		return err
	}
	if !group.HasMember(readerID) {
		return fmt.Errorf("%s in %s: %w", readerID, groupID, ErrNotMember)
	}

	n, err := r.store.MarkGroupRead(groupID, readerID, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to mark group messages read: %w", err)
	}
	slog.Debug("group messages marked read", "group_id", groupID, "reader_id", readerID, "count", n)

	receipt := models.ServerMessage{
		Type:    models.ServerMessageTypeReadReceipt,
		Payload: models.ReadReceipt{ReaderID: readerID, GroupID: groupID},
	}
	if err := r.topics.Publish(ctx, bus.GroupTopic(groupID), receipt); err != nil {
		return fmt.Errorf("failed to publish receipt: %w", err)
	}
	return nil
}
