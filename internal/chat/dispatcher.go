package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"relay/internal/content"
	"relay/internal/models"
	"relay/internal/registry"

	"github.com/google/uuid"
)

var (
	ErrInvalidTarget = errors.New("exactly one of receiver and group must be set")
	ErrEmptyMessage  = errors.New("message has no text and no files")
	ErrNotMember     = errors.New("not a member of the group")
)

type MessageStore interface {
	AppendMessage(msg models.Message) (models.Message, error)
	ListConversation(userID, peerID string) ([]models.Message, error)
	ListGroupMessages(groupID string) ([]models.Message, error)
	MarkDirectRead(friendID, readerID string) (int, error)
	MarkGroupRead(groupID, readerID string, at int64) (int, error)
}

type Directory interface {
	Group(id string) (models.Group, error)
	UserName(id string) string
}

// Deliverer hands an event to the live session of an identity.
type Deliverer interface {
	SendTo(identity string, msg models.ServerMessage) registry.Delivery
}

// Outgoing is a message as submitted by its sender.
type Outgoing struct {
	SenderID   string
	ReceiverID string
	GroupID    string
	Text       string
	FileRefs   []string
}

// Dispatcher persists messages and fans them out to live recipients.
type Dispatcher struct {
	store     MessageStore
	directory Directory
	sessions  Deliverer
	now       func() time.Time
}

func NewDispatcher(store MessageStore, directory Directory, sessions Deliverer) *Dispatcher {
	return &Dispatcher{
		store:     store,
		directory: directory,
		sessions:  sessions,
		now:       time.Now,
	}
}

// Send validates and stores the message, then delivers it to every live
// recipient. Offline recipients get nothing; the stored message is returned.
func (d *Dispatcher) Send(out Outgoing) (models.Message, error) {
	if err := checkTarget(out.ReceiverID, out.GroupID); err != nil {
		return models.Message{}, err
	}

	text := content.Sanitize(strings.TrimSpace(out.Text))
	attachments := content.Attachments(out.FileRefs)
	if text == "" && len(attachments) == 0 {
		return models.Message{}, ErrEmptyMessage
	}

	var group models.Group
	if out.GroupID != "" {
		var err error
		group, err = d.memberGroup(out.GroupID, out.SenderID)
		if err != nil {
			return models.Message{}, err
		}
	}

	msg, err := d.store.AppendMessage(models.Message{
		ID:          uuid.NewString(),
		Timestamp:   d.now().UnixMilli(),
		SenderID:    out.SenderID,
		ReceiverID:  out.ReceiverID,
		GroupID:     out.GroupID,
		Text:        text,
		Attachments: attachments,
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to store message: %w", err)
	}

	if msg.IsGroup() {
		d.fanOutGroup(msg, group)
	} else {
		d.fanOutDirect(msg)
	}
	return msg, nil
}

func (d *Dispatcher) fanOutDirect(msg models.Message) {
	senderName := d.directory.UserName(msg.SenderID)
	d.deliverAll(msg.ReceiverID, d.receivedEvents(msg, senderName, models.ConversationUpdate{
		Type:      models.ConversationTypeFriend,
		ID:        msg.SenderID,
		Name:      senderName,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	}))

	// The sender's other views of the conversation list move too.
	d.sessions.SendTo(msg.SenderID, models.ServerMessage{
		Type: models.ServerMessageTypeConversationUpdate,
		Payload: models.ConversationUpdate{
			Type:      models.ConversationTypeFriend,
			ID:        msg.ReceiverID,
			Name:      d.directory.UserName(msg.ReceiverID),
			Text:      msg.Text,
			Timestamp: msg.Timestamp,
		},
	})
}

func (d *Dispatcher) fanOutGroup(msg models.Message, group models.Group) {
	events := d.receivedEvents(msg, d.directory.UserName(msg.SenderID), models.ConversationUpdate{
		Type:      models.ConversationTypeGroup,
		ID:        group.ID,
		Name:      group.Name,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	})

	for _, memberID := range group.MemberIDs() {
		if memberID == msg.SenderID {
			continue
		}
		d.deliverAll(memberID, events)
	}
}

// receivedEvents builds messageReceived, notificationPing and
// conversationUpdate, in that order.
func (d *Dispatcher) receivedEvents(msg models.Message, senderName string, update models.ConversationUpdate) []models.ServerMessage {
	html, err := content.Render(msg.Text)
	if err != nil {
		slog.Error("failed to render message", "message_id", msg.ID, "error", err)
	}

	return []models.ServerMessage{
		{
			Type: models.ServerMessageTypeMessageReceived,
			Payload: models.MessageReceived{
				Message:    msg,
				SenderName: senderName,
				HTML:       html,
			},
		},
		{
			Type: models.ServerMessageTypeNotificationPing,
			Payload: models.NotificationPing{
				SenderID:   msg.SenderID,
				SenderName: senderName,
				GroupID:    msg.GroupID,
			},
		},
		{
			Type:    models.ServerMessageTypeConversationUpdate,
			Payload: update,
		},
	}
}

func (d *Dispatcher) deliverAll(identity string, events []models.ServerMessage) {
	for _, ev := range events {
		switch d.sessions.SendTo(identity, ev) {
		case registry.Offline:
			return
		case registry.Dropped:
			slog.Warn("outbox full, event dropped", "user_id", identity, "type", ev.Type)
		}
	}
}

// History returns a stored conversation as seen by caller.
func (d *Dispatcher) History(callerID, friendID, groupID string) (models.MessageHistory, error) {
	if err := checkTarget(friendID, groupID); err != nil {
		return models.MessageHistory{}, err
	}

	var (
		msgs []models.Message
		err  error
	)
	if groupID != "" {
		if _, err := d.memberGroup(groupID, callerID); err != nil {
			return models.MessageHistory{}, err
		}
		msgs, err = d.store.ListGroupMessages(groupID)
	} else {
		msgs, err = d.store.ListConversation(callerID, friendID)
	}
	if err != nil {
		return models.MessageHistory{}, fmt.Errorf("failed to list messages: %w", err)
	}

	history := models.MessageHistory{
		FriendID: friendID,
		GroupID:  groupID,
		Messages: make([]models.HistoryMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		history.Messages = append(history.Messages, models.HistoryMessage{
			Message: m,
			FromMe:  m.SenderID == callerID,
		})
	}
	return history, nil
}

func (d *Dispatcher) memberGroup(groupID, userID string) (models.Group, error) {
	group, err := d.directory.Group(groupID)
	if err != nil {
		return models.Group{}, err
	}
	if !group.HasMember(userID) {
		return models.Group{}, fmt.Errorf("%s in %s: %w", userID, groupID, ErrNotMember)
	}
	return group, nil
}

func checkTarget(receiverID, groupID string) error {
	if (receiverID == "") == (groupID == "") {
		return ErrInvalidTarget
	}
	return nil
}
