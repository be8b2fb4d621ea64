package storage

import (
	"errors"
	"fmt"
	"sort"

	"relay/internal/models"

	"go.etcd.io/bbolt"
)

var errMessageTarget = errors.New("message must have exactly one of receiver and group")

// conversationKey returns the nested bucket name for a conversation.
// Direct conversations use a deterministic id independent of direction.
func conversationKey(msg models.Message) ([]byte, error) {
	switch {
	case msg.GroupID != "" && msg.ReceiverID == "":
		return groupKey(msg.GroupID), nil
	case msg.GroupID == "" && msg.ReceiverID != "":
		return dmKey(msg.SenderID, msg.ReceiverID), nil
	default:
		return nil, errMessageTarget
	}
}

func dmKey(u1, u2 string) []byte {
	ids := []string{u1, u2}
	sort.Strings(ids)
	return []byte(fmt.Sprintf("dm_%s_%s", ids[0], ids[1]))
}

func groupKey(groupID string) []byte {
	return []byte("group_" + groupID)
}

// AppendMessage persists a message and returns it with its sequence number
// within the conversation assigned.
func (s *BboltStorage) AppendMessage(message models.Message) (models.Message, error) {
	key, err := conversationKey(message)
	if err != nil {
		return models.Message{}, err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		chatBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists(key)
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}

		seq, err := chatBucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate seq: %w", err)
		}
		message.Seq = int64(seq)

		dbMessage := toDBMessage(message)
		return putMessage(chatBucket, &dbMessage)
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// ListConversation returns the direct messages exchanged between two users in seq order.
func (s *BboltStorage) ListConversation(userID, peerID string) ([]models.Message, error) {
	return s.listMessages(dmKey(userID, peerID))
}

// ListGroupMessages returns the group's messages in seq order.
func (s *BboltStorage) ListGroupMessages(groupID string) ([]models.Message, error) {
	return s.listMessages(groupKey(groupID))
}

func (s *BboltStorage) listMessages(key []byte) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket(key)
		if chatBucket == nil {
			return nil // No messages for this conversation
		}
		return chatBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, fromDBMessage(dbMsg))
			return nil
		})
	})
	return messages, err
}

// MarkDirectRead flags every unread message sent by friendID to readerID as read
// and returns how many messages changed.
func (s *BboltStorage) MarkDirectRead(friendID, readerID string) (int, error) {
	return s.rewriteMessages(dmKey(friendID, readerID), func(m *DBMessage) bool {
		if m.SenderID != friendID || m.ReceiverID != readerID || m.Read {
			return false
		}
		m.Read = true
		return true
	})
}

// MarkGroupRead appends a read entry for readerID to every group message that
// was written by someone else and not yet read by readerID. Re-running it is a no-op.
func (s *BboltStorage) MarkGroupRead(groupID, readerID string, at int64) (int, error) {
	return s.rewriteMessages(groupKey(groupID), func(m *DBMessage) bool {
		if m.SenderID == readerID {
			return false
		}
		for _, r := range m.ReadBy {
			if r.UserID == readerID {
				return false
			}
		}
		m.ReadBy = append(m.ReadBy, DBReadEntry{UserID: readerID, Timestamp: at})
		return true
	})
}

// rewriteMessages applies fn to every message in the conversation and stores
// the ones fn reports as changed.
func (s *BboltStorage) rewriteMessages(key []byte, fn func(m *DBMessage) bool) (int, error) {
	changed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		chatBucket := tx.Bucket(bucketMessages).Bucket(key)
		if chatBucket == nil {
			return nil
		}

		// bbolt forbids writes inside ForEach, so collect first.
		var updates []DBMessage
		err := chatBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			if fn(&dbMsg) {
				updates = append(updates, dbMsg)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for i := range updates {
			if err := putMessage(chatBucket, &updates[i]); err != nil {
				return err
			}
		}
		changed = len(updates)
		return nil
	})
	return changed, err
}

func putMessage(b *bbolt.Bucket, m *DBMessage) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := b.Put(m.Key(), data); err != nil {
		return fmt.Errorf("failed to put message: %w", err)
	}
	return nil
}

func toDBMessage(m models.Message) DBMessage {
	dbMessage := DBMessage{
		ID:         m.ID,
		Seq:        m.Seq,
		Timestamp:  m.Timestamp,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		GroupID:    m.GroupID,
		Text:       m.Text,
		Read:       m.Read && !m.IsGroup(),
	}
	for _, a := range m.Attachments {
		dbMessage.Attachments = append(dbMessage.Attachments, DBAttachment{
			Type:     string(a.Type),
			URL:      a.URL,
			MimeType: a.MimeType,
			Name:     a.Name,
		})
	}
	for _, r := range m.ReadBy {
		dbMessage.ReadBy = append(dbMessage.ReadBy, DBReadEntry{UserID: r.UserID, Timestamp: r.Timestamp})
	}
	return dbMessage
}

func fromDBMessage(m DBMessage) models.Message {
	msg := models.Message{
		ID:         m.ID,
		Seq:        m.Seq,
		Timestamp:  m.Timestamp,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		GroupID:    m.GroupID,
		Text:       m.Text,
		Read:       m.Read,
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			Type:     models.AttachmentType(a.Type),
			URL:      a.URL,
			MimeType: a.MimeType,
			Name:     a.Name,
		})
	}
	for _, r := range m.ReadBy {
		msg.ReadBy = append(msg.ReadBy, models.ReadEntry{UserID: r.UserID, Timestamp: r.Timestamp})
	}
	// Group read state is derived from the per-reader entries.
	if msg.IsGroup() {
		msg.Read = len(msg.ReadBy) > 0
	}
	return msg
}
