package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
)

// User represents an identity known to the relay.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	CreatedAt int64  `json:"createdAt"` // Unix timestamp (seconds)
}

// GroupMember is a group membership entry.
type GroupMember struct {
	UserID   string `json:"userId"`
	JoinedAt int64  `json:"joinedAt"` // Unix timestamp (seconds)
}

// Group represents a group chat as stored in the group directory.
type Group struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Members   []GroupMember `json:"members"`
	Admins    []string      `json:"admins"`
	CreatedAt int64         `json:"createdAt"`
}

func (g Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func (g Group) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

type AttachmentType string

const (
	AttachmentTypeImage AttachmentType = "image"
	AttachmentTypeFile  AttachmentType = "file"
)

// Attachment is a file reference carried by a message. The URL is opaque to the relay.
type Attachment struct {
	Type     AttachmentType `json:"type"`
	URL      string         `json:"url"`
	MimeType string         `json:"mimeType,omitempty"`
	// Name is the HTML-escaped last path element of the URL.
	Name string `json:"name,omitempty"`
}

// ReadEntry records that a group member has read a group message.
type ReadEntry struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// Message represents a chat message. Exactly one of ReceiverID and GroupID is set.
//
// For direct messages Read is the stored flag. For group messages ReadBy is the
// source of truth and Read is derived from it when the message is loaded.
type Message struct {
	ID          string       `json:"id"`
	Seq         int64        `json:"seq"`
	Timestamp   int64        `json:"timestamp"` // Unix timestamp (milliseconds)
	SenderID    string       `json:"senderId"`
	ReceiverID  string       `json:"receiverId,omitempty"`
	GroupID     string       `json:"groupId,omitempty"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Read        bool         `json:"read"`
	ReadBy      []ReadEntry  `json:"readBy,omitempty"`
}

func (m Message) IsGroup() bool {
	return m.GroupID != ""
}

func (m Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

type FriendStatus string

const (
	FriendStatusRequested FriendStatus = "requested"
	FriendStatusPending   FriendStatus = "pending"
	FriendStatusAccepted  FriendStatus = "accepted"
	// FriendStatusBlocked has no transitions yet.
	FriendStatusBlocked FriendStatus = "blocked"
)

// FriendEdge is one directed half of a friendship, stored against its owner.
type FriendEdge struct {
	OwnerID  string       `json:"ownerId"`
	FriendID string       `json:"friendId"`
	Status   FriendStatus `json:"status"`
	AddedAt  int64        `json:"addedAt"`
}

// FriendPair holds both halves of a relationship between two users as seen
// from the first one: Forward is owner->friend, Reverse is friend->owner.
// A nil half means the edge does not exist.
type FriendPair struct {
	Forward *FriendEdge
	Reverse *FriendEdge
}
