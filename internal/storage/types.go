package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID        string `msgpack:"id"`
	Name      string `msgpack:"name"`
	AvatarURL string `msgpack:"avatarUrl"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

type DBGroupMember struct {
	UserID   string `msgpack:"userId"`
	JoinedAt int64  `msgpack:"joinedAt"`
}

type DBGroup struct {
	ID        string          `msgpack:"id"`
	Name      string          `msgpack:"name"`
	Members   []DBGroupMember `msgpack:"members"`
	Admins    []string        `msgpack:"admins"`
	CreatedAt int64           `msgpack:"createdAt"`
}

func (g *DBGroup) Key() []byte {
	return []byte(g.ID)
}

func (g *DBGroup) MarshalBinary() (data []byte, err error) {
	type alias DBGroup
	return msgpack.Marshal((*alias)(g))
}

func (g *DBGroup) UnmarshalBinary(data []byte) error {
	type alias DBGroup
	return msgpack.Unmarshal(data, (*alias)(g))
}

type DBReadEntry struct {
	UserID    string `msgpack:"userId"`
	Timestamp int64  `msgpack:"timestamp"`
}

type DBAttachment struct {
	Type     string `msgpack:"type"`
	URL      string `msgpack:"url"`
	MimeType string `msgpack:"mimeType"`
	Name     string `msgpack:"name"`
}

type DBMessage struct {
	ID          string         `msgpack:"id"`
	Seq         int64          `msgpack:"seq"`
	Timestamp   int64          `msgpack:"timestamp"`
	SenderID    string         `msgpack:"senderId"`
	ReceiverID  string         `msgpack:"receiverId"`
	GroupID     string         `msgpack:"groupId"`
	Text        string         `msgpack:"text"`
	Attachments []DBAttachment `msgpack:"attachments"`
	// Read is only meaningful for direct messages.
	Read   bool          `msgpack:"read"`
	ReadBy []DBReadEntry `msgpack:"readBy"`
}

func (m *DBMessage) Key() []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(m.Seq))
	return key
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

type DBFriendEdge struct {
	FriendID string `msgpack:"friendId"`
	Status   string `msgpack:"status"`
	AddedAt  int64  `msgpack:"addedAt"`
}

func (f *DBFriendEdge) Key() []byte {
	return []byte(f.FriendID)
}

func (f *DBFriendEdge) MarshalBinary() (data []byte, err error) {
	type alias DBFriendEdge
	return msgpack.Marshal((*alias)(f))
}

func (f *DBFriendEdge) UnmarshalBinary(data []byte) error {
	type alias DBFriendEdge
	return msgpack.Unmarshal(data, (*alias)(f))
}
