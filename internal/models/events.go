package models

import "encoding/json"

// ClientMessage is an inbound event frame sent by the client.
type ClientMessage struct {
	Type      ClientMessageType `json:"type"`
	RequestID string            `json:"requestId,omitempty"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
}

// ServerMessage is an outbound event frame. Payload is one of the payload
// structs below (or raw JSON when the frame came through a remote bus).
type ServerMessage struct {
	Type      ServerMessageType `json:"type"`
	RequestID string            `json:"requestId,omitempty"`
	Payload   any               `json:"payload,omitempty"`
}

type ClientMessageType string

const (
	ClientMessageTypePresenceAnnounce ClientMessageType = "presenceAnnounce"
	ClientMessageTypeSendMessage      ClientMessageType = "sendMessage"
	ClientMessageTypeMarkAsRead       ClientMessageType = "markAsRead"
	ClientMessageTypeAddFriend        ClientMessageType = "addFriendRequest"
	ClientMessageTypeAcceptFriend     ClientMessageType = "acceptFriendRequest"
	ClientMessageTypeRemoveFriend     ClientMessageType = "removeFriend"
	ClientMessageTypeCallOffer        ClientMessageType = "callOffer"
	ClientMessageTypeCallAnswer       ClientMessageType = "callAnswer"
	ClientMessageTypeICECandidate     ClientMessageType = "iceCandidate"
	ClientMessageTypeFetchMessages    ClientMessageType = "fetchMessages"
)

type ServerMessageType string

const (
	ServerMessageTypeOnlineStatus       ServerMessageType = "onlineStatusChanged"
	ServerMessageTypeGroupOnlineStatus  ServerMessageType = "groupOnlineStatusChanged"
	ServerMessageTypeOnlineUsers        ServerMessageType = "onlineUsers"
	ServerMessageTypeOnlineGroups       ServerMessageType = "onlineGroups"
	ServerMessageTypeMessageReceived    ServerMessageType = "messageReceived"
	ServerMessageTypeNotificationPing   ServerMessageType = "notificationPing"
	ServerMessageTypeConversationUpdate ServerMessageType = "conversationUpdate"
	ServerMessageTypeReadReceipt        ServerMessageType = "readReceiptUpdate"
	ServerMessageTypeIncomingCall       ServerMessageType = "incomingCall"
	ServerMessageTypeCallAnswered       ServerMessageType = "callAnswered"
	ServerMessageTypeICECandidate       ServerMessageType = "iceCandidate"
	ServerMessageTypeFriendStatus       ServerMessageType = "friendStatusChanged"
	ServerMessageTypeFriendRemoved      ServerMessageType = "friendRemoved"
	ServerMessageTypeMessageHistory     ServerMessageType = "messageHistory"
	ServerMessageTypeAck                ServerMessageType = "ack"
	ServerMessageTypeError              ServerMessageType = "error"
)

// Inbound payloads.

type PresenceAnnounce struct {
	UserID string `json:"userId"`
}

type SendMessage struct {
	Sender   string   `json:"sender"`
	Receiver string   `json:"receiver,omitempty"`
	Group    string   `json:"group,omitempty"`
	Text     string   `json:"text"`
	FileRefs []string `json:"fileRefs,omitempty"`
}

type MarkAsRead struct {
	Friend string `json:"friend,omitempty"`
	Group  string `json:"group,omitempty"`
	Reader string `json:"reader"`
}

type FriendRequest struct {
	Requester string `json:"requester"`
	Target    string `json:"target"`
}

type AcceptFriendRequest struct {
	Requester string `json:"requester"`
	Accepter  string `json:"accepter"`
}

type RemoveFriend struct {
	UserID   string `json:"userId"`
	FriendID string `json:"friendId"`
}

// CallSignal carries one call negotiation payload. Exactly one of Offer,
// Answer and Candidate is set; the relay never inspects them.
type CallSignal struct {
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type FetchMessages struct {
	Friend string `json:"friend,omitempty"`
	Group  string `json:"group,omitempty"`
}

// Outbound payloads.

type PresenceChange struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

type GroupPresenceChange struct {
	GroupID string `json:"groupId"`
	Online  bool   `json:"online"`
}

type OnlineUsers struct {
	Users []string `json:"users"`
}

type OnlineGroups struct {
	Groups []string `json:"groups"`
}

type MessageReceived struct {
	Message
	SenderName string `json:"senderName"`
	HTML       string `json:"html,omitempty"`
}

type NotificationPing struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	GroupID    string `json:"groupId,omitempty"`
}

type ConversationType string

const (
	ConversationTypeFriend ConversationType = "friend"
	ConversationTypeGroup  ConversationType = "group"
)

type ConversationUpdate struct {
	Type      ConversationType `json:"type"`
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Text      string           `json:"text"`
	Timestamp int64            `json:"timestamp"`
}

// ReadReceipt only carries ids; receivers look up the updated state themselves.
type ReadReceipt struct {
	ReaderID string `json:"readerId"`
	FriendID string `json:"friendId,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
}

type FriendStatusChange struct {
	PeerID string       `json:"peerId"`
	Status FriendStatus `json:"status"`
}

type FriendRemoved struct {
	PeerID string `json:"peerId"`
}

type HistoryMessage struct {
	Message
	FromMe bool `json:"fromMe"`
}

type MessageHistory struct {
	FriendID string           `json:"friendId,omitempty"`
	GroupID  string           `json:"groupId,omitempty"`
	Messages []HistoryMessage `json:"messages"`
}

type Ack struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
