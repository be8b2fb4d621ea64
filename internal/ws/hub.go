package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"relay/internal/bus"
	"relay/internal/chat"
	"relay/internal/friends"
	"relay/internal/models"
	"relay/internal/presence"
	"relay/internal/registry"
	"relay/internal/signaling"
)

var (
	errBadPayload       = errors.New("malformed payload")
	errNotAnnounced     = errors.New("announce presence first")
	errIdentityMismatch = errors.New("payload user does not match connection")
	errUnknownType      = errors.New("unknown message type")
)

// Directory is what the hub needs to know about identities and groups.
type Directory interface {
	GetUser(id string) (models.User, error)
	GroupIDs(userID string) ([]string, error)
}

type HubConfig struct {
	Registry   *registry.Registry
	Presence   *presence.Aggregator
	Directory  Directory
	Dispatcher *chat.Dispatcher
	Receipts   *chat.Receipts
	Friends    *friends.Synchronizer
	Signals    *signaling.Relay
	Topics     bus.Bus
}

type request struct {
	handle   registry.Handle
	identity string
	msg      models.ClientMessage
}

type handler struct {
	fn func(ctx context.Context, req request) error
	// anonymous handlers run before presenceAnnounce
	anonymous bool
	// acked handlers always answer with an ack frame
	acked bool
}

// Hub routes inbound events from every connection to the relay components.
type Hub struct {
	registry   *registry.Registry
	presence   *presence.Aggregator
	directory  Directory
	dispatcher *chat.Dispatcher
	receipts   *chat.Receipts
	friends    *friends.Synchronizer
	signals    *signaling.Relay
	topics     bus.Bus

	handlers map[models.ClientMessageType]handler

	// Serializes session binding with the matching presence update.
	bindMu sync.Mutex
}

func NewHub(cfg HubConfig) *Hub {
	h := &Hub{
		registry:   cfg.Registry,
		presence:   cfg.Presence,
		directory:  cfg.Directory,
		dispatcher: cfg.Dispatcher,
		receipts:   cfg.Receipts,
		friends:    cfg.Friends,
		signals:    cfg.Signals,
		topics:     cfg.Topics,
	}

	h.handlers = map[models.ClientMessageType]handler{
		models.ClientMessageTypePresenceAnnounce: {fn: h.handleAnnounce, anonymous: true},
		models.ClientMessageTypeSendMessage:      {fn: h.handleSendMessage},
		models.ClientMessageTypeMarkAsRead:       {fn: h.handleMarkAsRead},
		models.ClientMessageTypeAddFriend:        {fn: h.handleAddFriend, acked: true},
		models.ClientMessageTypeAcceptFriend:     {fn: h.handleAcceptFriend, acked: true},
		models.ClientMessageTypeRemoveFriend:     {fn: h.handleRemoveFriend, acked: true},
		models.ClientMessageTypeCallOffer:        {fn: h.handleCallOffer, anonymous: true},
		models.ClientMessageTypeCallAnswer:       {fn: h.handleCallAnswer, anonymous: true},
		models.ClientMessageTypeICECandidate:     {fn: h.handleICECandidate, anonymous: true},
		models.ClientMessageTypeFetchMessages:    {fn: h.handleFetchMessages},
	}

	h.topics.Subscribe(h.deliverTopic)
	return h
}

// Join attaches a new connection and greets it with the current online list.
func (h *Hub) Join(handle registry.Handle) chan models.ServerMessage {
	ch := h.registry.Attach(handle)
	h.registry.Send(handle, models.ServerMessage{
		Type:    models.ServerMessageTypeOnlineUsers,
		Payload: models.OnlineUsers{Users: h.registry.Online()},
	})
	return ch
}

// Leave detaches a connection. If it still owned a session, everyone learns
// that its identity went offline.
func (h *Hub) Leave(ctx context.Context, handle registry.Handle) {
	h.bindMu.Lock()
	identity, bound := h.registry.Detach(handle)
	var changes []presence.Change
	if bound {
		changes = h.presence.Disconnect(identity)
	}
	h.bindMu.Unlock()

	if !bound {
		return
	}
	slog.Info("user offline", "user_id", identity, "handle", handle)
	h.publishPresence(ctx, identity, false, changes)
}

// Dispatch handles one inbound event from handle.
func (h *Hub) Dispatch(ctx context.Context, handle registry.Handle, msg models.ClientMessage) {
	hd, ok := h.handlers[msg.Type]
	if !ok {
		h.replyError(handle, msg.RequestID, errUnknownType)
		return
	}

	identity, bound := h.registry.IdentityOf(handle)
	if !bound && !hd.anonymous {
		h.replyError(handle, msg.RequestID, errNotAnnounced)
		return
	}

	err := hd.fn(ctx, request{handle: handle, identity: identity, msg: msg})
	if err != nil {
		slog.Warn("event failed", "type", msg.Type, "user_id", identity, "error", err)
	}

	switch {
	case hd.acked:
		h.reply(handle, msg.RequestID, models.ServerMessageTypeAck, ackFor(err))
	case err != nil:
		h.replyError(handle, msg.RequestID, err)
	}
}

// Snapshot returns the online identities and groups.
func (h *Hub) Snapshot() (models.OnlineUsers, models.OnlineGroups) {
	groups := h.presence.OnlineGroups()
	if groups == nil {
		groups = []string{}
	}
	return models.OnlineUsers{Users: h.registry.Online()}, models.OnlineGroups{Groups: groups}
}

func (h *Hub) handleAnnounce(ctx context.Context, req request) error {
	p, err := decode[models.PresenceAnnounce](req.msg)
	if err != nil {
		return err
	}
	if p.UserID == "" {
		return fmt.Errorf("userId is required: %w", errBadPayload)
	}
	if _, err := h.directory.GetUser(p.UserID); err != nil {
		return err
	}
	groups, err := h.directory.GroupIDs(p.UserID)
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}

	h.bindMu.Lock()
	superseded, previous := h.registry.Register(p.UserID, req.handle)
	var left []presence.Change
	if previous != "" {
		left = h.presence.Disconnect(previous)
	}
	joined := h.presence.Connect(p.UserID, groups)
	h.bindMu.Unlock()

	if superseded != "" {
		slog.Info("session superseded", "user_id", p.UserID, "old_handle", superseded, "handle", req.handle)
	}
	if previous != "" {
		h.publishPresence(ctx, previous, false, left)
	}
	slog.Info("user online", "user_id", p.UserID, "handle", req.handle)
	h.publishPresence(ctx, p.UserID, true, joined)

	users, online := h.Snapshot()
	h.reply(req.handle, req.msg.RequestID, models.ServerMessageTypeOnlineUsers, users)
	h.reply(req.handle, req.msg.RequestID, models.ServerMessageTypeOnlineGroups, online)
	return nil
}

func (h *Hub) handleSendMessage(_ context.Context, req request) error {
	p, err := decode[models.SendMessage](req.msg)
	if err != nil {
		return err
	}
	if err := sameUser(req.identity, p.Sender); err != nil {
		return err
	}

	_, err = h.dispatcher.Send(chat.Outgoing{
		SenderID:   req.identity,
		ReceiverID: p.Receiver,
		GroupID:    p.Group,
		Text:       p.Text,
		FileRefs:   p.FileRefs,
	})
	return err
}

func (h *Hub) handleMarkAsRead(ctx context.Context, req request) error {
	p, err := decode[models.MarkAsRead](req.msg)
	if err != nil {
		return err
	}
	if err := sameUser(req.identity, p.Reader); err != nil {
		return err
	}

	switch {
	case p.Friend != "" && p.Group == "":
		return h.receipts.MarkDirect(p.Friend, req.identity)
	case p.Group != "" && p.Friend == "":
		return h.receipts.MarkGroup(ctx, p.Group, req.identity)
	default:
		return chat.ErrInvalidTarget
	}
}

func (h *Hub) handleAddFriend(_ context.Context, req request) error {
	p, err := decode[models.FriendRequest](req.msg)
	if err != nil {
		return err
	}
	if err := sameUser(req.identity, p.Requester); err != nil {
		return err
	}
	if p.Target == "" {
		return fmt.Errorf("target is required: %w", errBadPayload)
	}
	return h.friends.AddFriend(req.identity, p.Target)
}

func (h *Hub) handleAcceptFriend(_ context.Context, req request) error {
	p, err := decode[models.AcceptFriendRequest](req.msg)
	if err != nil {
		return err
	}
	if err := sameUser(req.identity, p.Accepter); err != nil {
		return err
	}
	if p.Requester == "" {
		return fmt.Errorf("requester is required: %w", errBadPayload)
	}
	return h.friends.AcceptFriend(req.identity, p.Requester)
}

func (h *Hub) handleRemoveFriend(_ context.Context, req request) error {
	p, err := decode[models.RemoveFriend](req.msg)
	if err != nil {
		return err
	}
	if err := sameUser(req.identity, p.UserID); err != nil {
		return err
	}
	if p.FriendID == "" {
		return fmt.Errorf("friendId is required: %w", errBadPayload)
	}
	return h.friends.RemoveFriend(req.identity, p.FriendID)
}

func (h *Hub) handleCallOffer(_ context.Context, req request) error {
	p, err := decode[models.CallSignal](req.msg)
	if err != nil {
		return err
	}
	h.signals.Offer(req.identity, p.To, p.Offer)
	return nil
}

func (h *Hub) handleCallAnswer(_ context.Context, req request) error {
	p, err := decode[models.CallSignal](req.msg)
	if err != nil {
		return err
	}
	h.signals.Answer(req.identity, p.To, p.Answer)
	return nil
}

func (h *Hub) handleICECandidate(_ context.Context, req request) error {
	p, err := decode[models.CallSignal](req.msg)
	if err != nil {
		return err
	}
	h.signals.Candidate(req.identity, p.To, p.Candidate)
	return nil
}

func (h *Hub) handleFetchMessages(_ context.Context, req request) error {
	p, err := decode[models.FetchMessages](req.msg)
	if err != nil {
		return err
	}
	history, err := h.dispatcher.History(req.identity, p.Friend, p.Group)
	if err != nil {
		return err
	}
	h.reply(req.handle, req.msg.RequestID, models.ServerMessageTypeMessageHistory, history)
	return nil
}

// deliverTopic is the bus sink: frames published anywhere end up here.
func (h *Hub) deliverTopic(topic string, msg models.ServerMessage) {
	if topic == bus.TopicAll {
		h.registry.Broadcast(msg)
		return
	}
	if groupID, ok := bus.ParseGroupTopic(topic); ok {
		for _, member := range h.presence.Members(groupID) {
			h.registry.SendTo(member, msg)
		}
		return
	}
	slog.Warn("frame on unknown topic", "topic", topic, "type", msg.Type)
}

func (h *Hub) publishPresence(ctx context.Context, identity string, online bool, changes []presence.Change) {
	h.publish(ctx, bus.TopicAll, models.ServerMessage{
		Type:    models.ServerMessageTypeOnlineStatus,
		Payload: models.PresenceChange{UserID: identity, Online: online},
	})
	for _, c := range changes {
		h.publish(ctx, bus.TopicAll, models.ServerMessage{
			Type:    models.ServerMessageTypeGroupOnlineStatus,
			Payload: models.GroupPresenceChange{GroupID: c.GroupID, Online: c.Online},
		})
	}
}

func (h *Hub) publish(ctx context.Context, topic string, msg models.ServerMessage) {
	if err := h.topics.Publish(ctx, topic, msg); err != nil {
		slog.Error("failed to publish", "topic", topic, "type", msg.Type, "error", err)
	}
}

func (h *Hub) reply(handle registry.Handle, requestID string, typ models.ServerMessageType, payload any) {
	d := h.registry.Send(handle, models.ServerMessage{Type: typ, RequestID: requestID, Payload: payload})
	if d == registry.Dropped {
		slog.Warn("outbox full, reply dropped", "handle", handle, "type", typ)
	}
}

func (h *Hub) replyError(handle registry.Handle, requestID string, err error) {
	h.reply(handle, requestID, models.ServerMessageTypeError, models.ErrorPayload{Message: ackFor(err).Message})
}

func decode[T any](msg models.ClientMessage) (T, error) {
	var p T
	if len(msg.Payload) == 0 {
		return p, fmt.Errorf("%s: %w", msg.Type, errBadPayload)
	}
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return p, fmt.Errorf("%s: %w", msg.Type, errBadPayload)
	}
	return p, nil
}

// sameUser accepts an omitted payload user; a different one is rejected.
func sameUser(identity, claimed string) error {
	if claimed != "" && claimed != identity {
		return errIdentityMismatch
	}
	return nil
}

func ackFor(err error) models.Ack {
	status := statusFor(err)
	if err == nil {
		return models.Ack{Status: status, Message: "ok"}
	}
	if status == http.StatusInternalServerError {
		return models.Ack{Status: status, Message: "internal error"}
	}
	return models.Ack{Status: status, Message: err.Error()}
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, friends.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, friends.ErrSelf),
		errors.Is(err, errBadPayload),
		errors.Is(err, errIdentityMismatch),
		errors.Is(err, chat.ErrInvalidTarget),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrNotMember):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
