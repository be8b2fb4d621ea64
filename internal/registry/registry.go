package registry

import (
	"sort"
	"sync"

	"relay/internal/models"

	"github.com/google/uuid"
)

// Handle identifies one live connection. It is never shown to other clients.
type Handle string

func NewHandle() Handle {
	return Handle(uuid.NewString())
}

// Delivery reports what happened to an enqueued event.
type Delivery int

const (
	Delivered Delivery = iota
	// Offline means there was no connection to deliver to.
	Offline
	// Dropped means the connection's outbox was full.
	Dropped
)

func (d Delivery) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case Offline:
		return "offline"
	case Dropped:
		return "dropped"
	}
	return "unknown"
}

const defaultOutboxSize = 100

// Registry maps identities to live connections and back.
type Registry struct {
	// handle -> outbox of every attached connection
	outboxes map[Handle]chan models.ServerMessage
	// identity -> handle of its live session
	sessions map[string]Handle
	// handle -> identity, reverse of sessions
	bound map[Handle]string

	outboxSize int
	mu         sync.RWMutex
}

func New(outboxSize int) *Registry {
	if outboxSize <= 0 {
		outboxSize = defaultOutboxSize
	}
	return &Registry{
		outboxes:   make(map[Handle]chan models.ServerMessage),
		sessions:   make(map[string]Handle),
		bound:      make(map[Handle]string),
		outboxSize: outboxSize,
	}
}

// Attach adds a connection that is not yet bound to an identity and returns
// its outbox. Attaching the same handle twice returns the existing outbox.
func (r *Registry) Attach(h Handle) chan models.ServerMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.outboxes[h]; ok {
		return ch
	}
	ch := make(chan models.ServerMessage, r.outboxSize)
	r.outboxes[h] = ch
	return ch
}

// Detach unbinds the handle and closes its outbox. It returns the identity
// that was bound to it, if the handle still owned a session.
func (r *Registry) Detach(h Handle) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.unregister(h)
	if ch, exists := r.outboxes[h]; exists {
		close(ch)
		delete(r.outboxes, h)
	}
	return identity, ok
}

// Register binds identity to h, replacing any previous session of identity.
// It returns the superseded handle (empty if none) and the identity h was
// bound to before (empty if none).
func (r *Registry) Register(identity string, h Handle) (superseded Handle, previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prevIdentity, ok := r.bound[h]; ok && prevIdentity != identity {
		previous = prevIdentity
		delete(r.sessions, prevIdentity)
	}
	if old, ok := r.sessions[identity]; ok && old != h {
		superseded = old
		delete(r.bound, old)
	}

	r.sessions[identity] = h
	r.bound[h] = identity
	return superseded, previous
}

// Unregister removes the session owned by h. A handle that was superseded
// owns nothing and leaves the newer session alone.
func (r *Registry) Unregister(h Handle) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregister(h)
}

func (r *Registry) unregister(h Handle) (string, bool) {
	identity, ok := r.bound[h]
	if !ok {
		return "", false
	}
	delete(r.bound, h)
	if r.sessions[identity] == h {
		delete(r.sessions, identity)
	}
	return identity, true
}

func (r *Registry) Resolve(identity string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[identity]
	return h, ok
}

// IdentityOf returns the identity currently bound to h.
func (r *Registry) IdentityOf(h Handle) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.bound[h]
	return identity, ok
}

// Send enqueues msg for a single connection without blocking.
func (r *Registry) Send(h Handle, msg models.ServerMessage) Delivery {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.outboxes[h]
	if !ok {
		return Offline
	}
	return enqueue(ch, msg)
}

// SendTo enqueues msg for the live session of identity.
func (r *Registry) SendTo(identity string, msg models.ServerMessage) Delivery {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.sessions[identity]
	if !ok {
		return Offline
	}
	ch, ok := r.outboxes[h]
	if !ok {
		return Offline
	}
	return enqueue(ch, msg)
}

// Broadcast enqueues msg for every attached connection, bound or not.
func (r *Registry) Broadcast(msg models.ServerMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ch := range r.outboxes {
		enqueue(ch, msg)
	}
}

// Online returns the identities with a live session, sorted.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func enqueue(ch chan models.ServerMessage, msg models.ServerMessage) Delivery {
	select {
	case ch <- msg:
		return Delivered
	default:
		return Dropped
	}
}
