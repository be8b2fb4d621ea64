package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"relay/internal/models"
	"relay/internal/registry"
)

type mockWS struct {
	readCh      chan models.ClientMessage
	writeCh     chan any
	closeCh     chan struct{}
	closed      bool
	errToReturn error
	mu          sync.Mutex
}

func newMockWS() *mockWS {
	return &mockWS{
		readCh:  make(chan models.ClientMessage, 10),
		writeCh: make(chan any, 10),
		closeCh: make(chan struct{}),
	}
}

func (m *mockWS) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.closeCh)
	return nil
}

func (m *mockWS) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockWS) WriteJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	m.writeCh <- v
	return nil
}

func (m *mockWS) ReadJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	select {
	case msg, ok := <-m.readCh:
		if !ok {
			return errors.New("closed")
		}
		// Copy to v (assuming v is *models.ClientMessage)
		if ptr, ok := v.(*models.ClientMessage); ok {
			*ptr = msg
		}
		return nil
	case <-m.closeCh:
		return errors.New("connection closed")
	}
}

type mockHub struct {
	joinCh     chan registry.Handle
	leaveCh    chan registry.Handle
	dispatchCh chan models.ClientMessage
	// per connection channel
	outboxes map[registry.Handle]chan models.ServerMessage
	leaveErr error
	mu       sync.Mutex
}

func newMockHub() *mockHub {
	return &mockHub{
		joinCh:     make(chan registry.Handle, 10),
		leaveCh:    make(chan registry.Handle, 10),
		dispatchCh: make(chan models.ClientMessage, 10),
		outboxes:   make(map[registry.Handle]chan models.ServerMessage),
	}
}

func (m *mockHub) Join(handle registry.Handle) chan models.ServerMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joinCh <- handle
	ch := make(chan models.ServerMessage, 10)
	m.outboxes[handle] = ch
	return ch
}

func (m *mockHub) Leave(ctx context.Context, handle registry.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveErr = ctx.Err()
	m.leaveCh <- handle
	if ch, ok := m.outboxes[handle]; ok {
		close(ch)
		delete(m.outboxes, handle)
	}
}

func (m *mockHub) Dispatch(_ context.Context, _ registry.Handle, msg models.ClientMessage) {
	m.dispatchCh <- msg
}

func (m *mockHub) outbox(handle registry.Handle) chan models.ServerMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outboxes[handle]
}

func TestConnection_Lifecycle(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	handle := registry.NewHandle()

	conn := NewConnection(hub, ws, handle)
	if conn == nil {
		t.Fatal("NewConnection returned nil")
	}

	// Verify Join was called
	select {
	case h := <-hub.joinCh:
		if h != handle {
			t.Errorf("Expected Join with %s, got %s", handle, h)
		}
	default:
		t.Error("Join not called on NewConnection")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start Handle in goroutine
	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	// 1. Send message from Client -> Hub
	clientMsg := models.ClientMessage{
		Type:    models.ClientMessageTypeSendMessage,
		Payload: json.RawMessage(`{"receiver":"bob","text":"hello"}`),
	}
	ws.readCh <- clientMsg

	select {
	case received := <-hub.dispatchCh:
		if string(received.Payload) != string(clientMsg.Payload) {
			t.Errorf("Hub received wrong payload: %s", received.Payload)
		}
	case <-time.After(1 * time.Second):
		t.Error("Hub did not receive dispatched message")
	}

	// 2. Send message from Server -> Client
	serverMsg := models.ServerMessage{
		Type:    models.ServerMessageTypeNotificationPing,
		Payload: models.NotificationPing{SenderID: "bob", SenderName: "Bob"},
	}
	hub.outbox(handle) <- serverMsg

	select {
	case received := <-ws.writeCh:
		sMsg, ok := received.(models.ServerMessage)
		if !ok {
			t.Fatalf("WS received wrong type: %T", received)
		}
		if ping, ok := sMsg.Payload.(models.NotificationPing); !ok || ping.SenderName != "Bob" {
			t.Errorf("WS received wrong content: %v", sMsg)
		}
	case <-time.After(1 * time.Second):
		t.Error("WS did not receive server message")
	}

	// 3. Stop
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return after cancel")
	}

	// Verify Leave called
	select {
	case h := <-hub.leaveCh:
		if h != handle {
			t.Errorf("Expected Leave with %s, got %s", handle, h)
		}
		if hub.leaveErr != nil {
			t.Errorf("Leave got a done context: %v", hub.leaveErr)
		}
	default:
		t.Error("Leave not called")
	}

	// Verify WS Close called
	if !ws.isClosed() {
		t.Error("WS Close not called")
	}
}

func TestConnection_WSError(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()

	conn := NewConnection(hub, ws, registry.NewHandle())

	// Simulate ReadJSON error immediately
	ws.errToReturn = errors.New("read error")

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected error from Handle, got nil")
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return on error")
	}

	if !ws.isClosed() {
		t.Error("WS Close not called")
	}
}

func TestConnection_OutboxClosed(t *testing.T) {
	hub := newMockHub()
	ws := newMockWS()
	handle := registry.NewHandle()

	conn := NewConnection(hub, ws, handle)
	hub.mu.Lock()
	close(hub.outboxes[handle])
	delete(hub.outboxes, handle)
	hub.mu.Unlock()

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	select {
	case err := <-done:
		if !errors.Is(err, errOutboxClosed) {
			t.Errorf("Expected errOutboxClosed, got %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Error("Handle did not return after outbox closed")
	}
}
