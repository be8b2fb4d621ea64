package bus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"relay/internal/models"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	topic string
	msg   models.ServerMessage
}

type recorder struct {
	ch chan received
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan received, 10)}
}

func (r *recorder) sink(topic string, msg models.ServerMessage) {
	r.ch <- received{topic: topic, msg: msg}
}

func TestGroupTopic(t *testing.T) {
	id, ok := ParseGroupTopic(GroupTopic("g1"))
	assert.True(t, ok)
	assert.Equal(t, "g1", id)

	_, ok = ParseGroupTopic(TopicAll)
	assert.False(t, ok)
}

func TestLocal_PublishDeliversSynchronously(t *testing.T) {
	b := NewLocal()
	rec := newRecorder()

	// Publishing without a sink is a no-op.
	require.NoError(t, b.Publish(context.Background(), TopicAll, models.ServerMessage{}))

	b.Subscribe(rec.sink)
	msg := models.ServerMessage{
		Type:    models.ServerMessageTypeOnlineStatus,
		Payload: models.PresenceChange{UserID: "u1", Online: true},
	}
	require.NoError(t, b.Publish(context.Background(), TopicAll, msg))

	select {
	case got := <-rec.ch:
		assert.Equal(t, TopicAll, got.topic)
		assert.Equal(t, msg, got.msg)
	default:
		t.Fatal("expected synchronous delivery")
	}
}

func TestLocal_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- NewLocal().Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRedis_PublishAcrossNodes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA, err := NewRedis(ctx, mr.Addr(), "relay:")
	require.NoError(t, err)
	defer nodeA.Close()
	nodeB, err := NewRedis(ctx, mr.Addr(), "relay:")
	require.NoError(t, err)
	defer nodeB.Close()

	recA, recB := newRecorder(), newRecorder()
	nodeA.Subscribe(recA.sink)
	nodeB.Subscribe(recB.sink)

	var wg sync.WaitGroup
	wg.Go(func() { assert.NoError(t, nodeA.Run(ctx)) })
	wg.Go(func() { assert.NoError(t, nodeB.Run(ctx)) })

	require.Eventually(t, func() bool {
		return mr.PubSubNumPat() == 2
	}, 2*time.Second, 10*time.Millisecond)

	msg := models.ServerMessage{
		Type:    models.ServerMessageTypeReadReceipt,
		Payload: models.ReadReceipt{ReaderID: "u1", GroupID: "g1"},
	}
	require.NoError(t, nodeA.Publish(ctx, GroupTopic("g1"), msg))

	for _, rec := range []*recorder{recA, recB} {
		select {
		case got := <-rec.ch:
			assert.Equal(t, "group:g1", got.topic)
			assert.Equal(t, models.ServerMessageTypeReadReceipt, got.msg.Type)

			raw, ok := got.msg.Payload.(json.RawMessage)
			require.True(t, ok, "payload should stay raw, got %T", got.msg.Payload)
			var receipt models.ReadReceipt
			require.NoError(t, json.Unmarshal(raw, &receipt))
			assert.Equal(t, models.ReadReceipt{ReaderID: "u1", GroupID: "g1"}, receipt)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}

	cancel()
	wg.Wait()
}

func TestRedis_ConnectFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = NewRedis(ctx, addr, "relay:")
	assert.Error(t, err)
}
