package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"relay/internal/models"

	"github.com/redis/go-redis/v9"
)

// frame is how a ServerMessage travels through Redis. The payload is kept
// raw so it is forwarded to clients exactly as published.
type frame struct {
	Type      models.ServerMessageType `json:"type"`
	RequestID string                   `json:"requestId,omitempty"`
	Payload   json.RawMessage          `json:"payload,omitempty"`
}

// Redis shares topics between relay nodes over Redis pub/sub. Every node,
// including the publisher, receives its own frames through Run.
type Redis struct {
	sinkHolder
	client *redis.Client
	prefix string
}

var _ Bus = (*Redis)(nil)

// NewRedis connects to addr and checks the connection.
func NewRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{
		client: client,
		prefix: prefix,
	}, nil
}

func (r *Redis) Publish(ctx context.Context, topic string, msg models.ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	return r.client.Publish(ctx, r.prefix+topic, data).Err()
}

func (r *Redis) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(m)
		}
	}
}

func (r *Redis) handle(m *redis.Message) {
	var f frame
	if err := json.Unmarshal([]byte(m.Payload), &f); err != nil {
		slog.Error("failed to unmarshal frame", "channel", m.Channel, "error", err)
		return
	}

	msg := models.ServerMessage{Type: f.Type, RequestID: f.RequestID}
	if len(f.Payload) > 0 {
		msg.Payload = f.Payload
	}
	r.deliver(strings.TrimPrefix(m.Channel, r.prefix), msg)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
