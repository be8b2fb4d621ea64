package bus

import (
	"context"
	"strings"
	"sync"

	"relay/internal/models"
)

// TopicAll reaches every attached connection.
const TopicAll = "all"

const groupTopicPrefix = "group:"

// GroupTopic reaches the connected members of a group.
func GroupTopic(groupID string) string {
	return groupTopicPrefix + groupID
}

// ParseGroupTopic returns the group id of a group topic.
func ParseGroupTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, groupTopicPrefix) {
		return "", false
	}
	return strings.TrimPrefix(topic, groupTopicPrefix), true
}

// Sink delivers a published frame to local connections.
type Sink func(topic string, msg models.ServerMessage)

// Bus fans broadcast frames out to every node's sink.
type Bus interface {
	Publish(ctx context.Context, topic string, msg models.ServerMessage) error
	Subscribe(sink Sink)
	// Run blocks until ctx is done, pumping remote frames into the sink.
	Run(ctx context.Context) error
}

// sinkHolder is shared by the implementations.
type sinkHolder struct {
	sink Sink
	mu   sync.RWMutex
}

func (s *sinkHolder) Subscribe(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

func (s *sinkHolder) deliver(topic string, msg models.ServerMessage) {
	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()

	if sink != nil {
		sink(topic, msg)
	}
}

// Local delivers synchronously within a single process.
type Local struct {
	sinkHolder
}

var _ Bus = (*Local)(nil)

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Publish(_ context.Context, topic string, msg models.ServerMessage) error {
	l.deliver(topic, msg)
	return nil
}

func (l *Local) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
