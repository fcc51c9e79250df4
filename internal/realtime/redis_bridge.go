package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge publishes events on Redis so every instance can deliver them
// to its own websocket subscribers.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	prefix string
	log    *zap.Logger

	sub  *redis.PubSub
	done chan struct{}
}

func NewRedisBridge(client *redis.Client, hub *Hub, prefix string, log *zap.Logger) *RedisBridge {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "agentdesk"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBridge{
		client: client,
		hub:    hub,
		prefix: prefix,
		log:    log.Named("realtime.redis"),
	}
}

// Channel returns the Redis channel carrying events of one organization.
func (b *RedisBridge) Channel(orgID string) string {
	return b.prefix + ":org:" + orgID
}

func (b *RedisBridge) Publish(ctx context.Context, event Event) error {
	if b.client == nil {
		return errors.New("redis client not configured")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.Channel(event.OrgID), payload).Err()
}

// Start subscribes to every organization channel and feeds received events
// into the local hub until Close is called.
func (b *RedisBridge) Start(ctx context.Context) error {
	if b.client == nil {
		return errors.New("redis client not configured")
	}
	sub := b.client.PSubscribe(context.Background(), b.prefix+":org:*")
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	b.sub = sub
	b.done = make(chan struct{})
	go b.run(sub.Channel(), b.done)
	return nil
}

func (b *RedisBridge) run(messages <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range messages {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			b.log.Warn("dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
			continue
		}
		b.hub.Publish(event.OrgID, event)
	}
}

func (b *RedisBridge) Close() error {
	if b.sub == nil {
		return nil
	}
	err := b.sub.Close()
	select {
	case <-b.done:
	case <-time.After(5 * time.Second):
		b.log.Warn("redis subscriber did not stop in time")
	}
	b.sub = nil
	return err
}
