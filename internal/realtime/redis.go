package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisFeed adapts Redis pub/sub to the Feed interface.
type RedisFeed struct {
	client *redis.Client
}

func NewRedisFeed(client *redis.Client) *RedisFeed {
	return &RedisFeed{client: client}
}

func (f *RedisFeed) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := f.client.Subscribe(ctx, channel)

	// Confirm the subscription before reporting success so a failed attach
	// surfaces as an error instead of a silent dead channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("confirm subscribe %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		events: make(chan string, 16),
	}
	go sub.bridge()
	return sub, nil
}

type redisSubscription struct {
	pubsub    *redis.PubSub
	events    chan string
	closeOnce sync.Once
}

// bridge forwards payloads without ever blocking: a full buffer means the
// consumer is mid-refresh already, and dropped signals coalesce harmlessly
// because every refresh re-reads the complete state.
func (s *redisSubscription) bridge() {
	defer close(s.events)
	for msg := range s.pubsub.Channel() {
		select {
		case s.events <- msg.Payload:
		default:
		}
	}
}

func (s *redisSubscription) Events() <-chan string {
	return s.events
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}

// RedisPublisher emits change notifications for watchers.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload string) error {
	return p.client.Publish(ctx, channel, payload).Err()
}
