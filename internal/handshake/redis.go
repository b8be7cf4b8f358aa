package handshake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const windowTopicPrefix = Namespace + ":window:"

// RedisBus carries window messages over Redis pub/sub so frames served by
// different processes can reach each other. Like postMessage it is
// at-most-once: nothing is stored for windows nobody listens on.
type RedisBus struct {
	client *redis.Client
	prefix string
}

func NewRedisBus(redisURL string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBusWithClient(client), nil
}

func NewRedisBusWithClient(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, prefix: windowTopicPrefix}
}

func (b *RedisBus) Window(id string) Channel {
	return &redisWindow{bus: b, id: id}
}

func (b *RedisBus) topic(id string) string {
	return b.prefix + id
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

type redisWindow struct {
	bus *RedisBus
	id  string
}

func (w *redisWindow) ID() string { return w.id }

func (w *redisWindow) Post(ctx context.Context, msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("post to %s: %w", w.id, err)
	}
	if err := w.bus.client.Publish(ctx, w.bus.topic(w.id), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", w.id, err)
	}
	return nil
}

func (w *redisWindow) Subscribe(ctx context.Context, handler Handler) (func(), error) {
	ps := w.bus.client.Subscribe(ctx, w.bus.topic(w.id))
	// Wait for the subscription to be confirmed so posts made right after
	// Subscribe returns are not missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", w.id, err)
	}

	var once sync.Once
	stopped := make(chan struct{})
	unsubscribe := func() {
		once.Do(func() {
			close(stopped)
			if err := ps.Close(); err != nil {
				log.Debug().Err(err).Str("window", w.id).Msg("close subscription")
			}
		})
	}

	messages := ps.Channel()
	go func() {
		for msg := range messages {
			handler([]byte(msg.Payload))
		}
	}()
	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				unsubscribe()
			case <-stopped:
			}
		}()
	}
	return unsubscribe, nil
}
