// Package bus fans player-state events out across hub instances via Redis
// pub/sub. Each instance tags what it publishes with its own ID and ignores
// its own messages on the way back in.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/wricardo/mcp-training/watchparty/watch/config"
)

var ErrNoOrigin = errors.New("bus message has no origin")

// Message is the envelope published on the channel
type Message struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

type RedisBus struct {
	rdb     *redis.Client
	channel string
	origin  string
	log     *slog.Logger
}

// NewRedisBus connects to redis and verifies connectivity
func NewRedisBus(ctx context.Context, addr string, db int, channel, origin string, log *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	if log == nil {
		log = config.Discard()
	}
	return &RedisBus{rdb: rdb, channel: channel, origin: origin, log: log}, nil
}

// Publish sends a relayed player state to the other instances
func (b *RedisBus) Publish(ctx context.Context, payload json.RawMessage) error {
	raw, err := json.Marshal(Message{Origin: b.origin, Payload: payload})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Subscribe invokes fn for every payload published by another instance.
// It blocks until ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(json.RawMessage)) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			m, err := decode([]byte(msg.Payload))
			if err != nil {
				b.log.Warn("bus.decode", "err", err)
				continue
			}
			if m.Origin == b.origin {
				continue
			}
			fn(m.Payload)
		}
	}
}

// Close shuts down the redis connection
func (b *RedisBus) Close() { _ = b.rdb.Close() }

func decode(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	if m.Origin == "" {
		return Message{}, ErrNoOrigin
	}
	return m, nil
}
