package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/realtime"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis shares events between processes over one pub/sub channel. Events
// are delivered locally first, then published for the other processes.
type Redis struct {
	client  *redis.Client
	channel string
	node    string
	local   Deliverer
	ready   chan struct{}
	once    sync.Once
}

func NewRedis(client *redis.Client, channel string, local Deliverer) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{
		client:  client,
		channel: channel,
		node:    uuid.NewString(),
		local:   local,
		ready:   make(chan struct{}),
	}
}

func (b *Redis) Publish(ctx context.Context, ev realtime.Event) error {
	b.local.Deliver(ev)

	data, err := encode(b.node, ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes and relays remote events until ctx is done.
func (b *Redis) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// wait for the subscription confirmation
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}
	b.once.Do(func() { close(b.ready) })
	slog.Info("fanout subscribed", "bus", "redis", "channel", b.channel, "node", b.node)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			relay(b.node, b.local, []byte(msg.Payload))
		}
	}
}

// Ready is closed once the subscription is confirmed.
func (b *Redis) Ready() <-chan struct{} { return b.ready }
