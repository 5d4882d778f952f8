package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/realtime"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// NATS is the same bus as Redis over a core NATS subject.
type NATS struct {
	nc      *nats.Conn
	subject string
	node    string
	local   Deliverer
	ready   chan struct{}
	once    sync.Once
}

func NewNATS(nc *nats.Conn, subject string, local Deliverer) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{
		nc:      nc,
		subject: subject,
		node:    uuid.NewString(),
		local:   local,
		ready:   make(chan struct{}),
	}
}

func (b *NATS) Publish(_ context.Context, ev realtime.Event) error {
	b.local.Deliver(ev)

	data, err := encode(b.node, ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (b *NATS) Run(ctx context.Context) error {
	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) {
		relay(b.node, b.local, m.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", b.subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	if err := b.nc.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	b.once.Do(func() { close(b.ready) })
	slog.Info("fanout subscribed", "bus", "nats", "subject", b.subject, "node", b.node)

	<-ctx.Done()
	return nil
}

func (b *NATS) Ready() <-chan struct{} { return b.ready }
