package fanout

import (
	"context"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/realtime"
)

// Memory is an in-process bus. Every attached deliverer stands for one
// process; Publish delivers to all of them synchronously, in call order.
type Memory struct {
	mu    sync.RWMutex
	next  int
	nodes map[int]Deliverer
	order []int
}

func NewMemory() *Memory {
	return &Memory{nodes: make(map[int]Deliverer)}
}

func (b *Memory) Attach(d Deliverer) (detach func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.nodes[id] = d
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(b.nodes, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

func (b *Memory) Publish(_ context.Context, ev realtime.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, id := range b.order {
		b.nodes[id].Deliver(ev)
	}
	return nil
}
