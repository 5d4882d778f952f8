// Package fanout carries room events between server processes.
package fanout

import (
	"encoding/json"
	"log/slog"

	"github.com/cwrk-planet/chat-service/internal/realtime"
)

// Default bus names: a redis channel and a nats subject.
const (
	DefaultChannel = "chat:events"
	DefaultSubject = "chat.events"
)

// Deliverer hands an event to the connections of one process.
type Deliverer interface {
	Deliver(ev realtime.Event)
}

// envelope is the wire form shared by the networked buses. Node lets a
// process skip its own events, which it has already delivered locally.
type envelope struct {
	Node  string         `json:"node"`
	Event realtime.Event `json:"event"`
}

func encode(node string, ev realtime.Event) ([]byte, error) {
	return json.Marshal(envelope{Node: node, Event: ev})
}

func relay(node string, local Deliverer, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("fanout drop malformed event", slog.Any("err", err))
		return
	}
	if env.Node == node || env.Event.Room == "" {
		return
	}
	local.Deliver(env.Event)
}
