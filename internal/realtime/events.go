package realtime

import (
	"context"
	"encoding/json"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// Client commands.
const (
	EventJoin        = "conversation:join"
	EventLeave       = "conversation:leave"
	EventSend        = "message:send"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
)

// Server events.
const (
	EventMessageNew = "message:new"
)

// Event is one broadcast addressed to a room. Exclude, when set, names a
// connection that must not receive it.
type Event struct {
	Room    string          `json:"room"`
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Exclude string          `json:"exclude,omitempty"`
}

// Publisher delivers an event to every subscriber of ev.Room on every process.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type TypingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

func NewMessageEvent(msg *domain.Message) (Event, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return Event{}, err
	}
	return Event{Room: msg.ConversationID, Name: EventMessageNew, Payload: b}, nil
}

func newTypingEvent(name, conversationID, userID, exclude string) Event {
	b, _ := json.Marshal(TypingPayload{UserID: userID, ConversationID: conversationID})
	return Event{Room: conversationID, Name: name, Payload: b, Exclude: exclude}
}
