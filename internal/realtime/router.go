package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

const (
	replyNotParticipant = "Not a participant in this conversation"
	replyJoinFailed     = "Failed to join conversation"
	replyMissingFields  = "Missing required fields"
	replySendFailed     = "Failed to send message"
)

type MessageSink interface {
	Save(ctx context.Context, in domain.NewMessage) (*domain.Message, error)
}

// Command is one inbound client command.
type Command struct {
	Event   string
	Payload json.RawMessage
}

// Reply is the acknowledgment for commands that have one.
type Reply struct {
	Success bool            `json:"success,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message *domain.Message `json:"message,omitempty"`
}

type Router struct {
	rooms   *RoomManager
	members MembershipOracle
	sink    MessageSink
	typing  *TypingTracker
	bus     Publisher
}

func NewRouter(rooms *RoomManager, members MembershipOracle, sink MessageSink, typing *TypingTracker, bus Publisher) *Router {
	return &Router{
		rooms:   rooms,
		members: members,
		sink:    sink,
		typing:  typing,
		bus:     bus,
	}
}

// Handle runs one command to completion. It returns nil for commands
// without an acknowledgment. It never panics.
func (r *Router) Handle(ctx context.Context, s *Session, cmd Command) (reply *Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("realtime command panic",
				"event", cmd.Event,
				"conn", s.ConnID,
				"panic", rec,
				"stack", string(debug.Stack()))
			reply = failureReply(cmd.Event)
		}
	}()

	switch cmd.Event {
	case EventJoin:
		return r.join(ctx, s, cmd.Payload)
	case EventLeave:
		if id, ok := conversationID(cmd.Payload); ok {
			r.rooms.Leave(s, id)
		}
		return nil
	case EventSend:
		return r.send(ctx, s, cmd.Payload)
	case EventTypingStart, EventTypingStop:
		r.typingCommand(ctx, s, cmd.Event, cmd.Payload)
		return nil
	default:
		slog.Debug("realtime unknown event", "event", cmd.Event, "conn", s.ConnID)
		return nil
	}
}

// Disconnect tears the session down and emits typing:stop for every
// conversation the user was still typing in.
func (r *Router) Disconnect(ctx context.Context, s *Session) {
	left := r.rooms.Disconnect(s)
	stopped := r.typing.StopAll(s.UserID)
	for _, conv := range stopped {
		r.publish(ctx, newTypingEvent(EventTypingStop, conv, s.UserID, s.ConnID))
	}
	slog.Debug("realtime session closed",
		"conn", s.ConnID, "user", s.UserID, "rooms", len(left), "typing_stopped", len(stopped))
}

func (r *Router) join(ctx context.Context, s *Session, payload json.RawMessage) *Reply {
	id, _ := conversationID(payload)

	err := r.rooms.Join(ctx, s, id)
	switch {
	case err == nil:
		return &Reply{Success: true}
	case errors.Is(err, domain.ErrNotParticipant):
		slog.Debug("realtime join denied", "conn", s.ConnID, "user", s.UserID, "conversation", id)
		return &Reply{Error: replyNotParticipant}
	default:
		if !errors.Is(err, ErrSessionClosed) {
			slog.Error("realtime join failed", "conversation", id, slog.Any("err", err))
		}
		return &Reply{Error: replyJoinFailed}
	}
}

type sendPayload struct {
	ConversationID string          `json:"conversationId"`
	Content        json.RawMessage `json:"content"`
	ReplyToID      *string         `json:"replyToId"`
}

func (r *Router) send(ctx context.Context, s *Session, payload json.RawMessage) *Reply {
	var p sendPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return &Reply{Error: replyMissingFields}
	}
	p.ConversationID = strings.TrimSpace(p.ConversationID)
	content, ok := decodeContent(p.Content)
	if p.ConversationID == "" || !ok {
		return &Reply{Error: replyMissingFields}
	}

	member, err := r.members.IsMember(ctx, p.ConversationID, s.UserID)
	if err != nil {
		slog.Error("realtime send membership check failed", "conversation", p.ConversationID, slog.Any("err", err))
		return &Reply{Error: replySendFailed}
	}
	if !member {
		slog.Debug("realtime send denied", "conn", s.ConnID, "user", s.UserID, "conversation", p.ConversationID)
		return &Reply{Error: replyNotParticipant}
	}

	msg, err := r.sink.Save(ctx, domain.NewMessage{
		ConversationID: p.ConversationID,
		SenderID:       s.UserID,
		Content:        content,
		ReplyToID:      p.ReplyToID,
	})
	if err != nil {
		slog.Error("realtime send persist failed", "conversation", p.ConversationID, slog.Any("err", err))
		return &Reply{Error: replySendFailed}
	}

	ev, err := NewMessageEvent(msg)
	if err != nil {
		slog.Error("realtime encode message failed", "message", msg.ID, slog.Any("err", err))
		return &Reply{Error: replySendFailed}
	}
	r.publish(ctx, ev)

	return &Reply{Success: true, Message: msg}
}

func (r *Router) typingCommand(ctx context.Context, s *Session, event string, payload json.RawMessage) {
	id, ok := conversationID(payload)
	if !ok {
		return
	}
	member, err := r.members.IsMember(ctx, id, s.UserID)
	if err != nil {
		slog.Warn("realtime typing membership check failed", "conversation", id, slog.Any("err", err))
		return
	}
	if !member {
		return
	}

	var changed bool
	if event == EventTypingStart {
		changed = r.typing.Start(id, s.UserID)
	} else {
		changed = r.typing.Stop(id, s.UserID)
	}
	if changed {
		r.publish(ctx, newTypingEvent(event, id, s.UserID, s.ConnID))
	}
}

func (r *Router) publish(ctx context.Context, ev Event) {
	if err := r.bus.Publish(ctx, ev); err != nil {
		slog.Error("realtime publish failed", "room", ev.Room, "event", ev.Name, slog.Any("err", err))
	}
}

func failureReply(event string) *Reply {
	switch event {
	case EventJoin:
		return &Reply{Error: replyJoinFailed}
	case EventSend:
		return &Reply{Error: replySendFailed}
	default:
		return nil
	}
}

// conversationID accepts either a bare JSON string or {"conversationId": "..."}.
func conversationID(payload json.RawMessage) (string, bool) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return "", false
	}

	var id string
	if payload[0] == '"' {
		if err := json.Unmarshal(payload, &id); err != nil {
			return "", false
		}
	} else {
		var obj struct {
			ConversationID string `json:"conversationId"`
		}
		if err := json.Unmarshal(payload, &obj); err != nil {
			return "", false
		}
		id = obj.ConversationID
	}

	id = strings.TrimSpace(id)
	return id, id != ""
}

// decodeContent accepts any JSON string, including "". Missing, null and
// non-string values are rejected.
func decodeContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
