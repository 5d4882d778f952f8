package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/realtime"
	"github.com/cwrk-planet/chat-service/internal/service"
	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

type UserSvc interface {
	Profile(ctx context.Context, userID string) (*domain.User, error)
	LookupByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (*domain.User, error)
}

type ConversationSvc interface {
	Create(ctx context.Context, creatorID string, in service.CreateConversationInput) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	Participants(ctx context.Context, conversationID, userID string) ([]domain.Participant, error)
	AddParticipant(ctx context.Context, conversationID, actorID, userID string) error
	RemoveParticipant(ctx context.Context, conversationID, actorID, userID string) error
}

type ChatSvc interface {
	Post(ctx context.Context, in domain.NewMessage) (*domain.Message, error)
	History(ctx context.Context, conversationID, userID string, q domain.HistoryQuery) ([]domain.Message, error)
	Edit(ctx context.Context, messageID, userID, content string) (*domain.Message, error)
	Delete(ctx context.Context, messageID, userID string) error
}

type Handler struct {
	users UserSvc
	convs ConversationSvc
	chat  ChatSvc
	bus   realtime.Publisher
}

func NewHandler(users UserSvc, convs ConversationSvc, chat ChatSvc, bus realtime.Publisher) *Handler {
	return &Handler{
		users: users,
		convs: convs,
		chat:  chat,
		bus:   bus,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to status codes. Anything unknown is logged
// and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotParticipant):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "you must be a participant in this conversation"})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	case errors.Is(err, domain.ErrConversationNotFound),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		httpmw.L(r.Context()).Error("handler."+op, "err", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return false
	}
	return true
}

// GET /me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Profile(r.Context(), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, r, "Me", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// PATCH /me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req domain.ProfileUpdate
	if !decode(w, r, &req) {
		return
	}
	u, err := h.users.UpdateProfile(r.Context(), httpmw.UserIDFromCtx(r.Context()), req)
	if err != nil {
		writeError(w, r, "UpdateMe", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GET /users/lookup?email=
func (h *Handler) LookupUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.LookupByEmail(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, "LookupUser", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// GET /conversations
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := h.convs.ListForUser(r.Context(), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, r, "ListConversations", err)
		return
	}
	if list == nil {
		list = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, ConversationsResponse{Conversations: list})
}

// POST /conversations
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if !decode(w, r, &req) {
		return
	}
	conv, err := h.convs.Create(r.Context(), httpmw.UserIDFromCtx(r.Context()), service.CreateConversationInput{
		Type:           req.Type,
		Name:           req.Name,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		writeError(w, r, "CreateConversation", err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// GET /conversations/{id}/participants
func (h *Handler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	parts, err := h.convs.Participants(r.Context(), chi.URLParam(r, "id"), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, r, "ListParticipants", err)
		return
	}
	if parts == nil {
		parts = []domain.Participant{}
	}
	writeJSON(w, http.StatusOK, ParticipantsResponse{Participants: parts})
}

// POST /conversations/{id}/participants
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req AddParticipantRequest
	if !decode(w, r, &req) {
		return
	}
	err := h.convs.AddParticipant(r.Context(), chi.URLParam(r, "id"), httpmw.UserIDFromCtx(r.Context()), strings.TrimSpace(req.UserID))
	if err != nil {
		writeError(w, r, "AddParticipant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /conversations/{id}/participants/{userId}
func (h *Handler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	err := h.convs.RemoveParticipant(r.Context(), chi.URLParam(r, "id"), httpmw.UserIDFromCtx(r.Context()), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, "RemoveParticipant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /conversations/{id}/messages?limit=&before=
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := domain.HistoryQuery{Limit: 50}
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			q.Limit = n
		}
	}
	if s := r.URL.Query().Get("before"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "before must be an RFC3339 timestamp"})
			return
		}
		q.Before = &t
	}

	msgs, err := h.chat.History(r.Context(), chi.URLParam(r, "id"), httpmw.UserIDFromCtx(r.Context()), q)
	if err != nil {
		writeError(w, r, "ListMessages", err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: msgs})
}

// POST /messages. The stored message is also broadcast to live subscribers.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "conversation id is required"})
		return
	}
	var content string
	if len(req.Content) == 0 || bytes.Equal(req.Content, []byte("null")) || json.Unmarshal(req.Content, &content) != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "content is required (can be empty)"})
		return
	}

	msg, err := h.chat.Post(r.Context(), domain.NewMessage{
		ConversationID: req.ConversationID,
		SenderID:       httpmw.UserIDFromCtx(r.Context()),
		Content:        content,
		ReplyToID:      req.ReplyToID,
	})
	if err != nil {
		writeError(w, r, "SendMessage", err)
		return
	}

	if ev, err := realtime.NewMessageEvent(msg); err == nil {
		if err := h.bus.Publish(r.Context(), ev); err != nil {
			httpmw.L(r.Context()).Warn("handler.SendMessage publish failed", "message", msg.ID, "err", err)
		}
	}

	writeJSON(w, http.StatusCreated, msg)
}

// PATCH /messages/{id}
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	var req EditMessageRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Content == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "content is required"})
		return
	}
	msg, err := h.chat.Edit(r.Context(), chi.URLParam(r, "id"), httpmw.UserIDFromCtx(r.Context()), *req.Content)
	if err != nil {
		writeError(w, r, "EditMessage", err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// DELETE /messages/{id}
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.Delete(r.Context(), chi.URLParam(r, "id"), httpmw.UserIDFromCtx(r.Context())); err != nil {
		writeError(w, r, "DeleteMessage", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
