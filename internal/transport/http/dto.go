package http

import (
	"encoding/json"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateConversationRequest struct {
	Type           domain.ConversationType `json:"type"`
	Name           *string                 `json:"name"`
	ParticipantIDs []string                `json:"participantIds"`
}

type AddParticipantRequest struct {
	UserID string `json:"userId"`
}

// SendMessageRequest keeps Content raw so a missing field can be told
// apart from an empty string.
type SendMessageRequest struct {
	ConversationID string          `json:"conversationId"`
	Content        json.RawMessage `json:"content"`
	ReplyToID      *string         `json:"replyToId"`
}

type EditMessageRequest struct {
	Content *string `json:"content"`
}

type ConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
}

type ParticipantsResponse struct {
	Participants []domain.Participant `json:"participants"`
}

type MessagesResponse struct {
	Messages []domain.Message `json:"messages"`
}
