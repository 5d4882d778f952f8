package service

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

// Storage contracts satisfied by the postgres repositories.

type UserStore interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate) (*domain.User, error)
}

type ConversationStore interface {
	Create(ctx context.Context, c *domain.Conversation, participantIDs []string) error
	FindByID(ctx context.Context, id string) (*domain.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ParticipantRole(ctx context.Context, conversationID, userID string) (domain.ParticipantRole, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	ListParticipants(ctx context.Context, conversationID string) ([]domain.Participant, error)
	AddParticipant(ctx context.Context, conversationID, userID string) error
	RemoveParticipant(ctx context.Context, conversationID, userID string) error
}

type MessageStore interface {
	Create(ctx context.Context, in domain.NewMessage) (*domain.Message, error)
	FindByID(ctx context.Context, id string) (*domain.Message, error)
	History(ctx context.Context, conversationID string, q domain.HistoryQuery) ([]domain.Message, error)
	Update(ctx context.Context, id, content string) (*domain.Message, error)
	SoftDelete(ctx context.Context, id string) error
}
