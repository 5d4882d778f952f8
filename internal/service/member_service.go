package service

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/google/uuid"
)

// MemberService answers membership questions straight from storage.
// Nothing is cached: membership gates every join and every send.
type MemberService struct {
	convs ConversationStore
}

func NewMemberService(convs ConversationStore) *MemberService {
	return &MemberService{convs: convs}
}

func (s *MemberService) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	if !validID(conversationID) || !validID(userID) {
		return false, nil
	}
	return s.convs.IsParticipant(ctx, conversationID, userID)
}

func (s *MemberService) FindConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	if !validID(conversationID) {
		return nil, domain.ErrConversationNotFound
	}
	return s.convs.FindByID(ctx, conversationID)
}

// Authorize separates a missing conversation from one the user is not part of.
func (s *MemberService) Authorize(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.FindConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	ok, err := s.IsMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotParticipant
	}
	return conv, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
