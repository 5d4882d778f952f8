package service

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type ChatService struct {
	messages MessageStore
	members  *MemberService
}

func NewChatService(messages MessageStore, members *MemberService) *ChatService {
	return &ChatService{messages: messages, members: members}
}

// Save persists a message. Callers have already checked membership.
func (s *ChatService) Save(ctx context.Context, in domain.NewMessage) (*domain.Message, error) {
	if in.ReplyToID != nil && !validID(*in.ReplyToID) {
		return nil, fmt.Errorf("%w: invalid reply id", domain.ErrInvalidInput)
	}
	msg, err := s.messages.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("messages.Create: %w", err)
	}
	return msg, nil
}

// Post is the request/response send path: membership is checked, then the
// message is stored.
func (s *ChatService) Post(ctx context.Context, in domain.NewMessage) (*domain.Message, error) {
	ok, err := s.members.IsMember(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotParticipant
	}
	return s.Save(ctx, in)
}

func (s *ChatService) History(ctx context.Context, conversationID, userID string, q domain.HistoryQuery) ([]domain.Message, error) {
	if _, err := s.members.Authorize(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.messages.History(ctx, conversationID, q)
}

// Edit and Delete are allowed for the sender only.
func (s *ChatService) Edit(ctx context.Context, messageID, userID, content string) (*domain.Message, error) {
	if err := s.ownMessage(ctx, messageID, userID); err != nil {
		return nil, err
	}
	return s.messages.Update(ctx, messageID, content)
}

func (s *ChatService) Delete(ctx context.Context, messageID, userID string) error {
	if err := s.ownMessage(ctx, messageID, userID); err != nil {
		return err
	}
	return s.messages.SoftDelete(ctx, messageID)
}

func (s *ChatService) ownMessage(ctx context.Context, messageID, userID string) error {
	if !validID(messageID) {
		return domain.ErrMessageNotFound
	}
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return domain.ErrForbidden
	}
	return nil
}
