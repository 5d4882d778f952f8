package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

type ConversationService struct {
	convs   ConversationStore
	members *MemberService
}

func NewConversationService(convs ConversationStore, members *MemberService) *ConversationService {
	return &ConversationService{convs: convs, members: members}
}

type CreateConversationInput struct {
	Type           domain.ConversationType
	Name           *string
	ParticipantIDs []string
}

// Create stores a dm or group conversation. The creator is always a
// participant and becomes its admin.
func (s *ConversationService) Create(ctx context.Context, creatorID string, in CreateConversationInput) (*domain.Conversation, error) {
	if in.Type == "" || in.ParticipantIDs == nil {
		return nil, fmt.Errorf("%w: type and participant ids are required", domain.ErrInvalidInput)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: type must be either \"dm\" or \"group\"", domain.ErrInvalidInput)
	}

	var name *string
	if in.Type == domain.ConversationGroup {
		if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
			return nil, fmt.Errorf("%w: group conversations must have a name", domain.ErrInvalidInput)
		}
		n := strings.TrimSpace(*in.Name)
		name = &n
	}
	if in.Type == domain.ConversationDM && len(in.ParticipantIDs) != 1 {
		return nil, fmt.Errorf("%w: dm conversations must have exactly 1 other participant", domain.ErrInvalidInput)
	}

	ids := make([]string, 0, len(in.ParticipantIDs)+1)
	seen := map[string]struct{}{}
	for _, id := range append([]string{creatorID}, in.ParticipantIDs...) {
		if _, dup := seen[id]; dup {
			continue
		}
		if !validID(id) {
			return nil, fmt.Errorf("%w: invalid participant id %q", domain.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	conv := &domain.Conversation{
		Type:      in.Type,
		Name:      name,
		CreatedBy: &creatorID,
	}
	if err := s.convs.Create(ctx, conv, ids); err != nil {
		return nil, fmt.Errorf("convs.Create: %w", err)
	}
	return conv, nil
}

func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	return s.convs.ListByUser(ctx, userID)
}

func (s *ConversationService) Participants(ctx context.Context, conversationID, userID string) ([]domain.Participant, error) {
	if _, err := s.members.Authorize(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.convs.ListParticipants(ctx, conversationID)
}

func (s *ConversationService) AddParticipant(ctx context.Context, conversationID, actorID, userID string) error {
	if err := s.requireAdmin(ctx, conversationID, actorID); err != nil {
		return err
	}
	if !validID(userID) {
		return fmt.Errorf("%w: invalid user id", domain.ErrInvalidInput)
	}
	return s.convs.AddParticipant(ctx, conversationID, userID)
}

// RemoveParticipant only changes storage. Live subscriptions of the removed
// user are left alone until they leave or disconnect.
func (s *ConversationService) RemoveParticipant(ctx context.Context, conversationID, actorID, userID string) error {
	if actorID != userID {
		if err := s.requireAdmin(ctx, conversationID, actorID); err != nil {
			return err
		}
	} else if _, err := s.members.Authorize(ctx, conversationID, actorID); err != nil {
		return err
	}
	if !validID(userID) {
		return domain.ErrNotParticipant
	}
	return s.convs.RemoveParticipant(ctx, conversationID, userID)
}

func (s *ConversationService) requireAdmin(ctx context.Context, conversationID, actorID string) error {
	if _, err := s.members.Authorize(ctx, conversationID, actorID); err != nil {
		return err
	}
	role, err := s.convs.ParticipantRole(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if role != domain.RoleAdmin {
		return domain.ErrForbidden
	}
	return nil
}
