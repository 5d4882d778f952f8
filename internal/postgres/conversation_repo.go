package postgres

import (
	"context"
	"fmt"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

type ConversationRepository struct {
	db txBeginner
}

func NewConversationRepository(db txBeginner) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// Create inserts the conversation and its participants in one transaction.
// The creator is stored as admin, everybody else as member.
func (r *ConversationRepository) Create(ctx context.Context, c *domain.Conversation, participantIDs []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, qCreateConversation, c.Type, c.Name, c.CreatedBy).
		Scan(&c.ID, &c.Type, &c.Name, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return mapPgError(err, domain.ErrConversationNotFound)
	}

	for _, uid := range participantIDs {
		role := domain.RoleMember
		if c.CreatedBy != nil && *c.CreatedBy == uid {
			role = domain.RoleAdmin
		}
		if _, err := tx.Exec(ctx, qInsertParticipant, c.ID, uid, role); err != nil {
			return fmt.Errorf("add participant %s: %w", uid, mapPgError(err, domain.ErrUserNotFound))
		}
	}

	return tx.Commit(ctx)
}

func (r *ConversationRepository) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	c, err := scanConversation(r.db.QueryRow(ctx, qFindConversationByID, id))
	if err != nil {
		return nil, mapPgError(err, domain.ErrConversationNotFound)
	}
	return c, nil
}

func (r *ConversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, qIsParticipant, conversationID, userID).Scan(&exists)
	return exists, err
}

func (r *ConversationRepository) ParticipantRole(ctx context.Context, conversationID, userID string) (domain.ParticipantRole, error) {
	var role *string
	if err := r.db.QueryRow(ctx, qParticipantRole, conversationID, userID).Scan(&role); err != nil {
		return "", mapPgError(err, domain.ErrNotParticipant)
	}
	if role == nil {
		return domain.RoleMember, nil
	}
	return domain.ParticipantRole(*role), nil
}

func (r *ConversationRepository) ListByUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := r.db.Query(ctx, qListConversationsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Conversation, 0, 16)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *ConversationRepository) ListParticipants(ctx context.Context, conversationID string) ([]domain.Participant, error) {
	rows, err := r.db.Query(ctx, qListParticipants, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []domain.Participant
	for rows.Next() {
		var (
			p    domain.Participant
			role *string
		)
		if err := rows.Scan(&p.ConversationID, &p.UserID, &role, &p.JoinedAt, &p.LastReadAt); err != nil {
			return nil, err
		}
		p.Role = domain.RoleMember
		if role != nil {
			p.Role = domain.ParticipantRole(*role)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// AddParticipant is idempotent.
func (r *ConversationRepository) AddParticipant(ctx context.Context, conversationID, userID string) error {
	if _, err := r.db.Exec(ctx, qInsertParticipant, conversationID, userID, domain.RoleMember); err != nil {
		return mapPgError(err, domain.ErrConversationNotFound)
	}
	return nil
}

func (r *ConversationRepository) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	cmd, err := r.db.Exec(ctx, qDeleteParticipant, conversationID, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotParticipant
	}
	return nil
}

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := row.Scan(&c.ID, &c.Type, &c.Name, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
