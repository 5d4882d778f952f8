package postgres

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

type MessageRepository struct {
	db txBeginner
}

func NewMessageRepository(db txBeginner) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create stores the message and bumps the conversation's updated_at so
// conversation lists order by latest activity.
func (r *MessageRepository) Create(ctx context.Context, in domain.NewMessage) (*domain.Message, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	m, err := scanMessage(tx.QueryRow(ctx, qCreateMessage, in.ConversationID, in.SenderID, in.Content, trimPtr(in.ReplyToID)))
	if err != nil {
		return nil, mapPgError(err, domain.ErrConversationNotFound)
	}
	if _, err := tx.Exec(ctx, qTouchConversation, m.ConversationID, m.CreatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return m, nil
}

// FindByID skips soft-deleted messages.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, qFindMessageByID, id))
	if err != nil {
		return nil, mapPgError(err, domain.ErrMessageNotFound)
	}
	return m, nil
}

// History returns messages newest first, strictly older than q.Before when set.
func (r *MessageRepository) History(ctx context.Context, conversationID string, q domain.HistoryQuery) ([]domain.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var before any
	if q.Before != nil {
		before = *q.Before
	}

	rows, err := r.db.Query(ctx, qMessageHistory, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *MessageRepository) Update(ctx context.Context, id, content string) (*domain.Message, error) {
	m, err := scanMessage(r.db.QueryRow(ctx, qUpdateMessage, id, content))
	if err != nil {
		return nil, mapPgError(err, domain.ErrMessageNotFound)
	}
	return m, nil
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, qSoftDeleteMessage, id)
	if err != nil {
		return mapPgError(err, domain.ErrMessageNotFound)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.Content,
		&m.ReplyToID,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
