package postgres

import (
	"context"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

type UserRepository struct {
	q querier
}

func NewUserRepository(q querier) *UserRepository {
	return &UserRepository{q: q}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, qFindUserByID, id)
}

// FindByEmail matches case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, qFindUserByEmail, email)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id string, upd domain.ProfileUpdate) (*domain.User, error) {
	return r.getOne(ctx, qUpdateUserProfile, id, trimPtr(upd.DisplayName), trimPtr(upd.AvatarURL))
}

func (r *UserRepository) getOne(ctx context.Context, sql string, args ...any) (*domain.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, mapPgError(err, domain.ErrUserNotFound)
	}
	return u, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u      domain.User
		status *string
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.DisplayName,
		&u.AvatarURL,
		&status,
		&u.LastSeenAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if status != nil {
		u.Status = *status
	}

	return &u, nil
}
