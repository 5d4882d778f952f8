package service

import (
	"context"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/google/uuid"
)

type fakeConvs struct {
	mu    sync.Mutex
	convs map[string]*domain.Conversation
	roles map[string]map[string]domain.ParticipantRole
}

func newFakeConvs() *fakeConvs {
	return &fakeConvs{
		convs: map[string]*domain.Conversation{},
		roles: map[string]map[string]domain.ParticipantRole{},
	}
}

func (f *fakeConvs) Create(_ context.Context, c *domain.Conversation, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.convs[c.ID] = c
	f.roles[c.ID] = map[string]domain.ParticipantRole{}
	for _, id := range ids {
		role := domain.RoleMember
		if c.CreatedBy != nil && *c.CreatedBy == id {
			role = domain.RoleAdmin
		}
		f.roles[c.ID][id] = role
	}
	return nil
}

func (f *fakeConvs) FindByID(_ context.Context, id string) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return c, nil
}

func (f *fakeConvs) IsParticipant(_ context.Context, convID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.roles[convID][userID]
	return ok, nil
}

func (f *fakeConvs) ParticipantRole(_ context.Context, convID, userID string) (domain.ParticipantRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roles[convID][userID]
	if !ok {
		return "", domain.ErrNotParticipant
	}
	return r, nil
}

func (f *fakeConvs) ListByUser(_ context.Context, userID string) ([]domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Conversation
	for id, members := range f.roles {
		if _, ok := members[userID]; ok {
			out = append(out, *f.convs[id])
		}
	}
	return out, nil
}

func (f *fakeConvs) ListParticipants(_ context.Context, convID string) ([]domain.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Participant
	for uid, role := range f.roles[convID] {
		out = append(out, domain.Participant{ConversationID: convID, UserID: uid, Role: role})
	}
	return out, nil
}

func (f *fakeConvs) AddParticipant(_ context.Context, convID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[convID][userID]; !ok {
		f.roles[convID][userID] = domain.RoleMember
	}
	return nil
}

func (f *fakeConvs) RemoveParticipant(_ context.Context, convID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[convID][userID]; !ok {
		return domain.ErrNotParticipant
	}
	delete(f.roles[convID], userID)
	return nil
}

type fakeMessages struct {
	mu   sync.Mutex
	byID map[string]*domain.Message
	list []*domain.Message
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{byID: map[string]*domain.Message{}}
}

func (f *fakeMessages) Create(_ context.Context, in domain.NewMessage) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		ReplyToID:      in.ReplyToID,
		CreatedAt:      time.Now(),
	}
	f.byID[m.ID] = m
	f.list = append(f.list, m)
	return m, nil
}

func (f *fakeMessages) FindByID(_ context.Context, id string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok || m.DeletedAt != nil {
		return nil, domain.ErrMessageNotFound
	}
	return m, nil
}

func (f *fakeMessages) History(_ context.Context, convID string, _ domain.HistoryQuery) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Message
	for i := len(f.list) - 1; i >= 0; i-- {
		if m := f.list[i]; m.ConversationID == convID && m.DeletedAt == nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMessages) Update(_ context.Context, id, content string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok || m.DeletedAt != nil {
		return nil, domain.ErrMessageNotFound
	}
	m.Content = content
	return m, nil
}

func (f *fakeMessages) SoftDelete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok || m.DeletedAt != nil {
		return domain.ErrMessageNotFound
	}
	now := time.Now()
	m.DeletedAt = &now
	return nil
}

type fakeUsers struct {
	byID map[string]*domain.User
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id string, upd domain.ProfileUpdate) (*domain.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if upd.DisplayName != nil {
		u.DisplayName = upd.DisplayName
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = upd.AvatarURL
	}
	return u, nil
}
