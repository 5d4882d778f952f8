package domain

import "time"

type ConversationType string

const (
	ConversationDM    ConversationType = "dm"
	ConversationGroup ConversationType = "group"
)

func (t ConversationType) Valid() bool {
	return t == ConversationDM || t == ConversationGroup
}

type Conversation struct {
	ID        string           `json:"id"`
	Type      ConversationType `json:"type"`
	Name      *string          `json:"name"`
	CreatedBy *string          `json:"createdBy"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

type ParticipantRole string

const (
	RoleAdmin  ParticipantRole = "admin"
	RoleMember ParticipantRole = "member"
)

type Participant struct {
	ConversationID string          `json:"conversationId"`
	UserID         string          `json:"userId"`
	Role           ParticipantRole `json:"role"`
	JoinedAt       time.Time       `json:"joinedAt"`
	LastReadAt     *time.Time      `json:"lastReadAt"`
}
