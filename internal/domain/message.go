package domain

import "time"

// Message is the stored record broadcast as message:new.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Content        string     `json:"content"`
	ReplyToID      *string    `json:"replyToId"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// NewMessage is what a sender submits; SenderID always comes from the
// authenticated identity.
type NewMessage struct {
	ConversationID string
	SenderID       string
	Content        string
	ReplyToID      *string
}

type HistoryQuery struct {
	Limit  int
	Before *time.Time
}
