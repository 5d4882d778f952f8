package realtime

import (
	"sort"
	"sync"
	"time"
)

// Session is the server side of one authenticated connection.
type Session struct {
	ConnID    string
	UserID    string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time

	mu     sync.Mutex
	joined map[string]struct{}
	closed bool
}

func newSession(connID, userID, email string, issuedAt, expiresAt time.Time) *Session {
	return &Session{
		ConnID:    connID,
		UserID:    userID,
		Email:     email,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		joined:    make(map[string]struct{}),
	}
}

// Joined returns the conversation ids the session is subscribed to, sorted.
func (s *Session) Joined() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.joined))
	for id := range s.joined {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Session) IsJoined(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.joined[conversationID]
	return ok
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}
