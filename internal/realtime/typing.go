package realtime

import (
	"context"
	"sort"
	"sync"
	"time"
)

const DefaultTypingTTL = 5 * time.Second

// TypingTracker holds who is typing where, each entry with a deadline.
// An entry past its deadline is treated as absent everywhere, whether or
// not the sweeper has removed it yet.
type TypingTracker struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	convs map[string]map[string]time.Time // conversation -> user -> deadline
}

func NewTypingTracker(ttl time.Duration, now func() time.Time) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TypingTracker{
		ttl:   ttl,
		now:   now,
		convs: make(map[string]map[string]time.Time),
	}
}

// Start records or refreshes an entry. It reports true only when the user
// was not already typing.
func (t *TypingTracker) Start(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	users, ok := t.convs[conversationID]
	if !ok {
		users = make(map[string]time.Time)
		t.convs[conversationID] = users
	}
	deadline, exists := users[userID]
	users[userID] = now.Add(t.ttl)

	return !exists || !now.Before(deadline)
}

// Stop removes a live entry and reports whether there was one.
func (t *TypingTracker) Stop(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.convs[conversationID]
	if !ok {
		return false
	}
	deadline, exists := users[userID]
	if !exists {
		return false
	}
	t.deleteLocked(conversationID, userID)

	return t.now().Before(deadline)
}

// StopAll removes every entry of a user and returns the conversations where
// the entry was still live, sorted.
func (t *TypingTracker) StopAll(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var stopped []string
	for conv, users := range t.convs {
		deadline, ok := users[userID]
		if !ok {
			continue
		}
		if now.Before(deadline) {
			stopped = append(stopped, conv)
		}
		t.deleteLocked(conv, userID)
	}
	sort.Strings(stopped)
	return stopped
}

func (t *TypingTracker) IsTyping(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline, ok := t.convs[conversationID][userID]
	return ok && t.now().Before(deadline)
}

// Typing returns the users currently typing in a conversation, sorted.
func (t *TypingTracker) Typing(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var out []string
	for user, deadline := range t.convs[conversationID] {
		if now.Before(deadline) {
			out = append(out, user)
		}
	}
	sort.Strings(out)
	return out
}

// Sweep drops expired entries and returns how many it removed.
func (t *TypingTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	n := 0
	for conv, users := range t.convs {
		for user, deadline := range users {
			if !now.Before(deadline) {
				t.deleteLocked(conv, user)
				n++
			}
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (t *TypingTracker) Run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			t.Sweep()
		}
	}
}

func (t *TypingTracker) deleteLocked(conversationID, userID string) {
	users := t.convs[conversationID]
	delete(users, userID)
	if len(users) == 0 {
		delete(t.convs, conversationID)
	}
}
