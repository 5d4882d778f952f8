package realtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cwrk-planet/chat-service/internal/domain"
)

var ErrSessionClosed = errors.New("session closed")

type MembershipOracle interface {
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
}

// Conn is the outbound half of a live connection. Send must not block.
type Conn interface {
	ID() string
	Send(ev Event) error
}

// RoomManager keeps two lookup tables: connection id -> Conn and
// conversation id -> set of connection ids. Rooms exist only while they
// have subscribers.
type RoomManager struct {
	members MembershipOracle

	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
	conns map[string]Conn
}

func NewRoomManager(members MembershipOracle) *RoomManager {
	return &RoomManager{
		members: members,
		rooms:   make(map[string]map[string]struct{}),
		conns:   make(map[string]Conn),
	}
}

func (m *RoomManager) Register(c Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conns[c.ID()] = c
}

// Join subscribes the session to a conversation it is a participant of.
// Joining twice is a no-op.
func (m *RoomManager) Join(ctx context.Context, s *Session, conversationID string) error {
	if s.Closed() {
		return ErrSessionClosed
	}

	ok, err := m.members.IsMember(ctx, conversationID, s.UserID)
	if err != nil {
		return fmt.Errorf("membership check: %w", err)
	}
	if !ok {
		return domain.ErrNotParticipant
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.joined[conversationID] = struct{}{}

	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.rooms[conversationID]
	if !ok {
		rs = make(map[string]struct{})
		m.rooms[conversationID] = rs
	}
	rs[s.ConnID] = struct{}{}

	return nil
}

// Leave is a no-op when the session is not in the room.
func (m *RoomManager) Leave(s *Session, conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.joined, conversationID)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(conversationID, s.ConnID)
}

// Disconnect closes the session for further joins and drops it from every
// room. It returns the rooms the session was in.
func (m *RoomManager) Disconnect(s *Session) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true

	left := make([]string, 0, len(s.joined))
	for id := range s.joined {
		left = append(left, id)
	}
	sort.Strings(left)
	s.joined = make(map[string]struct{})

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range left {
		m.removeLocked(id, s.ConnID)
	}
	delete(m.conns, s.ConnID)

	return left
}

func (m *RoomManager) removeLocked(conversationID, connID string) {
	if rs, ok := m.rooms[conversationID]; ok {
		delete(rs, connID)
		if len(rs) == 0 {
			delete(m.rooms, conversationID)
		}
	}
}

// Deliver hands ev to every local subscriber of ev.Room except ev.Exclude.
func (m *RoomManager) Deliver(ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for id := range m.rooms[ev.Room] {
		if id == ev.Exclude {
			continue
		}
		if c, ok := m.conns[id]; ok {
			_ = c.Send(ev) // best-effort
		}
	}
}

// Subscribers lists the connection ids in a room, sorted.
func (m *RoomManager) Subscribers(conversationID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.rooms[conversationID]))
	for id := range m.rooms[conversationID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *RoomManager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.rooms)
}

func (m *RoomManager) ConnCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.conns)
}
