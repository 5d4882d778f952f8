package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/realtime"
	"github.com/cwrk-planet/chat-service/internal/security"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeOracle struct {
	mu      sync.Mutex
	members map[string]map[string]bool
	err     error
	calls   int
}

func newOracle() *fakeOracle {
	return &fakeOracle{members: map[string]map[string]bool{}}
}

func (o *fakeOracle) add(conv string, users ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.members[conv] == nil {
		o.members[conv] = map[string]bool{}
	}
	for _, u := range users {
		o.members[conv][u] = true
	}
}

func (o *fakeOracle) remove(conv, user string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.members[conv], user)
}

func (o *fakeOracle) IsMember(_ context.Context, conv, user string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return false, o.err
	}
	return o.members[conv][user], nil
}

type fakeSink struct {
	mu    sync.Mutex
	saved []domain.Message
	err   error
	panic bool
}

func (s *fakeSink) Save(_ context.Context, in domain.NewMessage) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panic {
		panic("storage exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	m := domain.Message{
		ID:             fmt.Sprintf("m%d", len(s.saved)+1),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		ReplyToID:      in.ReplyToID,
		CreatedAt:      time.Now(),
	}
	s.saved = append(s.saved, m)
	return &m, nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type recConn struct {
	id     string
	mu     sync.Mutex
	events []realtime.Event
}

func (c *recConn) ID() string { return c.id }

func (c *recConn) Send(ev realtime.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *recConn) named(name string) []realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []realtime.Event
	for _, ev := range c.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *recConn) all() []realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Event(nil), c.events...)
}

var errStorage = errors.New("connection refused")

func newJWT(clock *fakeClock) *security.JWTManager {
	var now func() time.Time
	if clock != nil {
		now = clock.Now
	}
	return security.NewJWTManager(security.Config{
		AccessSecret:  "access-secret-for-tests",
		RefreshSecret: "refresh-secret-for-tests",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}, now)
}

// node is one server process: its own room manager, typing tracker and
// router, sharing a bus with other nodes.
type node struct {
	auth   *realtime.Authenticator
	rooms  *realtime.RoomManager
	typing *realtime.TypingTracker
	router *realtime.Router
	jwt    *security.JWTManager
	t      *testing.T
}

func newNode(t *testing.T, oracle realtime.MembershipOracle, sink realtime.MessageSink, bus realtime.Publisher, clock *fakeClock) *node {
	t.Helper()
	var now func() time.Time
	if clock != nil {
		now = clock.Now
	}
	jwt := newJWT(nil)
	rooms := realtime.NewRoomManager(oracle)
	typing := realtime.NewTypingTracker(5*time.Second, now)
	return &node{
		auth:   realtime.NewAuthenticator(jwt),
		rooms:  rooms,
		typing: typing,
		router: realtime.NewRouter(rooms, oracle, sink, typing, bus),
		jwt:    jwt,
		t:      t,
	}
}

// connect authenticates userID with a fresh access token and registers the
// connection.
func (n *node) connect(connID, userID string) (*realtime.Session, *recConn) {
	n.t.Helper()
	token, err := n.jwt.IssueAccessToken(userID, userID+"@example.com")
	require.NoError(n.t, err)

	sess, err := n.auth.Authenticate(connID, map[string]any{"token": "Bearer " + token})
	require.NoError(n.t, err)

	c := &recConn{id: connID}
	n.rooms.Register(c)
	return sess, c
}

func (n *node) do(s *realtime.Session, event string, payload any) *realtime.Reply {
	n.t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(n.t, err)
	return n.router.Handle(context.Background(), s, realtime.Command{Event: event, Payload: b})
}

func (n *node) raw(s *realtime.Session, event, payload string) *realtime.Reply {
	return n.router.Handle(context.Background(), s, realtime.Command{Event: event, Payload: json.RawMessage(payload)})
}
