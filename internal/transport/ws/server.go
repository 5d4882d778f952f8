package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/chat-service/internal/realtime"

	"github.com/gorilla/websocket"
	"github.com/jaevor/go-nanoid"
)

type Options struct {
	PingInterval time.Duration
	SendBuffer   int
	ReadLimit    int64
}

type Server struct {
	upgrader websocket.Upgrader
	auth     *realtime.Authenticator
	rooms    *realtime.RoomManager
	router   *realtime.Router
	newID    func() string

	pingEvery  time.Duration
	sendBuffer int
	readLimit  int64
}

func NewServer(auth *realtime.Authenticator, rooms *realtime.RoomManager, router *realtime.Router, opts Options) (*Server, error) {
	newID, err := nanoid.Standard(21)
	if err != nil {
		return nil, fmt.Errorf("nanoid: %w", err)
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 15 * time.Second
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}

	return &Server{
		auth:   auth,
		rooms:  rooms,
		router: router,
		newID:  newID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingEvery:  opts.PingInterval,
		sendBuffer: opts.SendBuffer,
		readLimit:  opts.ReadLimit,
	}, nil
}

// HandleWS authenticates before upgrading: GET /ws with
// "Authorization: Bearer <token>" or ?token=<token>.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	connID := s.newID()

	sess, err := s.auth.Authenticate(connID, handshake(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		slog.Warn("ws upgrade failed", "conn", connID, slog.Any("err", err))
		return
	}

	c := newWsConn(conn, connID, s.sendBuffer)
	s.rooms.Register(c)
	slog.Info("ws connected", "conn", connID, "user", sess.UserID)

	go c.writeLoop(s.pingEvery)
	s.readLoop(r, c, sess)

	// the request context may already be cancelled; the typing:stop fan-out must still go out
	s.router.Disconnect(context.WithoutCancel(r.Context()), sess)
	if err := c.Close(); err != nil {
		slog.Debug("ws close failed", "conn", connID, slog.Any("err", err))
	}
	slog.Info("ws disconnected", "conn", connID, "user", sess.UserID)
}

// readLoop runs commands one at a time, so a connection's commands
// complete in the order they were sent.
func (s *Server) readLoop(r *http.Request, c *wsConn, sess *realtime.Session) {
	ctx := r.Context()

	c.conn.SetReadLimit(s.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws read failed", "conn", c.id, slog.Any("err", err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type == "" {
			continue
		}

		reply := s.router.Handle(ctx, sess, realtime.Command{Event: f.Type, Payload: f.Payload})
		if reply == nil || !f.wantsAck() {
			continue
		}
		payload, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		if err := c.sendFrame(Frame{Type: TypeAck, Ack: f.Ack, Payload: payload}); err != nil {
			return
		}
	}
}

func handshake(r *http.Request) map[string]any {
	if h := r.Header.Get("Authorization"); strings.TrimSpace(h) != "" {
		return map[string]any{"token": h}
	}
	if q := r.URL.Query(); q.Has("token") {
		return map[string]any{"token": q.Get("token")}
	}
	return map[string]any{}
}
