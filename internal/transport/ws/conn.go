package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cwrk-planet/chat-service/internal/realtime"

	"github.com/gorilla/websocket"
)

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrSlowConsumer = errors.New("send buffer full")
)

const writeWait = 5 * time.Second

// wsConn queues outbound frames for a single writer goroutine, so Send
// never blocks the caller.
type wsConn struct {
	id   string
	conn *websocket.Conn

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, id string, buffer int) *wsConn {
	return &wsConn{
		id:     id,
		conn:   c,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(ev realtime.Event) error {
	data, err := json.Marshal(Frame{Type: ev.Name, Payload: ev.Payload})
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *wsConn) sendFrame(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// enqueue drops the connection when its buffer is full rather than stall
// the room.
func (c *wsConn) enqueue(data []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		_ = c.Close()
		return ErrSlowConsumer
	}
}

func (c *wsConn) writeLoop(pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}
