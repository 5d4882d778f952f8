package ws

import (
	"bytes"
	"encoding/json"
)

// TypeAck marks a frame answering a client command.
const TypeAck = "ack"

// Frame is the envelope for every text frame in both directions. Ack is
// a client-chosen correlation id, echoed back on the reply.
type Frame struct {
	Type    string          `json:"type"`
	Ack     json.RawMessage `json:"ack,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (f Frame) wantsAck() bool {
	ack := bytes.TrimSpace(f.Ack)
	return len(ack) > 0 && !bytes.Equal(ack, []byte("null"))
}
