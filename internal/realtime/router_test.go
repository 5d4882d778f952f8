package realtime_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/fanout"
	"github.com/cwrk-planet/chat-service/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type convPayload struct {
	ConversationID string `json:"conversationId"`
}

func singleNode(t *testing.T, oracle *fakeOracle, sink *fakeSink, clock *fakeClock) *node {
	t.Helper()
	bus := fanout.NewMemory()
	n := newNode(t, oracle, sink, bus, clock)
	bus.Attach(n.rooms)
	return n
}

func decodeMessage(t *testing.T, ev realtime.Event) domain.Message {
	t.Helper()
	var m domain.Message
	require.NoError(t, json.Unmarshal(ev.Payload, &m))
	return m
}

func decodeTyping(t *testing.T, ev realtime.Event) realtime.TypingPayload {
	t.Helper()
	var p realtime.TypingPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &p))
	return p
}

func TestRouter_JoinReplies(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "alice")
	n := singleNode(t, oracle, &fakeSink{}, nil)

	alice, _ := n.connect("a1", "alice")
	carol, _ := n.connect("x1", "carol")

	assert.Equal(t, &realtime.Reply{Success: true}, n.do(alice, realtime.EventJoin, "c1"))
	assert.Equal(t, &realtime.Reply{Success: true}, n.do(alice, realtime.EventJoin, convPayload{"c1"}))
	assert.Equal(t, &realtime.Reply{Error: "Not a participant in this conversation"}, n.do(carol, realtime.EventJoin, "c1"))
	assert.Equal(t, &realtime.Reply{Error: "Not a participant in this conversation"}, n.raw(carol, realtime.EventJoin, ``))

	oracle.err = errStorage
	assert.Equal(t, &realtime.Reply{Error: "Failed to join conversation"}, n.do(alice, realtime.EventJoin, "c1"))
}

func TestRouter_LeaveHasNoReply(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "alice")
	n := singleNode(t, oracle, &fakeSink{}, nil)

	alice, _ := n.connect("a1", "alice")
	n.do(alice, realtime.EventJoin, "c1")

	assert.Nil(t, n.do(alice, realtime.EventLeave, "c1"))
	assert.Nil(t, n.do(alice, realtime.EventLeave, "c1"))
	assert.Nil(t, n.raw(alice, realtime.EventLeave, `{}`))
	assert.Empty(t, n.rooms.Subscribers("c1"))
}

// A joins C1 and sends "hi"; B receives message:new from A.
func TestRouter_SendBroadcastsToRoom(t *testing.T) {
	oracle := newOracle()
	oracle.add("C1", "A", "B")
	sink := &fakeSink{}
	n := singleNode(t, oracle, sink, nil)

	a, aConn := n.connect("a1", "A")
	b, bConn := n.connect("b1", "B")
	require.True(t, n.do(a, realtime.EventJoin, "C1").Success)
	require.True(t, n.do(b, realtime.EventJoin, "C1").Success)

	reply := n.do(a, realtime.EventSend, map[string]any{"conversationId": "C1", "content": "hi"})
	require.True(t, reply.Success)
	require.NotNil(t, reply.Message)
	assert.Equal(t, "A", reply.Message.SenderID)

	got := bConn.named(realtime.EventMessageNew)
	require.Len(t, got, 1)
	msg := decodeMessage(t, got[0])
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, "A", msg.SenderID)
	assert.Equal(t, reply.Message.ID, msg.ID)

	// the sender's own connection gets the broadcast too
	assert.Len(t, aConn.named(realtime.EventMessageNew), 1)
}

func TestRouter_SendIgnoresClientSenderID(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "alice", "bob")
	sink := &fakeSink{}
	n := singleNode(t, oracle, sink, nil)

	alice, _ := n.connect("a1", "alice")
	reply := n.raw(alice, realtime.EventSend, `{"conversationId":"c1","content":"x","senderId":"bob"}`)
	require.True(t, reply.Success)
	assert.Equal(t, "alice", reply.Message.SenderID)
	assert.Equal(t, "alice", sink.saved[0].SenderID)
}

func TestRouter_SendDoesNotRequireJoin(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "alice")
	sink := &fakeSink{}
	n := singleNode(t, oracle, sink, nil)

	alice, _ := n.connect("a1", "alice")
	reply := n.do(alice, realtime.EventSend, map[string]any{"conversationId": "c1", "content": ""})
	require.True(t, reply.Success)
	assert.Equal(t, "", reply.Message.Content)
	assert.Equal(t, 1, sink.count())
}

func TestRouter_PaddedConversationID(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "alice", "bob")
	sink := &fakeSink{}
	n := singleNode(t, oracle, sink, nil)

	alice, _ := n.connect("a1", "alice")
	bob, bobConn := n.connect("b1", "bob")
	require.True(t, n.do(bob, realtime.EventJoin, " c1 ").Success)

	reply := n.do(alice, realtime.EventSend, map[string]any{"conversationId": " c1 ", "content": "hi"})
	require.True(t, reply.Success, reply.Error)
	assert.Equal(t, "c1", sink.saved[0].ConversationID)
	assert.Len(t, bobConn.named(realtime.EventMessageNew), 1)
}

func TestRouter_SendValidation(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "alice")
	sink := &fakeSink{}
	n := singleNode(t, oracle, sink, nil)
	alice, _ := n.connect("a1", "alice")

	for _, payload := range []string{
		`{"content":"hi"}`,
		`{"conversationId":"","content":"hi"}`,
		`{"conversationId":"c1"}`,
		`{"conversationId":"c1","content":null}`,
		`{"conversationId":"c1","content":5}`,
		`"c1"`,
		`not json`,
		``,
	} {
		reply := n.raw(alice, realtime.EventSend, payload)
		assert.Equal(t, &realtime.Reply{Error: "Missing required fields"}, reply, "payload %s", payload)
	}
	assert.Equal(t, 0, sink.count())
}

// C is not a participant of C1: join and send are both rejected and nothing
// is stored.
func TestRouter_NonParticipantRejected(t *testing.T) {
	oracle := newOracle()
	oracle.add("C1", "A", "B")
	sink := &fakeSink{}
	n := singleNode(t, oracle, sink, nil)

	c, _ := n.connect("c1", "C")
	_, bConn := n.connect("b1", "B")

	assert.NotEmpty(t, n.do(c, realtime.EventJoin, "C1").Error)
	reply := n.do(c, realtime.EventSend, map[string]any{"conversationId": "C1", "content": "intrusion"})
	assert.Equal(t, "Not a participant in this conversation", reply.Error)
	assert.Equal(t, 0, sink.count())
	assert.Empty(t, bConn.all())
}

func TestRouter_SendRechecksMembership(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "alice", "bob")
	sink := &fakeSink{}
	n := singleNode(t, oracle, sink, nil)

	alice, _ := n.connect("a1", "alice")
	bob, bobConn := n.connect("b1", "bob")
	require.True(t, n.do(alice, realtime.EventJoin, "c1").Success)
	require.True(t, n.do(bob, realtime.EventJoin, "c1").Success)

	oracle.remove("c1", "bob")

	reply := n.do(bob, realtime.EventSend, map[string]any{"conversationId": "c1", "content": "still here?"})
	assert.Equal(t, "Not a participant in this conversation", reply.Error)
	assert.Equal(t, 0, sink.count())

	// a removed member keeps receiving until they leave or disconnect
	require.True(t, n.do(alice, realtime.EventSend, map[string]any{"conversationId": "c1", "content": "hi"}).Success)
	assert.Len(t, bobConn.named(realtime.EventMessageNew), 1)
}

func TestRouter_PersistenceFailureIsGeneric(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "alice")
	sink := &fakeSink{err: errStorage}
	n := singleNode(t, oracle, sink, nil)
	alice, aliceConn := n.connect("a1", "alice")
	n.do(alice, realtime.EventJoin, "c1")

	reply := n.do(alice, realtime.EventSend, map[string]any{"conversationId": "c1", "content": "hi"})
	assert.Equal(t, &realtime.Reply{Error: "Failed to send message"}, reply)
	assert.Empty(t, aliceConn.named(realtime.EventMessageNew))

	oracle.err = errStorage
	reply = n.do(alice, realtime.EventSend, map[string]any{"conversationId": "c1", "content": "hi"})
	assert.Equal(t, &realtime.Reply{Error: "Failed to send message"}, reply)
}

func TestRouter_PanicBecomesReply(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "alice")
	n := singleNode(t, oracle, &fakeSink{panic: true}, nil)
	alice, _ := n.connect("a1", "alice")

	var reply *realtime.Reply
	require.NotPanics(t, func() {
		reply = n.do(alice, realtime.EventSend, map[string]any{"conversationId": "c1", "content": "hi"})
	})
	assert.Equal(t, &realtime.Reply{Error: "Failed to send message"}, reply)
}

func TestRouter_UnknownEventIgnored(t *testing.T) {
	n := singleNode(t, newOracle(), &fakeSink{}, nil)
	alice, _ := n.connect("a1", "alice")
	assert.Nil(t, n.do(alice, "presence:ping", nil))
}

// Typing start then stop in the same tick reaches the peer once each.
func TestRouter_TypingEdgeTriggered(t *testing.T) {
	oracle := newOracle()
	oracle.add("C1", "A", "B")
	clock := newClock()
	n := singleNode(t, oracle, &fakeSink{}, clock)

	a, aConn := n.connect("a1", "A")
	b, bConn := n.connect("b1", "B")
	n.do(a, realtime.EventJoin, "C1")
	n.do(b, realtime.EventJoin, "C1")

	assert.Nil(t, n.do(a, realtime.EventTypingStart, convPayload{"C1"}))
	assert.Nil(t, n.do(a, realtime.EventTypingStart, convPayload{"C1"}))
	assert.Nil(t, n.do(a, realtime.EventTypingStop, convPayload{"C1"}))
	assert.Nil(t, n.do(a, realtime.EventTypingStop, convPayload{"C1"}))

	starts := bConn.named(realtime.EventTypingStart)
	stops := bConn.named(realtime.EventTypingStop)
	require.Len(t, starts, 1)
	require.Len(t, stops, 1)
	assert.Equal(t, realtime.TypingPayload{UserID: "A", ConversationID: "C1"}, decodeTyping(t, starts[0]))
	assert.Equal(t, realtime.TypingPayload{UserID: "A", ConversationID: "C1"}, decodeTyping(t, stops[0]))

	// the originator never sees its own typing events
	assert.Empty(t, aConn.all())
}

func TestRouter_TypingStopWithoutStartIsSilent(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "alice", "bob")
	n := singleNode(t, oracle, &fakeSink{}, newClock())

	alice, _ := n.connect("a1", "alice")
	bob, bobConn := n.connect("b1", "bob")
	n.do(alice, realtime.EventJoin, "c1")
	n.do(bob, realtime.EventJoin, "c1")

	n.do(alice, realtime.EventTypingStop, convPayload{"c1"})
	assert.Empty(t, bobConn.all())
}

func TestRouter_TypingExpiryIsSilentAndResets(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "alice", "bob")
	clock := newClock()
	n := singleNode(t, oracle, &fakeSink{}, clock)

	alice, _ := n.connect("a1", "alice")
	bob, bobConn := n.connect("b1", "bob")
	n.do(alice, realtime.EventJoin, "c1")
	n.do(bob, realtime.EventJoin, "c1")

	n.do(alice, realtime.EventTypingStart, convPayload{"c1"})
	clock.Advance(10 * time.Second)
	n.typing.Sweep()
	assert.Empty(t, bobConn.named(realtime.EventTypingStop))

	n.do(alice, realtime.EventTypingStop, convPayload{"c1"})
	assert.Empty(t, bobConn.named(realtime.EventTypingStop))

	n.do(alice, realtime.EventTypingStart, convPayload{"c1"})
	assert.Len(t, bobConn.named(realtime.EventTypingStart), 2)
}

func TestRouter_TypingFromNonMemberDropped(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "bob")
	n := singleNode(t, oracle, &fakeSink{}, newClock())

	carol, _ := n.connect("x1", "carol")
	bob, bobConn := n.connect("b1", "bob")
	n.do(bob, realtime.EventJoin, "c1")

	assert.Nil(t, n.do(carol, realtime.EventTypingStart, convPayload{"c1"}))
	assert.Empty(t, bobConn.all())
	assert.False(t, n.typing.IsTyping("c1", "carol"))

	oracle.err = errStorage
	assert.Nil(t, n.do(bob, realtime.EventTypingStart, convPayload{"c1"}))
	assert.False(t, n.typing.IsTyping("c1", "bob"))
}

// Disconnect after joining N rooms with M typing entries: gone from all N,
// each of the M stops observed by the remaining members.
func TestRouter_DisconnectCascades(t *testing.T) {
	oracle := newOracle()
	oracle.add("c1", "alice", "bob")
	oracle.add("c2", "alice", "bob")
	oracle.add("c3", "alice")
	n := singleNode(t, oracle, &fakeSink{}, newClock())

	alice, _ := n.connect("a1", "alice")
	bob, bobConn := n.connect("b1", "bob")
	for _, c := range []string{"c1", "c2", "c3"} {
		require.True(t, n.do(alice, realtime.EventJoin, c).Success)
	}
	n.do(bob, realtime.EventJoin, "c1")
	n.do(bob, realtime.EventJoin, "c2")

	n.do(alice, realtime.EventTypingStart, convPayload{"c1"})
	n.do(alice, realtime.EventTypingStart, convPayload{"c2"})

	n.router.Disconnect(t.Context(), alice)

	assert.Equal(t, []string{"b1"}, n.rooms.Subscribers("c1"))
	assert.Equal(t, []string{"b1"}, n.rooms.Subscribers("c2"))
	assert.Empty(t, n.rooms.Subscribers("c3"))
	assert.False(t, n.typing.IsTyping("c1", "alice"))

	stops := bobConn.named(realtime.EventTypingStop)
	require.Len(t, stops, 2)
	assert.Equal(t, "c1", decodeTyping(t, stops[0]).ConversationID)
	assert.Equal(t, "c2", decodeTyping(t, stops[1]).ConversationID)

	assert.Equal(t, "Failed to join conversation", n.do(alice, realtime.EventJoin, "c1").Error)
}

// Two processes share one bus: a message sent on node 1 reaches a
// subscriber on node 2.
func TestRouter_CrossProcessDelivery(t *testing.T) {
	oracle := newOracle()
	oracle.add("C1", "A", "B")
	sink := &fakeSink{}
	bus := fanout.NewMemory()

	n1 := newNode(t, oracle, sink, bus, newClock())
	n2 := newNode(t, oracle, sink, bus, newClock())
	bus.Attach(n1.rooms)
	bus.Attach(n2.rooms)

	a, _ := n1.connect("a1", "A")
	b, bConn := n2.connect("b1", "B")
	require.True(t, n1.do(a, realtime.EventJoin, "C1").Success)
	require.True(t, n2.do(b, realtime.EventJoin, "C1").Success)

	for _, text := range []string{"one", "two", "three"} {
		require.True(t, n1.do(a, realtime.EventSend, map[string]any{"conversationId": "C1", "content": text}).Success)
	}
	n1.do(a, realtime.EventTypingStart, convPayload{"C1"})

	got := bConn.named(realtime.EventMessageNew)
	require.Len(t, got, 3)
	for i, text := range []string{"one", "two", "three"} {
		assert.Equal(t, text, decodeMessage(t, got[i]).Content)
	}
	assert.Len(t, bConn.named(realtime.EventTypingStart), 1)
	assert.Equal(t, []string{"a1"}, n1.rooms.Subscribers("C1"))
}
