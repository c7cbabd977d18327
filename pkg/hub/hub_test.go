package hub

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient registers a connection without a socket; tests read queued
// frames straight from the send channel.
func newTestClient(h *Hub) *Client {
	c := &Client{hub: h, send: make(chan Event, sendBuffer)}
	h.register(c)
	return c
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	default:
		t.Fatal("no event queued")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("unexpected event queued: %s", ev.Type)
	default:
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestJoinRequiresAuthentication(t *testing.T) {
	h := New(zerolog.Nop())
	c := newTestClient(h)

	h.JoinRoom(c, "page-1")

	ev := recvEvent(t, c)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "Authentication required", ev.Message)

	_, rooms := h.Stats()
	assert.Zero(t, rooms)
}

func TestJoinNotifiesExistingMembersOnly(t *testing.T) {
	h := New(zerolog.Nop())
	alice := newTestClient(h)
	bob := newTestClient(h)
	h.Authenticate(alice, "u-alice", "Alice")
	h.Authenticate(bob, "u-bob", "Bob")

	h.JoinRoom(alice, "page-1")
	drain(alice)
	h.JoinRoom(bob, "page-1")

	// Alice learns about Bob with the updated occupancy.
	ev := recvEvent(t, alice)
	require.Equal(t, EventUserJoined, ev.Type)
	assert.Equal(t, "page-1", ev.PageID)
	require.NotNil(t, ev.User)
	assert.Equal(t, "u-bob", ev.User.ID)
	assert.Equal(t, 2, ev.UsersInPage)
	assert.NotZero(t, ev.Timestamp)

	// Bob gets only the pre-existing occupants, not himself.
	ev = recvEvent(t, bob)
	require.Equal(t, EventPageUsers, ev.Type)
	require.Len(t, ev.Users, 1)
	assert.Equal(t, "u-alice", ev.Users[0].ID)
	assertNoEvent(t, bob)
}

func TestJoinSwitchesRooms(t *testing.T) {
	h := New(zerolog.Nop())
	mover := newTestClient(h)
	stayer := newTestClient(h)
	h.Authenticate(mover, "u-1", "Mover")
	h.Authenticate(stayer, "u-2", "Stayer")

	h.JoinRoom(stayer, "page-a")
	h.JoinRoom(mover, "page-a")
	drain(mover)
	drain(stayer)

	h.JoinRoom(mover, "page-b")

	// The old room sees a departure before the new room forms.
	ev := recvEvent(t, stayer)
	require.Equal(t, EventUserLeft, ev.Type)
	assert.Equal(t, "page-a", ev.PageID)
	assert.Equal(t, "u-1", ev.User.ID)
	assert.Equal(t, 1, ev.UsersInPage)

	ev = recvEvent(t, mover)
	require.Equal(t, EventPageUsers, ev.Type)
	assert.Equal(t, "page-b", ev.PageID)
	assert.Empty(t, ev.Users)
}

func TestRelayOperationFansOutToPeers(t *testing.T) {
	h := New(zerolog.Nop())
	sender := newTestClient(h)
	peer := newTestClient(h)
	outsider := newTestClient(h)
	h.Authenticate(sender, "u-s", "S")
	h.Authenticate(peer, "u-p", "P")
	h.Authenticate(outsider, "u-o", "O")

	h.JoinRoom(sender, "page-1")
	h.JoinRoom(peer, "page-1")
	h.JoinRoom(outsider, "page-2")
	drain(sender)
	drain(peer)
	drain(outsider)

	op := json.RawMessage(`{"op":"insert","blockId":"b1"}`)
	h.RelayOperation(sender, op)

	ev := recvEvent(t, peer)
	require.Equal(t, EventBlockOperation, ev.Type)
	assert.Equal(t, "page-1", ev.PageID)
	assert.Equal(t, "u-s", ev.UserID)
	assert.JSONEq(t, string(op), string(ev.Data.(json.RawMessage)))
	assert.NotZero(t, ev.Timestamp)

	// No echo to the sender, nothing across rooms.
	assertNoEvent(t, sender)
	assertNoEvent(t, outsider)
}

func TestRelayRequiresRoom(t *testing.T) {
	h := New(zerolog.Nop())
	c := newTestClient(h)
	h.Authenticate(c, "u-1", "One")

	h.RelayOperation(c, nil)
	ev := recvEvent(t, c)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "Must join a page first", ev.Message)

	h.RelayCursor(c, "b1", nil)
	ev = recvEvent(t, c)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "Must join a page first", ev.Message)
}

func TestRelayCursorCarriesPosition(t *testing.T) {
	h := New(zerolog.Nop())
	sender := newTestClient(h)
	peer := newTestClient(h)
	h.Authenticate(sender, "u-s", "Sender")
	h.Authenticate(peer, "u-p", "Peer")
	h.JoinRoom(sender, "page-1")
	h.JoinRoom(peer, "page-1")
	drain(sender)
	drain(peer)

	pos := 12
	h.RelayCursor(sender, "block-9", &pos)

	ev := recvEvent(t, peer)
	require.Equal(t, EventCursorUpdate, ev.Type)
	data, ok := ev.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "block-9", data["blockId"])
	assert.Equal(t, 12, data["position"])
	assert.Equal(t, "Sender", data["userName"])
	assertNoEvent(t, sender)
}

func TestDisconnectCleansUp(t *testing.T) {
	h := New(zerolog.Nop())
	leaving := newTestClient(h)
	remaining := newTestClient(h)
	h.Authenticate(leaving, "u-l", "Leaving")
	h.Authenticate(remaining, "u-r", "Remaining")
	h.JoinRoom(leaving, "page-1")
	h.JoinRoom(remaining, "page-1")
	drain(leaving)
	drain(remaining)

	h.Disconnect(leaving)

	ev := recvEvent(t, remaining)
	require.Equal(t, EventUserLeft, ev.Type)
	assert.Equal(t, "u-l", ev.User.ID)
	assert.Equal(t, 1, ev.UsersInPage)

	// Send channel is closed and the registries shrink. A second
	// disconnect is a no-op.
	_, open := <-leaving.send
	assert.False(t, open)
	h.Disconnect(leaving)

	connections, rooms := h.Stats()
	assert.Equal(t, 1, connections)
	assert.Equal(t, 1, rooms)

	h.Disconnect(remaining)
	connections, rooms = h.Stats()
	assert.Zero(t, connections)
	assert.Zero(t, rooms)
}

func TestBroadcastFromStoreReachesEveryMember(t *testing.T) {
	h := New(zerolog.Nop())
	editor := newTestClient(h)
	viewer := newTestClient(h)
	h.Authenticate(editor, "u-e", "Editor")
	h.Authenticate(viewer, "u-v", "Viewer")
	h.JoinRoom(editor, "page-1")
	h.JoinRoom(viewer, "page-1")
	drain(editor)
	drain(viewer)

	h.BroadcastFromStore("page-1", EventBlockCreated, map[string]string{"id": "b1"}, "u-e")

	// Store-originated changes go to everyone in the room, the mutating
	// user's own connection included.
	for _, c := range []*Client{editor, viewer} {
		ev := recvEvent(t, c)
		require.Equal(t, EventBlockCreated, ev.Type)
		assert.Equal(t, "page-1", ev.PageID)
		assert.Equal(t, "u-e", ev.UserID)
	}

	// An empty room swallows the broadcast.
	h.BroadcastFromStore("page-9", EventBlockDeleted, nil, "u-e")
	assertNoEvent(t, editor)
}

func TestSlowConsumerDropsFramesInsteadOfBlocking(t *testing.T) {
	h := New(zerolog.Nop())
	fast := newTestClient(h)
	slow := newTestClient(h)
	h.Authenticate(fast, "u-f", "Fast")
	h.Authenticate(slow, "u-s", "Slow")
	h.JoinRoom(fast, "page-1")
	h.JoinRoom(slow, "page-1")
	drain(fast)
	drain(slow)

	for i := 0; i < sendBuffer+5; i++ {
		h.BroadcastFromStore("page-1", EventBlockUpdated, nil, "u-f")
	}

	// The overflow is dropped, not queued, and the fast reader drained
	// nothing so it holds a full buffer too.
	assert.Len(t, slow.send, sendBuffer)
	assert.Len(t, fast.send, sendBuffer)
}
