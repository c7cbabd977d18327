// Package hub implements the realtime collaboration hub: a connection
// registry, page-scoped rooms, presence tracking, and message fan-out over
// websockets.
//
// Each connection walks a small state machine: connected (anonymous) →
// authenticated (identity stored) → in a room (one page at a time; joining
// another page leaves the previous room first) → disconnected (terminal).
// Actions that require a state the connection is not in never terminate it:
// the hub replies with an error frame and leaves the connection open.
//
// The hub owns no entity data, only ephemeral connection and room state. It
// is constructed at server start and passed explicitly to whatever needs to
// trigger a broadcast; there is no package-level instance.
//
// Both registries are guarded by one mutex, which serializes dispatch the
// way a single-threaded event loop would. Delivery is fire-and-forget:
// frames go to a per-client buffered channel, and a client that cannot
// drain its buffer loses frames rather than blocking the room.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Hub tracks connections, room membership, and presence, and fans messages
// out to rooms.
type Hub struct {
	log zerolog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// New creates an empty hub.
func New(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// register adds a freshly upgraded connection in the anonymous state.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// Authenticate stores the identity on the connection. Idempotent; does not
// join any room.
func (h *Hub) Authenticate(c *Client, userID, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.userID = userID
	c.name = name
	h.log.Info().Str("user", name).Str("userId", userID).Msg("user authenticated")
}

// JoinRoom moves the connection into the room for pageID, leaving any
// current room first. Pre-existing members are notified with user_joined and
// the updated occupant count; the joiner alone receives page_users listing
// the occupants that were already present.
func (h *Hub) JoinRoom(c *Client, pageID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.userID == "" {
		c.trySend(Event{Type: EventError, Message: "Authentication required"})
		return
	}
	if c.pageID != "" {
		h.leaveRoomLocked(c, c.pageID)
	}

	room := h.rooms[pageID]
	if room == nil {
		room = make(map[*Client]struct{})
		h.rooms[pageID] = room
	}

	existing := make([]UserInfo, 0, len(room))
	for member := range room {
		existing = append(existing, UserInfo{ID: member.userID, Name: member.name})
	}

	room[c] = struct{}{}
	c.pageID = pageID

	joined := Event{
		Type:        EventUserJoined,
		PageID:      pageID,
		User:        &UserInfo{ID: c.userID, Name: c.name},
		UsersInPage: len(room),
		Timestamp:   nowMillis(),
	}
	for member := range room {
		if member != c {
			member.trySend(joined)
		}
	}
	c.trySend(Event{Type: EventPageUsers, PageID: pageID, Users: existing})

	h.log.Info().Str("user", c.name).Str("pageId", pageID).Msg("user joined page")
}

// LeaveRoom removes the connection from the room for pageID and notifies the
// remaining members with user_left and the updated count. The room entry is
// deleted once empty.
func (h *Hub) LeaveRoom(c *Client, pageID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(c, pageID)
}

func (h *Hub) leaveRoomLocked(c *Client, pageID string) {
	room := h.rooms[pageID]
	if room == nil {
		return
	}
	if _, member := room[c]; !member {
		return
	}
	delete(room, c)
	if c.pageID == pageID {
		c.pageID = ""
	}
	if len(room) == 0 {
		delete(h.rooms, pageID)
		return
	}

	left := Event{
		Type:        EventUserLeft,
		PageID:      pageID,
		User:        &UserInfo{ID: c.userID, Name: c.name},
		UsersInPage: len(room),
		Timestamp:   nowMillis(),
	}
	for member := range room {
		member.trySend(left)
	}
	h.log.Info().Str("user", c.name).Str("pageId", pageID).Msg("user left page")
}

// RelayOperation stamps a peer-originated block operation with the room,
// sender, and server time, and fans it out to every other connection in the
// sender's room. The payload is opaque to the hub.
func (h *Hub) RelayOperation(c *Client, op json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.userID == "" || c.pageID == "" {
		c.trySend(Event{Type: EventError, Message: "Must join a page first"})
		return
	}

	ev := Event{
		Type:      EventBlockOperation,
		PageID:    c.pageID,
		UserID:    c.userID,
		Timestamp: nowMillis(),
	}
	if len(op) > 0 {
		ev.Data = op
	}
	h.fanOutLocked(c.pageID, c, ev)
}

// RelayCursor fans a cursor position out to every other connection in the
// sender's room, same rule as RelayOperation.
func (h *Hub) RelayCursor(c *Client, blockID string, position *int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.userID == "" || c.pageID == "" {
		c.trySend(Event{Type: EventError, Message: "Must join a page first"})
		return
	}

	data := map[string]any{"userName": c.name}
	if blockID != "" {
		data["blockId"] = blockID
	}
	if position != nil {
		data["position"] = *position
	}
	h.fanOutLocked(c.pageID, c, Event{
		Type:      EventCursorUpdate,
		PageID:    c.pageID,
		Data:      data,
		UserID:    c.userID,
		Timestamp: nowMillis(),
	})
}

// Disconnect is terminal: the connection leaves its room if it is in one,
// is deregistered, and its send channel is closed.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.pageID != "" {
		h.leaveRoomLocked(c, c.pageID)
	}
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.closed = true
	close(c.send)
	if c.name != "" {
		h.log.Info().Str("user", c.name).Msg("user disconnected")
	}
}

// BroadcastFromStore announces a completed repository mutation to every
// connection in the page's room, the originating HTTP caller included if it
// also holds a socket there. The caller is not itself a connection, so
// there is nothing to exclude. userID, when non-empty, stamps the event
// with the mutating user.
func (h *Hub) BroadcastFromStore(pageID string, kind EventType, data any, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.fanOutLocked(pageID, nil, Event{
		Type:      kind,
		PageID:    pageID,
		Data:      data,
		UserID:    userID,
		Timestamp: nowMillis(),
	})
}

// fanOutLocked delivers ev to every room member except sender (nil sender
// excludes nobody). Callers hold h.mu.
func (h *Hub) fanOutLocked(pageID string, sender *Client, ev Event) {
	for member := range h.rooms[pageID] {
		if member != sender {
			member.trySend(ev)
		}
	}
}

// Stats reports connection and room counts for the health endpoint.
func (h *Hub) Stats() (connections, rooms int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients), len(h.rooms)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
