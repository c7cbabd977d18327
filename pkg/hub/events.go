package hub

import "encoding/json"

// EventType names a frame on the realtime protocol.
type EventType string

// Client → hub.
const (
	EventAuthenticate   EventType = "authenticate"
	EventJoinPage       EventType = "join_page"
	EventLeavePage      EventType = "leave_page"
	EventBlockOperation EventType = "block_operation"
	EventCursorUpdate   EventType = "cursor_update"
)

// Hub → client.
const (
	EventUserJoined   EventType = "user_joined"
	EventUserLeft     EventType = "user_left"
	EventPageUsers    EventType = "page_users"
	EventPageUpdated  EventType = "page_updated"
	EventBlockCreated EventType = "block_created"
	EventBlockUpdated EventType = "block_updated"
	EventBlockDeleted EventType = "block_deleted"
	EventError        EventType = "error"
)

// Frame is an inbound client message. One envelope covers every
// client-to-hub event; fields beyond Type are read per event.
type Frame struct {
	Type EventType `json:"type"`

	// authenticate
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name,omitempty"`

	// join_page / leave_page / cursor_update
	PageID string `json:"pageId,omitempty"`

	// cursor_update
	BlockID  string `json:"blockId,omitempty"`
	Position *int   `json:"position,omitempty"`

	// block_operation: opaque operation payload relayed untouched.
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is an outbound hub message. Every hub-to-room broadcast except
// page_users and error carries type, pageId, data, the originating userId
// when known, and a millisecond timestamp.
type Event struct {
	Type      EventType `json:"type"`
	PageID    string    `json:"pageId,omitempty"`
	Data      any       `json:"data,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`

	// user_joined / user_left / page_users
	User        *UserInfo  `json:"user,omitempty"`
	UsersInPage int        `json:"usersInPage,omitempty"`
	Users       []UserInfo `json:"users,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// UserInfo is the presence view of a connected, identified user.
type UserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
