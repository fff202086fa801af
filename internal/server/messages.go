package server

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Event names accepted from and emitted to websocket clients.
const (
	ConnectionEvent = "connection"
	JoinRoomEvent   = "join_room"
	LeaveRoomEvent  = "leave_room"
	MessageEvent    = "message"
	TypingEvent     = "typing"

	NewMessageEvent = "new_message"
	UserJoinedEvent = "user_joined"
	UserLeftEvent   = "user_left"
	UserTypingEvent = "user_typing"
	ErrorEvent      = "error"
)

// ClientEvent is the envelope for every frame received from a client.
// Data is decoded lazily once the event name is known.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ServerEvent is the envelope for every frame sent to a client.
type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type JoinRoomRequest struct {
	RoomId uuid.UUID `json:"chatRoomId"`
}

type MessageRequest struct {
	RoomId  uuid.UUID `json:"chatRoomId"`
	Content string    `json:"content"`
}

type TypingRequest struct {
	RoomId   uuid.UUID `json:"chatRoomId"`
	IsTyping bool      `json:"isTyping"`
}

type TypingNotice struct {
	RoomId   uuid.UUID `json:"chatRoomId"`
	UserId   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	IsTyping bool      `json:"isTyping"`
}

type RoomNotice struct {
	RoomId   uuid.UUID `json:"chatRoomId"`
	UserId   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

type ConnectionAck struct {
	UserId  uuid.UUID `json:"userId"`
	Message string    `json:"message"`
}

// ErrorPayload reports a failed client event. Event names the request
// that failed so clients can correlate without request ids.
type ErrorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}
