package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/chatstack/go-chathub/internal/chat"
	"github.com/chatstack/go-chathub/internal/database"
	"github.com/chatstack/go-chathub/internal/rpc"
)

// ChatAPI serves the chat.* message patterns over the RPC listener so
// sibling services reach room and message operations without going
// through the websocket surface.
type ChatAPI struct {
	log  *log.Logger
	chat *chat.Coordinator
}

func NewChatAPI(logger *log.Logger, coordinator *chat.Coordinator) *ChatAPI {
	return &ChatAPI{log: logger, chat: coordinator}
}

func (a *ChatAPI) Register(srv *rpc.Server) {
	srv.Handle("chat.create_room", a.createRoom)
	srv.Handle("chat.join_room", a.joinRoom)
	srv.Handle("chat.leave_room", a.leaveRoom)
	srv.Handle("chat.send_message", a.sendMessage)
	srv.Handle("chat.edit_message", a.editMessage)
	srv.Handle("chat.delete_message", a.deleteMessage)
	srv.Handle("chat.get_messages", a.getMessages)
	srv.Handle("chat.get_rooms", a.getRooms)
	srv.Handle("health.check", a.healthCheck)
}

// rpcResult is the payload envelope shared by every chat.* pattern.
// Domain failures are reported inside it with success=false; only
// malformed requests surface as transport-level errors.
type rpcResult struct {
	Success bool               `json:"success"`
	Message string             `json:"message,omitempty"`
	Data    any                `json:"data,omitempty"`
	Meta    *database.PageMeta `json:"meta,omitempty"`
}

func ok(data any) *rpcResult {
	return &rpcResult{Success: true, Data: data}
}

func okPage(data any, meta database.PageMeta) *rpcResult {
	return &rpcResult{Success: true, Data: data, Meta: &meta}
}

func failed(err error) (*rpcResult, error) {
	switch {
	case errors.Is(err, chat.ErrNotFound),
		errors.Is(err, chat.ErrConflict),
		errors.Is(err, chat.ErrForbidden),
		errors.Is(err, chat.ErrUnauthorized):
		return &rpcResult{Success: false, Message: err.Error()}, nil
	default:
		return nil, err
	}
}

var errMalformed = errors.New("malformed request data")

type createRoomRequest struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPrivate   bool      `json:"isPrivate"`
	MaxMembers  int       `json:"maxMembers"`
	CreatedById uuid.UUID `json:"createdBy"`
}

func (a *ChatAPI) createRoom(ctx context.Context, data json.RawMessage) (any, error) {
	var req createRoomRequest
	if err := json.Unmarshal(data, &req); err != nil || req.Name == "" || req.CreatedById == uuid.Nil {
		return nil, errMalformed
	}

	room, err := a.chat.CreateRoom(ctx, database.CreateRoomParams{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		MaxMembers:  req.MaxMembers,
		CreatedById: req.CreatedById,
	})
	if err != nil {
		return failed(err)
	}

	return ok(room), nil
}

type membershipRequest struct {
	UserId uuid.UUID `json:"userId"`
	RoomId uuid.UUID `json:"roomId"`
}

func (a *ChatAPI) joinRoom(ctx context.Context, data json.RawMessage) (any, error) {
	var req membershipRequest
	if err := json.Unmarshal(data, &req); err != nil || req.UserId == uuid.Nil || req.RoomId == uuid.Nil {
		return nil, errMalformed
	}

	if err := a.chat.JoinRoom(ctx, req.UserId, req.RoomId); err != nil {
		return failed(err)
	}

	return ok(nil), nil
}

func (a *ChatAPI) leaveRoom(ctx context.Context, data json.RawMessage) (any, error) {
	var req membershipRequest
	if err := json.Unmarshal(data, &req); err != nil || req.UserId == uuid.Nil || req.RoomId == uuid.Nil {
		return nil, errMalformed
	}

	if err := a.chat.LeaveRoom(ctx, req.UserId, req.RoomId); err != nil {
		return failed(err)
	}

	return ok(nil), nil
}

type sendMessageRequest struct {
	UserId  uuid.UUID `json:"userId"`
	RoomId  uuid.UUID `json:"chatRoomId"`
	Content string    `json:"content"`
}

func (a *ChatAPI) sendMessage(ctx context.Context, data json.RawMessage) (any, error) {
	var req sendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil || req.UserId == uuid.Nil || req.RoomId == uuid.Nil || req.Content == "" {
		return nil, errMalformed
	}

	msg, err := a.chat.SendMessage(ctx, req.UserId, req.RoomId, req.Content)
	if err != nil {
		return failed(err)
	}

	return ok(msg), nil
}

type editMessageRequest struct {
	MessageId uuid.UUID `json:"messageId"`
	UserId    uuid.UUID `json:"userId"`
	Content   string    `json:"content"`
}

func (a *ChatAPI) editMessage(ctx context.Context, data json.RawMessage) (any, error) {
	var req editMessageRequest
	if err := json.Unmarshal(data, &req); err != nil || req.MessageId == uuid.Nil || req.UserId == uuid.Nil || req.Content == "" {
		return nil, errMalformed
	}

	msg, err := a.chat.EditMessage(ctx, req.MessageId, req.UserId, req.Content)
	if err != nil {
		return failed(err)
	}

	return ok(msg), nil
}

type deleteMessageRequest struct {
	MessageId uuid.UUID `json:"messageId"`
	UserId    uuid.UUID `json:"userId"`
}

func (a *ChatAPI) deleteMessage(ctx context.Context, data json.RawMessage) (any, error) {
	var req deleteMessageRequest
	if err := json.Unmarshal(data, &req); err != nil || req.MessageId == uuid.Nil || req.UserId == uuid.Nil {
		return nil, errMalformed
	}

	if err := a.chat.DeleteMessage(ctx, req.MessageId, req.UserId); err != nil {
		return failed(err)
	}

	return ok(nil), nil
}

type getMessagesRequest struct {
	RoomId uuid.UUID `json:"chatRoomId"`
	Page   int       `json:"page"`
	Limit  int       `json:"limit"`
}

func (a *ChatAPI) getMessages(ctx context.Context, data json.RawMessage) (any, error) {
	var req getMessagesRequest
	if err := json.Unmarshal(data, &req); err != nil || req.RoomId == uuid.Nil {
		return nil, errMalformed
	}

	msgs, meta, err := a.chat.GetMessages(ctx, req.RoomId, database.Pagination{Page: req.Page, Limit: req.Limit})
	if err != nil {
		return failed(err)
	}

	return okPage(msgs, meta), nil
}

type getRoomsRequest struct {
	UserId uuid.UUID `json:"userId"`
	Page   int       `json:"page"`
	Limit  int       `json:"limit"`
}

func (a *ChatAPI) getRooms(ctx context.Context, data json.RawMessage) (any, error) {
	var req getRoomsRequest
	if err := json.Unmarshal(data, &req); err != nil || req.UserId == uuid.Nil {
		return nil, errMalformed
	}

	rooms, meta, err := a.chat.GetUserRooms(ctx, req.UserId, database.Pagination{Page: req.Page, Limit: req.Limit})
	if err != nil {
		return failed(err)
	}

	return okPage(rooms, meta), nil
}

func (a *ChatAPI) healthCheck(ctx context.Context, data json.RawMessage) (any, error) {
	return map[string]string{"status": "ok"}, nil
}
