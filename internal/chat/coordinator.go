package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatstack/go-chathub/internal/database"
	"github.com/chatstack/go-chathub/internal/types"
)

const defaultMaxMembers = 100

// Coordinator orchestrates room, membership and message operations against
// the repository, applying the role and capacity rules. It serializes
// check-then-write sequences per (user, room) pair; the partial unique
// index on user_chat_rooms backs that up across processes.
type Coordinator struct {
	log   *log.Logger
	db    database.ChatRepository
	users UserDirectory

	// pairLocks stripes (user, room) pairs over a fixed set of mutexes.
	pairLocks [64]sync.Mutex
}

func NewCoordinator(logger *log.Logger, db database.ChatRepository, users UserDirectory) *Coordinator {
	return &Coordinator{
		log:   logger,
		db:    db,
		users: users,
	}
}

func (c *Coordinator) lockPair(userId, roomId uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(userId[:])
	h.Write(roomId[:])
	mu := &c.pairLocks[h.Sum32()%uint32(len(c.pairLocks))]
	mu.Lock()
	return mu
}

// CreateRoom creates the room and its owner membership. The creator must
// be an existing active user.
func (c *Coordinator) CreateRoom(ctx context.Context, params database.CreateRoomParams) (types.Room, error) {
	if _, err := c.users.GetUser(ctx, params.CreatedById); err != nil {
		return types.Room{}, fmt.Errorf("create room: %w", err)
	}

	if params.MaxMembers <= 0 {
		params.MaxMembers = defaultMaxMembers
	}

	room, err := c.db.CreateRoom(params)
	if err != nil {
		return types.Room{}, fmt.Errorf("create room: %w", err)
	}

	if _, err := c.db.CreateMembership(database.CreateMembershipParams{
		UserId: params.CreatedById,
		RoomId: room.Id,
		Role:   database.RoleOwner,
	}); err != nil {
		return types.Room{}, fmt.Errorf("create owner membership: %w", err)
	}

	return RoomFromModel(room), nil
}

// JoinRoom starts a new active membership stint. It fails with ErrConflict
// when one already exists and ErrForbidden when the room is full. The
// "joined the chat" system message is best-effort.
func (c *Coordinator) JoinRoom(ctx context.Context, userId, roomId uuid.UUID) error {
	user, err := c.users.GetUser(ctx, userId)
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}

	mu := c.lockPair(userId, roomId)
	defer mu.Unlock()

	room, err := c.db.GetRoom(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("room %s: %w", roomId, ErrNotFound)
		}
		return fmt.Errorf("join room: %w", err)
	}

	if _, err := c.db.GetActiveMembership(userId, roomId); err == nil {
		return fmt.Errorf("already a member of this room: %w", ErrConflict)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("join room: %w", err)
	}

	count, err := c.db.CountActiveMembers(roomId)
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	if !HasCapacity(count, room.MaxMembers) {
		return fmt.Errorf("room is at maximum capacity: %w", ErrForbidden)
	}

	if _, err := c.db.CreateMembership(database.CreateMembershipParams{
		UserId: userId,
		RoomId: roomId,
		Role:   database.RoleMember,
	}); err != nil {
		if errors.Is(err, database.ErrDuplicateMembership) {
			return fmt.Errorf("already a member of this room: %w", ErrConflict)
		}
		return fmt.Errorf("join room: %w", err)
	}

	c.systemMessage(roomId, fmt.Sprintf("%s joined the chat", user.Username))

	return nil
}

// LeaveRoom ends the user's active stint. The "left the chat" system
// message is best-effort.
func (c *Coordinator) LeaveRoom(ctx context.Context, userId, roomId uuid.UUID) error {
	// Resolved before taking the pair lock so the lock is never held
	// across an RPC.
	user, userErr := c.users.GetUser(ctx, userId)
	if userErr != nil {
		c.log.Printf("leave room: resolve user %s for system message: %v", userId, userErr)
	}

	mu := c.lockPair(userId, roomId)
	defer mu.Unlock()

	membership, err := c.db.GetActiveMembership(userId, roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("not a member of this room: %w", ErrNotFound)
		}
		return fmt.Errorf("leave room: %w", err)
	}

	if err := c.db.DeactivateMembership(membership.Id, time.Now().UTC()); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}

	if userErr == nil {
		c.systemMessage(roomId, fmt.Sprintf("%s left the chat", user.Username))
	}

	return nil
}

// SendMessage persists a text message from an active, unmuted member and
// returns it with the author attached.
func (c *Coordinator) SendMessage(ctx context.Context, userId, roomId uuid.UUID, content string) (types.Message, error) {
	membership, err := c.db.GetActiveMembership(userId, roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, fmt.Errorf("not a member of this room: %w", ErrForbidden)
		}
		return types.Message{}, fmt.Errorf("send message: %w", err)
	}

	if !CanSend(membership, time.Now()) {
		return types.Message{}, fmt.Errorf("muted in this room: %w", ErrForbidden)
	}

	msg, err := c.db.CreateMessage(database.CreateMessageParams{
		Content: content,
		Type:    database.MessageTypeText,
		RoomId:  roomId,
		UserId:  uuid.NullUUID{UUID: userId, Valid: true},
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("send message: %w", err)
	}

	result := MessageFromModel(msg)
	if user, err := c.users.GetUser(ctx, userId); err == nil {
		result.User = &user
	} else {
		c.log.Printf("send message: resolve author %s: %v", userId, err)
	}

	return result, nil
}

// EditMessage rewrites the caller's own, undeleted message and marks it
// edited. Anything else, including another user's message, is ErrNotFound.
func (c *Coordinator) EditMessage(ctx context.Context, messageId, userId uuid.UUID, content string) (types.Message, error) {
	msg, err := c.db.GetMessage(messageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, fmt.Errorf("message %s: %w", messageId, ErrNotFound)
		}
		return types.Message{}, fmt.Errorf("edit message: %w", err)
	}

	if !msg.UserId.Valid || msg.UserId.UUID != userId {
		return types.Message{}, fmt.Errorf("message not owned by user: %w", ErrNotFound)
	}

	updated, err := c.db.MarkMessageEdited(messageId, content, time.Now().UTC())
	if err != nil {
		return types.Message{}, fmt.Errorf("edit message: %w", err)
	}

	result := MessageFromModel(updated)
	if user, err := c.users.GetUser(ctx, userId); err == nil {
		result.User = &user
	}

	return result, nil
}

// DeleteMessage soft-deletes a message. The author may delete their own;
// anyone else needs a moderator or higher role in the message's room.
// Already-deleted messages are excluded from lookup, so a second delete
// fails with ErrNotFound.
func (c *Coordinator) DeleteMessage(ctx context.Context, messageId, userId uuid.UUID) error {
	msg, err := c.db.GetMessage(messageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("message %s: %w", messageId, ErrNotFound)
		}
		return fmt.Errorf("delete message: %w", err)
	}

	if !msg.UserId.Valid || msg.UserId.UUID != userId {
		membership, err := c.db.GetActiveMembership(userId, msg.RoomId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("not authorized to delete this message: %w", ErrForbidden)
			}
			return fmt.Errorf("delete message: %w", err)
		}
		if !HasPermission(membership, database.RoleModerator) {
			return fmt.Errorf("not authorized to delete this message: %w", ErrForbidden)
		}
	}

	if err := c.db.MarkMessageDeleted(messageId, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}

// GetMessages returns a page of a room's messages, newest first. Empty
// rooms yield an empty page, not an error.
func (c *Coordinator) GetMessages(ctx context.Context, roomId uuid.UUID, p database.Pagination) ([]types.Message, database.PageMeta, error) {
	msgs, meta, err := c.db.ListMessagesForRoom(roomId, p.Normalize())
	if err != nil {
		return nil, database.PageMeta{}, fmt.Errorf("get messages: %w", err)
	}

	result := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, MessageFromModel(m))
	}

	return result, meta, nil
}

// GetUserRooms returns a page of rooms the user is an active member of.
func (c *Coordinator) GetUserRooms(ctx context.Context, userId uuid.UUID, p database.Pagination) ([]types.Room, database.PageMeta, error) {
	rooms, meta, err := c.db.ListRoomsForUser(userId, p.Normalize())
	if err != nil {
		return nil, database.PageMeta{}, fmt.Errorf("get user rooms: %w", err)
	}

	result := make([]types.Room, 0, len(rooms))
	for _, r := range rooms {
		result = append(result, RoomFromModel(r))
	}

	return result, meta, nil
}

// systemMessage records a system message for the room. Failures are logged
// and swallowed so they never fail the parent operation.
func (c *Coordinator) systemMessage(roomId uuid.UUID, content string) {
	if _, err := c.db.CreateMessage(database.CreateMessageParams{
		Content: content,
		Type:    database.MessageTypeSystem,
		RoomId:  roomId,
	}); err != nil {
		c.log.Printf("system message for room %s: %v", roomId, err)
	}
}

func RoomFromModel(r database.Room) types.Room {
	return types.Room{
		Id:          r.Id,
		Name:        r.Name,
		Description: r.Description,
		IsPrivate:   r.IsPrivate,
		MaxMembers:  r.MaxMembers,
		IsActive:    r.IsActive,
		CreatedById: r.CreatedById,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func MessageFromModel(m database.Message) types.Message {
	msg := types.Message{
		Id:        m.Id,
		Content:   m.Content,
		Type:      string(m.Type),
		RoomId:    m.RoomId,
		IsEdited:  m.IsEdited,
		EditedAt:  m.EditedAt,
		IsDeleted: m.IsDeleted,
		DeletedAt: m.DeletedAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.UserId.Valid {
		id := m.UserId.UUID
		msg.UserId = &id
		if m.Username != "" {
			msg.User = &types.User{Id: id, Username: m.Username}
		}
	}
	if m.ReplyToId.Valid {
		id := m.ReplyToId.UUID
		msg.ReplyToId = &id
	}

	return msg
}
