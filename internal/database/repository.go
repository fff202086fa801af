package database

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateMembership is returned by CreateMembership when another active
// membership already exists for the same (user, room) pair. The postgres
// implementation translates the unique constraint violation raised by two
// racing joins into this error.
var ErrDuplicateMembership = errors.New("active membership already exists")

// ChatRepository is the persistence contract consumed by the chat
// coordinator. Reads filter on is_active/is_deleted; missing rows surface
// as sql.ErrNoRows.
type ChatRepository interface {
	Ping() error
	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoom(id uuid.UUID) (Room, error)
	CreateMembership(params CreateMembershipParams) (Membership, error)
	GetActiveMembership(userId, roomId uuid.UUID) (Membership, error)
	CountActiveMembers(roomId uuid.UUID) (int, error)
	DeactivateMembership(id uuid.UUID, leftAt time.Time) error
	ListRoomsForUser(userId uuid.UUID, p Pagination) ([]Room, PageMeta, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessage(id uuid.UUID) (Message, error)
	MarkMessageEdited(id uuid.UUID, content string, editedAt time.Time) (Message, error)
	MarkMessageDeleted(id uuid.UUID, deletedAt time.Time) error
	ListMessagesForRoom(roomId uuid.UUID, p Pagination) ([]Message, PageMeta, error)
	GetUser(id uuid.UUID) (User, error)
}
