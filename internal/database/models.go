package database

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// RoomRole is a member's role within a single room. Roles form a fixed
// hierarchy used for permission checks: owner > admin > moderator > member.
type RoomRole string

const (
	RoleOwner     RoomRole = "owner"
	RoleAdmin     RoomRole = "admin"
	RoleModerator RoomRole = "moderator"
	RoleMember    RoomRole = "member"
)

// Rank maps a role to its position in the hierarchy. Unknown roles rank
// below member so they never pass a permission check.
func (r RoomRole) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleModerator:
		return 1
	case RoleMember:
		return 0
	default:
		return -1
	}
}

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// DeletedMessagePlaceholder replaces the content of a soft-deleted message.
const DeletedMessagePlaceholder = "[This message was deleted]"

type Room struct {
	Id          uuid.UUID
	Name        string
	Description string
	IsPrivate   bool
	MaxMembers  int
	IsActive    bool
	CreatedById uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Membership is one stint of a user in a room. Leaving deactivates the row
// rather than deleting it; a rejoin creates a new row.
type Membership struct {
	Id         uuid.UUID
	UserId     uuid.UUID
	RoomId     uuid.UUID
	Role       RoomRole
	IsMuted    bool
	MutedUntil *time.Time
	JoinedAt   time.Time
	LeftAt     *time.Time
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Message struct {
	Id        uuid.UUID
	Content   string
	Type      MessageType
	RoomId    uuid.UUID
	UserId    uuid.NullUUID
	ReplyToId uuid.NullUUID
	IsEdited  bool
	EditedAt  *time.Time
	IsDeleted bool
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	// Username is populated on reads by joining the users table.
	Username string
}

type User struct {
	Id        uuid.UUID
	Email     string
	Username  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateRoomParams struct {
	Name        string
	Description string
	IsPrivate   bool
	MaxMembers  int
	CreatedById uuid.UUID
}

type CreateMembershipParams struct {
	UserId uuid.UUID
	RoomId uuid.UUID
	Role   RoomRole
}

type CreateMessageParams struct {
	Content   string
	Type      MessageType
	RoomId    uuid.UUID
	UserId    uuid.NullUUID
	ReplyToId uuid.NullUUID
}

// Pagination is an offset-based page request.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

const defaultPageLimit = 20

// Normalize clamps a page request to valid values.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultPageLimit
	}
	return p
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Limit
}

type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func NewPageMeta(total int, p Pagination) PageMeta {
	return PageMeta{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(p.Limit))),
	}
}
