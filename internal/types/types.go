package types

import (
	"time"

	"github.com/google/uuid"
)

// User is the wire representation of a user. The user record itself is
// owned by the user service; chat only carries the fields needed to
// render messages and notifications.
type User struct {
	Id       uuid.UUID `json:"id"`
	Email    string    `json:"email,omitempty"`
	Username string    `json:"username"`
	IsActive bool      `json:"isActive,omitempty"`
}

type Room struct {
	Id          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsPrivate   bool      `json:"isPrivate"`
	MaxMembers  int       `json:"maxMembers"`
	IsActive    bool      `json:"isActive"`
	CreatedById uuid.UUID `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Message struct {
	Id        uuid.UUID  `json:"id"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	RoomId    uuid.UUID  `json:"chatRoomId"`
	UserId    *uuid.UUID `json:"userId,omitempty"`
	ReplyToId *uuid.UUID `json:"replyToId,omitempty"`
	IsEdited  bool       `json:"isEdited"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
	IsDeleted bool       `json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	User      *User      `json:"user,omitempty"`
}
