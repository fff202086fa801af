package chat

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/chatstack/go-chathub/internal/database"
	"github.com/chatstack/go-chathub/internal/testutil"
	"github.com/chatstack/go-chathub/internal/types"
)

// stubDirectory serves users from a fixed map, standing in for the user
// service in coordinator tests.
type stubDirectory struct {
	users map[uuid.UUID]types.User
}

func (d *stubDirectory) GetUser(_ context.Context, id uuid.UUID) (types.User, error) {
	u, ok := d.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return u, nil
}

func newTestCoordinator(t *testing.T, repo database.ChatRepository, users ...types.User) *Coordinator {
	dir := &stubDirectory{users: make(map[uuid.UUID]types.User)}
	for _, u := range users {
		dir.users[u.Id] = u
	}
	return NewCoordinator(testutil.TestLogger(t), repo, dir)
}

func Test_CreateRoom(t *testing.T) {
	creator := types.User{Id: uuid.New(), Username: "alice", IsActive: true}
	roomId := uuid.New()

	t.Run("creates room with owner membership", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		params := database.CreateRoomParams{Name: "general", CreatedById: creator.Id}
		expected := params
		expected.MaxMembers = 100

		mockRepo.On("CreateRoom", expected).Return(database.Room{
			Id:          roomId,
			Name:        "general",
			MaxMembers:  100,
			IsActive:    true,
			CreatedById: creator.Id,
		}, nil).Once()
		mockRepo.On("CreateMembership", database.CreateMembershipParams{
			UserId: creator.Id,
			RoomId: roomId,
			Role:   database.RoleOwner,
		}).Return(database.Membership{Id: uuid.New()}, nil).Once()

		c := newTestCoordinator(t, mockRepo, creator)
		room, err := c.CreateRoom(context.Background(), params)
		assert.NoError(t, err)
		assert.Equal(t, roomId, room.Id)
		assert.Equal(t, 100, room.MaxMembers)
	})

	t.Run("unknown creator fails without touching the database", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		c := newTestCoordinator(t, mockRepo)
		_, err := c.CreateRoom(context.Background(), database.CreateRoomParams{
			Name:        "general",
			CreatedById: uuid.New(),
		})
		assert.ErrorIs(t, err, ErrNotFound)
		mockRepo.AssertNotCalled(t, "CreateRoom", mock.Anything)
	})
}

func Test_JoinRoom(t *testing.T) {
	user := types.User{Id: uuid.New(), Username: "bob", IsActive: true}
	roomId := uuid.New()
	room := database.Room{Id: roomId, Name: "general", MaxMembers: 2, IsActive: true}

	t.Run("join creates membership and system message", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoom", roomId).Return(room, nil).Once()
		mockRepo.On("GetActiveMembership", user.Id, roomId).
			Return(database.Membership{}, sql.ErrNoRows).Once()
		mockRepo.On("CountActiveMembers", roomId).Return(1, nil).Once()
		mockRepo.On("CreateMembership", database.CreateMembershipParams{
			UserId: user.Id,
			RoomId: roomId,
			Role:   database.RoleMember,
		}).Return(database.Membership{Id: uuid.New(), IsActive: true}, nil).Once()
		mockRepo.On("CreateMessage", database.CreateMessageParams{
			Content: "bob joined the chat",
			Type:    database.MessageTypeSystem,
			RoomId:  roomId,
		}).Return(database.Message{}, nil).Once()

		c := newTestCoordinator(t, mockRepo, user)
		assert.NoError(t, c.JoinRoom(context.Background(), user.Id, roomId))
	})

	t.Run("double join is a conflict", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoom", roomId).Return(room, nil).Once()
		mockRepo.On("GetActiveMembership", user.Id, roomId).
			Return(database.Membership{Id: uuid.New(), IsActive: true}, nil).Once()

		c := newTestCoordinator(t, mockRepo, user)
		err := c.JoinRoom(context.Background(), user.Id, roomId)
		assert.ErrorIs(t, err, ErrConflict)
		mockRepo.AssertNotCalled(t, "CreateMembership", mock.Anything)
	})

	t.Run("racing join losing the unique index is a conflict", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoom", roomId).Return(room, nil).Once()
		mockRepo.On("GetActiveMembership", user.Id, roomId).
			Return(database.Membership{}, sql.ErrNoRows).Once()
		mockRepo.On("CountActiveMembers", roomId).Return(0, nil).Once()
		mockRepo.On("CreateMembership", mock.Anything).
			Return(database.Membership{}, database.ErrDuplicateMembership).Once()

		c := newTestCoordinator(t, mockRepo, user)
		assert.ErrorIs(t, c.JoinRoom(context.Background(), user.Id, roomId), ErrConflict)
	})

	t.Run("full room is forbidden", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoom", roomId).Return(room, nil).Once()
		mockRepo.On("GetActiveMembership", user.Id, roomId).
			Return(database.Membership{}, sql.ErrNoRows).Once()
		mockRepo.On("CountActiveMembers", roomId).Return(2, nil).Once()

		c := newTestCoordinator(t, mockRepo, user)
		err := c.JoinRoom(context.Background(), user.Id, roomId)
		assert.ErrorIs(t, err, ErrForbidden)
		mockRepo.AssertNotCalled(t, "CreateMembership", mock.Anything)
	})

	t.Run("missing room is not found", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoom", roomId).Return(database.Room{}, sql.ErrNoRows).Once()

		c := newTestCoordinator(t, mockRepo, user)
		assert.ErrorIs(t, c.JoinRoom(context.Background(), user.Id, roomId), ErrNotFound)
	})

	t.Run("failed system message does not fail the join", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRoom", roomId).Return(room, nil).Once()
		mockRepo.On("GetActiveMembership", user.Id, roomId).
			Return(database.Membership{}, sql.ErrNoRows).Once()
		mockRepo.On("CountActiveMembers", roomId).Return(0, nil).Once()
		mockRepo.On("CreateMembership", mock.Anything).
			Return(database.Membership{Id: uuid.New(), IsActive: true}, nil).Once()
		mockRepo.On("CreateMessage", mock.Anything).
			Return(database.Message{}, errors.New("db error")).Once()

		c := newTestCoordinator(t, mockRepo, user)
		assert.NoError(t, c.JoinRoom(context.Background(), user.Id, roomId))
	})
}

func Test_LeaveRoom(t *testing.T) {
	user := types.User{Id: uuid.New(), Username: "bob", IsActive: true}
	roomId := uuid.New()

	t.Run("leave deactivates the membership", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		membershipId := uuid.New()
		mockRepo.On("GetActiveMembership", user.Id, roomId).
			Return(database.Membership{Id: membershipId, IsActive: true}, nil).Once()
		mockRepo.On("DeactivateMembership", membershipId, mock.AnythingOfType("time.Time")).
			Return(nil).Once()
		mockRepo.On("CreateMessage", database.CreateMessageParams{
			Content: "bob left the chat",
			Type:    database.MessageTypeSystem,
			RoomId:  roomId,
		}).Return(database.Message{}, nil).Once()

		c := newTestCoordinator(t, mockRepo, user)
		assert.NoError(t, c.LeaveRoom(context.Background(), user.Id, roomId))
	})

	t.Run("leaving without membership is not found", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetActiveMembership", user.Id, roomId).
			Return(database.Membership{}, sql.ErrNoRows).Once()

		c := newTestCoordinator(t, mockRepo, user)
		err := c.LeaveRoom(context.Background(), user.Id, roomId)
		assert.ErrorIs(t, err, ErrNotFound)
		mockRepo.AssertNotCalled(t, "DeactivateMembership", mock.Anything, mock.Anything)
	})
}

func Test_SendMessage(t *testing.T) {
	user := types.User{Id: uuid.New(), Username: "bob", IsActive: true}
	roomId := uuid.New()

	t.Run("member sends a message with author attached", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		msgId := uuid.New()
		mockRepo.On("GetActiveMembership", user.Id, roomId).
			Return(database.Membership{Id: uuid.New(), IsActive: true}, nil).Once()
		mockRepo.On("CreateMessage", database.CreateMessageParams{
			Content: "hello",
			Type:    database.MessageTypeText,
			RoomId:  roomId,
			UserId:  uuid.NullUUID{UUID: user.Id, Valid: true},
		}).Return(database.Message{
			Id:      msgId,
			Content: "hello",
			Type:    database.MessageTypeText,
			RoomId:  roomId,
			UserId:  uuid.NullUUID{UUID: user.Id, Valid: true},
		}, nil).Once()

		c := newTestCoordinator(t, mockRepo, user)
		msg, err := c.SendMessage(context.Background(), user.Id, roomId, "hello")
		assert.NoError(t, err)
		assert.Equal(t, msgId, msg.Id)
		if assert.NotNil(t, msg.User) {
			assert.Equal(t, "bob", msg.User.Username)
		}
	})

	t.Run("non-member is forbidden", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetActiveMembership", user.Id, roomId).
			Return(database.Membership{}, sql.ErrNoRows).Once()

		c := newTestCoordinator(t, mockRepo, user)
		_, err := c.SendMessage(context.Background(), user.Id, roomId, "hello")
		assert.ErrorIs(t, err, ErrForbidden)
		mockRepo.AssertNotCalled(t, "CreateMessage", mock.Anything)
	})

	t.Run("muted member is forbidden", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		until := time.Now().Add(time.Hour)
		mockRepo.On("GetActiveMembership", user.Id, roomId).
			Return(database.Membership{IsActive: true, IsMuted: true, MutedUntil: &until}, nil).Once()

		c := newTestCoordinator(t, mockRepo, user)
		_, err := c.SendMessage(context.Background(), user.Id, roomId, "hello")
		assert.ErrorIs(t, err, ErrForbidden)
		mockRepo.AssertNotCalled(t, "CreateMessage", mock.Anything)
	})
}

func Test_EditMessage(t *testing.T) {
	user := types.User{Id: uuid.New(), Username: "bob", IsActive: true}
	msgId := uuid.New()
	roomId := uuid.New()

	t.Run("author edits own message", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetMessage", msgId).Return(database.Message{
			Id:     msgId,
			RoomId: roomId,
			UserId: uuid.NullUUID{UUID: user.Id, Valid: true},
		}, nil).Once()
		mockRepo.On("MarkMessageEdited", msgId, "fixed", mock.AnythingOfType("time.Time")).
			Return(database.Message{
				Id:       msgId,
				Content:  "fixed",
				RoomId:   roomId,
				UserId:   uuid.NullUUID{UUID: user.Id, Valid: true},
				IsEdited: true,
			}, nil).Once()

		c := newTestCoordinator(t, mockRepo, user)
		msg, err := c.EditMessage(context.Background(), msgId, user.Id, "fixed")
		assert.NoError(t, err)
		assert.True(t, msg.IsEdited)
		assert.Equal(t, "fixed", msg.Content)
	})

	t.Run("editing another user's message is not found", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetMessage", msgId).Return(database.Message{
			Id:     msgId,
			RoomId: roomId,
			UserId: uuid.NullUUID{UUID: uuid.New(), Valid: true},
		}, nil).Once()

		c := newTestCoordinator(t, mockRepo, user)
		_, err := c.EditMessage(context.Background(), msgId, user.Id, "fixed")
		assert.ErrorIs(t, err, ErrNotFound)
		mockRepo.AssertNotCalled(t, "MarkMessageEdited", mock.Anything, mock.Anything, mock.Anything)
	})
}

func Test_DeleteMessage(t *testing.T) {
	author := types.User{Id: uuid.New(), Username: "bob", IsActive: true}
	msgId := uuid.New()
	roomId := uuid.New()
	msg := database.Message{
		Id:     msgId,
		RoomId: roomId,
		UserId: uuid.NullUUID{UUID: author.Id, Valid: true},
	}

	t.Run("author deletes own message", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetMessage", msgId).Return(msg, nil).Once()
		mockRepo.On("MarkMessageDeleted", msgId, mock.AnythingOfType("time.Time")).
			Return(nil).Once()

		c := newTestCoordinator(t, mockRepo, author)
		assert.NoError(t, c.DeleteMessage(context.Background(), msgId, author.Id))
	})

	t.Run("moderator deletes another user's message", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		moderatorId := uuid.New()
		mockRepo.On("GetMessage", msgId).Return(msg, nil).Once()
		mockRepo.On("GetActiveMembership", moderatorId, roomId).
			Return(database.Membership{Role: database.RoleModerator, IsActive: true}, nil).Once()
		mockRepo.On("MarkMessageDeleted", msgId, mock.AnythingOfType("time.Time")).
			Return(nil).Once()

		c := newTestCoordinator(t, mockRepo)
		assert.NoError(t, c.DeleteMessage(context.Background(), msgId, moderatorId))
	})

	t.Run("plain member may not delete another user's message", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		memberId := uuid.New()
		mockRepo.On("GetMessage", msgId).Return(msg, nil).Once()
		mockRepo.On("GetActiveMembership", memberId, roomId).
			Return(database.Membership{Role: database.RoleMember, IsActive: true}, nil).Once()

		c := newTestCoordinator(t, mockRepo)
		err := c.DeleteMessage(context.Background(), msgId, memberId)
		assert.ErrorIs(t, err, ErrForbidden)
		mockRepo.AssertNotCalled(t, "MarkMessageDeleted", mock.Anything, mock.Anything)
	})

	t.Run("second delete is not found", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetMessage", msgId).Return(database.Message{}, sql.ErrNoRows).Once()

		c := newTestCoordinator(t, mockRepo, author)
		assert.ErrorIs(t, c.DeleteMessage(context.Background(), msgId, author.Id), ErrNotFound)
	})
}

func Test_GetMessages(t *testing.T) {
	roomId := uuid.New()
	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("ListMessagesForRoom", roomId, database.Pagination{Page: 1, Limit: 20}).
		Return([]database.Message{}, database.PageMeta{Page: 1, Limit: 20}, nil).Once()

	c := newTestCoordinator(t, mockRepo)
	msgs, meta, err := c.GetMessages(context.Background(), roomId, database.Pagination{})
	assert.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 1, meta.Page)
}
