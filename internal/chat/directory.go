package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/chatstack/go-chathub/internal/database"
	"github.com/chatstack/go-chathub/internal/rpc"
	"github.com/chatstack/go-chathub/internal/types"
)

// UserDirectory resolves user ids to user records. Missing or inactive
// users surface as ErrNotFound.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (types.User, error)
}

// repoDirectory reads users from the shared chat database.
type repoDirectory struct {
	db database.ChatRepository
}

func NewRepositoryDirectory(db database.ChatRepository) UserDirectory {
	return &repoDirectory{db: db}
}

func (d *repoDirectory) GetUser(_ context.Context, id uuid.UUID) (types.User, error) {
	u, err := d.db.GetUser(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return types.User{}, err
	}

	return types.User{
		Id:       u.Id,
		Email:    u.Email,
		Username: u.Username,
		IsActive: u.IsActive,
	}, nil
}

// rpcDirectory resolves users through the user service. Calls go through
// the client's circuit breaker.
type rpcDirectory struct {
	client *rpc.Client
}

func NewRPCDirectory(client *rpc.Client) UserDirectory {
	return &rpcDirectory{client: client}
}

type findUserRequest struct {
	Id uuid.UUID `json:"id"`
}

type findUserResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    *types.User `json:"data,omitempty"`
}

func (d *rpcDirectory) GetUser(ctx context.Context, id uuid.UUID) (types.User, error) {
	var resp findUserResponse
	if err := d.client.Call(ctx, "user.find_by_id", findUserRequest{Id: id}, &resp); err != nil {
		return types.User{}, err
	}

	if !resp.Success || resp.Data == nil || !resp.Data.IsActive {
		return types.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}

	return *resp.Data, nil
}
