package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

func (db *PgChatRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	res := db.conn.QueryRow(
		"INSERT INTO rooms (name, description, is_private, max_members, created_by_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) "+
			"RETURNING id, name, description, is_private, max_members, is_active, created_by_id, created_at, updated_at",
		params.Name,
		params.Description,
		params.IsPrivate,
		params.MaxMembers,
		params.CreatedById,
		time.Now().UTC(),
	)

	var r Room
	err := res.Scan(
		&r.Id,
		&r.Name,
		&r.Description,
		&r.IsPrivate,
		&r.MaxMembers,
		&r.IsActive,
		&r.CreatedById,
		&r.CreatedAt,
		&r.UpdatedAt,
	)

	return r, err
}

func (db *PgChatRepository) GetRoom(id uuid.UUID) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, description, is_private, max_members, is_active, created_by_id, created_at, updated_at "+
			"FROM rooms WHERE id = $1 AND is_active LIMIT 1",
		id,
	)

	var r Room
	err := row.Scan(
		&r.Id,
		&r.Name,
		&r.Description,
		&r.IsPrivate,
		&r.MaxMembers,
		&r.IsActive,
		&r.CreatedById,
		&r.CreatedAt,
		&r.UpdatedAt,
	)

	return r, err
}

func (db *PgChatRepository) CreateMembership(params CreateMembershipParams) (Membership, error) {
	res := db.conn.QueryRow(
		"INSERT INTO user_chat_rooms (user_id, chat_room_id, role, joined_at, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4, $4) "+
			"RETURNING id, user_id, chat_room_id, role, is_muted, muted_until, joined_at, left_at, is_active, created_at, updated_at",
		params.UserId,
		params.RoomId,
		params.Role,
		time.Now().UTC(),
	)

	m, err := scanMembership(res)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return Membership{}, ErrDuplicateMembership
		}
		return Membership{}, err
	}

	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (Membership, error) {
	var m Membership
	err := row.Scan(
		&m.Id,
		&m.UserId,
		&m.RoomId,
		&m.Role,
		&m.IsMuted,
		&m.MutedUntil,
		&m.JoinedAt,
		&m.LeftAt,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	return m, err
}

func (db *PgChatRepository) GetActiveMembership(userId, roomId uuid.UUID) (Membership, error) {
	row := db.conn.QueryRow(
		"SELECT id, user_id, chat_room_id, role, is_muted, muted_until, joined_at, left_at, is_active, created_at, updated_at "+
			"FROM user_chat_rooms WHERE user_id = $1 AND chat_room_id = $2 AND is_active LIMIT 1",
		userId,
		roomId,
	)

	return scanMembership(row)
}

func (db *PgChatRepository) CountActiveMembers(roomId uuid.UUID) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM user_chat_rooms WHERE chat_room_id = $1 AND is_active",
		roomId,
	)

	var count int
	err := row.Scan(&count)

	return count, err
}

func (db *PgChatRepository) DeactivateMembership(id uuid.UUID, leftAt time.Time) error {
	res, err := db.conn.Exec(
		"UPDATE user_chat_rooms SET is_active = FALSE, left_at = $2, updated_at = $2 "+
			"WHERE id = $1 AND is_active",
		id,
		leftAt.UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errors.New("membership not active")
	}

	return nil
}

func (db *PgChatRepository) ListRoomsForUser(userId uuid.UUID, p Pagination) ([]Room, PageMeta, error) {
	p = p.Normalize()

	var total int
	if err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM user_chat_rooms WHERE user_id = $1 AND is_active",
		userId,
	).Scan(&total); err != nil {
		return nil, PageMeta{}, err
	}

	rows, err := db.conn.Query(
		"SELECT r.id, r.name, r.description, r.is_private, r.max_members, r.is_active, r.created_by_id, r.created_at, r.updated_at "+
			"FROM rooms r JOIN user_chat_rooms ucr ON ucr.chat_room_id = r.id "+
			"WHERE ucr.user_id = $1 AND ucr.is_active "+
			"ORDER BY ucr.updated_at DESC LIMIT $2 OFFSET $3",
		userId,
		p.Limit,
		p.Offset(),
	)
	if err != nil {
		return nil, PageMeta{}, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(
			&r.Id,
			&r.Name,
			&r.Description,
			&r.IsPrivate,
			&r.MaxMembers,
			&r.IsActive,
			&r.CreatedById,
			&r.CreatedAt,
			&r.UpdatedAt,
		); err != nil {
			return nil, PageMeta{}, err
		}
		rooms = append(rooms, r)
	}

	return rooms, NewPageMeta(total, p), rows.Err()
}

func (db *PgChatRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (content, type, chat_room_id, user_id, reply_to_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $6) "+
			"RETURNING id, content, type, chat_room_id, user_id, reply_to_id, is_edited, edited_at, is_deleted, deleted_at, created_at, updated_at",
		params.Content,
		params.Type,
		params.RoomId,
		params.UserId,
		params.ReplyToId,
		time.Now().UTC(),
	)

	return scanMessage(res)
}

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.Content,
		&m.Type,
		&m.RoomId,
		&m.UserId,
		&m.ReplyToId,
		&m.IsEdited,
		&m.EditedAt,
		&m.IsDeleted,
		&m.DeletedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	return m, err
}

func (db *PgChatRepository) GetMessage(id uuid.UUID) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT id, content, type, chat_room_id, user_id, reply_to_id, is_edited, edited_at, is_deleted, deleted_at, created_at, updated_at "+
			"FROM messages WHERE id = $1 AND NOT is_deleted LIMIT 1",
		id,
	)

	return scanMessage(row)
}

func (db *PgChatRepository) MarkMessageEdited(id uuid.UUID, content string, editedAt time.Time) (Message, error) {
	row := db.conn.QueryRow(
		"UPDATE messages SET content = $2, is_edited = TRUE, edited_at = $3, updated_at = $3 "+
			"WHERE id = $1 AND NOT is_deleted "+
			"RETURNING id, content, type, chat_room_id, user_id, reply_to_id, is_edited, edited_at, is_deleted, deleted_at, created_at, updated_at",
		id,
		content,
		editedAt.UTC(),
	)

	return scanMessage(row)
}

func (db *PgChatRepository) MarkMessageDeleted(id uuid.UUID, deletedAt time.Time) error {
	res, err := db.conn.Exec(
		"UPDATE messages SET content = $2, is_deleted = TRUE, deleted_at = $3, updated_at = $3 "+
			"WHERE id = $1 AND NOT is_deleted",
		id,
		DeletedMessagePlaceholder,
		deletedAt.UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errors.New("message already deleted")
	}

	return nil
}

func (db *PgChatRepository) ListMessagesForRoom(roomId uuid.UUID, p Pagination) ([]Message, PageMeta, error) {
	p = p.Normalize()

	var total int
	if err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE chat_room_id = $1 AND NOT is_deleted",
		roomId,
	).Scan(&total); err != nil {
		return nil, PageMeta{}, err
	}

	rows, err := db.conn.Query(
		"SELECT m.id, m.content, m.type, m.chat_room_id, m.user_id, m.reply_to_id, m.is_edited, m.edited_at, m.is_deleted, m.deleted_at, m.created_at, m.updated_at, "+
			"COALESCE(u.username, '') "+
			"FROM messages m LEFT JOIN users u ON u.id = m.user_id "+
			"WHERE m.chat_room_id = $1 AND NOT m.is_deleted "+
			"ORDER BY m.created_at DESC LIMIT $2 OFFSET $3",
		roomId,
		p.Limit,
		p.Offset(),
	)
	if err != nil {
		return nil, PageMeta{}, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.Id,
			&m.Content,
			&m.Type,
			&m.RoomId,
			&m.UserId,
			&m.ReplyToId,
			&m.IsEdited,
			&m.EditedAt,
			&m.IsDeleted,
			&m.DeletedAt,
			&m.CreatedAt,
			&m.UpdatedAt,
			&m.Username,
		); err != nil {
			return nil, PageMeta{}, err
		}
		messages = append(messages, m)
	}

	return messages, NewPageMeta(total, p), rows.Err()
}

func (db *PgChatRepository) GetUser(id uuid.UUID) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, email, username, is_active, created_at, updated_at FROM users "+
			"WHERE id = $1 AND is_active LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Email,
		&u.Username,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}
