package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sattsat-tdu/reportalk-core/internal/services/social/storage"
)

// PutUser upserts one identity row. Membership caches are written through
// their own add operations, not here.
func (s *Store) PutUser(ctx context.Context, record storage.UserRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if record.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, handle, user_name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	handle = excluded.handle,
	user_name = excluded.user_name,
	updated_at = excluded.updated_at
`,
		record.ID,
		strings.TrimSpace(record.Handle),
		strings.TrimSpace(record.UserName),
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser loads one identity row together with its friend and room caches.
func (s *Store) GetUser(ctx context.Context, userID string) (storage.UserRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.UserRecord{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return storage.UserRecord{}, fmt.Errorf("user id is required")
	}

	var record storage.UserRecord
	var createdAt, updatedAt int64
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, handle, user_name, created_at, updated_at
FROM users
WHERE id = ?
`, userID)
	if err := row.Scan(&record.ID, &record.Handle, &record.UserName, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.UserRecord{}, storage.ErrNotFound
		}
		return storage.UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)

	friends, err := s.listMembershipColumn(ctx, `
SELECT friend_user_id FROM user_friends WHERE user_id = ? ORDER BY created_at ASC, friend_user_id ASC
`, userID)
	if err != nil {
		return storage.UserRecord{}, fmt.Errorf("list user friends: %w", err)
	}
	record.Friends = friends

	rooms, err := s.listMembershipColumn(ctx, `
SELECT room_id FROM user_rooms WHERE user_id = ? ORDER BY created_at ASC, room_id ASC
`, userID)
	if err != nil {
		return storage.UserRecord{}, fmt.Errorf("list user rooms: %w", err)
	}
	record.Rooms = rooms
	return record, nil
}

// PutFriend mirrors one friend-cache entry. Re-adding an existing entry is
// a no-op.
func (s *Store) PutFriend(ctx context.Context, userID, friendUserID string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	friendUserID = strings.TrimSpace(friendUserID)
	if userID == "" || friendUserID == "" {
		return fmt.Errorf("user id and friend user id are required")
	}
	if at.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO user_friends (user_id, friend_user_id, created_at)
VALUES (?, ?, ?)
ON CONFLICT(user_id, friend_user_id) DO NOTHING
`, userID, friendUserID, toMillis(at))
	if err != nil {
		return fmt.Errorf("put friend: %w", err)
	}
	return nil
}

// AddRoomMembership appends one entry to the room cache. The primary key
// makes the append an atomic add-to-set; a duplicate yields ErrAlreadyExists.
func (s *Store) AddRoomMembership(ctx context.Context, userID, roomID string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	roomID = strings.TrimSpace(roomID)
	if userID == "" || roomID == "" {
		return fmt.Errorf("user id and room id are required")
	}
	if at.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO user_rooms (user_id, room_id, created_at)
VALUES (?, ?, ?)
ON CONFLICT(user_id, room_id) DO NOTHING
`, userID, roomID, toMillis(at))
	if err != nil {
		return fmt.Errorf("add room membership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add room membership rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrAlreadyExists
	}
	return nil
}

// ListRoomMemberships returns the cached room IDs for one user.
func (s *Store) ListRoomMemberships(ctx context.Context, userID string) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	values, err := s.listMembershipColumn(ctx, `
SELECT room_id FROM user_rooms WHERE user_id = ? ORDER BY created_at ASC, room_id ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list room memberships: %w", err)
	}
	return values, nil
}

func (s *Store) listMembershipColumn(ctx context.Context, query, userID string) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
