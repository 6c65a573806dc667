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

// UpsertRoom writes one room row and its ordered member list. Concurrent
// creators of the same room converge on one row; the last writer's field
// values win.
func (s *Store) UpsertRoom(ctx context.Context, record storage.RoomRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("room id is required")
	}
	if len(record.Members) == 0 {
		return fmt.Errorf("room members are required")
	}
	if record.LastUpdated.IsZero() {
		return fmt.Errorf("last_updated is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin room upsert: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback room upsert: %v", cause, rollbackErr)
		}
		return cause
	}

	var roomName, roomIcon sql.NullString
	if value := strings.TrimSpace(record.RoomName); value != "" {
		roomName = sql.NullString{String: value, Valid: true}
	}
	if value := strings.TrimSpace(record.RoomIcon); value != "" {
		roomIcon = sql.NullString{String: value, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO rooms (id, room_name, room_icon, last_updated)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	room_name = excluded.room_name,
	room_icon = excluded.room_icon,
	last_updated = excluded.last_updated
`, record.ID, roomName, roomIcon, toMillis(record.LastUpdated)); err != nil {
		return rollbackWith(fmt.Errorf("upsert room: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM room_members WHERE room_id = ?`, record.ID); err != nil {
		return rollbackWith(fmt.Errorf("clear room members: %w", err))
	}
	for position, member := range record.Members {
		member = strings.TrimSpace(member)
		if member == "" {
			return rollbackWith(fmt.Errorf("room member id is required"))
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO room_members (room_id, user_id, position)
VALUES (?, ?, ?)
`, record.ID, member, position); err != nil {
			return rollbackWith(fmt.Errorf("insert room member: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit room upsert: %w", err)
	}
	return nil
}

// GetRoom loads one room row with members and per-member read state.
func (s *Store) GetRoom(ctx context.Context, roomID string) (storage.RoomRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.RoomRecord{}, err
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return storage.RoomRecord{}, fmt.Errorf("room id is required")
	}

	record, err := s.scanRoomRow(s.sqlDB.QueryRowContext(ctx, `
SELECT id, room_name, room_icon, last_updated
FROM rooms
WHERE id = ?
`, roomID).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.RoomRecord{}, storage.ErrNotFound
		}
		return storage.RoomRecord{}, fmt.Errorf("get room: %w", err)
	}
	if err := s.attachRoomDetails(ctx, &record); err != nil {
		return storage.RoomRecord{}, err
	}
	return record, nil
}

// ListRoomsByMember returns the member's rooms newest-activity first. The
// result is a finite snapshot taken at call time, not a live cursor.
func (s *Store) ListRoomsByMember(ctx context.Context, userID string, limit int) ([]storage.RoomRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT r.id, r.room_name, r.room_icon, r.last_updated
FROM rooms r
JOIN room_members m ON m.room_id = r.id
WHERE m.user_id = ?
ORDER BY r.last_updated DESC, r.id ASC
LIMIT ?
`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list rooms by member: %w", err)
	}
	defer rows.Close()

	records := make([]storage.RoomRecord, 0, limit)
	for rows.Next() {
		record, scanErr := s.scanRoomRow(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan room row: %w", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room rows: %w", err)
	}
	for i := range records {
		if err := s.attachRoomDetails(ctx, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// TouchRoom advances the room's last_updated field.
func (s *Store) TouchRoom(ctx context.Context, roomID string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return fmt.Errorf("room id is required")
	}
	if at.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE rooms SET last_updated = ? WHERE id = ?
`, toMillis(at), roomID)
	if err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch room rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetReadState records the time one member last read the room.
func (s *Store) SetReadState(ctx context.Context, roomID, userID string, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	roomID = strings.TrimSpace(roomID)
	userID = strings.TrimSpace(userID)
	if roomID == "" || userID == "" {
		return fmt.Errorf("room id and user id are required")
	}
	if at.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO room_read_state (room_id, user_id, read_at)
VALUES (?, ?, ?)
ON CONFLICT(room_id, user_id) DO UPDATE SET read_at = excluded.read_at
`, roomID, userID, toMillis(at))
	if err != nil {
		return fmt.Errorf("set read state: %w", err)
	}
	return nil
}

func (s *Store) scanRoomRow(scan scanner) (storage.RoomRecord, error) {
	var record storage.RoomRecord
	var roomName, roomIcon sql.NullString
	var lastUpdated int64
	if err := scan(&record.ID, &roomName, &roomIcon, &lastUpdated); err != nil {
		return storage.RoomRecord{}, err
	}
	record.RoomName = roomName.String
	record.RoomIcon = roomIcon.String
	record.LastUpdated = fromMillis(lastUpdated)
	return record, nil
}

func (s *Store) attachRoomDetails(ctx context.Context, record *storage.RoomRecord) error {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT user_id FROM room_members WHERE room_id = ? ORDER BY position ASC
`, record.ID)
	if err != nil {
		return fmt.Errorf("list room members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return fmt.Errorf("scan room member: %w", err)
		}
		record.Members = append(record.Members, member)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate room members: %w", err)
	}

	stateRows, err := s.sqlDB.QueryContext(ctx, `
SELECT user_id, read_at FROM room_read_state WHERE room_id = ?
`, record.ID)
	if err != nil {
		return fmt.Errorf("list room read state: %w", err)
	}
	defer stateRows.Close()
	for stateRows.Next() {
		var member string
		var readAt int64
		if err := stateRows.Scan(&member, &readAt); err != nil {
			return fmt.Errorf("scan room read state: %w", err)
		}
		if record.ReadState == nil {
			record.ReadState = make(map[string]time.Time)
		}
		record.ReadState[member] = fromMillis(readAt)
	}
	if err := stateRows.Err(); err != nil {
		return fmt.Errorf("iterate room read state: %w", err)
	}
	return nil
}
