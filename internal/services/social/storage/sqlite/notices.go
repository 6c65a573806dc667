package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sattsat-tdu/reportalk-core/internal/services/social/storage"
)

// InsertNotice appends one notice row. The partial unique index on
// dedupe_key turns a duplicate keyed insert into ErrConflict without
// writing, which is the conditional insert-if-absent primitive callers
// rely on for friend-request dedup.
func (s *Store) InsertNotice(ctx context.Context, record storage.NoticeRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	record.ID = strings.TrimSpace(record.ID)
	record.SenderID = strings.TrimSpace(record.SenderID)
	record.ReceiverID = strings.TrimSpace(record.ReceiverID)
	record.NoticeType = strings.TrimSpace(record.NoticeType)
	record.DedupeKey = strings.TrimSpace(record.DedupeKey)
	if record.ID == "" {
		return fmt.Errorf("notice id is required")
	}
	if record.SenderID == "" || record.ReceiverID == "" {
		return fmt.Errorf("sender id and receiver id are required")
	}
	if record.NoticeType == "" {
		return fmt.Errorf("notice type is required")
	}
	if record.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO notices (id, sender_id, receiver_id, notice_type, message, url, dedupe_key, is_read, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.SenderID,
		record.ReceiverID,
		record.NoticeType,
		record.Message,
		strings.TrimSpace(record.URL),
		record.DedupeKey,
		boolToInt(record.IsRead),
		toMillis(record.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert notice: %w", err)
	}
	return nil
}

// GetNoticeByDedupeKey loads one notice by its uniqueness key.
func (s *Store) GetNoticeByDedupeKey(ctx context.Context, dedupeKey string) (storage.NoticeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.NoticeRecord{}, err
	}
	dedupeKey = strings.TrimSpace(dedupeKey)
	if dedupeKey == "" {
		return storage.NoticeRecord{}, storage.ErrNotFound
	}

	record, err := scanNotice(s.sqlDB.QueryRowContext(ctx, `
SELECT id, sender_id, receiver_id, notice_type, message, url, dedupe_key, is_read, created_at
FROM notices
WHERE dedupe_key = ?
`, dedupeKey).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NoticeRecord{}, storage.ErrNotFound
		}
		return storage.NoticeRecord{}, fmt.Errorf("get notice by dedupe key: %w", err)
	}
	return record, nil
}

// ExistsNotice reports whether any notice matches exactly this type, sender
// and receiver.
func (s *Store) ExistsNotice(ctx context.Context, noticeType, senderID, receiverID string) (bool, error) {
	if err := s.ready(ctx); err != nil {
		return false, err
	}
	noticeType = strings.TrimSpace(noticeType)
	senderID = strings.TrimSpace(senderID)
	receiverID = strings.TrimSpace(receiverID)
	if noticeType == "" || senderID == "" || receiverID == "" {
		return false, fmt.Errorf("notice type, sender id and receiver id are required")
	}

	var found int
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT 1
FROM notices
WHERE notice_type = ? AND sender_id = ? AND receiver_id = ?
LIMIT 1
`, noticeType, senderID, receiverID).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check notice exists: %w", err)
	}
	return true, nil
}

// ListNoticesByReceiver returns the receiver's notices newest first.
func (s *Store) ListNoticesByReceiver(ctx context.Context, receiverID string) ([]storage.NoticeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" {
		return nil, fmt.Errorf("receiver id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, sender_id, receiver_id, notice_type, message, url, dedupe_key, is_read, created_at
FROM notices
WHERE receiver_id = ?
ORDER BY created_at DESC, id DESC
`, receiverID)
	if err != nil {
		return nil, fmt.Errorf("list notices: %w", err)
	}
	defer rows.Close()

	var records []storage.NoticeRecord
	for rows.Next() {
		record, scanErr := scanNotice(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan notice row: %w", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notice rows: %w", err)
	}
	return records, nil
}

// MarkNoticeRead flips the is_read flag for one receiver-owned notice.
func (s *Store) MarkNoticeRead(ctx context.Context, receiverID, noticeID string) (storage.NoticeRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.NoticeRecord{}, err
	}
	receiverID = strings.TrimSpace(receiverID)
	noticeID = strings.TrimSpace(noticeID)
	if receiverID == "" {
		return storage.NoticeRecord{}, fmt.Errorf("receiver id is required")
	}
	if noticeID == "" {
		return storage.NoticeRecord{}, fmt.Errorf("notice id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notices SET is_read = 1 WHERE receiver_id = ? AND id = ?
`, receiverID, noticeID)
	if err != nil {
		return storage.NoticeRecord{}, fmt.Errorf("mark notice read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.NoticeRecord{}, fmt.Errorf("mark notice read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.NoticeRecord{}, storage.ErrNotFound
	}

	record, err := scanNotice(s.sqlDB.QueryRowContext(ctx, `
SELECT id, sender_id, receiver_id, notice_type, message, url, dedupe_key, is_read, created_at
FROM notices
WHERE receiver_id = ? AND id = ?
`, receiverID, noticeID).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NoticeRecord{}, storage.ErrNotFound
		}
		return storage.NoticeRecord{}, fmt.Errorf("get notice by id: %w", err)
	}
	return record, nil
}

func scanNotice(scan scanner) (storage.NoticeRecord, error) {
	var record storage.NoticeRecord
	var isRead int
	var createdAt int64
	if err := scan(
		&record.ID,
		&record.SenderID,
		&record.ReceiverID,
		&record.NoticeType,
		&record.Message,
		&record.URL,
		&record.DedupeKey,
		&isRead,
		&createdAt,
	); err != nil {
		return storage.NoticeRecord{}, err
	}
	record.IsRead = isRead != 0
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
