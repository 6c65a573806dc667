// Package storage defines persistence contracts for social service state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a set-membership insert found the entry
	// already present.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrConflict indicates a write collided with a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
)

// UserRecord stores one identity row. The friend and room caches live in
// their own membership tables and are loaded alongside the row.
type UserRecord struct {
	ID        string
	Handle    string
	UserName  string
	Friends   []string
	Rooms     []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RoomRecord stores one conversation room with its ordered member list.
type RoomRecord struct {
	ID          string
	Members     []string
	RoomName    string
	RoomIcon    string
	LastUpdated time.Time
	ReadState   map[string]time.Time
}

// NoticeRecord stores one append-only directed notice row.
type NoticeRecord struct {
	ID         string
	SenderID   string
	ReceiverID string
	NoticeType string
	Message    string
	URL        string
	DedupeKey  string
	IsRead     bool
	CreatedAt  time.Time
}

// UserStore persists identity rows and their membership caches.
type UserStore interface {
	PutUser(ctx context.Context, record UserRecord) error
	GetUser(ctx context.Context, userID string) (UserRecord, error)
	// PutFriend appends to the friend cache. The cache is owned by the
	// identity subsystem; this store only mirrors it.
	PutFriend(ctx context.Context, userID, friendUserID string, at time.Time) error
	// AddRoomMembership is an atomic add-to-set on the room cache. It
	// returns ErrAlreadyExists when the room is already cached, so two
	// concurrent writers to the same user's cache can never lose an entry.
	AddRoomMembership(ctx context.Context, userID, roomID string, at time.Time) error
	ListRoomMemberships(ctx context.Context, userID string) ([]string, error)
}

// RoomStore persists room documents.
type RoomStore interface {
	// UpsertRoom writes the room row idempotently. The row's existence is
	// unaffected by which concurrent creator wins; the last writer's field
	// values win.
	UpsertRoom(ctx context.Context, record RoomRecord) error
	GetRoom(ctx context.Context, roomID string) (RoomRecord, error)
	// ListRoomsByMember returns rooms containing the member ordered by
	// last_updated descending, truncated to limit.
	ListRoomsByMember(ctx context.Context, userID string, limit int) ([]RoomRecord, error)
	TouchRoom(ctx context.Context, roomID string, at time.Time) error
	SetReadState(ctx context.Context, roomID, userID string, at time.Time) error
}

// NoticeStore persists the append-only notice log.
type NoticeStore interface {
	// InsertNotice appends one notice. A non-empty dedupe key that is
	// already present yields ErrConflict without writing.
	InsertNotice(ctx context.Context, record NoticeRecord) error
	GetNoticeByDedupeKey(ctx context.Context, dedupeKey string) (NoticeRecord, error)
	// ExistsNotice reports whether a notice with exactly this type, sender
	// and receiver exists.
	ExistsNotice(ctx context.Context, noticeType, senderID, receiverID string) (bool, error)
	// ListNoticesByReceiver returns the receiver's notices newest first.
	ListNoticesByReceiver(ctx context.Context, receiverID string) ([]NoticeRecord, error)
	MarkNoticeRead(ctx context.Context, receiverID, noticeID string) (NoticeRecord, error)
}
