// Package rooms provides deterministic addressing and idempotent creation
// of conversation rooms, plus the per-user membership cache updates.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sattsat-tdu/reportalk-core/internal/services/social/domain"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/storage"
)

// DefaultRecentRoomsLimit bounds the recent-rooms listing when the caller
// does not provide a limit.
const DefaultRecentRoomsLimit = 10

// ErrDirectoryNotConfigured indicates the directory is missing store wiring.
var ErrDirectoryNotConfigured = errors.New("room directory is not configured")

// Directory owns room documents and writes the per-user room caches.
type Directory struct {
	rooms storage.RoomStore
	users storage.UserStore
	clock func() time.Time
}

// NewDirectory constructs a room directory over the given stores.
func NewDirectory(rooms storage.RoomStore, users storage.UserStore, clock func() time.Time) *Directory {
	if clock == nil {
		clock = time.Now
	}
	return &Directory{rooms: rooms, users: users, clock: clock}
}

// FetchRoom loads one room by ID. A missing room maps to ErrRoomNotFound.
func (d *Directory) FetchRoom(ctx context.Context, roomID string) (domain.Room, error) {
	if d == nil || d.rooms == nil {
		return domain.Room{}, ErrDirectoryNotConfigured
	}
	record, err := d.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Room{}, domain.ErrRoomNotFound
		}
		return domain.Room{}, fmt.Errorf("%w: fetch room %s: %v", domain.ErrUnknown, roomID, err)
	}
	return roomFromRecord(record), nil
}

// FetchRecentRooms returns the viewer's rooms ordered by last activity,
// newest first. The result is a snapshot taken at call time.
func (d *Directory) FetchRecentRooms(ctx context.Context, viewerID string, limit int) ([]domain.Room, error) {
	if d == nil || d.rooms == nil {
		return nil, ErrDirectoryNotConfigured
	}
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return nil, domain.ErrUserNotFound
	}
	if limit <= 0 {
		limit = DefaultRecentRoomsLimit
	}
	records, err := d.rooms.ListRoomsByMember(ctx, viewerID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list rooms for %s: %v", domain.ErrRoomsFetchFailed, viewerID, err)
	}
	result := make([]domain.Room, 0, len(records))
	for _, record := range records {
		result = append(result, roomFromRecord(record))
	}
	return result, nil
}

// FetchOrCreateDirectRoom returns the 1:1 room between viewer and partner,
// creating it on first use.
//
// The room row upsert and the two membership-cache appends are three
// independent writes with no transactional envelope. Each step is
// idempotent, so a partially-failed call is safe to retry: the room row
// survives and re-appending an existing membership is a no-op.
func (d *Directory) FetchOrCreateDirectRoom(ctx context.Context, viewer, partner domain.User) (domain.Room, error) {
	if d == nil || d.rooms == nil || d.users == nil {
		return domain.Room{}, ErrDirectoryNotConfigured
	}
	if strings.TrimSpace(viewer.ID) == "" {
		return domain.Room{}, domain.ErrUserNotFound
	}
	if strings.TrimSpace(partner.ID) == "" {
		return domain.Room{}, domain.ErrOtherUserNotFound
	}

	roomID := domain.DirectRoomID(viewer.ID, partner.ID)
	if viewer.HasRoom(roomID) {
		// The cached membership may dangle if the room row was lost;
		// that is surfaced as ErrRoomNotFound, not silently repaired.
		return d.FetchRoom(ctx, roomID)
	}

	now := d.clock().UTC()
	record := storage.RoomRecord{
		ID:          roomID,
		Members:     []string{viewer.ID, partner.ID},
		LastUpdated: now,
	}
	if err := d.rooms.UpsertRoom(ctx, record); err != nil {
		return domain.Room{}, fmt.Errorf("%w: create room %s: %v", domain.ErrUnknown, roomID, err)
	}

	for _, memberID := range []string{viewer.ID, partner.ID} {
		if err := d.AddMembership(ctx, memberID, roomID); err != nil {
			// Already cached means nothing to do; the creation flow
			// must not abort on it.
			if errors.Is(err, domain.ErrAlreadyExists) {
				continue
			}
			return domain.Room{}, err
		}
	}
	return roomFromRecord(record), nil
}

// AddMembership appends roomID to the user's room cache. A duplicate append
// returns ErrAlreadyExists, which callers treat as success-shaped.
func (d *Directory) AddMembership(ctx context.Context, userID, roomID string) error {
	if d == nil || d.users == nil {
		return ErrDirectoryNotConfigured
	}
	err := d.users.AddRoomMembership(ctx, userID, roomID, d.clock().UTC())
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrAlreadyExists) {
		return domain.ErrAlreadyExists
	}
	return fmt.Errorf("%w: append room %s to %s: %v", domain.ErrUpdateFailed, roomID, userID, err)
}

// TouchLastUpdated advances the room's last_updated timestamp. The
// messaging collaborator calls this after every delivered message.
func (d *Directory) TouchLastUpdated(ctx context.Context, roomID string) error {
	if d == nil || d.rooms == nil {
		return ErrDirectoryNotConfigured
	}
	if err := d.rooms.TouchRoom(ctx, roomID, d.clock().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.ErrRoomNotFound
		}
		return fmt.Errorf("%w: touch room %s: %v", domain.ErrUpdateFailed, roomID, err)
	}
	return nil
}

// MarkRoomRead records that the user has read the room up to now.
func (d *Directory) MarkRoomRead(ctx context.Context, roomID, userID string) error {
	if d == nil || d.rooms == nil {
		return ErrDirectoryNotConfigured
	}
	if err := d.rooms.SetReadState(ctx, roomID, userID, d.clock().UTC()); err != nil {
		return fmt.Errorf("%w: mark room %s read for %s: %v", domain.ErrUpdateFailed, roomID, userID, err)
	}
	return nil
}

func roomFromRecord(record storage.RoomRecord) domain.Room {
	return domain.Room{
		ID:          record.ID,
		Members:     record.Members,
		RoomName:    record.RoomName,
		RoomIcon:    record.RoomIcon,
		LastUpdated: record.LastUpdated,
		ReadState:   record.ReadState,
	}
}
