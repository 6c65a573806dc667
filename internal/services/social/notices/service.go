// Package notices owns the append-only notice log: friend requests,
// announcements, pending-request checks and the live receiver feed.
package notices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sattsat-tdu/reportalk-core/internal/platform/id"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/domain"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/render"
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/storage"
)

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("notice store is not configured")
	// ErrReceiverRequired indicates receiver identity is required.
	ErrReceiverRequired = errors.New("receiver id is required")
	// ErrSenderRequired indicates sender identity is required.
	ErrSenderRequired = errors.New("sender id is required")
)

// Service orchestrates the notice log and its live subscriptions.
type Service struct {
	store  storage.NoticeStore
	clock  func() time.Time
	newID  func() (string, error)
	loc    render.Localizer
	broker *broker
}

// NewService constructs the notice service. A nil clock uses time.Now, a
// nil newID uses the platform generator, and a nil localizer renders
// English copy.
func NewService(store storage.NoticeStore, clock func() time.Time, newID func() (string, error), loc render.Localizer) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	if loc == nil {
		loc = render.PrinterFor("en")
	}
	return &Service{
		store:  store,
		clock:  clock,
		newID:  newID,
		loc:    loc,
		broker: newBroker(),
	}
}

// Append stores one notice. A notice carrying a dedupe key that already
// exists returns the previously stored notice instead of a second row, so
// concurrent senders converge on one record.
func (s *Service) Append(ctx context.Context, notice domain.Notice) (domain.Notice, error) {
	if s == nil || s.store == nil {
		return domain.Notice{}, ErrStoreNotConfigured
	}
	notice.SenderID = strings.TrimSpace(notice.SenderID)
	notice.ReceiverID = strings.TrimSpace(notice.ReceiverID)
	if notice.SenderID == "" {
		return domain.Notice{}, ErrSenderRequired
	}
	if notice.ReceiverID == "" {
		return domain.Notice{}, ErrReceiverRequired
	}

	dedupeKey := ""
	if notice.Kind == domain.KindFriendRequest {
		dedupeKey = domain.FriendRequestDedupeKey(notice.SenderID, notice.ReceiverID)
	}

	if notice.ID == "" {
		noticeID, err := s.newID()
		if err != nil {
			return domain.Notice{}, fmt.Errorf("generate notice id: %w", err)
		}
		notice.ID = noticeID
	}
	if notice.Timestamp.IsZero() {
		notice.Timestamp = s.clock().UTC()
	}

	record := storage.NoticeRecord{
		ID:         notice.ID,
		SenderID:   notice.SenderID,
		ReceiverID: notice.ReceiverID,
		NoticeType: string(notice.Kind),
		Message:    notice.Message,
		URL:        notice.URL,
		DedupeKey:  dedupeKey,
		IsRead:     notice.IsRead,
		CreatedAt:  notice.Timestamp,
	}
	if err := s.store.InsertNotice(ctx, record); err != nil {
		if dedupeKey != "" && errors.Is(err, storage.ErrConflict) {
			existing, lookupErr := s.store.GetNoticeByDedupeKey(ctx, dedupeKey)
			if lookupErr == nil {
				return noticeFromRecord(existing), nil
			}
			if errors.Is(lookupErr, storage.ErrNotFound) {
				return domain.Notice{}, err
			}
			return domain.Notice{}, lookupErr
		}
		return domain.Notice{}, fmt.Errorf("append notice: %w", err)
	}

	s.publish(ctx, notice.ReceiverID)
	return notice, nil
}

// QueryPending reports whether a notice with exactly this kind, sender and
// receiver exists.
func (s *Service) QueryPending(ctx context.Context, kind domain.NoticeKind, senderID, receiverID string) (bool, error) {
	if s == nil || s.store == nil {
		return false, ErrStoreNotConfigured
	}
	return s.store.ExistsNotice(ctx, string(kind), senderID, receiverID)
}

// ListByReceiver returns the receiver's notices newest first.
func (s *Service) ListByReceiver(ctx context.Context, receiverID string) ([]domain.Notice, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" {
		return nil, ErrReceiverRequired
	}
	records, err := s.store.ListNoticesByReceiver(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("list notices for %s: %w", receiverID, err)
	}
	result := make([]domain.Notice, 0, len(records))
	for _, record := range records {
		result = append(result, noticeFromRecord(record))
	}
	return result, nil
}

// SendFriendRequest appends a friend-request notice from one user to
// another. The stored message is rendered with the service locale. Sending
// the same request twice returns the original notice.
func (s *Service) SendFriendRequest(ctx context.Context, from domain.User, toUserID string) (domain.Notice, error) {
	if s == nil || s.store == nil {
		return domain.Notice{}, ErrStoreNotConfigured
	}
	if strings.TrimSpace(from.ID) == "" {
		return domain.Notice{}, domain.ErrUserNotFound
	}
	toUserID = strings.TrimSpace(toUserID)
	if toUserID == "" {
		return domain.Notice{}, domain.ErrOtherUserNotFound
	}

	return s.Append(ctx, domain.Notice{
		SenderID:   from.ID,
		ReceiverID: toUserID,
		Kind:       domain.KindFriendRequest,
		Message:    render.FriendRequest(s.loc, from.UserName),
	})
}

// SendAnnouncement appends an announcement notice.
func (s *Service) SendAnnouncement(ctx context.Context, from domain.User, toUserID, body, url string) (domain.Notice, error) {
	if s == nil || s.store == nil {
		return domain.Notice{}, ErrStoreNotConfigured
	}
	if strings.TrimSpace(from.ID) == "" {
		return domain.Notice{}, domain.ErrUserNotFound
	}
	toUserID = strings.TrimSpace(toUserID)
	if toUserID == "" {
		return domain.Notice{}, domain.ErrOtherUserNotFound
	}

	return s.Append(ctx, domain.Notice{
		SenderID:   from.ID,
		ReceiverID: toUserID,
		Kind:       domain.KindAnnouncement,
		Message:    render.Announcement(s.loc, body),
		URL:        url,
	})
}

// MarkRead flips the read flag on one receiver-owned notice.
func (s *Service) MarkRead(ctx context.Context, receiverID, noticeID string) (domain.Notice, error) {
	if s == nil || s.store == nil {
		return domain.Notice{}, ErrStoreNotConfigured
	}
	record, err := s.store.MarkNoticeRead(ctx, receiverID, noticeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Notice{}, domain.ErrNoticeNotFound
		}
		return domain.Notice{}, fmt.Errorf("mark notice read: %w", err)
	}
	s.publish(ctx, receiverID)
	return noticeFromRecord(record), nil
}

// SubscribeByReceiver opens a live subscription to the receiver's notice
// feed. The current snapshot is delivered first as the baseline; every
// later write to the receiver's log triggers a fresh full snapshot. The
// subscription emits nothing after Cancel.
func (s *Service) SubscribeByReceiver(ctx context.Context, receiverID string) (*Subscription, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" {
		return nil, ErrReceiverRequired
	}

	sub := s.broker.subscribe(receiverID)
	snapshot, err := s.ListByReceiver(ctx, receiverID)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.deliver(snapshot)
	return sub, nil
}

// publish re-queries the receiver's feed and fans the fresh snapshot out to
// that receiver's subscribers. Publish failures are invisible to the
// writer; the next successful write supersedes the missed snapshot.
func (s *Service) publish(ctx context.Context, receiverID string) {
	if !s.broker.hasSubscribers(receiverID) {
		return
	}
	snapshot, err := s.ListByReceiver(ctx, receiverID)
	if err != nil {
		return
	}
	s.broker.publish(receiverID, snapshot)
}

func noticeFromRecord(record storage.NoticeRecord) domain.Notice {
	return domain.Notice{
		ID:         record.ID,
		SenderID:   record.SenderID,
		ReceiverID: record.ReceiverID,
		Kind:       domain.NoticeKind(record.NoticeType),
		Message:    record.Message,
		URL:        record.URL,
		Timestamp:  record.CreatedAt,
		IsRead:     record.IsRead,
	}
}
