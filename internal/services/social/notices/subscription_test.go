package notices

import (
	"context"
	"testing"
	"time"

	"github.com/sattsat-tdu/reportalk-core/internal/services/social/domain"
)

const emissionWait = 2 * time.Second

func waitForSnapshot(t *testing.T, sub *Subscription) []domain.Notice {
	t.Helper()
	select {
	case snapshot, ok := <-sub.Snapshots():
		if !ok {
			t.Fatal("subscription closed before expected snapshot")
		}
		return snapshot
	case <-time.After(emissionWait):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestSubscribeByReceiver_DeliversBaselineThenUpdates(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 20, 16, 0, 0, 0, time.UTC)
	store := newFakeNoticeStore()
	svc := NewService(store, fixedClock(now), sequentialIDGenerator("n1", "n2"), nil)

	sub, err := svc.SubscribeByReceiver(context.Background(), "u2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	baseline := waitForSnapshot(t, sub)
	if len(baseline) != 0 {
		t.Fatalf("expected empty baseline, got %d notices", len(baseline))
	}

	if _, err := svc.SendFriendRequest(context.Background(), domain.User{ID: "u1", UserName: "Alice"}, "u2"); err != nil {
		t.Fatalf("send request: %v", err)
	}

	updated := waitForSnapshot(t, sub)
	if len(updated) != 1 || updated[0].ID != "n1" {
		t.Fatalf("expected snapshot with n1, got %+v", updated)
	}
}

func TestSubscription_CancelStopsEmissions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 20, 16, 0, 0, 0, time.UTC)
	store := newFakeNoticeStore()
	svc := NewService(store, fixedClock(now), sequentialIDGenerator("n1", "n2"), nil)

	sub, err := svc.SubscribeByReceiver(context.Background(), "u2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitForSnapshot(t, sub)

	sub.Cancel()
	// Cancel is idempotent.
	sub.Cancel()

	if _, err := svc.SendFriendRequest(context.Background(), domain.User{ID: "u1", UserName: "Alice"}, "u2"); err != nil {
		t.Fatalf("send request after cancel: %v", err)
	}

	deadline := time.After(emissionWait)
	for {
		select {
		case snapshot, ok := <-sub.Snapshots():
			if !ok {
				return
			}
			t.Fatalf("unexpected snapshot after cancel: %+v", snapshot)
		case <-deadline:
			t.Fatal("subscription channel never closed after cancel")
		}
	}
}

func TestSubscription_CoalescesWhenReaderIsSlow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 20, 16, 0, 0, 0, time.UTC)
	store := newFakeNoticeStore()
	svc := NewService(store, fixedClock(now),
		sequentialIDGenerator("n1", "n2", "n3", "n4"), nil)

	sub, err := svc.SubscribeByReceiver(context.Background(), "u2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()
	waitForSnapshot(t, sub)

	// Burst of writes while the reader is not draining: intermediate
	// snapshots may be dropped but the final state must arrive.
	for i, sender := range []string{"a", "b", "c", "d"} {
		notice := domain.Notice{
			SenderID:   sender,
			ReceiverID: "u2",
			Kind:       domain.KindAnnouncement,
			Message:    "hello",
			Timestamp:  now.Add(time.Duration(i) * time.Minute),
		}
		if _, err := svc.Append(context.Background(), notice); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	deadline := time.After(emissionWait)
	for {
		select {
		case snapshot, ok := <-sub.Snapshots():
			if !ok {
				t.Fatal("subscription closed before final snapshot")
			}
			if len(snapshot) == 4 {
				if snapshot[0].ID != "n4" {
					t.Fatalf("expected newest notice n4 first, got %s", snapshot[0].ID)
				}
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for final snapshot")
		}
	}
}

func TestSubscribeByReceiver_RequiresReceiver(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeNoticeStore(), nil, nil, nil)
	if _, err := svc.SubscribeByReceiver(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank receiver")
	}
}
