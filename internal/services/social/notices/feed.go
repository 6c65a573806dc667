package notices

import (
	"github.com/sattsat-tdu/reportalk-core/internal/services/social/domain"
)

// NewNoticeEvent is emitted when a receiver's feed gains a new head notice.
type NewNoticeEvent struct {
	ReceiverID string
	Notice     domain.Notice
}

// diffTracker detects arrivals between consecutive feed snapshots by
// comparing head IDs. The first snapshot only primes the tracker, and a
// transition out of or into an empty feed is not an arrival.
type diffTracker struct {
	primed bool
	headID string
	empty  bool
}

// observe records the next snapshot and reports whether it represents a new
// head notice relative to the previous one.
func (t *diffTracker) observe(snapshot []domain.Notice) (domain.Notice, bool) {
	prevPrimed := t.primed
	prevHead := t.headID
	prevEmpty := t.empty

	t.primed = true
	if len(snapshot) == 0 {
		t.headID = ""
		t.empty = true
		return domain.Notice{}, false
	}
	t.headID = snapshot[0].ID
	t.empty = false

	if !prevPrimed || prevEmpty {
		return domain.Notice{}, false
	}
	if snapshot[0].ID == prevHead {
		return domain.Notice{}, false
	}
	return snapshot[0], true
}

// SnapshotSource is the subscription contract the feed consumes.
type SnapshotSource interface {
	Snapshots() <-chan []domain.Notice
	Cancel()
}

// Feed reduces one receiver's snapshot subscription to arrival events.
// Consumers that need the raw snapshots read the Subscription instead.
type Feed struct {
	receiverID string
	sub        SnapshotSource
	events     chan NewNoticeEvent
}

// NewFeed wraps an existing subscription. The feed owns the subscription
// and cancels it when closed.
func NewFeed(receiverID string, sub SnapshotSource) *Feed {
	f := &Feed{
		receiverID: receiverID,
		sub:        sub,
		events:     make(chan NewNoticeEvent, 1),
	}
	go f.run()
	return f
}

// Events returns the arrival-event channel. It closes when the feed closes.
func (f *Feed) Events() <-chan NewNoticeEvent {
	return f.events
}

// Close cancels the underlying subscription and ends the event stream.
func (f *Feed) Close() {
	f.sub.Cancel()
}

func (f *Feed) run() {
	defer close(f.events)

	var tracker diffTracker
	for snapshot := range f.sub.Snapshots() {
		notice, arrived := tracker.observe(snapshot)
		if !arrived {
			continue
		}
		// Coalesce arrival events the same way snapshots coalesce: an
		// unread event slot is replaced by the newer arrival. run is the
		// only writer, so the refill send cannot block.
		select {
		case f.events <- NewNoticeEvent{ReceiverID: f.receiverID, Notice: notice}:
		default:
			select {
			case <-f.events:
			default:
			}
			f.events <- NewNoticeEvent{ReceiverID: f.receiverID, Notice: notice}
		}
	}
}
