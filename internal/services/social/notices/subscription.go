package notices

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sattsat-tdu/reportalk-core/internal/services/social/domain"
)

// broker fans notice snapshots out to per-receiver subscribers. Delivery
// coalesces: a subscriber that has not drained yet only sees the latest
// snapshot, never a backlog.
type broker struct {
	mu   sync.Mutex
	subs map[string]map[string]*Subscription
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[string]*Subscription)}
}

func (b *broker) subscribe(receiverID string) *Subscription {
	sub := &Subscription{
		broker:     b,
		receiverID: receiverID,
		key:        uuid.NewString(),
		out:        make(chan []domain.Notice),
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go sub.forward()

	b.mu.Lock()
	defer b.mu.Unlock()
	byKey, ok := b.subs[receiverID]
	if !ok {
		byKey = make(map[string]*Subscription)
		b.subs[receiverID] = byKey
	}
	byKey[sub.key] = sub
	return sub
}

func (b *broker) unsubscribe(receiverID, key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byKey, ok := b.subs[receiverID]
	if !ok {
		return
	}
	delete(byKey, key)
	if len(byKey) == 0 {
		delete(b.subs, receiverID)
	}
}

func (b *broker) hasSubscribers(receiverID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[receiverID]) > 0
}

func (b *broker) publish(receiverID string, snapshot []domain.Notice) {
	b.mu.Lock()
	targets := make([]*Subscription, 0, len(b.subs[receiverID]))
	for _, sub := range b.subs[receiverID] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		sub.deliver(snapshot)
	}
}

// Subscription is one live view onto a receiver's notice feed. Snapshots
// arrive on Snapshots; Cancel stops delivery and closes the channel.
type Subscription struct {
	broker     *broker
	receiverID string
	key        string
	out        chan []domain.Notice
	notify     chan struct{}
	done       chan struct{}
	once       sync.Once

	mu       sync.Mutex
	pending  []domain.Notice
	hasValue bool
	canceled bool
}

// Snapshots returns the channel carrying full feed snapshots, newest notice
// first. The channel closes after Cancel.
func (s *Subscription) Snapshots() <-chan []domain.Notice {
	return s.out
}

// Cancel detaches the subscription. No snapshot is staged afterwards.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.broker.unsubscribe(s.receiverID, s.key)
		s.mu.Lock()
		s.canceled = true
		s.pending = nil
		s.hasValue = false
		s.mu.Unlock()
		close(s.done)
	})
}

// deliver stages a snapshot for the forwarder. A snapshot staged before the
// previous one was consumed replaces it.
func (s *Subscription) deliver(snapshot []domain.Notice) {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	s.pending = snapshot
	s.hasValue = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// forward moves staged snapshots onto the output channel. It runs until
// Cancel, so a slow or absent reader never blocks publishers.
func (s *Subscription) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}
		for {
			s.mu.Lock()
			if s.canceled {
				s.mu.Unlock()
				return
			}
			if !s.hasValue {
				s.mu.Unlock()
				break
			}
			snapshot := s.pending
			s.pending = nil
			s.hasValue = false
			s.mu.Unlock()

			select {
			case s.out <- snapshot:
			case <-s.done:
				return
			}
		}
	}
}
