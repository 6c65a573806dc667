package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/sattsat-tdu/reportalk-core/internal/services/social/notices"
)

// noticeFrame is the wire shape of one arrival event.
type noticeFrame struct {
	Type   string       `json:"type"`
	Notice noticeFields `json:"notice"`
}

type noticeFields struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	NoticeType string    `json:"noticeType"`
	Message    string    `json:"message,omitempty"`
	URL        string    `json:"url,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	IsRead     bool      `json:"isRead"`
}

// Notifier keeps one notice feed alive per receiver that has connected
// clients and relays arrival events onto the hub.
type Notifier struct {
	svc *notices.Service
	hub *Hub

	mu    sync.Mutex
	feeds map[string]*notices.Feed
}

// NewNotifier constructs a notifier over the notice service. Bind must be
// called with the hub before clients connect.
func NewNotifier(svc *notices.Service) *Notifier {
	return &Notifier{
		svc:   svc,
		feeds: make(map[string]*notices.Feed),
	}
}

// Bind attaches the hub the notifier broadcasts through.
func (n *Notifier) Bind(hub *Hub) {
	n.hub = hub
}

// Hooks returns the occupancy hooks that drive feed lifecycle.
func (n *Notifier) Hooks() SubscriberHooks {
	return SubscriberHooks{
		FirstJoined: n.ensure,
		LastLeft:    n.release,
	}
}

// ensure starts the receiver's feed if it is not already running.
func (n *Notifier) ensure(receiverID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, running := n.feeds[receiverID]; running {
		return
	}

	sub, err := n.svc.SubscribeByReceiver(context.Background(), receiverID)
	if err != nil {
		log.Printf("subscribe notices for %s: %v", receiverID, err)
		return
	}
	feed := notices.NewFeed(receiverID, sub)
	n.feeds[receiverID] = feed
	go n.relay(feed)
}

// release stops the receiver's feed once its last client is gone.
func (n *Notifier) release(receiverID string) {
	n.mu.Lock()
	feed, running := n.feeds[receiverID]
	if running {
		delete(n.feeds, receiverID)
	}
	n.mu.Unlock()

	if running {
		feed.Close()
	}
}

// Close stops every running feed.
func (n *Notifier) Close() {
	n.mu.Lock()
	feeds := make([]*notices.Feed, 0, len(n.feeds))
	for receiverID, feed := range n.feeds {
		feeds = append(feeds, feed)
		delete(n.feeds, receiverID)
	}
	n.mu.Unlock()

	for _, feed := range feeds {
		feed.Close()
	}
}

func (n *Notifier) relay(feed *notices.Feed) {
	for event := range feed.Events() {
		frame := noticeFrame{
			Type: "newNotice",
			Notice: noticeFields{
				ID:         event.Notice.ID,
				SenderID:   event.Notice.SenderID,
				ReceiverID: event.Notice.ReceiverID,
				NoticeType: string(event.Notice.Kind),
				Message:    event.Notice.Message,
				URL:        event.Notice.URL,
				Timestamp:  event.Notice.Timestamp,
				IsRead:     event.Notice.IsRead,
			},
		}
		data, err := json.Marshal(frame)
		if err != nil {
			log.Printf("marshal notice frame: %v", err)
			continue
		}
		n.hub.Broadcast(event.ReceiverID, data)
	}
}
