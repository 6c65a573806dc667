// Package ws streams notice arrival events to connected clients over
// WebSocket, fanned out per receiver.
package ws

import (
	"context"
	"sync"
)

// SubscriberHooks observe receiver occupancy transitions. FirstJoined fires
// when a receiver gains its first client and LastLeft when it loses its
// last one, so upstream feeds run only while someone is listening.
type SubscriberHooks struct {
	FirstJoined func(receiverID string)
	LastLeft    func(receiverID string)
}

type broadcast struct {
	receiverID string
	data       []byte
}

// Hub tracks connected clients keyed by receiver and fans broadcast frames
// out to them. All membership mutation happens on the Run goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcasts chan broadcast
	hooks      SubscriberHooks

	mu      sync.RWMutex
	clients map[string]map[*Client]bool
}

// NewHub constructs a hub. Hooks may be zero-valued.
func NewHub(hooks SubscriberHooks) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcasts: make(chan broadcast, 16),
		hooks:      hooks,
		clients:    make(map[string]map[*Client]bool),
	}
}

// Run processes registration and broadcast traffic until ctx is done. On
// shutdown every client send channel is closed, which ends the write pumps.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case msg := <-h.broadcasts:
			h.fanOut(msg)
		}
	}
}

// Broadcast queues one frame for every client of the receiver. Frames are
// dropped when the hub queue is full rather than blocking the publisher.
func (h *Hub) Broadcast(receiverID string, data []byte) {
	select {
	case h.broadcasts <- broadcast{receiverID: receiverID, data: data}:
	default:
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	byReceiver, ok := h.clients[client.receiverID]
	if !ok {
		byReceiver = make(map[*Client]bool)
		h.clients[client.receiverID] = byReceiver
	}
	first := len(byReceiver) == 0
	byReceiver[client] = true
	h.mu.Unlock()

	if first && h.hooks.FirstJoined != nil {
		h.hooks.FirstJoined(client.receiverID)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	byReceiver, ok := h.clients[client.receiverID]
	if ok {
		if _, present := byReceiver[client]; present {
			delete(byReceiver, client)
			close(client.send)
		}
		if len(byReceiver) == 0 {
			delete(h.clients, client.receiverID)
		}
	}
	last := ok && len(byReceiver) == 0
	h.mu.Unlock()

	if last && h.hooks.LastLeft != nil {
		h.hooks.LastLeft(client.receiverID)
	}
}

func (h *Hub) fanOut(msg broadcast) {
	h.mu.RLock()
	stalled := make([]*Client, 0)
	for client := range h.clients[msg.receiverID] {
		select {
		case client.send <- msg.data:
		default:
			stalled = append(stalled, client)
		}
	}
	h.mu.RUnlock()

	// A client that cannot keep up is dropped instead of backpressuring
	// the rest of the receiver's fan-out.
	for _, client := range stalled {
		h.remove(client)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for receiverID, byReceiver := range h.clients {
		for client := range byReceiver {
			close(client.send)
		}
		delete(h.clients, receiverID)
	}
}
