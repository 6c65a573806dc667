package domain

import (
	"sort"
	"strings"
	"time"
)

// Room is one conversation room document.
type Room struct {
	ID       string
	Members  []string
	RoomName string
	RoomIcon string
	// LastUpdated advances on every delivered message and on explicit
	// touch operations.
	LastUpdated time.Time
	// ReadState maps member user ID to the time that member last read
	// the room.
	ReadState map[string]time.Time
}

// DirectRoomID derives the identifier of the 1:1 room between two users.
// The pair is sorted first, so the identifier is independent of which
// side initiates the chat.
func DirectRoomID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}
