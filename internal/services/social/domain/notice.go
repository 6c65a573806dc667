package domain

import (
	"fmt"
	"time"
)

// NoticeKind identifies one directed notice type. The string values are
// contractual wire tokens.
type NoticeKind string

const (
	// KindAnnouncement is a one-way informational notice.
	KindAnnouncement NoticeKind = "announcement"
	// KindFriendRequest is a pending friend request notice.
	KindFriendRequest NoticeKind = "friendRequest"
)

// Notice is one append-only directed notice record. Only IsRead is ever
// mutated after creation.
type Notice struct {
	ID         string
	SenderID   string
	ReceiverID string
	Kind       NoticeKind
	Message    string
	URL        string
	Timestamp  time.Time
	IsRead     bool
}

// FriendRequestDedupeKey returns the uniqueness key enforcing at most one
// pending friend-request notice per ordered (sender, receiver) pair.
func FriendRequestDedupeKey(senderID, receiverID string) string {
	return fmt.Sprintf("friend_request:%s:%s", senderID, receiverID)
}
