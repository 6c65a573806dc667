package domain

import (
	"context"
	"errors"
	"strings"
)

// RelationshipState is one terminal label of the viewer-to-subject state
// machine. States are recomputed on demand and never persisted.
type RelationshipState string

const (
	// StateSelfProfile means the subject is the viewer.
	StateSelfProfile RelationshipState = "selfProfile"
	// StateFriend means the subject is in the viewer's friend list.
	StateFriend RelationshipState = "friend"
	// StatePendingRequestSent means the viewer sent a friend request that
	// is still pending.
	StatePendingRequestSent RelationshipState = "pendingRequestSent"
	// StatePendingRequestReceived means the subject sent the viewer a
	// friend request that is still pending.
	StatePendingRequestReceived RelationshipState = "pendingRequestReceived"
	// StateStranger means no relationship exists in either direction.
	StateStranger RelationshipState = "stranger"
)

// ErrResolverNotConfigured indicates the resolver is missing a collaborator.
var ErrResolverNotConfigured = errors.New("relationship resolver is not configured")

// UserLoader loads one identity record by user ID.
type UserLoader interface {
	GetUser(ctx context.Context, userID string) (User, error)
}

// PendingChecker reports whether a notice with exactly the given kind,
// sender and receiver exists.
type PendingChecker interface {
	QueryPending(ctx context.Context, kind NoticeKind, senderID, receiverID string) (bool, error)
}

// Resolver derives the relationship state for a (viewer, subject) pair from
// the viewer's friend cache and the pending-notice log.
type Resolver struct {
	users   UserLoader
	pending PendingChecker
}

// NewResolver constructs a relationship resolver.
func NewResolver(users UserLoader, pending PendingChecker) *Resolver {
	return &Resolver{users: users, pending: pending}
}

// Resolve returns the relationship state of subject as seen by viewerID.
//
// Friendship is checked before pending-request state so that an accepted
// request whose notice was never cleared does not still display as pending.
func (r *Resolver) Resolve(ctx context.Context, viewerID string, subject User) (RelationshipState, error) {
	if r == nil || r.users == nil || r.pending == nil {
		return "", ErrResolverNotConfigured
	}
	viewerID = strings.TrimSpace(viewerID)
	if viewerID == "" {
		return "", ErrUserNotFound
	}
	if subject.ID == "" {
		return "", ErrOtherUserNotFound
	}
	if subject.ID == viewerID {
		return StateSelfProfile, nil
	}

	viewer, err := r.users.GetUser(ctx, viewerID)
	if err != nil {
		return "", err
	}
	if viewer.HasFriend(subject.ID) {
		return StateFriend, nil
	}

	sent, err := r.pending.QueryPending(ctx, KindFriendRequest, viewerID, subject.ID)
	if err != nil {
		return "", err
	}
	if sent {
		return StatePendingRequestSent, nil
	}

	received, err := r.pending.QueryPending(ctx, KindFriendRequest, subject.ID, viewerID)
	if err != nil {
		return "", err
	}
	if received {
		return StatePendingRequestReceived, nil
	}
	return StateStranger, nil
}
