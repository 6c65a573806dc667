package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeUserLoader struct {
	users map[string]User
}

func (l fakeUserLoader) GetUser(_ context.Context, userID string) (User, error) {
	user, ok := l.users[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

type fakePendingChecker struct {
	pending map[string]bool
	err     error
}

func (c fakePendingChecker) QueryPending(_ context.Context, kind NoticeKind, senderID, receiverID string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return c.pending[fmt.Sprintf("%s|%s|%s", kind, senderID, receiverID)], nil
}

func pendingKey(kind NoticeKind, senderID, receiverID string) string {
	return fmt.Sprintf("%s|%s|%s", kind, senderID, receiverID)
}

func TestResolve_StatePrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		viewer  User
		subject User
		pending map[string]bool
		want    RelationshipState
	}{
		{
			name:    "viewing own profile",
			viewer:  User{ID: "u1"},
			subject: User{ID: "u1"},
			want:    StateSelfProfile,
		},
		{
			name:    "friend",
			viewer:  User{ID: "u1", Friends: []string{"u2"}},
			subject: User{ID: "u2"},
			want:    StateFriend,
		},
		{
			name:    "viewer sent a pending request",
			viewer:  User{ID: "u1"},
			subject: User{ID: "u2"},
			pending: map[string]bool{pendingKey(KindFriendRequest, "u1", "u2"): true},
			want:    StatePendingRequestSent,
		},
		{
			name:    "subject sent the viewer a pending request",
			viewer:  User{ID: "u1"},
			subject: User{ID: "u2"},
			pending: map[string]bool{pendingKey(KindFriendRequest, "u2", "u1"): true},
			want:    StatePendingRequestReceived,
		},
		{
			name:    "no relationship",
			viewer:  User{ID: "u1"},
			subject: User{ID: "u2"},
			want:    StateStranger,
		},
		{
			name:    "friendship masks a stale request notice",
			viewer:  User{ID: "u1", Friends: []string{"u2"}},
			subject: User{ID: "u2"},
			pending: map[string]bool{pendingKey(KindFriendRequest, "u1", "u2"): true},
			want:    StateFriend,
		},
		{
			name:    "sent wins over received when both pend",
			viewer:  User{ID: "u1"},
			subject: User{ID: "u2"},
			pending: map[string]bool{
				pendingKey(KindFriendRequest, "u1", "u2"): true,
				pendingKey(KindFriendRequest, "u2", "u1"): true,
			},
			want: StatePendingRequestSent,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resolver := NewResolver(
				fakeUserLoader{users: map[string]User{tc.viewer.ID: tc.viewer}},
				fakePendingChecker{pending: tc.pending},
			)
			got, err := resolver.Resolve(context.Background(), tc.viewer.ID, tc.subject)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != tc.want {
				t.Fatalf("resolve state = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolve_RequiresIdentities(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(fakeUserLoader{}, fakePendingChecker{})

	if _, err := resolver.Resolve(context.Background(), "  ", User{ID: "u2"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for blank viewer, got %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), "u1", User{}); !errors.Is(err, ErrOtherUserNotFound) {
		t.Fatalf("expected ErrOtherUserNotFound for blank subject, got %v", err)
	}
}

func TestResolve_PropagatesCollaboratorErrors(t *testing.T) {
	t.Parallel()

	pendingErr := errors.New("pending lookup failed")
	resolver := NewResolver(
		fakeUserLoader{users: map[string]User{"u1": {ID: "u1"}}},
		fakePendingChecker{err: pendingErr},
	)

	if _, err := resolver.Resolve(context.Background(), "u1", User{ID: "u2"}); !errors.Is(err, pendingErr) {
		t.Fatalf("expected pending error, got %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), "missing", User{ID: "u2"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for missing viewer, got %v", err)
	}
}

func TestResolve_NilResolver(t *testing.T) {
	t.Parallel()

	var resolver *Resolver
	if _, err := resolver.Resolve(context.Background(), "u1", User{ID: "u2"}); !errors.Is(err, ErrResolverNotConfigured) {
		t.Fatalf("expected ErrResolverNotConfigured, got %v", err)
	}
}

func TestFriendRequestDedupeKey_DirectionMatters(t *testing.T) {
	t.Parallel()

	forward := FriendRequestDedupeKey("u1", "u2")
	backward := FriendRequestDedupeKey("u2", "u1")
	if forward == backward {
		t.Fatalf("expected direction-sensitive keys, both were %q", forward)
	}
	if forward != "friend_request:u1:u2" {
		t.Fatalf("unexpected key %q", forward)
	}
}
