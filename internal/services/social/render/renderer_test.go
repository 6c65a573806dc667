package render

import (
	"strings"
	"testing"
)

func TestFriendRequest_LocalizedCopy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		locale string
		sender string
		want   string
	}{
		{
			name:   "english",
			locale: "en",
			sender: "Alice",
			want:   `You have a friend request from "Alice".`,
		},
		{
			name:   "japanese",
			locale: "ja",
			sender: "Alice",
			want:   "「Alice」から友達申請が届いています",
		},
		{
			name:   "japanese regional variant",
			locale: "ja-JP",
			sender: "Alice",
			want:   "「Alice」から友達申請が届いています",
		},
		{
			name:   "unknown locale falls back to english",
			locale: "xx-YY",
			sender: "Alice",
			want:   `You have a friend request from "Alice".`,
		},
		{
			name:   "unparseable locale falls back to english",
			locale: "???",
			sender: "Alice",
			want:   `You have a friend request from "Alice".`,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := FriendRequest(PrinterFor(tc.locale), tc.sender)
			if got != tc.want {
				t.Fatalf("FriendRequest(%q) = %q, want %q", tc.locale, got, tc.want)
			}
		})
	}
}

func TestAnnouncement_KeepsCallerText(t *testing.T) {
	t.Parallel()

	loc := PrinterFor("ja")
	if got := Announcement(loc, "メンテナンスのお知らせ"); got != "メンテナンスのお知らせ" {
		t.Fatalf("expected caller text kept, got %q", got)
	}
	if got := Announcement(loc, "  "); got != "新しいお知らせがあります" {
		t.Fatalf("expected localized generic body, got %q", got)
	}
	if got := Announcement(PrinterFor("en"), ""); got != "You have a new announcement." {
		t.Fatalf("expected english generic body, got %q", got)
	}
}

func TestFriendRequest_NilLocalizerStillRenders(t *testing.T) {
	t.Parallel()

	got := FriendRequest(nil, "Alice")
	if !strings.Contains(got, "Alice") {
		t.Fatalf("expected sender name in message, got %q", got)
	}
}
