// Package render produces localized user-facing notice copy. The rendered
// text is denormalized onto the notice record at send time.
package render

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	defaultFriendRequestBody = "You have a friend request from \"%s\"."
	defaultAnnouncementBody  = "You have a new announcement."
)

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// PrinterFor returns a localizer for the given BCP 47 locale tag. Locales
// without a registered catalog fall back to English.
func PrinterFor(locale string) *message.Printer {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return message.NewPrinter(language.English)
	}
	base, _ := tag.Base()
	if base.String() == "ja" {
		return message.NewPrinter(language.Japanese)
	}
	return message.NewPrinter(language.English)
}

// FriendRequest returns the localized friend-request notice body for a
// sender display name.
func FriendRequest(loc Localizer, senderName string) string {
	return localizeWithFallback(loc, "notice.friend_request.body",
		defaultFriendRequestBody, senderName)
}

// Announcement returns the message for an announcement notice. Callers may
// supply their own text; the localized generic body covers an empty one.
func Announcement(loc Localizer, body string) string {
	if value := strings.TrimSpace(body); value != "" {
		return value
	}
	return localizeWithFallback(loc, "notice.announcement.body", defaultAnnouncementBody)
}

func localize(loc Localizer, key message.Reference, args ...any) string {
	if loc == nil {
		if asString, ok := key.(string); ok {
			return asString
		}
		return ""
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key string, fallback string, args ...any) string {
	value := strings.TrimSpace(localize(loc, key, args...))
	if value == "" || value == key {
		return message.NewPrinter(language.English).Sprintf(fallback, args...)
	}
	return value
}
