package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.English

	message.SetString(lang, "notice.friend_request.body", defaultFriendRequestBody)
	message.SetString(lang, "notice.announcement.body", defaultAnnouncementBody)
}
