package render

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func init() {
	lang := language.Japanese

	message.SetString(lang, "notice.friend_request.body", "「%s」から友達申請が届いています")
	message.SetString(lang, "notice.announcement.body", "新しいお知らせがあります")
}
