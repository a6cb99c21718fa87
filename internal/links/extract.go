// Package links extracts t.me message links from text and resolves the
// messages they point at.
package links

import (
	"regexp"
	"strconv"
)

// linkPattern matches Telegram message links:
//
//	https://t.me/c/1234567890/12345        private/channel message
//	https://t.me/username/12345            public channel/group message
//	https://t.me/c/1234567890/12345/678    topic message
var linkPattern = regexp.MustCompile(`https?://t\.me/(?:c/(\d+)|([^/]+))/(\d+)(?:/(\d+))?`)

// Link is one extracted message reference.
type Link struct {
	FullMatch string // the original substring, kept for attribution
	ChatRef   string // numeric chat id (from /c/ links) or username
	Numeric   bool   // true when ChatRef is a numeric id
	MessageID int
	TopicID   int // 0 when the link carries no topic
}

// Extract returns all message links found in text, in order of appearance.
func Extract(text string) []Link {
	if text == "" {
		return nil
	}

	var links []Link
	for _, m := range linkPattern.FindAllStringSubmatch(text, -1) {
		chatID, username, msgID, topicID := m[1], m[2], m[3], m[4]

		id, err := strconv.Atoi(msgID)
		if err != nil {
			continue
		}

		link := Link{
			FullMatch: m[0],
			MessageID: id,
		}

		if chatID != "" {
			link.ChatRef = chatID
			link.Numeric = true
		} else {
			link.ChatRef = username
		}

		if topicID != "" {
			if tid, err := strconv.Atoi(topicID); err == nil {
				link.TopicID = tid
			}
		}

		links = append(links, link)
	}

	return links
}
