package telegram

import (
	"github.com/gotd/td/tgerr"
)

// forwardRestricted are the RPC error types that mean the source chat rejects
// native forwarding. Hitting one of them flips the chat into the sticky
// no-forward state for the rest of the process lifetime.
var forwardRestricted = []string{
	"CHAT_FORWARDS_RESTRICTED",
	"CHAT_ADMIN_REQUIRED",
	"CHANNEL_PRIVATE",
	"CHAT_WRITE_FORBIDDEN",
}

// topicAnchor are the RPC error types produced by the topic anchor of a
// forward request rather than by the forward itself. They warrant one retry
// without the topic.
var topicAnchor = []string{
	"TOPIC_CLOSED",
	"TOPIC_DELETED",
	"MSG_ID_INVALID",
}

// IsForwardRestricted reports whether err is a forwarding-restriction error.
func IsForwardRestricted(err error) bool {
	return tgerr.Is(err, forwardRestricted...)
}

// IsTopicAnchorError reports whether err relates to the target topic rather
// than the forwarded message.
func IsTopicAnchorError(err error) bool {
	return tgerr.Is(err, topicAnchor...)
}

// FloodWaitSeconds extracts the wait time from a FLOOD_WAIT error, or 0.
func FloodWaitSeconds(err error) int {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return int(d.Seconds())
	}
	return 0
}
