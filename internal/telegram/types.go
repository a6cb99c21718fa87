package telegram

import (
	"strconv"
	"strings"

	"github.com/gotd/td/tg"
)

// PeerKind distinguishes the three Telegram peer families.
type PeerKind int

// Peer kinds.
const (
	KindUser PeerKind = iota + 1
	KindChat
	KindChannel
)

// ChatInfo is the resolved metadata of a chat, group, channel or user.
// Instances are immutable once built; the entity cache never refreshes them.
type ChatInfo struct {
	ID         int64  // bare id, without any -100 marker
	AccessHash int64  // access hash for api calls
	Kind       PeerKind
	Title      string // display title (first+last name for users)
	Username   string // username without @, if any
	IsForum    bool   // forum-type supergroup
	IsChannel  bool   // channel or supergroup
	NoForwards bool   // protected content flag, forwarding disallowed
}

// InputPeer builds the tg input peer for API calls.
func (c *ChatInfo) InputPeer() tg.InputPeerClass {
	switch c.Kind {
	case KindUser:
		return &tg.InputPeerUser{UserID: c.ID, AccessHash: c.AccessHash}
	case KindChat:
		return &tg.InputPeerChat{ChatID: c.ID}
	default:
		return &tg.InputPeerChannel{ChannelID: c.ID, AccessHash: c.AccessHash}
	}
}

// InputChannel builds the tg input channel. Only valid for channel peers.
func (c *ChatInfo) InputChannel() *tg.InputChannel {
	return &tg.InputChannel{ChannelID: c.ID, AccessHash: c.AccessHash}
}

// Key returns the chat id in the marked string form used by rule files:
// "-100<id>" for channels, "-<id>" for basic groups, "<id>" for users.
func (c *ChatInfo) Key() string {
	switch c.Kind {
	case KindUser:
		return strconv.FormatInt(c.ID, 10)
	case KindChat:
		return "-" + strconv.FormatInt(c.ID, 10)
	default:
		return "-100" + strconv.FormatInt(c.ID, 10)
	}
}

// Topic represents a forum topic.
type Topic struct {
	ID    int    // topic id (the id of the topic-starter message)
	Title string // topic title
}

// ChatKey converts a message peer into the marked chat id string that rule
// lookups normalize against.
func ChatKey(peer tg.PeerClass) string {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return strconv.FormatInt(p.UserID, 10)
	case *tg.PeerChat:
		return "-" + strconv.FormatInt(p.ChatID, 10)
	case *tg.PeerChannel:
		return "-100" + strconv.FormatInt(p.ChannelID, 10)
	default:
		return ""
	}
}

// SenderID extracts the sending user's id from a message, or 0 when the
// sender is unknown (anonymous admins, channel posts).
func SenderID(msg *tg.Message) int64 {
	if from, ok := msg.FromID.(*tg.PeerUser); ok {
		return from.UserID
	}
	// in private chats incoming messages carry no FromID; the peer is the sender
	if user, ok := msg.PeerID.(*tg.PeerUser); ok && !msg.Out {
		return user.UserID
	}
	return 0
}

// bareID parses a marked chat id string ("-100123", "-123", "123", "@name")
// into its numeric id and likely peer kind. ok is false for usernames.
func bareID(ref string) (id int64, kind PeerKind, ok bool) {
	switch {
	case strings.HasPrefix(ref, "-100"):
		id, err := strconv.ParseInt(ref[4:], 10, 64)
		return id, KindChannel, err == nil
	case strings.HasPrefix(ref, "-"):
		id, err := strconv.ParseInt(ref[1:], 10, 64)
		return id, KindChat, err == nil
	default:
		id, err := strconv.ParseInt(ref, 10, 64)
		return id, KindUser, err == nil
	}
}
