// Package format renders enrichment blocks and the final outgoing payload of
// a reconstructed forward.
package format

import (
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/DimaPhil/telegram-forwarder/internal/telegram"
)

// SecondaryKind tells how a secondary message relates to the forwarded one.
type SecondaryKind int

// Secondary message kinds.
const (
	KindPlain SecondaryKind = iota
	KindReply
	KindLinked
)

// Secondary is a rendered-to-be enrichment block: a replied-to or linked
// message attached to the forwarded content.
type Secondary struct {
	Kind     SecondaryKind
	URL      string // the original link, for linked messages
	Sender   *tg.User
	SenderID int64 // 0 when unknown
	Text     string
	Media    tg.MessageMediaClass
}

// Render builds the block's text: "{prefix}{sender}: {body}".
func (s Secondary) Render() string {
	var prefix string
	switch s.Kind {
	case KindReply:
		prefix = "⤴️ In reply to:\n"
	case KindLinked:
		prefix = fmt.Sprintf("🔗 Linked message: %s\n", s.URL)
	}
	return prefix + SenderDisplay(s.Sender, s.SenderID) + ": " + Body(s.Text, s.Media)
}

// SenderDisplay renders a user as "First Last (@username)", degrading to
// "User {id}" and finally "Unknown User" when nothing better is known.
func SenderDisplay(user *tg.User, senderID int64) string {
	if user != nil {
		name := user.FirstName
		if user.LastName != "" {
			if name != "" {
				name += " "
			}
			name += user.LastName
		}
		if user.Username != "" {
			if name != "" {
				name += fmt.Sprintf(" (@%s)", user.Username)
			} else {
				name = fmt.Sprintf("@%s", user.Username)
			}
		}
		if name != "" {
			return name
		}
		if user.ID != 0 {
			return fmt.Sprintf("User %d", user.ID)
		}
	}
	if senderID != 0 {
		return fmt.Sprintf("User %d", senderID)
	}
	return "Unknown User"
}

// Body resolves the display body of a message: its text, a media placeholder,
// or the empty-message placeholder.
func Body(text string, media tg.MessageMediaClass) string {
	if text != "" {
		return text
	}
	if media != nil {
		return fmt.Sprintf("[Message with %s]", telegram.MediaTypeName(media))
	}
	return "[Empty message]"
}

// SourceHeader renders the source attribution line of a reconstructed
// forward. topicName may be empty.
func SourceHeader(chatTitle, topicName string) string {
	header := "📨 Forwarded from: " + chatTitle
	if topicName != "" {
		header += " | " + topicName
	}
	return header
}

// Outgoing is the fully prepared payload of a reconstructed forward.
type Outgoing struct {
	Text       string
	Media      tg.MessageMediaClass   // primary media, nil if absent or a link preview
	ExtraMedia []tg.MessageMediaClass // enrichment media, sent as follow-ups
}

// PrepareOutgoing assembles the outgoing text from the source header, the
// message body and the enrichment blocks, and splits media into the primary
// attachment and follow-up sends. Link previews are never re-attached.
func PrepareOutgoing(text string, media tg.MessageMediaClass, sourceHeader string, includeSource bool, blocks []Secondary) Outgoing {
	var parts []string

	if includeSource && sourceHeader != "" {
		parts = append(parts, sourceHeader)
	}
	parts = append(parts, Body(text, media))

	for _, b := range blocks {
		parts = append(parts, b.Render())
	}

	out := Outgoing{Text: strings.Join(parts, "\n\n")}

	if media != nil && !telegram.IsLinkPreview(media) {
		out.Media = media
	}
	for _, b := range blocks {
		if b.Media != nil && !telegram.IsLinkPreview(b.Media) {
			out.ExtraMedia = append(out.ExtraMedia, b.Media)
		}
	}

	return out
}
