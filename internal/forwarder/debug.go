package forwarder

import (
	"fmt"
	"strings"

	"github.com/celestix/gotgproto/dispatcher"
	"github.com/celestix/gotgproto/ext"
	"github.com/gotd/td/tg"

	"github.com/DimaPhil/telegram-forwarder/internal/links"
	"github.com/DimaPhil/telegram-forwarder/internal/telegram"
)

// debugTopic implements the /debugtopic command: replying to a forwarded
// message with it in a private chat dumps every piece of topic and link
// evidence the pipeline would see. Rule-authoring aid, not part of the
// forwarding path.
func (p *Pipeline) debugTopic(ctx *ext.Context, update *ext.Update) error {
	msg := update.EffectiveMessage
	if msg == nil || msg.Message == nil {
		return nil
	}
	raw := msg.Message

	// private chats only
	if _, ok := raw.PeerID.(*tg.PeerUser); !ok {
		return nil
	}

	var b strings.Builder
	b.WriteString("Debug topic information:\n\n")
	fmt.Fprintf(&b, "Message ID: %d\n", raw.ID)
	fmt.Fprintf(&b, "Chat ID: %s\n", telegram.ChatKey(raw.PeerID))
	fmt.Fprintf(&b, "Sender ID: %d\n", telegram.SenderID(raw))

	if hdr, ok := raw.ReplyTo.(*tg.MessageReplyHeader); ok {
		fmt.Fprintf(&b, "\nReply header:\n")
		fmt.Fprintf(&b, "  forum_topic: %v\n", hdr.ForumTopic)
		fmt.Fprintf(&b, "  reply_to_msg_id: %d\n", hdr.ReplyToMsgID)
		fmt.Fprintf(&b, "  top_msg_id: %d\n", hdr.ReplyToTopID)
	} else {
		b.WriteString("\nNo reply header.\n")
	}

	if topicID := p.topics.Resolve(ctx, telegram.ChatKey(raw.PeerID), raw); topicID != nil {
		name := p.entities.TopicName(ctx, telegram.ChatKey(raw.PeerID), *topicID)
		fmt.Fprintf(&b, "\nResolved topic: %d (%s)\n", *topicID, name)
	} else {
		b.WriteString("\nResolved topic: none\n")
	}

	extracted := links.Extract(raw.Message)
	fmt.Fprintf(&b, "\nMessage links found: %d\n", len(extracted))
	for _, link := range extracted {
		linked, err := p.links.Fetch(ctx, link)
		switch {
		case err != nil:
			fmt.Fprintf(&b, "  %s -> unresolved (%v)\n", link.FullMatch, err)
		case linked.Message != "":
			fmt.Fprintf(&b, "  %s -> resolved, %d chars of text\n", link.FullMatch, len(linked.Message))
		default:
			fmt.Fprintf(&b, "  %s -> resolved, no text\n", link.FullMatch)
		}
	}

	if _, err := ctx.Reply(update, ext.ReplyTextString(b.String()), nil); err != nil {
		p.log.Error().Err(err).Msg("pipeline: failed to send debug reply")
	}

	return dispatcher.EndGroups
}
