package forwarder

import (
	"context"

	"github.com/gotd/td/tg"

	"github.com/DimaPhil/telegram-forwarder/internal/format"
	"github.com/DimaPhil/telegram-forwarder/internal/links"
	"github.com/DimaPhil/telegram-forwarder/internal/logger"
	"github.com/DimaPhil/telegram-forwarder/internal/rules"
	"github.com/DimaPhil/telegram-forwarder/internal/telegram"
	"github.com/DimaPhil/telegram-forwarder/internal/topic"
)

// Pipeline processes one inbound message end to end: topic detection, rule
// matching, enrichment collection and delivery.
type Pipeline struct {
	transport Transport
	entities  Entities
	matcher   *rules.Matcher
	topics    TopicResolver
	links     LinkResolver
	exec      *Executor
	log       *logger.Logger
}

// NewPipeline wires the pipeline components together.
func NewPipeline(transport Transport, entities Entities, matcher *rules.Matcher, topics TopicResolver, linkResolver LinkResolver) *Pipeline {
	return &Pipeline{
		transport: transport,
		entities:  entities,
		matcher:   matcher,
		topics:    topics,
		links:     linkResolver,
		exec:      NewExecutor(transport, entities),
		log:       logger.Get(),
	}
}

// Process handles one inbound message. Every failure degrades the result
// rather than aborting: delivery is best-effort per target and no error
// escapes to the dispatcher.
func (p *Pipeline) Process(ctx context.Context, msg *tg.Message) {
	chatKey := telegram.ChatKey(msg.PeerID)
	if chatKey == "" {
		return
	}

	senderID := telegram.SenderID(msg)
	topicID := p.topics.Resolve(ctx, chatKey, msg)

	targets := p.matcher.ShouldForward(chatKey, topicID, senderID)
	if len(targets) == 0 {
		p.log.Debug().
			Str("chat", chatKey).
			Int64("sender_id", senderID).
			Msg("pipeline: no forwarding rules matched")
		return
	}

	p.log.Info().
		Str("chat", chatKey).
		Int("message_id", msg.ID).
		Int("targets", len(targets)).
		Msg("pipeline: forwarding message")

	blocks := p.collectEnrichment(ctx, chatKey, msg, topicID)

	p.exec.Deliver(ctx, Source{ChatKey: chatKey, Msg: msg, TopicID: topicID}, targets, blocks)
}

// collectEnrichment gathers the secondary messages attached to the forward:
// the genuine reply target, then every linked message in text order.
func (p *Pipeline) collectEnrichment(ctx context.Context, chatKey string, msg *tg.Message, topicID *int) []format.Secondary {
	var blocks []format.Secondary

	if topic.IsGenuineReply(msg, topicID) {
		if block, ok := p.replyBlock(ctx, chatKey, msg); ok {
			blocks = append(blocks, block)
		}
	}

	for _, link := range links.Extract(msg.Message) {
		linked, err := p.links.Fetch(ctx, link)
		if err != nil {
			p.log.Error().Err(err).Str("link", link.FullMatch).Msg("pipeline: error processing message link")
			continue
		}
		blocks = append(blocks, p.secondary(ctx, format.KindLinked, link.FullMatch, linked))
	}

	return blocks
}

func (p *Pipeline) replyBlock(ctx context.Context, chatKey string, msg *tg.Message) (format.Secondary, bool) {
	hdr, ok := msg.ReplyTo.(*tg.MessageReplyHeader)
	if !ok || hdr.ReplyToMsgID == 0 {
		return format.Secondary{}, false
	}

	chat, err := p.entities.Resolve(ctx, chatKey)
	if err != nil {
		return format.Secondary{}, false
	}

	replied, err := p.transport.GetMessage(ctx, chat, hdr.ReplyToMsgID)
	if err != nil {
		p.log.Debug().Err(err).Int("message_id", hdr.ReplyToMsgID).Msg("pipeline: could not fetch replied-to message")
		return format.Secondary{}, false
	}

	return p.secondary(ctx, format.KindReply, "", replied), true
}

// secondary builds an enrichment block from a fetched message, resolving the
// sender for attribution when possible.
func (p *Pipeline) secondary(ctx context.Context, kind format.SecondaryKind, url string, msg *tg.Message) format.Secondary {
	senderID := telegram.SenderID(msg)

	var sender *tg.User
	if senderID != 0 {
		var err error
		sender, err = p.transport.GetUser(ctx, senderID)
		if err != nil {
			p.log.Debug().Err(err).Int64("user_id", senderID).Msg("pipeline: could not resolve sender")
		}
	}

	return format.Secondary{
		Kind:     kind,
		URL:      url,
		Sender:   sender,
		SenderID: senderID,
		Text:     msg.Message,
		Media:    msg.Media,
	}
}
