// Package forwarder wires the forwarding decision and enrichment pipeline:
// rule matching, topic detection, enrichment collection and the two-tier
// delivery strategy.
package forwarder

import (
	"context"

	"github.com/gotd/td/tg"

	"github.com/DimaPhil/telegram-forwarder/internal/format"
	"github.com/DimaPhil/telegram-forwarder/internal/links"
	"github.com/DimaPhil/telegram-forwarder/internal/logger"
	"github.com/DimaPhil/telegram-forwarder/internal/rules"
	"github.com/DimaPhil/telegram-forwarder/internal/telegram"
)

// extraMediaCaption captions follow-up sends of enrichment media.
const extraMediaCaption = "📎 Additional media from referenced message"

// Transport is the subset of telegram operations the pipeline consumes.
type Transport interface {
	GetMessage(ctx context.Context, chat *telegram.ChatInfo, msgID int) (*tg.Message, error)
	GetUser(ctx context.Context, userID int64) (*tg.User, error)
	ForwardMessage(ctx context.Context, from, to *telegram.ChatInfo, msgID, topicID int) error
	SendMessage(ctx context.Context, to *telegram.ChatInfo, topicID int, text string, entities []tg.MessageEntityClass, media tg.MessageMediaClass) error
}

// Entities is the entity cache surface the pipeline consumes.
type Entities interface {
	Resolve(ctx context.Context, ref string) (*telegram.ChatInfo, error)
	Title(ctx context.Context, ref string) string
	TopicName(ctx context.Context, ref string, topicID int) string
	CanForward(ctx context.Context, ref string) bool
	MarkNoForward(ref string)
}

// LinkResolver fetches messages referenced by t.me links.
type LinkResolver interface {
	Fetch(ctx context.Context, link links.Link) (*tg.Message, error)
}

// TopicResolver derives the forum topic id of an inbound message.
type TopicResolver interface {
	Resolve(ctx context.Context, chatKey string, msg *tg.Message) *int
}

// Source describes the inbound message being delivered.
type Source struct {
	ChatKey string
	Msg     *tg.Message
	TopicID *int
}

// Executor delivers one message to its forwarding targets, falling back from
// native forwarding to text reconstruction when a chat rejects forwards.
type Executor struct {
	transport Transport
	entities  Entities
	log       *logger.Logger
}

// NewExecutor creates a forwarding executor.
func NewExecutor(transport Transport, entities Entities) *Executor {
	return &Executor{
		transport: transport,
		entities:  entities,
		log:       logger.Get(),
	}
}

// Deliver sends the message to every target in the decision. Targets are
// processed sequentially; a failure at one target never aborts the rest.
func (e *Executor) Deliver(ctx context.Context, src Source, targets []rules.ResolvedTarget, blocks []format.Secondary) {
	for _, target := range targets {
		e.deliverOne(ctx, src, target, blocks)
	}
}

func (e *Executor) deliverOne(ctx context.Context, src Source, target rules.ResolvedTarget, blocks []format.Secondary) {
	to, err := e.entities.Resolve(ctx, target.ToChat)
	if err != nil {
		e.log.Error().Err(err).Str("to_chat", target.ToChat).Msg("forwarder: cannot resolve target chat")
		return
	}

	topicID := 0
	if target.ToTopic != nil {
		topicID = *target.ToTopic
	}

	// tier one: native forward, only when the source chat still allows it
	// and there is no enrichment content to attach
	if len(blocks) == 0 && e.entities.CanForward(ctx, src.ChatKey) {
		if e.forwardNative(ctx, src, to, topicID) {
			return
		}
	}

	e.reconstruct(ctx, src, target, to, topicID, blocks)
}

// forwardNative attempts a native forward and reports success. A
// forwarding-restriction error flips the source chat into the sticky
// no-forward state; any failure falls through to reconstruction.
func (e *Executor) forwardNative(ctx context.Context, src Source, to *telegram.ChatInfo, topicID int) bool {
	from, err := e.entities.Resolve(ctx, src.ChatKey)
	if err != nil {
		return false
	}

	err = e.transport.ForwardMessage(ctx, from, to, src.Msg.ID, topicID)
	if err == nil {
		e.log.Info().
			Str("from_chat", src.ChatKey).
			Str("to_chat", to.Key()).
			Int("message_id", src.Msg.ID).
			Msg("forwarder: forwarded message natively")
		return true
	}

	if telegram.IsForwardRestricted(err) {
		e.log.Warn().Err(err).Str("chat", src.ChatKey).Msg("forwarder: direct forwarding failed, marking chat as no-forward")
		e.entities.MarkNoForward(src.ChatKey)
	} else {
		e.log.Error().Err(err).Str("chat", src.ChatKey).Msg("forwarder: unexpected error during direct forwarding")
	}
	return false
}

// reconstruct re-authors the message as a new send, preserving formatting
// entities and re-attachable media, then sends queued enrichment media as
// follow-ups.
func (e *Executor) reconstruct(ctx context.Context, src Source, target rules.ResolvedTarget, to *telegram.ChatInfo, topicID int, blocks []format.Secondary) {
	var header string
	if target.IncludeSource {
		title := e.entities.Title(ctx, src.ChatKey)
		var topicName string
		if src.TopicID != nil {
			topicName = e.entities.TopicName(ctx, src.ChatKey, *src.TopicID)
		}
		header = format.SourceHeader(title, topicName)
	}

	out := format.PrepareOutgoing(src.Msg.Message, src.Msg.Media, header, target.IncludeSource, blocks)

	if err := e.transport.SendMessage(ctx, to, topicID, out.Text, src.Msg.Entities, out.Media); err != nil {
		e.log.Error().Err(err).Str("to_chat", target.ToChat).Msg("forwarder: failed to forward message")
		return
	}

	for _, media := range out.ExtraMedia {
		if err := e.transport.SendMessage(ctx, to, topicID, extraMediaCaption, nil, media); err != nil {
			e.log.Error().Err(err).Str("to_chat", target.ToChat).Msg("forwarder: failed to send additional media")
			continue
		}
		e.log.Info().Str("to_chat", target.ToChat).Msg("forwarder: sent additional media")
	}

	e.log.Info().
		Str("from_chat", src.ChatKey).
		Str("to_chat", target.ToChat).
		Int("blocks", len(blocks)).
		Msg("forwarder: forwarded message as reconstructed text")
}
