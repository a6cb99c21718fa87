// Package topic derives the forum topic id of an inbound message from the
// evidence the message carries.
package topic

import (
	"context"

	"github.com/gotd/td/tg"

	"github.com/DimaPhil/telegram-forwarder/internal/logger"
	"github.com/DimaPhil/telegram-forwarder/internal/telegram"
)

// DefaultTopicID is the id of a forum's default ("General") topic.
const DefaultTopicID = 1

// Entities resolves chat metadata; satisfied by entity.Cache.
type Entities interface {
	Resolve(ctx context.Context, ref string) (*telegram.ChatInfo, error)
}

// evidence is one independent way of reading a topic id off a message.
// Strategies are evaluated in order and the first hit wins.
type evidence struct {
	name string
	fn   func(msg *tg.Message) (int, bool)
}

var evidences = []evidence{
	{
		// reply header explicitly flagged as a forum topic, pointing at the
		// thread's top message
		name: "forum-topic-top",
		fn: func(msg *tg.Message) (int, bool) {
			if hdr, ok := replyHeader(msg); ok && hdr.ForumTopic && hdr.ReplyToTopID != 0 {
				return hdr.ReplyToTopID, true
			}
			return 0, false
		},
	},
	{
		// forum-topic flagged reply without a top id: the reply target is the
		// topic root itself
		name: "forum-topic-root",
		fn: func(msg *tg.Message) (int, bool) {
			if hdr, ok := replyHeader(msg); ok && hdr.ForumTopic && hdr.ReplyToMsgID != 0 {
				return hdr.ReplyToMsgID, true
			}
			return 0, false
		},
	},
	{
		// generic top-message id without the forum flag
		name: "reply-top-id",
		fn: func(msg *tg.Message) (int, bool) {
			if hdr, ok := replyHeader(msg); ok && hdr.ReplyToTopID != 0 {
				return hdr.ReplyToTopID, true
			}
			return 0, false
		},
	},
	{
		// last-resort guess: in a forum, treat the reply target's id as the
		// topic id; may misclassify genuine replies
		name: "reply-target-guess",
		fn: func(msg *tg.Message) (int, bool) {
			if hdr, ok := replyHeader(msg); ok && hdr.ReplyToMsgID != 0 {
				return hdr.ReplyToMsgID, true
			}
			return 0, false
		},
	},
	{
		// a topic-starting post is its own topic
		name: "topic-starter",
		fn: func(msg *tg.Message) (int, bool) {
			if msg.Post {
				return msg.ID, true
			}
			return 0, false
		},
	},
}

// Resolver derives topic ids for inbound messages.
type Resolver struct {
	entities Entities
	log      *logger.Logger
}

// NewResolver creates a topic resolver backed by the entity cache.
func NewResolver(entities Entities) *Resolver {
	return &Resolver{
		entities: entities,
		log:      logger.Get(),
	}
}

// Resolve returns the topic id of a message, or nil when the chat is not a
// forum or its metadata cannot be resolved. Inside a forum a message with no
// topic evidence belongs to the default topic.
func (r *Resolver) Resolve(ctx context.Context, chatKey string, msg *tg.Message) *int {
	info, err := r.entities.Resolve(ctx, chatKey)
	if err != nil {
		r.log.Debug().Err(err).Str("chat", chatKey).Msg("topic: chat not resolvable, skipping topic detection")
		return nil
	}

	if !info.IsForum {
		return nil
	}

	for _, e := range evidences {
		if id, ok := e.fn(msg); ok {
			r.log.Debug().
				Str("chat", chatKey).
				Str("evidence", e.name).
				Int("topic_id", id).
				Msg("topic: resolved")
			return &id
		}
	}

	id := DefaultTopicID
	return &id
}

// IsGenuineReply reports whether a message is a reply to another message
// rather than a bare topic marker. Inside a topic, replying to the topic root
// is not a genuine reply.
func IsGenuineReply(msg *tg.Message, topicID *int) bool {
	hdr, ok := replyHeader(msg)
	if !ok || hdr.ReplyToMsgID == 0 {
		return false
	}

	if hdr.ForumTopic && topicID != nil {
		return hdr.ReplyToMsgID != *topicID
	}
	return true
}

func replyHeader(msg *tg.Message) (*tg.MessageReplyHeader, bool) {
	hdr, ok := msg.ReplyTo.(*tg.MessageReplyHeader)
	return hdr, ok
}
