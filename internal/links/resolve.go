package links

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gotd/td/tg"

	"github.com/DimaPhil/telegram-forwarder/internal/logger"
	"github.com/DimaPhil/telegram-forwarder/internal/telegram"
)

// Fetcher is the subset of telegram operations used to fetch linked messages.
type Fetcher interface {
	GetMessage(ctx context.Context, chat *telegram.ChatInfo, msgID int) (*tg.Message, error)
	GetMessageInTopic(ctx context.Context, chat *telegram.ChatInfo, msgID, topicID int) (*tg.Message, error)
	GetMessageRaw(ctx context.Context, chat *telegram.ChatInfo, msgID int) (*tg.Message, error)
}

// Entities resolves chat references; satisfied by entity.Cache.
type Entities interface {
	Resolve(ctx context.Context, ref string) (*telegram.ChatInfo, error)
}

// Resolver fetches messages referenced by t.me links, caching results
// indefinitely by (chat reference, message id).
type Resolver struct {
	client   Fetcher
	entities Entities
	log      *logger.Logger

	mu    sync.RWMutex
	cache map[string]*tg.Message
}

// NewResolver creates a link resolver.
func NewResolver(client Fetcher, entities Entities) *Resolver {
	return &Resolver{
		client:   client,
		entities: entities,
		log:      logger.Get(),
		cache:    make(map[string]*tg.Message),
	}
}

// Fetch resolves the message a link points at. Up to three fetch strategies
// are tried in order, accepting the first that yields message text; when none
// does, the last partial result is returned as-is. Results are cached.
func (r *Resolver) Fetch(ctx context.Context, link Link) (*tg.Message, error) {
	key := fmt.Sprintf("%s-%d", link.ChatRef, link.MessageID)

	r.mu.RLock()
	if msg, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return msg, nil
	}
	r.mu.RUnlock()

	chat, err := r.entities.Resolve(ctx, canonicalRef(link))
	if err != nil {
		return nil, fmt.Errorf("resolve chat for link %s: %w", link.FullMatch, err)
	}

	msg := r.fetchMessage(ctx, chat, link)
	if msg == nil {
		return nil, fmt.Errorf("could not fetch message for link %s", link.FullMatch)
	}

	r.mu.Lock()
	r.cache[key] = msg
	r.mu.Unlock()

	return msg, nil
}

func (r *Resolver) fetchMessage(ctx context.Context, chat *telegram.ChatInfo, link Link) *tg.Message {
	var best *tg.Message

	// strategy 1: direct id fetch
	msg, err := r.client.GetMessage(ctx, chat, link.MessageID)
	if err != nil {
		r.log.Debug().Err(err).Str("link", link.FullMatch).Msg("links: direct fetch failed")
	} else {
		if msg.Message != "" {
			return msg
		}
		best = msg
	}

	// strategy 2: fetch scoped by the link's topic context
	if link.TopicID > 0 {
		msg, err := r.client.GetMessageInTopic(ctx, chat, link.MessageID, link.TopicID)
		if err != nil {
			r.log.Debug().Err(err).Str("link", link.FullMatch).Msg("links: topic-scoped fetch failed")
		} else {
			if msg.Message != "" {
				return msg
			}
			if best == nil {
				best = msg
			}
		}
	}

	// strategy 3: raw history probe, bypassing the id-based paths
	msg, err = r.client.GetMessageRaw(ctx, chat, link.MessageID)
	if err != nil {
		r.log.Debug().Err(err).Str("link", link.FullMatch).Msg("links: raw fetch failed")
	} else {
		if msg.Message != "" {
			return msg
		}
		if best == nil {
			best = msg
		}
	}

	return best
}

// canonicalRef rebuilds the marked chat reference for a link. Numeric ids
// from t.me/c/ links lack the supergroup prefix the entity lookup expects.
func canonicalRef(link Link) string {
	if link.Numeric && !strings.HasPrefix(link.ChatRef, "-100") {
		return "-100" + link.ChatRef
	}
	return link.ChatRef
}
