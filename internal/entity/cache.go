// Package entity caches chat metadata, forum topic names and the sticky
// no-forward state.
package entity

import (
	"context"
	"fmt"
	"sync"

	"github.com/gotd/td/tg"

	"github.com/DimaPhil/telegram-forwarder/internal/logger"
	"github.com/DimaPhil/telegram-forwarder/internal/telegram"
)

// Transport is the subset of telegram operations the cache needs.
type Transport interface {
	ResolvePeer(ctx context.Context, ref string) (*telegram.ChatInfo, error)
	GetForumTopics(ctx context.Context, chat *telegram.ChatInfo) ([]telegram.Topic, error)
	GetTopicStarter(ctx context.Context, chat *telegram.ChatInfo, topicID int) (tg.MessageClass, error)
	GetDiscussionMessage(ctx context.Context, chat *telegram.ChatInfo, msgID int) ([]tg.MessageClass, error)
}

// Cache memoizes entity lookups for the lifetime of the process. Entries are
// only ever added, never evicted or corrected: a failed lookup is cached as a
// permanent miss and conservatively marks the chat non-forwardable.
type Cache struct {
	client Transport
	log    *logger.Logger

	mu        sync.RWMutex
	entities  map[string]*telegram.ChatInfo
	misses    map[string]bool
	topics    map[string]map[int]string
	noForward map[string]bool
}

// NewCache creates an empty entity cache over the given transport.
func NewCache(client Transport) *Cache {
	return &Cache{
		client:    client,
		log:       logger.Get(),
		entities:  make(map[string]*telegram.ChatInfo),
		misses:    make(map[string]bool),
		topics:    make(map[string]map[int]string),
		noForward: make(map[string]bool),
	}
}

// Resolve returns the cached entity for a chat reference, fetching it on
// first use. A failed fetch is cached as a miss and marks the chat
// non-forwardable.
func (c *Cache) Resolve(ctx context.Context, ref string) (*telegram.ChatInfo, error) {
	c.mu.RLock()
	if info, ok := c.entities[ref]; ok {
		c.mu.RUnlock()
		return info, nil
	}
	if c.misses[ref] {
		c.mu.RUnlock()
		return nil, fmt.Errorf("entity %s: cached lookup failure", ref)
	}
	c.mu.RUnlock()

	info, err := c.client.ResolvePeer(ctx, ref)
	if err != nil {
		c.log.Error().Err(err).Str("chat", ref).Msg("entity: failed to resolve")
		c.mu.Lock()
		c.misses[ref] = true
		c.noForward[ref] = true
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.entities[ref] = info
	c.mu.Unlock()
	return info, nil
}

// Title returns the chat's display title, or a synthesized "Chat {id}".
func (c *Cache) Title(ctx context.Context, ref string) string {
	info, err := c.Resolve(ctx, ref)
	if err != nil || info.Title == "" {
		return fmt.Sprintf("Chat %s", ref)
	}
	return info.Title
}

// TopicName resolves a forum topic's display name. Resolution tries, in
// order: the forum topic listing, the topic-starter message, the discussion
// thread. The first hit is cached permanently; if everything fails a
// synthesized "Topic {id}" is cached instead.
func (c *Cache) TopicName(ctx context.Context, ref string, topicID int) string {
	if topicID == 0 {
		return ""
	}

	c.mu.RLock()
	if name, ok := c.topics[ref][topicID]; ok {
		c.mu.RUnlock()
		return name
	}
	c.mu.RUnlock()

	name := c.lookupTopicName(ctx, ref, topicID)
	if name == "" {
		name = fmt.Sprintf("Topic %d", topicID)
	}

	c.mu.Lock()
	if c.topics[ref] == nil {
		c.topics[ref] = make(map[int]string)
	}
	c.topics[ref][topicID] = name
	c.mu.Unlock()

	return name
}

func (c *Cache) lookupTopicName(ctx context.Context, ref string, topicID int) string {
	info, err := c.Resolve(ctx, ref)
	if err != nil {
		return ""
	}

	// first method: the forum topic listing; cache every title it returns
	if topics, err := c.client.GetForumTopics(ctx, info); err == nil {
		var found string
		c.mu.Lock()
		if c.topics[ref] == nil {
			c.topics[ref] = make(map[int]string)
		}
		for _, t := range topics {
			if _, ok := c.topics[ref][t.ID]; !ok {
				c.topics[ref][t.ID] = t.Title
			}
			if t.ID == topicID {
				found = t.Title
			}
		}
		c.mu.Unlock()
		if found != "" {
			return found
		}
	} else {
		c.log.Debug().Err(err).Str("chat", ref).Msg("entity: could not list forum topics")
	}

	// second method: the topic-starter message carries the title in its action
	if msg, err := c.client.GetTopicStarter(ctx, info, topicID); err == nil {
		if title := topicCreateTitle(msg); title != "" {
			return title
		}
	} else {
		c.log.Debug().Err(err).Str("chat", ref).Msg("entity: could not fetch topic starter")
	}

	// third method: the discussion thread
	if msgs, err := c.client.GetDiscussionMessage(ctx, info, topicID); err == nil {
		for _, msg := range msgs {
			if title := topicCreateTitle(msg); title != "" {
				return title
			}
		}
	} else {
		c.log.Debug().Err(err).Str("chat", ref).Msg("entity: could not fetch discussion message")
	}

	return ""
}

// CanForward reports whether native forwarding from the chat is believed to
// work. Unresolved entities and chats with the protected-content flag are
// non-forwardable; the answer sticks once negative.
func (c *Cache) CanForward(ctx context.Context, ref string) bool {
	c.mu.RLock()
	denied := c.noForward[ref]
	c.mu.RUnlock()
	if denied {
		return false
	}

	info, err := c.Resolve(ctx, ref)
	if err != nil {
		// Resolve already marked the chat
		return false
	}

	if info.NoForwards {
		c.log.Debug().Str("chat", ref).Msg("entity: chat has noforwards flag set")
		c.MarkNoForward(ref)
		return false
	}
	return true
}

// MarkNoForward records that the chat rejects native forwarding. Sticky for
// the process lifetime.
func (c *Cache) MarkNoForward(ref string) {
	c.mu.Lock()
	c.noForward[ref] = true
	c.mu.Unlock()
}

// topicCreateTitle extracts the topic title from a topic-starter message.
func topicCreateTitle(msg tg.MessageClass) string {
	svc, ok := msg.(*tg.MessageService)
	if !ok {
		return ""
	}
	if action, ok := svc.Action.(*tg.MessageActionTopicCreate); ok {
		return action.Title
	}
	return ""
}
