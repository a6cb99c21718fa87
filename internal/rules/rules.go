// Package rules implements the forwarding rule table: loading, matching and
// interactive first-run setup.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/DimaPhil/telegram-forwarder/internal/logger"
)

// Wildcard is the rule entry key that matches every topic of a chat.
const Wildcard = "*"

// Target is a single forwarding destination inside a rule entry.
type Target struct {
	ChatID  string  `json:"chat_id"`
	TopicID *int    `json:"topic_id"`
	UserIDs []int64 `json:"user_ids,omitempty"`
}

// Entry maps a topic scope ("*" or a topic id in string form) to its targets.
type Entry map[string][]Target

// Rules is the full rule table keyed by source chat id. Keys are kept exactly
// as written in the rule file; multiple string forms of the same chat may
// coexist and are never canonicalized.
type Rules map[string]Entry

// ResolvedTarget is one destination of a forwarding decision.
type ResolvedTarget struct {
	ToChat        string
	ToTopic       *int
	IncludeSource bool
}

// Load reads the rule table from path. A missing file is replaced by an empty
// table written back to disk; invalid JSON is a hard error.
func Load(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		rules := Rules{}
		if err := Save(path, rules); err != nil {
			return nil, fmt.Errorf("write empty rules: %w", err)
		}
		return rules, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	var rules Rules
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	return rules, nil
}

// Save writes the rule table to path as indented JSON.
func Save(path string, rules Rules) error {
	data, err := json.MarshalIndent(rules, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Matcher evaluates the rule table against inbound messages.
type Matcher struct {
	rules Rules
	log   *logger.Logger
}

// NewMatcher creates a matcher over a loaded rule table. The table is never
// mutated by matching.
func NewMatcher(rules Rules) *Matcher {
	return &Matcher{
		rules: rules,
		log:   logger.Get(),
	}
}

// ShouldForward returns the forwarding targets for a message from the given
// chat, topic and sender. topicID is nil outside forums; senderID is 0 when
// the sender is unknown.
//
// Candidate chat id forms are probed in order and the first form present in
// the table freezes the match; rules under other forms of the same chat are
// never merged in. Within the matched entry, wildcard targets and
// topic-scoped targets are unioned.
func (m *Matcher) ShouldForward(chatID string, topicID *int, senderID int64) []ResolvedTarget {
	candidates := NormalizeChatID(chatID)

	m.log.Debug().
		Str("chat_id", chatID).
		Strs("candidates", candidates).
		Msg("rules: looking up chat")

	var entry Entry
	for _, candidate := range candidates {
		if e, ok := m.rules[candidate]; ok {
			entry = e
			m.log.Debug().Str("key", candidate).Msg("rules: matched rule key")
			break
		}
	}

	if entry == nil {
		return nil
	}

	var result []ResolvedTarget

	for _, target := range entry[Wildcard] {
		if !passesUserFilter(target, senderID) {
			m.log.Debug().
				Int64("sender_id", senderID).
				Str("chat_id", chatID).
				Msg("rules: sender not in allowed users list")
			continue
		}
		result = append(result, resolve(target))
	}

	if topicID != nil {
		for _, target := range entry[strconv.Itoa(*topicID)] {
			if !passesUserFilter(target, senderID) {
				m.log.Debug().
					Int64("sender_id", senderID).
					Str("chat_id", chatID).
					Int("topic_id", *topicID).
					Msg("rules: sender not in allowed users list")
				continue
			}
			result = append(result, resolve(target))
		}
	}

	m.log.Debug().
		Str("chat_id", chatID).
		Int("targets", len(result)).
		Msg("rules: forwarding decision")

	return result
}

// passesUserFilter reports whether a sender clears the target's user filter.
// An empty filter matches everyone; an unknown sender bypasses the filter.
func passesUserFilter(target Target, senderID int64) bool {
	if len(target.UserIDs) == 0 || senderID == 0 {
		return true
	}
	for _, id := range target.UserIDs {
		if id == senderID {
			return true
		}
	}
	return false
}

func resolve(target Target) ResolvedTarget {
	return ResolvedTarget{
		ToChat:        target.ChatID,
		ToTopic:       target.TopicID,
		IncludeSource: true,
	}
}
