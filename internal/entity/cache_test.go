package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DimaPhil/telegram-forwarder/internal/telegram"
)

type fakeTransport struct {
	info       *telegram.ChatInfo
	resolveErr error

	topics    []telegram.Topic
	topicsErr error

	starter    tg.MessageClass
	starterErr error

	discussion    []tg.MessageClass
	discussionErr error

	resolveCalls, topicsCalls, starterCalls, discussionCalls int
}

func (f *fakeTransport) ResolvePeer(ctx context.Context, ref string) (*telegram.ChatInfo, error) {
	f.resolveCalls++
	return f.info, f.resolveErr
}

func (f *fakeTransport) GetForumTopics(ctx context.Context, chat *telegram.ChatInfo) ([]telegram.Topic, error) {
	f.topicsCalls++
	return f.topics, f.topicsErr
}

func (f *fakeTransport) GetTopicStarter(ctx context.Context, chat *telegram.ChatInfo, topicID int) (tg.MessageClass, error) {
	f.starterCalls++
	return f.starter, f.starterErr
}

func (f *fakeTransport) GetDiscussionMessage(ctx context.Context, chat *telegram.ChatInfo, msgID int) ([]tg.MessageClass, error) {
	f.discussionCalls++
	return f.discussion, f.discussionErr
}

func forumChat() *telegram.ChatInfo {
	return &telegram.ChatInfo{ID: 1234, Kind: telegram.KindChannel, Title: "Dev Chat", IsForum: true}
}

func TestCache_ResolveMemoizes(t *testing.T) {
	transport := &fakeTransport{info: forumChat()}
	c := NewCache(transport)
	ctx := context.Background()

	first, err := c.Resolve(ctx, "-1001234")
	require.NoError(t, err)
	second, err := c.Resolve(ctx, "-1001234")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, transport.resolveCalls)
}

func TestCache_ResolveFailureIsPermanent(t *testing.T) {
	transport := &fakeTransport{resolveErr: errors.New("unknown peer")}
	c := NewCache(transport)
	ctx := context.Background()

	_, err := c.Resolve(ctx, "-1001234")
	require.Error(t, err)
	_, err = c.Resolve(ctx, "-1001234")
	require.Error(t, err)

	// the second lookup must come from the miss cache
	assert.Equal(t, 1, transport.resolveCalls)

	// an unresolvable chat is conservatively non-forwardable
	assert.False(t, c.CanForward(ctx, "-1001234"))
}

func TestCache_Title(t *testing.T) {
	c := NewCache(&fakeTransport{info: forumChat()})
	assert.Equal(t, "Dev Chat", c.Title(context.Background(), "-1001234"))
}

func TestCache_TitleFallback(t *testing.T) {
	c := NewCache(&fakeTransport{resolveErr: errors.New("unknown peer")})
	assert.Equal(t, "Chat -1001234", c.Title(context.Background(), "-1001234"))
}

func TestCache_TopicNameFromListing(t *testing.T) {
	transport := &fakeTransport{
		info: forumChat(),
		topics: []telegram.Topic{
			{ID: 1, Title: "General"},
			{ID: 15, Title: "Announcements"},
		},
	}
	c := NewCache(transport)
	ctx := context.Background()

	assert.Equal(t, "Announcements", c.TopicName(ctx, "-1001234", 15))

	// the listing primes every topic it returned
	assert.Equal(t, "General", c.TopicName(ctx, "-1001234", 1))
	assert.Equal(t, 1, transport.topicsCalls)
}

func TestCache_TopicNameFromStarter(t *testing.T) {
	transport := &fakeTransport{
		info:      forumChat(),
		topicsErr: errors.New("listing unavailable"),
		starter: &tg.MessageService{
			ID:     15,
			Action: &tg.MessageActionTopicCreate{Title: "Bugs"},
		},
	}
	c := NewCache(transport)

	assert.Equal(t, "Bugs", c.TopicName(context.Background(), "-1001234", 15))
	assert.Equal(t, 1, transport.starterCalls)
}

func TestCache_TopicNameFromDiscussion(t *testing.T) {
	transport := &fakeTransport{
		info:       forumChat(),
		topicsErr:  errors.New("listing unavailable"),
		starterErr: errors.New("starter unavailable"),
		discussion: []tg.MessageClass{
			&tg.Message{ID: 14, Message: "hi"},
			&tg.MessageService{ID: 15, Action: &tg.MessageActionTopicCreate{Title: "Ideas"}},
		},
	}
	c := NewCache(transport)

	assert.Equal(t, "Ideas", c.TopicName(context.Background(), "-1001234", 15))
}

func TestCache_TopicNameSynthetic(t *testing.T) {
	transport := &fakeTransport{
		info:          forumChat(),
		topicsErr:     errors.New("nope"),
		starterErr:    errors.New("nope"),
		discussionErr: errors.New("nope"),
	}
	c := NewCache(transport)
	ctx := context.Background()

	assert.Equal(t, "Topic 15", c.TopicName(ctx, "-1001234", 15))

	// the synthetic name is cached like a real one; no second round of lookups
	assert.Equal(t, "Topic 15", c.TopicName(ctx, "-1001234", 15))
	assert.Equal(t, 1, transport.topicsCalls)
	assert.Equal(t, 1, transport.starterCalls)
	assert.Equal(t, 1, transport.discussionCalls)
}

func TestCache_TopicNameZeroID(t *testing.T) {
	c := NewCache(&fakeTransport{info: forumChat()})
	assert.Equal(t, "", c.TopicName(context.Background(), "-1001234", 0))
}

func TestCache_CanForward(t *testing.T) {
	c := NewCache(&fakeTransport{info: forumChat()})
	assert.True(t, c.CanForward(context.Background(), "-1001234"))
}

func TestCache_CanForward_NoForwardsFlag(t *testing.T) {
	info := forumChat()
	info.NoForwards = true
	c := NewCache(&fakeTransport{info: info})

	assert.False(t, c.CanForward(context.Background(), "-1001234"))
}

func TestCache_MarkNoForwardIsSticky(t *testing.T) {
	c := NewCache(&fakeTransport{info: forumChat()})
	ctx := context.Background()

	require.True(t, c.CanForward(ctx, "-1001234"))
	c.MarkNoForward("-1001234")
	assert.False(t, c.CanForward(ctx, "-1001234"))
	assert.False(t, c.CanForward(ctx, "-1001234"))
}
