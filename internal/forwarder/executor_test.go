package forwarder

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DimaPhil/telegram-forwarder/internal/format"
	"github.com/DimaPhil/telegram-forwarder/internal/rules"
	"github.com/DimaPhil/telegram-forwarder/internal/telegram"
)

type sentMessage struct {
	to      string
	topicID int
	text    string
	media   tg.MessageMediaClass
}

type forwardCall struct {
	from, to string
	msgID    int
	topicID  int
}

type fakeTransport struct {
	messages map[int]*tg.Message
	users    map[int64]*tg.User

	forwardErr error
	sendErr    error

	forwards []forwardCall
	sends    []sentMessage
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		messages: make(map[int]*tg.Message),
		users:    make(map[int64]*tg.User),
	}
}

func (f *fakeTransport) GetMessage(ctx context.Context, chat *telegram.ChatInfo, msgID int) (*tg.Message, error) {
	if msg, ok := f.messages[msgID]; ok {
		return msg, nil
	}
	return nil, fmt.Errorf("message %d not found", msgID)
}

func (f *fakeTransport) GetUser(ctx context.Context, userID int64) (*tg.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %d not found", userID)
}

func (f *fakeTransport) ForwardMessage(ctx context.Context, from, to *telegram.ChatInfo, msgID, topicID int) error {
	f.forwards = append(f.forwards, forwardCall{from: from.Key(), to: to.Key(), msgID: msgID, topicID: topicID})
	return f.forwardErr
}

func (f *fakeTransport) SendMessage(ctx context.Context, to *telegram.ChatInfo, topicID int, text string, entities []tg.MessageEntityClass, media tg.MessageMediaClass) error {
	f.sends = append(f.sends, sentMessage{to: to.Key(), topicID: topicID, text: text, media: media})
	return f.sendErr
}

type fakeEntities struct {
	chats     map[string]*telegram.ChatInfo
	noForward map[string]bool
}

func newFakeEntities(chats ...*telegram.ChatInfo) *fakeEntities {
	f := &fakeEntities{
		chats:     make(map[string]*telegram.ChatInfo),
		noForward: make(map[string]bool),
	}
	for _, c := range chats {
		f.chats[c.Key()] = c
	}
	return f
}

func (f *fakeEntities) Resolve(ctx context.Context, ref string) (*telegram.ChatInfo, error) {
	if c, ok := f.chats[ref]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("entity %s not found", ref)
}

func (f *fakeEntities) Title(ctx context.Context, ref string) string {
	if c, ok := f.chats[ref]; ok && c.Title != "" {
		return c.Title
	}
	return fmt.Sprintf("Chat %s", ref)
}

func (f *fakeEntities) TopicName(ctx context.Context, ref string, topicID int) string {
	return fmt.Sprintf("Topic %d", topicID)
}

func (f *fakeEntities) CanForward(ctx context.Context, ref string) bool {
	if f.noForward[ref] {
		return false
	}
	c, ok := f.chats[ref]
	return ok && !c.NoForwards
}

func (f *fakeEntities) MarkNoForward(ref string) {
	f.noForward[ref] = true
}

func sourceChat() *telegram.ChatInfo {
	return &telegram.ChatInfo{ID: 1111, Kind: telegram.KindChannel, Title: "Source"}
}

func targetChat() *telegram.ChatInfo {
	return &telegram.ChatInfo{ID: 2222, Kind: telegram.KindChannel, Title: "Target"}
}

func TestExecutor_NativeForward(t *testing.T) {
	transport := newFakeTransport()
	entities := newFakeEntities(sourceChat(), targetChat())
	e := NewExecutor(transport, entities)

	src := Source{ChatKey: "-1001111", Msg: &tg.Message{ID: 10, Message: "hello"}}
	e.Deliver(context.Background(), src, []rules.ResolvedTarget{{ToChat: "-1002222", IncludeSource: true}}, nil)

	require.Len(t, transport.forwards, 1)
	assert.Equal(t, forwardCall{from: "-1001111", to: "-1002222", msgID: 10}, transport.forwards[0])
	assert.Empty(t, transport.sends)
}

func TestExecutor_NativeForwardIntoTopic(t *testing.T) {
	transport := newFakeTransport()
	entities := newFakeEntities(sourceChat(), targetChat())
	e := NewExecutor(transport, entities)

	topic := 15
	src := Source{ChatKey: "-1001111", Msg: &tg.Message{ID: 10}}
	e.Deliver(context.Background(), src, []rules.ResolvedTarget{{ToChat: "-1002222", ToTopic: &topic}}, nil)

	require.Len(t, transport.forwards, 1)
	assert.Equal(t, 15, transport.forwards[0].topicID)
}

// Enrichment blocks force reconstruction; native forwarding would lose them.
func TestExecutor_BlocksSkipNativeForward(t *testing.T) {
	transport := newFakeTransport()
	entities := newFakeEntities(sourceChat(), targetChat())
	e := NewExecutor(transport, entities)

	blocks := []format.Secondary{{Kind: format.KindReply, Text: "original"}}
	src := Source{ChatKey: "-1001111", Msg: &tg.Message{ID: 10, Message: "hello"}}
	e.Deliver(context.Background(), src, []rules.ResolvedTarget{{ToChat: "-1002222", IncludeSource: true}}, blocks)

	assert.Empty(t, transport.forwards)
	require.Len(t, transport.sends, 1)
	assert.Contains(t, transport.sends[0].text, "📨 Forwarded from: Source")
	assert.Contains(t, transport.sends[0].text, "hello")
	assert.Contains(t, transport.sends[0].text, "⤴️ In reply to:")
}

func TestExecutor_NoForwardChatReconstructs(t *testing.T) {
	transport := newFakeTransport()
	src := sourceChat()
	src.NoForwards = true
	entities := newFakeEntities(src, targetChat())
	e := NewExecutor(transport, entities)

	source := Source{ChatKey: "-1001111", Msg: &tg.Message{ID: 10, Message: "hello"}}
	e.Deliver(context.Background(), source, []rules.ResolvedTarget{{ToChat: "-1002222", IncludeSource: true}}, nil)

	assert.Empty(t, transport.forwards)
	require.Len(t, transport.sends, 1)
}

// A restriction error on the first forward marks the chat; the next message
// goes straight to reconstruction without another forward attempt.
func TestExecutor_RestrictionBecomesSticky(t *testing.T) {
	transport := newFakeTransport()
	transport.forwardErr = tgerr.New(403, "CHAT_FORWARDS_RESTRICTED")
	entities := newFakeEntities(sourceChat(), targetChat())
	e := NewExecutor(transport, entities)

	targets := []rules.ResolvedTarget{{ToChat: "-1002222", IncludeSource: true}}

	first := Source{ChatKey: "-1001111", Msg: &tg.Message{ID: 10, Message: "one"}}
	e.Deliver(context.Background(), first, targets, nil)

	require.Len(t, transport.forwards, 1)
	require.Len(t, transport.sends, 1)
	assert.True(t, entities.noForward["-1001111"])

	second := Source{ChatKey: "-1001111", Msg: &tg.Message{ID: 11, Message: "two"}}
	e.Deliver(context.Background(), second, targets, nil)

	assert.Len(t, transport.forwards, 1)
	assert.Len(t, transport.sends, 2)
}

// Unexpected forward errors fall back to reconstruction but do not poison the
// chat's forwardability.
func TestExecutor_TransientForwardError(t *testing.T) {
	transport := newFakeTransport()
	transport.forwardErr = errors.New("connection reset")
	entities := newFakeEntities(sourceChat(), targetChat())
	e := NewExecutor(transport, entities)

	src := Source{ChatKey: "-1001111", Msg: &tg.Message{ID: 10, Message: "one"}}
	e.Deliver(context.Background(), src, []rules.ResolvedTarget{{ToChat: "-1002222"}}, nil)

	require.Len(t, transport.sends, 1)
	assert.False(t, entities.noForward["-1001111"])
}

func TestExecutor_UnresolvableTargetSkipped(t *testing.T) {
	transport := newFakeTransport()
	entities := newFakeEntities(sourceChat(), targetChat())
	e := NewExecutor(transport, entities)

	src := Source{ChatKey: "-1001111", Msg: &tg.Message{ID: 10, Message: "hello"}}
	targets := []rules.ResolvedTarget{
		{ToChat: "-1009999"}, // unknown
		{ToChat: "-1002222"},
	}
	e.Deliver(context.Background(), src, targets, nil)

	// the bad target is skipped, the good one still delivers
	require.Len(t, transport.forwards, 1)
	assert.Equal(t, "-1002222", transport.forwards[0].to)
}

func TestExecutor_SourceHeaderWithTopic(t *testing.T) {
	transport := newFakeTransport()
	src := sourceChat()
	src.NoForwards = true
	entities := newFakeEntities(src, targetChat())
	e := NewExecutor(transport, entities)

	topic := 15
	source := Source{ChatKey: "-1001111", Msg: &tg.Message{ID: 10, Message: "hello"}, TopicID: &topic}
	e.Deliver(context.Background(), source, []rules.ResolvedTarget{{ToChat: "-1002222", IncludeSource: true}}, nil)

	require.Len(t, transport.sends, 1)
	assert.Contains(t, transport.sends[0].text, "📨 Forwarded from: Source | Topic 15")
}

func TestExecutor_ExtraMediaFollowUps(t *testing.T) {
	transport := newFakeTransport()
	src := sourceChat()
	src.NoForwards = true
	entities := newFakeEntities(src, targetChat())
	e := NewExecutor(transport, entities)

	doc := &tg.MessageMediaDocument{}
	blocks := []format.Secondary{{Kind: format.KindLinked, URL: "u", Text: "linked", Media: doc}}

	source := Source{ChatKey: "-1001111", Msg: &tg.Message{ID: 10, Message: "hello"}}
	e.Deliver(context.Background(), source, []rules.ResolvedTarget{{ToChat: "-1002222"}}, blocks)

	require.Len(t, transport.sends, 2)
	assert.Equal(t, extraMediaCaption, transport.sends[1].text)
	assert.Same(t, doc, transport.sends[1].media.(*tg.MessageMediaDocument))
}
