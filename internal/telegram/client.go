// Package telegram wraps the MTProto transport: peer resolution, message
// fetch operations, forwarding and sending. It uses gotgproto for session
// lifecycle and the raw gotd tg.Client for all API calls.
package telegram

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/storage"
	"github.com/gotd/td/tg"

	"github.com/DimaPhil/telegram-forwarder/internal/config"
	"github.com/DimaPhil/telegram-forwarder/internal/logger"
)

// Client provides the high-level telegram operations the forwarding pipeline
// consumes. All calls go through a shared rate limiter that honors FLOOD_WAIT.
type Client struct {
	proto   *gotgproto.Client
	limiter *RateLimiter
	log     *logger.Logger
}

// NewClient creates and authenticates a telegram client.
func NewClient(ctx context.Context, cfg *config.Config, sessionFile string) (*Client, error) {
	proto, err := NewProtoClient(ctx, cfg, sessionFile)
	if err != nil {
		return nil, err
	}
	return &Client{
		proto:   proto,
		limiter: DefaultRateLimiter(),
		log:     logger.Get(),
	}, nil
}

// Proto returns the underlying gotgproto client for dispatcher registration.
func (c *Client) Proto() *gotgproto.Client {
	return c.proto
}

// API returns the raw tg.Client for direct API calls.
func (c *Client) API() *tg.Client {
	return c.proto.API()
}

// Self returns the authenticated user.
func (c *Client) Self() *tg.User {
	return c.proto.Self
}

// Idle blocks until the client disconnects.
func (c *Client) Idle() error {
	return c.proto.Idle()
}

// Stop disconnects the client.
func (c *Client) Stop() {
	c.proto.Stop()
}

// wait blocks on the rate limiter before an API call.
func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// noteFlood inspects an API error and arms the flood-wait backoff if needed.
func (c *Client) noteFlood(err error) {
	if s := FloodWaitSeconds(err); s > 0 {
		c.log.Warn().Int("wait_seconds", s).Msg("telegram: FLOOD_WAIT detected, backing off")
		c.limiter.SetFloodWait(s)
	}
}

// ResolvePeer resolves a chat reference (marked numeric id or username) into
// chat metadata. Unknown ids that the session has never seen cannot be
// resolved and return an error.
func (c *Client) ResolvePeer(ctx context.Context, ref string) (*ChatInfo, error) {
	ref = strings.TrimPrefix(ref, "@")

	if id, kind, ok := bareID(ref); ok {
		return c.resolveByID(ctx, id, kind)
	}
	return c.resolveByUsername(ctx, ref)
}

func (c *Client) resolveByID(ctx context.Context, id int64, kind PeerKind) (*ChatInfo, error) {
	peer := c.proto.PeerStorage.GetPeerById(id)
	if peer.ID != 0 {
		switch peer.Type {
		case storage.TypeChannel.GetInt():
			return c.fetchChannel(ctx, id, peer.AccessHash)
		case storage.TypeChat.GetInt():
			return c.fetchChat(ctx, id)
		default:
			return c.fetchUserInfo(ctx, id, peer.AccessHash)
		}
	}

	// the session has not seen this peer yet; only basic groups and public
	// channels can still be reached without an access hash
	switch kind {
	case KindChat:
		return c.fetchChat(ctx, id)
	case KindChannel:
		return c.fetchChannel(ctx, id, 0)
	default:
		return nil, fmt.Errorf("peer %d not found in session storage", id)
	}
}

func (c *Client) resolveByUsername(ctx context.Context, username string) (*ChatInfo, error) {
	if peer := c.proto.PeerStorage.GetPeerByUsername(username); peer.ID != 0 {
		switch peer.Type {
		case storage.TypeChannel.GetInt():
			return c.fetchChannel(ctx, peer.ID, peer.AccessHash)
		case storage.TypeChat.GetInt():
			return c.fetchChat(ctx, peer.ID)
		default:
			return c.fetchUserInfo(ctx, peer.ID, peer.AccessHash)
		}
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	resolved, err := c.API().ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		c.noteFlood(err)
		return nil, fmt.Errorf("resolve username %s: %w", username, err)
	}

	for _, chat := range resolved.Chats {
		switch ch := chat.(type) {
		case *tg.Channel:
			return channelInfo(ch), nil
		case *tg.Chat:
			return chatInfo(ch), nil
		}
	}
	for _, u := range resolved.Users {
		if user, ok := u.(*tg.User); ok {
			return userInfo(user), nil
		}
	}

	return nil, fmt.Errorf("username %s resolved to nothing", username)
}

func (c *Client) fetchChannel(ctx context.Context, id, accessHash int64) (*ChatInfo, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.API().ChannelsGetChannels(ctx, []tg.InputChannelClass{
		&tg.InputChannel{ChannelID: id, AccessHash: accessHash},
	})
	if err != nil {
		c.noteFlood(err)
		return nil, fmt.Errorf("get channel %d: %w", id, err)
	}
	for _, chat := range res.GetChats() {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == id {
			return channelInfo(ch), nil
		}
	}
	return nil, fmt.Errorf("channel %d not in response", id)
}

func (c *Client) fetchChat(ctx context.Context, id int64) (*ChatInfo, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.API().MessagesGetChats(ctx, []int64{id})
	if err != nil {
		c.noteFlood(err)
		return nil, fmt.Errorf("get chat %d: %w", id, err)
	}
	for _, chat := range res.GetChats() {
		if ch, ok := chat.(*tg.Chat); ok && ch.ID == id {
			return chatInfo(ch), nil
		}
	}
	return nil, fmt.Errorf("chat %d not in response", id)
}

func (c *Client) fetchUserInfo(ctx context.Context, id, accessHash int64) (*ChatInfo, error) {
	user, err := c.fetchUser(ctx, id, accessHash)
	if err != nil {
		return nil, err
	}
	return userInfo(user), nil
}

func (c *Client) fetchUser(ctx context.Context, id, accessHash int64) (*tg.User, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.API().UsersGetUsers(ctx, []tg.InputUserClass{
		&tg.InputUser{UserID: id, AccessHash: accessHash},
	})
	if err != nil {
		c.noteFlood(err)
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	for _, u := range res {
		if user, ok := u.(*tg.User); ok && user.ID == id {
			return user, nil
		}
	}
	return nil, fmt.Errorf("user %d not in response", id)
}

// GetUser resolves a user by id through the session peer storage.
func (c *Client) GetUser(ctx context.Context, userID int64) (*tg.User, error) {
	peer := c.proto.PeerStorage.GetPeerById(userID)
	if peer.ID == 0 {
		return nil, fmt.Errorf("user %d not found in session storage", userID)
	}
	return c.fetchUser(ctx, userID, peer.AccessHash)
}

// GetMessage fetches a single message by id.
func (c *Client) GetMessage(ctx context.Context, chat *ChatInfo, msgID int) (*tg.Message, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	ids := []tg.InputMessageClass{&tg.InputMessageID{ID: msgID}}

	var (
		res tg.MessagesMessagesClass
		err error
	)
	if chat.Kind == KindChannel {
		res, err = c.API().ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: chat.InputChannel(),
			ID:      ids,
		})
	} else {
		res, err = c.API().MessagesGetMessages(ctx, ids)
	}
	if err != nil {
		c.noteFlood(err)
		return nil, fmt.Errorf("get message %d: %w", msgID, err)
	}

	return pickMessage(res, msgID)
}

// GetMessageInTopic fetches a message by id scoped to a forum topic thread.
func (c *Client) GetMessageInTopic(ctx context.Context, chat *ChatInfo, msgID, topicID int) (*tg.Message, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.API().MessagesGetReplies(ctx, &tg.MessagesGetRepliesRequest{
		Peer:     chat.InputPeer(),
		MsgID:    topicID, // topic id is the thread root message id
		OffsetID: msgID + 1,
		Limit:    10,
	})
	if err != nil {
		c.noteFlood(err)
		return nil, fmt.Errorf("get message %d in topic %d: %w", msgID, topicID, err)
	}
	return pickMessage(res, msgID)
}

// GetMessageRaw probes the chat history around the message id, bypassing the
// id-based fetch paths. Used as the last fetch strategy for linked messages.
func (c *Client) GetMessageRaw(ctx context.Context, chat *ChatInfo, msgID int) (*tg.Message, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     chat.InputPeer(),
		OffsetID: msgID + 1,
		Limit:    1,
	})
	if err != nil {
		c.noteFlood(err)
		return nil, fmt.Errorf("get history at %d: %w", msgID, err)
	}
	return pickMessage(res, msgID)
}

// GetTopicStarter fetches the message that opened a forum topic. The result
// may be a service message carrying the topic-create action.
func (c *Client) GetTopicStarter(ctx context.Context, chat *ChatInfo, topicID int) (tg.MessageClass, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	ids := []tg.InputMessageClass{&tg.InputMessageID{ID: topicID}}

	var (
		res tg.MessagesMessagesClass
		err error
	)
	if chat.Kind == KindChannel {
		res, err = c.API().ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: chat.InputChannel(),
			ID:      ids,
		})
	} else {
		res, err = c.API().MessagesGetMessages(ctx, ids)
	}
	if err != nil {
		c.noteFlood(err)
		return nil, fmt.Errorf("get topic starter %d: %w", topicID, err)
	}

	return pickMessageClass(res, topicID)
}

// GetForumTopics lists the forum topics of a chat.
func (c *Client) GetForumTopics(ctx context.Context, chat *ChatInfo) ([]Topic, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.API().MessagesGetForumTopics(ctx, &tg.MessagesGetForumTopicsRequest{
		Peer:  chat.InputPeer(),
		Limit: 100,
	})
	if err != nil {
		c.noteFlood(err)
		return nil, fmt.Errorf("get forum topics: %w", err)
	}

	var out []Topic
	for _, t := range res.Topics {
		if topic, ok := t.(*tg.ForumTopic); ok {
			out = append(out, Topic{ID: topic.ID, Title: topic.Title})
		}
	}
	return out, nil
}

// GetDiscussionMessage fetches the discussion thread messages for a message.
func (c *Client) GetDiscussionMessage(ctx context.Context, chat *ChatInfo, msgID int) ([]tg.MessageClass, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	res, err := c.API().MessagesGetDiscussionMessage(ctx, &tg.MessagesGetDiscussionMessageRequest{
		Peer:  chat.InputPeer(),
		MsgID: msgID,
	})
	if err != nil {
		c.noteFlood(err)
		return nil, fmt.Errorf("get discussion message %d: %w", msgID, err)
	}
	return res.Messages, nil
}

// ForwardMessage natively forwards a message, preserving attachments and
// formatting. A positive topicID anchors the forward inside the target topic;
// topic-specific failures are retried once without the anchor so that the
// forward itself still goes through.
func (c *Client) ForwardMessage(ctx context.Context, from, to *ChatInfo, msgID, topicID int) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	req := &tg.MessagesForwardMessagesRequest{
		FromPeer: from.InputPeer(),
		ToPeer:   to.InputPeer(),
		ID:       []int{msgID},
		RandomID: []int64{rand.Int63()},
	}
	if topicID > 0 {
		req.SetTopMsgID(topicID)
	}

	_, err := c.API().MessagesForwardMessages(ctx, req)
	if err != nil && topicID > 0 && IsTopicAnchorError(err) {
		c.log.Warn().Err(err).Int("topic_id", topicID).Msg("telegram: could not anchor forward to topic, retrying without it")
		req.Flags = 0
		req.TopMsgID = 0
		req.RandomID = []int64{rand.Int63()}
		_, err = c.API().MessagesForwardMessages(ctx, req)
	}
	if err != nil {
		c.noteFlood(err)
		return fmt.Errorf("forward message %d: %w", msgID, err)
	}
	return nil
}

// SendMessage sends a reconstructed message, optionally as a reply into a
// topic and optionally carrying re-attached media. Media that cannot be
// re-attached degrades to a plain text send.
func (c *Client) SendMessage(ctx context.Context, to *ChatInfo, topicID int, text string, entities []tg.MessageEntityClass, media tg.MessageMediaClass) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	if media != nil {
		if input, ok := toInputMedia(media); ok {
			req := &tg.MessagesSendMediaRequest{
				Peer:     to.InputPeer(),
				Media:    input,
				Message:  text,
				RandomID: rand.Int63(),
			}
			if len(entities) > 0 {
				req.SetEntities(entities)
			}
			if topicID > 0 {
				req.SetReplyTo(&tg.InputReplyToMessage{ReplyToMsgID: topicID})
			}
			if _, err := c.API().MessagesSendMedia(ctx, req); err != nil {
				c.noteFlood(err)
				return fmt.Errorf("send media: %w", err)
			}
			return nil
		}
		c.log.Debug().Str("media", MediaTypeName(media)).Msg("telegram: media cannot be re-attached, sending text only")
	}

	req := &tg.MessagesSendMessageRequest{
		Peer:     to.InputPeer(),
		Message:  text,
		RandomID: rand.Int63(),
	}
	if len(entities) > 0 {
		req.SetEntities(entities)
	}
	if topicID > 0 {
		req.SetReplyTo(&tg.InputReplyToMessage{ReplyToMsgID: topicID})
	}
	if _, err := c.API().MessagesSendMessage(ctx, req); err != nil {
		c.noteFlood(err)
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// pickMessage extracts the regular message with the given id from a fetch
// response. Service messages do not qualify.
func pickMessage(res tg.MessagesMessagesClass, msgID int) (*tg.Message, error) {
	m, err := pickMessageClass(res, msgID)
	if err != nil {
		return nil, err
	}
	msg, ok := m.(*tg.Message)
	if !ok {
		return nil, fmt.Errorf("message %d is not a regular message", msgID)
	}
	return msg, nil
}

// pickMessageClass extracts any message constructor with the given id.
func pickMessageClass(res tg.MessagesMessagesClass, msgID int) (tg.MessageClass, error) {
	var messages []tg.MessageClass
	switch r := res.(type) {
	case *tg.MessagesChannelMessages:
		messages = r.Messages
	case *tg.MessagesMessages:
		messages = r.Messages
	case *tg.MessagesMessagesSlice:
		messages = r.Messages
	}

	for _, m := range messages {
		if m.GetID() == msgID {
			return m, nil
		}
	}
	return nil, fmt.Errorf("message %d not found", msgID)
}

func channelInfo(ch *tg.Channel) *ChatInfo {
	return &ChatInfo{
		ID:         ch.ID,
		AccessHash: ch.AccessHash,
		Kind:       KindChannel,
		Title:      ch.Title,
		Username:   ch.Username,
		IsForum:    ch.Forum,
		IsChannel:  true,
		NoForwards: ch.Noforwards,
	}
}

func chatInfo(ch *tg.Chat) *ChatInfo {
	return &ChatInfo{
		ID:         ch.ID,
		Kind:       KindChat,
		Title:      ch.Title,
		NoForwards: ch.Noforwards,
	}
}

func userInfo(u *tg.User) *ChatInfo {
	title := strings.TrimSpace(u.FirstName + " " + u.LastName)
	return &ChatInfo{
		ID:         u.ID,
		AccessHash: u.AccessHash,
		Kind:       KindUser,
		Title:      title,
		Username:   u.Username,
	}
}
