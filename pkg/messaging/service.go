// Package messaging creates messages and applies the per-viewer operations
// (delete, star, block) that sit around the delivery core.
package messaging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mahaj/chatcore/pkg/conversation"
	"github.com/mahaj/chatcore/pkg/fanout"
	"github.com/mahaj/chatcore/pkg/metrics"
	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/snowflake"
	"github.com/mahaj/chatcore/pkg/store"
)

const defaultPageSize = 200

type Service struct {
	users   store.UserStore
	msgs    store.MessageStore
	dir     *conversation.Directory
	fan     *fanout.Fanout
	ids     *snowflake.Node
	inbox   store.InboxStore
	log     *slog.Logger
	metrics metrics.Recorder
}

type Option func(*Service)

// WithInbox updates unread counters inline on send. Deployments that run
// the inbox consumer leave this unset.
func WithInbox(inbox store.InboxStore) Option {
	return func(s *Service) { s.inbox = inbox }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

func New(users store.UserStore, msgs store.MessageStore, dir *conversation.Directory, fan *fanout.Fanout, ids *snowflake.Node, opts ...Option) *Service {
	s := &Service{
		users:   users,
		msgs:    msgs,
		dir:     dir,
		fan:     fan,
		ids:     ids,
		log:     slog.Default(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SendRequest struct {
	Content string      `json:"message"`
	Media   model.Media `json:"media"`
	// ReplyTo is the id of a message in the same conversation, or zero.
	ReplyTo int64 `json:"replyTo,string,omitempty"`
}

func (r SendRequest) validate() error {
	if strings.TrimSpace(r.Content) == "" && r.Media.Empty() {
		return model.InvalidArgument("message content or media is required")
	}
	return nil
}

// SendDirect creates a 1:1 message, opening the conversation on first
// contact. Delivery receipts are driven by the recipient's acknowledgement
// or by backlog reconciliation, never assumed from presence.
func (s *Service) SendDirect(ctx context.Context, senderID, receiverID string, req SendRequest) (*model.Message, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.checkBlocked(ctx, senderID, receiverID); err != nil {
		return nil, err
	}
	conv, err := s.dir.Direct(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	msg := s.newMessage(conv, senderID, req)
	msg.ReceiverID = receiverID
	if err := s.attachReply(ctx, msg, req.ReplyTo); err != nil {
		return nil, err
	}
	if err := s.publish(ctx, msg, conv); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Service) SendGroup(ctx context.Context, senderID, groupID string, req SendRequest) (*model.Message, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	conv, err := s.dir.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !conv.IsGroup {
		return nil, model.NotFound("group %s not found", groupID)
	}
	if !conv.HasParticipant(senderID) {
		return nil, model.Forbidden("not a group member")
	}

	msg := s.newMessage(conv, senderID, req)
	if err := s.attachReply(ctx, msg, req.ReplyTo); err != nil {
		return nil, err
	}
	if err := s.publish(ctx, msg, conv); err != nil {
		return nil, err
	}
	return msg, nil
}

// Forward copies each message into a 1:1 conversation with each receiver.
func (s *Service) Forward(ctx context.Context, senderID string, messageIDs []int64, receiverIDs []string) ([]*model.Message, error) {
	if len(messageIDs) == 0 {
		return nil, model.InvalidArgument("no message ids provided")
	}
	receiverIDs = model.Without(model.Union(nil, receiverIDs...), senderID)
	if len(receiverIDs) == 0 {
		return nil, model.InvalidArgument("no receiver ids provided")
	}

	originals := make([]*model.Message, 0, len(messageIDs))
	for _, id := range messageIDs {
		m, err := s.visible(ctx, id, senderID)
		if err != nil {
			return nil, err
		}
		if m.DeletedForEveryone {
			continue
		}
		originals = append(originals, m)
	}

	var out []*model.Message
	for _, orig := range originals {
		for _, rid := range receiverIDs {
			if err := s.checkBlocked(ctx, senderID, rid); err != nil {
				return out, err
			}
			conv, err := s.dir.Direct(ctx, senderID, rid)
			if err != nil {
				return out, err
			}
			msg := s.newMessage(conv, senderID, SendRequest{Content: orig.Content, Media: orig.Media})
			msg.ReceiverID = rid
			msg.IsForwarded = true
			msg.ForwardedFrom = orig.SenderID
			if err := s.publish(ctx, msg, conv); err != nil {
				return out, err
			}
			out = append(out, msg)
		}
	}
	return out, nil
}

// DeleteForMe hides the messages from userID only.
func (s *Service) DeleteForMe(ctx context.Context, userID string, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return model.InvalidArgument("no message ids provided")
	}
	for _, id := range messageIDs {
		if _, err := s.visible(ctx, id, userID); err != nil {
			return err
		}
		if err := s.msgs.MarkDeletedFor(ctx, id, userID); err != nil {
			return err
		}
	}
	return nil
}

// ClearDirect hides every message of the 1:1 conversation with otherID from
// userID only and reports how many were hidden. Clearing a chat that was
// never started is a no-op.
func (s *Service) ClearDirect(ctx context.Context, userID, otherID string) (int, error) {
	if otherID == "" {
		return 0, model.InvalidArgument("receiver is required")
	}
	if otherID == userID {
		return 0, model.InvalidArgument("cannot clear a chat with yourself")
	}
	conv, err := s.dir.FindDirect(ctx, userID, otherID)
	if model.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	msgs, err := s.msgs.ListByConversation(ctx, conv.ID, 0)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range msgs {
		if m.DeletedFor(userID) {
			continue
		}
		if err := s.msgs.MarkDeletedFor(ctx, m.ID, userID); err != nil {
			return n, err
		}
		n++
	}
	s.log.Info("chat cleared",
		slog.String("conversation_id", conv.ID),
		slog.String("user_id", userID),
		slog.Int("messages", n),
	)
	return n, nil
}

// DeleteForEveryone tombstones messages the caller sent. Either every id
// belongs to the caller or nothing is changed.
func (s *Service) DeleteForEveryone(ctx context.Context, userID string, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return model.InvalidArgument("no message ids provided")
	}
	msgs := make([]*model.Message, 0, len(messageIDs))
	for _, id := range messageIDs {
		m, err := s.msgs.Get(ctx, id)
		if err != nil {
			return err
		}
		if m.SenderID != userID {
			return model.Forbidden("you can only delete messages you've sent")
		}
		msgs = append(msgs, m)
	}

	for _, m := range msgs {
		changed, err := s.msgs.MarkDeletedForEveryone(ctx, m.ID)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		var conv *model.Conversation
		if m.IsGroup {
			if conv, err = s.dir.Get(ctx, m.ConversationID); err != nil {
				return err
			}
		}
		s.fan.DispatchDeletedForEveryone(ctx, m, conv)
	}
	return nil
}

func (s *Service) Star(ctx context.Context, userID string, messageID int64) error {
	if _, err := s.visible(ctx, messageID, userID); err != nil {
		return err
	}
	return s.msgs.SetStarred(ctx, messageID, userID, true)
}

func (s *Service) Unstar(ctx context.Context, userID string, messageID int64) error {
	if _, err := s.visible(ctx, messageID, userID); err != nil {
		return err
	}
	return s.msgs.SetStarred(ctx, messageID, userID, false)
}

// ListStarred returns userID's starred messages, newest first, minus the
// ones deleted for them or for everyone.
func (s *Service) ListStarred(ctx context.Context, userID string) ([]model.View, error) {
	msgs, err := s.msgs.ListStarred(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]model.View, 0, len(msgs))
	for _, m := range msgs {
		if m.DeletedForEveryone || m.DeletedFor(userID) || !m.StarredFor(userID) {
			continue
		}
		out = append(out, m.View())
	}
	return out, nil
}

// ListConversation returns the conversation's messages oldest first,
// skipping the ones viewer deleted for themselves.
func (s *Service) ListConversation(ctx context.Context, conversationID, viewer string, limit int) ([]model.View, error) {
	if _, err := s.dir.Participant(ctx, conversationID, viewer); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultPageSize {
		limit = defaultPageSize
	}
	msgs, err := s.msgs.ListByConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.View, 0, len(msgs))
	for _, m := range msgs {
		if m.DeletedFor(viewer) {
			continue
		}
		out = append(out, m.View())
	}
	return out, nil
}

func (s *Service) Block(ctx context.Context, userID, targetID string) error {
	if userID == targetID {
		return model.InvalidArgument("cannot block yourself")
	}
	if _, err := s.users.Get(ctx, targetID); err != nil {
		return err
	}
	return s.users.Block(ctx, userID, targetID)
}

func (s *Service) Unblock(ctx context.Context, userID, targetID string) error {
	return s.users.Unblock(ctx, userID, targetID)
}

func (s *Service) ListBlocked(ctx context.Context, userID string) ([]*model.User, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.User, 0, len(u.BlockedUsers))
	for _, id := range u.BlockedUsers {
		b, err := s.users.Get(ctx, id)
		if model.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Service) checkBlocked(ctx context.Context, senderID, receiverID string) error {
	sender, err := s.users.Get(ctx, senderID)
	if err != nil {
		return err
	}
	receiver, err := s.users.Get(ctx, receiverID)
	if err != nil {
		return err
	}
	if sender.HasBlocked(receiverID) || receiver.HasBlocked(senderID) {
		return model.Forbidden("you cannot send messages to this user")
	}
	return nil
}

func (s *Service) newMessage(conv *model.Conversation, senderID string, req SendRequest) *model.Message {
	id := s.ids.Generate()
	return &model.Message{
		ID:             id,
		ConversationID: conv.ID,
		SenderID:       senderID,
		IsGroup:        conv.IsGroup,
		Content:        req.Content,
		Media:          req.Media,
		CreatedAt:      snowflake.Time(id),
	}
}

func (s *Service) attachReply(ctx context.Context, msg *model.Message, replyTo int64) error {
	if replyTo == 0 {
		return nil
	}
	orig, err := s.msgs.Get(ctx, replyTo)
	if err != nil || orig.ConversationID != msg.ConversationID {
		return model.InvalidArgument("reply target %d not found in this conversation", replyTo)
	}
	msg.ReplyTo = &model.Reply{
		MessageID: orig.ID,
		SenderID:  orig.SenderID,
	}
	if !orig.DeletedForEveryone {
		msg.ReplyTo.Content = orig.Content
		msg.ReplyTo.MediaURL = orig.Media.URL
		msg.ReplyTo.MediaType = orig.Media.Type
	}
	return nil
}

// publish persists msg and then notifies. Notification failures never fail
// the send.
func (s *Service) publish(ctx context.Context, msg *model.Message, conv *model.Conversation) error {
	if err := s.msgs.Create(ctx, msg, msg.Recipients(conv)); err != nil {
		return err
	}
	s.metrics.RecordMessageSent(msg.IsGroup)
	s.log.Debug("message created",
		slog.Int64("message_id", msg.ID),
		slog.String("conversation_id", msg.ConversationID),
		slog.String("sender_id", msg.SenderID),
	)

	if s.inbox != nil {
		if err := s.inbox.RecordMessage(ctx, conv.ID, msg.SenderID, fanout.Recipients(msg, conv), msg.CreatedAt); err != nil {
			s.log.Warn("inbox update failed", slog.Int64("message_id", msg.ID), slog.Any("error", err))
		}
	}
	s.fan.DispatchNewMessage(ctx, msg, conv)
	return nil
}

// visible loads a message and checks userID takes part in its conversation.
func (s *Service) visible(ctx context.Context, messageID int64, userID string) (*model.Message, error) {
	m, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.dir.Participant(ctx, m.ConversationID, userID); err != nil {
		return nil, err
	}
	return m, nil
}
