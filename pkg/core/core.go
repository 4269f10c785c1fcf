// Package core wires the realtime components into one value that the
// gateway and the HTTP API share.
package core

import (
	"context"
	"log/slog"

	"github.com/mahaj/chatcore/pkg/conversation"
	"github.com/mahaj/chatcore/pkg/db"
	"github.com/mahaj/chatcore/pkg/delivery"
	"github.com/mahaj/chatcore/pkg/fanout"
	"github.com/mahaj/chatcore/pkg/messaging"
	"github.com/mahaj/chatcore/pkg/metrics"
	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/presence"
	"github.com/mahaj/chatcore/pkg/registry"
	"github.com/mahaj/chatcore/pkg/snowflake"
	"github.com/mahaj/chatcore/pkg/store"
)

type Stores struct {
	Users         store.UserStore
	Conversations store.ConversationStore
	Messages      store.MessageStore
	Inbox         store.InboxStore
}

func MemoryStores() Stores {
	return Stores{
		Users:         store.NewMemoryUsers(),
		Conversations: store.NewMemoryConversations(),
		Messages:      store.NewMemoryMessages(),
		Inbox:         store.NewMemoryInbox(),
	}
}

func ScyllaStores(session *db.Session) Stores {
	return Stores{
		Users:         store.NewScyllaUsers(session),
		Conversations: store.NewScyllaConversations(session),
		Messages:      store.NewScyllaMessages(session),
		Inbox:         store.NewScyllaInbox(session),
	}
}

type Deps struct {
	Stores Stores
	IDs    *snowflake.Node

	// Relay and Origin enable cross-node fanout.
	Relay  fanout.Relay
	Origin string

	OnlineSet presence.OnlineSet
	// InlineInbox updates unread counters on send instead of leaving it to
	// the inbox consumer.
	InlineInbox bool

	Logger  *slog.Logger
	Metrics metrics.Recorder
}

type Core struct {
	Registry      *registry.Registry
	Fanout        *fanout.Fanout
	Presence      *presence.Tracker
	Conversations *conversation.Directory
	Delivery      *delivery.Coordinator
	Messages      *messaging.Service
	Users         store.UserStore
	Inbox         store.InboxStore

	log *slog.Logger
}

func New(d Deps) *Core {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	rec := d.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}

	reg := registry.New()
	fanOpts := []fanout.Option{fanout.WithLogger(log), fanout.WithMetrics(rec)}
	if d.Relay != nil {
		fanOpts = append(fanOpts, fanout.WithRelay(d.Relay, d.Origin))
	}
	fan := fanout.New(reg, fanOpts...)

	presOpts := []presence.Option{presence.WithLogger(log), presence.WithMetrics(rec)}
	if d.OnlineSet != nil {
		presOpts = append(presOpts, presence.WithOnlineSet(d.OnlineSet))
	}

	dir := conversation.New(d.Stores.Conversations, log)

	msgOpts := []messaging.Option{messaging.WithLogger(log), messaging.WithMetrics(rec)}
	if d.InlineInbox {
		msgOpts = append(msgOpts, messaging.WithInbox(d.Stores.Inbox))
	}

	return &Core{
		Registry:      reg,
		Fanout:        fan,
		Presence:      presence.New(reg, fan, d.Stores.Users, presOpts...),
		Conversations: dir,
		Delivery:      delivery.New(d.Stores.Messages, d.Stores.Conversations, fan, log, rec),
		Messages:      messaging.New(d.Stores.Users, d.Stores.Messages, dir, fan, d.IDs, msgOpts...),
		Users:         d.Stores.Users,
		Inbox:         d.Stores.Inbox,
		log:           log,
	}
}

// Join registers the session and then reconciles the user's backlog, so the
// status updates it produces reach the new session. A reconciliation error
// is logged; the join itself stands.
func (c *Core) Join(ctx context.Context, userID string, s registry.Session) (presence.JoinResult, error) {
	res, err := c.Presence.Join(ctx, userID, s)
	if err != nil {
		return res, err
	}
	if _, err := c.Delivery.ReconcileBacklog(ctx, userID); err != nil {
		c.log.Error("backlog reconciliation failed", slog.String("user_id", userID), slog.Any("error", err))
	}
	return res, nil
}

func (c *Core) Leave(ctx context.Context, userID string, s registry.Session) bool {
	return c.Presence.Leave(ctx, userID, s)
}

// Typing relays a typing indicator to receiverID only. Nothing is stored.
func (c *Core) Typing(ctx context.Context, senderID string, p model.TypingPayload, start bool) {
	if p.ReceiverID == "" || p.ReceiverID == senderID {
		return
	}
	event := model.EventUserStoppedTyping
	if start {
		event = model.EventUserTyping
	}
	c.Fanout.Dispatch(ctx, event, model.TypingNotice{SenderID: senderID, SenderName: p.SenderName}, []string{p.ReceiverID})
}

// Signal relays a call signalling event from senderID to p.ToUserID. A
// peer that is offline anywhere simply misses it.
func (c *Core) Signal(ctx context.Context, senderID, event string, p model.CallSignal) error {
	out, ok := model.CallRelays[event]
	if !ok {
		return model.InvalidArgument("%s is not a call event", event)
	}
	if p.ToUserID == "" {
		return model.InvalidArgument("toUserId is required")
	}
	if p.ToUserID == senderID {
		return model.InvalidArgument("cannot call yourself")
	}
	notice := model.CallNotice{FromUserID: senderID, CallType: p.CallType}
	switch event {
	case model.EventCallUser:
		notice.Offer = p.Offer
	case model.EventAnswerCall:
		notice.Answer = p.Answer
	case model.EventICECandidate:
		notice.Candidate = p.Candidate
	}
	c.Fanout.Dispatch(ctx, out, notice, []string{p.ToUserID})
	return nil
}
