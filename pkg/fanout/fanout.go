// Package fanout delivers events to the live sessions of a recipient set.
//
// Delivery is best-effort: a recipient without a live session is skipped and
// a failed write is logged and counted, never retried and never returned to
// the caller. Missed receipts are recovered by backlog reconciliation when
// the recipient joins again.
package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mahaj/chatcore/pkg/metrics"
	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/registry"
)

// Relay shares envelopes with other nodes.
type Relay interface {
	Publish(ctx context.Context, env model.Envelope) error
}

type Fanout struct {
	reg     *registry.Registry
	relay   Relay
	origin  string
	log     *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

type Option func(*Fanout)

// WithRelay publishes every dispatch so other nodes can deliver to their own
// sessions. origin identifies this node; envelopes carrying it are ignored
// on the way back in.
func WithRelay(r Relay, origin string) Option {
	return func(f *Fanout) {
		f.relay = r
		f.origin = origin
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fanout) { f.log = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(f *Fanout) { f.metrics = m }
}

func New(reg *registry.Registry, opts ...Option) *Fanout {
	f := &Fanout{
		reg:     reg,
		log:     slog.Default(),
		metrics: metrics.Nop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Dispatch sends event to each recipient that has a live session.
func (f *Fanout) Dispatch(ctx context.Context, event string, payload any, recipientIDs []string) {
	env := model.Envelope{Event: event, Recipients: dedupe(recipientIDs)}
	if len(env.Recipients) == 0 {
		return
	}
	f.send(ctx, env, payload)
}

// Broadcast sends event to every live session except exceptUserID's.
func (f *Fanout) Broadcast(ctx context.Context, event string, payload any, exceptUserID string) {
	f.send(ctx, model.Envelope{Event: event, Broadcast: true, Except: exceptUserID}, payload)
}

// DispatchNewMessage notifies the sender and every recipient. The sender is
// included so other tabs of the same user echo the message.
func (f *Fanout) DispatchNewMessage(ctx context.Context, msg *model.Message, conv *model.Conversation) {
	f.send(ctx, model.Envelope{
		Event:          model.EventNewMessage,
		Recipients:     Recipients(msg, conv),
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
	}, msg.View())
}

// DispatchDeletedForEveryone lets every live viewer swap the message for a
// tombstone.
func (f *Fanout) DispatchDeletedForEveryone(ctx context.Context, msg *model.Message, conv *model.Conversation) {
	f.send(ctx, model.Envelope{
		Event:          model.EventMessageDeletedAll,
		Recipients:     Recipients(msg, conv),
		ConversationID: msg.ConversationID,
	}, model.DeletedPayload{MessageID: msg.ID})
}

// Recipients is {sender, receiver} for 1:1 messages and all participants for
// group messages.
func Recipients(msg *model.Message, conv *model.Conversation) []string {
	if msg.IsGroup && conv != nil {
		return dedupe(conv.Participants)
	}
	return dedupe([]string{msg.SenderID, msg.ReceiverID})
}

// DeliverLocal hands a relayed envelope to this node's sessions.
func (f *Fanout) DeliverLocal(env model.Envelope) {
	if f.origin != "" && env.Origin == f.origin {
		return
	}
	f.deliver(env, env.Payload)
}

func (f *Fanout) send(ctx context.Context, env model.Envelope, payload any) {
	f.deliver(env, payload)

	if f.relay == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		f.log.Error("fanout payload encode failed", slog.String("event", env.Event), slog.Any("error", err))
		return
	}
	env.Origin = f.origin
	env.Payload = raw
	env.Timestamp = f.now().UTC()
	err = f.relay.Publish(ctx, env)
	f.metrics.RecordRelay("publish", err)
	if err != nil {
		f.log.Warn("relay publish failed", slog.String("event", env.Event), slog.Any("error", err))
	}
}

func (f *Fanout) deliver(env model.Envelope, payload any) {
	if env.Broadcast {
		for _, e := range f.reg.Snapshot() {
			if e.UserID == env.Except {
				continue
			}
			f.write(e.UserID, e.Session, env.Event, payload)
		}
		return
	}
	for _, uid := range env.Recipients {
		s, ok := f.reg.Lookup(uid)
		if !ok {
			continue
		}
		f.write(uid, s, env.Event, payload)
	}
}

func (f *Fanout) write(userID string, s registry.Session, event string, payload any) {
	err := s.Send(event, payload)
	f.metrics.RecordDispatch(event, err == nil)
	if err != nil {
		f.log.Debug("session write dropped",
			slog.String("user_id", userID),
			slog.String("event", event),
			slog.Any("error", err),
		)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
