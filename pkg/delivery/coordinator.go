// Package delivery advances per-recipient receipts (sent, delivered, seen)
// and tells the sender and the recipient when one moves.
package delivery

import (
	"context"
	"log/slog"

	"github.com/mahaj/chatcore/pkg/fanout"
	"github.com/mahaj/chatcore/pkg/metrics"
	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/store"
)

type Coordinator struct {
	msgs    store.MessageStore
	convs   store.ConversationStore
	fan     *fanout.Fanout
	log     *slog.Logger
	metrics metrics.Recorder
}

func New(msgs store.MessageStore, convs store.ConversationStore, fan *fanout.Fanout, log *slog.Logger, rec metrics.Recorder) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Coordinator{msgs: msgs, convs: convs, fan: fan, log: log, metrics: rec}
}

// MarkDelivered records that userID's device received the message. It is a
// no-op for the sender and for a recipient who has already seen it.
func (c *Coordinator) MarkDelivered(ctx context.Context, messageID int64, userID string) (bool, error) {
	return c.advance(ctx, messageID, userID, model.ReceiptDelivered)
}

// MarkSeen records that userID read the message. Seen is terminal.
func (c *Coordinator) MarkSeen(ctx context.Context, messageID int64, userID string) (bool, error) {
	return c.advance(ctx, messageID, userID, model.ReceiptSeen)
}

func (c *Coordinator) advance(ctx context.Context, messageID int64, userID string, target model.ReceiptState) (bool, error) {
	msg, conv, err := c.load(ctx, messageID)
	if err != nil {
		return false, err
	}
	if !conv.HasParticipant(userID) {
		return false, model.Forbidden("not a participant of this conversation")
	}
	if userID == msg.SenderID {
		return false, nil
	}

	changed, err := c.msgs.AdvanceReceipt(ctx, messageID, userID, target)
	if err != nil {
		return false, err
	}
	if changed {
		c.notify(ctx, msg, userID, target)
	}
	return changed, nil
}

// ReconcileBacklog marks every message still pending for userID as
// delivered. It runs once the user's session is registered so the
// recipient's own status updates reach it.
func (c *Coordinator) ReconcileBacklog(ctx context.Context, userID string) (int, error) {
	ids, err := c.msgs.Pending(ctx, userID)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, id := range ids {
		msg, err := c.msgs.Get(ctx, id)
		if model.IsNotFound(err) {
			continue
		}
		if err != nil {
			return n, err
		}
		changed, err := c.msgs.AdvanceReceipt(ctx, id, userID, model.ReceiptDelivered)
		if err != nil {
			return n, err
		}
		if !changed {
			continue
		}
		c.notify(ctx, msg, userID, model.ReceiptDelivered)
		n++
	}
	if n > 0 {
		c.log.Info("backlog reconciled", slog.String("user_id", userID), slog.Int("messages", n))
	}
	return n, nil
}

// GetReceipts partitions the participants other than the sender by their
// receipt state.
func (c *Coordinator) GetReceipts(ctx context.Context, messageID int64, requester string) (model.Receipts, error) {
	msg, conv, err := c.load(ctx, messageID)
	if err != nil {
		return model.Receipts{}, err
	}
	if !conv.HasParticipant(requester) {
		return model.Receipts{}, model.Forbidden("not a participant of this conversation")
	}

	r := model.Receipts{Seen: []string{}, Delivered: []string{}, Pending: []string{}}
	for _, p := range conv.Participants {
		if p == msg.SenderID {
			continue
		}
		switch msg.ReceiptFor(p) {
		case model.ReceiptSeen:
			r.Seen = append(r.Seen, p)
		case model.ReceiptDelivered:
			r.Delivered = append(r.Delivered, p)
		default:
			r.Pending = append(r.Pending, p)
		}
	}
	return r, nil
}

func (c *Coordinator) load(ctx context.Context, messageID int64) (*model.Message, *model.Conversation, error) {
	msg, err := c.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := c.convs.Get(ctx, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	return msg, conv, nil
}

func (c *Coordinator) notify(ctx context.Context, msg *model.Message, userID string, state model.ReceiptState) {
	c.metrics.RecordReceipt(state.String())
	c.fan.Dispatch(ctx, model.EventMessageStatus, model.StatusUpdate{
		MessageID: msg.ID,
		Status:    state.String(),
		UserID:    userID,
	}, []string{msg.SenderID, userID})
}
