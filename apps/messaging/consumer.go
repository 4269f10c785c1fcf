package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/store"
)

const handleTimeout = 5 * time.Second

// Consumer maintains per-user conversation lists and unread counters from
// relayed new-message envelopes.
type Consumer struct {
	inbox store.InboxStore
	log   *slog.Logger
}

func NewConsumer(inbox store.InboxStore, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{inbox: inbox, log: log}
}

// Handle applies one envelope. Other events are skipped.
func (c *Consumer) Handle(ctx context.Context, env model.Envelope) {
	if env.Event != model.EventNewMessage {
		return
	}
	if env.ConversationID == "" || env.SenderID == "" {
		c.log.Warn("new-message envelope without routing fields", slog.String("origin", env.Origin))
		return
	}
	at := env.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()
	if err := c.inbox.RecordMessage(ctx, env.ConversationID, env.SenderID, env.Recipients, at); err != nil {
		c.log.Error("inbox update failed",
			slog.String("conversation_id", env.ConversationID),
			slog.Any("error", err),
		)
		return
	}
	c.log.Debug("inbox updated",
		slog.String("conversation_id", env.ConversationID),
		slog.Int("participants", len(env.Recipients)),
	)
}
