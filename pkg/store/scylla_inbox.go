package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mahaj/chatcore/pkg/db"
)

// ScyllaInbox keeps user_conversations and the conversation_counters
// counter table. Counter updates cannot share a batch with regular writes.
type ScyllaInbox struct {
	db *db.Session
}

func NewScyllaInbox(session *db.Session) *ScyllaInbox {
	return &ScyllaInbox{db: session}
}

func (s *ScyllaInbox) RecordMessage(ctx context.Context, conversationID, senderID string, participants []string, at time.Time) error {
	for _, uid := range participants {
		if err := s.db.Query(
			`INSERT INTO user_conversations (user_id, conversation_id, last_updated) VALUES (?, ?, ?)`,
			uid, conversationID, at,
		).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("touch conversation %s for %s: %w", conversationID, uid, err)
		}
		if uid == senderID {
			continue
		}
		if err := s.db.Query(
			`UPDATE conversation_counters SET unread_count = unread_count + 1 WHERE user_id = ? AND conversation_id = ?`,
			uid, conversationID,
		).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("increment unread %s for %s: %w", conversationID, uid, err)
		}
	}
	return nil
}

func (s *ScyllaInbox) List(ctx context.Context, userID string) ([]InboxEntry, error) {
	iter := s.db.Query(
		`SELECT conversation_id, last_updated FROM user_conversations WHERE user_id = ?`, userID,
	).WithContext(ctx).Iter()

	var out []InboxEntry
	var e InboxEntry
	for iter.Scan(&e.ConversationID, &e.LastUpdated) {
		out = append(out, e)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list conversations for %s: %w", userID, err)
	}

	for i := range out {
		var count int64
		if err := s.db.Query(
			`SELECT unread_count FROM conversation_counters WHERE user_id = ? AND conversation_id = ?`,
			userID, out[i].ConversationID,
		).WithContext(ctx).Scan(&count); err == nil {
			out[i].UnreadCount = count
		}
	}
	sortInbox(out)
	return out, nil
}

// ResetUnread deletes the counter row; deletion is the only way to zero a
// counter.
func (s *ScyllaInbox) ResetUnread(ctx context.Context, userID, conversationID string) error {
	err := s.db.Query(
		`DELETE FROM conversation_counters WHERE user_id = ? AND conversation_id = ?`, userID, conversationID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("reset unread %s for %s: %w", conversationID, userID, err)
	}
	return nil
}
