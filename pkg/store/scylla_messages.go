package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/gocql/gocql"
	"github.com/mahaj/chatcore/pkg/db"
	"github.com/mahaj/chatcore/pkg/model"
)

type ScyllaMessages struct {
	db *db.Session
}

func NewScyllaMessages(session *db.Session) *ScyllaMessages {
	return &ScyllaMessages{db: session}
}

const messageColumns = `conversation_id, id, sender_id, receiver_id, is_group, content, media_url, media_name, media_mime, media_size, media_type, reply_to, is_forwarded, forwarded_from, deleted_by, deleted_for_everyone, starred_by, created_at`

func (s *ScyllaMessages) Create(ctx context.Context, msg *model.Message, recipients []string) error {
	var reply string
	if msg.ReplyTo != nil {
		raw, err := json.Marshal(msg.ReplyTo)
		if err != nil {
			return fmt.Errorf("encode reply: %w", err)
		}
		reply = string(raw)
	}

	b := s.db.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ConversationID, msg.ID, msg.SenderID, msg.ReceiverID, msg.IsGroup, msg.Content,
		msg.Media.URL, msg.Media.Name, msg.Media.Mime, msg.Media.Size, string(msg.Media.Type),
		reply, msg.IsForwarded, msg.ForwardedFrom, msg.DeletedBy, msg.DeletedForEveryone, msg.StarredBy, msg.CreatedAt,
	)
	b.Query(`INSERT INTO messages_by_id (id, conversation_id) VALUES (?, ?)`, msg.ID, msg.ConversationID)
	for _, r := range recipients {
		if r == msg.SenderID {
			continue
		}
		b.Query(`INSERT INTO pending_receipts (recipient_id, message_id) VALUES (?, ?)`, r, msg.ID)
	}
	if err := s.db.ExecuteBatch(b); err != nil {
		return fmt.Errorf("create message %d: %w", msg.ID, err)
	}
	return nil
}

func (s *ScyllaMessages) conversationOf(ctx context.Context, id int64) (string, error) {
	var convID string
	err := s.db.Query(`SELECT conversation_id FROM messages_by_id WHERE id = ?`, id).WithContext(ctx).Scan(&convID)
	if errors.Is(err, gocql.ErrNotFound) {
		return "", model.NotFound("message %d not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("locate message %d: %w", id, err)
	}
	return convID, nil
}

func (s *ScyllaMessages) Get(ctx context.Context, id int64) (*model.Message, error) {
	convID, err := s.conversationOf(ctx, id)
	if err != nil {
		return nil, err
	}
	iter := s.db.Query(
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND id = ?`, convID, id,
	).WithContext(ctx).Iter()
	msgs, err := scanMessages(iter)
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	if len(msgs) == 0 {
		return nil, model.NotFound("message %d not found", id)
	}
	if err := s.loadReceipts(ctx, msgs[0]); err != nil {
		return nil, err
	}
	return msgs[0], nil
}

func (s *ScyllaMessages) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	q := s.db.Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ?`, conversationID)
	if limit > 0 {
		q = s.db.Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? LIMIT ?`, conversationID, limit)
	}
	msgs, err := scanMessages(q.WithContext(ctx).Iter())
	if err != nil {
		return nil, fmt.Errorf("list messages of %s: %w", conversationID, err)
	}
	for _, m := range msgs {
		if err := s.loadReceipts(ctx, m); err != nil {
			return nil, err
		}
	}
	// Stored newest first.
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

func (s *ScyllaMessages) loadReceipts(ctx context.Context, m *model.Message) error {
	iter := s.db.Query(`SELECT user_id, state FROM message_receipts WHERE message_id = ?`, m.ID).WithContext(ctx).Iter()
	m.Receipts = make(map[string]model.ReceiptState)
	var uid string
	var state int
	for iter.Scan(&uid, &state) {
		m.Receipts[uid] = model.ReceiptState(state)
	}
	if err := iter.Close(); err != nil {
		return fmt.Errorf("load receipts of %d: %w", m.ID, err)
	}
	return nil
}

func scanMessages(iter *gocql.Iter) ([]*model.Message, error) {
	var out []*model.Message
	for {
		m := &model.Message{}
		var mediaType, reply string
		ok := iter.Scan(
			&m.ConversationID, &m.ID, &m.SenderID, &m.ReceiverID, &m.IsGroup, &m.Content,
			&m.Media.URL, &m.Media.Name, &m.Media.Mime, &m.Media.Size, &mediaType,
			&reply, &m.IsForwarded, &m.ForwardedFrom, &m.DeletedBy, &m.DeletedForEveryone, &m.StarredBy, &m.CreatedAt,
		)
		if !ok {
			break
		}
		m.Media.Type = model.MediaType(mediaType)
		if reply != "" {
			m.ReplyTo = &model.Reply{}
			if err := json.Unmarshal([]byte(reply), m.ReplyTo); err != nil {
				m.ReplyTo = nil
			}
		}
		out = append(out, m)
	}
	return out, iter.Close()
}

// AdvanceReceipt relies on lightweight transactions so concurrent
// delivered/seen acks for one recipient serialize on the receipt row:
// delivered only inserts a missing row, seen either inserts or upgrades a
// delivered row.
func (s *ScyllaMessages) AdvanceReceipt(ctx context.Context, messageID int64, userID string, target model.ReceiptState) (bool, error) {
	msg, err := s.header(ctx, messageID)
	if err != nil {
		return false, err
	}
	if userID == msg.SenderID || target <= model.ReceiptNone {
		return false, nil
	}

	applied, err := s.db.Query(
		`INSERT INTO message_receipts (message_id, user_id, state) VALUES (?, ?, ?) IF NOT EXISTS`,
		messageID, userID, int(target),
	).WithContext(ctx).MapScanCAS(make(map[string]interface{}))
	if err != nil {
		return false, fmt.Errorf("advance receipt %d/%s: %w", messageID, userID, err)
	}
	if !applied && target == model.ReceiptSeen {
		applied, err = s.db.Query(
			`UPDATE message_receipts SET state = ? WHERE message_id = ? AND user_id = ? IF state = ?`,
			int(model.ReceiptSeen), messageID, userID, int(model.ReceiptDelivered),
		).WithContext(ctx).MapScanCAS(make(map[string]interface{}))
		if err != nil {
			return false, fmt.Errorf("advance receipt %d/%s: %w", messageID, userID, err)
		}
	}

	if err := s.db.Query(
		`DELETE FROM pending_receipts WHERE recipient_id = ? AND message_id = ?`, userID, messageID,
	).WithContext(ctx).Exec(); err != nil {
		return applied, fmt.Errorf("clear pending %d/%s: %w", messageID, userID, err)
	}
	return applied, nil
}

func (s *ScyllaMessages) header(ctx context.Context, id int64) (*model.Message, error) {
	convID, err := s.conversationOf(ctx, id)
	if err != nil {
		return nil, err
	}
	m := &model.Message{ID: id, ConversationID: convID}
	err = s.db.Query(
		`SELECT sender_id FROM messages WHERE conversation_id = ? AND id = ?`, convID, id,
	).WithContext(ctx).Scan(&m.SenderID)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, model.NotFound("message %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return m, nil
}

func (s *ScyllaMessages) Pending(ctx context.Context, userID string) ([]int64, error) {
	iter := s.db.Query(`SELECT message_id FROM pending_receipts WHERE recipient_id = ?`, userID).WithContext(ctx).Iter()
	var out []int64
	var id int64
	for iter.Scan(&id) {
		out = append(out, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("pending receipts for %s: %w", userID, err)
	}
	return out, nil
}

// Every write to a messages row after Create is a conditional update.
// Scylla does not order plain writes against LWTs on the same row, so an
// unconditional deleted_by or starred_by update could land on either side
// of the tombstone. Going through Paxos for all of them keeps one order.

// MarkDeletedFor is a no-op on a message already deleted for everyone.
func (s *ScyllaMessages) MarkDeletedFor(ctx context.Context, messageID int64, userID string) error {
	convID, err := s.conversationOf(ctx, messageID)
	if err != nil {
		return err
	}
	_, err = s.db.Query(
		`UPDATE messages SET deleted_by = deleted_by + ? WHERE conversation_id = ? AND id = ? IF deleted_for_everyone = false`,
		[]string{userID}, convID, messageID,
	).WithContext(ctx).MapScanCAS(make(map[string]interface{}))
	if err != nil {
		return fmt.Errorf("delete message %d for %s: %w", messageID, userID, err)
	}
	return nil
}

func (s *ScyllaMessages) MarkDeletedForEveryone(ctx context.Context, messageID int64) (bool, error) {
	convID, err := s.conversationOf(ctx, messageID)
	if err != nil {
		return false, err
	}
	applied, err := s.db.Query(
		`UPDATE messages SET deleted_for_everyone = true, deleted_by = null, content = '', media_url = '', reply_to = '' WHERE conversation_id = ? AND id = ? IF deleted_for_everyone = false`,
		convID, messageID,
	).WithContext(ctx).MapScanCAS(make(map[string]interface{}))
	if err != nil {
		return false, fmt.Errorf("delete message %d for everyone: %w", messageID, err)
	}
	return applied, nil
}

// SetStarred keeps user_starred as a superset of the rows' starred_by: the
// index row is written after the star and removed before the unstar, and
// ListStarred rechecks starred_by.
func (s *ScyllaMessages) SetStarred(ctx context.Context, messageID int64, userID string, starred bool) error {
	convID, err := s.conversationOf(ctx, messageID)
	if err != nil {
		return err
	}
	op := "+"
	if !starred {
		op = "-"
		err := s.db.Query(`DELETE FROM user_starred WHERE user_id = ? AND message_id = ?`, userID, messageID).
			WithContext(ctx).Exec()
		if err != nil {
			return fmt.Errorf("unstar message %d for %s: %w", messageID, userID, err)
		}
	}
	applied, err := s.db.Query(
		`UPDATE messages SET starred_by = starred_by `+op+` ? WHERE conversation_id = ? AND id = ? IF EXISTS`,
		[]string{userID}, convID, messageID,
	).WithContext(ctx).MapScanCAS(make(map[string]interface{}))
	if err != nil {
		return fmt.Errorf("star message %d for %s: %w", messageID, userID, err)
	}
	if !applied {
		return model.NotFound("message %d not found", messageID)
	}
	if starred {
		err := s.db.Query(`INSERT INTO user_starred (user_id, message_id) VALUES (?, ?)`, userID, messageID).
			WithContext(ctx).Exec()
		if err != nil {
			return fmt.Errorf("index star of message %d for %s: %w", messageID, userID, err)
		}
	}
	return nil
}

func (s *ScyllaMessages) ListStarred(ctx context.Context, userID string) ([]*model.Message, error) {
	iter := s.db.Query(`SELECT message_id FROM user_starred WHERE user_id = ?`, userID).WithContext(ctx).Iter()
	var ids []int64
	var id int64
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list starred for %s: %w", userID, err)
	}

	out := make([]*model.Message, 0, len(ids))
	for _, id := range ids {
		m, err := s.Get(ctx, id)
		if model.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
