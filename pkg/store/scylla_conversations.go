package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/mahaj/chatcore/pkg/db"
	"github.com/mahaj/chatcore/pkg/model"
)

type ScyllaConversations struct {
	db *db.Session
}

func NewScyllaConversations(session *db.Session) *ScyllaConversations {
	return &ScyllaConversations{db: session}
}

const selectConversation = `SELECT id, is_group, name, participants, admins, archived_by, created_at, updated_at FROM conversations WHERE id = ?`

func (s *ScyllaConversations) Get(ctx context.Context, id string) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := s.db.Query(selectConversation, id).WithContext(ctx).Scan(
		&c.ID, &c.IsGroup, &c.Name, &c.Participants, &c.Admins, &c.ArchivedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, model.NotFound("conversation %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return c, nil
}

// FindOrCreateDirect claims the pair key with a lightweight transaction.
// The loser of a race reads the winner's conversation id from the CAS
// result; the conversation row itself is written only by the winner.
func (s *ScyllaConversations) FindOrCreateDirect(ctx context.Context, conv *model.Conversation) (*model.Conversation, bool, error) {
	if len(conv.Participants) != 2 {
		return nil, false, model.InvalidArgument("direct conversation needs exactly two participants")
	}
	key := model.PairKey(conv.Participants[0], conv.Participants[1])

	prev := make(map[string]interface{})
	applied, err := s.db.Query(
		`INSERT INTO direct_conversations (pair_key, conversation_id) VALUES (?, ?) IF NOT EXISTS`, key, conv.ID,
	).WithContext(ctx).MapScanCAS(prev)
	if err != nil {
		return nil, false, fmt.Errorf("claim pair %s: %w", key, err)
	}

	if !applied {
		existing, _ := prev["conversation_id"].(string)
		c, err := s.waitForRow(ctx, existing)
		return c, false, err
	}

	if err := s.insert(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (s *ScyllaConversations) FindDirect(ctx context.Context, a, b string) (*model.Conversation, error) {
	key := model.PairKey(a, b)
	var id string
	err := s.db.Query(`SELECT conversation_id FROM direct_conversations WHERE pair_key = ?`, key).
		WithContext(ctx).Scan(&id)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, model.NotFound("no conversation between %s and %s", a, b)
	}
	if err != nil {
		return nil, fmt.Errorf("find pair %s: %w", key, err)
	}
	return s.waitForRow(ctx, id)
}

// The pair row is claimed before the conversation row is written, so a
// racing reader can briefly see the claim without the row.
func (s *ScyllaConversations) waitForRow(ctx context.Context, id string) (*model.Conversation, error) {
	backoff := 20 * time.Millisecond
	for attempt := 0; ; attempt++ {
		c, err := s.Get(ctx, id)
		if err == nil || !model.IsNotFound(err) || attempt == 5 {
			return c, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (s *ScyllaConversations) CreateGroup(ctx context.Context, conv *model.Conversation) error {
	return s.insert(ctx, conv)
}

func (s *ScyllaConversations) insert(ctx context.Context, c *model.Conversation) error {
	err := s.db.Query(
		`INSERT INTO conversations (id, is_group, name, participants, admins, archived_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.IsGroup, c.Name, c.Participants, c.Admins, c.ArchivedBy, c.CreatedAt, c.UpdatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("insert conversation %s: %w", c.ID, err)
	}
	return nil
}

func (s *ScyllaConversations) AddParticipants(ctx context.Context, id string, userIDs []string, at time.Time) error {
	err := s.db.Query(
		`UPDATE conversations SET participants = participants + ?, updated_at = ? WHERE id = ?`, userIDs, at, id,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("add participants to %s: %w", id, err)
	}
	return nil
}

func (s *ScyllaConversations) UpdateName(ctx context.Context, id, name string, at time.Time) error {
	err := s.db.Query(
		`UPDATE conversations SET name = ?, updated_at = ? WHERE id = ?`, name, at, id,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("rename conversation %s: %w", id, err)
	}
	return nil
}

func (s *ScyllaConversations) SetArchived(ctx context.Context, id, userID string, archived bool) error {
	b := s.db.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	if archived {
		b.Query(`UPDATE conversations SET archived_by = archived_by + ? WHERE id = ?`, []string{userID}, id)
		b.Query(`INSERT INTO user_archives (user_id, conversation_id) VALUES (?, ?)`, userID, id)
	} else {
		b.Query(`UPDATE conversations SET archived_by = archived_by - ? WHERE id = ?`, []string{userID}, id)
		b.Query(`DELETE FROM user_archives WHERE user_id = ? AND conversation_id = ?`, userID, id)
	}
	if err := s.db.ExecuteBatch(b); err != nil {
		return fmt.Errorf("set archived %s for %s: %w", id, userID, err)
	}
	return nil
}

func (s *ScyllaConversations) ListArchived(ctx context.Context, userID string) ([]*model.Conversation, error) {
	iter := s.db.Query(`SELECT conversation_id FROM user_archives WHERE user_id = ?`, userID).WithContext(ctx).Iter()
	var ids []string
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list archived for %s: %w", userID, err)
	}

	out := make([]*model.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := s.Get(ctx, id)
		if model.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
