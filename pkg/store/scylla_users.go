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

type ScyllaUsers struct {
	db *db.Session
}

func NewScyllaUsers(session *db.Session) *ScyllaUsers {
	return &ScyllaUsers{db: session}
}

func (s *ScyllaUsers) Get(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{ID: id}
	err := s.db.Query(
		`SELECT name, username, online, last_seen, blocked_users FROM users WHERE id = ?`, id,
	).WithContext(ctx).Scan(&u.Name, &u.Username, &u.Online, &u.LastSeen, &u.BlockedUsers)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, model.NotFound("user %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (s *ScyllaUsers) Put(ctx context.Context, u *model.User) error {
	err := s.db.Query(
		`INSERT INTO users (id, name, username, online, last_seen, blocked_users) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Username, u.Online, u.LastSeen, u.BlockedUsers,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("put user %s: %w", u.ID, err)
	}
	return nil
}

func (s *ScyllaUsers) SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	applied, err := s.db.Query(
		`UPDATE users SET online = ?, last_seen = ? WHERE id = ? IF EXISTS`, online, lastSeen, id,
	).WithContext(ctx).MapScanCAS(make(map[string]interface{}))
	if err != nil {
		return fmt.Errorf("set presence %s: %w", id, err)
	}
	if !applied {
		return model.NotFound("user %s not found", id)
	}
	return nil
}

func (s *ScyllaUsers) Block(ctx context.Context, userID, targetID string) error {
	err := s.db.Query(
		`UPDATE users SET blocked_users = blocked_users + ? WHERE id = ?`, []string{targetID}, userID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("block %s for %s: %w", targetID, userID, err)
	}
	return nil
}

func (s *ScyllaUsers) Unblock(ctx context.Context, userID, targetID string) error {
	err := s.db.Query(
		`UPDATE users SET blocked_users = blocked_users - ? WHERE id = ?`, []string{targetID}, userID,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("unblock %s for %s: %w", targetID, userID, err)
	}
	return nil
}
