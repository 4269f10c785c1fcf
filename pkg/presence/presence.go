// Package presence derives online state from registry membership, writes it
// through to the user store and announces changes through the fanout.
package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mahaj/chatcore/pkg/fanout"
	"github.com/mahaj/chatcore/pkg/metrics"
	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/registry"
	"github.com/mahaj/chatcore/pkg/store"
)

// OnlineSet mirrors the online user ids somewhere every node can read.
type OnlineSet interface {
	Add(ctx context.Context, userID string) error
	Remove(ctx context.Context, userID string) error
	Members(ctx context.Context) ([]string, error)
}

type Tracker struct {
	reg     *registry.Registry
	fan     *fanout.Fanout
	users   store.UserStore
	online  OnlineSet
	log     *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time

	// transitions serializes Join and Leave per user so the stored flag and
	// the online set always follow registry order.
	mu          sync.Mutex
	transitions map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

type Option func(*Tracker)

func WithOnlineSet(s OnlineSet) Option {
	return func(t *Tracker) { t.online = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(t *Tracker) { t.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func New(reg *registry.Registry, fan *fanout.Fanout, users store.UserStore, opts ...Option) *Tracker {
	t := &Tracker{
		reg:     reg,
		fan:     fan,
		users:   users,
		log:     slog.Default(),
		metrics: metrics.Nop{},
		now:     time.Now,

		transitions: make(map[string]*userLock),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type JoinResult struct {
	User *model.User
	// BecameOnline is false when the user already had a live session.
	BecameOnline bool
	// Superseded is the session this join replaced, left open.
	Superseded registry.Session
}

// Join registers s as userID's live session. The joiner always receives the
// current online snapshot; everybody else hears about it only when the user
// was not online before.
func (t *Tracker) Join(ctx context.Context, userID string, s registry.Session) (JoinResult, error) {
	unlock := t.lock(userID)
	defer unlock()

	u, err := t.users.Get(ctx, userID)
	if err != nil {
		return JoinResult{}, err
	}

	now := t.now().UTC()
	if err := t.users.SetPresence(ctx, userID, true, now); err != nil {
		return JoinResult{}, err
	}
	u.Online = true
	u.LastSeen = now

	prev, rejoined := t.reg.Register(userID, s, u)
	res := JoinResult{User: u, BecameOnline: prev == nil && !rejoined, Superseded: prev}
	t.metrics.SetOnlineSessions(t.reg.Len())

	if t.online != nil {
		if err := t.online.Add(ctx, userID); err != nil {
			t.log.Warn("online set add failed", slog.String("user_id", userID), slog.Any("error", err))
		}
	}

	snapshot := t.snapshot()
	t.fan.Dispatch(ctx, model.EventOnlineUsers, snapshot, []string{userID})

	if res.BecameOnline {
		t.fan.Broadcast(ctx, model.EventUserOnline, model.OnlineUser{UserID: userID, User: u}, userID)
		t.fan.Broadcast(ctx, model.EventOnlineUsersUpdate, snapshot, "")
		t.log.Info("user online", slog.String("user_id", userID))
	}
	return res, nil
}

// Leave drops s if it is still userID's live session and reports whether it
// was. A late disconnect of a superseded session changes nothing.
func (t *Tracker) Leave(ctx context.Context, userID string, s registry.Session) bool {
	unlock := t.lock(userID)
	defer unlock()

	if !t.reg.Unregister(userID, s) {
		return false
	}
	t.metrics.SetOnlineSessions(t.reg.Len())

	now := t.now().UTC()
	if err := t.users.SetPresence(ctx, userID, false, now); err != nil {
		t.log.Error("presence write failed", slog.String("user_id", userID), slog.Any("error", err))
	}
	if t.online != nil {
		if err := t.online.Remove(ctx, userID); err != nil {
			t.log.Warn("online set remove failed", slog.String("user_id", userID), slog.Any("error", err))
		}
	}

	t.fan.Broadcast(ctx, model.EventUserOffline, model.OnlineUser{UserID: userID}, userID)
	t.fan.Broadcast(ctx, model.EventOnlineUsersUpdate, t.snapshot(), "")
	t.log.Info("user offline", slog.String("user_id", userID))
	return true
}

// Online lists online user ids. With an OnlineSet the answer spans every
// node; without one it is this node's registry.
func (t *Tracker) Online(ctx context.Context) ([]string, error) {
	if t.online != nil {
		ids, err := t.online.Members(ctx)
		if err != nil {
			return nil, err
		}
		sort.Strings(ids)
		return ids, nil
	}
	entries := t.reg.Snapshot()
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (t *Tracker) lock(userID string) func() {
	t.mu.Lock()
	l, ok := t.transitions[userID]
	if !ok {
		l = &userLock{}
		t.transitions[userID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.transitions, userID)
		}
		t.mu.Unlock()
	}
}

func (t *Tracker) snapshot() []model.OnlineUser {
	entries := t.reg.Snapshot()
	out := make([]model.OnlineUser, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.OnlineUser{UserID: e.UserID, User: e.User})
	}
	return out
}
