// Package registry tracks the single live transport session of every
// connected user.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/mahaj/chatcore/pkg/model"
)

// Session is a live transport to one user. Send must not block for long;
// implementations queue or drop.
type Session interface {
	ID() string
	Send(event string, payload any) error
}

type Entry struct {
	UserID   string
	Session  Session
	User     *model.User
	JoinedAt time.Time
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Entry
	now      func() time.Time
}

func New() *Registry {
	return &Registry{
		sessions: make(map[string]*Entry),
		now:      time.Now,
	}
}

// Register makes s the live session for userID. The previous session, if
// any, is returned and left open. rejoined is true when s was already the
// registered session.
func (r *Registry) Register(userID string, s Session, user *model.User) (prev Session, rejoined bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[userID]; ok {
		if cur.Session == s {
			if user != nil {
				cur.User = user
			}
			return nil, true
		}
		prev = cur.Session
	}
	r.sessions[userID] = &Entry{
		UserID:   userID,
		Session:  s,
		User:     user,
		JoinedAt: r.now(),
	}
	return prev, false
}

// Unregister removes userID only if s is still its registered session, so a
// late disconnect of a superseded socket cannot evict the newer one.
func (r *Registry) Unregister(userID string, s Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[userID]
	if !ok || cur.Session != s {
		return false
	}
	delete(r.sessions, userID)
	return true
}

func (r *Registry) Lookup(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	return e.Session, true
}

// Snapshot copies the current entries ordered by join time.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, *e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
