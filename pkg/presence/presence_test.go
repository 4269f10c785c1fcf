package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mahaj/chatcore/pkg/fanout"
	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/registry"
	"github.com/mahaj/chatcore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSession struct {
	id     string
	mu     sync.Mutex
	events []string
}

func (s *recordingSession) ID() string { return s.id }

func (s *recordingSession) Send(event string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSession) take() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

type memorySet struct {
	mu  sync.Mutex
	ids map[string]bool
	err error
}

func (m *memorySet) Add(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.ids[id] = true
	return nil
}

func (m *memorySet) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ids, id)
	return nil
}

func (m *memorySet) Members(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id := range m.ids {
		out = append(out, id)
	}
	return out, nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, opts ...Option) (*Tracker, *registry.Registry, *store.MemoryUsers) {
	t.Helper()
	ctx := context.Background()
	users := store.NewMemoryUsers()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, users.Put(ctx, &model.User{ID: id, Name: id}))
	}
	reg := registry.New()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(reg, fanout.New(reg), users, opts...), reg, users
}

func TestJoin_AnnouncesFirstSessionOnly(t *testing.T) {
	ctx := context.Background()
	tr, _, users := newTracker(t)

	a := &recordingSession{id: "sa"}
	res, err := tr.Join(ctx, "a", a)
	require.NoError(t, err)
	assert.True(t, res.BecameOnline)
	assert.Equal(t, []string{model.EventOnlineUsers, model.EventOnlineUsersUpdate}, a.take())

	u, _ := users.Get(ctx, "a")
	assert.True(t, u.Online)
	assert.Equal(t, fixedNow, u.LastSeen)

	b := &recordingSession{id: "sb"}
	_, err = tr.Join(ctx, "b", b)
	require.NoError(t, err)
	assert.Equal(t, []string{model.EventUserOnline, model.EventOnlineUsersUpdate}, a.take())
	assert.Equal(t, []string{model.EventOnlineUsers, model.EventOnlineUsersUpdate}, b.take())

	// same session joining again must not re-announce
	res, err = tr.Join(ctx, "b", b)
	require.NoError(t, err)
	assert.False(t, res.BecameOnline)
	assert.Empty(t, a.take())
	assert.Equal(t, []string{model.EventOnlineUsers}, b.take())
}

func TestJoin_NewSessionSupersedesOld(t *testing.T) {
	ctx := context.Background()
	tr, reg, _ := newTracker(t)

	a := &recordingSession{id: "sa"}
	old := &recordingSession{id: "old"}
	_, err := tr.Join(ctx, "a", a)
	require.NoError(t, err)
	_, err = tr.Join(ctx, "b", old)
	require.NoError(t, err)
	a.take()

	fresh := &recordingSession{id: "fresh"}
	res, err := tr.Join(ctx, "b", fresh)
	require.NoError(t, err)
	assert.False(t, res.BecameOnline)
	assert.Same(t, old, res.Superseded)
	assert.Empty(t, a.take())

	// the stale socket closing afterwards is ignored
	assert.False(t, tr.Leave(ctx, "b", old))
	s, ok := reg.Lookup("b")
	require.True(t, ok)
	assert.Same(t, fresh, s)
	assert.Empty(t, a.take())
}

func TestJoin_UnknownUser(t *testing.T) {
	tr, reg, _ := newTracker(t)
	_, err := tr.Join(context.Background(), "ghost", &recordingSession{})
	assert.True(t, model.IsNotFound(err))
	assert.Zero(t, reg.Len())
}

func TestLeave_BroadcastsOfflineAndPersists(t *testing.T) {
	ctx := context.Background()
	tr, _, users := newTracker(t)
	a := &recordingSession{id: "sa"}
	b := &recordingSession{id: "sb"}
	_, _ = tr.Join(ctx, "a", a)
	_, _ = tr.Join(ctx, "b", b)
	a.take()
	b.take()

	assert.True(t, tr.Leave(ctx, "b", b))
	assert.Equal(t, []string{model.EventUserOffline, model.EventOnlineUsersUpdate}, a.take())
	assert.Empty(t, b.take())

	u, _ := users.Get(ctx, "b")
	assert.False(t, u.Online)

	assert.False(t, tr.Leave(ctx, "b", b))
}

func TestOnline_UsesOnlineSetWhenConfigured(t *testing.T) {
	ctx := context.Background()
	set := &memorySet{ids: map[string]bool{"remote": true}}
	tr, _, _ := newTracker(t, WithOnlineSet(set))

	_, err := tr.Join(ctx, "b", &recordingSession{})
	require.NoError(t, err)
	ids, err := tr.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "remote"}, ids)

	set.err = errors.New("redis down")
	_, err = tr.Join(ctx, "c", &recordingSession{})
	assert.NoError(t, err, "mirror failures do not fail the join")
}

func TestOnline_FallsBackToRegistry(t *testing.T) {
	ctx := context.Background()
	tr, _, _ := newTracker(t)
	_, _ = tr.Join(ctx, "c", &recordingSession{})
	_, _ = tr.Join(ctx, "a", &recordingSession{})

	ids, err := tr.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)
}

// stallingUsers parks the first offline write until release is closed.
type stallingUsers struct {
	*store.MemoryUsers
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (u *stallingUsers) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	if !online {
		u.once.Do(func() {
			close(u.entered)
			<-u.release
		})
	}
	return u.MemoryUsers.SetPresence(ctx, id, online, at)
}

func TestLeave_StaleOfflineWriteCannotOverrideRejoin(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryUsers()
	require.NoError(t, mem.Put(ctx, &model.User{ID: "a", Name: "a"}))
	users := &stallingUsers{MemoryUsers: mem, entered: make(chan struct{}), release: make(chan struct{})}
	set := &memorySet{ids: map[string]bool{}}
	reg := registry.New()
	tr := New(reg, fanout.New(reg), users, WithOnlineSet(set), WithClock(func() time.Time { return fixedNow }))

	old := &recordingSession{id: "old"}
	_, err := tr.Join(ctx, "a", old)
	require.NoError(t, err)

	left := make(chan bool)
	go func() { left <- tr.Leave(ctx, "a", old) }()
	<-users.entered

	joined := make(chan error)
	fresh := &recordingSession{id: "fresh"}
	go func() {
		_, err := tr.Join(ctx, "a", fresh)
		joined <- err
	}()

	select {
	case err := <-joined:
		t.Fatalf("join finished while the leave was still in flight: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(users.release)
	assert.True(t, <-left)
	require.NoError(t, <-joined)

	s, ok := reg.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "fresh", s.ID())

	u, err := mem.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, u.Online)

	ids, err := tr.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}
