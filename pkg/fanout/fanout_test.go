package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	Event   string
	Payload any
}

type recordingSession struct {
	id  string
	mu  sync.Mutex
	got []sent
	err error
}

func (s *recordingSession) ID() string { return s.id }

func (s *recordingSession) Send(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, sent{event, payload})
	return nil
}

func (s *recordingSession) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, g := range s.got {
		out = append(out, g.Event)
	}
	return out
}

type fakeRelay struct {
	mu   sync.Mutex
	envs []model.Envelope
	err  error
}

func (r *fakeRelay) Publish(_ context.Context, env model.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return r.err
}

func join(reg *registry.Registry, ids ...string) map[string]*recordingSession {
	out := make(map[string]*recordingSession)
	for _, id := range ids {
		s := &recordingSession{id: "s-" + id}
		reg.Register(id, s, &model.User{ID: id})
		out[id] = s
	}
	return out
}

func TestDispatch_SkipsOfflineAndDedupes(t *testing.T) {
	reg := registry.New()
	sess := join(reg, "a", "c")
	f := New(reg)

	f.Dispatch(context.Background(), "ping", map[string]string{"x": "y"}, []string{"a", "b", "a", "c", ""})

	assert.Equal(t, []string{"ping"}, sess["a"].events())
	assert.Equal(t, []string{"ping"}, sess["c"].events())
}

func TestDispatch_SendFailureIsSwallowed(t *testing.T) {
	reg := registry.New()
	sess := join(reg, "a", "b")
	sess["a"].err = errors.New("write: broken pipe")
	f := New(reg)

	f.Dispatch(context.Background(), "ping", nil, []string{"a", "b"})
	assert.Equal(t, []string{"ping"}, sess["b"].events())
}

func TestBroadcast_ExcludesUser(t *testing.T) {
	reg := registry.New()
	sess := join(reg, "a", "b", "c")
	New(reg).Broadcast(context.Background(), model.EventUserOnline, model.OnlineUser{UserID: "a"}, "a")

	assert.Empty(t, sess["a"].events())
	assert.Equal(t, []string{model.EventUserOnline}, sess["b"].events())
	assert.Equal(t, []string{model.EventUserOnline}, sess["c"].events())
}

func TestDispatchNewMessage_DirectIncludesSender(t *testing.T) {
	reg := registry.New()
	sess := join(reg, "a", "b", "c")
	msg := &model.Message{ID: 1, SenderID: "a", ReceiverID: "b", Content: "hi"}

	New(reg).DispatchNewMessage(context.Background(), msg, nil)

	assert.Equal(t, []string{model.EventNewMessage}, sess["a"].events())
	assert.Equal(t, []string{model.EventNewMessage}, sess["b"].events())
	assert.Empty(t, sess["c"].events())
}

func TestDispatchNewMessage_GroupReachesAllLiveParticipants(t *testing.T) {
	reg := registry.New()
	sess := join(reg, "a", "c", "d")
	conv := &model.Conversation{ID: "g", IsGroup: true, Participants: []string{"a", "b", "c"}}
	msg := &model.Message{ID: 2, ConversationID: "g", SenderID: "a", IsGroup: true}

	New(reg).DispatchNewMessage(context.Background(), msg, conv)

	assert.Len(t, sess["a"].events(), 1)
	assert.Len(t, sess["c"].events(), 1)
	assert.Empty(t, sess["d"].events())
}

func TestDispatchDeletedForEveryone_Payload(t *testing.T) {
	reg := registry.New()
	sess := join(reg, "b")
	msg := &model.Message{ID: 42, SenderID: "a", ReceiverID: "b"}

	New(reg).DispatchDeletedForEveryone(context.Background(), msg, nil)

	require.Len(t, sess["b"].got, 1)
	assert.Equal(t, model.EventMessageDeletedAll, sess["b"].got[0].Event)
	assert.Equal(t, model.DeletedPayload{MessageID: 42}, sess["b"].got[0].Payload)
}

func TestRelay_PublishesAndIgnoresOwnEnvelopes(t *testing.T) {
	relay := &fakeRelay{}
	reg := registry.New()
	sess := join(reg, "b")
	f := New(reg, WithRelay(relay, "node-1"))

	msg := &model.Message{ID: 7, ConversationID: "c1", SenderID: "a", ReceiverID: "b"}
	f.DispatchNewMessage(context.Background(), msg, nil)

	require.Len(t, relay.envs, 1)
	env := relay.envs[0]
	assert.Equal(t, "node-1", env.Origin)
	assert.Equal(t, "c1", env.ConversationID)
	assert.Equal(t, []string{"a", "b"}, env.Recipients)
	assert.False(t, env.Timestamp.IsZero())

	var view map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &view))
	assert.Equal(t, "c1", view["conversation_id"])

	// own envelope coming back from the topic is not delivered twice
	f.DeliverLocal(env)
	assert.Len(t, sess["b"].events(), 1)

	env.Origin = "node-2"
	f.DeliverLocal(env)
	assert.Len(t, sess["b"].events(), 2)
}

func TestRelay_PublishErrorIsSwallowed(t *testing.T) {
	relay := &fakeRelay{err: errors.New("broker down")}
	reg := registry.New()
	sess := join(reg, "a")
	f := New(reg, WithRelay(relay, "n1"))

	f.Dispatch(context.Background(), "ping", nil, []string{"a"})
	assert.Len(t, sess["a"].events(), 1)
}

func TestDeliverLocal_Broadcast(t *testing.T) {
	reg := registry.New()
	sess := join(reg, "a", "b")
	f := New(reg, WithRelay(&fakeRelay{}, "n1"))

	f.DeliverLocal(model.Envelope{Origin: "n2", Event: model.EventUserOffline, Broadcast: true, Except: "a", Payload: json.RawMessage(`{"userId":"z"}`)})
	assert.Empty(t, sess["a"].events())
	assert.Equal(t, []string{model.EventUserOffline}, sess["b"].events())
}
