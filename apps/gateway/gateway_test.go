package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/chatcore/pkg/auth"
	"github.com/mahaj/chatcore/pkg/core"
	"github.com/mahaj/chatcore/pkg/messaging"
	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gateway struct {
	t      *testing.T
	core   *core.Core
	signer *auth.Signer
	hub    *Hub
	srv    *httptest.Server
}

func newGateway(t *testing.T, cfg HubConfig) *gateway {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	c := core.New(core.Deps{Stores: core.MemoryStores(), IDs: node, InlineInbox: true})
	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, c.Users.Put(context.Background(), &model.User{ID: id, Name: id}))
	}
	signer := auth.NewSigner("gateway-secret", time.Hour)
	hub := NewHub(c, signer, cfg, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(srv.Close)
	return &gateway{t: t, core: c, signer: signer, hub: hub, srv: srv}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (g *gateway) dial(userID string) *wsClient {
	g.t.Helper()
	token, err := g.signer.GenerateToken(userID)
	require.NoError(g.t, err)
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(g.t, err)
	g.t.Cleanup(func() { conn.Close() })
	return &wsClient{t: g.t, conn: conn}
}

func (c *wsClient) emit(event string, payload any) {
	c.t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(model.Frame{Event: event, Data: data}))
}

// expect reads frames until one named event arrives.
func (c *wsClient) expect(event string) json.RawMessage {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var f model.Frame
		require.NoError(c.t, c.conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			return f.Data
		}
	}
}

func (c *wsClient) join(userID string) {
	c.t.Helper()
	c.emit(model.EventJoin, model.JoinPayload{UserID: userID})
	c.expect(model.EventOnlineUsers)
}

func TestServeWs_RejectsMissingToken(t *testing.T) {
	g := newGateway(t, HubConfig{})
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http")
	_, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestJoin_AnnouncesToOthers(t *testing.T) {
	g := newGateway(t, HubConfig{})
	alice := g.dial("alice")
	alice.join("alice")

	bob := g.dial("bob")
	bob.join("bob")

	var online model.OnlineUser
	require.NoError(t, json.Unmarshal(alice.expect(model.EventUserOnline), &online))
	assert.Equal(t, "bob", online.UserID)

	var snapshot []model.OnlineUser
	require.NoError(t, json.Unmarshal(alice.expect(model.EventOnlineUsersUpdate), &snapshot))
	assert.Len(t, snapshot, 2)
}

func TestJoin_AsAnotherUserIsRefused(t *testing.T) {
	g := newGateway(t, HubConfig{})
	alice := g.dial("alice")
	alice.emit(model.EventJoin, model.JoinPayload{UserID: "bob"})

	var e model.ErrorPayload
	require.NoError(t, json.Unmarshal(alice.expect(model.EventError), &e))
	assert.Equal(t, model.KindForbidden, e.Code)
	assert.Equal(t, 0, g.core.Registry.Len())
}

func TestEventsBeforeJoinAreRejected(t *testing.T) {
	g := newGateway(t, HubConfig{})
	alice := g.dial("alice")
	alice.emit(model.EventTypingStart, model.TypingPayload{ReceiverID: "bob"})

	var e model.ErrorPayload
	require.NoError(t, json.Unmarshal(alice.expect(model.EventError), &e))
	assert.Equal(t, model.KindInvalidArgument, e.Code)
}

func TestTyping_ReachesReceiverOnly(t *testing.T) {
	g := newGateway(t, HubConfig{})
	alice := g.dial("alice")
	alice.join("alice")
	bob := g.dial("bob")
	bob.join("bob")

	alice.emit(model.EventTypingStart, model.TypingPayload{ReceiverID: "bob", SenderName: "Alice"})
	var notice model.TypingNotice
	require.NoError(t, json.Unmarshal(bob.expect(model.EventUserTyping), &notice))
	assert.Equal(t, model.TypingNotice{SenderID: "alice", SenderName: "Alice"}, notice)

	alice.emit(model.EventTypingStop, model.TypingPayload{ReceiverID: "bob"})
	bob.expect(model.EventUserStoppedTyping)
}

func TestCallSignalling_RelaysBetweenPeers(t *testing.T) {
	g := newGateway(t, HubConfig{})
	alice := g.dial("alice")
	alice.join("alice")
	bob := g.dial("bob")
	bob.join("bob")

	alice.emit(model.EventCallUser, map[string]any{
		"toUserId": "bob",
		"offer":    map[string]string{"type": "offer", "sdp": "v=0"},
		"callType": "audio",
	})
	var incoming model.CallNotice
	require.NoError(t, json.Unmarshal(bob.expect(model.EventIncomingCall), &incoming))
	assert.Equal(t, "alice", incoming.FromUserID)
	assert.Equal(t, "audio", incoming.CallType)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(incoming.Offer))

	bob.emit(model.EventAnswerCall, map[string]any{"toUserId": "alice", "answer": map[string]string{"type": "answer"}})
	var answered model.CallNotice
	require.NoError(t, json.Unmarshal(alice.expect(model.EventCallAnswered), &answered))
	assert.Equal(t, "bob", answered.FromUserID)
	assert.JSONEq(t, `{"type":"answer"}`, string(answered.Answer))

	alice.emit(model.EventICECandidate, map[string]any{"toUserId": "bob", "candidate": map[string]string{"candidate": "udp 1"}})
	bob.expect(model.EventICECandidate)

	bob.emit(model.EventEndCall, map[string]string{"toUserId": "alice"})
	var ended model.CallNotice
	require.NoError(t, json.Unmarshal(alice.expect(model.EventCallEnded), &ended))
	assert.Equal(t, "bob", ended.FromUserID)

	alice.emit(model.EventCallUser, map[string]string{"toUserId": "alice"})
	var e model.ErrorPayload
	require.NoError(t, json.Unmarshal(alice.expect(model.EventError), &e))
	assert.Equal(t, model.KindInvalidArgument, e.Code)
}

func TestSeen_NotifiesSender(t *testing.T) {
	g := newGateway(t, HubConfig{})
	alice := g.dial("alice")
	alice.join("alice")
	bob := g.dial("bob")
	bob.join("bob")

	msg, err := g.core.Messages.SendDirect(context.Background(), "alice", "bob", messaging.SendRequest{Content: "hi"})
	require.NoError(t, err)
	bob.expect(model.EventNewMessage)

	bob.emit(model.EventMessageSeen, map[string]string{"messageId": strconv.FormatInt(msg.ID, 10)})

	var upd model.StatusUpdate
	require.NoError(t, json.Unmarshal(alice.expect(model.EventMessageStatus), &upd))
	assert.Equal(t, model.StatusUpdate{MessageID: msg.ID, Status: model.StatusSeen, UserID: "bob"}, upd)
}

func TestReceiptForUnknownMessage_SendsError(t *testing.T) {
	g := newGateway(t, HubConfig{})
	bob := g.dial("bob")
	bob.join("bob")

	bob.emit(model.EventMessageDelivered, map[string]string{"messageId": "42"})
	var e model.ErrorPayload
	require.NoError(t, json.Unmarshal(bob.expect(model.EventError), &e))
	assert.Equal(t, model.KindNotFound, e.Code)
}

func TestDisconnect_AnnouncesOffline(t *testing.T) {
	g := newGateway(t, HubConfig{})
	alice := g.dial("alice")
	alice.join("alice")
	bob := g.dial("bob")
	bob.join("bob")
	alice.expect(model.EventUserOnline)

	bob.conn.Close()

	var off model.OnlineUser
	require.NoError(t, json.Unmarshal(alice.expect(model.EventUserOffline), &off))
	assert.Equal(t, "bob", off.UserID)
	assert.Eventually(t, func() bool { return g.core.Registry.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestRateLimit_PerConnection(t *testing.T) {
	g := newGateway(t, HubConfig{EventRate: 0.001, EventBurst: 1})
	alice := g.dial("alice")
	alice.join("alice")

	alice.emit(model.EventTypingStart, model.TypingPayload{ReceiverID: "bob"})
	var e model.ErrorPayload
	require.NoError(t, json.Unmarshal(alice.expect(model.EventError), &e))
	assert.Equal(t, model.ErrorKind("rate_limited"), e.Code)
}

type fakeSource struct {
	envs []model.Envelope
}

func (f *fakeSource) Consume(_ context.Context, _ string, handle func(model.Envelope)) error {
	for _, env := range f.envs {
		handle(env)
	}
	return nil
}

func TestRun_DeliversRelayedEnvelopes(t *testing.T) {
	g := newGateway(t, HubConfig{})
	bob := g.dial("bob")
	bob.join("bob")

	payload, err := json.Marshal(model.TypingNotice{SenderID: "carol"})
	require.NoError(t, err)
	src := &fakeSource{envs: []model.Envelope{{
		Origin:     "other-node",
		Event:      model.EventUserTyping,
		Payload:    payload,
		Recipients: []string{"bob"},
	}}}
	require.NoError(t, g.hub.Run(context.Background(), src, "gateway-test"))

	var notice model.TypingNotice
	require.NoError(t, json.Unmarshal(bob.expect(model.EventUserTyping), &notice))
	assert.Equal(t, "carol", notice.SenderID)
}
