package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_StatusDerivedFromReceiverReceipt(t *testing.T) {
	m := &Message{ID: 1, SenderID: "a", ReceiverID: "b"}
	assert.Equal(t, StatusSent, m.Status())

	m.Receipts = map[string]ReceiptState{"b": ReceiptDelivered}
	assert.Equal(t, StatusDelivered, m.Status())
	assert.Equal(t, []string{"b"}, m.DeliveredTo())
	assert.Empty(t, m.SeenBy())

	m.Receipts["b"] = ReceiptSeen
	assert.Equal(t, StatusSeen, m.Status())
	assert.Empty(t, m.DeliveredTo())
	assert.Equal(t, []string{"b"}, m.SeenBy())
}

func TestMessage_SenderNeverHasReceipt(t *testing.T) {
	m := &Message{SenderID: "a", ReceiverID: "b", Receipts: map[string]ReceiptState{"a": ReceiptSeen}}
	assert.Equal(t, ReceiptNone, m.ReceiptFor("a"))
	assert.Empty(t, m.SeenBy())
}

func TestMessage_Recipients(t *testing.T) {
	conv := &Conversation{IsGroup: true, Participants: []string{"a", "b", "c"}}
	group := &Message{SenderID: "a", IsGroup: true}
	assert.Equal(t, []string{"b", "c"}, group.Recipients(conv))

	direct := &Message{SenderID: "a", ReceiverID: "b"}
	assert.Equal(t, []string{"b"}, direct.Recipients(&Conversation{Participants: []string{"a", "b"}}))
}

func TestMessage_ViewHidesTombstonedContent(t *testing.T) {
	m := &Message{SenderID: "a", ReceiverID: "b", Content: "secret", Media: Media{URL: "/u/1.png"}, DeletedForEveryone: true}
	v := m.View()
	assert.Empty(t, v.Content)
	assert.True(t, v.Media.Empty())
	assert.Equal(t, "secret", m.Content, "view must not mutate the stored message")
}

func TestMessage_IDsEncodeAsStrings(t *testing.T) {
	// Above 2^53, so a float64 decoder would round it.
	const id int64 = 1<<60 + 12345
	m := &Message{ID: id, SenderID: "a", ReceiverID: "b", ReplyTo: &Reply{MessageID: id - 1, SenderID: "b"}}

	raw, err := json.Marshal(m.View())
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Equal(t, "1152921504606859321", wire["id"])
	reply, ok := wire["reply_to"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1152921504606859320", reply["message_id"])

	var back Message
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, id, back.ID)
	assert.Equal(t, id-1, back.ReplyTo.MessageID)
}

func TestPairKey_IsOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("alice", "bob"), PairKey("bob", "alice"))
	assert.NotEqual(t, PairKey("alice", "bob"), PairKey("alice", "carol"))
}

func TestUnionAndWithout(t *testing.T) {
	set := Union([]string{"a"}, "b", "a", "", "b")
	assert.Equal(t, []string{"a", "b"}, set)
	assert.Equal(t, []string{"b"}, Without(set, "a"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("message %d", 1)))
	assert.Equal(t, KindForbidden, KindOf(fmt.Errorf("wrapped: %w", Forbidden("no"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.True(t, IsNotFound(NotFound("x")))
}
