package main

import (
	"context"
	"testing"
	"time"

	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandle_RecordsNewMessages(t *testing.T) {
	ctx := context.Background()
	inbox := store.NewMemoryInbox()
	c := NewConsumer(inbox, nil)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env := model.Envelope{
		Event:          model.EventNewMessage,
		Recipients:     []string{"alice", "bob"},
		ConversationID: "conv-1",
		SenderID:       "alice",
		Timestamp:      at,
	}
	c.Handle(ctx, env)
	c.Handle(ctx, env)

	bob, err := inbox.List(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, "conv-1", bob[0].ConversationID)
	assert.Equal(t, int64(2), bob[0].UnreadCount)
	assert.True(t, at.Equal(bob[0].LastUpdated))

	alice, err := inbox.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, int64(0), alice[0].UnreadCount)
}

func TestHandle_SkipsOtherEvents(t *testing.T) {
	ctx := context.Background()
	inbox := store.NewMemoryInbox()
	c := NewConsumer(inbox, nil)

	c.Handle(ctx, model.Envelope{Event: model.EventUserTyping, Recipients: []string{"bob"}})
	c.Handle(ctx, model.Envelope{Event: model.EventNewMessage, Recipients: []string{"bob"}})

	entries, err := inbox.List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
