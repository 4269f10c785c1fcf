package core

import (
	"context"
	"testing"

	"github.com/mahaj/chatcore/pkg/config"
	"github.com/mahaj/chatcore/pkg/messaging"
	"github.com/mahaj/chatcore/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_MemoryWithoutBackends(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{StoreDriver: config.StoreMemory, NodeID: 7}

	n, err := Open(ctx, cfg, nil, nil)
	require.NoError(t, err)
	defer n.Close()

	assert.Nil(t, n.Relay)
	assert.Nil(t, n.Redis)
	assert.Nil(t, n.Session)
	assert.NotEmpty(t, n.Origin)

	require.NoError(t, n.Users.Put(ctx, &model.User{ID: "a"}))
	require.NoError(t, n.Users.Put(ctx, &model.User{ID: "b"}))
	msg, err := n.Messages.SendDirect(ctx, "a", "b", messaging.SendRequest{Content: "hi"})
	require.NoError(t, err)

	// Without a relay the unread counters are kept inline.
	entries, err := n.Inbox.List(ctx, "b")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, msg.ConversationID, entries[0].ConversationID)
	assert.Equal(t, int64(1), entries[0].UnreadCount)
}

func TestOpen_RejectsBadNodeID(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{StoreDriver: config.StoreMemory, NodeID: 5000}, nil, nil)
	assert.Error(t, err)
}
