// Package store defines persistence for users, conversations, messages and
// per-user inbox counters, with in-memory and ScyllaDB implementations.
//
// Lookups of unknown ids return a *model.Error of kind not_found.
package store

import (
	"context"
	"time"

	"github.com/mahaj/chatcore/pkg/model"
)

type UserStore interface {
	Get(ctx context.Context, id string) (*model.User, error)
	Put(ctx context.Context, u *model.User) error
	// SetPresence writes the presence fields only.
	SetPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error
	Block(ctx context.Context, userID, targetID string) error
	Unblock(ctx context.Context, userID, targetID string) error
}

type ConversationStore interface {
	Get(ctx context.Context, id string) (*model.Conversation, error)
	// FindOrCreateDirect returns the 1:1 conversation for the pair in
	// conv.Participants, inserting conv if none exists. It is atomic per
	// pair: concurrent callers all get the same conversation back.
	FindOrCreateDirect(ctx context.Context, conv *model.Conversation) (*model.Conversation, bool, error)
	// FindDirect is the lookup half of FindOrCreateDirect.
	FindDirect(ctx context.Context, a, b string) (*model.Conversation, error)
	CreateGroup(ctx context.Context, conv *model.Conversation) error
	// AddParticipants is a set union.
	AddParticipants(ctx context.Context, id string, userIDs []string, at time.Time) error
	UpdateName(ctx context.Context, id, name string, at time.Time) error
	SetArchived(ctx context.Context, id, userID string, archived bool) error
	ListArchived(ctx context.Context, userID string) ([]*model.Conversation, error)
}

type MessageStore interface {
	// Create persists msg and marks it pending for every recipient.
	Create(ctx context.Context, msg *model.Message, recipients []string) error
	Get(ctx context.Context, id int64) (*model.Message, error)
	// ListByConversation returns up to limit messages, oldest first.
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]*model.Message, error)
	// AdvanceReceipt moves userID's receipt on the message to target if that
	// is forward progress and reports whether anything changed. It is the
	// only writer of receipt state and clears the pending mark.
	AdvanceReceipt(ctx context.Context, messageID int64, userID string, target model.ReceiptState) (bool, error)
	// Pending lists ids of messages userID has no receipt for, oldest first.
	Pending(ctx context.Context, userID string) ([]int64, error)
	MarkDeletedFor(ctx context.Context, messageID int64, userID string) error
	// MarkDeletedForEveryone tombstones the message and reports whether it
	// was not already tombstoned.
	MarkDeletedForEveryone(ctx context.Context, messageID int64) (bool, error)
	SetStarred(ctx context.Context, messageID int64, userID string, starred bool) error
	ListStarred(ctx context.Context, userID string) ([]*model.Message, error)
}

// InboxEntry is one row of a user's conversation list.
type InboxEntry struct {
	ConversationID string    `json:"conversation_id"`
	LastUpdated    time.Time `json:"last_updated"`
	UnreadCount    int64     `json:"unread_count"`
}

type InboxStore interface {
	// RecordMessage bumps the conversation for every participant and the
	// unread counter for everyone but the sender.
	RecordMessage(ctx context.Context, conversationID, senderID string, participants []string, at time.Time) error
	List(ctx context.Context, userID string) ([]InboxEntry, error)
	ResetUnread(ctx context.Context, userID, conversationID string) error
}
