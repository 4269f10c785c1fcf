package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mahaj/chatcore/pkg/model"
)

// MemoryUsers is a UserStore held in process memory.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]*model.User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]*model.User)}
}

func (s *MemoryUsers) Get(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, model.NotFound("user %s not found", id)
	}
	return cloneUser(u), nil
}

func (s *MemoryUsers) Put(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *MemoryUsers) SetPresence(_ context.Context, id string, online bool, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return model.NotFound("user %s not found", id)
	}
	u.Online = online
	u.LastSeen = lastSeen
	return nil
}

func (s *MemoryUsers) Block(_ context.Context, userID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return model.NotFound("user %s not found", userID)
	}
	u.BlockedUsers = model.Union(u.BlockedUsers, targetID)
	return nil
}

func (s *MemoryUsers) Unblock(_ context.Context, userID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return model.NotFound("user %s not found", userID)
	}
	u.BlockedUsers = model.Without(u.BlockedUsers, targetID)
	return nil
}

func cloneUser(u *model.User) *model.User {
	cp := *u
	cp.BlockedUsers = append([]string(nil), u.BlockedUsers...)
	return &cp
}

// MemoryConversations is a ConversationStore held in process memory.
type MemoryConversations struct {
	mu     sync.RWMutex
	convs  map[string]*model.Conversation
	direct map[string]string
}

func NewMemoryConversations() *MemoryConversations {
	return &MemoryConversations{
		convs:  make(map[string]*model.Conversation),
		direct: make(map[string]string),
	}
}

func (s *MemoryConversations) Get(_ context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convs[id]
	if !ok {
		return nil, model.NotFound("conversation %s not found", id)
	}
	return cloneConversation(c), nil
}

func (s *MemoryConversations) FindOrCreateDirect(_ context.Context, conv *model.Conversation) (*model.Conversation, bool, error) {
	if len(conv.Participants) != 2 {
		return nil, false, model.InvalidArgument("direct conversation needs exactly two participants")
	}
	key := model.PairKey(conv.Participants[0], conv.Participants[1])

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.direct[key]; ok {
		return cloneConversation(s.convs[id]), false, nil
	}
	s.direct[key] = conv.ID
	s.convs[conv.ID] = cloneConversation(conv)
	return cloneConversation(conv), true, nil
}

func (s *MemoryConversations) FindDirect(_ context.Context, a, b string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.direct[model.PairKey(a, b)]
	if !ok {
		return nil, model.NotFound("no conversation between %s and %s", a, b)
	}
	return cloneConversation(s.convs[id]), nil
}

func (s *MemoryConversations) CreateGroup(_ context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *MemoryConversations) AddParticipants(_ context.Context, id string, userIDs []string, at time.Time) error {
	return s.update(id, func(c *model.Conversation) {
		c.Participants = model.Union(c.Participants, userIDs...)
		c.UpdatedAt = at
	})
}

func (s *MemoryConversations) UpdateName(_ context.Context, id, name string, at time.Time) error {
	return s.update(id, func(c *model.Conversation) {
		c.Name = name
		c.UpdatedAt = at
	})
}

func (s *MemoryConversations) SetArchived(_ context.Context, id, userID string, archived bool) error {
	return s.update(id, func(c *model.Conversation) {
		if archived {
			c.ArchivedBy = model.Union(c.ArchivedBy, userID)
		} else {
			c.ArchivedBy = model.Without(c.ArchivedBy, userID)
		}
	})
}

func (s *MemoryConversations) ListArchived(_ context.Context, userID string) ([]*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Conversation
	for _, c := range s.convs {
		if c.ArchivedFor(userID) {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryConversations) update(id string, fn func(*model.Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[id]
	if !ok {
		return model.NotFound("conversation %s not found", id)
	}
	fn(c)
	return nil
}

func cloneConversation(c *model.Conversation) *model.Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.Admins = append([]string(nil), c.Admins...)
	cp.ArchivedBy = append([]string(nil), c.ArchivedBy...)
	return &cp
}

// MemoryMessages is a MessageStore held in process memory.
type MemoryMessages struct {
	mu      sync.RWMutex
	msgs    map[int64]*model.Message
	byConv  map[string][]int64
	pending map[string]map[int64]struct{}
}

func NewMemoryMessages() *MemoryMessages {
	return &MemoryMessages{
		msgs:    make(map[int64]*model.Message),
		byConv:  make(map[string][]int64),
		pending: make(map[string]map[int64]struct{}),
	}
}

func (s *MemoryMessages) Create(_ context.Context, msg *model.Message, recipients []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.msgs[msg.ID]; ok {
		return &model.Error{Kind: model.KindConflict, Message: "message id already used"}
	}
	s.msgs[msg.ID] = cloneMessage(msg)
	s.byConv[msg.ConversationID] = append(s.byConv[msg.ConversationID], msg.ID)
	for _, r := range recipients {
		if r == msg.SenderID {
			continue
		}
		if s.pending[r] == nil {
			s.pending[r] = make(map[int64]struct{})
		}
		s.pending[r][msg.ID] = struct{}{}
	}
	return nil
}

func (s *MemoryMessages) Get(_ context.Context, id int64) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.msgs[id]
	if !ok {
		return nil, model.NotFound("message %d not found", id)
	}
	return cloneMessage(m), nil
}

func (s *MemoryMessages) ListByConversation(_ context.Context, conversationID string, limit int) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byConv[conversationID]
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}
	out := make([]*model.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneMessage(s.msgs[id]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryMessages) AdvanceReceipt(_ context.Context, messageID int64, userID string, target model.ReceiptState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgs[messageID]
	if !ok {
		return false, model.NotFound("message %d not found", messageID)
	}
	if userID == m.SenderID || target <= m.Receipts[userID] {
		return false, nil
	}
	if m.Receipts == nil {
		m.Receipts = make(map[string]model.ReceiptState)
	}
	m.Receipts[userID] = target
	delete(s.pending[userID], messageID)
	return true, nil
}

func (s *MemoryMessages) Pending(_ context.Context, userID string) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int64, 0, len(s.pending[userID]))
	for id := range s.pending[userID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemoryMessages) MarkDeletedFor(_ context.Context, messageID int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgs[messageID]
	if !ok {
		return model.NotFound("message %d not found", messageID)
	}
	if m.DeletedForEveryone {
		return nil
	}
	m.DeletedBy = model.Union(m.DeletedBy, userID)
	return nil
}

func (s *MemoryMessages) MarkDeletedForEveryone(_ context.Context, messageID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgs[messageID]
	if !ok {
		return false, model.NotFound("message %d not found", messageID)
	}
	if m.DeletedForEveryone {
		return false, nil
	}
	m.DeletedForEveryone = true
	m.DeletedBy = nil
	return true, nil
}

func (s *MemoryMessages) SetStarred(_ context.Context, messageID int64, userID string, starred bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgs[messageID]
	if !ok {
		return model.NotFound("message %d not found", messageID)
	}
	if starred {
		m.StarredBy = model.Union(m.StarredBy, userID)
	} else {
		m.StarredBy = model.Without(m.StarredBy, userID)
	}
	return nil
}

func (s *MemoryMessages) ListStarred(_ context.Context, userID string) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Message
	for _, m := range s.msgs {
		if m.StarredFor(userID) {
			out = append(out, cloneMessage(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func cloneMessage(m *model.Message) *model.Message {
	cp := *m
	cp.DeletedBy = append([]string(nil), m.DeletedBy...)
	cp.StarredBy = append([]string(nil), m.StarredBy...)
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		cp.ReplyTo = &r
	}
	cp.Receipts = make(map[string]model.ReceiptState, len(m.Receipts))
	for k, v := range m.Receipts {
		cp.Receipts[k] = v
	}
	return &cp
}

// MemoryInbox is an InboxStore held in process memory.
type MemoryInbox struct {
	mu      sync.Mutex
	entries map[string]map[string]*InboxEntry
}

func NewMemoryInbox() *MemoryInbox {
	return &MemoryInbox{entries: make(map[string]map[string]*InboxEntry)}
}

func (s *MemoryInbox) RecordMessage(_ context.Context, conversationID, senderID string, participants []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, uid := range participants {
		if s.entries[uid] == nil {
			s.entries[uid] = make(map[string]*InboxEntry)
		}
		e, ok := s.entries[uid][conversationID]
		if !ok {
			e = &InboxEntry{ConversationID: conversationID}
			s.entries[uid][conversationID] = e
		}
		if at.After(e.LastUpdated) {
			e.LastUpdated = at
		}
		if uid != senderID {
			e.UnreadCount++
		}
	}
	return nil
}

func (s *MemoryInbox) List(_ context.Context, userID string) ([]InboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]InboxEntry, 0, len(s.entries[userID]))
	for _, e := range s.entries[userID] {
		out = append(out, *e)
	}
	sortInbox(out)
	return out, nil
}

func (s *MemoryInbox) ResetUnread(_ context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[userID][conversationID]; ok {
		e.UnreadCount = 0
	}
	return nil
}

func sortInbox(entries []InboxEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastUpdated.Equal(entries[j].LastUpdated) {
			return entries[i].ConversationID < entries[j].ConversationID
		}
		return entries[i].LastUpdated.After(entries[j].LastUpdated)
	})
}

var (
	_ UserStore         = (*MemoryUsers)(nil)
	_ ConversationStore = (*MemoryConversations)(nil)
	_ MessageStore      = (*MemoryMessages)(nil)
	_ InboxStore        = (*MemoryInbox)(nil)
)
