// Package conversation resolves and maintains 1:1 and group conversations.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/store"
)

// minGroupMembers counts members other than the creator.
const minGroupMembers = 2

type Directory struct {
	convs store.ConversationStore
	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

func New(convs store.ConversationStore, log *slog.Logger) *Directory {
	if log == nil {
		log = slog.Default()
	}
	return &Directory{
		convs: convs,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// EnsureOneToOne returns the id of the single 1:1 conversation between a and
// b, creating it on first contact.
func (d *Directory) EnsureOneToOne(ctx context.Context, a, b string) (string, error) {
	c, err := d.Direct(ctx, a, b)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// Direct is EnsureOneToOne returning the whole conversation.
func (d *Directory) Direct(ctx context.Context, a, b string) (*model.Conversation, error) {
	if a == "" || b == "" {
		return nil, model.InvalidArgument("both participants are required")
	}
	if a == b {
		return nil, model.InvalidArgument("cannot open a conversation with yourself")
	}

	now := d.now().UTC()
	c, created, err := d.convs.FindOrCreateDirect(ctx, &model.Conversation{
		ID:           d.newID(),
		Participants: []string{a, b},
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	if created {
		d.log.Info("direct conversation created",
			slog.String("conversation_id", c.ID),
			slog.String("user_a", a),
			slog.String("user_b", b),
		)
	}
	return c, nil
}

// FindDirect returns the existing 1:1 conversation between a and b without
// creating one.
func (d *Directory) FindDirect(ctx context.Context, a, b string) (*model.Conversation, error) {
	return d.convs.FindDirect(ctx, a, b)
}

func (d *Directory) CreateGroup(ctx context.Context, creator, name string, members []string) (*model.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.InvalidArgument("group name is required")
	}
	others := model.Without(model.Union(nil, members...), creator)
	if len(others) < minGroupMembers {
		return nil, model.InvalidArgument("a group needs at least %d other members", minGroupMembers)
	}

	now := d.now().UTC()
	c := &model.Conversation{
		ID:           d.newID(),
		IsGroup:      true,
		Name:         name,
		Participants: model.Union([]string{creator}, others...),
		Admins:       []string{creator},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.convs.CreateGroup(ctx, c); err != nil {
		return nil, err
	}
	d.log.Info("group created", slog.String("conversation_id", c.ID), slog.Int("members", len(c.Participants)))
	return c, nil
}

// AddMembers unions members into the group. Existing participants are
// ignored.
func (d *Directory) AddMembers(ctx context.Context, groupID, actor string, members []string) (*model.Conversation, error) {
	c, err := d.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !c.IsAdmin(actor) {
		return nil, model.Forbidden("only admins can add members")
	}
	add := model.Union(nil, members...)
	if len(add) == 0 {
		return nil, model.InvalidArgument("no members to add")
	}
	if err := d.convs.AddParticipants(ctx, groupID, add, d.now().UTC()); err != nil {
		return nil, err
	}
	return d.convs.Get(ctx, groupID)
}

func (d *Directory) UpdateGroup(ctx context.Context, groupID, actor, name string) (*model.Conversation, error) {
	c, err := d.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !c.IsAdmin(actor) {
		return nil, model.Forbidden("only admins can update the group")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.InvalidArgument("group name is required")
	}
	if err := d.convs.UpdateName(ctx, groupID, name, d.now().UTC()); err != nil {
		return nil, err
	}
	return d.convs.Get(ctx, groupID)
}

func (d *Directory) Members(ctx context.Context, groupID, requester string) ([]string, error) {
	c, err := d.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(requester) {
		return nil, model.Forbidden("not a member of this group")
	}
	return c.Participants, nil
}

func (d *Directory) Archive(ctx context.Context, conversationID, userID string) error {
	return d.setArchived(ctx, conversationID, userID, true)
}

func (d *Directory) Unarchive(ctx context.Context, conversationID, userID string) error {
	return d.setArchived(ctx, conversationID, userID, false)
}

func (d *Directory) setArchived(ctx context.Context, conversationID, userID string, archived bool) error {
	if _, err := d.Participant(ctx, conversationID, userID); err != nil {
		return err
	}
	return d.convs.SetArchived(ctx, conversationID, userID, archived)
}

func (d *Directory) ListArchived(ctx context.Context, userID string) ([]*model.Conversation, error) {
	return d.convs.ListArchived(ctx, userID)
}

func (d *Directory) Get(ctx context.Context, id string) (*model.Conversation, error) {
	return d.convs.Get(ctx, id)
}

// Participant loads the conversation and fails with Forbidden unless userID
// belongs to it.
func (d *Directory) Participant(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	c, err := d.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, model.Forbidden("not a participant of this conversation")
	}
	return c, nil
}

func (d *Directory) group(ctx context.Context, id string) (*model.Conversation, error) {
	c, err := d.convs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsGroup {
		return nil, model.NotFound("group %s not found", id)
	}
	return c, nil
}
