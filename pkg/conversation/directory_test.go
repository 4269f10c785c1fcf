package conversation

import (
	"context"
	"sync"
	"testing"

	"github.com/mahaj/chatcore/pkg/model"
	"github.com/mahaj/chatcore/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDirectory() *Directory {
	return New(store.NewMemoryConversations(), nil)
}

func TestEnsureOneToOne_Validation(t *testing.T) {
	d := newDirectory()
	ctx := context.Background()

	_, err := d.EnsureOneToOne(ctx, "a", "a")
	assert.Equal(t, model.KindInvalidArgument, model.KindOf(err))
	_, err = d.EnsureOneToOne(ctx, "", "b")
	assert.Equal(t, model.KindInvalidArgument, model.KindOf(err))
}

func TestEnsureOneToOne_SameIDEitherOrder(t *testing.T) {
	d := newDirectory()
	ctx := context.Background()

	id1, err := d.EnsureOneToOne(ctx, "a", "b")
	require.NoError(t, err)
	id2, err := d.EnsureOneToOne(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	c, err := d.Get(ctx, id1)
	require.NoError(t, err)
	assert.False(t, c.IsGroup)
	assert.ElementsMatch(t, []string{"a", "b"}, c.Participants)
}

func TestEnsureOneToOne_ConcurrentCallersShareOneConversation(t *testing.T) {
	convs := store.NewMemoryConversations()
	d := New(convs, nil)
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 0 {
				a, b = b, a
			}
			id, err := d.EnsureOneToOne(ctx, a, b)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCreateGroup(t *testing.T) {
	d := newDirectory()
	ctx := context.Background()

	_, err := d.CreateGroup(ctx, "a", "   ", []string{"b", "c"})
	assert.Equal(t, model.KindInvalidArgument, model.KindOf(err))

	_, err = d.CreateGroup(ctx, "a", "team", []string{"b", "a", "b"})
	assert.Equal(t, model.KindInvalidArgument, model.KindOf(err), "creator and duplicates do not count")

	g, err := d.CreateGroup(ctx, "a", " team ", []string{"b", "c", "b", "a"})
	require.NoError(t, err)
	assert.True(t, g.IsGroup)
	assert.Equal(t, "team", g.Name)
	assert.Equal(t, []string{"a", "b", "c"}, g.Participants)
	assert.Equal(t, []string{"a"}, g.Admins)
}

func TestAddMembers_AdminOnlyAndIdempotent(t *testing.T) {
	d := newDirectory()
	ctx := context.Background()
	g, err := d.CreateGroup(ctx, "a", "team", []string{"b", "c"})
	require.NoError(t, err)

	_, err = d.AddMembers(ctx, g.ID, "b", []string{"x"})
	assert.Equal(t, model.KindForbidden, model.KindOf(err))

	_, err = d.AddMembers(ctx, g.ID, "a", []string{"x"})
	require.NoError(t, err)
	g, err = d.AddMembers(ctx, g.ID, "a", []string{"x", "b"})
	require.NoError(t, err)

	count := 0
	for _, p := range g.Participants {
		if p == "x" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Len(t, g.Participants, 4)

	direct, _ := d.EnsureOneToOne(ctx, "a", "b")
	_, err = d.AddMembers(ctx, direct, "a", []string{"x"})
	assert.True(t, model.IsNotFound(err))
}

func TestUpdateGroupAndMembers(t *testing.T) {
	d := newDirectory()
	ctx := context.Background()
	g, _ := d.CreateGroup(ctx, "a", "team", []string{"b", "c"})

	_, err := d.UpdateGroup(ctx, g.ID, "c", "renamed")
	assert.Equal(t, model.KindForbidden, model.KindOf(err))

	g, err = d.UpdateGroup(ctx, g.ID, "a", "renamed")
	require.NoError(t, err)
	assert.Equal(t, "renamed", g.Name)

	members, err := d.Members(ctx, g.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, members)

	_, err = d.Members(ctx, g.ID, "z")
	assert.Equal(t, model.KindForbidden, model.KindOf(err))
}

func TestArchiveIsPerViewer(t *testing.T) {
	d := newDirectory()
	ctx := context.Background()
	id, _ := d.EnsureOneToOne(ctx, "a", "b")

	require.NoError(t, d.Archive(ctx, id, "a"))
	require.NoError(t, d.Archive(ctx, id, "a"))

	c, _ := d.Get(ctx, id)
	assert.Equal(t, []string{"a"}, c.ArchivedBy)

	list, _ := d.ListArchived(ctx, "b")
	assert.Empty(t, list)

	assert.Equal(t, model.KindForbidden, model.KindOf(d.Archive(ctx, id, "z")))
	assert.True(t, model.IsNotFound(d.Archive(ctx, "missing", "a")))

	require.NoError(t, d.Unarchive(ctx, id, "a"))
	c, _ = d.Get(ctx, id)
	assert.Empty(t, c.ArchivedBy)
}
