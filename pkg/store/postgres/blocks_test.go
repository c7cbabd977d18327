package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabnote/collabnote/pkg/models"
	"github.com/collabnote/collabnote/pkg/store"
)

func TestBlockInsertionAndGapClose(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	page := mustCreatePage(t, s, "page", nil)

	x := mustCreateBlock(t, s, page.ID, nil, nil, "x")
	y := mustCreateBlock(t, s, page.ID, nil, nil, "y")
	z := mustCreateBlock(t, s, page.ID, nil, nil, "z")
	assert.Equal(t, 0.0, x.SortIndex)
	assert.Equal(t, 1.0, y.SortIndex)
	assert.Equal(t, 2.0, z.SortIndex)

	// Insert after x: w takes index 1, y and z shift up by one.
	w := mustCreateBlock(t, s, page.ID, nil, &x.ID, "w")
	assert.Equal(t, 1.0, w.SortIndex)

	blocks, err := s.ListPageBlocks(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"x", "w", "y", "z"}, blockTexts(blocks))
	assert.Equal(t, 2.0, blocks[2].SortIndex)
	assert.Equal(t, 3.0, blocks[3].SortIndex)

	// Deleting y re-packs the indices beyond it.
	require.NoError(t, s.DeleteBlock(ctx, y.ID))
	blocks, err = s.ListPageBlocks(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"x", "w", "z"}, blockTexts(blocks))
	assert.Equal(t, 0.0, blocks[0].SortIndex)
	assert.Equal(t, 1.0, blocks[1].SortIndex)
	assert.Equal(t, 2.0, blocks[2].SortIndex)
}

func TestCreateBlockAfterAnchorWithFractionalSibling(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	page := mustCreatePage(t, s, "page", nil)

	a := mustCreateBlock(t, s, page.ID, nil, nil, "a")
	mustCreateBlock(t, s, page.ID, nil, nil, "b")
	c := mustCreateBlock(t, s, page.ID, nil, nil, "c")
	_, err := s.MoveBlock(ctx, c.ID, nil, &a.ID)
	require.NoError(t, err)

	// a (0), c (0.5), b (1). Inserting after a shifts c and b up so the
	// new block sits directly after its anchor, not after the fraction.
	w := mustCreateBlock(t, s, page.ID, nil, &a.ID, "w")
	assert.Equal(t, 1.0, w.SortIndex)

	blocks, err := s.ListPageBlocks(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "w", "c", "b"}, blockTexts(blocks))
	assert.Equal(t, 1.5, blocks[2].SortIndex)
	assert.Equal(t, 2.0, blocks[3].SortIndex)
}

func TestCreateBlockPreconditions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	page := mustCreatePage(t, s, "page", nil)
	top := mustCreateBlock(t, s, page.ID, nil, nil, "top")
	nested := mustCreateBlock(t, s, page.ID, &top.ID, nil, "nested")

	// Anchor must live in the target sibling scope.
	_, err := s.CreateBlock(ctx, store.CreateBlock{
		PageID:       page.ID,
		Type:         models.BlockTypeParagraph,
		AfterBlockID: &nested.ID,
		CreatedByID:  testUser,
	})
	assert.ErrorIs(t, err, store.ErrReferenceNotFound)

	missing := models.NewBlockID()
	_, err = s.CreateBlock(ctx, store.CreateBlock{
		PageID:       page.ID,
		Type:         models.BlockTypeParagraph,
		AfterBlockID: &missing,
		CreatedByID:  testUser,
	})
	assert.ErrorIs(t, err, store.ErrReferenceNotFound)

	_, err = s.CreateBlock(ctx, store.CreateBlock{
		PageID:      models.NewPageID(),
		Type:        models.BlockTypeParagraph,
		CreatedByID: testUser,
	})
	assert.ErrorIs(t, err, store.ErrPageNotFound)

	require.NoError(t, s.DeletePage(ctx, page.ID))
	_, err = s.CreateBlock(ctx, store.CreateBlock{
		PageID:      page.ID,
		Type:        models.BlockTypeParagraph,
		CreatedByID: testUser,
	})
	assert.ErrorIs(t, err, store.ErrPageNotFound)
}

func TestDeleteBlockCascadesSubtree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	page := mustCreatePage(t, s, "page", nil)

	parent := mustCreateBlock(t, s, page.ID, nil, nil, "parent")
	childA := mustCreateBlock(t, s, page.ID, &parent.ID, nil, "child a")
	childB := mustCreateBlock(t, s, page.ID, &parent.ID, nil, "child b")
	grand := mustCreateBlock(t, s, page.ID, &childA.ID, nil, "grand")
	tail := mustCreateBlock(t, s, page.ID, nil, nil, "tail")

	require.NoError(t, s.DeleteBlock(ctx, parent.ID))

	for _, id := range []models.BlockID{parent.ID, childA.ID, childB.ID, grand.ID} {
		_, err := s.GetBlock(ctx, id)
		assert.ErrorIs(t, err, store.ErrBlockNotFound)
	}

	// The sibling after the deleted subtree root closes the gap; rows stay.
	got, err := s.GetBlock(ctx, tail.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.SortIndex)

	var rows int64
	require.NoError(t, s.db.Unscoped().Model(&models.Block{}).Count(&rows).Error)
	assert.Equal(t, int64(5), rows)

	_, err = s.GetBlock(ctx, models.NewBlockID())
	assert.ErrorIs(t, err, store.ErrBlockNotFound)
}

func TestDeleteBlockNextToFractionalIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	page := mustCreatePage(t, s, "page", nil)

	a := mustCreateBlock(t, s, page.ID, nil, nil, "a")
	mustCreateBlock(t, s, page.ID, nil, nil, "b")
	c := mustCreateBlock(t, s, page.ID, nil, nil, "c")
	_, err := s.MoveBlock(ctx, c.ID, nil, &a.ID)
	require.NoError(t, err)

	// Removing the midpoint member must not decrement b onto a. The
	// scope is rewritten to clean integers instead.
	require.NoError(t, s.DeleteBlock(ctx, c.ID))
	blocks, err := s.ListPageBlocks(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, blockTexts(blocks))
	assert.Equal(t, 1.0, blocks[0].SortIndex)
	assert.Equal(t, 2.0, blocks[1].SortIndex)

	// Removing an integer member while a fractional sibling survives
	// rewrites the scope too.
	d := mustCreateBlock(t, s, page.ID, nil, nil, "d")
	_, err = s.MoveBlock(ctx, d.ID, nil, &a.ID)
	require.NoError(t, err)
	require.NoError(t, s.DeleteBlock(ctx, a.ID))
	blocks, err = s.ListPageBlocks(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"d", "b"}, blockTexts(blocks))
	assert.Equal(t, 1.0, blocks[0].SortIndex)
	assert.Equal(t, 2.0, blocks[1].SortIndex)
}

func TestMoveBlockFractionalIndexing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	page := mustCreatePage(t, s, "page", nil)

	a := mustCreateBlock(t, s, page.ID, nil, nil, "a")
	b := mustCreateBlock(t, s, page.ID, nil, nil, "b")
	c := mustCreateBlock(t, s, page.ID, nil, nil, "c")

	// After a, between a (0) and b (1): the midpoint.
	moved, err := s.MoveBlock(ctx, c.ID, nil, &a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, moved.SortIndex)

	blocks, err := s.ListPageBlocks(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, blockTexts(blocks))

	// To the front with no anchor. The first remaining sibling sits at 0,
	// so the scope renormalizes to 1..n before splitting.
	moved, err = s.MoveBlock(ctx, c.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, moved.SortIndex)

	blocks, err = s.ListPageBlocks(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, blockTexts(blocks))
	assert.Equal(t, 1.0, blocks[1].SortIndex)
	assert.Equal(t, 2.0, blocks[2].SortIndex)

	// After the last sibling: a large additive step, no neighbor to split.
	moved, err = s.MoveBlock(ctx, c.ID, nil, &b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1002.0, moved.SortIndex)
}

func TestMoveBlockReparents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	page := mustCreatePage(t, s, "page", nil)

	list := mustCreateBlock(t, s, page.ID, nil, nil, "list")
	item := mustCreateBlock(t, s, page.ID, &list.ID, nil, "item")
	loose := mustCreateBlock(t, s, page.ID, nil, nil, "loose")

	moved, err := s.MoveBlock(ctx, loose.ID, &list.ID, &item.ID)
	require.NoError(t, err)
	require.NotNil(t, moved.ParentBlockID)
	assert.Equal(t, list.ID, *moved.ParentBlockID)
	assert.Equal(t, 1000.0, moved.SortIndex)

	got, err := s.GetBlock(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"item", "loose"}, blockTexts(got.ChildBlocks))
}

func TestMoveBlockRejections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	page := mustCreatePage(t, s, "page", nil)
	other := mustCreatePage(t, s, "other", nil)

	a := mustCreateBlock(t, s, page.ID, nil, nil, "a")
	b := mustCreateBlock(t, s, page.ID, &a.ID, nil, "b")
	c := mustCreateBlock(t, s, page.ID, &b.ID, nil, "c")
	foreign := mustCreateBlock(t, s, other.ID, nil, nil, "foreign")

	// Under its own descendant, or under itself.
	_, err := s.MoveBlock(ctx, a.ID, &c.ID, nil)
	assert.ErrorIs(t, err, store.ErrCyclicMove)
	_, err = s.MoveBlock(ctx, a.ID, &a.ID, nil)
	assert.ErrorIs(t, err, store.ErrCyclicMove)

	// Blocks never change pages.
	_, err = s.MoveBlock(ctx, a.ID, &foreign.ID, nil)
	assert.ErrorIs(t, err, store.ErrReferenceNotFound)

	missing := models.NewBlockID()
	_, err = s.MoveBlock(ctx, a.ID, &missing, nil)
	assert.ErrorIs(t, err, store.ErrReferenceNotFound)

	_, err = s.MoveBlock(ctx, missing, nil, nil)
	assert.ErrorIs(t, err, store.ErrBlockNotFound)
}

func TestDuplicateBlockShiftsAndCopiesSubtree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	page := mustCreatePage(t, s, "page", nil)

	mustCreateBlock(t, s, page.ID, nil, nil, "a")
	x := mustCreateBlock(t, s, page.ID, nil, nil, "x")
	mustCreateBlock(t, s, page.ID, nil, nil, "z")
	first := mustCreateBlock(t, s, page.ID, &x.ID, nil, "first")
	mustCreateBlock(t, s, page.ID, &x.ID, nil, "second")
	mustCreateBlock(t, s, page.ID, &first.ID, nil, "nested")

	dup, err := s.DuplicateBlock(ctx, x.ID, true)
	require.NoError(t, err)
	assert.NotEqual(t, x.ID, dup.ID)
	assert.Equal(t, x.SortIndex+1, dup.SortIndex)
	assert.Equal(t, models.BlockTypeParagraph, dup.Type)
	assert.Equal(t, "x", dup.Properties["text"])

	// The copy lands directly after the original; z shifts up.
	blocks, err := s.ListPageBlocks(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "x", "x", "z"}, blockTexts(blocks))
	assert.Equal(t, 3.0, blocks[3].SortIndex)

	// Children are fresh rows preserving relative order and nesting.
	tree, err := s.GetBlockTree(ctx, page.ID)
	require.NoError(t, err)
	copied := tree[2]
	require.Equal(t, []string{"first", "second"}, blockTexts(copied.ChildBlocks))
	assert.NotEqual(t, first.ID, copied.ChildBlocks[0].ID)
	require.Len(t, copied.ChildBlocks[0].ChildBlocks, 1)
	assert.Equal(t, "nested", copied.ChildBlocks[0].ChildBlocks[0].Properties["text"])

	// Shallow duplicate copies only the root block.
	shallow, err := s.DuplicateBlock(ctx, x.ID, false)
	require.NoError(t, err)
	got, err := s.GetBlock(ctx, shallow.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ChildBlocks)
}

func TestDuplicateBlockAfterFractionalMove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	page := mustCreatePage(t, s, "page", nil)

	a := mustCreateBlock(t, s, page.ID, nil, nil, "a")
	mustCreateBlock(t, s, page.ID, nil, nil, "b")
	c := mustCreateBlock(t, s, page.ID, nil, nil, "c")
	_, err := s.MoveBlock(ctx, c.ID, nil, &a.ID)
	require.NoError(t, err)

	// a (0), c (0.5), b (1). Everything beyond the original shifts, so
	// the copy lands directly after it rather than after the fraction.
	dup, err := s.DuplicateBlock(ctx, a.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, dup.SortIndex)

	blocks, err := s.ListPageBlocks(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "a", "c", "b"}, blockTexts(blocks))
	assert.Equal(t, dup.ID, blocks[1].ID)
	assert.Equal(t, 1.5, blocks[2].SortIndex)
	assert.Equal(t, 2.0, blocks[3].SortIndex)
}

func TestUpdateBlockReplacesPropertiesWholesale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	page := mustCreatePage(t, s, "page", nil)
	block := mustCreateBlock(t, s, page.ID, nil, nil, "before")

	editor := models.NewUserID()
	updated, err := s.UpdateBlock(ctx, block.ID, store.UpdateBlock{
		Properties: models.JSONMap{"checked": true},
	}, editor)
	require.NoError(t, err)
	assert.Equal(t, true, updated.Properties["checked"])
	// Replacement, not merge: the old key is gone.
	assert.NotContains(t, updated.Properties, "text")
	assert.Equal(t, editor, updated.LastEditedByID)

	// Nil properties keep the stored document.
	idx := 7.0
	updated, err = s.UpdateBlock(ctx, block.ID, store.UpdateBlock{SortIndex: &idx}, editor)
	require.NoError(t, err)
	assert.Equal(t, true, updated.Properties["checked"])
	assert.Equal(t, 7.0, updated.SortIndex)

	_, err = s.UpdateBlock(ctx, models.NewBlockID(), store.UpdateBlock{}, editor)
	assert.ErrorIs(t, err, store.ErrBlockNotFound)
}

func TestGetBlockTreeNestsByParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	page := mustCreatePage(t, s, "page", nil)

	r1 := mustCreateBlock(t, s, page.ID, nil, nil, "r1")
	mustCreateBlock(t, s, page.ID, nil, nil, "r2")
	child := mustCreateBlock(t, s, page.ID, &r1.ID, nil, "child")
	mustCreateBlock(t, s, page.ID, &child.ID, nil, "grand")

	tree, err := s.GetBlockTree(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"r1", "r2"}, blockTexts(tree))
	require.Equal(t, []string{"child"}, blockTexts(tree[0].ChildBlocks))
	require.Equal(t, []string{"grand"}, blockTexts(tree[0].ChildBlocks[0].ChildBlocks))

	// A deleted subtree disappears from the assembled tree.
	require.NoError(t, s.DeleteBlock(ctx, child.ID))
	tree, err = s.GetBlockTree(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"r1", "r2"}, blockTexts(tree))
	assert.Empty(t, tree[0].ChildBlocks)

	_, err = s.GetBlockTree(ctx, models.NewPageID())
	assert.ErrorIs(t, err, store.ErrPageNotFound)
}
