package postgres

import (
	"errors"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/collabnote/collabnote/pkg/store"
)

// scope identifies one sibling set as column conditions, e.g.
// {"parent_page_id": nil} for top-level pages or
// {"page_id": p, "parent_block_id": b} for nested blocks. A nil value
// matches IS NULL. Soft-deleted rows never participate: GORM's DeletedAt
// filter applies to every query built from a scope.
type scope map[string]any

// renormGap is the smallest index gap fractional repositioning will split.
// Repeated moves between the same two neighbors halve the gap each time;
// once it drops below this epsilon the whole scope is rewritten to integer
// indices before the move proceeds.
const renormGap = 1e-9

// tree holds the ordered-tree primitives for one entity type. The callbacks
// supply the per-entity pieces (identity, parent linkage, sibling scope,
// deep-copy construction) so the ordering and cascade mechanics are written
// once and shared by the page and block repositories.
type tree[T any] struct {
	// id returns the node's uuid.
	id func(*T) uuid.UUID
	// parentID returns the uuid of the node's parent within this tree, nil
	// at the root level.
	parentID func(*T) *uuid.UUID
	// index and setIndex access the node's sort index.
	index    func(*T) float64
	setIndex func(*T, float64)
	// scopeOf returns the sibling scope containing the node.
	scopeOf func(*T) scope
	// childScopeOf returns the scope of the node's direct children.
	childScopeOf func(*T) scope
	// clone builds an unsaved deep copy of src attached under parent; a nil
	// parent keeps src's own parent. The copy must carry a zero id so the
	// create hook assigns a fresh one.
	clone func(src, parent *T) *T
	// fetch loads a live node by id, gorm.ErrRecordNotFound when absent.
	fetch func(tx *gorm.DB, id uuid.UUID) (*T, error)
}

// siblings returns the live members of sc in ascending index order,
// excluding the node with the given id when exclude is non-nil.
func (t *tree[T]) siblings(tx *gorm.DB, sc scope, exclude *uuid.UUID) ([]*T, error) {
	var out []*T
	q := tx.Where(map[string]any(sc)).Order("sort_index asc")
	if exclude != nil {
		q = q.Not("id = ?", exclude.String())
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// insertAfter computes the index for a new node entering sc and makes room
// for it. With a reference node the new index is reference.index + 1 and
// every live sibling beyond the reference is shifted up by one, which
// preserves uniqueness exactly and keeps the slot directly after the
// reference even when fractional indices sit between it and the next
// integer. Without a reference the node is appended at
// max(sibling indices) + 1, or 0 when the scope is empty.
func (t *tree[T]) insertAfter(tx *gorm.DB, sc scope, refID *uuid.UUID) (float64, error) {
	if refID != nil {
		ref, err := t.fetch(tx, *refID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, store.ErrReferenceNotFound
			}
			return 0, err
		}
		if !t.inScope(ref, sc) {
			return 0, store.ErrReferenceNotFound
		}
		idx := t.index(ref) + 1
		if err := t.shiftUp(tx, sc, t.index(ref)); err != nil {
			return 0, err
		}
		return idx, nil
	}

	sibs, err := t.siblings(tx, sc, nil)
	if err != nil {
		return 0, err
	}
	if len(sibs) == 0 {
		return 0, nil
	}
	return t.index(sibs[len(sibs)-1]) + 1, nil
}

// move computes a fractional index placing node into sc after refID, or
// first when refID is nil: the midpoint between anchor and its next sibling,
// anchor + 1000 when the anchor is last, next/2 when placed before the first
// sibling, 0 when the scope is empty. No other row moves. When the gap being
// split has shrunk below renormGap the scope is renormalized to integer
// indices first and the placement recomputed.
func (t *tree[T]) move(tx *gorm.DB, node *T, sc scope, refID *uuid.UUID) (float64, error) {
	nodeID := t.id(node)
	for {
		sibs, err := t.siblings(tx, sc, &nodeID)
		if err != nil {
			return 0, err
		}

		idx, gap, err := placeAmong(t, sibs, refID)
		if err != nil {
			return 0, err
		}
		if gap >= renormGap {
			return idx, nil
		}
		if err := t.renormalize(tx, sibs); err != nil {
			return 0, err
		}
	}
}

// placeAmong computes the fractional placement and reports the width of the
// gap it split (renormGap or wider when no existing gap was split, so the
// caller only renormalizes on genuine underflow).
func placeAmong[T any](t *tree[T], sibs []*T, refID *uuid.UUID) (idx, gap float64, err error) {
	if refID == nil {
		if len(sibs) == 0 {
			return 0, renormGap, nil
		}
		first := t.index(sibs[0])
		return first / 2, first, nil
	}

	at := -1
	for i, s := range sibs {
		if t.id(s) == *refID {
			at = i
			break
		}
	}
	if at == -1 {
		return 0, 0, store.ErrReferenceNotFound
	}
	prev := t.index(sibs[at])
	if at == len(sibs)-1 {
		return prev + 1000, renormGap, nil
	}
	next := t.index(sibs[at+1])
	return (prev + next) / 2, next - prev, nil
}

// renormalize rewrites the given ordered siblings to the integer sequence
// 1..n, restoring headroom for fractional placement. Starting at 1 rather
// than 0 keeps "place first" (next/2) collision-free immediately after a
// rewrite. Runs inside the caller's transaction.
func (t *tree[T]) renormalize(tx *gorm.DB, ordered []*T) error {
	for i, s := range ordered {
		idx := float64(i + 1)
		if t.index(s) == idx {
			continue
		}
		err := tx.Model(new(T)).Where("id = ?", t.id(s).String()).
			UpdateColumn("sort_index", idx).Error
		if err != nil {
			return err
		}
		t.setIndex(s, idx)
	}
	return nil
}

// softDeleteSubtree tombstones node and every live descendant, then closes
// the index gap at the node's own sibling level. Descendant levels keep
// their indices: they are invisible once tombstoned. Must run inside one
// transaction so the cascade is all-or-nothing.
func (t *tree[T]) softDeleteSubtree(tx *gorm.DB, node *T) error {
	sc := t.scopeOf(node)
	idx := t.index(node)
	if err := t.deleteRecursive(tx, node); err != nil {
		return err
	}
	return t.closeGap(tx, sc, idx)
}

func (t *tree[T]) deleteRecursive(tx *gorm.DB, node *T) error {
	children, err := t.siblings(tx, t.childScopeOf(node), nil)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := t.deleteRecursive(tx, child); err != nil {
			return err
		}
	}
	return tx.Where("id = ?", t.id(node).String()).Delete(new(T)).Error
}

// duplicateSubtree deep-copies node at index original + 1, shifting
// subsequent siblings up by one first. With includeChildren the live child
// subtree is copied recursively under the fresh id, each child keeping its
// original relative sort index and shape. Must run inside one transaction.
func (t *tree[T]) duplicateSubtree(tx *gorm.DB, node *T, includeChildren bool) (*T, error) {
	sc := t.scopeOf(node)
	if err := t.shiftUp(tx, sc, t.index(node)); err != nil {
		return nil, err
	}

	dup := t.clone(node, nil)
	t.setIndex(dup, t.index(node)+1)
	if err := tx.Create(dup).Error; err != nil {
		return nil, err
	}

	if includeChildren {
		if err := t.duplicateChildren(tx, node, dup); err != nil {
			return nil, err
		}
	}
	return dup, nil
}

func (t *tree[T]) duplicateChildren(tx *gorm.DB, src, dst *T) error {
	children, err := t.siblings(tx, t.childScopeOf(src), nil)
	if err != nil {
		return err
	}
	for _, child := range children {
		childCopy := t.clone(child, dst)
		t.setIndex(childCopy, t.index(child))
		if err := tx.Create(childCopy).Error; err != nil {
			return err
		}
		if err := t.duplicateChildren(tx, child, childCopy); err != nil {
			return err
		}
	}
	return nil
}

// isDescendant reports whether candidate is node itself or sits anywhere in
// node's subtree, by walking candidate's parent chain upward. Used to reject
// cyclic reparenting.
func (t *tree[T]) isDescendant(tx *gorm.DB, nodeID uuid.UUID, candidate uuid.UUID) (bool, error) {
	cur := candidate
	for {
		if cur == nodeID {
			return true, nil
		}
		n, err := t.fetch(tx, cur)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, nil
			}
			return false, err
		}
		p := t.parentID(n)
		if p == nil {
			return false, nil
		}
		cur = *p
	}
}

// shiftUp increments the index of every live sibling in sc strictly beyond
// after, opening the slot at after + 1. Column-only update: position shifts
// do not stamp UpdatedAt.
func (t *tree[T]) shiftUp(tx *gorm.DB, sc scope, after float64) error {
	return tx.Model(new(T)).
		Where(map[string]any(sc)).
		Where("sort_index > ?", after).
		UpdateColumn("sort_index", gorm.Expr("sort_index + 1")).Error
}

// closeGap re-packs a sibling scope after a deletion. When the removed index
// and every surviving index are integers the scope is dense, so decrementing
// everything beyond the removed index restores density without touching the
// rows before it. A fractional index anywhere means a plain decrement could
// land one sibling on another (removing 0.5 from {0, 0.5, 1} would send 1
// onto 0), so the scope is rewritten to clean integers instead.
func (t *tree[T]) closeGap(tx *gorm.DB, sc scope, removed float64) error {
	sibs, err := t.siblings(tx, sc, nil)
	if err != nil {
		return err
	}
	if !integerIndexed(removed) || !integersOnly(t, sibs) {
		return t.renormalize(tx, sibs)
	}
	return tx.Model(new(T)).
		Where(map[string]any(sc)).
		Where("sort_index > ?", removed).
		UpdateColumn("sort_index", gorm.Expr("sort_index - 1")).Error
}

func integerIndexed(idx float64) bool {
	return idx == math.Trunc(idx)
}

func integersOnly[T any](t *tree[T], sibs []*T) bool {
	for _, s := range sibs {
		if !integerIndexed(t.index(s)) {
			return false
		}
	}
	return true
}

// inScope reports whether the node's current sibling scope equals sc. Scope
// values are normalized to nil or a uuid string by the scope builders, so
// plain comparison suffices.
func (t *tree[T]) inScope(node *T, sc scope) bool {
	own := t.scopeOf(node)
	if len(own) != len(sc) {
		return false
	}
	for k, v := range sc {
		ov, ok := own[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}
