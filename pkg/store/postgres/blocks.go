package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/collabnote/collabnote/pkg/models"
	"github.com/collabnote/collabnote/pkg/store"
)

// blockScope builds the sibling scope for blocks sharing a page and parent
// block.
func blockScope(pageID models.PageID, parent *models.BlockID) scope {
	if parent == nil {
		return scope{"page_id": pageID.String(), "parent_block_id": nil}
	}
	return scope{"page_id": pageID.String(), "parent_block_id": parent.String()}
}

// blockTree wires the ordered-tree primitives for the intra-page block tree.
var blockTree = &tree[models.Block]{
	id: func(b *models.Block) uuid.UUID { return b.ID.UUID() },
	parentID: func(b *models.Block) *uuid.UUID {
		if b.ParentBlockID == nil {
			return nil
		}
		u := b.ParentBlockID.UUID()
		return &u
	},
	index:    func(b *models.Block) float64 { return b.SortIndex },
	setIndex: func(b *models.Block, idx float64) { b.SortIndex = idx },
	scopeOf:  func(b *models.Block) scope { return blockScope(b.PageID, b.ParentBlockID) },
	childScopeOf: func(b *models.Block) scope {
		id := b.ID
		return blockScope(b.PageID, &id)
	},
	clone: func(src, parent *models.Block) *models.Block {
		dup := &models.Block{
			PageID:         src.PageID,
			ParentBlockID:  src.ParentBlockID,
			Type:           src.Type,
			Properties:     src.Properties,
			SortIndex:      src.SortIndex,
			CreatedByID:    src.CreatedByID,
			LastEditedByID: src.LastEditedByID,
		}
		if parent != nil {
			id := parent.ID
			dup.ParentBlockID = &id
		}
		return dup
	},
	fetch: fetchBlock,
}

func fetchBlock(tx *gorm.DB, id uuid.UUID) (*models.Block, error) {
	var b models.Block
	if err := tx.First(&b, "id = ?", id.String()).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// requireLivePage resolves the block precondition that the target page
// exists and is not soft-deleted.
func requireLivePage(tx *gorm.DB, pageID models.PageID) error {
	if _, err := fetchPage(tx, pageID.UUID()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", store.ErrPageNotFound, pageID)
		}
		return err
	}
	return nil
}

// CreateBlock inserts a block after its anchor sibling, shifting subsequent
// siblings up by one; without an anchor it appends at the end of the scope.
func (s *Store) CreateBlock(ctx context.Context, in store.CreateBlock) (*models.Block, error) {
	block := &models.Block{
		PageID:         in.PageID,
		ParentBlockID:  in.ParentBlockID,
		Type:           in.Type,
		Properties:     in.Properties,
		CreatedByID:    in.CreatedByID,
		LastEditedByID: in.CreatedByID,
	}
	if block.Properties == nil {
		block.Properties = models.JSONMap{}
	}
	err := s.txSerializable(ctx, func(tx *gorm.DB) error {
		if err := requireLivePage(tx, in.PageID); err != nil {
			return err
		}
		var refID *uuid.UUID
		if in.AfterBlockID != nil {
			u := in.AfterBlockID.UUID()
			refID = &u
		}
		idx, err := blockTree.insertAfter(tx, blockScope(in.PageID, in.ParentBlockID), refID)
		if err != nil {
			return err
		}
		block.SortIndex = idx
		return tx.Create(block).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return block, nil
}

// GetBlock returns a live block with its ordered live children.
func (s *Store) GetBlock(ctx context.Context, id models.BlockID) (*models.Block, error) {
	db := s.db.WithContext(ctx)
	block, err := fetchBlock(db, id.UUID())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", store.ErrBlockNotFound, id)
		}
		return nil, err
	}
	children, err := blockTree.siblings(db, blockTree.childScopeOf(block), nil)
	if err != nil {
		return nil, err
	}
	block.ChildBlocks = children
	return block, nil
}

// UpdateBlock applies the given fields to a live block, stamping
// LastEditedByID and UpdatedAt. A nil Properties map keeps the stored
// document; last write wins per field.
func (s *Store) UpdateBlock(ctx context.Context, id models.BlockID, in store.UpdateBlock, editedBy models.UserID) (*models.Block, error) {
	var block *models.Block
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		block, err = fetchBlock(tx, id.UUID())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", store.ErrBlockNotFound, id)
			}
			return err
		}
		if in.Properties != nil {
			block.Properties = in.Properties
		}
		if in.SortIndex != nil {
			block.SortIndex = *in.SortIndex
		}
		block.LastEditedByID = editedBy
		return tx.Save(block).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return block, nil
}

// DeleteBlock soft-deletes the block and its descendant blocks as one
// transaction, then closes the sibling index gap at the block's own level.
// The child scope carries the page id, so the cascade never crosses into
// another page.
func (s *Store) DeleteBlock(ctx context.Context, id models.BlockID) error {
	return s.txSerializable(ctx, func(tx *gorm.DB) error {
		block, err := fetchBlock(tx, id.UUID())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", store.ErrBlockNotFound, id)
			}
			return err
		}
		return blockTree.softDeleteSubtree(tx, block)
	})
}

// MoveBlock repositions a block within its page with fractional indexing.
// The page affiliation never changes: a new parent on a different page is
// rejected, as is reparenting a block underneath its own subtree.
func (s *Store) MoveBlock(ctx context.Context, id models.BlockID, newParent *models.BlockID, afterID *models.BlockID) (*models.Block, error) {
	var block *models.Block
	err := s.txSerializable(ctx, func(tx *gorm.DB) error {
		var err error
		block, err = fetchBlock(tx, id.UUID())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", store.ErrBlockNotFound, id)
			}
			return err
		}

		if newParent != nil {
			parent, err := fetchBlock(tx, newParent.UUID())
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: parent block %s", store.ErrReferenceNotFound, newParent)
				}
				return err
			}
			if parent.PageID != block.PageID {
				return fmt.Errorf("%w: parent block %s is on another page", store.ErrReferenceNotFound, newParent)
			}
			cyclic, err := blockTree.isDescendant(tx, id.UUID(), newParent.UUID())
			if err != nil {
				return err
			}
			if cyclic {
				return fmt.Errorf("%w: block %s under its own subtree", store.ErrCyclicMove, id)
			}
		}

		var refID *uuid.UUID
		if afterID != nil {
			u := afterID.UUID()
			refID = &u
		}
		idx, err := blockTree.move(tx, block, blockScope(block.PageID, newParent), refID)
		if err != nil {
			return err
		}

		block.ParentBlockID = newParent
		block.SortIndex = idx
		return tx.Model(block).Updates(map[string]any{
			"parent_block_id": blockParentValue(newParent),
			"sort_index":      idx,
		}).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return block, nil
}

func blockParentValue(id *models.BlockID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// DuplicateBlock deep-copies a block directly after the original, keeping
// type, properties, and owner stamps; with includeChildren the live subtree
// is copied recursively with fresh ids.
func (s *Store) DuplicateBlock(ctx context.Context, id models.BlockID, includeChildren bool) (*models.Block, error) {
	var dup *models.Block
	err := s.txSerializable(ctx, func(tx *gorm.DB) error {
		block, err := fetchBlock(tx, id.UUID())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", store.ErrBlockNotFound, id)
			}
			return err
		}
		dup, err = blockTree.duplicateSubtree(tx, block, includeChildren)
		return err
	})
	if err != nil {
		return nil, translate(err)
	}
	return dup, nil
}

// GetBlockTree returns the page's full live block tree. One ordered query
// fetches every live block of the page; a first pass builds the id lookup
// table, a second attaches each block to its parent or the root list, so
// sibling order inside every level follows the ascending-index fetch order.
func (s *Store) GetBlockTree(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	db := s.db.WithContext(ctx)
	if err := requireLivePage(db, pageID); err != nil {
		return nil, err
	}

	var blocks []*models.Block
	err := db.Where("page_id = ?", pageID.String()).
		Order("sort_index asc").
		Find(&blocks).Error
	if err != nil {
		return nil, err
	}

	byID := make(map[models.BlockID]*models.Block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}
	var roots []*models.Block
	for _, b := range blocks {
		if b.ParentBlockID == nil {
			roots = append(roots, b)
			continue
		}
		// A live block under a tombstoned parent stays out of the tree.
		if parent, ok := byID[*b.ParentBlockID]; ok {
			parent.ChildBlocks = append(parent.ChildBlocks, b)
		}
	}
	return roots, nil
}
