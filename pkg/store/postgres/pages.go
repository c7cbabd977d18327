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

// pageScope builds the sibling scope for pages sharing a parent; the global
// scope when parent is nil.
func pageScope(parent *models.PageID) scope {
	if parent == nil {
		return scope{"parent_page_id": nil}
	}
	return scope{"parent_page_id": parent.String()}
}

// pageTree wires the ordered-tree primitives for the page hierarchy. Pages
// are never duplicated, so no clone callback.
var pageTree = &tree[models.Page]{
	id: func(p *models.Page) uuid.UUID { return p.ID.UUID() },
	parentID: func(p *models.Page) *uuid.UUID {
		if p.ParentPageID == nil {
			return nil
		}
		u := p.ParentPageID.UUID()
		return &u
	},
	index:    func(p *models.Page) float64 { return p.SortIndex },
	setIndex: func(p *models.Page, idx float64) { p.SortIndex = idx },
	scopeOf:  func(p *models.Page) scope { return pageScope(p.ParentPageID) },
	childScopeOf: func(p *models.Page) scope {
		id := p.ID
		return pageScope(&id)
	},
	fetch: fetchPage,
}

func fetchPage(tx *gorm.DB, id uuid.UUID) (*models.Page, error) {
	var p models.Page
	if err := tx.First(&p, "id = ?", id.String()).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListRootPages returns the live top-level pages in sibling order, each with
// its live child-page and block counts.
func (s *Store) ListRootPages(ctx context.Context) ([]*models.Page, error) {
	db := s.db.WithContext(ctx)
	pages, err := pageTree.siblings(db, pageScope(nil), nil)
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		if err := s.decoratePageCounts(db, p); err != nil {
			return nil, err
		}
	}
	return pages, nil
}

// GetPage returns a live page with its ordered live child pages and its live
// block count.
func (s *Store) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	db := s.db.WithContext(ctx)
	page, err := fetchPage(db, id.UUID())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", store.ErrPageNotFound, id)
		}
		return nil, err
	}
	children, err := pageTree.siblings(db, pageScope(&id), nil)
	if err != nil {
		return nil, err
	}
	page.ChildPages = children
	page.ChildPageCount = int64(len(children))
	if err := db.Model(&models.Block{}).Where("page_id = ?", id.String()).Count(&page.BlockCount).Error; err != nil {
		return nil, err
	}
	return page, nil
}

// CreatePage appends a new page at the end of its sibling scope.
func (s *Store) CreatePage(ctx context.Context, in store.CreatePage) (*models.Page, error) {
	page := &models.Page{
		ParentPageID: in.ParentPageID,
		Title:        in.Title,
		Icon:         in.Icon,
		CoverImage:   in.CoverImage,
		IsDatabase:   in.IsDatabase,
		CreatedByID:  in.CreatedByID,
	}
	err := s.txSerializable(ctx, func(tx *gorm.DB) error {
		idx, err := pageTree.insertAfter(tx, pageScope(in.ParentPageID), nil)
		if err != nil {
			return err
		}
		page.SortIndex = idx
		return tx.Create(page).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return page, nil
}

// UpdatePage applies the given fields to a live page. Last write wins per
// field; GORM stamps UpdatedAt on save.
func (s *Store) UpdatePage(ctx context.Context, id models.PageID, in store.UpdatePage) (*models.Page, error) {
	var page *models.Page
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		page, err = fetchPage(tx, id.UUID())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", store.ErrPageNotFound, id)
			}
			return err
		}
		if in.Title != nil {
			page.Title = *in.Title
		}
		if in.Icon != nil {
			page.Icon = *in.Icon
		}
		if in.CoverImage != nil {
			page.CoverImage = *in.CoverImage
		}
		return tx.Save(page).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return page, nil
}

// DeletePage soft-deletes the page, every descendant page, and every block
// belonging to any of them, as one transaction, then closes the index gap at
// the page's own sibling level.
func (s *Store) DeletePage(ctx context.Context, id models.PageID) error {
	return s.txSerializable(ctx, func(tx *gorm.DB) error {
		page, err := fetchPage(tx, id.UUID())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", store.ErrPageNotFound, id)
			}
			return err
		}

		// Collect the page ids before tombstoning them; the block cascade
		// needs every page in the subtree, live or about to stop being.
		pageIDs, err := collectSubtreePageIDs(tx, page)
		if err != nil {
			return err
		}

		if err := pageTree.softDeleteSubtree(tx, page); err != nil {
			return err
		}
		return tx.Where("page_id IN ?", pageIDs).Delete(&models.Block{}).Error
	})
}

func collectSubtreePageIDs(tx *gorm.DB, page *models.Page) ([]string, error) {
	ids := []string{page.ID.String()}
	children, err := pageTree.siblings(tx, pageTree.childScopeOf(page), nil)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		childIDs, err := collectSubtreePageIDs(tx, child)
		if err != nil {
			return nil, err
		}
		ids = append(ids, childIDs...)
	}
	return ids, nil
}

// MovePage repositions a page under newParent with fractional indexing,
// anchored after afterID when given. Rejects reparenting a page underneath
// its own subtree.
func (s *Store) MovePage(ctx context.Context, id models.PageID, newParent *models.PageID, afterID *models.PageID) (*models.Page, error) {
	var page *models.Page
	err := s.txSerializable(ctx, func(tx *gorm.DB) error {
		var err error
		page, err = fetchPage(tx, id.UUID())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", store.ErrPageNotFound, id)
			}
			return err
		}

		if newParent != nil {
			cyclic, err := pageTree.isDescendant(tx, id.UUID(), newParent.UUID())
			if err != nil {
				return err
			}
			if cyclic {
				return fmt.Errorf("%w: page %s under its own subtree", store.ErrCyclicMove, id)
			}
		}

		var refID *uuid.UUID
		if afterID != nil {
			u := afterID.UUID()
			refID = &u
		}
		idx, err := pageTree.move(tx, page, pageScope(newParent), refID)
		if err != nil {
			return err
		}

		page.ParentPageID = newParent
		page.SortIndex = idx
		return tx.Model(page).Updates(map[string]any{
			"parent_page_id": parentValue(newParent),
			"sort_index":     idx,
		}).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return page, nil
}

func parentValue(id *models.PageID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

// ListPageBlocks returns the page's live top-level blocks in sibling order
// with one level of live children embedded.
func (s *Store) ListPageBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	db := s.db.WithContext(ctx)
	if _, err := fetchPage(db, pageID.UUID()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", store.ErrPageNotFound, pageID)
		}
		return nil, err
	}

	blocks, err := blockTree.siblings(db, blockScope(pageID, nil), nil)
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		children, err := blockTree.siblings(db, blockTree.childScopeOf(b), nil)
		if err != nil {
			return nil, err
		}
		b.ChildBlocks = children
	}
	return blocks, nil
}

func (s *Store) decoratePageCounts(db *gorm.DB, p *models.Page) error {
	err := db.Model(&models.Page{}).
		Where("parent_page_id = ?", p.ID.String()).
		Count(&p.ChildPageCount).Error
	if err != nil {
		return err
	}
	return db.Model(&models.Block{}).
		Where("page_id = ?", p.ID.String()).
		Count(&p.BlockCount).Error
}
