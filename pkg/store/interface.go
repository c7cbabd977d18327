// Package store defines the persistence contract for the page/block
// hierarchy and the typed error taxonomy its implementations surface.
//
// The interface bundles two repositories over one ACID backend: page
// operations (sibling scope = parent page, global when nil) and block
// operations (sibling scope = page + parent block). Every cascade operation
// (delete subtree, duplicate subtree) is transactional; partial application
// is never observable. Soft deletion is the only deletion: rows are
// tombstoned, never removed, and tombstones are invisible to every read,
// ordering, and uniqueness computation.
package store

import (
	"context"

	"github.com/collabnote/collabnote/pkg/models"
)

// CreatePage carries the fields a caller supplies for a new page. SortIndex
// is computed by the store: append after the last live sibling in the target
// scope, or 0 when the scope is empty.
type CreatePage struct {
	Title        string
	ParentPageID *models.PageID
	Icon         string
	CoverImage   string
	IsDatabase   bool
	CreatedByID  models.UserID
}

// UpdatePage carries the mutable page fields. Nil pointers mean "leave
// unchanged"; last write wins per field.
type UpdatePage struct {
	Title      *string
	Icon       *string
	CoverImage *string
}

// CreateBlock carries the fields a caller supplies for a new block. Exactly
// one insertion mode applies: AfterBlockID anchors an insert-after (integer
// shift of subsequent siblings), nil appends at the end of the scope.
type CreateBlock struct {
	PageID        models.PageID
	Type          models.BlockType
	Properties    models.JSONMap
	ParentBlockID *models.BlockID
	AfterBlockID  *models.BlockID
	CreatedByID   models.UserID
}

// UpdateBlock carries the mutable block fields. A nil Properties map keeps
// the stored document; a nil SortIndex keeps the position.
type UpdateBlock struct {
	Properties models.JSONMap
	SortIndex  *float64
}

// Store is the persistence boundary for pages and blocks.
//
// Error contract: absent or soft-deleted targets yield ErrPageNotFound /
// ErrBlockNotFound, unresolved anchors yield ErrReferenceNotFound, rejected
// reparenting yields ErrCyclicMove, and uniqueness violations yield
// ErrConflict, all matchable with errors.Is.
type Store interface {
	// Migrate creates or updates the backing schema.
	Migrate(ctx context.Context) error
	// Close releases the backing connections.
	Close() error

	// ListRootPages returns the live top-level pages in sibling order, each
	// decorated with its live child-page and block counts.
	ListRootPages(ctx context.Context) ([]*models.Page, error)
	// GetPage returns a live page with its ordered live child pages and its
	// live block count.
	GetPage(ctx context.Context, id models.PageID) (*models.Page, error)
	// CreatePage appends a new page to its sibling scope.
	CreatePage(ctx context.Context, in CreatePage) (*models.Page, error)
	// UpdatePage applies UpdatePage to a live page and stamps UpdatedAt.
	UpdatePage(ctx context.Context, id models.PageID, in UpdatePage) (*models.Page, error)
	// DeletePage soft-deletes the page, every descendant page, and every
	// block belonging to any of them, as one transaction, then closes the
	// sibling index gap at the page's own level.
	DeletePage(ctx context.Context, id models.PageID) error
	// MovePage repositions a page under newParent using fractional
	// indexing, anchored after afterID when given.
	MovePage(ctx context.Context, id models.PageID, newParent *models.PageID, afterID *models.PageID) (*models.Page, error)
	// ListPageBlocks returns the page's live top-level blocks in sibling
	// order with one level of live children embedded.
	ListPageBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error)

	// CreateBlock inserts a block after its anchor, or appends when no
	// anchor is given. The target page must be live.
	CreateBlock(ctx context.Context, in CreateBlock) (*models.Block, error)
	// GetBlock returns a live block with its ordered live children.
	GetBlock(ctx context.Context, id models.BlockID) (*models.Block, error)
	// UpdateBlock applies UpdateBlock to a live block, stamping
	// LastEditedByID and UpdatedAt.
	UpdateBlock(ctx context.Context, id models.BlockID, in UpdateBlock, editedBy models.UserID) (*models.Block, error)
	// DeleteBlock soft-deletes the block and its descendant blocks as one
	// transaction, then closes the sibling index gap at the block's level.
	// The cascade never crosses into other pages.
	DeleteBlock(ctx context.Context, id models.BlockID) error
	// MoveBlock repositions a block within its page using fractional
	// indexing. Cross-page moves are not supported: PageID never changes.
	MoveBlock(ctx context.Context, id models.BlockID, newParent *models.BlockID, afterID *models.BlockID) (*models.Block, error)
	// DuplicateBlock deep-copies a block directly after the original,
	// shifting subsequent siblings; with includeChildren it recursively
	// copies the live subtree, preserving each child's relative order.
	DuplicateBlock(ctx context.Context, id models.BlockID, includeChildren bool) (*models.Block, error)
	// GetBlockTree returns the page's full live block tree assembled from a
	// single ordered query.
	GetBlockTree(ctx context.Context, pageID models.PageID) ([]*models.Block, error)
}
