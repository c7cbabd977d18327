// Package models defines the domain entities for the collaborative
// hierarchical document editor.
//
// The data model is a two-level hierarchy of ordered trees:
//
//   - [Page]: the unit of navigation. Pages nest under other pages through
//     ParentPageID, forming the sidebar tree; top-level pages have a nil
//     parent. A page owns the blocks that make up its document.
//   - [Block]: the unit of content within a page. Blocks nest under other
//     blocks through ParentBlockID but never cross pages, so every block
//     carries the PageID of the page it lives on. The [BlockType] constants
//     enumerate the editor's block palette.
//
// # Ordering
//
// Sibling order is explicit: every page and block carries a SortIndex that
// is unique among its live siblings, and readers sort by it ascending.
// Inserts and deletes keep integer sequences dense, while drag-and-drop
// moves assign fractional midpoints so a reposition touches one row. The
// index is a float64 precisely to allow both.
//
// # Identity and soft deletion
//
// Entities use the typed UUID wrappers [PageID], [BlockID], and [UserID]
// rather than raw uuids, so a page ID cannot be handed to a block lookup.
// Deletion is a gorm.DeletedAt tombstone: deleted rows keep their data and
// vanish from every query.
//
// # Properties
//
// Block content is an open [JSONMap] document. [Properties] is its decoded
// form: the declared field set each block type understands, plus an Extra
// map that carries unrecognized keys through unchanged so documents written
// by a newer client survive a round trip through an older server.
package models
