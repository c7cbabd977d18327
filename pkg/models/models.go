package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// BlockType identifies the kind of content a block carries. The set follows
// the editor's block palette; the declared property schema for each type
// lives in properties.go.
type BlockType string

const (
	BlockTypeParagraph    BlockType = "paragraph"
	BlockTypeHeading1     BlockType = "heading_1"
	BlockTypeHeading2     BlockType = "heading_2"
	BlockTypeHeading3     BlockType = "heading_3"
	BlockTypeBulletList   BlockType = "bullet_list"
	BlockTypeNumberedList BlockType = "numbered_list"
	BlockTypeTodo         BlockType = "todo"
	BlockTypeQuote        BlockType = "quote"
	BlockTypeCode         BlockType = "code"
	BlockTypeImage        BlockType = "image"
	BlockTypePage         BlockType = "page"
	BlockTypeDatabase     BlockType = "database"
)

// JSONMap is a flexible key-value map stored as JSONB. Block properties use
// it because the field set varies by block type (a paragraph carries "text",
// an image carries "url" and "caption"); keeping the column schemaless lets
// new block types ship without table changes while the content stays
// queryable in PostgreSQL.
type JSONMap map[string]any

// Value implements the driver.Valuer interface for database storage.
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = make(map[string]any)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		bytes = []byte(value.(string))
	}
	return json.Unmarshal(bytes, j)
}

// Page is a node in the page hierarchy. ParentPageID is nil for top-level
// pages. SortIndex orders a page among its siblings, where the sibling scope
// is every live page sharing the same ParentPageID. DeletedAt is a
// soft-delete tombstone: a page with DeletedAt set is invisible to every
// read path but never physically removed.
type Page struct {
	ID           PageID         `gorm:"type:uuid;primary_key" json:"id"`
	ParentPageID *PageID        `gorm:"type:uuid;index" json:"parentPageId,omitempty"`
	ParentPage   *Page          `gorm:"foreignKey:ParentPageID" json:"-"`
	Title        string         `gorm:"not null" json:"title"`
	Icon         string         `json:"icon,omitempty"`
	CoverImage   string         `json:"coverImage,omitempty"`
	IsDatabase   bool           `gorm:"not null;default:false" json:"isDatabase"`
	SortIndex    float64        `gorm:"not null" json:"sortIndex"`
	CreatedByID  UserID         `gorm:"type:uuid;not null" json:"createdById"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deletedAt,omitempty"`

	// Populated by read paths, never persisted.
	ChildPages     []*Page `gorm:"-" json:"childPages,omitempty"`
	ChildPageCount int64   `gorm:"-" json:"childPageCount"`
	BlockCount     int64   `gorm:"-" json:"blockCount"`
}

// BeforeCreate hook to generate ID if not set
func (p *Page) BeforeCreate(tx *gorm.DB) error {
	if p.ID.IsZero() {
		p.ID = NewPageID()
	}
	return nil
}

// Block is a content node inside a page. PageID never changes after creation
// and always equals the page ancestor's id; ParentBlockID builds the
// intra-page tree and is nil for top-level blocks. SortIndex orders a block
// among its siblings (same PageID, same ParentBlockID).
type Block struct {
	ID             BlockID        `gorm:"type:uuid;primary_key" json:"id"`
	PageID         PageID         `gorm:"type:uuid;not null;index" json:"pageId"`
	Page           *Page          `gorm:"foreignKey:PageID" json:"-"`
	ParentBlockID  *BlockID       `gorm:"type:uuid;index" json:"parentBlockId,omitempty"`
	ParentBlock    *Block         `gorm:"foreignKey:ParentBlockID" json:"-"`
	Type           BlockType      `gorm:"not null" json:"type"`
	Properties     JSONMap        `gorm:"type:jsonb" json:"properties"`
	SortIndex      float64        `gorm:"not null" json:"sortIndex"`
	CreatedByID    UserID         `gorm:"type:uuid;not null" json:"createdById"`
	LastEditedByID UserID         `gorm:"type:uuid;not null" json:"lastEditedById"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deletedAt,omitempty"`

	// Populated by read paths, never persisted.
	ChildBlocks []*Block `gorm:"-" json:"childBlocks,omitempty"`
}

// BeforeCreate hook to generate ID if not set
func (b *Block) BeforeCreate(tx *gorm.DB) error {
	if b.ID.IsZero() {
		b.ID = NewBlockID()
	}
	return nil
}
