// Package postgres implements the [github.com/collabnote/collabnote/pkg/store.Store]
// interface on PostgreSQL using GORM.
//
// The implementation is split along the store's layering: tree.go holds the
// generic ordered-tree primitives (sibling index computation, integer shift,
// fractional reposition, cascading soft delete, subtree duplication) that
// operate over a sibling scope expressed as column conditions; pages.go and
// blocks.go build the page and block repositories on top of them.
//
// Soft deletion rides on gorm.DeletedAt: a tombstoned row is excluded from
// every query this package issues, and no API here removes rows physically.
//
// # Concurrency
//
// Sibling index computation is read-then-write: concurrent callers mutating
// the same scope could otherwise compute colliding indices. This store
// closes that race with transaction isolation: every ordering or cascade
// mutation runs inside a single transaction opened at
// sql.LevelSerializable, so one of two racing writers is rolled back by the
// database instead of committing a collision.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/collabnote/collabnote/pkg/models"
	"github.com/collabnote/collabnote/pkg/store"
)

// Store implements store.Store on a GORM connection.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// NewStore connects to PostgreSQL and returns the store.
func NewStore(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing GORM connection. Tests use it to run the
// store against other dialects.
func NewStoreWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the pages and blocks tables, their indexes and
// foreign keys. Safe to run repeatedly: AutoMigrate only adds missing schema
// elements.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.Page{},
		&models.Block{},
	)
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// txSerializable runs fn inside one serializable transaction. All ordering
// and cascade mutations go through here so a sibling-index race surfaces as
// a serialization failure instead of an index collision.
func (s *Store) txSerializable(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

// translate maps driver-level failures onto the store taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}
