package postgres

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/collabnote/collabnote/pkg/models"
	"github.com/collabnote/collabnote/pkg/store"
)

var testUser = models.NewUserID()

// newTestStore runs the store against SQLite so tests need no server. The
// ordering and cascade logic under test is dialect-neutral GORM.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	s := NewStoreWithDB(db)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreatePage(t *testing.T, s *Store, title string, parent *models.PageID) *models.Page {
	t.Helper()
	page, err := s.CreatePage(context.Background(), store.CreatePage{
		Title:        title,
		ParentPageID: parent,
		CreatedByID:  testUser,
	})
	require.NoError(t, err)
	return page
}

func mustCreateBlock(t *testing.T, s *Store, pageID models.PageID, parent, after *models.BlockID, text string) *models.Block {
	t.Helper()
	block, err := s.CreateBlock(context.Background(), store.CreateBlock{
		PageID:        pageID,
		Type:          models.BlockTypeParagraph,
		Properties:    models.JSONMap{"text": text},
		ParentBlockID: parent,
		AfterBlockID:  after,
		CreatedByID:   testUser,
	})
	require.NoError(t, err)
	return block
}

// blockTexts projects the text marker out of a block list, in order.
func blockTexts(blocks []*models.Block) []string {
	texts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		text, _ := b.Properties["text"].(string)
		texts = append(texts, text)
	}
	return texts
}

func pageTitles(pages []*models.Page) []string {
	titles := make([]string, 0, len(pages))
	for _, p := range pages {
		titles = append(titles, p.Title)
	}
	return titles
}
