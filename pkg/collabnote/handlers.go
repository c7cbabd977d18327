package collabnote

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/collabnote/collabnote/pkg/hub"
	"github.com/collabnote/collabnote/pkg/models"
	"github.com/collabnote/collabnote/pkg/store"
)

// Page handlers.

func (a *App) handleListRootPages(w http.ResponseWriter, r *http.Request) {
	pages, err := a.store.ListRootPages(r.Context())
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pages)
}

type createPageRequest struct {
	Title        string  `json:"title"`
	ParentPageID *string `json:"parentPageId"`
	Icon         string  `json:"icon"`
	CoverImage   string  `json:"coverImage"`
	IsDatabase   bool    `json:"isDatabase"`
}

// handleCreatePage creates a page appended at the end of its sibling scope.
// When parentPageId is given the new page becomes a child of that page and
// the parent's room is notified so open sidebars refresh.
func (a *App) handleCreatePage(w http.ResponseWriter, r *http.Request) {
	var req createPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	parent, err := parseOptionalPageID(req.ParentPageID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid parent page ID")
		return
	}

	page, err := a.store.CreatePage(r.Context(), store.CreatePage{
		Title:        req.Title,
		ParentPageID: parent,
		Icon:         req.Icon,
		CoverImage:   req.CoverImage,
		IsDatabase:   req.IsDatabase,
		CreatedByID:  a.callerID(r),
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}

	if parent != nil {
		a.hub.BroadcastFromStore(parent.String(), hub.EventPageUpdated, page, page.CreatedByID.String())
	}
	respondJSON(w, http.StatusCreated, page)
}

func (a *App) handleGetPage(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}

	page, err := a.store.GetPage(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

type updatePageRequest struct {
	Title      *string `json:"title"`
	Icon       *string `json:"icon"`
	CoverImage *string `json:"coverImage"`
}

func (a *App) handleUpdatePage(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	var req updatePageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	page, err := a.store.UpdatePage(r.Context(), id, store.UpdatePage{
		Title:      req.Title,
		Icon:       req.Icon,
		CoverImage: req.CoverImage,
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}

	a.hub.BroadcastFromStore(id.String(), hub.EventPageUpdated, page, a.callerID(r).String())
	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}

	if err := a.store.DeletePage(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}

	a.hub.BroadcastFromStore(id.String(), hub.EventPageUpdated,
		map[string]any{"pageId": id, "deleted": true}, a.callerID(r).String())
	respondJSON(w, http.StatusNoContent, nil)
}

type movePageRequest struct {
	ParentPageID *string `json:"parentPageId"`
	AfterPageID  *string `json:"afterPageId"`
}

func (a *App) handleMovePage(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	var req movePageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	parent, err := parseOptionalPageID(req.ParentPageID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid parent page ID")
		return
	}
	after, err := parseOptionalPageID(req.AfterPageID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid anchor page ID")
		return
	}

	page, err := a.store.MovePage(r.Context(), id, parent, after)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	a.hub.BroadcastFromStore(id.String(), hub.EventPageUpdated, page, a.callerID(r).String())
	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleListPageBlocks(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}

	blocks, err := a.store.ListPageBlocks(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, blocks)
}

func (a *App) handleGetBlockTree(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParsePageID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}

	blocks, err := a.store.GetBlockTree(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, blocks)
}

// Block handlers.

type createBlockRequest struct {
	PageID        string         `json:"pageId"`
	Type          string         `json:"type"`
	Properties    models.JSONMap `json:"properties"`
	ParentBlockID *string        `json:"parentBlockId"`
	AfterBlockID  *string        `json:"afterBlockId"`
}

// handleCreateBlock inserts a block directly after afterBlockId, shifting
// later siblings, or appends when no anchor is given. The page's room is
// notified with the created block.
func (a *App) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	var req createBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	pageID, err := models.ParsePageID(req.PageID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid page ID")
		return
	}
	parent, err := parseOptionalBlockID(req.ParentBlockID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid parent block ID")
		return
	}
	after, err := parseOptionalBlockID(req.AfterBlockID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid anchor block ID")
		return
	}

	block, err := a.store.CreateBlock(r.Context(), store.CreateBlock{
		PageID:        pageID,
		Type:          models.BlockType(req.Type),
		Properties:    normalizeProperties(req.Properties),
		ParentBlockID: parent,
		AfterBlockID:  after,
		CreatedByID:   a.callerID(r),
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}

	a.hub.BroadcastFromStore(pageID.String(), hub.EventBlockCreated, block, block.CreatedByID.String())
	respondJSON(w, http.StatusCreated, block)
}

func (a *App) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseBlockID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid block ID")
		return
	}

	block, err := a.store.GetBlock(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, block)
}

type updateBlockRequest struct {
	Properties models.JSONMap `json:"properties"`
	SortIndex  *float64       `json:"sortIndex"`
}

func (a *App) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseBlockID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid block ID")
		return
	}
	var req updateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	editor := a.callerID(r)
	block, err := a.store.UpdateBlock(r.Context(), id, store.UpdateBlock{
		Properties: normalizeProperties(req.Properties),
		SortIndex:  req.SortIndex,
	}, editor)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	a.hub.BroadcastFromStore(block.PageID.String(), hub.EventBlockUpdated, block, editor.String())
	respondJSON(w, http.StatusOK, block)
}

func (a *App) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseBlockID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid block ID")
		return
	}

	// Fetch first so the broadcast can name the page the block lived on.
	block, err := a.store.GetBlock(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if err := a.store.DeleteBlock(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}

	a.hub.BroadcastFromStore(block.PageID.String(), hub.EventBlockDeleted,
		map[string]any{"blockId": id}, a.callerID(r).String())
	respondJSON(w, http.StatusNoContent, nil)
}

type moveBlockRequest struct {
	ParentBlockID *string `json:"parentBlockId"`
	AfterBlockID  *string `json:"afterBlockId"`
}

func (a *App) handleMoveBlock(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseBlockID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid block ID")
		return
	}
	var req moveBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	parent, err := parseOptionalBlockID(req.ParentBlockID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid parent block ID")
		return
	}
	after, err := parseOptionalBlockID(req.AfterBlockID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid anchor block ID")
		return
	}

	block, err := a.store.MoveBlock(r.Context(), id, parent, after)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	a.hub.BroadcastFromStore(block.PageID.String(), hub.EventBlockUpdated, block, a.callerID(r).String())
	respondJSON(w, http.StatusOK, block)
}

type duplicateBlockRequest struct {
	IncludeChildren bool `json:"includeChildren"`
}

func (a *App) handleDuplicateBlock(w http.ResponseWriter, r *http.Request) {
	id, err := models.ParseBlockID(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid block ID")
		return
	}
	// An empty body means a shallow copy; anything else must parse.
	var req duplicateBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	block, err := a.store.DuplicateBlock(r.Context(), id, req.IncludeChildren)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	a.hub.BroadcastFromStore(block.PageID.String(), hub.EventBlockCreated, block, a.callerID(r).String())
	respondJSON(w, http.StatusCreated, block)
}

// handleHealth reports server status plus hub occupancy for monitoring.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	connections, rooms := a.hub.Stats()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"connections": connections,
		"rooms":       rooms,
		"time":        time.Now().Unix(),
	})
}

// callerID resolves the caller identity from the X-User-ID header, falling
// back to the process-wide default when the header is absent or malformed.
func (a *App) callerID(r *http.Request) models.UserID {
	if raw := r.Header.Get("X-User-ID"); raw != "" {
		if id, err := models.ParseUserID(raw); err == nil {
			return id
		}
	}
	return a.defaultUser
}

// normalizeProperties canonicalizes a client-supplied property document
// through the declared schema: zero-valued and mistyped declared fields are
// dropped, unknown keys pass through untouched. A nil map stays nil so block
// updates can distinguish "replace with" from "leave alone".
func normalizeProperties(m models.JSONMap) models.JSONMap {
	if m == nil {
		return nil
	}
	return models.DecodeProperties(m).Encode()
}

func parseOptionalPageID(s *string) (*models.PageID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := models.ParsePageID(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseOptionalBlockID(s *string) (*models.BlockID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := models.ParseBlockID(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// respondStoreError maps the store's typed errors onto HTTP status codes.
func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrPageNotFound), errors.Is(err, store.ErrBlockNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrReferenceNotFound), errors.Is(err, store.ErrCyclicMove):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondJSON writes payload as a JSON response with the given status. A nil
// payload writes only the status line and headers.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	var response []byte
	if payload != nil {
		var err error
		response, err = json.Marshal(payload)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_, _ = w.Write(response)
	}
}

// respondError sends a standardized JSON error body: {"error": "message"}.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
