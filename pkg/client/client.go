// Package client provides a typed Go HTTP client for the collabnote REST
// API. It mirrors the server's endpoint structure using the same
// [github.com/collabnote/collabnote/pkg/models] entities, handles JSON
// serialization, and reports non-2xx responses as errors carrying the status
// code and body.
//
// Usage:
//
//	c := client.New("http://localhost:8080")
//	c.SetUserID(userID)
//
//	page, err := c.CreatePage(ctx, client.CreatePage{Title: "Notes"})
//	if err != nil {
//		return err
//	}
//	block, err := c.CreateBlock(ctx, client.CreateBlock{
//		PageID: page.ID.String(),
//		Type:   string(models.BlockTypeParagraph),
//	})
//
// Client instances are safe for concurrent use by multiple goroutines once
// SetUserID has been called.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/collabnote/collabnote/pkg/models"
)

// Client provides typed access to the collabnote REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userID     string
}

// New creates an API client. baseURL includes protocol and host without a
// trailing slash, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetUserID sets the identity sent as the X-User-ID header on every request.
func (c *Client) SetUserID(id models.UserID) {
	c.userID = id.String()
}

// doRequest performs an HTTP request with proper headers.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	return c.httpClient.Do(req)
}

// decodeResponse decodes the JSON response into the target struct.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Health checks the health status of the server.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// Page management

// CreatePage is the payload for Client.CreatePage. Optional IDs are strings
// so the zero value means "unset".
type CreatePage struct {
	Title        string  `json:"title"`
	ParentPageID *string `json:"parentPageId,omitempty"`
	Icon         string  `json:"icon,omitempty"`
	CoverImage   string  `json:"coverImage,omitempty"`
	IsDatabase   bool    `json:"isDatabase,omitempty"`
}

// UpdatePage is the payload for Client.UpdatePage. Nil fields are left
// unchanged on the server.
type UpdatePage struct {
	Title      *string `json:"title,omitempty"`
	Icon       *string `json:"icon,omitempty"`
	CoverImage *string `json:"coverImage,omitempty"`
}

// MovePage is the payload for Client.MovePage. A nil ParentPageID moves the
// page to the top level; a nil AfterPageID places it first among siblings.
type MovePage struct {
	ParentPageID *string `json:"parentPageId,omitempty"`
	AfterPageID  *string `json:"afterPageId,omitempty"`
}

// ListRootPages lists the top-level pages in sibling order.
func (c *Client) ListRootPages(ctx context.Context) ([]*models.Page, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/pages", nil)
	if err != nil {
		return nil, err
	}

	var result []*models.Page
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// CreatePage creates a new page appended to its sibling scope.
func (c *Client) CreatePage(ctx context.Context, in CreatePage) (*models.Page, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/pages", in)
	if err != nil {
		return nil, err
	}

	var result models.Page
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// GetPage retrieves a page with its ordered child pages.
func (c *Client) GetPage(ctx context.Context, id models.PageID) (*models.Page, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/pages/%s", id), nil)
	if err != nil {
		return nil, err
	}

	var result models.Page
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// UpdatePage updates a page's title, icon, or cover image.
func (c *Client) UpdatePage(ctx context.Context, id models.PageID, in UpdatePage) (*models.Page, error) {
	resp, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/api/pages/%s", id), in)
	if err != nil {
		return nil, err
	}

	var result models.Page
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// DeletePage soft-deletes a page, its descendant pages, and their blocks.
func (c *Client) DeletePage(ctx context.Context, id models.PageID) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/pages/%s", id), nil)
	if err != nil {
		return err
	}

	return decodeResponse(resp, nil)
}

// MovePage repositions a page in the hierarchy.
func (c *Client) MovePage(ctx context.Context, id models.PageID, in MovePage) (*models.Page, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/pages/%s/move", id), in)
	if err != nil {
		return nil, err
	}

	var result models.Page
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// ListBlocks lists a page's top-level blocks with one level of children.
func (c *Client) ListBlocks(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/pages/%s/blocks", pageID), nil)
	if err != nil {
		return nil, err
	}

	var result []*models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// GetBlockTree retrieves a page's fully nested block tree.
func (c *Client) GetBlockTree(ctx context.Context, pageID models.PageID) ([]*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/pages/%s/blocks/tree", pageID), nil)
	if err != nil {
		return nil, err
	}

	var result []*models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return result, nil
}

// Block management

// CreateBlock is the payload for Client.CreateBlock. AfterBlockID anchors an
// insert-after; nil appends at the end of the scope.
type CreateBlock struct {
	PageID        string         `json:"pageId"`
	Type          string         `json:"type"`
	Properties    models.JSONMap `json:"properties,omitempty"`
	ParentBlockID *string        `json:"parentBlockId,omitempty"`
	AfterBlockID  *string        `json:"afterBlockId,omitempty"`
}

// UpdateBlock is the payload for Client.UpdateBlock. A nil Properties map
// keeps the stored document.
type UpdateBlock struct {
	Properties models.JSONMap `json:"properties,omitempty"`
	SortIndex  *float64       `json:"sortIndex,omitempty"`
}

// MoveBlock is the payload for Client.MoveBlock.
type MoveBlock struct {
	ParentBlockID *string `json:"parentBlockId,omitempty"`
	AfterBlockID  *string `json:"afterBlockId,omitempty"`
}

// CreateBlock creates a new block.
func (c *Client) CreateBlock(ctx context.Context, in CreateBlock) (*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/blocks", in)
	if err != nil {
		return nil, err
	}

	var result models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// GetBlock retrieves a block with its ordered children.
func (c *Client) GetBlock(ctx context.Context, id models.BlockID) (*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/blocks/%s", id), nil)
	if err != nil {
		return nil, err
	}

	var result models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// UpdateBlock updates a block's properties or sort index.
func (c *Client) UpdateBlock(ctx context.Context, id models.BlockID, in UpdateBlock) (*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/api/blocks/%s", id), in)
	if err != nil {
		return nil, err
	}

	var result models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// DeleteBlock soft-deletes a block and its descendants.
func (c *Client) DeleteBlock(ctx context.Context, id models.BlockID) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/api/blocks/%s", id), nil)
	if err != nil {
		return err
	}

	return decodeResponse(resp, nil)
}

// MoveBlock repositions a block within its page.
func (c *Client) MoveBlock(ctx context.Context, id models.BlockID, in MoveBlock) (*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/blocks/%s/move", id), in)
	if err != nil {
		return nil, err
	}

	var result models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// DuplicateBlock deep-copies a block directly after the original.
func (c *Client) DuplicateBlock(ctx context.Context, id models.BlockID, includeChildren bool) (*models.Block, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/blocks/%s/duplicate", id),
		map[string]bool{"includeChildren": includeChildren})
	if err != nil {
		return nil, err
	}

	var result models.Block
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}
