package collabnote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Run starts the HTTP server and blocks until the context is cancelled or a
// fatal server error occurs. On cancellation, in-flight requests get up to
// five seconds to complete.
//
// # API Endpoints
//
// Pages:
//
//	GET    /api/pages                      - List root pages in sibling order
//	POST   /api/pages                      - Create a page (appended to its scope)
//	GET    /api/pages/{id}                 - Get a page with its child pages
//	PUT    /api/pages/{id}                 - Update title, icon, cover image
//	DELETE /api/pages/{id}                 - Soft-delete the page subtree
//	POST   /api/pages/{id}/move            - Reposition the page in the hierarchy
//	GET    /api/pages/{id}/blocks          - List top-level blocks with one child level
//	GET    /api/pages/{id}/blocks/tree     - Full nested block tree
//
// Blocks:
//
//	POST   /api/blocks                     - Create a block (anchored or appended)
//	GET    /api/blocks/{id}                - Get a block with its children
//	PUT    /api/blocks/{id}                - Replace properties, set sort index
//	DELETE /api/blocks/{id}                - Soft-delete the block subtree
//	POST   /api/blocks/{id}/move           - Reposition within the page
//	POST   /api/blocks/{id}/duplicate      - Deep-copy directly after the original
//
// Realtime and operations:
//
//	GET    /ws                             - Websocket upgrade to the hub protocol
//	GET    /health                         - Status, room and connection counts
//
// Callers identify themselves with an X-User-ID header; requests without one
// are stamped with a process-wide fallback identity.
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	router := a.Router()

	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.log.Info().Str("addr", addr).Msg("starting collabnote server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// Router builds the HTTP routing table. Exposed so tests can drive the API
// through httptest without binding a port.
func (a *App) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/pages", a.handleListRootPages).Methods("GET")
	api.HandleFunc("/pages", a.handleCreatePage).Methods("POST")
	api.HandleFunc("/pages/{id}", a.handleGetPage).Methods("GET")
	api.HandleFunc("/pages/{id}", a.handleUpdatePage).Methods("PUT")
	api.HandleFunc("/pages/{id}", a.handleDeletePage).Methods("DELETE")
	api.HandleFunc("/pages/{id}/move", a.handleMovePage).Methods("POST")
	api.HandleFunc("/pages/{id}/blocks", a.handleListPageBlocks).Methods("GET")
	api.HandleFunc("/pages/{id}/blocks/tree", a.handleGetBlockTree).Methods("GET")

	api.HandleFunc("/blocks", a.handleCreateBlock).Methods("POST")
	api.HandleFunc("/blocks/{id}", a.handleGetBlock).Methods("GET")
	api.HandleFunc("/blocks/{id}", a.handleUpdateBlock).Methods("PUT")
	api.HandleFunc("/blocks/{id}", a.handleDeleteBlock).Methods("DELETE")
	api.HandleFunc("/blocks/{id}/move", a.handleMoveBlock).Methods("POST")
	api.HandleFunc("/blocks/{id}/duplicate", a.handleDuplicateBlock).Methods("POST")

	router.HandleFunc("/ws", a.hub.ServeWS)
	router.HandleFunc("/health", a.handleHealth).Methods("GET")
	api.HandleFunc("/health", a.handleHealth).Methods("GET")

	return router
}
