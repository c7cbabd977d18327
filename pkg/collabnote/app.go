package collabnote

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/collabnote/collabnote/pkg/hub"
	"github.com/collabnote/collabnote/pkg/models"
	"github.com/collabnote/collabnote/pkg/store"
	"github.com/collabnote/collabnote/pkg/store/postgres"
)

// Config holds application configuration shared across all commands.
type Config struct {
	// PostgresDSN is the connection string for the backing database.
	PostgresDSN string

	// ServerPort is the TCP port the HTTP server binds to.
	ServerPort string
}

// App holds the application state: the persistence layer, the realtime hub,
// and the logger everything below is handed.
type App struct {
	store  store.Store
	hub    *hub.Hub
	log    zerolog.Logger
	config *Config

	// defaultUser stamps mutations from callers that do not identify
	// themselves. Authentication is out of scope; the header is trusted.
	defaultUser models.UserID
}

// New creates a new application instance connected to the configured
// database.
func New(config *Config, log zerolog.Logger) (*App, error) {
	st, err := postgres.NewStore(config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	log.Info().Msg("connected to PostgreSQL")

	return &App{
		store:       st,
		hub:         hub.New(log),
		log:         log,
		config:      config,
		defaultUser: models.NewUserID(),
	}, nil
}

// NewWithStore builds an App on an existing store. Used by tests.
func NewWithStore(st store.Store, log zerolog.Logger) *App {
	return &App{
		store:       st,
		hub:         hub.New(log),
		log:         log,
		config:      &Config{ServerPort: "8080"},
		defaultUser: models.NewUserID(),
	}
}

// Close closes the application and its resources.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// Store returns the underlying store (useful for testing).
func (a *App) Store() store.Store {
	return a.store
}

// Hub returns the collaboration hub.
func (a *App) Hub() *hub.Hub {
	return a.hub
}

// getEnv retrieves an environment variable with a fallback default. Empty
// values are treated the same as unset ones.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
