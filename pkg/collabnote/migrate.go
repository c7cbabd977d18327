package collabnote

import (
	"context"
	"fmt"
)

// Migrate creates or updates the database schema to match the current data
// model. It only adds missing schema elements; existing data is never
// dropped, so running it repeatedly is safe.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	a.log.Info().Msg("running database migrations")
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.log.Info().Msg("migrations completed")
	return nil
}
