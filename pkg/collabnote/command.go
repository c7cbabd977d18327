package collabnote

// Command represents a discrete application operation with its specific
// configuration.
//
// Each command implementation carries the options for its operation; the
// shared database and server settings live on [Config]. Commands are created
// by [Parse] and executed through [Main], which dispatches on the concrete
// type.
type Command interface {
	// Name returns the command identifier used for routing. It matches the
	// CLI sub-command name.
	Name() string
}

// MigrateCommand initializes or updates the database schema to match the
// current data model. It uses GORM's AutoMigrate, so it is safe to run
// repeatedly: only missing schema elements are created and existing data is
// preserved.
//
// Run it before first startup and after model changes:
//
//	collabnote migrate
type MigrateCommand struct {
	// Empty for now. A target schema version would go here if migrations
	// ever stop being forward-only.
}

// Name returns "migrate".
func (c *MigrateCommand) Name() string {
	return "migrate"
}

// RunCommand starts the HTTP server: the REST API for pages and blocks, the
// /ws websocket endpoint for realtime collaboration, and the health
// endpoint. The server runs until the context is cancelled or a fatal error
// occurs, and drains in-flight requests on shutdown.
//
//	collabnote run
//	collabnote -port 8090 run
type RunCommand struct {
	// Empty for now. All configuration comes from Config.
}

// Name returns "run".
func (c *RunCommand) Name() string {
	return "run"
}
