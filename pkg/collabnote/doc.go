// Package collabnote wires the application together: configuration parsing,
// the HTTP API over the store, the websocket endpoint for the collaboration
// hub, and the command dispatch used by the CLI entry point.
//
// The package follows a parse/construct/execute split:
//
//   - [Parse] turns command line arguments into a [Command] and a [Config]
//   - [New] builds an [App] holding the store, the hub, and the logger
//   - [Main] glues the two and dispatches to App.Run or App.Migrate
//
// Main is callable from tests without building the binary.
//
// The HTTP layer translates the store's typed errors into status codes and,
// after every successful mutation, announces the change to the page's room
// through the hub so connected editors converge without polling.
package collabnote
