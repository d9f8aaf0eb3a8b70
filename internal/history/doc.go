// Package history keeps an append-only audit trail of observed device
// state and executed commands in SQLite.
//
// The trail is write-mostly: the bridge records every state change it
// publishes and every command it runs, and the API reads entries back
// for display. Nothing here is used to seed the device registry on
// startup; the registry is always rebuilt from the HomePilot bridge.
//
// Entries are pruned by age with Prune or by running RunRetention in a goroutine.
package history
