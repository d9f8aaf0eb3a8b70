// HomePilot Core - Rademacher HomePilot bridge sync engine
//
// This is the main entry point for the HomePilot Core application. It
// keeps a registry of the devices behind a HomePilot bridge in sync by
// polling, and exposes them over:
//   - MQTT (retained state, commands, acknowledgments, health)
//   - a REST API and WebSocket stream
//   - an SQLite audit trail and optional InfluxDB telemetry
//
// Subcommands:
//
//	homepilot serve     # run the sync daemon
//	homepilot probe     # check a bridge is reachable and whether it needs a password
//	homepilot devices   # discover, reconcile once and print the registry as JSON
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/homepilot-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on Ctrl+C and SIGTERM so every subcommand shuts down cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
