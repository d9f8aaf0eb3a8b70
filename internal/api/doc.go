// Package api implements the HTTP REST API and WebSocket server.
//
// This package provides:
//   - Read endpoints for the device registry and bridge status
//   - Command execution and on-demand refresh
//   - Audit trail queries (state history, command log)
//   - WebSocket hub relaying device.state_changed events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// The server runs without history; those endpoints return 503. It has no
// authentication of its own and is meant to listen on a trusted network.
package api
