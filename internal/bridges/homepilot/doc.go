// Package homepilot keeps a local model of the devices behind a
// Rademacher HomePilot bridge in sync with the bridge's HTTP API.
//
// The bridge exposes no push channel, so the package polls: a Manager
// builds a registry of typed devices from the bridge's device list and
// capability maps, and a Poller runs a reconcile cycle on an interval
// that fetches one bulk state snapshot and updates every device from it.
// Commands go straight to the bridge; their effect becomes visible at the
// next cycle.
//
// # Architecture
//
//	┌─────────────────┐  HTTP   ┌─────────────────┐   MQTT   ┌──────────┐
//	│ HomePilot bridge│◄───────►│  Bridge         │◄────────►│  broker  │
//	│ (Rademacher)    │  poll   │  Manager/Poller │          └──────────┘
//	└─────────────────┘         └─────────────────┘
//
// # Key Responsibilities
//
//   - Salted password login with a shared session cookie
//   - Capability parsing and device variant dispatch
//   - Periodic reconcile with availability tracking
//   - Typed commands for covers, switches, thermostats, lights and the hub
//   - MQTT state publishing, command acknowledgments and health reporting
//
// # Positions
//
// The bridge reports cover positions with 100 meaning fully closed. Every
// position exposed by this package uses 100 for fully open; the conversion
// happens on read and write.
//
// # Thread Safety
//
// Client, Manager, Poller and Bridge are safe for concurrent use. Device
// values handed out by the Manager are copies.
package homepilot
