// Package websocket provides WebSocket transport for the mechanism workbench.
//
// The websocket package implements:
//   - Session-aware WebSocket connections
//   - Snapshot broadcasting on every state change
//   - Connection lifecycle management
//
// Architecture:
//
// The package uses a hub-and-spoke model where a central Hub manages all
// WebSocket connections. Client bookkeeping happens only on the hub's Run
// goroutine; each connection has its own read and write goroutines.
//
// Message Protocol:
//
// Connections are push-only. Each frame is one JSON message:
//
//	{"session_id": "ab12", "event": "state_update", "state": {...snapshot...}}
//
// Clients pick their session with a query parameter (/ws?session=ab12).
// Snapshots come from command handlers and from the service frame loop while
// animations and settle timers are running.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run(ctx)
//
//	go svc.Run(ctx, service.DefaultFrameInterval, hub.BroadcastToSession)
package websocket
