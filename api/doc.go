// Package api provides HTTP REST API handlers for the mechanism workbench.
//
// The api package implements:
//   - Session management endpoints
//   - Component placement, movement and drag gestures
//   - Input commands (apply, release, reset, example, clear) and analysis
//   - Read-only queries over components, engagements, constraints and metrics
//   - Profile listing
//   - WebSocket upgrade handling
//
// Endpoints:
//
// Sessions:
//   - POST   /api/sessions                      {"profile_id": "stiff"}
//   - GET    /api/sessions?sort=created|accessed&order=asc|desc&limit=N
//   - GET    /api/sessions/{id}
//   - DELETE /api/sessions/{id}
//   - GET    /api/sessions/{id}/state
//
// Components:
//   - GET    /api/sessions/{id}/components
//   - POST   /api/sessions/{id}/components      {"kind": "spring", "x": 0, "y": 0}
//   - DELETE /api/sessions/{id}/components/{cid}
//   - POST   /api/sessions/{id}/components/{cid}/move    {"x": 0, "y": 0, "animate": true}
//   - POST   /api/sessions/{id}/components/{cid}/rotate  {"delta": 0.26}
//   - POST   /api/sessions/{id}/drag            {"component_id": 1}
//   - POST   /api/sessions/{id}/drag/move       {"x": 0, "y": 0}
//   - DELETE /api/sessions/{id}/drag
//
// Interaction:
//   - POST /api/sessions/{id}/apply
//   - POST /api/sessions/{id}/release
//   - POST /api/sessions/{id}/reset
//   - POST /api/sessions/{id}/example
//   - POST /api/sessions/{id}/clear             {"confirm": true}
//   - POST /api/sessions/{id}/analysis
//
// Queries:
//   - GET /api/sessions/{id}/engagements|constraints|metrics|report
//   - GET /api/profiles
//   - GET /api/profiles/{name}
//
// Operations:
//   - GET /healthz
//   - GET /metrics (when a metrics handler is configured)
//   - GET /ws?session={id}
//
// Commands that the engine refuses (blocked placement, release with nothing
// loaded) still answer 200 with success=false and an error status. Transport
// failures use status codes:
//
//	404  unknown session or profile
//	400  malformed body, unknown kind, invalid extent or profile
//	408  request cancelled while waiting for an analysis
//	500  anything else
//
// Error bodies are JSON:
//
//	{"error": "session not found: ab12"}
//
// Every successful command pushes the new snapshot to WebSocket watchers of
// the session.
package api
