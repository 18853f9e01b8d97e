// Package session provides session management for the mechanism workbench.
//
// The session package implements:
//   - Thread-safe session storage and retrieval
//   - Unique session ID generation
//   - Session lifecycle management and idle expiry
//
// Core Types:
//
// Manager is the session manager that handles all session operations.
// Each service.Session owns its own engine.Workbench plus metadata like the
// profile it was created from and its last access time.
//
// Session Identifiers:
//
// Generated IDs are 4 hex characters from crypto/rand, retried until unused.
// Lookups are case-insensitive.
//
// Sessions live in memory only and are gone when the process exits.
//
// Usage:
//
//	manager := session.NewManager()
//
//	sess, err := manager.Create("", engine.DefaultTuning())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sess, err = manager.Get(sess.ID)
package session
