// Package service provides the business logic layer for the mechanism workbench.
//
// The service package defines the WorkbenchService interface that the REST
// API and the MCP tools both call, along with the request and response types
// they share.
//
// Core Types:
//
// Service implements WorkbenchService on top of a SessionManager and a
// ProfileManager. It owns one mutex that serializes every engine call, and
// a frame loop (Run) that ticks every session and reports changed snapshots
// so they can be pushed to WebSocket clients.
//
// Errors:
//
// Missing sessions and profiles surface as ErrSessionNotFound and
// ErrProfileNotFound. Engine commands that are refused (no actuator, nothing
// to release, unconfirmed clear) are not errors: they come back as a
// CommandResult with Success=false and an error-level Status. Malformed input
// such as an unknown component kind is ErrCommandRejected.
//
// Usage:
//
//	svc := service.NewWorkbenchService(session.NewManager(), profiles,
//		service.WithMetrics(telemetry.New()))
//	go svc.Run(ctx, service.DefaultFrameInterval, hub.BroadcastToSession)
//
//	info, _ := svc.CreateSession(ctx, "")
//	svc.LoadExample(ctx, info.ID)
//	result, _ := svc.ApplyInput(ctx, info.ID)
package service
