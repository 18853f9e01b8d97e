// Package mcp provides a Model Context Protocol server for the mechanism workbench.
//
// The mcp package implements:
//   - MCP tools that proxy to the REST API
//   - Argument decoding from tool calls into typed requests
//   - Text formatting of snapshots, command results and analysis reports
//
// MCP Tools:
//   - create_session, list_sessions, get_state
//   - add_component, remove_component, move_component, rotate_component
//   - apply_input, release_input, run_analysis
//   - reset_states, load_example, clear_workspace
//   - list_profiles, workbench_instructions
//
// Transport Modes:
//
// The same tool set serves both transports:
//   - Stdio: server.ServeStdio(client.GetMCPServer())
//   - HTTP: POST /mcp, handled with MCPServer.HandleMessage
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
