package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"

	"github.com/wricardo/mechanism-workbench/render"
	"github.com/wricardo/mechanism-workbench/workbench/engine"
	"github.com/wricardo/mechanism-workbench/workbench/service"
)

// Version reported to MCP clients
const Version = "1.0.0"

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// analysis waits for the profile's display delay
			Timeout: time.Duration(engine.MaxAnalysisWait)*time.Millisecond + 10*time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Mechanism Workbench",
		Version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Mechanism Workbench - MCP Interface

This is a thin client that proxies all requests to the REST API server.

Place mechanical parts (actuator, retention, stop, spring, pivot) on a 2D
workspace, apply and release input on the actuator, and read back
engagements, constraints, stress metrics and a ranked failure report.

AVAILABLE TOOLS:
- create_session / list_sessions: manage workbenches
- get_state: full snapshot of a session
- add_component / remove_component / move_component / rotate_component
- apply_input / release_input: drive the first actuator
- run_analysis: stress metrics and failure report (waits for the profile delay)
- reset_states / load_example / clear_workspace
- list_profiles: tuning profiles available for create_session
- workbench_instructions: how the interaction model works`),
	)

	c.registerTools()
}

func sessionProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

func componentProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Component ID",
	}
}

func numberProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": description,
	}
}

// sessionTool declares a tool that only needs a session_id
func sessionTool(name, description string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
			},
			Required: []string{"session_id"},
		},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new workbench session with an optional tuning profile",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"profile_id": map[string]interface{}{
					"type":        "string",
					"description": "Profile to use (optional, see list_profiles)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active workbench sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(sessionTool("get_state", "Get the full snapshot of a session"), c.handleGetState)

	// Components
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "add_component",
		Description: "Place a component on the workspace. Placement overlapping a retention element is blocked.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"kind": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"actuator", "retention", "stop", "spring", "pivot"},
					"description": "Component kind",
				},
				"x":        numberProp("X position"),
				"y":        numberProp("Y position"),
				"extent":   numberProp("Collision extent override (optional)"),
				"rotation": numberProp("Initial rotation in radians (optional)"),
			},
			Required: []string{"session_id", "kind", "x", "y"},
		},
	}, c.handleAddComponent)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "remove_component",
		Description: "Remove a component and everything that references it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id":   sessionProp(),
				"component_id": componentProp(),
			},
			Required: []string{"session_id", "component_id"},
		},
	}, c.handleRemoveComponent)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "move_component",
		Description: "Move a component to a new position",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id":   sessionProp(),
				"component_id": componentProp(),
				"x":            numberProp("Target X position"),
				"y":            numberProp("Target Y position"),
				"animate": map[string]interface{}{
					"type":        "boolean",
					"description": "Slide with ease-out instead of jumping",
				},
			},
			Required: []string{"session_id", "component_id", "x", "y"},
		},
	}, c.handleMoveComponent)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "rotate_component",
		Description: "Rotate a component by a delta in radians",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id":   sessionProp(),
				"component_id": componentProp(),
				"delta":        numberProp("Rotation delta in radians"),
			},
			Required: []string{"session_id", "component_id", "delta"},
		},
	}, c.handleRotateComponent)

	// Interaction
	c.mcpServer.AddTool(sessionTool("apply_input", "Apply input to the first actuator: engage if a retention element overlaps, otherwise preload"), c.handleApplyInput)
	c.mcpServer.AddTool(sessionTool("release_input", "Release the loaded actuator; components settle back to rest"), c.handleReleaseInput)
	c.mcpServer.AddTool(sessionTool("run_analysis", "Compute stress metrics and the ranked failure report"), c.handleRunAnalysis)
	c.mcpServer.AddTool(sessionTool("reset_states", "Return every component to rest and zero its rotation"), c.handleResetStates)
	c.mcpServer.AddTool(sessionTool("load_example", "Replace the workspace with the profile's example mechanism"), c.handleLoadExample)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "clear_workspace",
		Description: "Remove every component. Requires confirm=true.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"confirm": map[string]interface{}{
					"type":        "boolean",
					"description": "Must be true to clear",
				},
			},
			Required: []string{"session_id", "confirm"},
		},
	}, c.handleClearWorkspace)

	// Profiles
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_profiles",
		Description: "List available tuning profiles",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListProfiles)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "workbench_instructions",
		Description: "Explain the interaction model, states and failure rules",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

// decodeArgs copies tool arguments into a struct using its mapstructure tags.
// JSON numbers arrive as float64, so integer fields are converted weakly.
func decodeArgs(request mcp.CallToolRequest, target interface{}) error {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		args = map[string]interface{}{}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

type sessionArgs struct {
	SessionID string `mapstructure:"session_id"`
}

type componentArgs struct {
	SessionID   string             `mapstructure:"session_id"`
	ComponentID engine.ComponentID `mapstructure:"component_id"`
}

type moveArgs struct {
	SessionID   string             `mapstructure:"session_id"`
	ComponentID engine.ComponentID `mapstructure:"component_id"`
	X           float64            `mapstructure:"x"`
	Y           float64            `mapstructure:"y"`
	Animate     bool               `mapstructure:"animate"`
}

type rotateArgs struct {
	SessionID   string             `mapstructure:"session_id"`
	ComponentID engine.ComponentID `mapstructure:"component_id"`
	Delta       float64            `mapstructure:"delta"`
}

type addArgs struct {
	SessionID string `mapstructure:"session_id"`

	service.AddComponentRequest `mapstructure:",squash"`
}

type clearArgs struct {
	SessionID string `mapstructure:"session_id"`
	Confirm   bool   `mapstructure:"confirm"`
}

func requireSession(id string) error {
	if id == "" {
		return fmt.Errorf("session_id is required")
	}
	return nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ProfileID string `mapstructure:"profile_id"`
	}
	if err := decodeArgs(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]string{}
	if args.ProfileID != "" {
		body["profile_id"] = args.ProfileID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nProfile: %s\n", session.ID, session.Profile)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		components := 0
		if s.State != nil {
			components = len(s.State.Components)
		}
		result += fmt.Sprintf("- %s (Profile: %s, Components: %d, Created: %s)\n",
			s.ID, s.Profile, components, s.CreatedAt.Format("15:04:05"))
	}

	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sessionArgs
	if err := decodeArgs(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := requireSession(args.SessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var state engine.Snapshot
	if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/sessions/%s/state", args.SessionID), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSnapshot(&state)), nil
}

func (c *Client) handleAddComponent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args addArgs
	if err := decodeArgs(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := requireSession(args.SessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return c.command(ctx, "POST", fmt.Sprintf("/api/sessions/%s/components", args.SessionID), args.AddComponentRequest)
}

func (c *Client) handleRemoveComponent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args componentArgs
	if err := decodeArgs(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := requireSession(args.SessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return c.command(ctx, "DELETE", fmt.Sprintf("/api/sessions/%s/components/%d", args.SessionID, args.ComponentID), nil)
}

func (c *Client) handleMoveComponent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args moveArgs
	if err := decodeArgs(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := requireSession(args.SessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]interface{}{"x": args.X, "y": args.Y, "animate": args.Animate}
	return c.command(ctx, "POST", fmt.Sprintf("/api/sessions/%s/components/%d/move", args.SessionID, args.ComponentID), body)
}

func (c *Client) handleRotateComponent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args rotateArgs
	if err := decodeArgs(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := requireSession(args.SessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]interface{}{"delta": args.Delta}
	return c.command(ctx, "POST", fmt.Sprintf("/api/sessions/%s/components/%d/rotate", args.SessionID, args.ComponentID), body)
}

// sessionCommand posts to a per-session action endpoint
func (c *Client) sessionCommand(action string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args sessionArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := requireSession(args.SessionID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return c.command(ctx, "POST", fmt.Sprintf("/api/sessions/%s/%s", args.SessionID, action), nil)
	}
}

func (c *Client) handleApplyInput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.sessionCommand("apply")(ctx, request)
}

func (c *Client) handleReleaseInput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.sessionCommand("release")(ctx, request)
}

func (c *Client) handleResetStates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.sessionCommand("reset")(ctx, request)
}

func (c *Client) handleLoadExample(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return c.sessionCommand("example")(ctx, request)
}

func (c *Client) handleClearWorkspace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args clearArgs
	if err := decodeArgs(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := requireSession(args.SessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	body := map[string]bool{"confirm": args.Confirm}
	return c.command(ctx, "POST", fmt.Sprintf("/api/sessions/%s/clear", args.SessionID), body)
}

func (c *Client) handleRunAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sessionArgs
	if err := decodeArgs(request, &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := requireSession(args.SessionID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result service.AnalysisResult
	if err := c.apiCall(ctx, "POST", fmt.Sprintf("/api/sessions/%s/analysis", args.SessionID), nil, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	state := result.State
	if state == nil {
		state = &engine.Snapshot{}
	}
	state.Metrics = result.Metrics
	state.Failures = result.Failures

	return mcp.NewToolResultText(render.Markdown("Analysis of session "+args.SessionID, state)), nil
}

func (c *Client) handleListProfiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var profiles []service.ProfileInfo
	if err := c.apiCall(ctx, "GET", "/api/profiles", nil, &profiles); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available Profiles (%d):\n\n", len(profiles))
	for _, p := range profiles {
		fmt.Fprintf(&b, "- %s: %s (engage %.0f°, preload %.0f°)\n", p.ProfileID, p.Name, p.EngageAngle, p.PreloadAngle)
		if p.Description != "" {
			fmt.Fprintf(&b, "  %s\n", p.Description)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

// command runs a mutating API call and formats its CommandResult
func (c *Client) command(ctx context.Context, method, path string, body interface{}) (*mcp.CallToolResult, error) {
	var result service.CommandResult
	if err := c.apiCall(ctx, method, path, body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatCommandResult(&result)), nil
}

const instructions = `Mechanism Workbench - Instructions

COMPONENT KINDS:
- actuator: the part input is applied to. Commands drive the first one placed.
- retention: captures an overlapping actuator. Nothing may be placed on top of one.
- stop: limits travel; overlapping an actuator is reported as a contact constraint.
- spring: stores energy; enables spring stress and force readouts.
- pivot: the rotation point of the example mechanism.

STATES:
AT_REST -> apply_input with a retention overlapping the actuator -> ENGAGED
AT_REST -> apply_input with no retention overlap -> PRELOADED
ENGAGED/PRELOADED -> release_input -> RELEASED -> settles back to AT_REST
Placement overlapping a retention element -> BLOCKED (placement is refused)

Transitions animate with an ease-out curve; get_state while a transition runs
shows intermediate rotations and animating=true.

FAILURE REPORT (most severe first):
- CRITICAL: components placed but no actuator
- CRITICAL/HIGH: loaded actuator rotated far enough to stress its pivot
- HIGH: actuator without any retention element
- HIGH/MEDIUM: retention rotated far enough to stress it
- MEDIUM: engaged retention under contact pressure
- MEDIUM: spring touching more than one component
- LOW: spring held compressed by a loaded actuator

Constraints are diagnostics only; they never block a command.`

func formatCommandResult(result *service.CommandResult) string {
	var b strings.Builder
	if result.Success {
		fmt.Fprintf(&b, "✓ %s\n", result.Status.Message)
	} else {
		fmt.Fprintf(&b, "✗ %s\n", result.Status.Message)
	}
	if result.ComponentID != 0 {
		fmt.Fprintf(&b, "Component ID: %d\n", result.ComponentID)
	}
	if result.State != nil {
		b.WriteString("\n")
		b.WriteString(formatSnapshot(result.State))
	}
	return b.String()
}

func formatSnapshot(state *engine.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "System: %s", state.SystemState)
	if state.Animating {
		b.WriteString(" (animating)")
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Components (%d):\n", len(state.Components))
	for _, c := range state.Components {
		fmt.Fprintf(&b, "  #%d %-9s at (%.0f,%.0f) rot %.2f  %s\n",
			c.ID, c.Kind, c.Position.X, c.Position.Y, c.Rotation, c.State)
	}

	if len(state.Engagements) > 0 {
		b.WriteString("Engagements:\n")
		for _, e := range state.Engagements {
			fmt.Fprintf(&b, "  #%d -> #%d\n", e.From, e.To)
		}
	}
	if len(state.Constraints) > 0 {
		b.WriteString("Constraints:\n")
		for _, c := range state.Constraints {
			fmt.Fprintf(&b, "  %s\n", c.Message)
		}
	}
	if len(state.Failures) > 0 {
		b.WriteString("Failures:\n")
		for _, f := range state.Failures {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", f.Severity, f.Component, f.Reason)
		}
	}
	return b.String()
}
