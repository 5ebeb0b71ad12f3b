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
	"github.com/wricardo/mcp-training/watchparty/transport/websocket"
	"github.com/wricardo/mcp-training/watchparty/watch/party"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Watch Party Hub",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Watch Party Hub - MCP Interface

This is a thin client that proxies all requests to the hub's REST API.

Viewers connected to the hub watch the same video. Any participant can play,
pause, seek or switch the video and everyone else follows.

AVAILABLE TOOLS:
- list_participants: Who is currently in the room
- hub_status: Open connections, registered participants, uptime
- broadcast_player_state: Push a play/pause/seek/source change to every viewer
- protocol_help: Describe the websocket protocol clients speak

NOTE: broadcast_player_state is last-write-wins. Whatever you send replaces
what viewers are doing right now.`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_participants",
		Description: "List participants currently registered with the hub, in join order",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListParticipants)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "hub_status",
		Description: "Get hub connection counts and settings",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleHubStatus)

	kinds := make([]string, 0, len(party.EventKinds()))
	for _, k := range party.EventKinds() {
		kinds = append(kinds, string(k))
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "broadcast_player_state",
		Description: "Relay a player state to every connected viewer",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"playable_reference": map[string]interface{}{
					"type":        "string",
					"description": "Embed URL the players should load",
				},
				"source_reference": map[string]interface{}{
					"type":        "string",
					"description": "URL the video was originally shared as (optional)",
				},
				"event_kind": map[string]interface{}{
					"type":        "string",
					"enum":        kinds,
					"description": "What happened to the player",
				},
			},
			Required: []string{"playable_reference", "event_kind"},
		},
	}, c.handleBroadcastPlayerState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "protocol_help",
		Description: "Describe the websocket protocol spoken by watch party clients",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleProtocolHelp)
}

// GetMCPServer returns the underlying MCP server for stdio or HTTP serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// apiCall makes an HTTP request to the REST API
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

// Tool handlers

func (c *Client) handleListParticipants(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count        int                 `json:"count"`
		Participants []party.Participant `json:"participants"`
	}

	if err := c.apiCall(ctx, "GET", "/api/participants", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatParticipants(response.Count, response.Participants)), nil
}

func (c *Client) handleHubStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var stats websocket.Stats
	if err := c.apiCall(ctx, "GET", "/api/status", nil, &stats); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStats(stats)), nil
}

func (c *Client) handleBroadcastPlayerState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	playable, _ := args["playable_reference"].(string)
	source, _ := args["source_reference"].(string)
	kind, _ := args["event_kind"].(string)

	state := party.PlayerState{
		SourceReference:   source,
		PlayableReference: playable,
		EventKind:         party.EventKind(kind),
	}
	// Catch bad input before it reaches the hub so the agent gets a readable hint
	if err := state.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var response struct {
		Delivered int               `json:"delivered"`
		State     party.PlayerState `json:"state"`
	}
	if err := c.apiCall(ctx, "POST", "/api/player-state", state, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Broadcast %s for %s\nDelivered to %d connection(s)\n",
		response.State.EventKind, response.State.PlayableReference, response.Delivered)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleProtocolHelp(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	b.WriteString("Watch Party Hub - Websocket Protocol\n\n")
	b.WriteString("CONNECTING:\n")
	b.WriteString("Open a websocket to /ws. Every frame is a JSON text frame:\n")
	b.WriteString(`  {"event": "<name>", "payload": <json>}` + "\n\n")

	b.WriteString("CLIENT -> HUB:\n")
	fmt.Fprintf(&b, "- %s: payload {\"id\", \"name\", \"role\"}; role is participant or administrator\n",
		websocket.EventRegisterParticipant)
	fmt.Fprintf(&b, "- %s: payload {\"sourceReference\", \"playableReference\", \"eventKind\"}\n\n",
		websocket.EventPlayerStateChanged)

	b.WriteString("HUB -> CLIENT:\n")
	fmt.Fprintf(&b, "- %s: payload is the full roster array, sent whenever someone joins or leaves\n",
		websocket.EventRosterUpdated)
	fmt.Fprintf(&b, "- %s: payload is the player state exactly as the sender wrote it\n\n",
		websocket.EventPlayerStateBroadcast)

	b.WriteString("EVENT KINDS:\n")
	for _, k := range party.EventKinds() {
		fmt.Fprintf(&b, "- %s\n", k)
	}

	b.WriteString("\nRULES:\n")
	b.WriteString("- Register before sending player state; earlier states are ignored\n")
	b.WriteString("- The sender receives its own broadcast too\n")
	b.WriteString("- Malformed frames are dropped without closing the connection\n")
	b.WriteString("- Late joiners get no state until the next change\n")

	return mcp.NewToolResultText(b.String()), nil
}

// Formatting helpers

func formatParticipants(count int, participants []party.Participant) string {
	if count == 0 {
		return "No participants connected.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Participants (%d):\n\n", count)
	for i, p := range participants {
		name := p.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Fprintf(&b, "%d. %s %s [%s]\n", i+1, p.ID, name, p.Role)
	}
	return b.String()
}

func formatStats(s websocket.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hub: %s\n", s.InstanceID)
	fmt.Fprintf(&b, "Open connections: %d\n", s.OpenConnections)
	fmt.Fprintf(&b, "Registered participants: %d\n", s.Registered)
	fmt.Fprintf(&b, "Uptime: %s\n", (time.Duration(s.UptimeSeconds) * time.Second).String())
	fmt.Fprintf(&b, "Replay last state: %t\n", s.ReplayLastState)
	fmt.Fprintf(&b, "Cross-instance relay: %t\n", s.CrossInstance)
	return b.String()
}
