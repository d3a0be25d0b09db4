package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mcp-training/aptracker/game/connection"
	"github.com/wricardo/mcp-training/aptracker/game/tracker"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL, version string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer(version)
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer(version string) {
	c.mcpServer = server.NewMCPServer(
		"Archipelago Tracker",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Archipelago Tracker - MCP Interface

This is a thin client that proxies all requests to the tracker's REST API.
The tracker keeps one connection to an Archipelago multiworld server, answers
the handshake as a Tracker client and records every message the server sends.

AVAILABLE TOOLS:
- connect: Point the tracker at a server and slot (it reconnects immediately)
- connection_status: Current parameters, slot facts and message counters
- recent_messages: Recorded server messages, newest first, optionally by command
- message_counts: Number of messages received per command

NOTE: connect only queues the request. Call connection_status afterwards to see
whether the server accepted the slot or refused it.`),
	)

	// Register all tools
	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "connect",
		Description: "Connect the tracker to an Archipelago server slot, replacing any current connection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"slot": map[string]interface{}{
					"type":        "string",
					"description": "Slot (player) name to connect as",
				},
				"host": map[string]interface{}{
					"type":        "string",
					"description": "Server host (default 127.0.0.1)",
				},
				"port": map[string]interface{}{
					"type":        "string",
					"description": "Server port (default 38281)",
				},
				"password": map[string]interface{}{
					"type":        "string",
					"description": "Room password, if any",
				},
			},
			Required: []string{"slot"},
		},
	}, c.handleConnect)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "connection_status",
		Description: "Get the tracker's connection parameters, slot facts and counters",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleStatus)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "recent_messages",
		Description: "List recorded server messages with pagination",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"page": map[string]interface{}{
					"type":        "number",
					"description": "Page number (default: 1)",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Messages per page (default: 20, max: 100)",
				},
				"order": map[string]interface{}{
					"type":        "string",
					"description": "desc (newest first, default) or asc",
					"enum":        []string{"asc", "desc"},
				},
				"cmd": map[string]interface{}{
					"type":        "string",
					"description": "Only messages with this command, e.g. PrintJSON or ReceivedItems",
				},
			},
		},
	}, c.handleRecentMessages)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "message_counts",
		Description: "Get the number of server messages received per command",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleMessageCounts)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// HTTPHandler serves MCP JSON-RPC messages posted over HTTP
func (c *Client) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := c.mcpServer.HandleMessage(r.Context(), body)
		if response == nil {
			// Notifications have no response
			w.WriteHeader(http.StatusAccepted)
			return
		}

		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(responseData)
	})
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
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

func (c *Client) handleConnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slot, err := request.RequireString("slot")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	params := connection.Parameters{
		Host:     request.GetString("host", connection.DefaultHost),
		Port:     request.GetString("port", connection.DefaultPort),
		Slot:     slot,
		Password: request.GetString("password", ""),
	}

	if err := c.apiCall(ctx, "POST", "/api/connection", params, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Connection requested: %s as %s\nUse connection_status to check whether the server accepted the slot.\n",
		params.Address(), params.Slot)
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var status tracker.Status
	if err := c.apiCall(ctx, "GET", "/api/connection", nil, &status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStatus(&status)), nil
}

func (c *Client) handleRecentMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := url.Values{}
	if page := request.GetInt("page", 0); page > 0 {
		query.Set("page", fmt.Sprint(page))
	}
	if limit := request.GetInt("limit", 0); limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}
	if order := request.GetString("order", ""); order != "" {
		query.Set("order", order)
	}
	if cmd := request.GetString("cmd", ""); cmd != "" {
		query.Set("cmd", cmd)
	}

	path := "/api/messages"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var history historyResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleMessageCounts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Counts map[string]int `json:"counts"`
		Total  int            `json:"total"`
	}
	if err := c.apiCall(ctx, "GET", "/api/messages/counts", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatCounts(response.Counts, response.Total)), nil
}

// historyResponse mirrors tracker.HistoryResponse with messages left as raw
// JSON, since server messages do not round-trip into the ServerMessage
// interface.
type historyResponse struct {
	Messages []struct {
		Seq        uint64          `json:"seq"`
		Cmd        string          `json:"cmd"`
		ReceivedAt time.Time       `json:"received_at"`
		Text       string          `json:"text"`
		Message    json.RawMessage `json:"message"`
	} `json:"messages"`
	TotalMessages int `json:"total_messages"`
	Page          int `json:"page"`
	TotalPages    int `json:"total_pages"`
}

// maxInlineMessage bounds how much raw JSON is shown per message.
const maxInlineMessage = 200

func formatStatus(status *tracker.Status) string {
	var b strings.Builder

	if !status.Ready {
		b.WriteString("Tracker: starting (supervisor not ready)\n")
	} else {
		b.WriteString("Tracker: ready\n")
	}

	if status.Parameters == nil {
		b.WriteString("Server: not configured, use the connect tool\n")
	} else {
		p := status.Parameters
		fmt.Fprintf(&b, "Server: %s\nSlot: %s\n", p.Address(), p.Slot)
	}

	switch {
	case status.Slot != nil:
		s := status.Slot
		fmt.Fprintf(&b, "Connected: team %d, slot %d", s.Team, s.Slot)
		if s.Name != "" {
			fmt.Fprintf(&b, " (%s)", s.Name)
		}
		fmt.Fprintf(&b, " since %s\n", s.ConnectedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "Players: %d\nHint points: %d\n", s.Players, s.HintPoints)
		fmt.Fprintf(&b, "Locations: %d checked, %d missing\n", s.CheckedLocations, s.MissingLocations)
		fmt.Fprintf(&b, "Items received: %d\n", s.ItemsReceived)
	case len(status.RefusedErrors) > 0:
		fmt.Fprintf(&b, "Refused by server: %s\n", strings.Join(status.RefusedErrors, ", "))
	case status.Parameters != nil:
		b.WriteString("Connected: not yet acknowledged by the server\n")
	}

	fmt.Fprintf(&b, "Messages received: %d\n", status.MessagesReceived)
	if status.LastMessageAt != nil {
		fmt.Fprintf(&b, "Last message: %s\n", status.LastMessageAt.Format(time.RFC3339))
	}

	return b.String()
}

func formatHistory(history *historyResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Messages (Page %d/%d) - Total recorded: %d\n\n",
		history.Page, history.TotalPages, history.TotalMessages)

	if len(history.Messages) == 0 {
		b.WriteString("(no messages)\n")
		return b.String()
	}

	for _, m := range history.Messages {
		fmt.Fprintf(&b, "#%d %s %s", m.Seq, m.ReceivedAt.Format("15:04:05"), m.Cmd)
		if m.Text != "" {
			fmt.Fprintf(&b, ": %s\n", m.Text)
			continue
		}
		raw := string(m.Message)
		if len(raw) > maxInlineMessage {
			raw = raw[:maxInlineMessage] + "..."
		}
		fmt.Fprintf(&b, " %s\n", raw)
	}

	return b.String()
}

func formatCounts(counts map[string]int, total int) string {
	if len(counts) == 0 {
		return "No messages received yet\n"
	}

	cmds := make([]string, 0, len(counts))
	for cmd := range counts {
		cmds = append(cmds, cmd)
	}
	sort.Strings(cmds)

	var b strings.Builder
	fmt.Fprintf(&b, "Messages received: %d\n\n", total)
	for _, cmd := range cmds {
		fmt.Fprintf(&b, "- %s: %d\n", cmd, counts[cmd])
	}
	return b.String()
}
