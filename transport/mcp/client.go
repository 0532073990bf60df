package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/morpion/game/board"
	"github.com/wricardo/morpion/game/room"
	"github.com/wricardo/morpion/game/session"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string, version string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer(version)
	return c
}

func (c *Client) initMCPServer(version string) {
	c.mcpServer = server.NewMCPServer(
		"Morpion",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(`Morpion - MCP Interface

Read-only view of the live tic-tac-toe rooms. Every tool proxies to the REST API server.

Rooms hold at most two players. Scores are win counts per display name and live
as long as the server process.

AVAILABLE TOOLS:
- list_rooms: All rooms with their state and members
- get_room: Members, scores and current board of one room
- room_scores: Win counts of one room
- server_health: Connection and room counts`),
	)

	c.registerTools()
}

func roomCodeSchema() mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"room_code": map[string]interface{}{
				"type":        "string",
				"description": "Room code players joined with",
			},
		},
		Required: []string{"room_code"},
	}
}

func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List every room with its state and members",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get members, scores and the current board of a room",
		InputSchema: roomCodeSchema(),
	}, c.handleGetRoom)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "room_scores",
		Description: "Get the win counts of a room",
		InputSchema: roomCodeSchema(),
	}, c.handleRoomScores)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_health",
		Description: "Get connection and room counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleHealth)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Handler serves single JSON-RPC messages over HTTP POST.
func (c *Client) Handler() http.Handler {
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
			// notifications have no reply
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

func roomPath(code string, suffix string) string {
	return "/api/rooms/" + url.PathEscape(code) + suffix
}

// Tool handlers

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count int                `json:"count"`
		Rooms []session.RoomInfo `json:"rooms"`
	}
	if err := c.apiCall(ctx, "GET", "/api/rooms", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if response.Count == 0 {
		return mcp.NewToolResultText("No rooms yet."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rooms (%d):\n\n", response.Count)
	for _, r := range response.Rooms {
		fmt.Fprintf(&b, "- %s [%s] players: %s\n", r.Code, r.State, playerNames(r.Players))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := request.GetString("room_code", "")
	if code == "" {
		return mcp.NewToolResultError("room_code is required"), nil
	}

	var info session.RoomInfo
	if err := c.apiCall(ctx, "GET", roomPath(code, ""), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatRoom(&info)), nil
}

func (c *Client) handleRoomScores(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code := request.GetString("room_code", "")
	if code == "" {
		return mcp.NewToolResultError("room_code is required"), nil
	}

	var response struct {
		Code   string         `json:"code"`
		Scores map[string]int `json:"scores"`
	}
	if err := c.apiCall(ctx, "GET", roomPath(code, "/scores"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Scores for %s:\n%s", response.Code, formatScores(response.Scores))), nil
}

func (c *Client) handleHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Status string        `json:"status"`
		Stats  session.Stats `json:"stats"`
	}
	if err := c.apiCall(ctx, "GET", "/api/health", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Status: %s\nConnections: %d\nRooms: %d (%d ready)\n",
		response.Status, response.Stats.Connections, response.Stats.Rooms, response.Stats.ReadyRooms)
	return mcp.NewToolResultText(result), nil
}

// Formatting helpers

func playerNames(players []session.PlayerInfo) string {
	if len(players) == 0 {
		return "none"
	}
	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}

func formatScores(scores room.Scores) string {
	if len(scores) == 0 {
		return "  (no players)\n"
	}

	var b strings.Builder
	for _, name := range scores.Names() {
		fmt.Fprintf(&b, "  %s: %d\n", name, scores[name])
	}
	return b.String()
}

func formatBoard(s board.Snapshot) string {
	var b strings.Builder
	for row := 0; row < 3; row++ {
		b.WriteString("  ")
		for col := 0; col < 3; col++ {
			m := s.Board[row*3+col]
			if m == board.Empty {
				b.WriteString(".")
			} else {
				b.WriteString(string(m))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatRoom(info *session.RoomInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Room: %s\n", info.Code)
	fmt.Fprintf(&b, "State: %s\n", info.State)
	fmt.Fprintf(&b, "Players: %s\n", playerNames(info.Players))
	b.WriteString("Scores:\n")
	b.WriteString(formatScores(info.Scores))
	b.WriteString("Board:\n")
	b.WriteString(formatBoard(info.CurrentGame))
	if info.CurrentGame.Winner != nil {
		fmt.Fprintf(&b, "Last winner: %s\n", *info.CurrentGame.Winner)
	} else {
		fmt.Fprintf(&b, "To move: %s\n", info.CurrentGame.CurrentPlayer)
	}
	return b.String()
}
