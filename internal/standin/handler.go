package standin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/meetingbrief/internal/logging"
)

// Method is the custom JSON-RPC method answered with the raw fixture list.
const Method = "google_calendar.listEvents"

// Tool names exposed over MCP. They match the names a hosted relay uses so
// the relay client's preferred-name lookup succeeds.
const (
	ToolEventsList    = "GOOGLECALENDAR_EVENTS_LIST"
	ToolCalendarsList = "GOOGLECALENDAR_LIST_CALENDARS"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
)

const maxRequestBytes = 1 << 20

// Config configures a Handler.
type Config struct {
	Logger  *slog.Logger
	Version string

	// Now overrides the clock used to position fixtures.
	Now func() time.Time
}

// Handler is the stand-in JSON-RPC endpoint.
type Handler struct {
	mcp    *mcpserver.MCPServer
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Handler with the calendar tools registered.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	h := &Handler{
		now:    cfg.Now,
		logger: logging.WithService(cfg.Logger, "standin"),
	}
	h.mcp = mcpserver.NewMCPServer("meetingbrief-standin", cfg.Version,
		mcpserver.WithToolCapabilities(false),
	)
	h.registerTools()
	return h
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// ServeHTTP answers one JSON-RPC request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "failed to read request", http.StatusBadRequest)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Warn("invalid json-rpc request", logging.Err(err))
		writeJSON(w, http.StatusBadRequest, rpcResponse{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &rpcError{Code: codeParseError, Message: "Parse error"},
		})
		return
	}
	if len(req.ID) == 0 {
		req.ID = json.RawMessage("null")
	}

	logger := h.logger.With(logging.Method(req.Method))

	if req.Method == Method {
		logger.Debug("serving fixture events")
		writeJSON(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]any{"events": Events(h.now())},
		})
		return
	}

	resp := h.mcp.HandleMessage(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) registerTools() {
	calendarsTool := mcp.NewTool(ToolCalendarsList,
		mcp.WithDescription("List the calendars on the user's calendar list"),
	)
	h.mcp.AddTool(calendarsTool, h.listCalendars)

	eventsTool := mcp.NewTool(ToolEventsList,
		mcp.WithDescription("List events on a calendar within a time window"),
		mcp.WithString("calendarId",
			mcp.Description("Calendar identifier (default: primary)"),
		),
		mcp.WithString("timeMin",
			mcp.Description("Lower bound (RFC3339) for an event's end time"),
		),
		mcp.WithString("timeMax",
			mcp.Description("Upper bound (RFC3339) for an event's start time"),
		),
		mcp.WithBoolean("singleEvents",
			mcp.Description("Expand recurring events into instances"),
		),
		mcp.WithString("orderBy",
			mcp.Description("Sort order, only startTime is supported"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of events to return"),
		),
	)
	h.mcp.AddTool(eventsTool, h.listEvents)
}

func (h *Handler) listCalendars(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"items": []map[string]any{
			{"id": "primary", "summary": FixtureAttendee.DisplayName, "primary": true},
		},
	})
}

func (h *Handler) listEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	calendarID := request.GetString("calendarId", "primary")
	if calendarID != "primary" {
		return mcp.NewToolResultError(fmt.Sprintf("calendar %q not found", calendarID)), nil
	}

	var from, to time.Time
	if v := request.GetString("timeMin", ""); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid timeMin: %v", err)), nil
		}
		from = t
	}
	if v := request.GetString("timeMax", ""); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid timeMax: %v", err)), nil
		}
		to = t
	}

	events := eventsBetween(h.now(), from, to, request.GetInt("maxResults", 0))
	h.logger.Debug("listed fixture events", logging.Tool(ToolEventsList), "count", len(events))
	return jsonResult(map[string]any{"items": events})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
