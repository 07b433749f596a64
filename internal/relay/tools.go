package relay

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/meetingbrief/internal/logging"
)

// ErrNoEventsTool is returned by Discover when the relay exposes no tool
// that can list calendar events.
var ErrNoEventsTool = errors.New("relay exposes no events-list tool")

// Well-known tool names, preferred over heuristic matches.
const (
	ToolEventsList    = "GOOGLECALENDAR_EVENTS_LIST"
	ToolCalendarsList = "GOOGLECALENDAR_LIST_CALENDARS"
)

// Tool is the subset of an MCP tool descriptor the client needs. Relays
// attach arbitrary schemas, so only the name and description are decoded.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Capability is a kind of remote operation the client knows how to use.
type Capability int

const (
	CapabilityEventsList Capability = iota
	CapabilityCalendarsList
)

func (c Capability) String() string {
	switch c {
	case CapabilityEventsList:
		return "events-list"
	case CapabilityCalendarsList:
		return "calendars-list"
	default:
		return "unknown"
	}
}

// matcher recognizes tools for one capability. preferred is compared
// case-insensitively and wins over any heuristic match, which sees the
// lower-cased name split into words.
type matcher struct {
	preferred string
	match     func(words nameWords) bool
}

var matchers = map[Capability]matcher{
	CapabilityEventsList: {
		preferred: ToolEventsList,
		match: func(w nameWords) bool {
			return w.readOnly() && w.has("list") && w.has("event", "events")
		},
	},
	CapabilityCalendarsList: {
		preferred: ToolCalendarsList,
		match: func(w nameWords) bool {
			if !w.readOnly() || !w.has("list") || w.has("event", "events") {
				return false
			}
			return w.has("calendars") || (w.has("calendar") && w.last() == "list")
		},
	},
}

// writeVerbs mark tools that change the account. They are never picked
// heuristically, whatever else the name says.
var writeVerbs = []string{"insert", "update", "patch", "delete", "create", "remove", "clear", "move", "import", "watch"}

type nameWords []string

func splitName(name string) nameWords {
	return strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == '/' || r == ' '
	})
}

func (w nameWords) has(words ...string) bool {
	for _, word := range w {
		if slices.Contains(words, word) {
			return true
		}
	}
	return false
}

func (w nameWords) last() string {
	if len(w) == 0 {
		return ""
	}
	return w[len(w)-1]
}

func (w nameWords) readOnly() bool {
	return !w.has(writeVerbs...)
}

// Catalog is the relay's tool list indexed by Capability.
type Catalog struct {
	tools map[Capability]Tool
	all   []Tool
}

// NewCatalog selects one tool per capability: the preferred name when
// present, otherwise the first read-only tool whose name matches the
// heuristic.
func NewCatalog(tools []Tool) Catalog {
	cat := Catalog{tools: make(map[Capability]Tool), all: tools}

	for capability, m := range matchers {
		var fallback *Tool
		for i := range tools {
			if strings.EqualFold(tools[i].Name, m.preferred) {
				cat.tools[capability] = tools[i]
				fallback = nil
				break
			}
			if fallback == nil && m.match(splitName(tools[i].Name)) {
				fallback = &tools[i]
			}
		}
		if fallback != nil {
			cat.tools[capability] = *fallback
		}
	}
	return cat
}

// Lookup returns the tool selected for capability.
func (c Catalog) Lookup(capability Capability) (Tool, bool) {
	t, ok := c.tools[capability]
	return t, ok
}

// Tools returns every tool the relay listed, in relay order.
func (c Catalog) Tools() []Tool {
	return c.all
}

// Initialize performs the MCP handshake. The result is only checked for
// success.
func (c *Client) Initialize(ctx context.Context) bool {
	out := c.Call(ctx, string(mcp.MethodInitialize), mcp.InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo: mcp.Implementation{
			Name:    c.cfg.ClientName,
			Version: c.cfg.ClientVersion,
		},
		Capabilities: mcp.ClientCapabilities{},
	})
	return out.OK
}

// ListTools returns the relay's tools. The result may be a bare array or an
// object with a tools field; anything else yields nil.
func (c *Client) ListTools(ctx context.Context) []Tool {
	out := c.Call(ctx, string(mcp.MethodToolsList), struct{}{})
	if !out.OK {
		return nil
	}
	return decodeTools(out.Result)
}

func decodeTools(raw json.RawMessage) []Tool {
	var list []Tool
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var wrapped struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Tools
	}
	return nil
}

// CallTool invokes a relay tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, args any) Outcome {
	return c.Call(ctx, string(mcp.MethodToolsCall), mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
}

// Discover runs initialize and tools/list and builds the Catalog. It returns
// ErrNoEventsTool when no events-list tool is available; the catalog is
// still returned for inspection.
func (c *Client) Discover(ctx context.Context) (Catalog, error) {
	if !c.Initialize(ctx) {
		c.logger.Warn("initialize failed, continuing with tools/list", logging.Operation("discover"))
	}

	cat := NewCatalog(c.ListTools(ctx))
	if _, ok := cat.Lookup(CapabilityEventsList); !ok {
		return cat, ErrNoEventsTool
	}
	return cat, nil
}
