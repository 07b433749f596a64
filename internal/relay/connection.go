package relay

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/meetingbrief/internal/logging"
)

// Connector tools exposed by hosted relays for managing the user's
// Google Calendar connection.
const (
	ToolInitiateConnection = "COMPOSIO_INITIATE_CONNECTION"
	ToolCheckConnection    = "COMPOSIO_CHECK_ACTIVE_CONNECTION"

	connectorProvider = "googlecalendar"
	calendarScope     = "https://www.googleapis.com/auth/calendar.readonly"
)

// CheckConnection asks the relay whether Google Calendar is connected.
// Any failure reports false.
func (c *Client) CheckConnection(ctx context.Context) bool {
	out := c.CallTool(ctx, ToolCheckConnection, map[string]any{
		"provider": connectorProvider,
	})
	if !out.OK {
		return false
	}
	for _, doc := range payloads(out.Result) {
		for _, path := range [][]string{{"connected"}, {"success"}, {"data", "connected"}} {
			if v, ok := boolAt(doc, path...); ok {
				return v
			}
		}
	}
	return false
}

// InitiateConnection starts the relay's hosted OAuth flow for Google
// Calendar and returns the URL the user should open.
func (c *Client) InitiateConnection(ctx context.Context) (string, bool) {
	out := c.CallTool(ctx, ToolInitiateConnection, map[string]any{
		"provider":   connectorProvider,
		"scopes":     []string{calendarScope},
		"return_url": true,
	})
	if !out.OK {
		return "", false
	}
	for _, doc := range payloads(out.Result) {
		for _, path := range [][]string{{"url"}, {"data", "url"}} {
			if v, ok := stringAt(doc, path...); ok && v != "" {
				return v, true
			}
		}
	}
	c.logger.Warn("initiate connection returned no url", logging.Tool(ToolInitiateConnection))
	return "", false
}

// RawToolsList returns the unparsed tools/list response body from the
// remote relay, for debugging. Failures return "".
func (c *Client) RawToolsList(ctx context.Context) string {
	reply, err := c.post(ctx, c.cfg.URL, string(mcp.MethodToolsList), struct{}{})
	if err != nil {
		c.logger.Warn("raw tools/list failed", logging.Err(err))
		return ""
	}
	c.logger.Debug("raw tools/list", "status", reply.status, "body", snippet(reply.body))
	return string(reply.body)
}

// payloads returns the documents worth probing for a connector answer:
// the JSON in the last text block, the JSON in the first text block, and the
// result itself.
func payloads(result json.RawMessage) []json.RawMessage {
	var docs []json.RawMessage
	if v, ok := lookup(result, "content"); ok {
		if items, ok := asArray(v); ok {
			texts := textsOf(items)
			if n := len(texts); n > 0 {
				for _, t := range []string{texts[n-1], texts[0]} {
					if json.Valid([]byte(t)) {
						docs = append(docs, json.RawMessage(t))
					}
				}
			}
		}
	}
	return append(docs, result)
}

func boolAt(raw json.RawMessage, path ...string) (bool, bool) {
	v, ok := lookup(raw, path...)
	if !ok || isNull(v) {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return false, false
	}
	return b, true
}

func stringAt(raw json.RawMessage, path ...string) (string, bool) {
	v, ok := lookup(raw, path...)
	if !ok || isNull(v) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}
