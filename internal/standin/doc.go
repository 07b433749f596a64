// Package standin serves a local relay endpoint backed by fixture events.
//
// It answers the custom google_calendar.listEvents method used by the relay
// client when no remote relay is configured, and also speaks enough MCP
// (initialize, tools/list, tools/call) through mcp-go to exercise the full
// discovery path against a local server:
//
//	h := standin.New(standin.Config{Logger: logger})
//	mux.Handle("POST /api/mcp", h)
//
// Fixture times are computed relative to the request time, so the stand-in
// always returns five upcoming and five past meetings.
package standin
