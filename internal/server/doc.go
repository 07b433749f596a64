// Package server provides the meetingbrief HTTP application.
//
// # Key Components
//
// App wires the session store, login handlers, relay client, stand-in
// endpoint and meeting service into one http.Handler:
//   - GET /               meetings page (redirects to /login when signed out)
//   - GET /login          demo email form and Google sign-in link
//   - GET /api/meetings   {upcoming, past} JSON, or {error} with 401/500
//   - /api/mcp            local JSON-RPC stand-in used when no relay is set
//   - /api/relay/*        connection helpers for hosted relays
//   - /auth/*             login, logout and the Google OAuth callback
//
// MeetingService chooses the event source per request. In auto mode a
// signed-in Google user is served from the Calendar API, otherwise the relay
// (remote or stand-in) or an ICS feed is used. Past meetings are summarized
// when summaries are enabled.
//
// HealthChecker serves Kubernetes probes and MetricsServer exposes
// Prometheus metrics on a separate listener.
package server
