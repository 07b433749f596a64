package instrumentation

import "strings"

// Cardinality helpers keep label values bounded. Use them whenever a metric
// label is derived from user input (emails, request paths).

// ExtractUserDomain extracts the domain part from an email address.
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
//	ExtractUserDomain("")                  // "unknown"
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// knownRoutes are the paths served by the web app. Anything else is
// reported as "other" so scanners cannot inflate the path label.
var knownRoutes = map[string]bool{
	"/":                     true,
	"/login":                true,
	"/api/meetings":         true,
	"/api/mcp":              true,
	"/api/relay/status":     true,
	"/api/relay/connect":    true,
	"/api/relay/tools":      true,
	"/auth/demo":            true,
	"/auth/logout":          true,
	"/auth/google/start":    true,
	"/auth/google/callback": true,
	"/healthz":              true,
	"/readyz":               true,
	"/healthz/detailed":     true,
}

// RoutePattern maps a request path onto a bounded set of label values.
func RoutePattern(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// Calendar provider operations.
const (
	OperationListEvents = "list_events"
	OperationFetchFeed  = "fetch_feed"
)
