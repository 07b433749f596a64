package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/meetingbrief/internal/instrumentation"
	"github.com/teemow/meetingbrief/internal/logging"
)

// ProtocolVersion is sent with the initialize call.
const ProtocolVersion = "2025-03-26"

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxCalendars = 5
	DefaultPageSize     = 50
	DefaultTimeout      = 30 * time.Second
	DefaultClientName   = "meetingbrief"

	// maxBodyBytes bounds how much of a relay response is read.
	maxBodyBytes = 10 << 20
)

// Config configures a Client. It is built once at process start.
type Config struct {
	// URL is the remote relay endpoint. Empty selects the local stand-in.
	URL string

	// APIKey is sent as a bearer token to the remote relay when set.
	APIKey string

	// StandinURL is the local stand-in endpoint, e.g. http://localhost:3000/api/mcp.
	StandinURL string

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *instrumentation.Metrics

	ClientName    string
	ClientVersion string

	// MaxCalendars caps how many calendars are queried for events.
	MaxCalendars int

	// PageSize is passed as maxResults to the events-list tool.
	PageSize int
}

// Client talks JSON-RPC to a relay. It is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New creates a Client, filling in defaults.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ClientName == "" {
		cfg.ClientName = DefaultClientName
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "dev"
	}
	if cfg.MaxCalendars <= 0 {
		cfg.MaxCalendars = DefaultMaxCalendars
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	c := &Client{
		cfg:    cfg,
		http:   cfg.HTTPClient,
		logger: logging.WithService(cfg.Logger, "relay"),
	}
	if c.Remote() {
		c.logger.Debug("using remote relay", "url", cfg.URL, "api_key", logging.SanitizeToken(cfg.APIKey))
	}
	return c
}

// Remote reports whether a remote relay URL is configured.
func (c *Client) Remote() bool {
	return c.cfg.URL != ""
}

// Outcome is the result of a single JSON-RPC call. Result is nil when OK is
// false or the server returned a null result.
type Outcome struct {
	OK     bool
	Result json.RawMessage
}

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// Call sends one JSON-RPC request to the remote relay, or to the stand-in
// when no relay is configured.
func (c *Client) Call(ctx context.Context, method string, params any) Outcome {
	return c.callAt(ctx, c.endpoint(), method, params)
}

func (c *Client) endpoint() string {
	if c.cfg.URL != "" {
		return c.cfg.URL
	}
	return c.cfg.StandinURL
}

func (c *Client) callAt(ctx context.Context, target, method string, params any) Outcome {
	start := time.Now()
	ctx, span := instrumentation.StartRelaySpan(ctx, method)
	defer span.End()

	logger := c.logger.With(logging.Method(method))

	resp, err := c.roundTrip(ctx, target, method, params)
	status := instrumentation.StatusSuccess
	if err == nil && resp.Error != nil {
		err = resp.Error
	}
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		logger.Warn("relay call failed", logging.Status(status), logging.Err(err))
	} else {
		instrumentation.SetSpanSuccess(span)
		logger.Debug("relay call succeeded", slog.Duration(logging.KeyDuration, time.Since(start)))
	}
	c.cfg.Metrics.RecordRelayCall(ctx, method, status, time.Since(start))

	if err != nil {
		return Outcome{}
	}
	result := resp.Result
	if isNull(result) {
		result = nil
	}
	return Outcome{OK: true, Result: result}
}

// roundTrip posts the request and decodes the body. It is the only place
// that returns errors; callAt folds them into an Outcome.
func (c *Client) roundTrip(ctx context.Context, target, method string, params any) (Response, error) {
	reply, err := c.post(ctx, target, method, params)
	if err != nil {
		return Response{}, err
	}
	if reply.status < 200 || reply.status > 299 {
		return Response{}, fmt.Errorf("relay returned HTTP %d: %s", reply.status, snippet(reply.body))
	}
	return DecodeBody(reply.body, reply.contentType)
}

type httpReply struct {
	body        []byte
	status      int
	contentType string
}

// post sends the request and returns the raw reply.
func (c *Client) post(ctx context.Context, target, method string, params any) (httpReply, error) {
	if target == "" {
		return httpReply{}, errors.New("no relay endpoint configured")
	}
	if params == nil {
		params = struct{}{}
	}

	payload, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return httpReply{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return httpReply{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if c.cfg.APIKey != "" && target == c.cfg.URL {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return httpReply{}, fmt.Errorf("relay request failed: %w", err)
	}
	defer resp.Body.Close()

	reply := httpReply{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type")}
	reply.body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return reply, fmt.Errorf("failed to read relay response: %w", err)
	}
	return reply, nil
}

// DecodeBody decodes a relay response body. A body is read as an event
// stream when contentType is text/event-stream or its first line is a
// stream field or comment; the data of the last event carrying data is then
// parsed. Anything else is parsed as a single JSON document. An empty body
// decodes to an empty Response.
func DecodeBody(body []byte, contentType string) (Response, error) {
	text := strings.TrimLeft(string(body), " \t\r\n\ufeff")

	if isEventStream(text, contentType) {
		data, ok := lastEventData(text)
		if !ok {
			return Response{}, errors.New("event stream contained no data lines")
		}
		text = data
	}

	var resp Response
	if strings.TrimSpace(text) == "" {
		return resp, nil
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return Response{}, fmt.Errorf("failed to decode relay response: %w", err)
	}
	return resp, nil
}

func isEventStream(text, contentType string) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "text/event-stream" {
		return true
	}
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimRight(line, "\r")
	if strings.HasPrefix(line, ":") {
		return true
	}
	field, _, ok := strings.Cut(line, ":")
	if !ok {
		return false
	}
	switch field {
	case "id", "event", "data", "retry":
		return true
	}
	return false
}

// lastEventData returns the data of the last event that had any. Multiple
// data lines in one event are joined with newlines.
func lastEventData(text string) (string, bool) {
	var (
		last    string
		found   bool
		pending []string
	)
	dispatch := func() {
		if len(pending) > 0 {
			last = strings.Join(pending, "\n")
			found = true
		}
		pending = nil
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			dispatch()
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field != "data" {
			continue
		}
		pending = append(pending, strings.TrimPrefix(value, " "))
	}
	dispatch()
	return last, found
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
