package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type recordedCall struct {
	ID     string
	Method string
	Params json.RawMessage
	Header http.Header
}

// handlerFunc answers one JSON-RPC method. Returning a non-nil RPCError
// produces an error response.
type handlerFunc func(params json.RawMessage) (any, *RPCError)

// fakeRelay is an httptest JSON-RPC server with per-method handlers.
type fakeRelay struct {
	t           *testing.T
	mu          sync.Mutex
	calls       []recordedCall
	methods     map[string]handlerFunc
	tools       map[string]handlerFunc
	sse         bool
	ssePreamble string
	status      int
	rawReply    string
	server      *httptest.Server
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	f := &fakeRelay{
		t:       t,
		methods: map[string]handlerFunc{},
		tools:   map[string]handlerFunc{},
	}
	f.server = httptest.NewServer(f)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeRelay) URL() string { return f.server.URL }

func (f *fakeRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string          `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{ID: req.ID, Method: req.Method, Params: req.Params, Header: r.Header.Clone()})
	f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"message":"upstream unavailable"}`))
		return
	}
	if f.rawReply != "" {
		_, _ = w.Write([]byte(f.rawReply))
		return
	}

	h, ok := f.methods[req.Method]
	if !ok && req.Method == "tools/call" {
		h = f.dispatchTool
		ok = true
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = map[string]any{"code": -32601, "message": "Method not found"}
	} else if result, rpcErr := h(req.Params); rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}

	body, err := json.Marshal(resp)
	require.NoError(f.t, err)
	if f.sse {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "%sevent: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":\"stale\",\"result\":null}\n\nevent: message\ndata: %s\n\n", f.ssePreamble, body)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (f *fakeRelay) dispatchTool(params json.RawMessage) (any, *RPCError) {
	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	require.NoError(f.t, json.Unmarshal(params, &p))
	h, ok := f.tools[p.Name]
	if !ok {
		return nil, &RPCError{Code: -32602, Message: "unknown tool " + p.Name}
	}
	return h(p.Arguments)
}

func (f *fakeRelay) callsTo(method string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// toolCalls returns the arguments of every tools/call for name.
func (f *fakeRelay) toolCalls(name string) []map[string]any {
	var out []map[string]any
	for _, c := range f.callsTo("tools/call") {
		var p struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		require.NoError(f.t, json.Unmarshal(c.Params, &p))
		if p.Name == name {
			out = append(out, p.Arguments)
		}
	}
	return out
}

func staticResult(v any) handlerFunc {
	return func(json.RawMessage) (any, *RPCError) { return v, nil }
}

func rawResult(s string) handlerFunc {
	return func(json.RawMessage) (any, *RPCError) { return json.RawMessage(s), nil }
}

func event(id, title string, startOffset, endOffset time.Duration) map[string]any {
	return map[string]any{
		"id":      id,
		"summary": title,
		"start":   map[string]string{"dateTime": testNow.Add(startOffset).Format(time.RFC3339)},
		"end":     map[string]string{"dateTime": testNow.Add(endOffset).Format(time.RFC3339)},
	}
}

func textContent(v any) map[string]any {
	b, _ := json.Marshal(v)
	return map[string]any{"content": []map[string]any{{"type": "text", "text": string(b)}}}
}
