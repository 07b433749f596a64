package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/meetingbrief/internal/auth"
	"github.com/teemow/meetingbrief/internal/config"
	"github.com/teemow/meetingbrief/internal/meeting"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.OpenAI.APIKey = ""
	return cfg
}

// startApp serves an App on a fresh listener. BaseURL defaults to the
// listener address so the relay client reaches the stand-in in-process.
func startApp(t *testing.T, cfg config.Config, opts Options) *httptest.Server {
	t.Helper()
	ts := httptest.NewUnstartedServer(nil)
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + ts.Listener.Addr().String()
	}
	opts.Config = cfg
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	opts.Logger = discardLogger()

	app, err := NewApp(opts)
	require.NoError(t, err)
	ts.Config.Handler = app.Handler()
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func demoLogin(t *testing.T, c *http.Client, base string) {
	t.Helper()
	resp, err := c.PostForm(base+"/auth/demo", url.Values{"email": {"alex@example.com"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func getJSON(t *testing.T, c *http.Client, target string, v any) *http.Response {
	t.Helper()
	resp, err := c.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp
}

func getBody(t *testing.T, c *http.Client, target string) (*http.Response, string) {
	t.Helper()
	resp, err := c.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func titles(ms []meeting.Meeting) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Title)
	}
	return out
}

func TestMeetingsAPI_Unauthenticated(t *testing.T) {
	ts := startApp(t, testConfig(), Options{})

	var body map[string]string
	resp := getJSON(t, newBrowser(t), ts.URL+"/api/meetings", &body)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, map[string]string{"error": "Unauthorized"}, body)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Empty(t, resp.Header.Get("Strict-Transport-Security"))
}

func TestMeetingsAPI_StandinAfterDemoLogin(t *testing.T) {
	ts := startApp(t, testConfig(), Options{})
	c := newBrowser(t)
	demoLogin(t, c, ts.URL)

	var p meeting.Payload
	resp := getJSON(t, c, ts.URL+"/api/meetings", &p)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	assert.Equal(t, []string{"Standup", "1:1", "Design Review", "Sprint Planning", "Customer Call"}, titles(p.Upcoming))
	assert.Equal(t, []string{"Retro", "Hiring Sync", "Ops Review", "Roadmap", "Partner Check-in"}, titles(p.Past))

	for _, m := range p.Upcoming {
		assert.Empty(t, m.Summary, m.Title)
	}
	assert.Equal(t, "Retro: 30-minute meeting with 1 attendee.", p.Past[0].Summary)
}

func TestMeetingsAPI_SummariesDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Summaries = false
	ts := startApp(t, cfg, Options{})
	c := newBrowser(t)
	demoLogin(t, c, ts.URL)

	var p meeting.Payload
	getJSON(t, c, ts.URL+"/api/meetings", &p)
	require.Len(t, p.Past, meeting.MaxPast)
	for _, m := range p.Past {
		assert.Empty(t, m.Summary)
	}
}

func TestMeetingsAPI_SourceFailure(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(feed.Close)

	cfg := testConfig()
	cfg.Source = config.SourceICS
	cfg.ICS.URL = feed.URL + "/cal.ics"
	ts := startApp(t, cfg, Options{})
	c := newBrowser(t)
	demoLogin(t, c, ts.URL)

	var body map[string]string
	resp := getJSON(t, c, ts.URL+"/api/meetings", &body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestMeetingsAPI_ICSFeed(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = io.WriteString(w, strings.Join([]string{
			"BEGIN:VCALENDAR",
			"VERSION:2.0",
			"PRODID:-//test//EN",
			"BEGIN:VEVENT",
			"UID:board",
			"DTSTAMP:20250301T000000Z",
			"DTSTART:20250311T090000Z",
			"DTEND:20250311T100000Z",
			"SUMMARY:Board Meeting",
			"END:VEVENT",
			"END:VCALENDAR",
		}, "\r\n"))
	}))
	t.Cleanup(feed.Close)

	cfg := testConfig()
	cfg.ICS.URL = feed.URL
	ts := startApp(t, cfg, Options{})
	c := newBrowser(t)
	demoLogin(t, c, ts.URL)

	var p meeting.Payload
	resp := getJSON(t, c, ts.URL+"/api/meetings", &p)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Board Meeting"}, titles(p.Upcoming))
	assert.Empty(t, p.Past)
}

func TestIndexPage(t *testing.T) {
	ts := startApp(t, testConfig(), Options{})
	c := newBrowser(t)

	resp, _ := getBody(t, c, ts.URL+"/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	demoLogin(t, c, ts.URL)
	resp, body := getBody(t, c, ts.URL+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "default-src 'none'")

	assert.Contains(t, body, "alex@example.com")
	assert.Contains(t, body, "Upcoming (next 5)")
	assert.Contains(t, body, "Past (latest 5)")
	assert.Contains(t, body, "Sprint Planning")
	assert.Contains(t, body, "AI SUMMARY")
	assert.Contains(t, body, "Alex Doe")
	assert.NotContains(t, body, "Connect Google Calendar")
}

func TestIndexPage_NotFound(t *testing.T) {
	ts := startApp(t, testConfig(), Options{})
	resp, _ := getBody(t, newBrowser(t), ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLoginPage(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		google   bool
		contains []string
		excludes []string
	}{
		{
			name:     "demo only",
			contains: []string{`action="/auth/demo"`, `name="email"`},
			excludes: []string{"/auth/google/start"},
		},
		{
			name:     "google enabled",
			google:   true,
			contains: []string{`action="/auth/demo"`, `href="/auth/google/start"`},
		},
		{
			name:     "known error",
			query:    "?error=invalid_email",
			contains: []string{"Enter a valid email address."},
		},
		{
			name:     "unknown error is not echoed",
			query:    "?error=%3Cscript%3E",
			excludes: []string{"<script>", `class="error"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.google {
				cfg.Google.ClientID = "client-id"
				cfg.Google.ClientSecret = "client-secret"
			}
			ts := startApp(t, cfg, Options{})

			resp, body := getBody(t, newBrowser(t), ts.URL+"/login"+tt.query)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			for _, s := range tt.contains {
				assert.Contains(t, body, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, body, s)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	ts := startApp(t, testConfig(), Options{})
	c := newBrowser(t)
	demoLogin(t, c, ts.URL)

	resp, err := c.PostForm(ts.URL+"/auth/logout", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	var body map[string]string
	resp = getJSON(t, c, ts.URL+"/api/meetings", &body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthRoutes(t *testing.T) {
	ts := startApp(t, testConfig(), Options{})

	for _, path := range []string{"/healthz", "/readyz", "/healthz/detailed"} {
		var body map[string]any
		resp := getJSON(t, newBrowser(t), ts.URL+path, &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "ok", body["status"], path)
	}
}

// fakeGoogle serves the OAuth token, userinfo and Calendar API endpoints.
type fakeGoogle struct {
	expiresIn int

	mu           sync.Mutex
	calendarAuth []string
}

func (f *fakeGoogle) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/token":
		_ = r.ParseForm()
		switch r.PostForm.Get("grant_type") {
		case "authorization_code":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "at-1",
				"token_type":    "Bearer",
				"refresh_token": "rt-1",
				"expires_in":    f.expiresIn,
			})
		case "refresh_token":
			_, _ = io.WriteString(w, `{"access_token":"at-2","token_type":"Bearer","expires_in":3600}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	case "/userinfo":
		_, _ = io.WriteString(w, `{"email":"sam@example.com","email_verified":true}`)
	case "/calendars/primary/events":
		f.mu.Lock()
		f.calendarAuth = append(f.calendarAuth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"id":      "g1",
					"summary": "Board Sync",
					"start":   map[string]string{"dateTime": "2025-03-11T09:00:00Z"},
					"end":     map[string]string{"dateTime": "2025-03-11T10:00:00Z"},
				},
				{
					"id":      "g2",
					"summary": "Offsite",
					"start":   map[string]string{"date": "2025-03-08"},
					"end":     map[string]string{"date": "2025-03-09"},
				},
			},
		})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGoogle) authHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calendarAuth...)
}

func startGoogleApp(t *testing.T, expiresIn int) (*httptest.Server, *fakeGoogle) {
	t.Helper()
	fake := &fakeGoogle{expiresIn: expiresIn}
	google := httptest.NewServer(fake)
	t.Cleanup(google.Close)

	cfg := testConfig()
	cfg.Google.ClientID = "client-id"
	cfg.Google.ClientSecret = "client-secret"

	ts := startApp(t, cfg, Options{
		SessionKey:       make([]byte, auth.KeySize),
		GoogleEndpoint:   oauth2.Endpoint{AuthURL: google.URL + "/auth", TokenURL: google.URL + "/token"},
		UserInfoURL:      google.URL + "/userinfo",
		CalendarEndpoint: google.URL + "/",
	})
	return ts, fake
}

func googleLogin(t *testing.T, c *http.Client, base string) {
	t.Helper()
	resp, err := c.Get(base + "/auth/google/start")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)

	consent, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := consent.Query().Get("state")
	require.NotEmpty(t, state)
	assert.Equal(t, "S256", consent.Query().Get("code_challenge_method"))

	resp, err = c.Get(base + "/auth/google/callback?" + url.Values{"code": {"good-code"}, "state": {state}}.Encode())
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))
}

func TestMeetingsAPI_GoogleUser(t *testing.T) {
	ts, fake := startGoogleApp(t, 3600)
	c := newBrowser(t)
	googleLogin(t, c, ts.URL)

	var p meeting.Payload
	resp := getJSON(t, c, ts.URL+"/api/meetings", &p)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"Board Sync"}, titles(p.Upcoming))
	require.Len(t, p.Past, 1)
	assert.Equal(t, "2025-03-08T00:00:00Z", p.Past[0].Start)
	assert.Equal(t, "Offsite: 1440-minute meeting with 0 attendees.", p.Past[0].Summary)

	assert.Equal(t, []string{"Bearer at-1"}, fake.authHeaders())
}

func TestMeetingsAPI_GoogleTokenRefresh(t *testing.T) {
	// A token that expires within oauth2's expiry delta is refreshed on first use.
	ts, fake := startGoogleApp(t, 1)
	c := newBrowser(t)
	googleLogin(t, c, ts.URL)

	resp, err := c.Get(ts.URL + "/api/meetings")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"Bearer at-2"}, fake.authHeaders())

	var refreshed bool
	for _, ck := range resp.Cookies() {
		if ck.Name == auth.SessionCookie && ck.MaxAge >= 0 {
			refreshed = true
		}
	}
	assert.True(t, refreshed, "refreshed token should be written back to the session cookie")
}

func TestNewApp_GoogleRequiresHTTPS(t *testing.T) {
	cfg := testConfig()
	cfg.BaseURL = "http://meetings.example.com"
	cfg.Google.ClientID = "client-id"
	cfg.Google.ClientSecret = "client-secret"

	_, err := NewApp(Options{Config: cfg, Logger: discardLogger()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTPS")
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	h := securityHeaders(true, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "max-age=31536000; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))
}

// fakeConnector is a remote relay exposing only the connector tools.
func fakeConnector(t *testing.T, connected bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params struct {
				Name string `json:"name"`
			} `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		var result any
		switch {
		case req.Method == "tools/list":
			result = map[string]any{"tools": []map[string]string{{"name": "COMPOSIO_CHECK_ACTIVE_CONNECTION"}}}
		case req.Params.Name == "COMPOSIO_CHECK_ACTIVE_CONNECTION":
			text, _ := json.Marshal(map[string]bool{"connected": connected})
			result = map[string]any{"content": []map[string]string{{"type": "text", "text": string(text)}}}
		case req.Params.Name == "COMPOSIO_INITIATE_CONNECTION":
			result = map[string]any{"data": map[string]string{"url": "https://connect.example.com/abc"}}
		default:
			result = map[string]any{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRelayRoutes(t *testing.T) {
	t.Run("require a session", func(t *testing.T) {
		ts := startApp(t, testConfig(), Options{})
		for _, path := range []string{"/api/relay/status", "/api/relay/tools"} {
			resp, _ := getBody(t, newBrowser(t), ts.URL+path)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		}
	})

	t.Run("stand-in has no connection", func(t *testing.T) {
		ts := startApp(t, testConfig(), Options{})
		c := newBrowser(t)
		demoLogin(t, c, ts.URL)

		var status map[string]bool
		getJSON(t, c, ts.URL+"/api/relay/status", &status)
		assert.Equal(t, map[string]bool{"remote": false, "connected": false}, status)

		resp, err := c.PostForm(ts.URL+"/api/relay/connect", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("connect redirects to the hosted flow", func(t *testing.T) {
		relaySrv := fakeConnector(t, false)
		cfg := testConfig()
		cfg.Relay.URL = relaySrv.URL
		ts := startApp(t, cfg, Options{})
		c := newBrowser(t)
		demoLogin(t, c, ts.URL)

		var status map[string]bool
		getJSON(t, c, ts.URL+"/api/relay/status", &status)
		assert.Equal(t, map[string]bool{"remote": true, "connected": false}, status)

		resp, err := c.PostForm(ts.URL+"/api/relay/connect", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "https://connect.example.com/abc", resp.Header.Get("Location"))

		resp, body := getBody(t, c, ts.URL+"/api/relay/tools")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "COMPOSIO_CHECK_ACTIVE_CONNECTION")

		_, page := getBody(t, c, ts.URL+"/")
		assert.Contains(t, page, "Connect Google Calendar")
	})

	t.Run("already connected goes home", func(t *testing.T) {
		relaySrv := fakeConnector(t, true)
		cfg := testConfig()
		cfg.Relay.URL = relaySrv.URL
		ts := startApp(t, cfg, Options{})
		c := newBrowser(t)
		demoLogin(t, c, ts.URL)

		resp, err := c.PostForm(ts.URL+"/api/relay/connect", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
		assert.Equal(t, "/", resp.Header.Get("Location"))
	})
}

func TestStandinURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"base url", config.Config{BaseURL: "https://meet.example.com/", HTTPAddr: ":3000"}, "https://meet.example.com/api/mcp"},
		{"port only", config.Config{HTTPAddr: ":8080"}, "http://127.0.0.1:8080/api/mcp"},
		{"explicit host", config.Config{HTTPAddr: "localhost:3000"}, "http://localhost:3000/api/mcp"},
		{"wildcard host", config.Config{HTTPAddr: "0.0.0.0:3000"}, "http://127.0.0.1:3000/api/mcp"},
		{"bad addr", config.Config{HTTPAddr: "nonsense"}, "http://127.0.0.1:3000/api/mcp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, standinURL(tt.cfg))
		})
	}
}

func TestValidateHTTPSRequirement(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "valid HTTPS URL", baseURL: "https://meet.example.com", wantErr: false},
		{name: "valid HTTP localhost", baseURL: "http://localhost:3000", wantErr: false},
		{name: "valid HTTP 127.0.0.1", baseURL: "http://127.0.0.1:3000", wantErr: false},
		{name: "valid HTTP ::1 (IPv6 loopback)", baseURL: "http://[::1]:3000", wantErr: false},
		{name: "invalid HTTP non-localhost", baseURL: "http://meet.example.com", wantErr: true},
		{name: "invalid HTTP with localhost substring", baseURL: "http://localhost.example.com", wantErr: true},
		{name: "empty URL", baseURL: "", wantErr: true},
		{name: "invalid scheme", baseURL: "ftp://example.com", wantErr: true},
		{name: "HTTPS with port", baseURL: "https://meet.example.com:8443", wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHTTPSRequirement(tt.baseURL)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHTTPSRequirement() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
