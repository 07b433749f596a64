package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/meetingbrief/internal/auth"
	"github.com/teemow/meetingbrief/internal/calendar"
	"github.com/teemow/meetingbrief/internal/config"
	"github.com/teemow/meetingbrief/internal/instrumentation"
	"github.com/teemow/meetingbrief/internal/logging"
	"github.com/teemow/meetingbrief/internal/meeting"
	"github.com/teemow/meetingbrief/internal/relay"
	"github.com/teemow/meetingbrief/internal/standin"
	"github.com/teemow/meetingbrief/internal/summarize"
)

// Options configures an App.
type Options struct {
	Config  config.Config
	Version string

	// SessionKey seals the session cookie. Empty leaves cookies unsealed.
	SessionKey []byte

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger

	// HTTPClient is used for outbound calls to the relay, Google and the
	// completion API.
	HTTPClient *http.Client

	// Now overrides the clock.
	Now func() time.Time

	// GoogleEndpoint, UserInfoURL and CalendarEndpoint override Google's
	// URLs.
	GoogleEndpoint   oauth2.Endpoint
	UserInfoURL      string
	CalendarEndpoint string
}

// App is the meetingbrief web application.
type App struct {
	cfg      config.Config
	sessions *auth.Sessions
	auth     *auth.Handler
	relay    *relay.Client
	standin  *standin.Handler
	meetings *MeetingService
	health   *HealthChecker
	pages    *pages
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	now      func() time.Time
}

// NewApp wires the application components from opts.
func NewApp(opts Options) (*App, error) {
	cfg := opts.Config
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if cfg.GoogleEnabled() {
		if err := validateHTTPSRequirement(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("google login: %w", err)
		}
	}

	sessions, err := auth.NewSessions(opts.SessionKey, strings.HasPrefix(cfg.BaseURL, "https://"))
	if err != nil {
		return nil, err
	}

	authHandler, err := auth.NewHandler(auth.Config{
		Sessions:     sessions,
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.RedirectURL(),
		Endpoint:     opts.GoogleEndpoint,
		UserInfoURL:  opts.UserInfoURL,
		HTTPClient:   opts.HTTPClient,
		Logger:       opts.Logger,
		Metrics:      opts.Metrics,
		Audit:        opts.Audit,
	})
	if err != nil {
		return nil, err
	}

	relayClient := relay.New(relay.Config{
		URL:           cfg.Relay.URL,
		APIKey:        cfg.Relay.APIKey,
		StandinURL:    standinURL(cfg),
		HTTPClient:    opts.HTTPClient,
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
		ClientVersion: opts.Version,
	})

	var ics calendar.Source
	if cfg.ICS.URL != "" {
		ics = calendar.NewICSSource(calendar.ICSConfig{
			URL:        cfg.ICS.URL,
			HTTPClient: opts.HTTPClient,
			Logger:     opts.Logger,
			Metrics:    opts.Metrics,
		})
	}

	var summarizer *summarize.Summarizer
	if cfg.Summaries {
		summarizer = summarize.New(summarize.Config{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.OpenAI.Model,
			HTTPClient: opts.HTTPClient,
			Logger:     opts.Logger,
			Metrics:    opts.Metrics,
		})
	}

	tmpl, err := parsePages()
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		sessions: sessions,
		auth:     authHandler,
		relay:    relayClient,
		standin: standin.New(standin.Config{
			Logger:  opts.Logger,
			Version: opts.Version,
			Now:     opts.Now,
		}),
		meetings: NewMeetingService(MeetingServiceConfig{
			Source:           cfg.Source,
			Relay:            relayClient,
			ICS:              ics,
			Auth:             authHandler,
			Summarizer:       summarizer,
			CalendarEndpoint: opts.CalendarEndpoint,
			Logger:           opts.Logger,
			Metrics:          opts.Metrics,
		}),
		health:  NewHealthChecker(relayClient.Remote()),
		pages:   tmpl,
		logger:  logging.WithService(opts.Logger, "server"),
		metrics: opts.Metrics,
		now:     opts.Now,
	}, nil
}

// Handler returns the root HTTP handler with all routes and middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", a.handleIndex)
	mux.HandleFunc("GET /login", a.handleLogin)
	mux.HandleFunc("GET /api/meetings", a.handleMeetings)
	mux.Handle("/api/mcp", a.standin)

	mux.HandleFunc("GET /api/relay/status", a.requireUser(a.handleRelayStatus))
	mux.HandleFunc("POST /api/relay/connect", a.requireUser(a.handleRelayConnect))
	mux.HandleFunc("GET /api/relay/tools", a.requireUser(a.handleRelayTools))

	a.auth.Register(mux)
	a.health.RegisterHealthEndpoints(mux)

	var h http.Handler = a.auth.Middleware(mux)
	h = instrumentationMiddleware(a.logger, a.metrics, h)
	return securityHeaders(strings.HasPrefix(a.cfg.BaseURL, "https://"), h)
}

// Health exposes the health checker so the caller can flip readiness
// during shutdown.
func (a *App) Health() *HealthChecker {
	return a.health
}

// Relay returns the relay client.
func (a *App) Relay() *relay.Client {
	return a.relay
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	data := indexData{
		Title:       AppTitle,
		Email:       user.Email,
		RelayRemote: a.relay.Remote(),
		MaxUpcoming: meeting.MaxUpcoming,
		MaxPast:     meeting.MaxPast,
	}
	status := http.StatusOK

	p, err := a.loadMeetings(w, r, user)
	if err != nil {
		data.Error = errorMessage(err)
		status = http.StatusInternalServerError
	}
	data.Payload = p

	if err := render(w, a.pages.index, status, data); err != nil {
		a.logger.Error("failed to render index page", logging.Err(err))
	}
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	data := loginData{
		Title:         AppTitle,
		Error:         loginErrors[r.URL.Query().Get("error")],
		GoogleEnabled: a.auth.GoogleEnabled(),
	}
	if err := render(w, a.pages.login, http.StatusOK, data); err != nil {
		a.logger.Error("failed to render login page", logging.Err(err))
	}
}

func (a *App) handleMeetings(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	p, err := a.loadMeetings(w, r, user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, errorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// loadMeetings runs the meeting service and stores a refreshed Google token
// back into the session cookie.
func (a *App) loadMeetings(w http.ResponseWriter, r *http.Request, user *auth.User) (meeting.Payload, error) {
	token := user.Token
	p, err := a.meetings.Load(r.Context(), user, a.now())
	if user.Token != token {
		if serr := a.sessions.Save(w, user); serr != nil {
			a.logger.Warn("failed to store refreshed token", logging.Err(serr))
		}
	}
	return p, err
}

func (a *App) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

func (a *App) handleRelayStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{
		"remote":    a.relay.Remote(),
		"connected": a.relay.Remote() && a.relay.CheckConnection(r.Context()),
	})
}

func (a *App) handleRelayConnect(w http.ResponseWriter, r *http.Request) {
	if !a.relay.Remote() {
		writeError(w, http.StatusNotFound, "No relay configured")
		return
	}
	if a.relay.CheckConnection(r.Context()) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	connectURL, ok := a.relay.InitiateConnection(r.Context())
	if !ok {
		writeError(w, http.StatusBadGateway, "Could not get connect URL")
		return
	}
	http.Redirect(w, r, connectURL, http.StatusSeeOther)
}

func (a *App) handleRelayTools(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(a.relay.RawToolsList(r.Context())))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}

// standinURL is where the relay client reaches the stand-in served by this
// process.
func standinURL(cfg config.Config) string {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		host, port, err := net.SplitHostPort(cfg.HTTPAddr)
		if err != nil {
			host, port = "", "3000"
		}
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "127.0.0.1"
		}
		base = "http://" + net.JoinHostPort(host, port)
	}
	return base + "/api/mcp"
}

// validateHTTPSRequirement ensures the OAuth redirect is served over HTTPS.
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1).
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}

	return nil
}
