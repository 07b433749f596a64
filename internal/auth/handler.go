package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/meetingbrief/internal/instrumentation"
	"github.com/teemow/meetingbrief/internal/logging"
)

// Scopes requested by the Google login.
var Scopes = []string{
	"openid",
	"email",
	"profile",
	"https://www.googleapis.com/auth/calendar.readonly",
}

// DefaultUserInfoURL is Google's OpenID Connect userinfo endpoint.
const DefaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Config configures a Handler.
type Config struct {
	Sessions *Sessions

	// Google OAuth client. Google login is disabled when ClientID is empty.
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint defaults to google.Endpoint.
	Endpoint oauth2.Endpoint

	// UserInfoURL defaults to DefaultUserInfoURL.
	UserInfoURL string

	// HTTPClient is used for token exchange, refresh and userinfo.
	HTTPClient *http.Client

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
}

// Handler serves the login and logout endpoints.
type Handler struct {
	sessions    *Sessions
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	audit       *instrumentation.AuditLogger
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("sessions are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = DefaultUserInfoURL
	}

	h := &Handler{
		sessions:    cfg.Sessions,
		userInfoURL: cfg.UserInfoURL,
		httpClient:  cfg.HTTPClient,
		logger:      logging.WithService(cfg.Logger, "auth"),
		metrics:     cfg.Metrics,
		audit:       cfg.Audit,
	}

	if cfg.ClientID != "" {
		endpoint := cfg.Endpoint
		if endpoint.AuthURL == "" {
			endpoint = google.Endpoint
		}
		h.oauth = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       Scopes,
		}
	}
	return h, nil
}

// GoogleEnabled reports whether the Google login is configured.
func (h *Handler) GoogleEnabled() bool {
	return h.oauth != nil
}

// Register adds the auth routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/demo", h.Demo)
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("GET /auth/google/start", h.GoogleStart)
	mux.HandleFunc("GET /auth/google/callback", h.GoogleCallback)
}

// Demo signs in with the posted email address, no password.
func (h *Handler) Demo(w http.ResponseWriter, r *http.Request) {
	event := instrumentation.NewLoginEvent(r.Context(), instrumentation.LoginDemo)

	email, err := parseEmail(r.PostFormValue("email"))
	if err != nil {
		h.finishLogin(r.Context(), event, err)
		http.Redirect(w, r, "/login?error=invalid_email", http.StatusSeeOther)
		return
	}
	event.WithUser(email)

	if err := h.sessions.Save(w, &User{Email: email, Method: MethodDemo}); err != nil {
		h.finishLogin(r.Context(), event, err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	h.finishLogin(r.Context(), event, nil)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout clears the session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if u, err := h.sessions.Load(r); err == nil {
		h.audit.Log(instrumentation.NewLogoutEvent(r.Context(), u.Email))
	}
	h.sessions.Clear(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// GoogleStart redirects to Google's consent screen. State and the PKCE
// verifier travel in a short-lived sealed cookie.
func (h *Handler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		http.NotFound(w, r)
		return
	}

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	if err := h.sessions.saveFlow(w, state, verifier); err != nil {
		h.logger.Error("failed to store OAuth flow", logging.Err(err))
		http.Error(w, "failed to start login", http.StatusInternalServerError)
		return
	}

	url := h.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)
	http.Redirect(w, r, url, http.StatusFound)
}

// GoogleCallback completes the authorization code flow and stores the
// token in the session.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	event := instrumentation.NewLoginEvent(ctx, instrumentation.LoginGoogle)

	user, err := h.completeGoogleLogin(r)
	h.sessions.clearFlow(w)
	if err == nil {
		event.WithUser(user.Email)
		err = h.sessions.Save(w, user)
	}
	h.finishLogin(ctx, event, err)
	if err != nil {
		http.Redirect(w, r, "/login?error=google_login_failed", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) completeGoogleLogin(r *http.Request) (*User, error) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return nil, fmt.Errorf("authorization denied: %s", e)
	}

	flow, err := h.sessions.loadFlow(r)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(flow.State), []byte(q.Get("state"))) != 1 {
		return nil, errors.New("OAuth state mismatch")
	}
	code := q.Get("code")
	if code == "" {
		return nil, errors.New("missing authorization code")
	}

	ctx := h.clientContext(r.Context())
	token, err := h.oauth.Exchange(ctx, code, oauth2.VerifierOption(flow.Verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	email, err := h.fetchEmail(ctx, token)
	if err != nil {
		return nil, err
	}
	return &User{Email: email, Method: MethodGoogle, Token: token}, nil
}

type userInfo struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// fetchEmail asks the userinfo endpoint who the token belongs to.
func (h *Handler) fetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	resp, err := client.Get(h.userInfoURL)
	if err != nil {
		return "", fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("failed to decode user info: %w", err)
	}
	if info.Email == "" {
		return "", errors.New("userinfo returned no email")
	}
	if !info.EmailVerified {
		return "", errors.New("google account email is not verified")
	}
	return info.Email, nil
}

func (h *Handler) clientContext(ctx context.Context) context.Context {
	if h.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, h.httpClient)
	}
	return ctx
}

func (h *Handler) finishLogin(ctx context.Context, event *instrumentation.LoginEvent, err error) {
	event.Complete(err)
	h.audit.Log(event)
	h.metrics.RecordLogin(ctx, event.Method, event.Status(), event.UserEmail)
	if err != nil {
		h.logger.Warn("login failed", "method", event.Method, logging.Domain(event.UserEmail), logging.Err(err))
		return
	}
	h.logger.Info("user signed in", "method", event.Method, logging.UserHash(event.UserEmail), logging.Domain(event.UserEmail))
}

func parseEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("email is required")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("invalid email address %q", raw)
	}
	return strings.ToLower(addr.Address), nil
}
