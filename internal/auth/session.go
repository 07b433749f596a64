package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// ErrUnauthenticated is returned when a request carries no valid session.
var ErrUnauthenticated = errors.New("unauthenticated")

const (
	// SessionCookie holds the sealed identity.
	SessionCookie = "meetingbrief_session"

	// flowCookie holds the sealed OAuth state and PKCE verifier between
	// /auth/google/start and the callback.
	flowCookie = "meetingbrief_oauth"

	// DefaultSessionTTL bounds how long a session cookie is accepted.
	DefaultSessionTTL = 7 * 24 * time.Hour

	flowTTL = 10 * time.Minute
)

// Login methods recorded on a User.
const (
	MethodDemo   = "demo"
	MethodGoogle = "google"
)

// User is the signed-in identity. Token is set for Google logins only.
type User struct {
	Email  string        `json:"email"`
	Method string        `json:"method"`
	Token  *oauth2.Token `json:"token,omitempty"`
}

// HasToken reports whether the user carries a Google token.
func (u *User) HasToken() bool {
	return u != nil && u.Token != nil && (u.Token.AccessToken != "" || u.Token.RefreshToken != "")
}

type sessionData struct {
	User
	IssuedAt int64 `json:"iat"`
}

type flowData struct {
	State    string `json:"state"`
	Verifier string `json:"verifier"`
	IssuedAt int64  `json:"iat"`
}

// Sessions reads and writes the session cookie.
type Sessions struct {
	cipher *Cipher
	secure bool
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates Sessions sealing cookies with key. secure marks the
// cookies Secure and should be set when the app is served over HTTPS.
func NewSessions(key []byte, secure bool) (*Sessions, error) {
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &Sessions{
		cipher: c,
		secure: secure,
		ttl:    DefaultSessionTTL,
		now:    time.Now,
	}, nil
}

// Save writes u into the session cookie.
func (s *Sessions) Save(w http.ResponseWriter, u *User) error {
	if u == nil || u.Email == "" {
		return errors.New("session user has no email")
	}
	value, err := s.seal(sessionData{User: *u, IssuedAt: s.now().Unix()})
	if err != nil {
		return err
	}
	http.SetCookie(w, s.cookie(SessionCookie, value, s.ttl))
	return nil
}

// Load returns the user in the session cookie. It returns
// ErrUnauthenticated when the cookie is missing, and a wrapped
// ErrUnauthenticated when it is invalid or expired.
func (s *Sessions) Load(r *http.Request) (*User, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return nil, ErrUnauthenticated
	}

	var data sessionData
	if err := s.open(c.Value, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if data.Email == "" {
		return nil, fmt.Errorf("%w: session has no email", ErrUnauthenticated)
	}
	if s.now().Sub(time.Unix(data.IssuedAt, 0)) > s.ttl {
		return nil, fmt.Errorf("%w: session expired", ErrUnauthenticated)
	}

	u := data.User
	return &u, nil
}

// Clear removes the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(SessionCookie, "", -1))
}

func (s *Sessions) saveFlow(w http.ResponseWriter, state, verifier string) error {
	value, err := s.seal(flowData{State: state, Verifier: verifier, IssuedAt: s.now().Unix()})
	if err != nil {
		return err
	}
	http.SetCookie(w, s.cookie(flowCookie, value, flowTTL))
	return nil
}

func (s *Sessions) loadFlow(r *http.Request) (flowData, error) {
	c, err := r.Cookie(flowCookie)
	if err != nil || c.Value == "" {
		return flowData{}, errors.New("missing OAuth flow cookie")
	}
	var data flowData
	if err := s.open(c.Value, &data); err != nil {
		return flowData{}, err
	}
	if s.now().Sub(time.Unix(data.IssuedAt, 0)) > flowTTL {
		return flowData{}, errors.New("OAuth flow expired")
	}
	return data, nil
}

func (s *Sessions) clearFlow(w http.ResponseWriter) {
	http.SetCookie(w, s.cookie(flowCookie, "", -1))
}

func (s *Sessions) seal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	return s.cipher.Seal(data)
}

func (s *Sessions) open(value string, v any) error {
	data, err := s.cipher.Open(value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode session: %w", err)
	}
	return nil
}

// cookie builds an HttpOnly, SameSite=Lax cookie. A negative maxAge deletes it.
func (s *Sessions) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(maxAge.Seconds())
	}
	return c
}
