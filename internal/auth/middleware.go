package auth

import (
	"context"
	"net/http"

	"github.com/teemow/meetingbrief/internal/logging"
)

type contextKey string

const userContextKey contextKey = "auth_user"

// Middleware resolves the session cookie into the request context. Requests
// without a valid session pass through unauthenticated; invalid cookies are
// cleared.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.sessions.Load(r)
		if err != nil {
			if _, cerr := r.Cookie(SessionCookie); cerr == nil {
				h.logger.Debug("discarding invalid session", logging.Err(err))
				h.sessions.Clear(w)
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFromContext returns the signed-in user, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userContextKey).(*User)
	return u, ok && u != nil
}
