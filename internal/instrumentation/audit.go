package instrumentation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// LoginEvent captures one sign-in or sign-out for the audit trail.
//
// UserEmail is PII. LogAttrs hashes it; only an AuditLogger configured with
// IncludePII writes it verbatim.
type LoginEvent struct {
	// Action is "login" or "logout".
	Action string

	// Method is LoginDemo or LoginGoogle.
	Method string

	UserEmail string
	Success   bool
	Error     string
	TraceID   string
}

// NewLoginEvent starts a login event for the given method.
func NewLoginEvent(ctx context.Context, method string) *LoginEvent {
	return &LoginEvent{
		Action:  "login",
		Method:  method,
		TraceID: GetTraceID(ctx),
	}
}

// NewLogoutEvent starts a logout event.
func NewLogoutEvent(ctx context.Context, email string) *LoginEvent {
	return &LoginEvent{
		Action:    "logout",
		UserEmail: email,
		Success:   true,
		TraceID:   GetTraceID(ctx),
	}
}

// WithUser sets the user identity.
func (e *LoginEvent) WithUser(email string) *LoginEvent {
	e.UserEmail = email
	return e
}

// Complete marks the event with its outcome.
func (e *LoginEvent) Complete(err error) *LoginEvent {
	e.Success = err == nil
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Status returns StatusSuccess or StatusError.
func (e *LoginEvent) Status() string {
	if e.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns attributes with the email replaced by a short hash and
// its domain.
func (e *LoginEvent) LogAttrs() []slog.Attr {
	attrs := e.baseAttrs()
	if e.UserEmail != "" {
		sum := sha256.Sum256([]byte(e.UserEmail))
		attrs = append(attrs,
			slog.String("user_hash", "user:"+hex.EncodeToString(sum[:8])),
			slog.String("user_domain", ExtractUserDomain(e.UserEmail)),
		)
	}
	return attrs
}

// LogAuditAttrs returns attributes including the full email address.
func (e *LoginEvent) LogAuditAttrs() []slog.Attr {
	attrs := e.baseAttrs()
	if e.UserEmail != "" {
		attrs = append(attrs, slog.String("user", e.UserEmail))
	}
	return attrs
}

func (e *LoginEvent) baseAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", e.Action),
		slog.Bool("success", e.Success),
	}
	if e.Method != "" {
		attrs = append(attrs, slog.String("method", e.Method))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	return attrs
}

// AuditLogger writes login events to a dedicated slog logger.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an AuditLogger. A nil logger uses slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger.With("component", "audit"),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// Log writes the event. Failed logins are logged at warn level.
func (al *AuditLogger) Log(e *LoginEvent) {
	if al == nil || !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = e.LogAuditAttrs()
	} else {
		attrs = e.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if e.Success {
		al.logger.Info("auth_"+e.Action, args...)
	} else {
		al.logger.Warn("auth_"+e.Action+"_failed", args...)
	}
}
