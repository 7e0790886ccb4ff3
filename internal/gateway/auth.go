package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flemzord/codeproxy/internal/security"
)

// authMiddleware returns a chi-compatible middleware that validates Bearer token
// or Basic auth credentials using constant-time comparison.
// Failures are recorded on the audit logger, which may be nil.
func authMiddleware(cfg AuthConfig, auditLogger *security.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				emitAuthFailure(auditLogger, r, "missing authorization header")
				unauthorized(w, cfg)
				return
			}

			// Try Bearer token first.
			if cfg.BearerToken != "" {
				if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
					if constantTimeEqual(after, cfg.BearerToken) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			// Try Basic auth.
			if cfg.BasicUser != "" && cfg.BasicPass != "" {
				user, pass, ok := r.BasicAuth()
				if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
					next.ServeHTTP(w, r)
					return
				}
			}

			emitAuthFailure(auditLogger, r, "invalid credentials")
			unauthorized(w, cfg)
		})
	}
}

func unauthorized(w http.ResponseWriter, cfg AuthConfig) {
	if cfg.BasicUser != "" {
		w.Header().Set("WWW-Authenticate", `Basic realm="codeproxy"`)
	}
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// emitAuthFailure logs an auth failure to the audit logger.
func emitAuthFailure(logger *security.AuditLogger, r *http.Request, detail string) {
	logger.Log(security.AuditEvent{
		Type:     security.EventAuthFailure,
		Endpoint: r.URL.Path,
		Remote:   r.RemoteAddr,
		Detail:   detail,
		Metadata: map[string]string{
			"method": r.Method,
		},
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
