package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"vergeside/internal/auth"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const (
	ContextUserIDKey  contextKey = "userID"
	ContextAuthMethod contextKey = "authMethod"
)

// AdminAuth guards cache maintenance endpoints. It accepts an RS256
// bearer token carrying the admin role, or basic credentials checked
// against a bcrypt hash. Either method is disabled when not configured.
type AdminAuth struct {
	verifier     *auth.Verifier
	username     string
	passwordHash []byte
	logr         *zap.Logger
}

func NewAdminAuth(verifier *auth.Verifier, username, passwordHash string, logr *zap.Logger) *AdminAuth {
	return &AdminAuth{
		verifier:     verifier,
		username:     username,
		passwordHash: []byte(passwordHash),
		logr:         logr,
	}
}

// Enabled reports whether any authentication method is configured.
func (m *AdminAuth) Enabled() bool {
	return m.verifier != nil || len(m.passwordHash) > 0
}

// RequireAdmin rejects requests without valid admin credentials and
// attaches the caller's identity to the request context.
func (m *AdminAuth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="vergeside admin"`)
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		var (
			userID string
			method string
		)
		switch {
		case strings.HasPrefix(authHeader, "Bearer "):
			if m.verifier == nil {
				writeError(w, http.StatusUnauthorized, "bearer authentication is not enabled")
				return
			}
			claims, err := m.verifier.VerifyAdmin(strings.TrimPrefix(authHeader, "Bearer "))
			if errors.Is(err, auth.ErrForbidden) {
				m.logr.Warn("admin role missing", zap.Error(err))
				writeError(w, http.StatusForbidden, "admin role required")
				return
			}
			if err != nil {
				m.logr.Warn("token parse error", zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			userID, method = claims.Subject, "bearer"

		default:
			user, pass, ok := r.BasicAuth()
			if !ok || !m.checkPassword(user, pass) {
				m.logr.Warn("admin basic auth failed", zap.String("user", user))
				w.Header().Set("WWW-Authenticate", `Basic realm="vergeside admin"`)
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			userID, method = user, "basic"
		}

		ctx := context.WithValue(r.Context(), ContextUserIDKey, userID)
		ctx = context.WithValue(ctx, ContextAuthMethod, method)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AdminAuth) checkPassword(user, pass string) bool {
	if len(m.passwordHash) == 0 {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(m.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(pass)) == nil
	return userOK && passOK
}

// UserID returns the authenticated admin stored by RequireAdmin.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ContextUserIDKey).(string)
	return id
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
