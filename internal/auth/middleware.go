package auth

import (
	"net/http"
	"strings"

	"github.com/noah-isme/backend-invoice/internal/common"
)

// TokenHeader is the alternative header accepted alongside Authorization.
const TokenHeader = "x-auth-token"

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Service *Service
}

// RequireAuth rejects requests without a valid token. Error codes are
// NO_TOKEN, INVALID_TOKEN, TOKEN_EXPIRED, or AUTH_FAILED for anything else.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Service == nil {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
			return
		}
		id, err := m.Service.Authenticate(ExtractToken(r))
		if err != nil {
			if appErr, ok := common.AsAppError(err); ok {
				common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, nil)
				return
			}
			common.JSONError(w, http.StatusUnauthorized, "AUTH_FAILED", "authentication failed", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithIdentity(r.Context(), id)))
	})
}

// RequireRole must run after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := common.IdentityFrom(r.Context())
			if !ok {
				common.JSONError(w, http.StatusUnauthorized, "AUTH_FAILED", "authentication failed", nil)
				return
			}
			if id.Role != role {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractToken reads a bearer token, falling back to the x-auth-token header.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.Header.Get(TokenHeader))
}
