package auth

import (
	"net/http"
	"strconv"

	"github.com/mediconnect/appointment-management/internal/transport"
)

// Middleware validates the bearer token and puts the Principal into the
// request context. Requests without a valid token never reach the booking
// handlers.
type Middleware struct {
	*transport.BaseHandler
	validator *TokenValidator
}

func NewMiddleware(baseHandler *transport.BaseHandler, validator *TokenValidator) *Middleware {
	return &Middleware{
		BaseHandler: baseHandler,
		validator:   validator,
	}
}

func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.ExtractTokenFromHeader(r)
		if token == "" {
			m.Logger.Warn("auth middleware: missing authorization token", "path", r.URL.Path)
			m.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			m.Logger.Warn("auth middleware: token validation failed", "error", err)
			m.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		uid, err := strconv.ParseInt(claims.UserID, 10, 64)
		if err != nil {
			m.Logger.Warn("auth middleware: unparsable user id in claims", "value", claims.UserID)
			m.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		principal := &Principal{ID: uid, Role: claims.Role}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}
