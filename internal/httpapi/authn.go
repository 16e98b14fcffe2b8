package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"coursehub.org/internal/auth"
	"coursehub.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// gate enforces rule before next runs. Claims of a valid token are attached
// to the request context for handlers and audit logging.
func (a *API) gate(rule auth.Rule, next http.Handler) http.Handler {
	if rule.IsPublic() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var claims *auth.Claims
		token, tokenErr := extractBearerToken(r.Header.Get(authHeader))
		if tokenErr == nil {
			c, err := a.auth.Authenticate(token)
			if err == nil {
				claims = c
			}
		}

		switch err := rule.Authorize(claims); {
		case err == nil:
		case errors.Is(err, auth.ErrUnauthenticated):
			obs.AuthEvent("gate", "unauthenticated")
			challenge := `Bearer realm="coursehub"`
			if tokenErr == nil {
				challenge += `, error="invalid_token"`
			}
			w.Header().Set("WWW-Authenticate", challenge)
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		case errors.Is(err, auth.ErrForbidden):
			obs.AuthEvent("gate", "forbidden")
			writeError(w, r, http.StatusForbidden, "forbidden")
			return
		default:
			a.internalError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithClaims(r.Context(), claims)))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
