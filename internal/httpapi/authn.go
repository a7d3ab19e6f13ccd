package httpapi

import (
	"net/http"
	"strings"

	"staffroster.org/internal/apperr"
	"staffroster.org/internal/audit"
	"staffroster.org/internal/auth"
	"staffroster.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

type principalHandler func(w http.ResponseWriter, r *http.Request, p *auth.Principal)

// authenticated resolves the bearer token to a stored principal before
// calling next.
func (a *API) authenticated(next principalHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.ObserveTokenFailure("missing")
			writeError(w, r, err)
			return
		}

		principal, err := a.auth.ResolveCurrentPrincipal(r.Context(), token)
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindTokenExpired:
				obs.ObserveTokenFailure("expired")
			case apperr.KindInvalidToken:
				obs.ObserveTokenFailure("invalid")
			}
			writeError(w, r, err)
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next(w, r.WithContext(ctx), principal)
	})
}

// protected is authenticated plus the role allow-list of endpoint.
func (a *API) protected(endpoint auth.Endpoint, next principalHandler) http.Handler {
	return a.authenticated(func(w http.ResponseWriter, r *http.Request, p *auth.Principal) {
		if err := auth.Authorize(p, endpoint); err != nil {
			obs.ObserveDenied(string(endpoint))
			_ = audit.LogEvent(r.Context(), "authz.denied", map[string]any{
				"endpoint": string(endpoint),
			})
			writeError(w, r, err)
			return
		}
		next(w, r, p)
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", apperr.New(apperr.KindInvalidToken, "MISSING_TOKEN", "Authentication token is required")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", apperr.New(apperr.KindInvalidToken, "", "Invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", apperr.New(apperr.KindInvalidToken, "MISSING_TOKEN", "Authentication token is required")
	}
	return token, nil
}
