package httpapi

import (
	"net/http"

	"staffroster.org/internal/apperr"
	"staffroster.org/internal/obs"
)

type errorResponse struct {
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// writeError is the single place where errors become HTTP responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorStatus(w, r, err, 0)
}

// writeErrorStatus is writeError with the status code forced to status when
// it is non-zero. The body is unchanged.
func writeErrorStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	rid := RequestIDFromContext(r.Context())

	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind == apperr.KindInternal {
		obs.Logger().Error().Err(err).
			Str("request_id", rid).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("unhandled error")
		appErr = apperr.New(apperr.KindInternal, "", "")
	}
	if status == 0 {
		status = appErr.HTTPStatus()
	}
	if status < http.StatusInternalServerError {
		obs.Logger().Warn().
			Str("request_id", rid).
			Str("error_code", appErr.ErrorCode()).
			Int("status_code", status).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg(appErr.UserMessage())
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, errorResponse{
		ErrorCode: appErr.ErrorCode(),
		Message:   appErr.UserMessage(),
		Details:   appErr.Details,
		RequestID: rid,
	})
}

// isAuthError reports whether err is one of the credential or token kinds.
func isAuthError(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindAuthenticationFailed, apperr.KindInvalidToken, apperr.KindTokenExpired:
		return true
	}
	return false
}
