package auth

import (
	"errors"

	"staffroster.org/internal/apperr"
)

var (
	errInvalidCredentials = apperr.New(apperr.KindAuthenticationFailed, "", "Invalid email or password")
	errMissingToken       = apperr.New(apperr.KindInvalidToken, "MISSING_TOKEN", "Authentication token is required")
	errSecretTooShort     = errors.New("auth: signing secret must be at least 32 bytes")
)

func invalidToken(cause error) error {
	return apperr.Wrap(apperr.KindInvalidToken, "", "Invalid authentication token", cause)
}

func expiredToken(cause error) error {
	return apperr.Wrap(apperr.KindTokenExpired, "", "Authentication token has expired", cause)
}
