// Package apperr defines the error kinds surfaced to API callers.
//
// Every failure that should reach a client is an *Error carrying a Kind
// (which fixes the HTTP status), a machine readable code, a message safe to
// show to users and optional structured details. Anything else is treated
// as an internal fault by the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind uint8

const (
	KindInternal Kind = iota
	KindAuthenticationFailed
	KindInvalidToken
	KindTokenExpired
	KindAuthorizationDenied
	KindValidationFailed
	KindDuplicateResource
	KindNotFound
)

var kindInfo = map[Kind]struct {
	status  int
	code    string
	message string
}{
	KindInternal:             {http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An unexpected error occurred. Please try again later."},
	KindAuthenticationFailed: {http.StatusUnauthorized, "AUTHENTICATION_FAILED", "Authentication failed"},
	KindInvalidToken:         {http.StatusUnauthorized, "INVALID_TOKEN", "Invalid authentication token"},
	KindTokenExpired:         {http.StatusUnauthorized, "TOKEN_EXPIRED", "Authentication token has expired"},
	KindAuthorizationDenied:  {http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", "Insufficient permissions"},
	KindValidationFailed:     {http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Validation failed"},
	KindDuplicateResource:    {http.StatusConflict, "DUPLICATE_RESOURCE", "Resource already exists"},
	KindNotFound:             {http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"},
}

// HTTPStatus returns the status code a kind maps to.
func (k Kind) HTTPStatus() int {
	if info, ok := kindInfo[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Code returns the default machine readable code of the kind.
func (k Kind) Code() string {
	if info, ok := kindInfo[k]; ok {
		return info.code
	}
	return kindInfo[KindInternal].code
}

func (k Kind) String() string { return k.Code() }

// Error is the single application error type.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	cause   error
}

// Error implements error.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.ErrorCode(), e.UserMessage())
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Is matches sentinel errors by kind, and by code when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.ErrorCode()
}

// ErrorCode returns Code or the kind default.
func (e *Error) ErrorCode() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.Code()
}

// UserMessage returns Message or the kind default.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return kindInfo[e.Kind].message
}

// HTTPStatus returns the status code of the error kind.
func (e *Error) HTTPStatus() int { return e.Kind.HTTPStatus() }

// Sentinels for errors.Is checks. They match any error of the same kind.
var (
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
	ErrInvalidToken         = &Error{Kind: KindInvalidToken}
	ErrTokenExpired         = &Error{Kind: KindTokenExpired}
	ErrAuthorizationDenied  = &Error{Kind: KindAuthorizationDenied}
	ErrValidationFailed     = &Error{Kind: KindValidationFailed}
	ErrDuplicateResource    = &Error{Kind: KindDuplicateResource}
	ErrNotFound             = &Error{Kind: KindNotFound}
)

// New builds an error of the given kind.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an error of the given kind that keeps cause for logging.
// The cause is never serialized to clients.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

// WithDetails returns a copy of e with details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	out := *e
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	out.Details = merged
	return &out
}

// Denied reports that actual is not among the roles required by an endpoint.
func Denied(required []string, actual string) *Error {
	req := make([]string, len(required))
	copy(req, required)
	return &Error{
		Kind:    KindAuthorizationDenied,
		Message: "You don't have permission to perform this action",
		Details: map[string]any{
			"required_roles": req,
			"actual_role":    actual,
		},
	}
}

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Validation reports one or more invalid input fields.
func Validation(fields ...FieldError) *Error {
	list := make([]FieldError, len(fields))
	copy(list, fields)
	msg := "Validation failed"
	if len(list) == 1 {
		msg = list[0].Message
	} else if len(list) > 1 {
		msg = "Multiple fields have validation errors"
	}
	return &Error{
		Kind:    KindValidationFailed,
		Message: msg,
		Details: map[string]any{"errors": list},
	}
}

// Duplicate reports a uniqueness collision on resource.field.
func Duplicate(resource, field, value string) *Error {
	code := "DUPLICATE_RESOURCE"
	msg := fmt.Sprintf("%s with this %s already exists", resource, field)
	if field == "email" {
		code = "EMAIL_ALREADY_EXISTS"
		msg = "A user with this email already exists"
	}
	details := map[string]any{"field": field}
	if value != "" {
		details["value"] = value
	}
	return &Error{Kind: KindDuplicateResource, Code: code, Message: msg, Details: details}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *Error {
	code := "RESOURCE_NOT_FOUND"
	msg := "Resource not found"
	if resource == "user" {
		code = "USER_NOT_FOUND"
		msg = "User not found"
	}
	e := &Error{Kind: KindNotFound, Code: code, Message: msg}
	if id != "" {
		e.Details = map[string]any{"resource": resource, "id": id}
	}
	return e
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Internal wraps an unexpected fault. The message is the generic one.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, cause: cause}
}
