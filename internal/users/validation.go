package users

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"staffroster.org/internal/apperr"
	"staffroster.org/internal/auth"
)

const (
	maxEmailLength    = 255
	minFullNameLength = 2
	maxFullNameLength = 255
	minPhoneDigits    = 10
	maxPhoneLength    = 20
)

// fieldErrors accumulates per-field validation failures.
type fieldErrors []apperr.FieldError

func (f *fieldErrors) add(field, typ, format string, args ...any) {
	*f = append(*f, apperr.FieldError{Field: field, Message: fmt.Sprintf(format, args...), Type: typ})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperr.Validation(f...)
}

// normalizeEmail validates and lower-cases an address.
func normalizeEmail(errs *fieldErrors, raw string) string {
	email := auth.NormalizeEmail(raw)
	switch {
	case email == "":
		errs.add("email", "missing", "Email is required")
		return ""
	case len(email) > maxEmailLength:
		errs.add("email", "string_too_long", "Email must be at most %d characters", maxEmailLength)
		return ""
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		errs.add("email", "value_error", "Invalid email format")
		return ""
	}
	return email
}

// normalizeFullName collapses runs of whitespace and checks the length.
func normalizeFullName(errs *fieldErrors, raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	n := utf8.RuneCountInString(name)
	switch {
	case n == 0:
		errs.add("full_name", "missing", "Full name cannot be empty")
	case n < minFullNameLength:
		errs.add("full_name", "string_too_short", "Full name must be at least %d characters", minFullNameLength)
	case n > maxFullNameLength:
		errs.add("full_name", "string_too_long", "Full name must be at most %d characters", maxFullNameLength)
	default:
		return name
	}
	return ""
}

// normalizePhone keeps digits and '+'. Empty input yields an empty number.
func normalizePhone(errs *fieldErrors, raw string) string {
	var b strings.Builder
	digits := 0
	for _, r := range raw {
		switch {
		case r == '+':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		}
	}
	cleaned := b.String()
	switch {
	case cleaned == "":
		return ""
	case digits < minPhoneDigits:
		errs.add("phone_number", "value_error", "Phone number must have at least %d digits", minPhoneDigits)
	case len(cleaned) > maxPhoneLength:
		errs.add("phone_number", "value_error", "Phone number is too long (max %d characters)", maxPhoneLength)
	default:
		return cleaned
	}
	return ""
}

func parseRole(errs *fieldErrors, raw string, fallback auth.Role) auth.Role {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	role, err := auth.ParseRole(raw)
	if err != nil {
		errs.add("role", "enum", "Role must be one of %s", joinRoles(auth.Roles()))
		return ""
	}
	return role
}

func parseStatus(errs *fieldErrors, raw string) auth.Status {
	status, err := auth.ParseStatus(raw)
	if err != nil {
		errs.add("status", "enum", "Status must be one of %s", joinStatuses(auth.Statuses()))
		return ""
	}
	return status
}

func joinRoles(roles []auth.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ", ")
}

func joinStatuses(statuses []auth.Status) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
