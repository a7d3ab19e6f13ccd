package auth

import (
	"fmt"
	"strings"
)

// Status is the account state of a principal.
type Status string

const (
	StatusActive                Status = "ACTIVE"
	StatusInactive              Status = "INACTIVE"
	StatusPendingPasswordChange Status = "PENDING_PASSWORD_CHANGE"
	StatusSuspended             Status = "SUSPENDED"
	StatusLocked                Status = "LOCKED"
)

var statusOrder = []Status{
	StatusActive,
	StatusInactive,
	StatusPendingPasswordChange,
	StatusSuspended,
	StatusLocked,
}

var statusDescriptions = map[Status]string{
	StatusActive:                "Active user with full system access",
	StatusInactive:              "Inactive user account with no system access",
	StatusPendingPasswordChange: "User must change password before accessing the system",
	StatusSuspended:             "Temporarily suspended account pending investigation",
	StatusLocked:                "Account locked due to security concerns or multiple failed login attempts",
}

// Statuses returns every status value.
func Statuses() []Status {
	out := make([]Status, len(statusOrder))
	copy(out, statusOrder)
	return out
}

// ActiveStatuses returns the statuses that may sign in.
func ActiveStatuses() []Status {
	return []Status{StatusActive, StatusPendingPasswordChange}
}

// ParseStatus converts user input into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := statusDescriptions[s]
	return ok
}

func (s Status) Description() string { return statusDescriptions[s] }

func (s Status) String() string { return string(s) }

// IsActive reports whether s is one of ActiveStatuses.
func (s Status) IsActive() bool {
	return s == StatusActive || s == StatusPendingPasswordChange
}
