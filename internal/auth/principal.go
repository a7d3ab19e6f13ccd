package auth

import (
	"strings"
	"time"
)

// Principal is an employee account that can authenticate.
type Principal struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	Role         Role      `json:"role"`
	Status       Status    `json:"status"`
	IsFirstLogin bool      `json:"is_first_login"`
	CreatedByID  string    `json:"created_by_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsActive reports whether the principal may sign in.
func (p *Principal) IsActive() bool { return p != nil && p.Status.IsActive() }

// CanManage reports whether p administers target according to the role hierarchy.
func (p *Principal) CanManage(target *Principal) bool {
	if p == nil || target == nil || p.ID == target.ID {
		return false
	}
	return CanManage(p.Role, target.Role)
}

// NeedsPasswordChange reports whether the principal must set a new password.
func (p *Principal) NeedsPasswordChange() bool {
	return p != nil && (p.Status == StatusPendingPasswordChange || p.IsFirstLogin)
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
