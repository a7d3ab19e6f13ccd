package auth

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"staffroster.org/internal/apperr"
)

// HashPassword hashes plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// burnPasswordCheck spends one bcrypt comparison so that lookups of unknown
// accounts take as long as a wrong password.
func burnPasswordCheck(password string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("staffroster-dummy-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

// ValidatePassword checks the length policy and that confirm matches.
// field names the input in the returned validation error.
func ValidatePassword(field, password, confirm string) *apperr.FieldError {
	n := utf8.RuneCountInString(password)
	switch {
	case n < MinPasswordLength:
		return &apperr.FieldError{Field: field, Message: fmt.Sprintf("Password must be at least %d characters", MinPasswordLength), Type: "string_too_short"}
	case n > MaxPasswordLength:
		return &apperr.FieldError{Field: field, Message: fmt.Sprintf("Password must be at most %d characters", MaxPasswordLength), Type: "string_too_long"}
	case password != confirm:
		return &apperr.FieldError{Field: "confirm_password", Message: "Passwords do not match", Type: "value_error"}
	}
	return nil
}
