package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"staffroster.org/internal/apperr"
)

const (
	defaultAccessTTL        = 30 * time.Minute
	defaultRefreshTTL       = 7 * 24 * time.Hour
	defaultRefreshExtension = 7 * 24 * time.Hour

	// TokenTypeBearer is the token_type reported by Login.
	TokenTypeBearer = "bearer"
)

// Service authenticates principals and issues tokens.
type Service struct {
	store Store
	codec *Codec
	now   func() time.Time

	accessTTL        time.Duration
	refreshTTL       time.Duration
	refreshExtension time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithRefreshExtension configures how far past the refresh token's own
// expiry an exchanged payload remains valid.
func WithRefreshExtension(d time.Duration) ServiceOption {
	return func(s *Service) error {
		if d < 0 {
			return errors.New("auth: refresh extension must not be negative")
		}
		s.refreshExtension = d
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	svc := &Service{
		store:            store,
		codec:            codec,
		now:              time.Now,
		accessTTL:        defaultAccessTTL,
		refreshTTL:       defaultRefreshTTL,
		refreshExtension: defaultRefreshExtension,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// AccessTTL reports the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Principal    *Principal
}

// Login checks credentials and issues an access and a refresh token.
// Unknown email, wrong password and inactive accounts fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return LoginResult{}, errInvalidCredentials
	}

	principal, err := WithUnitOfWork(ctx, s.store, func(uow UnitOfWork) (*Principal, error) {
		return uow.Users().FindByEmail(ctx, email)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			burnPasswordCheck(password)
			return LoginResult{}, errInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := VerifyPassword(principal.PasswordHash, password); err != nil {
		return LoginResult{}, errInvalidCredentials
	}
	if !principal.IsActive() {
		return LoginResult{}, errInvalidCredentials
	}

	access, _, err := s.codec.IssueAccessToken(principal.ID, principal.Role, s.accessTTL, WithEmail(principal.Email))
	if err != nil {
		return LoginResult{}, apperr.Internal(err)
	}
	refresh, _, err := s.codec.IssueRefreshToken(principal.ID, s.refreshTTL)
	if err != nil {
		return LoginResult{}, apperr.Internal(err)
	}
	return LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(s.accessTTL / time.Second),
		Principal:    principal,
	}, nil
}

// ExchangeRefreshToken validates a refresh token and returns a fresh payload
// for its principal. The role is read from storage, not from the token.
func (s *Service) ExchangeRefreshToken(ctx context.Context, refreshToken string) (TokenPayload, error) {
	decoded, err := s.codec.Decode(refreshToken)
	if err != nil {
		return TokenPayload{}, err
	}
	if decoded.Role != "" {
		return TokenPayload{}, invalidToken(errors.New("access token used as refresh token"))
	}
	principal, err := s.lookup(ctx, decoded.Subject)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return TokenPayload{}, apperr.New(apperr.KindAuthenticationFailed, "", "User not found")
		}
		return TokenPayload{}, err
	}
	if !principal.IsActive() {
		return TokenPayload{}, apperr.New(apperr.KindAuthenticationFailed, "", "User account is not active")
	}
	return TokenPayload{
		Subject:   principal.ID,
		Role:      principal.Role,
		Email:     principal.Email,
		IssuedAt:  s.now().UTC().Truncate(time.Second),
		ExpiresAt: decoded.ExpiresAt.Add(s.refreshExtension),
		ID:        decoded.ID,
	}, nil
}

// ResolveCurrentPrincipal maps a bearer access token to its stored principal.
func (s *Service) ResolveCurrentPrincipal(ctx context.Context, bearer string) (*Principal, error) {
	decoded, err := s.codec.Decode(bearer)
	if err != nil {
		return nil, err
	}
	if decoded.Role == "" {
		return nil, invalidToken(errors.New("token carries no role"))
	}
	principal, err := s.lookup(ctx, decoded.Subject)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, invalidToken(err)
		}
		return nil, err
	}
	if !principal.IsActive() {
		return nil, invalidToken(errors.New("principal is not active"))
	}
	return principal, nil
}

// VerifyResult is the non-failing outcome of Verify.
type VerifyResult struct {
	Valid     bool       `json:"valid"`
	UserID    string     `json:"user_id,omitempty"`
	Role      Role       `json:"role,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Message   string     `json:"message"`
}

// Verify reports whether token is a currently valid access token.
func (s *Service) Verify(ctx context.Context, token string) VerifyResult {
	principal, err := s.ResolveCurrentPrincipal(ctx, token)
	if err != nil {
		msg := "Token is invalid"
		if errors.Is(err, apperr.ErrTokenExpired) {
			msg = "Token has expired"
		}
		return VerifyResult{Valid: false, Message: msg}
	}
	res := VerifyResult{Valid: true, UserID: principal.ID, Role: principal.Role, Message: "Token is valid"}
	if decoded, err := s.codec.Decode(token); err == nil {
		exp := decoded.ExpiresAt
		res.ExpiresAt = &exp
	}
	return res
}

// ChangePassword replaces the password of principalID after checking the
// current one. A pending password change is completed by this call.
func (s *Service) ChangePassword(ctx context.Context, principalID, current, next, confirm string) error {
	if fe := ValidatePassword("new_password", next, confirm); fe != nil {
		return apperr.Validation(*fe)
	}
	if current == next {
		return apperr.Validation(apperr.FieldError{
			Field:   "new_password",
			Message: "New password must be different from current password",
			Type:    "value_error",
		})
	}
	hash, err := HashPassword(next)
	if err != nil {
		return apperr.Internal(err)
	}

	_, err = WithUnitOfWork(ctx, s.store, func(uow UnitOfWork) (struct{}, error) {
		principal, err := uow.Users().FindByID(ctx, strings.TrimSpace(principalID))
		if err != nil {
			return struct{}{}, err
		}
		if err := VerifyPassword(principal.PasswordHash, current); err != nil {
			return struct{}{}, apperr.New(apperr.KindAuthenticationFailed, "", "Current password is incorrect")
		}
		principal.PasswordHash = hash
		principal.IsFirstLogin = false
		if principal.Status == StatusPendingPasswordChange {
			principal.Status = StatusActive
		}
		return struct{}{}, uow.Users().Save(ctx, principal)
	})
	return err
}

func (s *Service) lookup(ctx context.Context, id string) (*Principal, error) {
	return WithUnitOfWork(ctx, s.store, func(uow UnitOfWork) (*Principal, error) {
		return uow.Users().FindByID(ctx, id)
	})
}
