package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"staffroster.org/internal/ids"
)

const (
	// DefaultLeeway is the clock skew tolerated on exp, iat and nbf.
	DefaultLeeway = 5 * time.Second
	minSecretLen  = 32
)

var signingMethods = map[string]jwt.SigningMethod{
	jwt.SigningMethodHS256.Alg(): jwt.SigningMethodHS256,
	jwt.SigningMethodHS384.Alg(): jwt.SigningMethodHS384,
	jwt.SigningMethodHS512.Alg(): jwt.SigningMethodHS512,
}

// Claims represents the JWT claims carried by access and refresh tokens.
// Refresh tokens leave Role and Email empty.
type Claims struct {
	Role  Role   `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenPayload is the decoded, verified content of a token.
type TokenPayload struct {
	Subject   string    `json:"sub"`
	Role      Role      `json:"role,omitempty"`
	Email     string    `json:"email,omitempty"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	ID        string    `json:"jti,omitempty"`
}

// Codec signs and verifies tokens with a symmetric key fixed at construction.
// It is safe for concurrent use.
type Codec struct {
	key    []byte
	method jwt.SigningMethod
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec) error

// WithAlgorithm selects the HMAC algorithm (HS256, HS384 or HS512).
func WithAlgorithm(alg string) CodecOption {
	return func(c *Codec) error {
		alg = strings.ToUpper(strings.TrimSpace(alg))
		if alg == "" {
			return nil
		}
		m, ok := signingMethods[alg]
		if !ok {
			return fmt.Errorf("auth: unsupported signing algorithm %q", alg)
		}
		c.method = m
		return nil
	}
}

// WithIssuer sets the iss claim and requires it on decode.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) error {
		c.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithLeeway overrides DefaultLeeway.
func WithLeeway(d time.Duration) CodecOption {
	return func(c *Codec) error {
		if d < 0 {
			return errors.New("auth: leeway must not be negative")
		}
		c.leeway = d
		return nil
	}
}

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// NewCodec constructs a Codec around secret.
func NewCodec(secret string, opts ...CodecOption) (*Codec, error) {
	if len(secret) < minSecretLen {
		return nil, errSecretTooShort
	}
	c := &Codec{
		key:    []byte(secret),
		method: jwt.SigningMethodHS256,
		leeway: DefaultLeeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Algorithm returns the configured signing algorithm name.
func (c *Codec) Algorithm() string { return c.method.Alg() }

// ClaimOption adds optional claims to an access token.
type ClaimOption func(*Claims)

// WithEmail embeds the principal's email into the access token.
func WithEmail(email string) ClaimOption {
	return func(c *Claims) { c.Email = NormalizeEmail(email) }
}

// IssueAccessToken signs {sub, role, iat, exp} valid for ttl.
func (c *Codec) IssueAccessToken(subject string, role Role, ttl time.Duration, opts ...ClaimOption) (string, TokenPayload, error) {
	if !role.Valid() {
		return "", TokenPayload{}, fmt.Errorf("auth: invalid role %q", role)
	}
	claims, err := c.baseClaims(subject, ttl)
	if err != nil {
		return "", TokenPayload{}, err
	}
	claims.Role = role
	for _, opt := range opts {
		opt(claims)
	}
	return c.sign(claims)
}

// IssueRefreshToken signs {sub, iat, exp} valid for ttl. The role is not
// embedded; it is re-read from storage on exchange.
func (c *Codec) IssueRefreshToken(subject string, ttl time.Duration) (string, TokenPayload, error) {
	claims, err := c.baseClaims(subject, ttl)
	if err != nil {
		return "", TokenPayload{}, err
	}
	return c.sign(claims)
}

func (c *Codec) baseClaims(subject string, ttl time.Duration) (*Claims, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, errors.New("auth: subject is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: ttl must be greater than zero")
	}
	now := c.now().UTC().Truncate(time.Second)
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        ids.New(),
		},
	}, nil
}

func (c *Codec) sign(claims *Claims) (string, TokenPayload, error) {
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.key)
	if err != nil {
		return "", TokenPayload{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, payloadFromClaims(claims), nil
}

// Decode verifies token and returns its payload. A token whose signature is
// valid but whose exp has passed fails with a TokenExpired error; every other
// failure is InvalidToken.
func (c *Codec) Decode(token string) (TokenPayload, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenPayload{}, errMissingToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenPayload{}, expiredToken(err)
		}
		return TokenPayload{}, invalidToken(err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return TokenPayload{}, invalidToken(errors.New("unexpected claims type"))
	}
	if err := validateClaims(claims); err != nil {
		return TokenPayload{}, invalidToken(err)
	}
	return payloadFromClaims(claims), nil
}

func validateClaims(claims *Claims) error {
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.IssuedAt == nil {
		return errors.New("issued-at missing")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	if claims.Role != "" && !claims.Role.Valid() {
		return fmt.Errorf("unknown role %q", claims.Role)
	}
	return nil
}

func payloadFromClaims(claims *Claims) TokenPayload {
	p := TokenPayload{
		Subject: claims.Subject,
		Role:    claims.Role,
		Email:   claims.Email,
		ID:      claims.ID,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return p
}
