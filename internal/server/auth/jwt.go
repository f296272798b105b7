// Package auth mints and validates access tokens and generates refresh-token
// secrets.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/server/models"
	"github.com/QKhanh04/innerg-api/internal/timex"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// refreshSecretSize is the number of random bytes behind a refresh secret.
const refreshSecretSize = 64

// Claims is the access token payload.
type Claims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Roles []string `json:"role,omitempty"`
}

// Principal is the identity carried by an access token.
type Principal struct {
	UserID    string
	UserName  string
	Email     string
	Roles     []string
	TokenID   string
	ExpiresAt time.Time
}

// Signer issues HS256 access tokens bound to one issuer and audience.
type Signer struct {
	key        []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        timex.Clock
}

type Option func(*Signer)

// WithClock overrides the time source.
func WithClock(now timex.Clock) Option {
	return func(s *Signer) { s.now = now }
}

// NewSigner fails with a Configuration error when the key, issuer, audience
// or a lifetime is missing.
func NewSigner(key []byte, issuer, audience string, accessTTL, refreshTTL time.Duration, opts ...Option) (*Signer, error) {
	var errs common.ConfigurationErrors
	if len(key) == 0 {
		errs = append(errs, common.Configuration("JWT_KEY"))
	}
	if issuer == "" {
		errs = append(errs, common.Configuration("JWT_ISSUER"))
	}
	if audience == "" {
		errs = append(errs, common.Configuration("JWT_AUDIENCE"))
	}
	if accessTTL <= 0 {
		errs = append(errs, common.Configuration("JWT_ACCESS_TOKEN_MINUTES"))
	}
	if refreshTTL <= 0 {
		errs = append(errs, common.Configuration("JWT_REFRESH_TOKEN_DAYS"))
	}
	if len(errs) > 0 {
		return nil, errs
	}

	s := &Signer{
		key:        key,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        timex.SystemClock,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// RefreshTTL is the lifetime given to new refresh tokens.
func (s *Signer) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// IssueAccessToken signs a token for p. TokenID and ExpiresAt are filled in
// on the returned principal.
func (s *Signer) IssueAccessToken(p Principal) (string, *Principal, error) {
	now := s.now()
	p.TokenID = uuid.NewString()
	p.ExpiresAt = now.Add(s.accessTTL).Truncate(time.Second)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			ID:        p.TokenID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
		Name:  p.UserName,
		Email: p.Email,
		Roles: append([]string(nil), p.Roles...),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign access token: %w", err)
	}
	return token, &p, nil
}

// Validate parses a live access token. Expired tokens yield
// common.ErrTokenExpired, anything else common.ErrInvalidToken.
func (s *Signer) Validate(tokenString string) (*Principal, error) {
	return s.parse(tokenString, jwt.WithExpirationRequired())
}

// PrincipalFromExpired reads a token whose lifetime may have passed. The
// signature, algorithm, issuer and audience are still checked.
func (s *Signer) PrincipalFromExpired(tokenString string) (*Principal, error) {
	return s.parse(tokenString, jwt.WithoutClaimsValidation())
}

func (s *Signer) parse(tokenString string, extra ...jwt.ParserOption) (*Principal, error) {
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	}, extra...)

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, common.ErrInvalidToken
		}
		return s.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	// WithoutClaimsValidation skips iss/aud too; check them by hand.
	if claims.Issuer != s.issuer || !containsAudience(claims.Audience, s.audience) {
		return nil, common.ErrInvalidToken
	}

	p := &Principal{
		UserID:   claims.Subject,
		UserName: claims.Name,
		Email:    claims.Email,
		Roles:    claims.Roles,
		TokenID:  claims.ID,
	}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	if p.UserID == "" {
		return nil, common.ErrInvalidToken
	}
	return p, nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// NewRefreshToken generates a fresh 64-byte refresh secret for userID.
// The secret carries no user data.
func (s *Signer) NewRefreshToken(userID string) (*models.RefreshToken, error) {
	secret, err := common.MakeRandBase64String(refreshSecretSize)
	if err != nil {
		return nil, fmt.Errorf("generate refresh secret: %w", err)
	}
	now := s.now()
	return &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     secret,
		CreatedAt: now,
		Expires:   now.Add(s.refreshTTL),
	}, nil
}
