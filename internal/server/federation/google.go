// Package federation verifies identity assertions issued by external
// providers. It keeps no local state.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

// GoogleCertsURL publishes Google's ID token signing keys.
const GoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// Identity is what a verified assertion says about the user. Fields are
// copied from the token as-is.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Picture       string
}

type googleClaims struct {
	jwt.RegisteredClaims
	Email         string       `json:"email"`
	EmailVerified flexibleBool `json:"email_verified"`
	Name          string       `json:"name"`
	GivenName     string       `json:"given_name"`
	FamilyName    string       `json:"family_name"`
	Picture       string       `json:"picture"`
}

// flexibleBool accepts true/false and "true"/"false".
type flexibleBool bool

func (b *flexibleBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexibleBool(t)
	case string:
		parsed, err := strconv.ParseBool(t)
		if err != nil {
			return err
		}
		*b = flexibleBool(parsed)
	case nil:
		*b = false
	default:
		return errors.New("email_verified: unexpected type")
	}
	return nil
}

// GoogleVerifier checks Google ID tokens: RS256 signature against the
// published keys, issuer, audience (our client id) and expiry.
type GoogleVerifier struct {
	clientID string
	keys     KeySource
	now      timex.Clock
}

type Option func(*GoogleVerifier)

func WithClock(now timex.Clock) Option {
	return func(v *GoogleVerifier) { v.now = now }
}

// NewGoogleVerifier fails with a Configuration error when clientID is empty.
func NewGoogleVerifier(clientID string, keys KeySource, opts ...Option) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, common.Configuration("GOOGLE_CLIENT_ID")
	}
	v := &GoogleVerifier{clientID: clientID, keys: keys, now: timex.SystemClock}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// Verify returns the asserted identity. Every verification failure is
// reported as the same Unauthorized error; only an unreachable key endpoint
// is reported as ExternalService.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	claims := &googleClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, errKeysUnavailable) {
			return nil, common.ExternalService("Identity provider unavailable", err)
		}
		return nil, invalidAssertion(err)
	}

	if !validIssuer(claims.Issuer) {
		return nil, invalidAssertion(errors.New("unexpected issuer " + claims.Issuer))
	}
	if claims.Subject == "" {
		return nil, invalidAssertion(errors.New("missing subject"))
	}

	return &Identity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: bool(claims.EmailVerified),
		Name:          claims.Name,
		GivenName:     claims.GivenName,
		FamilyName:    claims.FamilyName,
		Picture:       claims.Picture,
	}, nil
}

func validIssuer(iss string) bool {
	for _, ok := range googleIssuers {
		if iss == ok {
			return true
		}
	}
	return false
}

func invalidAssertion(cause error) *common.AppError {
	return &common.AppError{Kind: common.ErrorUnauthorized, Message: "invalid identity assertion", Err: cause}
}
