package federation

import (
	"context"
	"crypto"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

var (
	errKeysUnavailable = errors.New("identity provider keys unavailable")
	errUnknownKey      = errors.New("unknown signing key")
)

// KeySource resolves a provider signing key by its key id.
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// JWKSKeySource fetches and caches a provider's published JWK set.
type JWKSKeySource struct {
	cache *jwk.Cache
	url   string
}

// NewJWKSKeySource registers url with a background-refreshing cache bound to
// ctx. The first fetch happens lazily on the first Key call.
func NewJWKSKeySource(ctx context.Context, url string) (*JWKSKeySource, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(url, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("register jwks url: %w", err)
	}
	return &JWKSKeySource{cache: cache, url: url}, nil
}

func (s *JWKSKeySource) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	set, err := s.cache.Get(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errKeysUnavailable, err)
	}

	key, ok := set.LookupKeyID(kid)
	if !ok {
		// keys rotate; force one refetch before giving up
		if set, err = s.cache.Refresh(ctx, s.url); err != nil {
			return nil, fmt.Errorf("%w: %v", errKeysUnavailable, err)
		}
		if key, ok = set.LookupKeyID(kid); !ok {
			return nil, errUnknownKey
		}
	}

	var raw crypto.PublicKey
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("extract public key: %w", err)
	}
	pub, ok := raw.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("key is not RSA")
	}
	return pub, nil
}
