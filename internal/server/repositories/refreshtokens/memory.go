package refreshtokens

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/server/models"
)

// OwnerLookup resolves the user owning a token.
type OwnerLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// MemoryRepository keeps refresh tokens in process memory.
type MemoryRepository struct {
	mu     sync.Mutex
	tokens map[string]models.RefreshToken
	owners OwnerLookup
}

func NewMemoryRepository(owners OwnerLookup) *MemoryRepository {
	return &MemoryRepository{
		tokens: make(map[string]models.RefreshToken),
		owners: owners,
	}
}

func (r *MemoryRepository) Create(_ context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[token.Token]; ok {
		return fmt.Errorf("%w: refresh_tokens_token_key", common.ErrorAlreadyExists)
	}
	r.tokens[token.Token] = *token
	return nil
}

func (r *MemoryRepository) FindWithOwner(ctx context.Context, token string) (*models.RefreshTokenWithOwner, error) {
	r.mu.Lock()
	t, ok := r.tokens[token]
	r.mu.Unlock()
	if !ok {
		return nil, common.ErrorNotFound
	}

	owner, err := r.owners.GetByID(ctx, t.UserID)
	if err != nil {
		return nil, err
	}
	return &models.RefreshTokenWithOwner{Token: t, Owner: *owner}, nil
}

func (r *MemoryRepository) Revoke(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[token]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	r.tokens[token] = t
	return true, nil
}

func (r *MemoryRepository) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, t := range r.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			r.tokens[k] = t
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) DeleteExpiredOrRevoked(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, t := range r.tokens {
		if t.Expires.Before(now) || t.Revoked {
			delete(r.tokens, k)
			n++
		}
	}
	return n, nil
}

// ForUser returns copies of every token owned by userID.
func (r *MemoryRepository) ForUser(userID string) []models.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.RefreshToken
	for _, t := range r.tokens {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// Len returns the number of stored tokens.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}
