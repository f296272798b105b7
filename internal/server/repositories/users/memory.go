package users

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps users in process memory. It enforces the same
// uniqueness rules as the PostgreSQL schema. LockByID does not lock; callers
// serialize through dbx.LocalTransactor instead.
type MemoryRepository struct {
	mu     sync.RWMutex
	users  map[string]models.User
	roles  map[string]string              // normalized -> display name
	member map[string]map[string]struct{} // user id -> normalized role
	logins map[string]models.ExternalLogin
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:  make(map[string]models.User),
		roles:  make(map[string]string),
		member: make(map[string]map[string]struct{}),
		logins: make(map[string]models.ExternalLogin),
	}
}

func loginKey(provider, providerKey string) string {
	return provider + "\x00" + providerKey
}

// conflict reports a clash of u's name or email with any other user.
func (r *MemoryRepository) conflict(u *models.User) error {
	name, email := models.NormalizeName(u.UserName), models.NormalizeName(u.Email)
	for id, other := range r.users {
		if id == u.ID {
			continue
		}
		if models.NormalizeName(other.UserName) == name {
			return fmt.Errorf("%w: users_normalized_username_key", common.ErrorAlreadyExists)
		}
		if models.NormalizeName(other.Email) == email {
			return fmt.Errorf("%w: users_normalized_email_key", common.ErrorAlreadyExists)
		}
	}
	return nil
}

func (r *MemoryRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, ok := r.users[user.ID]; ok {
		return nil, fmt.Errorf("%w: users_pkey", common.ErrorAlreadyExists)
	}
	if err := r.conflict(user); err != nil {
		return nil, err
	}
	user.CreatedAt = time.Now().UTC()
	r.users[user.ID] = copyUser(user)
	return user, nil
}

func (r *MemoryRepository) Update(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.users[user.ID]
	if !ok {
		return common.ErrorNotFound
	}
	if err := r.conflict(user); err != nil {
		return err
	}
	u := copyUser(user)
	u.CreatedAt = old.CreatedAt
	r.users[user.ID] = u
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.users, id)
	delete(r.member, id)
	for k, l := range r.logins {
		if l.UserID == id {
			delete(r.logins, k)
		}
	}
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return ptrCopy(u), nil
}

func (r *MemoryRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool {
		return models.NormalizeName(u.Email) == models.NormalizeName(email)
	})
}

func (r *MemoryRepository) GetByUserName(_ context.Context, userName string) (*models.User, error) {
	return r.find(func(u *models.User) bool {
		return models.NormalizeName(u.UserName) == models.NormalizeName(userName)
	})
}

func (r *MemoryRepository) LockByID(ctx context.Context, id string) (*models.User, error) {
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(&u) {
			return ptrCopy(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) EnsureRole(_ context.Context, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roles[models.NormalizeName(role)]; !ok {
		r.roles[models.NormalizeName(role)] = role
	}
	return nil
}

func (r *MemoryRepository) RoleExists(_ context.Context, role string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.roles[models.NormalizeName(role)]
	return ok, nil
}

func (r *MemoryRepository) GetRoles(_ context.Context, userID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roles := []string{}
	for norm := range r.member[userID] {
		roles = append(roles, r.roles[norm])
	}
	sort.Strings(roles)
	return roles, nil
}

func (r *MemoryRepository) AddToRole(_ context.Context, userID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	norm := models.NormalizeName(role)
	if _, ok := r.users[userID]; !ok {
		return fmt.Errorf("db error: user %s does not exist", userID)
	}
	if _, ok := r.roles[norm]; !ok {
		return fmt.Errorf("db error: role %s does not exist", role)
	}
	set, ok := r.member[userID]
	if !ok {
		set = make(map[string]struct{})
		r.member[userID] = set
	}
	if _, dup := set[norm]; dup {
		return fmt.Errorf("%w: user_roles_pkey", common.ErrorAlreadyExists)
	}
	set[norm] = struct{}{}
	return nil
}

func (r *MemoryRepository) RemoveFromRole(_ context.Context, userID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.member[userID], models.NormalizeName(role))
	return nil
}

func (r *MemoryRepository) AddLogin(_ context.Context, login models.ExternalLogin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[login.UserID]; !ok {
		return fmt.Errorf("db error: user %s does not exist", login.UserID)
	}
	if _, ok := r.logins[loginKey(login.Provider, login.ProviderKey)]; ok {
		return fmt.Errorf("%w: user_logins_pkey", common.ErrorAlreadyExists)
	}
	for _, l := range r.logins {
		if l.UserID == login.UserID && l.Provider == login.Provider {
			return fmt.Errorf("%w: user_logins_user_id_provider_key", common.ErrorAlreadyExists)
		}
	}
	r.logins[loginKey(login.Provider, login.ProviderKey)] = login
	return nil
}

func (r *MemoryRepository) RemoveLogin(_ context.Context, userID, provider string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, l := range r.logins {
		if l.UserID == userID && l.Provider == provider {
			delete(r.logins, k)
		}
	}
	return nil
}

func (r *MemoryRepository) FindByLogin(_ context.Context, provider, providerKey string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.logins[loginKey(provider, providerKey)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u, ok := r.users[l.UserID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return ptrCopy(u), nil
}

// Count returns the number of stored users.
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

func copyUser(u *models.User) models.User {
	c := *u
	if u.LockoutEnd != nil {
		t := *u.LockoutEnd
		c.LockoutEnd = &t
	}
	return c
}

func ptrCopy(u models.User) *models.User {
	c := copyUser(&u)
	return &c
}
