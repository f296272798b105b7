package repomanager

import (
	"context"
	"database/sql"

	"github.com/QKhanh04/innerg-api/internal/dbx"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/refreshtokens"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/users"
)

// MemoryRepositoryManager hands out the same in-memory repositories for every
// DBTX. Pair it with dbx.NewLocalTransactor.
type MemoryRepositoryManager struct {
	users  *users.MemoryRepository
	tokens *refreshtokens.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	u := users.NewMemoryRepository()
	return &MemoryRepositoryManager{
		users:  u,
		tokens: refreshtokens.NewMemoryRepository(u),
	}
}

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository {
	return m.users
}

func (m *MemoryRepositoryManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.tokens
}

// RunMigrations is a no-op; there is no schema.
func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

// MemoryUsers exposes the concrete users store for inspection.
func (m *MemoryRepositoryManager) MemoryUsers() *users.MemoryRepository {
	return m.users
}

// MemoryRefreshTokens exposes the concrete token store for inspection.
func (m *MemoryRepositoryManager) MemoryRefreshTokens() *refreshtokens.MemoryRepository {
	return m.tokens
}
