package repomanager

import (
	"context"
	"database/sql"

	"github.com/QKhanh04/innerg-api/internal/dbx"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/refreshtokens"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a connection or transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
