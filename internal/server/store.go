package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/QKhanh04/innerg-api/internal/cryptox"
	"github.com/QKhanh04/innerg-api/internal/dbx"
	"github.com/QKhanh04/innerg-api/internal/logging"
	"github.com/QKhanh04/innerg-api/internal/server/config"
	"github.com/QKhanh04/innerg-api/internal/server/identity"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/confirmations"
	"github.com/QKhanh04/innerg-api/internal/server/repositories/repomanager"
	"github.com/QKhanh04/innerg-api/internal/timex"
	"github.com/redis/go-redis/v9"
)

// SeedRoles are created at startup when missing.
var SeedRoles = []string{"User", "Admin"}

// Store bundles the persistence side of the service: the database (nil in
// memory mode), the repositories, the unit of work and the credential store.
type Store struct {
	DB       *sql.DB
	Redis    redis.UniversalClient
	Repos    repomanager.RepositoryManager
	Tx       dbx.Transactor
	Identity *identity.Manager
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// OpenStore connects to PostgreSQL when a DSN is configured, otherwise it
// falls back to process memory. One-time tokens go to Redis when REDIS_ADDR
// is set, else to the database, else to memory.
func OpenStore(ctx context.Context, c *config.Config, logger logging.Logger, now timex.Clock) (*Store, error) {
	s := &Store{}

	if c.DatabaseDSN != "" {
		db, err := sqlOpen("pgx", c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db open error: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("db ping error: %w", err)
		}
		s.DB = db
		s.Repos = repomanager.NewPostgresRepositoryManager()
		s.Tx = dbx.NewSQLTransactor(db, nil)
	} else {
		logger.Warn(ctx, "DB_CONNECTION not set, using in-memory storage")
		s.Repos = repomanager.NewMemoryRepositoryManager()
		s.Tx = dbx.NewLocalTransactor()
	}

	var tokens confirmations.Store
	switch {
	case c.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = s.Close()
			return nil, fmt.Errorf("redis ping error: %w", err)
		}
		s.Redis = client
		tokens = confirmations.NewRedisStore(client, "")
	case s.DB != nil:
		tokens = confirmations.NewPostgresStore(s.DB, now)
	default:
		tokens = confirmations.NewMemoryStore(now)
	}

	hasher, err := cryptox.NewPasswordHasher(cryptox.DefaultArgon2Params)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	s.Identity = identity.NewManager(s.Repos, s.Tx, hasher, tokens,
		identity.WithClock(now),
		identity.WithPolicy(identity.Policy{
			MaxFailedAttempts: c.LockoutMaxFailures,
			LockoutDuration:   c.LockoutDuration,
			TokenTTL:          c.ConfirmationTokenTTL,
		}),
	)
	return s, nil
}

// Migrate applies the schema migrations and seeds the roles.
func (s *Store) Migrate(ctx context.Context) error {
	if s.DB != nil {
		if err := s.Repos.RunMigrations(ctx, s.DB); err != nil {
			return fmt.Errorf("migrations error: %w", err)
		}
	}
	return s.SeedRoles(ctx)
}

func (s *Store) SeedRoles(ctx context.Context) error {
	if err := s.Identity.EnsureRoles(ctx, SeedRoles...); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}
