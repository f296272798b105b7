// Package admin implements the authctl maintenance commands.
package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/QKhanh04/innerg-api/internal/common"
	"github.com/QKhanh04/innerg-api/internal/logging"
	"github.com/QKhanh04/innerg-api/internal/server"
	"github.com/QKhanh04/innerg-api/internal/server/cleanup"
	"github.com/QKhanh04/innerg-api/internal/server/models"
)

const usage = `usage: authctl <command> [args] [-d dsn] [-r redis]

commands:
  migrate                 apply schema migrations and seed roles
  seed-roles              create the default roles
  sweep                   delete expired and revoked refresh tokens once
  set-password <user>     set a password for a user (name or e-mail)
`

var ErrUsage = errors.New("invalid usage")

type Admin struct {
	store  *server.Store
	out    io.Writer
	logger logging.Logger
}

func New(store *server.Store, out io.Writer, logger logging.Logger) *Admin {
	return &Admin{store: store, out: out, logger: logger}
}

// Run executes the command named by args[0].
func (a *Admin) Run(ctx context.Context, args []string) error {
	args = positional(args)
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	switch args[0] {
	case "migrate":
		if err := a.store.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "migrations applied")
		return nil
	case "seed-roles":
		if err := a.store.SeedRoles(ctx); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "roles ensured: %s\n", strings.Join(server.SeedRoles, ", "))
		return nil
	case "sweep":
		return a.sweep(ctx)
	case "set-password":
		if len(args) != 2 {
			fmt.Fprint(a.out, usage)
			return ErrUsage
		}
		return a.setPassword(ctx, args[1])
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
}

func (a *Admin) sweep(ctx context.Context) error {
	s := cleanup.NewSweeper(a.store.Repos.RefreshTokens(a.store.Tx.Conn()), time.Hour, a.logger, a.store.Identity.Now)
	n, err := s.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed %d refresh tokens\n", n)
	return nil
}

func (a *Admin) setPassword(ctx context.Context, who string) error {
	user, err := a.findUser(ctx, who)
	if err != nil {
		return err
	}

	pw, err := getPassword(a.out, "New password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	again, err := getPassword(a.out, "Repeat password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(again)

	if !bytes.Equal(pw, again) {
		return errors.New("passwords do not match")
	}

	if err := a.store.Identity.SetPassword(ctx, user, string(pw)); err != nil {
		return err
	}
	n, err := a.store.Repos.RefreshTokens(a.store.Tx.Conn()).RevokeAllForUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	a.logger.Info(ctx, "password set by admin", "user_id", user.ID, "revoked_sessions", n)
	fmt.Fprintf(a.out, "password updated for %s, %d sessions revoked\n", user.UserName, n)
	return nil
}

func (a *Admin) findUser(ctx context.Context, who string) (*models.User, error) {
	find := a.store.Identity.FindByName
	if strings.Contains(who, "@") {
		find = a.store.Identity.FindByEmail
	}
	user, err := find(ctx, who)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("user %q not found", who)
	}
	return user, err
}

// positional drops flags (and their values) meant for the config loader.
func positional(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			if !strings.Contains(arg, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
			}
			continue
		}
		out = append(out, arg)
	}
	return out
}
