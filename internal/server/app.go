// Package server wires the auth service together: storage, the session
// orchestrator, the HTTP API, the gRPC health endpoint and the refresh token
// sweeper. It also handles graceful shutdown.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/QKhanh04/innerg-api/internal/logging"
	"github.com/QKhanh04/innerg-api/internal/server/auth"
	"github.com/QKhanh04/innerg-api/internal/server/cleanup"
	"github.com/QKhanh04/innerg-api/internal/server/config"
	"github.com/QKhanh04/innerg-api/internal/server/federation"
	"github.com/QKhanh04/innerg-api/internal/server/httpapi"
	"github.com/QKhanh04/innerg-api/internal/server/mail"
	"github.com/QKhanh04/innerg-api/internal/server/services"
	"github.com/QKhanh04/innerg-api/internal/server/telemetry"
	"github.com/QKhanh04/innerg-api/internal/timex"

	gs "github.com/QKhanh04/innerg-api/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   *Store
	http    *httpapi.Server
	health  *gs.HealthServer
	sweeper *cleanup.Sweeper
	tracing func(context.Context) error
}

// NewApp builds every component from c. Nothing listens until Run.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	now := timex.Clock(timex.SystemClock)

	tracing, err := telemetry.Setup(ctx, c.OTELEndpoint, c.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("telemetry init error: %w", err)
	}

	store, err := OpenStore(ctx, c, logger, now)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = store.Close()
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return fail(err)
	}

	signer, err := auth.NewSigner([]byte(c.JWTKey), c.JWTIssuer, c.JWTAudience, c.AccessTokenTTL(), c.RefreshTokenTTL(), auth.WithClock(now))
	if err != nil {
		return fail(err)
	}

	keys, err := federation.NewJWKSKeySource(ctx, c.GoogleJWKSURL)
	if err != nil {
		return fail(err)
	}
	verifier, err := federation.NewGoogleVerifier(c.GoogleClientID, keys, federation.WithClock(now))
	if err != nil {
		return fail(err)
	}

	mailer, err := newMailer(ctx, c)
	if err != nil {
		return fail(err)
	}

	svc := services.NewAuthService(services.AuthDeps{
		Store:    store.Identity,
		Repos:    store.Repos,
		Tx:       store.Tx,
		Signer:   signer,
		Verifier: verifier,
		Mailer:   mailer,
		Logger:   logger,
		Clock:    now,
	}, services.Options{
		DefaultRole:          c.DefaultRole,
		ConfirmEmailURL:      c.FrontendConfirmEmailURL,
		ResetPasswordURL:     c.FrontendResetPasswordURL,
		PasswordResetEnabled: c.PasswordResetEnabled,
	})

	handler := httpapi.NewHandler(svc, signer, logger, c.AllowedOrigins())

	var probe gs.Probe
	if store.DB != nil {
		probe = store.DB.PingContext
	}

	return &App{
		config:  c,
		logger:  logger,
		store:   store,
		http:    httpapi.NewServer(c.HTTPAddr, handler.Routes(), logger),
		health:  gs.NewHealthServer(c.GRPCHealthAddr, logger, probe, 10*time.Second),
		sweeper: cleanup.NewSweeper(store.Repos.RefreshTokens(store.Tx.Conn()), c.CleanupInterval, logger, now),
		tracing: tracing,
	}, nil
}

func newMailer(ctx context.Context, c *config.Config) (mail.Sender, error) {
	switch c.MailProvider {
	case config.MailProviderSES:
		return mail.NewSESSender(ctx, mail.SESOptions{
			Region:          c.SESRegion,
			AccessKeyID:     c.SESAccessKeyID,
			SecretAccessKey: c.SESSecretAccessKey,
			BaseEndpoint:    c.SESBaseEndpoint,
			From:            c.SESFromAddress,
		})
	default:
		return mail.NewSMTPSender(c.SMTPHost, c.SMTPPort, c.SMTPUsername, c.SMTPPassword, c.SMTPFromName), nil
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled, a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	serve := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				app.logger.Error(ctx, "server failed", "server", name, "error", err)
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", name, err)
				}
				mu.Unlock()
				cancelFunc()
			}
		}()
	}

	serve("http", app.http.Run)
	serve("grpc_health", app.health.Run)

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "Shutting down...")
	if err := app.tracing(context.Background()); err != nil {
		app.logger.Warn(context.Background(), "tracing shutdown failed", "error", err)
	}
	if err := app.store.Close(); err != nil {
		app.logger.Warn(context.Background(), "store close failed", "error", err)
	}
	return firstErr
}
